package models

import "time"

const (
	EventStatusScheduled = "scheduled"
	EventStatusCancelled = "cancelled"
)

const EventTypePhoneCall = "phone_call"

const (
	AppointmentUpcoming     = "upcoming"
	AppointmentStartingSoon = "starting_soon"
	AppointmentInProgress   = "in_progress"
	AppointmentCompleted    = "completed"
)

// CalendarEvent is a phone-call appointment between one coach and one client.
// Date, StartTime and EndTime are the wall-clock values as entered; StartAt and
// EndAt are the absolute instants composed from them.
type CalendarEvent struct {
	ID          int64      `json:"id"`
	CoachID     int64      `json:"coach_id"`
	ClientID    int64      `json:"client_id"`
	EventType   string     `json:"event_type"`
	Date        string     `json:"date"`
	StartTime   string     `json:"start_time"`
	EndTime     string     `json:"end_time"`
	StartAt     time.Time  `json:"start_at"`
	EndAt       time.Time  `json:"end_at"`
	Reason      string     `json:"reason"`
	Notes       *string    `json:"notes"`
	Status      string     `json:"status"`
	CreatedBy   int64      `json:"created_by"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type CalendarEventView struct {
	CalendarEvent
	ClientName      *string `json:"client_name"`
	ClientAvatarURL *string `json:"client_avatar_url"`
	ClientPhone     *string `json:"client_phone"`
}

// TodaysAppointment replaces the stored status with the one derived from the
// current time.
type TodaysAppointment struct {
	CalendarEventView
	Status            string `json:"status"`
	MinutesUntilStart int    `json:"minutes_until_start"`
}
