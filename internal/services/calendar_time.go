package services

import (
	"fmt"
	"strconv"
	"time"

	"github.com/saeid-a/CoachCareBack/internal/models"
)

const (
	DateLayout         = "2006-01-02"
	startingSoonWindow = 15 * time.Minute
)

// CalendarDate is a day on the wall calendar with no zone attached.
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseEventDate(value string) (CalendarDate, error) {
	if len(value) != len(DateLayout) {
		return CalendarDate{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	// Parsed only to validate and split the fields; the instant itself is
	// never used because it is anchored to UTC.
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return CalendarDate{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	return CalendarDate{Year: parsed.Year(), Month: parsed.Month(), Day: parsed.Day()}, nil
}

func DateOf(t time.Time, loc *time.Location) CalendarDate {
	local := t.In(loc)
	return CalendarDate{Year: local.Year(), Month: local.Month(), Day: local.Day()}
}

func (d CalendarDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// DBValue is the value bound to DATE columns.
func (d CalendarDate) DBValue() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d CalendarDate) AddDays(n int) CalendarDate {
	return DateOf(d.DBValue().AddDate(0, 0, n), time.UTC)
}

// DaysUntil counts calendar days from d to other; negative when other is earlier.
func (d CalendarDate) DaysUntil(other CalendarDate) int {
	return int(other.DBValue().Sub(d.DBValue()).Hours() / 24)
}

// Clock is a 24-hour wall-clock time with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

func ParseClock(value string) (Clock, error) {
	invalid := fmt.Errorf("%w: time must be HH:MM", ErrInvalidInput)
	if len(value) != 5 || value[2] != ':' {
		return Clock{}, invalid
	}
	hour, err := twoDigits(value[:2])
	if err != nil || hour > 23 {
		return Clock{}, invalid
	}
	minute, err := twoDigits(value[3:])
	if err != nil || minute > 59 {
		return Clock{}, invalid
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

func twoDigits(value string) (int, error) {
	if len(value) != 2 || value[0] < '0' || value[0] > '9' || value[1] < '0' || value[1] > '9' {
		return 0, strconv.ErrSyntax
	}
	return strconv.Atoi(value)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) minutes() int {
	return c.Hour*60 + c.Minute
}

// ComposeLocal combines a calendar day and a wall-clock time in loc.
func ComposeLocal(date CalendarDate, clock Clock, loc *time.Location) time.Time {
	return time.Date(date.Year, date.Month, date.Day, clock.Hour, clock.Minute, 0, 0, loc)
}

type Slot struct {
	Date    CalendarDate
	Start   Clock
	End     Clock
	StartAt time.Time
	EndAt   time.Time
}

func ResolveSlot(date, startTime, endTime string, loc *time.Location) (Slot, error) {
	day, err := ParseEventDate(date)
	if err != nil {
		return Slot{}, err
	}
	start, err := ParseClock(startTime)
	if err != nil {
		return Slot{}, err
	}
	end, err := ParseClock(endTime)
	if err != nil {
		return Slot{}, err
	}
	if end.minutes() <= start.minutes() {
		return Slot{}, fmt.Errorf("%w: end time %s is not after start time %s", ErrInvalidRange, end, start)
	}

	slot := Slot{
		Date:    day,
		Start:   start,
		End:     end,
		StartAt: ComposeLocal(day, start, loc),
		EndAt:   ComposeLocal(day, end, loc),
	}
	// A DST fold can collapse two distinct wall times onto the same instant.
	if !slot.EndAt.After(slot.StartAt) {
		return Slot{}, fmt.Errorf("%w: end time %s is not after start time %s", ErrInvalidRange, end, start)
	}
	return slot, nil
}

// Overlaps applies the half-open rule: touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

func DeriveAppointmentStatus(now, startAt, endAt time.Time) string {
	if !now.Before(startAt) && now.Before(endAt) {
		return models.AppointmentInProgress
	}
	untilStart := startAt.Sub(now)
	if untilStart > 0 && untilStart <= startingSoonWindow {
		return models.AppointmentStartingSoon
	}
	return models.AppointmentUpcoming
}
