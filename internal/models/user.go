package models

import "time"

const (
	RoleClient = "client"
	RoleCoach  = "coach"
	RoleAdmin  = "admin"
)

const (
	SubscriptionActive  = "active"
	SubscriptionTrial   = "trial"
	SubscriptionExpired = "expired"
	SubscriptionNone    = "none"
)

type User struct {
	ID                   int64     `json:"id"`
	Email                string    `json:"email"`
	PasswordHash         string    `json:"-"`
	Role                 string    `json:"role"`
	FullName             *string   `json:"full_name"`
	AvatarURL            *string   `json:"avatar_url"`
	Phone                *string   `json:"phone"`
	AssignedCoachID      *int64    `json:"assigned_coach_id"`
	AssignedChatDoctorID *int64    `json:"assigned_chat_doctor_id"`
	SubscriptionStatus   string    `json:"subscription_status"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// CanMessage reports whether the user's billing state allows chatting.
func (u *User) CanMessage() bool {
	return u.SubscriptionStatus == SubscriptionActive || u.SubscriptionStatus == SubscriptionTrial
}

func (u *User) IsAssignedCoach(coachID int64) bool {
	return u.AssignedCoachID != nil && *u.AssignedCoachID == coachID
}

func (u *User) IsAssignedChatDoctor(coachID int64) bool {
	return u.AssignedChatDoctorID != nil && *u.AssignedChatDoctorID == coachID
}

// UserSummary is the display subset attached to events and conversations.
type UserSummary struct {
	ID        int64   `json:"id"`
	FullName  *string `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
	Phone     *string `json:"phone"`
}

func IsValidRole(role string) bool {
	switch role {
	case RoleClient, RoleCoach, RoleAdmin:
		return true
	}
	return false
}

func IsValidSubscriptionStatus(status string) bool {
	switch status {
	case SubscriptionActive, SubscriptionTrial, SubscriptionExpired, SubscriptionNone:
		return true
	}
	return false
}
