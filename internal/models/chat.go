package models

import "time"

const (
	ConversationActive   = "active"
	ConversationArchived = "archived"
)

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeVoice = "voice"
)

type Conversation struct {
	ID                 int64      `json:"id"`
	ClientID           int64      `json:"client_id"`
	CoachID            int64      `json:"coach_id"`
	Status             string     `json:"status"`
	UnreadByClient     int        `json:"unread_by_client"`
	UnreadByCoach      int        `json:"unread_by_coach"`
	LastMessageAt      *time.Time `json:"last_message_at"`
	LastMessagePreview *string    `json:"last_message_preview"`
	IsPinned           bool       `json:"is_pinned"`
	IsPriority         bool       `json:"is_priority"`
	ArchivedAt         *time.Time `json:"archived_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (c *Conversation) HasParticipant(userID int64) bool {
	return c.ClientID == userID || c.CoachID == userID
}

// Counterpart returns the other participant, or 0 when userID is not one.
func (c *Conversation) Counterpart(userID int64) int64 {
	switch userID {
	case c.ClientID:
		return c.CoachID
	case c.CoachID:
		return c.ClientID
	}
	return 0
}

type ChatMessage struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversation_id"`
	SenderID       int64      `json:"sender_id"`
	Content        string     `json:"content"`
	MessageType    string     `json:"message_type"`
	MediaURL       *string    `json:"media_url,omitempty"`
	MediaDuration  *int       `json:"media_duration,omitempty"`
	IsRead         bool       `json:"is_read"`
	IsEdited       bool       `json:"is_edited"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	IsDeleted      bool       `json:"is_deleted"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type ConversationSummary struct {
	Conversation
	Counterpart *UserSummary `json:"counterpart,omitempty"`
	UnreadCount int          `json:"unread_count"`
}
