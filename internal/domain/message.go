package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is a direct message between two users.
type Message struct {
	ID          uuid.UUID  `json:"id"`
	SenderID    uuid.UUID  `json:"sender_id"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	GameID      *uuid.UUID `json:"game_id,omitempty"`
	Content     string     `json:"content"`
	IsRead      bool       `json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Counterpart returns the other participant from userID's perspective.
func (m Message) Counterpart(userID uuid.UUID) uuid.UUID {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}

// Conversation summarizes the exchange with one counterpart.
type Conversation struct {
	UserID          uuid.UUID `json:"user_id"`
	DisplayName     string    `json:"display_name"`
	Role            Role      `json:"role"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
	UnreadCount     int       `json:"unread_count"`
}

// Participant identifies a message counterpart for display.
type Participant struct {
	UserID      uuid.UUID
	DisplayName string
	Role        Role
}

// UnreadEvent is pushed over the inbox socket whenever a user's unread count changes.
type UnreadEvent struct {
	Type        string `json:"type"`
	UnreadCount int    `json:"unread_count"`
}

// NewUnreadEvent builds the inbox push payload.
func NewUnreadEvent(count int) UnreadEvent {
	return UnreadEvent{Type: "unread", UnreadCount: count}
}
