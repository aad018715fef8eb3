package service

import (
	"time"

	"github.com/parleyhq/parley/internal/domain"
)

// Event type tags carried in every outbound socket frame.
const (
	EventNewMessage     = "new_message"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
)

// Publisher fans events out to a conversation's live subscribers. Implemented
// by the socket room registry; a no-op implementation is fine for tests.
type Publisher interface {
	Broadcast(conversationID string, event any)
	// DetachUser drops a user's connections from the conversation's room
	// after the participant row is gone.
	DetachUser(conversationID, userID string)
}

// NopPublisher discards events. Used when no socket layer is attached.
type NopPublisher struct{}

func (NopPublisher) Broadcast(string, any)     {}
func (NopPublisher) DetachUser(string, string) {}

// NewMessageEvent is broadcast for every committed message, system messages
// included.
type NewMessageEvent struct {
	Type           string    `json:"type"`
	MessageID      int64     `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	MessageType    string    `json:"message_type"`
	SentAt         time.Time `json:"sent_at"`
}

func newMessageEvent(m *domain.Message) NewMessageEvent {
	return NewMessageEvent{
		Type:           EventNewMessage,
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		MessageType:    string(m.Kind),
		SentAt:         m.SentAt,
	}
}

type MessageEditedEvent struct {
	Type           string    `json:"type"`
	MessageID      int64     `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	NewContent     string    `json:"new_content"`
	EditedAt       time.Time `json:"edited_at"`
}

type MessageDeletedEvent struct {
	Type           string `json:"type"`
	MessageID      int64  `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}
