package domain

import "time"

// SystemUserID is the reserved synthetic sender for system messages. The row
// is seeded by migration and never holds participant rows.
const SystemUserID = "system"

// User is a reference to an externally owned identity. Rows are inserted on
// first sight and never otherwise mutated.
type User struct {
	UserID    string    `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Conversation is a container of participants and messages.
type Conversation struct {
	ID            string           `db:"id" json:"id"`
	Kind          ConversationKind `db:"type" json:"type"`
	Title         *string          `db:"title" json:"title,omitempty"`
	Description   *string          `db:"description" json:"description,omitempty"`
	DirectKey     *string          `db:"direct_key" json:"-"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	LastActivity  time.Time        `db:"last_activity" json:"last_activity"`
	LastMessageID *int64           `db:"last_message_id" json:"last_message_id,omitempty"`

	// Participants is filled by reads that load the roster; it is not a
	// column.
	Participants []*Participant `db:"-" json:"participants,omitempty"`
}

// Participant is the (conversation, user) edge carrying role and per-user
// conversation state.
type Participant struct {
	ConversationID    string          `db:"conversation_id" json:"conversation_id"`
	UserID            string          `db:"user_id" json:"user_id"`
	Role              ParticipantRole `db:"role" json:"role"`
	LastReadMessageID *int64          `db:"last_read_message_id" json:"last_read_message_id,omitempty"`
	IsMuted           bool            `db:"is_muted" json:"is_muted"`
	JoinedAt          time.Time       `db:"joined_at" json:"joined_at"`
}

// Message is an append-only, optionally tombstoned record in a conversation.
// Identifiers increase in commit order within a conversation.
type Message struct {
	ID             int64       `db:"id" json:"id"`
	ConversationID string      `db:"conversation_id" json:"conversation_id"`
	SenderID       string      `db:"sender_id" json:"sender_id"`
	Content        string      `db:"content" json:"content"`
	Kind           MessageKind `db:"type" json:"type"`
	SentAt         time.Time   `db:"sent_at" json:"sent_at"`
	EditedAt       *time.Time  `db:"edited_at" json:"edited_at,omitempty"`
	DeletedAt      *time.Time  `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Deleted reports whether the message carries a tombstone.
func (m *Message) Deleted() bool { return m.DeletedAt != nil }

// DirectPairKey is the canonical unordered-pair key identifying a direct
// conversation between two users.
func DirectPairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
