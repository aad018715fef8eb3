package domain

import (
	"context"
	"time"
)

// RosterEntry names one participant of a conversation being created.
type RosterEntry struct {
	UserID string
	Role   ParticipantRole
}

// MessageDraft is a validated message awaiting persistence. SentAt is
// stamped by the caller so the append transaction and last-activity agree.
type MessageDraft struct {
	ConversationID string
	SenderID       string
	Content        string
	Kind           MessageKind
	SentAt         time.Time
}

// ConversationSeed describes a conversation created atomically with its
// initial roster and, optionally, a first system message.
type ConversationSeed struct {
	ID          string
	Kind        ConversationKind
	Title       *string
	Description *string
	DirectKey   *string
	CreatedAt   time.Time
	Roster      []RosterEntry
	System      *MessageDraft
}

// MessagePage is one page of history plus a continuation flag.
type MessagePage struct {
	Messages []*Message
	HasMore  bool
}

// ConversationListItem pairs a conversation with the requesting user's
// unread count for chat-list rendering.
type ConversationListItem struct {
	Conversation *Conversation
	UnreadCount  int
}

// Store is the persistence boundary. Multi-row operations named here are
// single transactions; message identifiers within a conversation increase in
// commit order. Implementations retry once on transient connectivity
// failure and surface persistent failure as StoreUnavailable, unique
// violations as StoreConflict.
type Store interface {
	// InsertUser records a first-seen user id. Idempotent.
	InsertUser(ctx context.Context, userID string) error
	ListUsers(ctx context.Context, limit, offset int) ([]*User, error)

	// CreateConversation inserts the conversation row, every roster row and
	// the optional system message in one transaction.
	CreateConversation(ctx context.Context, seed ConversationSeed) (*Conversation, *Message, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// FindDirectConversation returns the direct conversation holding exactly
	// the two users, or nil when none exists.
	FindDirectConversation(ctx context.Context, userA, userB string) (*Conversation, error)
	ListConversationsForUser(ctx context.Context, userID string, limit, offset int) ([]*ConversationListItem, error)

	// AddParticipant inserts the roster row and the system message in one
	// transaction; RemoveParticipant deletes and records likewise.
	AddParticipant(ctx context.Context, conversationID, userID string, role ParticipantRole, system *MessageDraft) (*Participant, *Message, error)
	RemoveParticipant(ctx context.Context, conversationID, userID string, system *MessageDraft) (*Message, error)
	GetParticipant(ctx context.Context, conversationID, userID string) (*Participant, error)
	UpdateRole(ctx context.Context, conversationID, userID string, role ParticipantRole) error
	SetMuted(ctx context.Context, conversationID, userID string, muted bool) error

	// AppendMessage inserts the message and repoints the conversation's
	// last-message and last-activity in one transaction.
	AppendMessage(ctx context.Context, draft MessageDraft) (*Message, error)
	GetMessage(ctx context.Context, id int64) (*Message, error)
	// GetMessagesByIDs fetches messages (tombstones included) keyed by id,
	// for chat-list last-message previews.
	GetMessagesByIDs(ctx context.Context, ids []int64) (map[int64]*Message, error)
	UpdateMessageContent(ctx context.Context, id int64, content string, editedAt time.Time) error
	// SoftDeleteMessage stamps the tombstone; the conversation's
	// last-message pointer is left in place.
	SoftDeleteMessage(ctx context.Context, id int64, deletedAt time.Time) error
	// ListMessages returns up to limit non-deleted messages with
	// id < beforeID (0 means latest), newest first; callers reverse for
	// chronological display.
	ListMessages(ctx context.Context, conversationID string, limit int, beforeID int64) (*MessagePage, error)

	// UnreadCount counts non-deleted messages newer than the user's cursor.
	UnreadCount(ctx context.Context, conversationID, userID string) (int, error)
	// UpdateLastRead advances the cursor only when messageID is newer than
	// the stored one; reports whether the cursor moved.
	UpdateLastRead(ctx context.Context, conversationID, userID string, messageID int64) (bool, error)

	// PruneTombstones hard-deletes messages tombstoned before the cutoff
	// and repoints affected last-message references to the newest surviving
	// message. Returns the number of rows removed.
	PruneTombstones(ctx context.Context, deletedBefore time.Time) (int, error)

	Ping(ctx context.Context) error
}
