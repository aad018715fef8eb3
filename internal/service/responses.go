package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/parleyhq/parley/internal/directory"
	"github.com/parleyhq/parley/internal/domain"
)

// MessageResponse mirrors the message shape on the HTTP surface. Tombstones
// keep their slot but carry no content.
type MessageResponse struct {
	ID             int64      `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	SenderName     string     `json:"sender_name"`
	SenderAvatar   string     `json:"sender_avatar,omitempty"`
	Content        string     `json:"content"`
	MessageType    string     `json:"message_type"`
	SentAt         time.Time  `json:"sent_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	IsDeleted      bool       `json:"is_deleted"`
}

// MessagePage is one page of decorated history, oldest first.
type MessagePage struct {
	Messages []*MessageResponse `json:"messages"`
	HasMore  bool               `json:"has_more"`
}

// MessagePreview is the chat-list last-message summary.
type MessagePreview struct {
	MessageID   int64     `json:"message_id"`
	SenderID    string    `json:"sender_id"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	SentAt      time.Time `json:"sent_at"`
	IsDeleted   bool      `json:"is_deleted"`
}

type ParticipantResponse struct {
	UserID            string    `json:"user_id"`
	Name              string    `json:"name"`
	AvatarURL         string    `json:"avatar_url,omitempty"`
	Role              string    `json:"role"`
	IsMuted           bool      `json:"is_muted"`
	JoinedAt          time.Time `json:"joined_at"`
	LastReadMessageID *int64    `json:"last_read_message_id,omitempty"`
}

type ConversationResponse struct {
	ID           string                 `json:"id"`
	Type         string                 `json:"type"`
	Title        *string                `json:"title,omitempty"`
	Description  *string                `json:"description,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	LastActivity time.Time              `json:"last_activity"`
	UnreadCount  int                    `json:"unread_count"`
	IsMuted      bool                   `json:"is_muted"`
	LastMessage  *MessagePreview        `json:"last_message,omitempty"`
	Participants []*ParticipantResponse `json:"participants"`
}

type UserResponse struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Online    bool      `json:"online"`
	CreatedAt time.Time `json:"created_at"`
}

// decorator resolves display profiles for read responses. Lookup failures
// degrade to fallback profiles and never fail the read.
type decorator struct {
	directory directory.Client
	logger    zerolog.Logger
}

func (d decorator) profiles(ctx context.Context, ids []string) map[string]directory.Profile {
	if len(ids) == 0 {
		return map[string]directory.Profile{}
	}
	profiles, err := d.directory.Lookup(ctx, ids)
	if err != nil {
		d.logger.Debug().Err(err).Msg("profile lookup degraded")
		return map[string]directory.Profile{}
	}
	return profiles
}

func toMessageResponse(m *domain.Message, profiles map[string]directory.Profile) *MessageResponse {
	p := directory.ProfileOr(profiles, m.SenderID)
	resp := &MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     p.Name,
		SenderAvatar:   p.AvatarURL,
		Content:        m.Content,
		MessageType:    string(m.Kind),
		SentAt:         m.SentAt,
		EditedAt:       m.EditedAt,
		IsDeleted:      m.Deleted(),
	}
	if resp.IsDeleted {
		resp.Content = ""
	}
	return resp
}

func toPreview(m *domain.Message) *MessagePreview {
	pv := &MessagePreview{
		MessageID:   m.ID,
		SenderID:    m.SenderID,
		Content:     m.Content,
		MessageType: string(m.Kind),
		SentAt:      m.SentAt,
		IsDeleted:   m.Deleted(),
	}
	if pv.IsDeleted {
		pv.Content = ""
	}
	return pv
}

func toParticipantResponse(p *domain.Participant, profiles map[string]directory.Profile) *ParticipantResponse {
	prof := directory.ProfileOr(profiles, p.UserID)
	return &ParticipantResponse{
		UserID:            p.UserID,
		Name:              prof.Name,
		AvatarURL:         prof.AvatarURL,
		Role:              string(p.Role),
		IsMuted:           p.IsMuted,
		JoinedAt:          p.JoinedAt,
		LastReadMessageID: p.LastReadMessageID,
	}
}

// toConversationResponse shapes a conversation for the given caller: the
// caller's own participant row supplies is_muted.
func toConversationResponse(c *domain.Conversation, callerID string, unread int, preview *MessagePreview, profiles map[string]directory.Profile) *ConversationResponse {
	resp := &ConversationResponse{
		ID:           c.ID,
		Type:         string(c.Kind),
		Title:        c.Title,
		Description:  c.Description,
		CreatedAt:    c.CreatedAt,
		LastActivity: c.LastActivity,
		UnreadCount:  unread,
		LastMessage:  preview,
		Participants: make([]*ParticipantResponse, 0, len(c.Participants)),
	}
	for _, p := range c.Participants {
		if p.UserID == callerID {
			resp.IsMuted = p.IsMuted
		}
		resp.Participants = append(resp.Participants, toParticipantResponse(p, profiles))
	}
	return resp
}
