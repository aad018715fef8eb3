package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/parleyhq/parley/internal/directory"
	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/metrics"
)

// Caps for the history read surface.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// MessagePipeline is the single entry point for sends, edits and deletes
// from both transports. A send is authorize, validate, persist, publish, in
// that order; persist and publish run under the conversation lock so
// subscribers observe commit order. A failed persist publishes nothing.
type MessagePipeline struct {
	store     domain.Store
	decorate  decorator
	publisher Publisher
	locks     *ConvLocks
	logger    zerolog.Logger
	now       func() time.Time
}

func NewMessagePipeline(
	store domain.Store,
	dir directory.Client,
	publisher Publisher,
	locks *ConvLocks,
	logger zerolog.Logger,
) *MessagePipeline {
	return &MessagePipeline{
		store:     store,
		decorate:  decorator{directory: dir, logger: logger},
		publisher: publisher,
		locks:     locks,
		logger:    logger.With().Str("component", "pipeline").Logger(),
		now:       time.Now,
	}
}

// SendInput carries a raw inbound send. Kind defaults to text; the system
// kind is reserved for the server and rejected here.
type SendInput struct {
	ConversationID string
	Content        string
	Kind           string
}

func (p *MessagePipeline) Send(ctx context.Context, senderID string, in SendInput) (*domain.Message, error) {
	timer := prometheus.NewTimer(metrics.SendDuration)
	defer timer.ObserveDuration()

	conv, err := p.store.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	// Muted senders still send; the flag only affects notifications.
	if !isParticipant(conv, senderID) {
		return nil, domain.E(domain.CodeNotAuthorized, "you are not a participant in this conversation")
	}

	content, err := domain.NewMessageContent(in.Content)
	if err != nil {
		return nil, err
	}
	kind := domain.MessageText
	if in.Kind != "" {
		if kind, err = domain.ParseMessageKind(in.Kind); err != nil {
			return nil, err
		}
	}
	if kind == domain.MessageSystem {
		return nil, domain.E(domain.CodeKindInvalid, "system messages cannot be sent by clients")
	}

	unlock := p.locks.Lock(in.ConversationID)
	defer unlock()

	msg, err := p.store.AppendMessage(ctx, domain.MessageDraft{
		ConversationID: in.ConversationID,
		SenderID:       senderID,
		Content:        content.String(),
		Kind:           kind,
		SentAt:         p.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	metrics.MessagesSent.WithLabelValues(string(kind)).Inc()
	p.publisher.Broadcast(msg.ConversationID, newMessageEvent(msg))
	return msg, nil
}

// Edit rewrites a message's content within the edit window and fans out the
// change. Only the sender may edit; system messages and tombstones may not
// be edited.
func (p *MessagePipeline) Edit(ctx context.Context, callerID string, messageID int64, newContent string) (*domain.Message, error) {
	msg, err := p.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := domain.CheckEditable(msg, callerID, p.now()); err != nil {
		return nil, err
	}
	content, err := domain.NewMessageContent(newContent)
	if err != nil {
		return nil, err
	}

	unlock := p.locks.Lock(msg.ConversationID)
	defer unlock()

	editedAt := p.now().UTC()
	if err := p.store.UpdateMessageContent(ctx, messageID, content.String(), editedAt); err != nil {
		return nil, err
	}
	msg.Content = content.String()
	msg.EditedAt = &editedAt

	p.publisher.Broadcast(msg.ConversationID, MessageEditedEvent{
		Type:           EventMessageEdited,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		NewContent:     msg.Content,
		EditedAt:       editedAt,
	})
	return msg, nil
}

// Delete stamps the tombstone within the delete window and fans out the
// removal. The conversation's last-message pointer is left alone; readers
// render the tombstone.
func (p *MessagePipeline) Delete(ctx context.Context, callerID string, messageID int64) error {
	msg, err := p.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := domain.CheckDeletable(msg, callerID, p.now()); err != nil {
		return err
	}

	unlock := p.locks.Lock(msg.ConversationID)
	defer unlock()

	if err := p.store.SoftDeleteMessage(ctx, messageID, p.now().UTC()); err != nil {
		return err
	}
	p.publisher.Broadcast(msg.ConversationID, MessageDeletedEvent{
		Type:           EventMessageDeleted,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
	})
	return nil
}

// History returns a decorated page of live messages in chronological order.
// Non-participants get ConversationNotFound rather than a hint that the id
// exists.
func (p *MessagePipeline) History(ctx context.Context, callerID, conversationID string, limit int, beforeID int64) (*MessagePage, error) {
	conv, err := p.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(conv, callerID) {
		return nil, domain.E(domain.CodeConversationNotFound, "conversation not found")
	}

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	page, err := p.store.ListMessages(ctx, conversationID, limit, beforeID)
	if err != nil {
		return nil, err
	}

	// The store returns newest first; flip to reading order.
	msgs := page.Messages
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	senders := make([]string, 0, len(msgs))
	seen := map[string]struct{}{}
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; ok {
			continue
		}
		seen[m.SenderID] = struct{}{}
		senders = append(senders, m.SenderID)
	}
	profiles := p.decorate.profiles(ctx, senders)

	out := &MessagePage{Messages: make([]*MessageResponse, 0, len(msgs)), HasMore: page.HasMore}
	for _, m := range msgs {
		out.Messages = append(out.Messages, toMessageResponse(m, profiles))
	}
	return out, nil
}

// Render decorates a single committed message the way History does, for
// REST responses that return the message they touched.
func (p *MessagePipeline) Render(ctx context.Context, msg *domain.Message) *MessageResponse {
	profiles := p.decorate.profiles(ctx, []string{msg.SenderID})
	return toMessageResponse(msg, profiles)
}
