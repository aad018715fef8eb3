package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/parleyhq/parley/internal/domain"
)

// ReadCursorService advances per-participant read cursors. Cursors only move
// forward; marking an older message is acknowledged without effect.
type ReadCursorService struct {
	store  domain.Store
	logger zerolog.Logger
}

func NewReadCursorService(store domain.Store, logger zerolog.Logger) *ReadCursorService {
	return &ReadCursorService{
		store:  store,
		logger: logger.With().Str("component", "readcursor").Logger(),
	}
}

func (s *ReadCursorService) MarkRead(ctx context.Context, userID, conversationID string, messageID int64) error {
	if _, err := s.store.GetParticipant(ctx, conversationID, userID); err != nil {
		if domain.IsCode(err, domain.CodeParticipantNotFound) {
			return domain.E(domain.CodeNotAuthorized, "you are not a participant in this conversation")
		}
		return err
	}
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.ConversationID != conversationID {
		return domain.E(domain.CodeMessageNotFound, "message does not belong to this conversation")
	}
	moved, err := s.store.UpdateLastRead(ctx, conversationID, userID, messageID)
	if err != nil {
		return err
	}
	if !moved {
		s.logger.Debug().
			Str("conversation_id", conversationID).
			Str("user_id", userID).
			Int64("message_id", messageID).
			Msg("read cursor unchanged")
	}
	return nil
}

// UnreadFor counts live messages strictly newer than the stored cursor.
func (s *ReadCursorService) UnreadFor(ctx context.Context, userID, conversationID string) (int, error) {
	return s.store.UnreadCount(ctx, conversationID, userID)
}
