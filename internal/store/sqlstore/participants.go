package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/parleyhq/parley/internal/domain"
)

const participantColumns = `conversation_id, user_id, role, last_read_message_id, is_muted, joined_at`

func (s *Store) AddParticipant(ctx context.Context, conversationID, userID string, role domain.ParticipantRole, system *domain.MessageDraft) (*domain.Participant, *domain.Message, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var (
		participant *domain.Participant
		sysMsg      *domain.Message
	)
	err := s.run(ctx, "add participant", func() error {
		participant, sysMsg = nil, nil
		return s.withTx(ctx, func(tx *sqlx.Tx) error {
			joinedAt := timestampFor(system)
			res, err := tx.ExecContext(ctx, tx.Rebind(`
				INSERT INTO participants (conversation_id, user_id, role, is_muted, joined_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (conversation_id, user_id) DO NOTHING
			`), conversationID, userID, role, false, joinedAt)
			if err != nil {
				return fmt.Errorf("insert participant: %w", err)
			}
			inserted, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("participant rows affected: %w", err)
			}

			var p domain.Participant
			if err := tx.GetContext(ctx, &p, tx.Rebind(`
				SELECT `+participantColumns+` FROM participants
				WHERE conversation_id = ? AND user_id = ?
			`), conversationID, userID); err != nil {
				return fmt.Errorf("load participant: %w", err)
			}
			participant = &p

			// Re-adding an existing participant is a no-op: no system
			// message, no activity bump.
			if inserted == 0 || system == nil {
				return nil
			}
			msg, err := appendMessageTx(ctx, tx, *system)
			if err != nil {
				return err
			}
			sysMsg = msg
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return participant, sysMsg, nil
}

func (s *Store) RemoveParticipant(ctx context.Context, conversationID, userID string, system *domain.MessageDraft) (*domain.Message, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var sysMsg *domain.Message
	err := s.run(ctx, "remove participant", func() error {
		sysMsg = nil
		return s.withTx(ctx, func(tx *sqlx.Tx) error {
			res, err := tx.ExecContext(ctx, tx.Rebind(`
				DELETE FROM participants WHERE conversation_id = ? AND user_id = ?
			`), conversationID, userID)
			if err != nil {
				return fmt.Errorf("delete participant: %w", err)
			}
			deleted, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("participant rows affected: %w", err)
			}
			if deleted == 0 {
				return domain.E(domain.CodeParticipantNotFound, "participant not found")
			}
			if system == nil {
				return nil
			}
			msg, err := appendMessageTx(ctx, tx, *system)
			if err != nil {
				return err
			}
			sysMsg = msg
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sysMsg, nil
}

func (s *Store) GetParticipant(ctx context.Context, conversationID, userID string) (*domain.Participant, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var p domain.Participant
	err := s.run(ctx, "get participant", func() error {
		err := s.db.GetContext(ctx, &p, s.db.Rebind(`
			SELECT `+participantColumns+` FROM participants
			WHERE conversation_id = ? AND user_id = ?
		`), conversationID, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.E(domain.CodeParticipantNotFound, "participant not found")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateRole(ctx context.Context, conversationID, userID string, role domain.ParticipantRole) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.run(ctx, "update role", func() error {
		res, err := s.db.ExecContext(ctx, s.db.Rebind(`
			UPDATE participants SET role = ?
			WHERE conversation_id = ? AND user_id = ?
		`), role, conversationID, userID)
		if err != nil {
			return err
		}
		return requireRow(res, domain.CodeParticipantNotFound, "participant not found")
	})
}

func (s *Store) SetMuted(ctx context.Context, conversationID, userID string, muted bool) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.run(ctx, "set muted", func() error {
		res, err := s.db.ExecContext(ctx, s.db.Rebind(`
			UPDATE participants SET is_muted = ?
			WHERE conversation_id = ? AND user_id = ?
		`), muted, conversationID, userID)
		if err != nil {
			return err
		}
		return requireRow(res, domain.CodeParticipantNotFound, "participant not found")
	})
}

func (s *Store) UpdateLastRead(ctx context.Context, conversationID, userID string, messageID int64) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var moved bool
	err := s.run(ctx, "update last read", func() error {
		res, err := s.db.ExecContext(ctx, s.db.Rebind(`
			UPDATE participants SET last_read_message_id = ?
			WHERE conversation_id = ? AND user_id = ?
			  AND COALESCE(last_read_message_id, 0) < ?
		`), messageID, conversationID, userID, messageID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		moved = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return moved, nil
}

func requireRow(res sql.Result, code domain.Code, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.E(code, msg)
	}
	return nil
}
