package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/parleyhq/parley/internal/domain"
)

const messageColumns = `id, conversation_id, sender_id, content, type, sent_at, edited_at, deleted_at`

// appendMessageTx inserts a message and advances the conversation's
// last_activity and last_message_id inside the caller's transaction.
func appendMessageTx(ctx context.Context, tx *sqlx.Tx, draft domain.MessageDraft) (*domain.Message, error) {
	msg := &domain.Message{
		ConversationID: draft.ConversationID,
		SenderID:       draft.SenderID,
		Content:        draft.Content,
		Kind:           draft.Kind,
		SentAt:         draft.SentAt.UTC(),
	}
	err := tx.QueryRowContext(ctx, tx.Rebind(`
		INSERT INTO messages (conversation_id, sender_id, content, type, sent_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`), msg.ConversationID, msg.SenderID, msg.Content, msg.Kind, msg.SentAt).Scan(&msg.ID)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE conversations SET last_activity = ?, last_message_id = ?
		WHERE id = ?
	`), msg.SentAt, msg.ID, msg.ConversationID); err != nil {
		return nil, fmt.Errorf("advance last activity: %w", err)
	}
	return msg, nil
}

func timestampFor(draft *domain.MessageDraft) time.Time {
	if draft != nil {
		return draft.SentAt.UTC()
	}
	return time.Now().UTC()
}

func (s *Store) AppendMessage(ctx context.Context, draft domain.MessageDraft) (*domain.Message, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var msg *domain.Message
	err := s.run(ctx, "append message", func() error {
		msg = nil
		err := s.withTx(ctx, func(tx *sqlx.Tx) error {
			m, err := appendMessageTx(ctx, tx, draft)
			if err != nil {
				return err
			}
			msg = m
			return nil
		})
		if isFKViolation(err) {
			return domain.Wrap(domain.CodeConversationNotFound, "conversation not found", err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Store) GetMessage(ctx context.Context, id int64) (*domain.Message, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var m domain.Message
	err := s.run(ctx, "get message", func() error {
		err := s.db.GetContext(ctx, &m, s.db.Rebind(`
			SELECT `+messageColumns+` FROM messages WHERE id = ?
		`), id)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.E(domain.CodeMessageNotFound, "message not found")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessagesByIDs fetches messages in bulk, tombstones included. Absent
// ids are simply missing from the result map.
func (s *Store) GetMessagesByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Message, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	out := make(map[int64]*domain.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	err := s.run(ctx, "get messages by ids", func() error {
		query, args, err := sqlx.In(`SELECT `+messageColumns+` FROM messages WHERE id IN (?)`, ids)
		if err != nil {
			return fmt.Errorf("expand id list: %w", err)
		}
		var rows []*domain.Message
		if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
			return err
		}
		for k := range out {
			delete(out, k)
		}
		for _, m := range rows {
			out[m.ID] = m
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateMessageContent(ctx context.Context, id int64, content string, editedAt time.Time) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.run(ctx, "update message content", func() error {
		res, err := s.db.ExecContext(ctx, s.db.Rebind(`
			UPDATE messages SET content = ?, edited_at = ?
			WHERE id = ? AND deleted_at IS NULL
		`), content, editedAt.UTC(), id)
		if err != nil {
			return err
		}
		return requireRow(res, domain.CodeMessageNotFound, "message not found")
	})
}

func (s *Store) SoftDeleteMessage(ctx context.Context, id int64, deletedAt time.Time) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.run(ctx, "soft delete message", func() error {
		res, err := s.db.ExecContext(ctx, s.db.Rebind(`
			UPDATE messages SET deleted_at = ?
			WHERE id = ? AND deleted_at IS NULL
		`), deletedAt.UTC(), id)
		if err != nil {
			return err
		}
		return requireRow(res, domain.CodeAlreadyDeleted, "message already deleted")
	})
}

// ListMessages returns up to limit live messages, newest first. When
// beforeID is positive only strictly older messages are returned. One
// extra row is fetched to decide HasMore without a second query.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int, beforeID int64) (*domain.MessagePage, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if limit <= 0 {
		limit = 50
	}
	var page *domain.MessagePage
	err := s.run(ctx, "list messages", func() error {
		query := `
			SELECT ` + messageColumns + ` FROM messages
			WHERE conversation_id = ? AND deleted_at IS NULL`
		args := []any{conversationID}
		if beforeID > 0 {
			query += ` AND id < ?`
			args = append(args, beforeID)
		}
		query += ` ORDER BY sent_at DESC, id DESC LIMIT ?`
		args = append(args, limit+1)

		var rows []*domain.Message
		if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
			return err
		}
		hasMore := len(rows) > limit
		if hasMore {
			rows = rows[:limit]
		}
		page = &domain.MessagePage{Messages: rows, HasMore: hasMore}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (s *Store) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var count int
	err := s.run(ctx, "unread count", func() error {
		return s.db.GetContext(ctx, &count, s.db.Rebind(`
			SELECT COUNT(*) FROM messages m
			JOIN participants p
			  ON p.conversation_id = m.conversation_id AND p.user_id = ?
			WHERE m.conversation_id = ?
			  AND m.deleted_at IS NULL
			  AND m.id > COALESCE(p.last_read_message_id, 0)
		`), userID, conversationID)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// PruneTombstones hard-deletes messages soft deleted at or before the
// cutoff, then repoints last_message_id for the touched conversations to
// their newest surviving live message.
func (s *Store) PruneTombstones(ctx context.Context, deletedBefore time.Time) (int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var pruned int
	err := s.run(ctx, "prune tombstones", func() error {
		pruned = 0
		return s.withTx(ctx, func(tx *sqlx.Tx) error {
			var convIDs []string
			if err := tx.SelectContext(ctx, &convIDs, tx.Rebind(`
				SELECT DISTINCT conversation_id FROM messages
				WHERE deleted_at IS NOT NULL AND deleted_at <= ?
			`), deletedBefore.UTC()); err != nil {
				return fmt.Errorf("collect pruned conversations: %w", err)
			}
			if len(convIDs) == 0 {
				return nil
			}
			res, err := tx.ExecContext(ctx, tx.Rebind(`
				DELETE FROM messages
				WHERE deleted_at IS NOT NULL AND deleted_at <= ?
			`), deletedBefore.UTC())
			if err != nil {
				return fmt.Errorf("delete tombstones: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			pruned = int(n)

			query, args, err := sqlx.In(`
				UPDATE conversations
				SET last_message_id = (
					SELECT MAX(m.id) FROM messages m
					WHERE m.conversation_id = conversations.id AND m.deleted_at IS NULL
				)
				WHERE id IN (?)
			`, convIDs)
			if err != nil {
				return fmt.Errorf("expand conversation list: %w", err)
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
				return fmt.Errorf("repoint last message: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return pruned, nil
}
