package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/parleyhq/parley/internal/domain"
)

const conversationColumns = `id, type, title, description, direct_key, created_at, last_activity, last_message_id`

func (s *Store) CreateConversation(ctx context.Context, seed domain.ConversationSeed) (*domain.Conversation, *domain.Message, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	conv := &domain.Conversation{
		ID:           seed.ID,
		Kind:         seed.Kind,
		Title:        seed.Title,
		Description:  seed.Description,
		DirectKey:    seed.DirectKey,
		CreatedAt:    seed.CreatedAt,
		LastActivity: seed.CreatedAt,
	}
	var sysMsg *domain.Message

	err := s.run(ctx, "create conversation", func() error {
		sysMsg = nil
		return s.withTx(ctx, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`
				INSERT INTO conversations (id, type, title, description, direct_key, created_at, last_activity)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`), conv.ID, conv.Kind, conv.Title, conv.Description, conv.DirectKey, conv.CreatedAt, conv.LastActivity); err != nil {
				return fmt.Errorf("insert conversation: %w", err)
			}

			conv.Participants = conv.Participants[:0]
			for _, entry := range seed.Roster {
				p := &domain.Participant{
					ConversationID: conv.ID,
					UserID:         entry.UserID,
					Role:           entry.Role,
					JoinedAt:       seed.CreatedAt,
				}
				if _, err := tx.ExecContext(ctx, tx.Rebind(`
					INSERT INTO participants (conversation_id, user_id, role, is_muted, joined_at)
					VALUES (?, ?, ?, ?, ?)
				`), p.ConversationID, p.UserID, p.Role, false, p.JoinedAt); err != nil {
					return fmt.Errorf("insert participant %s: %w", entry.UserID, err)
				}
				conv.Participants = append(conv.Participants, p)
			}

			if seed.System != nil {
				msg, err := appendMessageTx(ctx, tx, *seed.System)
				if err != nil {
					return err
				}
				sysMsg = msg
				conv.LastActivity = msg.SentAt
				conv.LastMessageID = &msg.ID
			}
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return conv, sysMsg, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var conv domain.Conversation
	err := s.run(ctx, "get conversation", func() error {
		if err := s.db.GetContext(ctx, &conv, s.db.Rebind(`
			SELECT `+conversationColumns+` FROM conversations WHERE id = ?
		`), id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.E(domain.CodeConversationNotFound, "conversation not found")
			}
			return err
		}
		participants, err := s.loadParticipants(ctx, []string{id})
		if err != nil {
			return err
		}
		conv.Participants = participants[id]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *Store) FindDirectConversation(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	key := domain.DirectPairKey(userA, userB)
	var conv domain.Conversation
	err := s.run(ctx, "find direct conversation", func() error {
		err := s.db.GetContext(ctx, &conv, s.db.Rebind(`
			SELECT `+conversationColumns+` FROM conversations WHERE direct_key = ?
		`), key)
		if errors.Is(err, sql.ErrNoRows) {
			conv.ID = ""
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if conv.ID == "" {
		return nil, nil
	}
	return &conv, nil
}

// convListRow carries the correlated unread count next to the conversation
// columns.
type convListRow struct {
	domain.Conversation
	UnreadCount int `db:"unread_count"`
}

func (s *Store) ListConversationsForUser(ctx context.Context, userID string, limit, offset int) ([]*domain.ConversationListItem, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if limit <= 0 {
		limit = 20
	}
	var items []*domain.ConversationListItem
	err := s.run(ctx, "list conversations", func() error {
		var rows []convListRow
		if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
			SELECT c.id, c.type, c.title, c.description, c.direct_key,
			       c.created_at, c.last_activity, c.last_message_id,
			       (SELECT COUNT(*) FROM messages m
			        WHERE m.conversation_id = c.id
			          AND m.deleted_at IS NULL
			          AND m.id > COALESCE(p.last_read_message_id, 0)) AS unread_count
			FROM conversations c
			JOIN participants p ON p.conversation_id = c.id AND p.user_id = ?
			ORDER BY c.last_activity DESC
			LIMIT ? OFFSET ?
		`), userID, limit, offset); err != nil {
			return err
		}

		ids := make([]string, len(rows))
		for i := range rows {
			ids[i] = rows[i].Conversation.ID
		}
		participants, err := s.loadParticipants(ctx, ids)
		if err != nil {
			return err
		}

		items = make([]*domain.ConversationListItem, len(rows))
		for i := range rows {
			conv := rows[i].Conversation
			conv.Participants = participants[conv.ID]
			items[i] = &domain.ConversationListItem{
				Conversation: &conv,
				UnreadCount:  rows[i].UnreadCount,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// loadParticipants batch-loads rosters for a set of conversation ids.
func (s *Store) loadParticipants(ctx context.Context, convIDs []string) (map[string][]*domain.Participant, error) {
	result := make(map[string][]*domain.Participant, len(convIDs))
	if len(convIDs) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`
		SELECT conversation_id, user_id, role, last_read_message_id, is_muted, joined_at
		FROM participants
		WHERE conversation_id IN (?)
		ORDER BY joined_at, user_id
	`, convIDs)
	if err != nil {
		return nil, fmt.Errorf("expand participant query: %w", err)
	}
	var rows []*domain.Participant
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, p := range rows {
		result[p.ConversationID] = append(result[p.ConversationID], p)
	}
	return result, nil
}
