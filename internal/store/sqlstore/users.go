package sqlstore

import (
	"context"
	"time"

	"github.com/parleyhq/parley/internal/domain"
)

func (s *Store) InsertUser(ctx context.Context, userID string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.run(ctx, "insert user", func() error {
		_, err := s.db.ExecContext(ctx, s.db.Rebind(`
			INSERT INTO users (user_id, created_at) VALUES (?, ?)
			ON CONFLICT (user_id) DO NOTHING
		`), userID, time.Now().UTC())
		return err
	})
}

func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]*domain.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if limit <= 0 {
		limit = 50
	}
	var users []*domain.User
	err := s.run(ctx, "list users", func() error {
		users = users[:0]
		return s.db.SelectContext(ctx, &users, s.db.Rebind(`
			SELECT user_id, created_at FROM users
			WHERE user_id <> ?
			ORDER BY created_at, user_id
			LIMIT ? OFFSET ?
		`), domain.SystemUserID, limit, offset)
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}
