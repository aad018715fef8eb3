package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/parleyhq/parley/internal/directory"
	"github.com/parleyhq/parley/internal/domain"
)

// UserService serves the user directory listing and first-seen upserts.
// Identity lives in the external provider; the local row only anchors
// foreign keys and creation time.
type UserService struct {
	store    domain.Store
	decorate decorator
}

func NewUserService(store domain.Store, dir directory.Client, logger zerolog.Logger) *UserService {
	return &UserService{
		store:    store,
		decorate: decorator{directory: dir, logger: logger},
	}
}

// EnsureUser records a first-seen user id. Idempotent; called on every
// authenticated request.
func (s *UserService) EnsureUser(ctx context.Context, userID string) error {
	return s.store.InsertUser(ctx, userID)
}

// List returns known users decorated with directory profiles.
func (s *UserService) List(ctx context.Context, limit, offset int) ([]*UserResponse, error) {
	users, err := s.store.ListUsers(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.UserID)
	}
	profiles := s.decorate.profiles(ctx, ids)

	out := make([]*UserResponse, 0, len(users))
	for _, u := range users {
		prof := directory.ProfileOr(profiles, u.UserID)
		out = append(out, &UserResponse{
			UserID:    u.UserID,
			Name:      prof.Name,
			AvatarURL: prof.AvatarURL,
			Kind:      prof.Kind,
			Online:    prof.Online,
			CreatedAt: u.CreatedAt,
		})
	}
	return out, nil
}
