package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/directory"
	"github.com/parleyhq/parley/internal/service"
	"github.com/parleyhq/parley/internal/store/sqlstore"
)

// capturePublisher records broadcasts in invocation order.
type capturePublisher struct {
	mu       sync.Mutex
	events   map[string][]any
	detached map[string][]string
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{
		events:   make(map[string][]any),
		detached: make(map[string][]string),
	}
}

func (c *capturePublisher) Broadcast(conversationID string, event any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[conversationID] = append(c.events[conversationID], event)
}

func (c *capturePublisher) DetachUser(conversationID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detached[conversationID] = append(c.detached[conversationID], userID)
}

func (c *capturePublisher) eventsFor(conversationID string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.events[conversationID]))
	copy(out, c.events[conversationID])
	return out
}

func (c *capturePublisher) detachedFrom(conversationID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.detached[conversationID]))
	copy(out, c.detached[conversationID])
	return out
}

// stubDirectory serves canned profiles without a network hop.
type stubDirectory struct {
	profiles map[string]directory.Profile
}

func (s *stubDirectory) Lookup(_ context.Context, ids []string) (map[string]directory.Profile, error) {
	out := make(map[string]directory.Profile)
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *stubDirectory) Ping(context.Context) error { return nil }

type env struct {
	store     *sqlstore.Store
	publisher *capturePublisher
	convs     *service.ConversationService
	pipeline  *service.MessagePipeline
	cursors   *service.ReadCursorService
	users     *service.UserService
}

func newEnv(t *testing.T, dir directory.Client) *env {
	t.Helper()
	db, err := sqlstore.Open(sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "parley.db"), 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlstore.Migrate(db, sqlstore.DriverSQLite))

	logger := zerolog.Nop()
	if dir == nil {
		dir = directory.New("", 0, logger)
	}
	st := sqlstore.New(db, 5*time.Second, logger)
	pub := newCapturePublisher()
	locks := service.NewConvLocks()
	return &env{
		store:     st,
		publisher: pub,
		convs:     service.NewConversationService(st, dir, pub, locks, logger),
		pipeline:  service.NewMessagePipeline(st, dir, pub, locks, logger),
		cursors:   service.NewReadCursorService(st, logger),
		users:     service.NewUserService(st, dir, logger),
	}
}
