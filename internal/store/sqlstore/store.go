package sqlstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	sqlite "modernc.org/sqlite"

	"github.com/parleyhq/parley/internal/domain"
)

// Store implements domain.Store over sqlx for both supported drivers.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
	logger  zerolog.Logger
}

var _ domain.Store = (*Store)(nil)

func New(db *sqlx.DB, timeout time.Duration, logger zerolog.Logger) *Store {
	return &Store{
		db:      db,
		timeout: timeout,
		logger:  logger.With().Str("component", "store").Logger(),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return domain.Wrap(domain.CodeStoreUnavailable, "store unreachable", err)
	}
	return nil
}

// opCtx caps the operation at the store's default deadline. A sooner
// caller deadline still wins since the derived context keeps it.
func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// run executes fn, retrying once on transient connectivity failure, then
// classifies whatever error remains. Domain errors raised inside fn pass
// through untouched.
func (s *Store) run(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err != nil && isTransient(err) && ctx.Err() == nil {
		s.logger.Warn().Err(err).Str("op", op).Msg("transient store failure, retrying once")
		err = fn()
	}
	return classify(op, err)
}

// withTx begins a transaction, runs fn, and commits; rollback on any error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// classify maps driver-level failures onto the stable error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if isConflict(err) {
		return domain.Wrap(domain.CodeStoreConflict, op+" conflicted", err)
	}
	return domain.Wrap(domain.CodeStoreUnavailable, op+" failed", err)
}

// Postgres unique_violation and the sqlite constraint family.
const (
	pgUniqueViolation    = "23505"
	sqliteConstraint     = 19
	sqliteConstraintPK   = 1555
	sqliteConstraintUniq = 2067
)

func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		switch sqErr.Code() {
		case sqliteConstraint, sqliteConstraintPK, sqliteConstraintUniq:
			return true
		}
	}
	return false
}

// Postgres foreign_key_violation and the sqlite extended FK code.
const (
	pgFKViolation      = "23503"
	sqliteConstraintFK = 787
)

func isFKViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgFKViolation
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code() == sqliteConstraintFK
	}
	return false
}

// isTransient reports connectivity-class failures worth one retry: a dead
// pooled connection, a network error, or the Postgres 08xxx class.
func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		return pgErr.Code[:2] == "08"
	}
	return false
}
