// Package sqlstore implements the persistence boundary over database/sql
// with sqlx, speaking both the pgx and the modernc sqlite drivers. Queries
// are written once with ? placeholders and rebound per driver.
package sqlstore

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know out of the box.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Open connects with the given driver and applies pool settings. SQLite gets
// its pragmas and a single writer connection; the write pattern here is one
// short transaction per send, which WAL handles well.
func Open(driver, dsn string, poolSize int) (*sqlx.DB, error) {
	switch driver {
	case DriverPostgres:
		db, err := sqlx.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(poolSize)
		db.SetMaxIdleConns(poolSize / 4)
		db.SetConnMaxLifetime(time.Hour)
		db.SetConnMaxIdleTime(30 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return db, nil

	case DriverSQLite:
		db, err := sqlx.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// A single connection keeps :memory: databases coherent and avoids
		// SQLITE_BUSY between the pool's writers.
		db.SetMaxOpenConns(1)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("ping sqlite: %w", err)
		}
		for _, pragma := range []string{
			`PRAGMA foreign_keys = ON`,
			`PRAGMA journal_mode = WAL`,
			`PRAGMA busy_timeout = 5000`,
		} {
			if _, err := db.Exec(pragma); err != nil {
				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown db driver %q", driver)
}

// Migrate runs the idempotent DDL set for the driver's dialect and seeds the
// reserved system user.
func Migrate(db *sqlx.DB, driver string) error {
	var stmts []string
	switch driver {
	case DriverPostgres:
		stmts = postgresDDL
	case DriverSQLite:
		stmts = sqliteDDL
	default:
		return fmt.Errorf("unknown db driver %q", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}

	seed := db.Rebind(`INSERT INTO users (user_id, created_at) VALUES (?, ?) ON CONFLICT (user_id) DO NOTHING`)
	if _, err := db.Exec(seed, "system", time.Now().UTC()); err != nil {
		return fmt.Errorf("seed system user: %w", err)
	}
	return nil
}

var postgresDDL = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id    TEXT        PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id              TEXT        PRIMARY KEY,
		type            TEXT        NOT NULL CHECK (type IN ('direct','group','business')),
		title           TEXT,
		description     TEXT,
		direct_key      TEXT        UNIQUE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_activity   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_message_id BIGINT
	)`,

	`CREATE TABLE IF NOT EXISTS participants (
		conversation_id      TEXT        NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		user_id              TEXT        NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		role                 TEXT        NOT NULL CHECK (role IN ('customer','agent','business','member','admin')),
		last_read_message_id BIGINT,
		is_muted             BOOLEAN     NOT NULL DEFAULT FALSE,
		joined_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (conversation_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id              BIGSERIAL   PRIMARY KEY,
		conversation_id TEXT        NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id       TEXT        NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		content         TEXT        NOT NULL,
		sent_at         TIMESTAMPTZ NOT NULL,
		type            TEXT        NOT NULL CHECK (type IN ('text','image','file','system')),
		edited_at       TIMESTAMPTZ,
		deleted_at      TIMESTAMPTZ
	)`,

	// The last-message back reference is added after messages exists; hard
	// deletes clear it and retention repoints in the same transaction. The
	// read cursor stays a weak reference so pruning cannot move it backwards.
	`DO $$
	BEGIN
		IF NOT EXISTS (
			SELECT 1 FROM information_schema.table_constraints
			WHERE table_name = 'conversations'
			  AND constraint_name = 'conversations_last_message_id_fkey'
		) THEN
			ALTER TABLE conversations
			ADD CONSTRAINT conversations_last_message_id_fkey
			FOREIGN KEY (last_message_id) REFERENCES messages(id) ON DELETE SET NULL;
		END IF;
	END
	$$`,

	`CREATE INDEX IF NOT EXISTS idx_conversations_last_activity ON conversations(last_activity DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_user ON participants(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conv_sent_at ON messages(conversation_id, sent_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conv_id ON messages(conversation_id, id)`,
}

var sqliteDDL = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id    TEXT     PRIMARY KEY,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id              TEXT     PRIMARY KEY,
		type            TEXT     NOT NULL CHECK (type IN ('direct','group','business')),
		title           TEXT,
		description     TEXT,
		direct_key      TEXT     UNIQUE,
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_activity   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_message_id INTEGER  REFERENCES messages(id) ON DELETE SET NULL
	)`,

	`CREATE TABLE IF NOT EXISTS participants (
		conversation_id      TEXT     NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		user_id              TEXT     NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		role                 TEXT     NOT NULL CHECK (role IN ('customer','agent','business','member','admin')),
		last_read_message_id INTEGER,
		is_muted             BOOLEAN  NOT NULL DEFAULT 0,
		joined_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (conversation_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id              INTEGER  PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT     NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id       TEXT     NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		content         TEXT     NOT NULL,
		sent_at         DATETIME NOT NULL,
		type            TEXT     NOT NULL CHECK (type IN ('text','image','file','system')),
		edited_at       DATETIME,
		deleted_at      DATETIME
	)`,

	`CREATE INDEX IF NOT EXISTS idx_conversations_last_activity ON conversations(last_activity DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_user ON participants(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conv_sent_at ON messages(conversation_id, sent_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conv_id ON messages(conversation_id, id)`,
}
