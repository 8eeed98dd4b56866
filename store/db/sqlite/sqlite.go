// Package sqlite implements store.Driver on SQLite. The file-backed queue
// survives process restarts and connectivity loss on a single node; nothing
// here assumes more than one writer process.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/skyroute/store"
)

// DB implements store.Driver.
type DB struct {
	db *sql.DB
}

// NewDB opens the SQLite database at dsn.
//
// Pragmas:
// - busy_timeout: avoid immediate SQLITE_BUSY under concurrent access.
// - journal_mode WAL: recommended journal mode, prevents locking issues.
// - foreign_keys(0): explicit about the SQLite default.
//
// With the `modernc.org/sqlite` driver each pragma must be prefixed with
// `_pragma=`.
func NewDB(dsn string) (store.Driver, error) {
	if dsn == "" {
		return nil, errors.New("dsn required")
	}

	sqliteDB, err := sql.Open("sqlite", dsn+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
	}

	// Single connection is optimal for SQLite with WAL.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	return &DB{db: sqliteDB}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the schema when absent. The schema is small enough that
// idempotent CREATE IF NOT EXISTS beats a migration framework here.
func (d *DB) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS delegation (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL,
	strategy TEXT NOT NULL DEFAULT '',
	context_summary TEXT NOT NULL DEFAULT '',
	task_description TEXT NOT NULL DEFAULT '',
	suggested_question TEXT NOT NULL DEFAULT '',
	user_message TEXT NOT NULL DEFAULT '',
	cloud_instruction TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	result TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_delegation_status ON delegation (status, updated_ts);

CREATE TABLE IF NOT EXISTS queued_task (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	dedup_key TEXT NOT NULL UNIQUE,
	user_message TEXT NOT NULL DEFAULT '',
	context_summary TEXT NOT NULL DEFAULT '',
	task_description TEXT NOT NULL DEFAULT '',
	strategy TEXT NOT NULL DEFAULT '',
	queued_ts BIGINT NOT NULL,
	duplicate_count INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_queued_task_user ON queued_task (user_id, queued_ts);

CREATE TABLE IF NOT EXISTS routing_profile (
	user_id TEXT PRIMARY KEY,
	mode TEXT NOT NULL DEFAULT 'cost_effective',
	preferred_provider TEXT NOT NULL DEFAULT '',
	preferred_model TEXT NOT NULL DEFAULT '',
	api_keys TEXT NOT NULL DEFAULT '{}',
	auto_fallback INTEGER NOT NULL DEFAULT 1
);
`
	if _, err := d.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, "failed to migrate schema")
	}
	return nil
}
