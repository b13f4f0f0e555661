// Package store provides the SQLite-backed relational store for fsnbmatch:
// the FSNB item catalog, the feedback review tree (sessions → rows →
// candidates/labels), and the training-run ledger. One Store owns the
// connection pool and the schema; repositories are method sets over a shared
// query layer so the same operations run against the pool or inside an
// explicit transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// ErrSessionNotFound is returned when a feedback session id does not exist.
var ErrSessionNotFound = errors.New("store: feedback session not found")

// dbtx is the subset of [*sql.DB] / [*sql.Tx] the query layer needs.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries carries every data-access operation. It is embedded in both Store
// (running against the pool) and Tx (running inside one transaction).
type queries struct {
	db dbtx
}

// Store is the SQLite-backed store. It is safe for concurrent use.
type Store struct {
	queries
	// pool is the underlying database connection pool.
	pool *sql.DB
}

// Tx is a Store transaction. All repository operations called through a Tx
// apply atomically on Commit and vanish on Rollback.
type Tx struct {
	queries
	tx *sql.Tx
}

// DefaultDBPath returns the default path for the fsnbmatch database.
// It resolves to ~/.fsnbmatch/fsnb.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".fsnbmatch")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "fsnb.db"), nil
}

// Open opens (or creates) a Store at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*Store, error) {
	// WAL improves concurrent read performance; foreign keys must be enabled
	// per-connection for the cascade semantics the schema relies on.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under
	// concurrent commit traffic.
	db.SetMaxOpenConns(1)

	s := &Store{queries: queries{db: db}, pool: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *Store) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS items (
    id    INTEGER PRIMARY KEY AUTOINCREMENT,
    code  TEXT    UNIQUE,
    name  TEXT    NOT NULL,
    unit  TEXT,
    kind  TEXT    NOT NULL CHECK(kind IN ('work','resource'))
);
CREATE INDEX IF NOT EXISTS idx_items_code ON items (code);

CREATE TABLE IF NOT EXISTS feedback_sessions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    source_name TEXT,
    created_by  TEXT,
    created_at  INTEGER NOT NULL,  -- Unix timestamp (seconds)
    status      TEXT    NOT NULL DEFAULT 'open' CHECK(status IN ('open','closed'))
);

CREATE TABLE IF NOT EXISTS feedback_rows (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  INTEGER REFERENCES feedback_sessions(id) ON DELETE CASCADE,
    caption     TEXT    NOT NULL,
    units_in    TEXT,
    qty_in      TEXT,
    norm_json   TEXT,
    created_by  TEXT,
    created_at  INTEGER NOT NULL,
    is_trusted  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_feedback_rows_session
    ON feedback_rows (session_id, created_at);

CREATE TABLE IF NOT EXISTS feedback_candidates (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    row_id        INTEGER NOT NULL REFERENCES feedback_rows(id) ON DELETE CASCADE,
    item_id       INTEGER NOT NULL REFERENCES items(id),
    model_name    TEXT    NOT NULL,
    model_version TEXT,
    score         REAL,
    rank          INTEGER,
    shown         INTEGER NOT NULL DEFAULT 1,
    created_at    INTEGER NOT NULL,
    UNIQUE (row_id, item_id, model_name)
);
CREATE INDEX IF NOT EXISTS idx_feedback_candidates_row_rank
    ON feedback_candidates (row_id, rank);

CREATE TABLE IF NOT EXISTS feedback_labels (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    row_id           INTEGER NOT NULL REFERENCES feedback_rows(id) ON DELETE CASCADE,
    label            TEXT    NOT NULL CHECK(label IN ('gold','negative','skip','ambiguous','none_match')),
    selected_item_id INTEGER REFERENCES items(id) ON DELETE SET NULL,
    negatives        TEXT    NOT NULL DEFAULT '[]',  -- JSON array of item ids
    note             TEXT,
    created_by       TEXT,
    created_at       INTEGER NOT NULL,
    is_trusted       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_feedback_labels_row
    ON feedback_labels (row_id, created_at);

CREATE TABLE IF NOT EXISTS training_runs (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at     INTEGER NOT NULL,
    finished_at    INTEGER,
    mode           TEXT    NOT NULL,
    base_model     TEXT    NOT NULL,
    data_spec      TEXT    NOT NULL,  -- JSON filters/params of the dataset build
    artifacts_path TEXT,
    metrics        TEXT,              -- JSON
    status         TEXT    NOT NULL DEFAULT 'running' CHECK(status IN ('running','ok','failed')),
    log_path       TEXT,
    created_by     TEXT
);

CREATE TABLE IF NOT EXISTS training_run_rows (
    run_id   INTEGER NOT NULL REFERENCES training_runs(id) ON DELETE CASCADE,
    row_id   INTEGER NOT NULL REFERENCES feedback_rows(id) ON DELETE CASCADE,
    added_at INTEGER NOT NULL,
    PRIMARY KEY (run_id, row_id)
);
CREATE INDEX IF NOT EXISTS idx_training_run_rows_row ON training_run_rows (row_id);
`
	if _, err := s.pool.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// BeginTx starts a transaction. The caller must Commit or Rollback.
func (s *Store) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	return &Tx{queries: queries{db: tx}, tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Safe to call after Commit (no-op error
// is swallowed), which keeps `defer tx.Rollback()` usable.
func (t *Tx) Rollback() {
	_ = t.tx.Rollback()
}

// Ping verifies the database connection; used by the server readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
