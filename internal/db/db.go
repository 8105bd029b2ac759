package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection
type DB struct {
	conn *sql.DB
	Path string
}

// OpenDB opens a SQLite database with WAL mode and foreign keys enabled
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time; the pipeline is single-invocation anyway.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return &DB{conn: conn, Path: path}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying sql.DB for custom queries
func (d *DB) Conn() *sql.DB {
	return d.conn
}

const schema = `
CREATE TABLE IF NOT EXISTS raw_records (
	id            TEXT PRIMARY KEY,
	author_id     TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL,
	text          TEXT NOT NULL,
	retweet_count INTEGER NOT NULL DEFAULT 0 CHECK (retweet_count >= 0),
	reply_count   INTEGER NOT NULL DEFAULT 0 CHECK (reply_count >= 0),
	like_count    INTEGER NOT NULL DEFAULT 0 CHECK (like_count >= 0),
	quote_count   INTEGER NOT NULL DEFAULT 0 CHECK (quote_count >= 0),
	processed     INTEGER NOT NULL DEFAULT 0,
	outcome       TEXT,
	ingested_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_raw_records_pending ON raw_records (processed, created_at, id);
CREATE INDEX IF NOT EXISTS idx_raw_records_created ON raw_records (created_at);

CREATE TABLE IF NOT EXISTS enriched_records (
	id              TEXT PRIMARY KEY REFERENCES raw_records(id),
	created_at      INTEGER NOT NULL,
	cleaned_text    TEXT NOT NULL,
	sentiment_label TEXT NOT NULL,
	score_negative  REAL NOT NULL,
	score_neutral   REAL NOT NULL,
	score_positive  REAL NOT NULL,
	embedding       BLOB NOT NULL,
	retweet_count   INTEGER NOT NULL DEFAULT 0,
	reply_count     INTEGER NOT NULL DEFAULT 0,
	like_count      INTEGER NOT NULL DEFAULT 0,
	quote_count     INTEGER NOT NULL DEFAULT 0,
	enriched_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_enriched_created ON enriched_records (created_at);

CREATE TABLE IF NOT EXISTS labels (
	report_date TEXT PRIMARY KEY,
	approval    REAL NOT NULL,
	disapproval REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS scaler_params (
	counter   TEXT PRIMARY KEY,
	center    REAL NOT NULL,
	scale     REAL NOT NULL,
	fitted_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	status      TEXT NOT NULL,
	summary     TEXT
);
`

// Migrate creates the schema. Safe to call on every open.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}
