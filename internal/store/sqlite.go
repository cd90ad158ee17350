// Package store persists unified datasets and analytics outputs in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pkg/errors"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS unified_posts (
  run_date TEXT NOT NULL,
  seq INTEGER NOT NULL,
  post_id TEXT NOT NULL,
  platform TEXT NOT NULL,
  content TEXT,
  author_id TEXT,
  posted_at TEXT,
  likes INTEGER NOT NULL DEFAULT 0,
  comments INTEGER NOT NULL DEFAULT 0,
  shares INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (run_date, seq)
);`,
	`CREATE INDEX IF NOT EXISTS unified_posts_platform ON unified_posts(run_date, platform);`,
	`CREATE TABLE IF NOT EXISTS unified_datasets (
  run_date TEXT PRIMARY KEY,
  rows INTEGER NOT NULL,
  written_at TEXT NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS daily_metrics (
  date TEXT NOT NULL,
  platform TEXT NOT NULL,
  likes INTEGER NOT NULL DEFAULT 0,
  comments INTEGER NOT NULL DEFAULT 0,
  shares INTEGER NOT NULL DEFAULT 0,
  engagement_score INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (date, platform)
);`,
	`CREATE TABLE IF NOT EXISTS daily_snapshots (
  date TEXT PRIMARY KEY,
  platforms INTEGER NOT NULL,
  written_at TEXT NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS rolling_averages (
  run_date TEXT NOT NULL,
  window_size INTEGER NOT NULL,
  seq INTEGER NOT NULL,
  platform TEXT NOT NULL,
  date TEXT NOT NULL,
  likes REAL NOT NULL,
  comments REAL NOT NULL,
  shares REAL NOT NULL,
  engagement_score REAL NOT NULL,
  PRIMARY KEY (run_date, seq)
);`,
	`CREATE TABLE IF NOT EXISTS top_posts (
  run_date TEXT NOT NULL,
  list TEXT NOT NULL,
  rank INTEGER NOT NULL,
  post_id TEXT NOT NULL,
  platform TEXT NOT NULL,
  content TEXT,
  author_id TEXT,
  posted_at TEXT,
  likes INTEGER NOT NULL,
  comments INTEGER NOT NULL,
  shares INTEGER NOT NULL,
  engagement_score INTEGER NOT NULL,
  PRIMARY KEY (run_date, list, platform, rank)
);`,
	`CREATE TABLE IF NOT EXISTS pipeline_runs (
  id TEXT PRIMARY KEY,
  run_date TEXT NOT NULL,
  started_at TEXT NOT NULL,
  finished_at TEXT NOT NULL,
  status TEXT NOT NULL,
  seen INTEGER NOT NULL DEFAULT 0,
  dropped INTEGER NOT NULL DEFAULT 0,
  written INTEGER NOT NULL DEFAULT 0,
  daily_rows INTEGER NOT NULL DEFAULT 0,
  rolling_status TEXT NOT NULL DEFAULT '',
  error TEXT NOT NULL DEFAULT ''
);`,
	`CREATE INDEX IF NOT EXISTS pipeline_runs_date ON pipeline_runs(run_date);`,
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

const defaultListLimit = 100

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// One connection serializes writers; stages commit whole transactions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=wal;`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "set WAL")
	}
	s, err := New(context.Background(), db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and applies the schema.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, errors.Wrap(err, "apply schema")
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping() error {
	return s.db.Ping()
}

// RawDB exposes the handle for migrations.
func (s *Store) RawDB() *sql.DB { return s.db }

func (s *Store) String() string {
	return fmt.Sprintf("Store{%p}", s.db)
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// inTx runs fn in a transaction, rolling back on any error.
func (s *Store) inTx(ctx context.Context, label string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "%s: begin", label)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, label)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "%s: commit", label)
	}
	return nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: p.UTC().Format(time.RFC3339Nano), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func timePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
