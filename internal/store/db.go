// Package store is the sqlite-backed persistence for jobs, the scheduler
// execution log, per-run logs and calendar events.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps the sqlite handle.
type DB struct {
	DB *sql.DB
}

// Open creates (or opens) the database at path and ensures the schema.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer at a time; sqlite serialises writes anyway
	db.SetMaxOpenConns(1)

	queries := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			request TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			trigger_value TEXT NOT NULL,
			paused INTEGER NOT NULL DEFAULT 0,
			run_count INTEGER NOT NULL DEFAULT 0,
			max_runs INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			last_fired_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS job_executions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT,
			execution_id TEXT,
			request TEXT NOT NULL,
			fired_at TEXT NOT NULL,
			success INTEGER NOT NULL,
			outcome TEXT,
			duration_ms INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS run_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			execution_id TEXT UNIQUE,
			source TEXT,
			request TEXT NOT NULL,
			plan TEXT,
			results TEXT,
			errors TEXT,
			retry_count INTEGER,
			skipped INTEGER,
			success INTEGER,
			started_at TEXT NOT NULL,
			duration_ms INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS calendar_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			start_at TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			location TEXT,
			notes TEXT,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_job_executions_fired ON job_executions(fired_at);`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_start ON calendar_events(start_at);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialise schema: %w", err)
		}
	}

	return &DB{DB: db}, nil
}

func (d *DB) Close() error {
	return d.DB.Close()
}

func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t.Local()
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
