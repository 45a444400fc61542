package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/vapvarun/fymodules"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS module_state (
	module_id  TEXT PRIMARY KEY,
	enabled    INTEGER NOT NULL DEFAULT 0,
	settings   TEXT NOT NULL DEFAULT '{}',
	last_error TEXT NOT NULL DEFAULT '',
	last_error_phase TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
)`

// SQLiteStore keeps one row per module in a SQLite database. Each Put is a
// single UPSERT, so writes are atomic per module.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and ensures the schema.
// Use ":memory:" for a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := migrateSQLite(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// migrateSQLite adds columns missing from databases created by older
// versions.
func migrateSQLite(ctx context.Context, db *sql.DB) error {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('module_state') WHERE name = 'last_error_phase'`,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to inspect schema: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.ExecContext(ctx,
		`ALTER TABLE module_state ADD COLUMN last_error_phase TEXT NOT NULL DEFAULT ''`,
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (fymodules.Record, bool, error) {
	var (
		enabled  bool
		settings string
		lastErr  string
		phase    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled, settings, last_error, last_error_phase FROM module_state WHERE module_id = ?`, id,
	).Scan(&enabled, &settings, &lastErr, &phase)
	if errors.Is(err, sql.ErrNoRows) {
		return fymodules.Record{}, false, nil
	}
	if err != nil {
		return fymodules.Record{}, false, fmt.Errorf("failed to query module %s: %w", id, err)
	}

	rec := fymodules.Record{Enabled: enabled, LastError: lastErr, LastErrorPhase: phase}
	if err := json.Unmarshal([]byte(settings), &rec.Settings); err != nil {
		return fymodules.Record{}, false, fmt.Errorf("failed to decode settings of %s: %w", id, err)
	}
	if len(rec.Settings) == 0 {
		rec.Settings = nil
	}
	return rec, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, id string, rec fymodules.Record) error {
	settings := []byte("{}")
	if len(rec.Settings) > 0 {
		var err error
		if settings, err = json.Marshal(rec.Settings); err != nil {
			return fmt.Errorf("failed to encode settings of %s: %w", id, err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO module_state (module_id, enabled, settings, last_error, last_error_phase, updated_at)
		VALUES (?, ?, ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		ON CONFLICT(module_id) DO UPDATE SET
			enabled = excluded.enabled,
			settings = excluded.settings,
			last_error = excluded.last_error,
			last_error_phase = excluded.last_error_phase,
			updated_at = excluded.updated_at`,
		id, rec.Enabled, string(settings), rec.LastError, rec.LastErrorPhase)
	if err != nil {
		return fmt.Errorf("failed to save module %s: %w", id, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
