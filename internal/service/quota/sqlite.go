package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteLedger persists quota rows in an embedded SQLite database, one row
// per (identity, date).
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens (or creates) the database at dbPath and ensures
// the usage table exists.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// WAL keeps concurrent readers from stalling behind the writer.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open quota database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping quota database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS usage (
		identity TEXT NOT NULL,
		date     TEXT NOT NULL,
		seconds  REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (identity, date)
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize quota schema: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

// SecondsUsed reads the accumulated total for (identity, date); a missing
// row is zero, not an error.
func (l *SQLiteLedger) SecondsUsed(ctx context.Context, identity, date string) (float64, error) {
	var seconds float64
	err := l.db.QueryRowContext(ctx,
		"SELECT seconds FROM usage WHERE identity = ? AND date = ?",
		identity, date,
	).Scan(&seconds)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read quota row: %w", err)
	}
	return seconds, nil
}

// AddSeconds is an atomic fetch-and-add: the upsert increments inside the
// database, so two concurrent callers can never lose each other's delta.
func (l *SQLiteLedger) AddSeconds(ctx context.Context, identity, date string, delta float64) (float64, error) {
	var total float64
	err := l.db.QueryRowContext(ctx, `
		INSERT INTO usage (identity, date, seconds) VALUES (?, ?, ?)
		ON CONFLICT (identity, date) DO UPDATE SET seconds = seconds + excluded.seconds
		RETURNING seconds`,
		identity, date, delta,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("add quota seconds: %w", err)
	}
	return total, nil
}

// Close releases the underlying database handle.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
