package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS widget_records (
		scope TEXT NOT NULL,
		record_key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (scope, record_key)
	);
	CREATE INDEX IF NOT EXISTS idx_widget_records_updated ON widget_records(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get retrieves a record.
func (s *SQLiteStore) Get(ctx context.Context, scope, key string) (string, bool, error) {
	query := `SELECT value FROM widget_records WHERE scope = ? AND record_key = ?`

	var value string
	err := s.db.QueryRowContext(ctx, query, scope, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("scan record: %w", err)
	}
	return value, true, nil
}

// Set creates or replaces a record.
func (s *SQLiteStore) Set(ctx context.Context, scope, key, value string) error {
	query := `
	INSERT INTO widget_records (scope, record_key, value, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(scope, record_key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, scope, key, value, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// Delete removes records.
// Implements retry logic with exponential backoff to handle SQLITE_BUSY errors.
func (s *SQLiteStore) Delete(ctx context.Context, scope string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.deleteOnce(ctx, scope, keys)
		if err == nil {
			return nil
		}

		if isConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // exponential backoff: 100ms, 200ms, 400ms
			slog.Debug("Delete records failed with SQLITE_BUSY, retrying",
				"scope", scope,
				"attempt", i+1,
				"delay", delay)
			select {
			case <-ctx.Done():
				return fmt.Errorf("delete records: %w", ctx.Err())
			case <-time.After(delay):
			}
			continue
		}

		return fmt.Errorf("delete records for %s after %d attempts: %w", scope, i+1, err)
	}

	return nil
}

func (s *SQLiteStore) deleteOnce(ctx context.Context, scope string, keys []string) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	query := `DELETE FROM widget_records WHERE scope = ? AND record_key IN (` + placeholders + `)`

	args := make([]any, 0, len(keys)+1)
	args = append(args, scope)
	for _, k := range keys {
		args = append(args, k)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	return nil
}

// DeleteStale removes records older than retention.
func (s *SQLiteStore) DeleteStale(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).UnixNano()
	result, err := s.db.ExecContext(ctx, `DELETE FROM widget_records WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("delete stale records: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// isConflictError reports SQLite lock contention, which warrants a retry.
func isConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
