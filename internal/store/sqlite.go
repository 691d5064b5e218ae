package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: slog.Default().With("component", "store")}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS bot_state (
		scope TEXT NOT NULL,
		state_key TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (scope, state_key)
	);
	CREATE INDEX IF NOT EXISTS idx_bot_state_updated ON bot_state(scope, updated_at);
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

// GetState retrieves the record for a scope key.
func (s *SQLiteStore) GetState(ctx context.Context, scope Scope, key string) (*Record, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("unknown scope %q", scope)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT data, updated_at FROM bot_state WHERE scope = ? AND state_key = ?`,
		string(scope), key)

	var data string
	var updatedAt int64
	err := row.Scan(&data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan state row: %w", err)
	}

	return &Record{
		Scope:     scope,
		Key:       key,
		Data:      []byte(data),
		UpdatedAt: time.Unix(updatedAt, 0),
	}, nil
}

// PutState creates or replaces the record for a scope key. A zero UpdatedAt
// is stamped with the current time.
func (s *SQLiteStore) PutState(ctx context.Context, rec *Record) error {
	if !rec.Scope.Valid() {
		return fmt.Errorf("unknown scope %q", rec.Scope)
	}
	if rec.Key == "" {
		return fmt.Errorf("state key is required")
	}

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
	INSERT INTO bot_state (scope, state_key, data, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(scope, state_key) DO UPDATE SET
		data = excluded.data,
		updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, string(rec.Scope), rec.Key, string(rec.Data), updatedAt.Unix()); err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

// DeleteState removes the record for a scope key.
func (s *SQLiteStore) DeleteState(ctx context.Context, scope Scope, key string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM bot_state WHERE scope = ? AND state_key = ?`, string(scope), key)
	if err != nil {
		return fmt.Errorf("delete state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		s.logger.Debug("DeleteState affected 0 rows", "scope", scope, "key", key)
	}
	return nil
}

// DeleteStaleState removes the record for a scope key if its last write is
// older than ttl. A write that lands after the key was listed keeps the record.
func (s *SQLiteStore) DeleteStaleState(ctx context.Context, scope Scope, key string, ttl time.Duration) (bool, error) {
	threshold := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM bot_state WHERE scope = ? AND state_key = ? AND updated_at < ?`,
		string(scope), key, threshold)
	if err != nil {
		return false, fmt.Errorf("delete stale state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// ListStaleKeys returns keys in scope whose last write is older than ttl.
func (s *SQLiteStore) ListStaleKeys(ctx context.Context, scope Scope, ttl time.Duration) ([]string, error) {
	threshold := time.Now().Add(-ttl).Unix()
	rows, err := s.db.QueryContext(ctx,
		`SELECT state_key FROM bot_state WHERE scope = ? AND updated_at < ? ORDER BY updated_at`,
		string(scope), threshold)
	if err != nil {
		return nil, fmt.Errorf("query stale state: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn("failed to close stale state rows", "error", closeErr)
		}
	}()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan stale state row: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale state: %w", err)
	}
	return keys, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
