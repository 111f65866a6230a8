// Package postgres is the PostgreSQL-backed storage.Store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"spendsense/internal/storage"
)

var (
	maxRetries    = 10
	retryInterval = 2 * time.Second
)

type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New connects, waits for the server and applies migrations.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	s := NewWithDB(db)
	if err := s.waitForDatabase(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.InfoContext(ctx, "PostgreSQL store ready")
	return s, nil
}

// NewWithDB wraps an open handle without running migrations.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) waitForDatabase(ctx context.Context) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = s.db.PingContext(ctx); err == nil {
			return nil
		}
		slog.WarnContext(ctx, "Database not ready", "attempt", i+1, "max_attempts", maxRetries, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return fmt.Errorf("database not ready after %d attempts: %w", maxRetries, err)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_blobs WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	return []byte(value), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_blobs (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, string(value))
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_blobs WHERE key = ANY($1)`, pq.Array(keys)); err != nil {
		return fmt.Errorf("delete keys: %w", err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv_blobs ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("select keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
