// Package sqlite implements progress.KV on a single SQLite table via
// database/sql and mattn/go-sqlite3. Suited to on-device onboarding
// where progress must survive app restarts without a server.
//
// Usage:
//
//	kv, err := sqlite.Open("onboard.db")
//	if err != nil { ... }
//	defer kv.Close()
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	// Register the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/xraph/onboard/progress"
)

// Compile-time interface check.
var _ progress.KV = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS onboard_kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);`

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements progress.KV backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New wraps an existing database handle. The caller owns the handle
// lifecycle; call Migrate before first use.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open opens (or creates) the database at path and runs the migration.
// The returned store owns the handle; call Close when done.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("onboard/sqlite: open %q: %w", path, err)
	}
	s := New(db, opts...)
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the key-value table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("onboard/sqlite: migrate: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value for key, or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM onboard_kv WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("onboard/sqlite: get %q: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any existing value.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO onboard_kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value,
		   updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("onboard/sqlite: set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM onboard_kv WHERE key = ?`, key,
	); err != nil {
		return fmt.Errorf("onboard/sqlite: delete %q: %w", key, err)
	}
	return nil
}
