// Package bunstore implements progress.KV through the Bun ORM using the
// PostgreSQL dialect. Prefer it when the host application already runs
// its schema through Bun.
//
// Usage:
//
//	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
//	db := bun.NewDB(sqldb, pgdialect.New())
//	kv := bunstore.New(db)
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/onboard/progress"
)

// Compile-time interface check.
var _ progress.KV = (*Store)(nil)

type kvModel struct {
	bun.BaseModel `bun:"table:onboard_kv"`

	Key       string    `bun:"key,pk"`
	Value     []byte    `bun:"value,notnull,type:bytea"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Store implements progress.KV backed by Bun. The caller owns the
// *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// New creates a new Bun store.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB { return s.db }

// Migrate creates the key-value table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*kvModel)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("onboard/bun: migrate: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the value for key, or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var m kvModel
	err := s.db.NewSelect().
		Model(&m).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("onboard/bun: get %q: %w", key, err)
	}
	return m.Value, nil
}

// Set stores value under key, replacing any existing value.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	m := &kvModel{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	_, err := s.db.NewInsert().
		Model(m).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("onboard/bun: set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.NewDelete().
		Model((*kvModel)(nil)).
		Where("key = ?", key).
		Exec(ctx); err != nil {
		return fmt.Errorf("onboard/bun: delete %q: %w", key, err)
	}
	return nil
}
