// Package redis implements progress.KV on Redis strings. Suited to
// short-lived onboarding sessions; an optional TTL lets abandoned
// progress expire on its own.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	kv := redisstore.New(client, redisstore.WithTTL(30*24*time.Hour))
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/onboard/progress"
)

// Compile-time interface check.
var _ progress.KV = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithTTL sets an expiry on every written key, refreshed on each write.
// Zero (the default) means keys never expire.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// Store implements progress.KV backed by Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger
	ttl    time.Duration
}

// New creates a Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get returns the value for key, or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("onboard/redis: get %q: %w", key, err)
	}
	return v, nil
}

// Set stores value under key, refreshing the TTL if one is configured.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("onboard/redis: set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("onboard/redis: del %q: %w", key, err)
	}
	return nil
}
