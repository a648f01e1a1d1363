// Package memory implements progress.KV with in-process maps. Safe for
// concurrent use. Intended for unit testing and development.
package memory

import (
	"context"
	"sync"

	"github.com/xraph/onboard/progress"
)

// Compile-time interface check.
var _ progress.KV = (*Store)(nil)

// Store is a fully in-memory key-value store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New returns a new empty Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Get returns the value for key, or (nil, nil) when absent.
func (m *Store) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

// Set stores value under key, replacing any existing value.
func (m *Store) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[key] = cp
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (m *Store) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// Len returns the number of stored keys. Useful in tests.
func (m *Store) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
