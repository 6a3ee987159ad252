// Package membackend implements an in-memory cache backend, used in tests
// and for ephemeral processes that do not want a cache directory.
package membackend

import (
	"context"
	"sync"

	"github.com/discochess/explorer/internal/cache"
)

// Compile-time check that Backend implements cache.Backend.
var _ cache.Backend = (*Backend)(nil)

// Backend stores entries in a map. Safe for concurrent use.
type Backend struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{entries: make(map[string][]byte)}
}

// Get returns a copy of the stored payload.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.entries[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put stores a copy of the payload.
func (b *Backend) Put(ctx context.Context, key string, data []byte) (int64, error) {
	stored := make([]byte, len(data))
	copy(stored, data)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = stored
	return int64(len(stored)), nil
}

// Delete removes the entry.
func (b *Backend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

// List returns all stored entries.
func (b *Backend) List() ([]cache.BackendEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]cache.BackendEntry, 0, len(b.entries))
	for key, data := range b.entries {
		out = append(out, cache.BackendEntry{Key: key, Size: int64(len(data))})
	}
	return out, nil
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}
