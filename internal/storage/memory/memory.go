// Package memory provides process-memory implementations of storage.Backend
// and storage.Broadcaster.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/mmynk/mealsync/internal/storage"
)

// Ensure Store implements storage.Backend
var _ storage.Backend = (*Store)(nil)

// Store keeps values in a map. Its contents are lost when the process exits.
type Store struct {
	mu       sync.RWMutex
	data     map[string][]byte
	maxBytes int64
	used     int64
}

// New creates an empty Store. A positive maxBytes caps the total size of
// keys plus values; writes past the cap fail with storage.ErrQuotaExceeded.
func New(maxBytes int64) *Store {
	return &Store{
		data:     make(map[string][]byte),
		maxBytes: maxBytes,
	}
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return slices.Clone(v), nil
}

// Set stores a copy of value under key.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.used
	if old, ok := s.data[key]; ok {
		used -= int64(len(key) + len(old))
	}
	used += int64(len(key) + len(value))
	if s.maxBytes > 0 && used > s.maxBytes {
		return fmt.Errorf("set %q (%d bytes, limit %d): %w", key, len(value), s.maxBytes, storage.ErrQuotaExceeded)
	}

	s.data[key] = slices.Clone(value)
	s.used = used
	return nil
}

// Delete removes key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.data[key]; ok {
		s.used -= int64(len(key) + len(old))
		delete(s.data, key)
	}
	return nil
}

// Keys lists keys with the given prefix, sorted.
func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
