// Package storage provides the key-value persistence primitive that every
// repository reads and writes through.
package storage

import (
	"context"
)

// Backend is the raw key-value store shared by all tabs of one origin.
// This abstraction allows swapping storage backends (SQLite, Redis, memory)
// without changing the repositories.
type Backend interface {
	// Get returns the stored bytes for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	// Backends with a quota return an error wrapping ErrQuotaExceeded.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists the stored keys that start with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Change describes a write or removal of one key.
type Change struct {
	Key     string `json:"key"`
	Value   []byte `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`

	// Origin identifies the Local that made the change.
	Origin string `json:"origin"`
}

// Broadcaster carries change events between tabs sharing a backend.
// Delivery is best effort and unordered across publishers; the last write
// to a key wins.
type Broadcaster interface {
	// Publish sends c to every listener, including the publisher's own.
	Publish(ctx context.Context, c Change) error

	// Listen registers fn for every published change and returns a function
	// that stops delivery.
	Listen(fn func(Change)) (stop func())
}
