package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Backend.Get for absent keys.
	ErrNotFound = errors.New("key not found")

	// ErrQuotaExceeded is returned by backends that refuse a write because
	// the store is full.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// DecodeError reports stored content that is not valid for the expected shape.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// WriteError reports a write the backend rejected. The in-process cache
// already holds the new value when this is returned.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %q: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
