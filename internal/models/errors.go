package models

import "errors"

var (
	// ErrNotFound is returned when an operation references an id that is not
	// in the active collection.
	ErrNotFound = errors.New("not found")

	// ErrIdentityRequired is returned when an operation needs an owner and no
	// identity has been resolved.
	ErrIdentityRequired = errors.New("identity required")
)
