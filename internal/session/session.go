// Package session holds the current identity and selects the store each
// repository reads and writes.
package session

import (
	"sync"

	"github.com/mmynk/mealsync/internal/models"
	"github.com/mmynk/mealsync/internal/storage"
	"github.com/mmynk/mealsync/internal/storage/memory"
)

// Session is the explicit replacement for ambient "current user" state.
// Repositories read the identity at the start of every operation, so a
// change of identity takes effect on the next call.
//
// While the identity is ephemeral, Store returns a scratch store that lives
// only in process memory. The scratch store is replaced with an empty one
// every time ephemeral mode is entered and dropped when it is left.
type Session struct {
	mu       sync.RWMutex
	identity models.Identity
	scratch  *storage.Local
}

// New creates a session with no identity.
func New() *Session {
	return &Session{}
}

// Identity returns the current identity, which may be zero.
func (s *Session) Identity() models.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Set makes ident the current identity.
func (s *Session) Set(ident models.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identity = ident
	if ident.Ephemeral {
		s.scratch = storage.NewLocal(memory.New(0))
	} else {
		s.scratch = nil
	}
}

// Clear removes the identity and discards any ephemeral data.
func (s *Session) Clear() {
	s.Set(models.Identity{})
}

// Store returns the store operations should use: the scratch store for an
// ephemeral identity, persistent otherwise.
func (s *Session) Store(persistent *storage.Local) *storage.Local {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity.Ephemeral && s.scratch != nil {
		return s.scratch
	}
	return persistent
}
