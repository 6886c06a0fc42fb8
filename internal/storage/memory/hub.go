package memory

import (
	"context"
	"sync"

	"github.com/mmynk/mealsync/internal/storage"
)

// Ensure Hub implements storage.Broadcaster
var _ storage.Broadcaster = (*Hub)(nil)

// Hub delivers changes between tabs living in the same process. Delivery is
// synchronous: Publish returns after every listener has run.
type Hub struct {
	mu        sync.RWMutex
	listeners map[uint64]func(storage.Change)
	nextID    uint64
}

// NewHub creates a Hub with no listeners.
func NewHub() *Hub {
	return &Hub{listeners: make(map[uint64]func(storage.Change))}
}

// Publish delivers c to every listener.
func (h *Hub) Publish(_ context.Context, c storage.Change) error {
	h.mu.RLock()
	fns := make([]func(storage.Change), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
	return nil
}

// Listen registers fn.
func (h *Hub) Listen(fn func(storage.Change)) (stop func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.listeners[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}
