// Package events carries domain events from repositories to listeners such as
// the notification creator.
package events

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/mmynk/mealsync/internal/metrics"
	"github.com/mmynk/mealsync/internal/models"
)

// Kind names a domain event.
type Kind string

const (
	ExpenseAdded        Kind = "expense.added"
	ExpenseUpdated      Kind = "expense.updated"
	ExpenseDeleted      Kind = "expense.deleted"
	ExpensesBatchDelete Kind = "expense.batch_deleted"
)

// Event is raised after a repository change has been applied.
type Event struct {
	Kind  Kind
	Owner models.Identity

	// Expense is the record after the change; for deletions it is the
	// removed record. Nil for batch deletions.
	Expense *models.Expense

	// IDs lists the removed IDs of a batch deletion.
	IDs []string

	At time.Time
}

// Handler reacts to an event. Handlers run synchronously in Publish.
type Handler func(ctx context.Context, e Event)

// Bus fans events out to subscribed handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[uint64]Handler
	order    []uint64
	nextID   uint64
	metrics  metrics.Recorder
}

// NewBus creates a Bus. A nil recorder disables metrics.
func NewBus(rec metrics.Recorder) *Bus {
	if rec == nil {
		rec = metrics.NewNoop()
	}
	return &Bus{
		handlers: make(map[uint64]Handler),
		metrics:  rec,
	}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[id] = h
	b.order = append(b.order, id)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
		b.order = slices.DeleteFunc(b.order, func(x uint64) bool { return x == id })
	}
}

// Publish calls every handler in subscription order.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.metrics.IncDomainEvent(string(e.Kind))

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, e)
	}
}
