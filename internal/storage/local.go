package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rs/xid"

	"github.com/mmynk/mealsync/internal/metrics"
)

// Local is one tab's view of a Backend. It caches what it has read or
// written, notifies same-tab subscribers on every write, and exchanges change
// events with other tabs through an optional Broadcaster.
//
// A write updates the cache before the backend. If the backend rejects the
// write the cache is not rolled back, so this tab keeps seeing the new value
// while the backend and other tabs keep the old one.
type Local struct {
	backend Backend
	bus     Broadcaster
	origin  string
	logger  *slog.Logger
	metrics metrics.Recorder

	mu     sync.Mutex
	cache  map[string]entry
	subs   map[string]map[uint64]func(Change)
	nextID uint64
	stop   func()
}

type entry struct {
	data    []byte
	present bool
}

// Option configures a Local.
type Option func(*Local)

// WithBroadcaster connects the Local to other tabs.
func WithBroadcaster(b Broadcaster) Option {
	return func(l *Local) { l.bus = b }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Local) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(l *Local) {
		if r != nil {
			l.metrics = r
		}
	}
}

// NewLocal creates a Local over backend.
func NewLocal(backend Backend, opts ...Option) *Local {
	if backend == nil {
		panic("storage: nil backend")
	}
	l := &Local{
		backend: backend,
		origin:  xid.New().String(),
		logger:  slog.Default(),
		metrics: metrics.NewNoop(),
		cache:   make(map[string]entry),
		subs:    make(map[string]map[uint64]func(Change)),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.bus != nil {
		l.stop = l.bus.Listen(l.handleRemote)
	}
	return l
}

// Origin returns the identifier stamped on changes made by this Local.
func (l *Local) Origin() string {
	return l.origin
}

// Close stops receiving changes from other tabs. The backend is shared and
// stays open.
func (l *Local) Close() error {
	if l.stop != nil {
		l.stop()
		l.stop = nil
	}
	return nil
}

// Raw returns the bytes stored under key. The second result is false when the
// key is absent.
func (l *Local) Raw(ctx context.Context, key string) ([]byte, bool, error) {
	l.mu.Lock()
	e, ok := l.cache[key]
	l.mu.Unlock()
	if ok {
		l.metrics.IncRead("hit")
		return e.data, e.present, nil
	}

	data, err := l.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		l.metrics.IncRead("absent")
		l.remember(key, entry{})
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %q: %w", key, err)
	}
	l.metrics.IncRead("miss")
	l.remember(key, entry{data: data, present: true})
	return data, true, nil
}

// Has reports whether key holds a value. Read failures count as absent.
func (l *Local) Has(ctx context.Context, key string) bool {
	_, ok, err := l.Raw(ctx, key)
	if err != nil {
		l.logger.Error("Storage read failed", "key", key, "error", err)
		return false
	}
	return ok
}

// Put stores data under key. See WriteError for the failure semantics.
func (l *Local) Put(ctx context.Context, key string, data []byte) error {
	l.remember(key, entry{data: data, present: true})

	change := Change{Key: key, Value: data, Origin: l.origin}
	if err := l.backend.Set(ctx, key, data); err != nil {
		l.metrics.IncWrite("error")
		l.logger.Error("Storage write failed, in-memory value kept",
			"key", key,
			"bytes", len(data),
			"error", err,
		)
		l.dispatch(change)
		return &WriteError{Key: key, Err: err}
	}
	l.metrics.IncWrite("ok")

	l.dispatch(change)
	l.publish(ctx, change)
	return nil
}

// Remove deletes key.
func (l *Local) Remove(ctx context.Context, key string) error {
	if err := l.backend.Delete(ctx, key); err != nil {
		l.metrics.IncWrite("error")
		l.logger.Error("Storage delete failed", "key", key, "error", err)
		return &WriteError{Key: key, Err: err}
	}
	l.metrics.IncWrite("ok")
	l.remember(key, entry{})

	change := Change{Key: key, Deleted: true, Origin: l.origin}
	l.dispatch(change)
	l.publish(ctx, change)
	return nil
}

// Invalidate drops the cached copy of key so the next read goes to the backend.
func (l *Local) Invalidate(key string) {
	l.mu.Lock()
	delete(l.cache, key)
	l.mu.Unlock()
}

// Keys lists backend keys with the given prefix.
func (l *Local) Keys(ctx context.Context, prefix string) ([]string, error) {
	return l.backend.Keys(ctx, prefix)
}

// Subscribe registers fn for changes to key made by this tab or by other
// tabs. The returned function unsubscribes.
func (l *Local) Subscribe(key string, fn func(Change)) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	if l.subs[key] == nil {
		l.subs[key] = make(map[uint64]func(Change))
	}
	l.subs[key][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs[key], id)
			if len(l.subs[key]) == 0 {
				delete(l.subs, key)
			}
		})
	}
}

func (l *Local) remember(key string, e entry) {
	l.mu.Lock()
	l.cache[key] = e
	l.mu.Unlock()
}

// dispatch calls the subscribers of c.Key outside the lock.
func (l *Local) dispatch(c Change) {
	l.mu.Lock()
	fns := make([]func(Change), 0, len(l.subs[c.Key]))
	for _, fn := range l.subs[c.Key] {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

func (l *Local) publish(ctx context.Context, c Change) {
	if l.bus == nil {
		return
	}
	if err := l.bus.Publish(ctx, c); err != nil {
		l.logger.Warn("Change broadcast failed", "key", c.Key, "error", err)
	}
}

// handleRemote applies a change made by another tab.
func (l *Local) handleRemote(c Change) {
	if c.Origin == l.origin {
		return
	}
	l.metrics.IncRemoteChange()
	l.Invalidate(c.Key)
	l.logger.Debug("Remote change received", "key", c.Key, "origin", c.Origin, "deleted", c.Deleted)
	l.dispatch(c)
}
