package namespace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/mmynk/mealsync/internal/metrics"
	"github.com/mmynk/mealsync/internal/models"
	"github.com/mmynk/mealsync/internal/storage"
)

// Policy decides what happens to a legacy key after its data is copied.
type Policy string

const (
	// PreserveLegacy keeps legacy keys, since other identities on the same
	// device may still need them.
	PreserveLegacy Policy = "preserve"

	// DeleteLegacy removes legacy keys once copied.
	DeleteLegacy Policy = "delete"
)

// ParsePolicy parses a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PreserveLegacy, DeleteLegacy:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown legacy policy %q: must be %q or %q", s, PreserveLegacy, DeleteLegacy)
}

// Result reports which kinds were copied by a migration.
type Result struct {
	Expenses      bool
	Notifications bool
	Profile       bool
}

// Migrator copies legacy data into per-user keys. The same policy applies to
// every kind.
type Migrator struct {
	store   *storage.Local
	policy  Policy
	logger  *slog.Logger
	metrics metrics.Recorder

	mu    sync.Mutex
	done  map[string]bool
	group singleflight.Group
}

// MigratorOption configures a Migrator.
type MigratorOption func(*Migrator)

// WithPolicy sets the legacy key policy. Defaults to PreserveLegacy.
func WithPolicy(p Policy) MigratorOption {
	return func(m *Migrator) { m.policy = p }
}

// WithMigratorLogger sets the logger.
func WithMigratorLogger(logger *slog.Logger) MigratorOption {
	return func(m *Migrator) { m.logger = logger }
}

// WithMigratorMetrics sets the metrics recorder.
func WithMigratorMetrics(r metrics.Recorder) MigratorOption {
	return func(m *Migrator) { m.metrics = r }
}

// NewMigrator creates a Migrator over store.
func NewMigrator(store *storage.Local, opts ...MigratorOption) *Migrator {
	m := &Migrator{
		store:   store,
		policy:  PreserveLegacy,
		logger:  slog.Default(),
		metrics: metrics.NewNoop(),
		done:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy returns the configured legacy key policy.
func (m *Migrator) Policy() Policy {
	return m.policy
}

// Migrate copies every kind of legacy data for ident. It runs at most once
// per identity for the life of the Migrator; concurrent callers for the same
// identity share one run. Ephemeral and unresolved identities are a no-op.
//
// Each step is also a no-op when the per-user key already exists, so running
// Migrate again in a new process leaves per-user data unchanged.
func (m *Migrator) Migrate(ctx context.Context, ident models.Identity) (Result, error) {
	if !ident.Persistent() {
		return Result{}, nil
	}

	id := ident.ID + "|" + ident.NormalizedEmail()
	m.mu.Lock()
	done := m.done[id]
	m.mu.Unlock()
	if done {
		return Result{}, nil
	}

	v, err, _ := m.group.Do(id, func() (any, error) {
		res, err := m.run(ctx, ident)
		if err == nil {
			m.mu.Lock()
			m.done[id] = true
			m.mu.Unlock()
		}
		return res, err
	})
	res, _ := v.(Result)
	return res, err
}

func (m *Migrator) run(ctx context.Context, ident models.Identity) (Result, error) {
	var res Result
	var errs []error

	var err error
	if res.Expenses, err = m.MigrateExpenses(ctx, ident); err != nil {
		errs = append(errs, err)
	}
	if email := ident.NormalizedEmail(); email != "" {
		if res.Notifications, err = m.MigrateNotifications(ctx, email); err != nil {
			errs = append(errs, err)
		}
		if res.Profile, err = m.MigrateProfile(ctx, email); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return res, fmt.Errorf("migrate %s: %w", ident.ID, err)
	}
	return res, nil
}

// MigrateExpenses merges the legacy expense lists into the identity's key,
// stamping OwnerID. Records already owned by another identity are skipped,
// as are records that fail validation; both stay in the legacy key.
func (m *Migrator) MigrateExpenses(ctx context.Context, ident models.Identity) (bool, error) {
	if !ident.Persistent() {
		return false, nil
	}
	target, err := Key(Expenses, ident)
	if err != nil {
		return false, err
	}

	var merged models.Expenses
	seen := make(map[string]bool)
	sources := m.collect(LegacyKeys(Expenses), func(key string) (bool, any) {
		list, ok := loadLegacy[[]models.Expense](ctx, m, key)
		var rest []models.Expense
		for i := range list {
			e := list[i]
			if e.OwnerID != "" && e.OwnerID != ident.ID {
				rest = append(rest, e)
				continue
			}
			if err := e.Validate(); err != nil {
				m.logger.Warn("Leaving invalid legacy expense in place", "key", key, "expense_id", e.ID, "error", err)
				rest = append(rest, e)
				continue
			}
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			e.OwnerID = ident.ID
			merged = append(merged, e)
		}
		return ok, remainder(rest)
	})

	return copyInto(ctx, m, Expenses, target, sources, merged)
}

// MigrateNotifications copies the shared legacy notification list into the
// per-email key, stamping OwnerEmail. Records owned by another email or
// failing validation are skipped and stay in the legacy key.
func (m *Migrator) MigrateNotifications(ctx context.Context, email string) (bool, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return false, models.ErrIdentityRequired
	}
	target := ForEmail(Notifications, email)

	var owned models.Notifications
	sources := m.collect(LegacyKeys(Notifications), func(key string) (bool, any) {
		list, ok := loadLegacy[[]models.Notification](ctx, m, key)
		var rest []models.Notification
		for i := range list {
			n := list[i]
			if n.OwnerEmail != "" && models.NormalizeEmail(n.OwnerEmail) != email {
				rest = append(rest, n)
				continue
			}
			if err := n.Validate(); err != nil {
				m.logger.Warn("Leaving invalid legacy notification in place", "key", key, "notification_id", n.ID, "error", err)
				rest = append(rest, n)
				continue
			}
			n.OwnerEmail = email
			owned = append(owned, n)
		}
		return ok, remainder(rest)
	})

	return copyInto(ctx, m, Notifications, target, sources, owned)
}

// MigrateProfile copies the legacy profile into the per-email key when it
// has no email or the same email.
func (m *Migrator) MigrateProfile(ctx context.Context, email string) (bool, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return false, models.ErrIdentityRequired
	}
	target := ForEmail(Profile, email)

	var profile models.Profile
	var matched bool
	sources := m.collect(LegacyKeys(Profile), func(key string) (bool, any) {
		p, ok := loadLegacy[models.Profile](ctx, m, key)
		if !ok {
			return false, nil
		}
		if p.Email != "" && models.NormalizeEmail(p.Email) != email {
			return true, p
		}
		if !matched {
			p.Email = email
			profile = p
			matched = true
		}
		return true, nil
	})
	if !matched {
		// A legacy profile that belongs to someone else is not ours to copy.
		return false, nil
	}

	return copyInto(ctx, m, Profile, target, sources, profile)
}

// source is a legacy key that held data. rest is what the migrating identity
// did not claim from it, or nil when it claimed everything.
type source struct {
	key  string
	rest any
}

// remainder returns rest as a legacy value, or nil when it is empty.
func remainder[T any](rest []T) any {
	if len(rest) == 0 {
		return nil
	}
	return rest
}

// collect calls load for each legacy key and returns the keys that held data.
func (m *Migrator) collect(keys []string, load func(key string) (bool, any)) []source {
	var found []source
	for _, key := range keys {
		if ok, rest := load(key); ok {
			found = append(found, source{key: key, rest: rest})
		}
	}
	return found
}

// copyInto writes value to target unless target already exists or no legacy
// key held data, then applies the legacy policy to sources. Under
// DeleteLegacy a source is removed only when everything in it was claimed;
// otherwise it is rewritten with the unclaimed remainder.
func copyInto[T any](ctx context.Context, m *Migrator, kind Kind, target string, sources []source, value T) (bool, error) {
	if len(sources) == 0 {
		return false, nil
	}
	_, exists, err := m.store.Raw(ctx, target)
	if err != nil {
		return false, fmt.Errorf("check %q: %w", target, err)
	}
	if exists {
		return false, nil
	}

	if err := storage.Write(ctx, m.store, target, value); err != nil {
		return false, fmt.Errorf("migrate %s: %w", kind, err)
	}
	m.metrics.IncMigration(string(kind))

	keys := make([]string, len(sources))
	for i, src := range sources {
		keys[i] = src.key
	}
	m.logger.Info("Legacy data migrated", "kind", kind, "target", target, "sources", keys, "policy", m.policy)

	if m.policy != DeleteLegacy {
		return true, nil
	}
	for _, src := range sources {
		if src.rest == nil {
			if err := m.store.Remove(ctx, src.key); err != nil {
				return true, fmt.Errorf("remove legacy %q: %w", src.key, err)
			}
			continue
		}
		if err := storage.Write(ctx, m.store, src.key, src.rest); err != nil {
			return true, fmt.Errorf("trim legacy %q: %w", src.key, err)
		}
		m.logger.Info("Legacy key kept for unclaimed records", "kind", kind, "key", src.key)
	}
	return true, nil
}

// loadLegacy reads a legacy key. Malformed legacy data is logged and treated
// as absent.
func loadLegacy[T any](ctx context.Context, m *Migrator, key string) (T, bool) {
	v, ok, err := storage.Load[T](ctx, m.store, key)
	if err != nil {
		m.logger.Warn("Skipping unreadable legacy data", "key", key, "error", err)
		var zero T
		return zero, false
	}
	return v, ok
}
