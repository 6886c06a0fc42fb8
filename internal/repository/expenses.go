// Package repository implements the per-user repositories over the
// persistence primitive. Repositories hold no identity of their own: they
// read it from the session at the start of every operation.
package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"

	"github.com/mmynk/mealsync/internal/calculator"
	"github.com/mmynk/mealsync/internal/events"
	"github.com/mmynk/mealsync/internal/models"
	"github.com/mmynk/mealsync/internal/namespace"
	"github.com/mmynk/mealsync/internal/session"
	"github.com/mmynk/mealsync/internal/storage"
)

// Expenses is the expense repository.
//
// For a persistent identity every operation goes through the identity's
// namespaced key in the persistent store. For an ephemeral identity it goes
// through the session's scratch store and never reaches the persistent one.
type Expenses struct {
	store   *storage.Local
	session *session.Session
	bus     *events.Bus
	logger  *slog.Logger
}

// NewExpenses creates an expense repository. bus may be nil.
func NewExpenses(store *storage.Local, sess *session.Session, bus *events.Bus, logger *slog.Logger) *Expenses {
	if logger == nil {
		logger = slog.Default()
	}
	return &Expenses{store: store, session: sess, bus: bus, logger: logger}
}

// scope is the store, identity and key an operation works on.
type scope struct {
	store *storage.Local
	ident models.Identity
	key   string
}

func (r *Expenses) scope() scope {
	ident := r.session.Identity()
	// Expense keys always resolve; an unresolved identity maps to the temp key.
	key, _ := namespace.Key(namespace.Expenses, ident)
	return scope{store: r.session.Store(r.store), ident: ident, key: key}
}

// owned reports whether e may be shown to ident.
func owned(e models.Expense, ident models.Identity) bool {
	return e.OwnerID == "" || e.OwnerID == ident.ID
}

// load returns the records of the active list that pass validation. Records
// that fail are logged and hidden.
func (r *Expenses) load(ctx context.Context, s scope) models.Expenses {
	stored, err := r.loadStored(ctx, s)
	if err != nil {
		r.logger.Warn("Expense list unreadable, showing none", "key", s.key, "error", err)
		return nil
	}
	valid, err := stored.Valid()
	if err != nil {
		r.logger.Warn("Hiding invalid expense records",
			"key", s.key,
			"hidden", len(stored)-len(valid),
			"error", err,
		)
	}
	return valid
}

// loadStored returns the stored list as is, invalid records included, so a
// rewrite carries them along. A list that cannot be decoded at all is an
// error and must not be overwritten.
func (r *Expenses) loadStored(ctx context.Context, s scope) (models.Expenses, error) {
	list, _, err := storage.Load[[]models.Expense](ctx, s.store, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to load expenses: %w", err)
	}
	return list, nil
}

// Add creates an expense owned by the current identity.
func (r *Expenses) Add(ctx context.Context, in models.ExpenseInput) (*models.Expense, error) {
	s := r.scope()
	if s.ident.IsZero() {
		return nil, fmt.Errorf("add expense: %w", models.ErrIdentityRequired)
	}
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("add expense: %w", err)
	}

	e := models.Expense{
		ID:          uuid.New().String(),
		Amount:      in.Amount,
		Category:    in.Category,
		Description: in.Description,
		Date:        in.Date,
		OwnerID:     s.ident.ID,
	}
	list, err := r.loadStored(ctx, s)
	if err != nil {
		return nil, err
	}
	list = append(list, e)
	if err := storage.Write(ctx, s.store, s.key, list); err != nil {
		return nil, err
	}

	r.logger.Info("Expense added",
		"expense_id", e.ID,
		"owner_id", e.OwnerID,
		"amount", e.Amount,
		"category", e.Category,
		"ephemeral", s.ident.Ephemeral,
	)
	r.publish(ctx, events.Event{Kind: events.ExpenseAdded, Owner: s.ident, Expense: &e})
	return &e, nil
}

// Update merges patch into the expense with the given ID.
func (r *Expenses) Update(ctx context.Context, id string, patch models.ExpensePatch) (*models.Expense, error) {
	s := r.scope()
	if s.ident.IsZero() {
		return nil, fmt.Errorf("update expense: %w", models.ErrIdentityRequired)
	}

	list, err := r.loadStored(ctx, s)
	if err != nil {
		return nil, err
	}
	i := indexOf(list, id, s.ident)
	if i < 0 {
		return nil, fmt.Errorf("expense %s: %w", id, models.ErrNotFound)
	}

	updated := list[i]
	patch.Apply(&updated)
	if err := updated.Validate(); err != nil {
		return nil, fmt.Errorf("update expense %s: %w", id, err)
	}
	list[i] = updated

	if err := storage.Write(ctx, s.store, s.key, list); err != nil {
		return nil, err
	}

	r.logger.Info("Expense updated", "expense_id", id, "owner_id", s.ident.ID)
	r.publish(ctx, events.Event{Kind: events.ExpenseUpdated, Owner: s.ident, Expense: &updated})
	return &updated, nil
}

// Delete removes the expense with the given ID.
func (r *Expenses) Delete(ctx context.Context, id string) error {
	s := r.scope()
	if s.ident.IsZero() {
		return fmt.Errorf("delete expense: %w", models.ErrIdentityRequired)
	}

	list, err := r.loadStored(ctx, s)
	if err != nil {
		return err
	}
	i := indexOf(list, id, s.ident)
	if i < 0 {
		return fmt.Errorf("expense %s: %w", id, models.ErrNotFound)
	}

	removed := list[i]
	list = append(list[:i], list[i+1:]...)
	if err := storage.Write(ctx, s.store, s.key, list); err != nil {
		return err
	}

	r.logger.Info("Expense deleted", "expense_id", id, "owner_id", s.ident.ID)
	r.publish(ctx, events.Event{Kind: events.ExpenseDeleted, Owner: s.ident, Expense: &removed})
	return nil
}

// DeleteBatch removes every expense whose ID is in ids with a single write
// and raises one event. IDs that are not present are ignored; only a
// rejected write is reported.
func (r *Expenses) DeleteBatch(ctx context.Context, ids []string) error {
	s := r.scope()
	if s.ident.IsZero() {
		return fmt.Errorf("delete expenses: %w", models.ErrIdentityRequired)
	}

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	list, err := r.loadStored(ctx, s)
	if err != nil {
		return err
	}
	kept := make(models.Expenses, 0, len(list))
	var removed []string
	for _, e := range list {
		if drop[e.ID] && owned(e, s.ident) {
			removed = append(removed, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	if len(removed) == 0 {
		return nil
	}

	if err := storage.Write(ctx, s.store, s.key, kept); err != nil {
		return err
	}

	r.logger.Info("Expenses deleted", "count", len(removed), "requested", len(ids), "owner_id", s.ident.ID)
	r.publish(ctx, events.Event{Kind: events.ExpensesBatchDelete, Owner: s.ident, IDs: removed})
	return nil
}

// GetByID returns the expense with the given ID. The second result is false
// when it is absent.
func (r *Expenses) GetByID(ctx context.Context, id string) (models.Expense, bool) {
	s := r.scope()
	list := r.load(ctx, s)
	if i := indexOf(list, id, s.ident); i >= 0 {
		return list[i], true
	}
	return models.Expense{}, false
}

// List returns the active expense list in insertion order.
func (r *Expenses) List(ctx context.Context) []models.Expense {
	s := r.scope()
	list := r.load(ctx, s)
	out := make([]models.Expense, 0, len(list))
	for _, e := range list {
		if owned(e, s.ident) {
			out = append(out, e)
		}
	}
	return out
}

// Refresh drops the cached list so the next read comes from the backend.
// It does nothing for an ephemeral identity, whose list exists only in memory.
func (r *Expenses) Refresh(ctx context.Context) {
	s := r.scope()
	if s.ident.Ephemeral {
		return
	}
	s.store.Invalidate(s.key)
	r.logger.Debug("Expense list refreshed", "key", s.key)
}

// Watch calls fn whenever the current identity's expense list changes, in
// this tab or another. The subscription is bound to the key at call time.
func (r *Expenses) Watch(fn func(storage.Change)) (unsubscribe func()) {
	s := r.scope()
	return s.store.Subscribe(s.key, fn)
}

// searchEnv is the variable set available to search expressions.
type searchEnv struct {
	Amount      float64 `expr:"amount"`
	Category    string  `expr:"category"`
	Description string  `expr:"description"`
	Date        string  `expr:"date"`
}

// Search returns the expenses matching query, a boolean expr-lang expression
// over amount, category, description and date, e.g.
//
//	amount > 100 && category == "food"
//	description contains "lunch"
//
// An empty query matches everything.
func (r *Expenses) Search(ctx context.Context, query string) ([]models.Expense, error) {
	list := r.List(ctx)
	if query == "" {
		return list, nil
	}

	program, err := expr.Compile(query, expr.Env(searchEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid search %q: %w", query, err)
	}

	var matches []models.Expense
	for _, e := range list {
		ok, err := match(program, e)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", query, err)
		}
		if ok {
			matches = append(matches, e)
		}
	}
	return matches, nil
}

func match(program *vm.Program, e models.Expense) (bool, error) {
	out, err := expr.Run(program, searchEnv{
		Amount:      e.Amount,
		Category:    e.Category,
		Description: e.Description,
		Date:        e.Date,
	})
	if err != nil {
		return false, err
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Summary computes the insight-card figures for the active list.
func (r *Expenses) Summary(ctx context.Context, now time.Time) calculator.Summary {
	return calculator.Summarize(r.List(ctx), now)
}

func (r *Expenses) publish(ctx context.Context, e events.Event) {
	if r.bus != nil {
		r.bus.Publish(ctx, e)
	}
}

func indexOf(list models.Expenses, id string, ident models.Identity) int {
	for i := range list {
		if list[i].ID == id && owned(list[i], ident) {
			return i
		}
	}
	return -1
}
