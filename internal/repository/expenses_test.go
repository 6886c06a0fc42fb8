package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/mealsync/internal/events"
	"github.com/mmynk/mealsync/internal/models"
	"github.com/mmynk/mealsync/internal/namespace"
	"github.com/mmynk/mealsync/internal/session"
	"github.com/mmynk/mealsync/internal/storage"
	"github.com/mmynk/mealsync/internal/storage/memory"
)

var (
	u1   = models.Identity{ID: "u1", Email: "u1@example.com"}
	u2   = models.Identity{ID: "u2", Email: "u2@example.com"}
	demo = models.Identity{ID: "demo-1", Email: models.DemoEmail, Ephemeral: true}
)

func newExpenses(t *testing.T, ident models.Identity) (*Expenses, *storage.Local, *session.Session) {
	t.Helper()
	store := storage.NewLocal(memory.New(0))
	sess := session.New()
	sess.Set(ident)
	return NewExpenses(store, sess, events.NewBus(nil), nil), store, sess
}

func lunch() models.ExpenseInput {
	return models.ExpenseInput{Amount: 250, Category: "food", Description: "lunch"}
}

func TestExpensesIsolatedPerIdentity(t *testing.T) {
	ctx := context.Background()
	repo, _, sess := newExpenses(t, u1)

	added, err := repo.Add(ctx, lunch())
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, "u1", added.OwnerID)

	sess.Set(u2)
	assert.Empty(t, repo.List(ctx))

	sess.Set(u1)
	list := repo.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, *added, list[0])
}

func TestExpensesAddStoresUnderIdentityKey(t *testing.T) {
	ctx := context.Background()
	repo, store, _ := newExpenses(t, u1)

	_, err := repo.Add(ctx, lunch())
	require.NoError(t, err)

	stored := storage.Read[models.Expenses](ctx, store, "expenses_u1", nil)
	require.Len(t, stored, 1)
	assert.Equal(t, 250.0, stored[0].Amount)
	assert.False(t, store.Has(ctx, namespace.TempExpensesKey))
}

func TestExpensesRequireIdentity(t *testing.T) {
	ctx := context.Background()
	repo, store, _ := newExpenses(t, models.Identity{})

	_, err := repo.Add(ctx, lunch())
	assert.ErrorIs(t, err, models.ErrIdentityRequired)
	_, err = repo.Update(ctx, "x", models.ExpensePatch{})
	assert.ErrorIs(t, err, models.ErrIdentityRequired)
	assert.ErrorIs(t, repo.Delete(ctx, "x"), models.ErrIdentityRequired)
	assert.ErrorIs(t, repo.DeleteBatch(ctx, []string{"x"}), models.ErrIdentityRequired)

	// Reads without an identity see the temp list.
	require.NoError(t, storage.Write(ctx, store, namespace.TempExpensesKey, models.Expenses{{ID: "t1", Amount: 3, Category: "misc"}}))
	list := repo.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, "t1", list[0].ID)
}

func TestExpensesAddRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newExpenses(t, u1)

	tests := []struct {
		name  string
		input models.ExpenseInput
	}{
		{name: "negative amount", input: models.ExpenseInput{Amount: -1, Category: "food"}},
		{name: "bad date", input: models.ExpenseInput{Amount: 1, Category: "food", Date: "yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Add(ctx, tt.input)
			assert.Error(t, err)
		})
	}
	assert.Empty(t, repo.List(ctx))
}

func TestExpensesUpdate(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newExpenses(t, u1)

	added, err := repo.Add(ctx, lunch())
	require.NoError(t, err)

	amount := 300.0
	updated, err := repo.Update(ctx, added.ID, models.ExpensePatch{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, 300.0, updated.Amount)
	assert.Equal(t, "food", updated.Category)
	assert.Equal(t, "u1", updated.OwnerID)

	got, ok := repo.GetByID(ctx, added.ID)
	require.True(t, ok)
	assert.Equal(t, *updated, got)

	_, err = repo.Update(ctx, "missing", models.ExpensePatch{Amount: &amount})
	assert.ErrorIs(t, err, models.ErrNotFound)

	negative := -5.0
	_, err = repo.Update(ctx, added.ID, models.ExpensePatch{Amount: &negative})
	assert.Error(t, err)
	got, _ = repo.GetByID(ctx, added.ID)
	assert.Equal(t, 300.0, got.Amount)
}

func TestExpensesDelete(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newExpenses(t, u1)

	added, err := repo.Add(ctx, lunch())
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, added.ID))
	assert.Empty(t, repo.List(ctx))
	_, ok := repo.GetByID(ctx, added.ID)
	assert.False(t, ok)

	assert.ErrorIs(t, repo.Delete(ctx, added.ID), models.ErrNotFound)
}

func TestExpensesDeleteBatch(t *testing.T) {
	ctx := context.Background()
	repo, store, _ := newExpenses(t, u1)
	require.NoError(t, storage.Write(ctx, store, "expenses_u1", models.Expenses{
		{ID: "a", Amount: 1, Category: "x", OwnerID: "u1"},
		{ID: "b", Amount: 2, Category: "x", OwnerID: "u1"},
		{ID: "c", Amount: 3, Category: "x", OwnerID: "u1"},
	}))

	writes := 0
	unsubscribe := store.Subscribe("expenses_u1", func(storage.Change) { writes++ })
	defer unsubscribe()

	var batches []events.Event
	repo.bus.Subscribe(func(_ context.Context, e events.Event) { batches = append(batches, e) })

	require.NoError(t, repo.DeleteBatch(ctx, []string{"a", "c", "zzz"}))

	list := repo.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, 1, writes)
	require.Len(t, batches, 1)
	assert.Equal(t, events.ExpensesBatchDelete, batches[0].Kind)
	assert.ElementsMatch(t, []string{"a", "c"}, batches[0].IDs)

	// Nothing matching is still a success.
	require.NoError(t, repo.DeleteBatch(ctx, []string{"zzz"}))
	assert.Equal(t, 1, writes)
}

func TestExpensesGetByIDAbsent(t *testing.T) {
	repo, _, _ := newExpenses(t, u1)
	_, ok := repo.GetByID(context.Background(), "nope")
	assert.False(t, ok)
}

func TestExpensesHideForeignRecords(t *testing.T) {
	ctx := context.Background()
	repo, store, _ := newExpenses(t, u1)
	require.NoError(t, storage.Write(ctx, store, "expenses_u1", models.Expenses{
		{ID: "mine", Amount: 1, Category: "x", OwnerID: "u1"},
		{ID: "theirs", Amount: 2, Category: "x", OwnerID: "u2"},
	}))

	list := repo.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, "mine", list[0].ID)
	_, ok := repo.GetByID(ctx, "theirs")
	assert.False(t, ok)
	assert.ErrorIs(t, repo.Delete(ctx, "theirs"), models.ErrNotFound)
}

func TestExpensesEphemeralNeverPersists(t *testing.T) {
	ctx := context.Background()
	repo, store, sess := newExpenses(t, demo)

	_, err := repo.Add(ctx, lunch())
	require.NoError(t, err)
	assert.Len(t, repo.List(ctx), 1)

	keys, err := store.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)

	// Re-entering ephemeral mode starts from an empty list.
	sess.Set(models.Identity{ID: "demo-2", Email: models.DemoEmail, Ephemeral: true})
	assert.Empty(t, repo.List(ctx))

	// Refresh is a no-op for ephemeral identities.
	_, err = repo.Add(ctx, lunch())
	require.NoError(t, err)
	repo.Refresh(ctx)
	assert.Len(t, repo.List(ctx), 1)
}

func TestExpensesRefreshRereadsBackend(t *testing.T) {
	ctx := context.Background()
	backend := memory.New(0)
	sess := session.New()
	sess.Set(u1)

	tab1 := storage.NewLocal(backend)
	tab2 := storage.NewLocal(backend)
	repo1 := NewExpenses(tab1, sess, nil, nil)
	repo2 := NewExpenses(tab2, sess, nil, nil)

	assert.Empty(t, repo1.List(ctx))
	_, err := repo2.Add(ctx, lunch())
	require.NoError(t, err)

	// Without a broadcaster the first tab keeps its cached copy.
	assert.Empty(t, repo1.List(ctx))
	repo1.Refresh(ctx)
	assert.Len(t, repo1.List(ctx), 1)
}

func TestExpensesWriteFailureKeepsMemoryValue(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocal(memory.New(32))
	sess := session.New()
	sess.Set(u1)
	repo := NewExpenses(store, sess, nil, nil)

	_, err := repo.Add(ctx, lunch())
	var writeErr *storage.WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.ErrorIs(t, err, storage.ErrQuotaExceeded)
	assert.Equal(t, "expenses_u1", writeErr.Key)

	assert.Len(t, repo.List(ctx), 1)
}

func TestExpensesPublishEvents(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newExpenses(t, u1)

	var kinds []events.Kind
	repo.bus.Subscribe(func(_ context.Context, e events.Event) {
		assert.Equal(t, "u1", e.Owner.ID)
		kinds = append(kinds, e.Kind)
	})

	added, err := repo.Add(ctx, lunch())
	require.NoError(t, err)
	category := "dining"
	_, err = repo.Update(ctx, added.ID, models.ExpensePatch{Category: &category})
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, added.ID))

	assert.Equal(t, []events.Kind{events.ExpenseAdded, events.ExpenseUpdated, events.ExpenseDeleted}, kinds)
}

func TestExpensesWatch(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newExpenses(t, u1)

	var changes []storage.Change
	unsubscribe := repo.Watch(func(c storage.Change) { changes = append(changes, c) })

	_, err := repo.Add(ctx, lunch())
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "expenses_u1", changes[0].Key)

	unsubscribe()
	_, err = repo.Add(ctx, lunch())
	require.NoError(t, err)
	assert.Len(t, changes, 1)
}

func TestExpensesSearch(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newExpenses(t, u1)

	for _, in := range []models.ExpenseInput{
		{Amount: 250, Category: "food", Description: "lunch", Date: "2024-03-15"},
		{Amount: 40, Category: "coffee", Description: "flat white", Date: "2024-03-16"},
		{Amount: 1200, Category: "rent"},
	} {
		_, err := repo.Add(ctx, in)
		require.NoError(t, err)
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "empty matches all", query: "", want: []string{"lunch", "flat white", ""}},
		{name: "amount", query: "amount > 100", want: []string{"lunch", ""}},
		{name: "category and amount", query: `category == "food" && amount >= 250`, want: []string{"lunch"}},
		{name: "contains", query: `description contains "white"`, want: []string{"flat white"}},
		{name: "date prefix", query: `date startsWith "2024-03"`, want: []string{"lunch", "flat white"}},
		{name: "no match", query: `category == "travel"`, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Search(ctx, tt.query)
			require.NoError(t, err)
			var descriptions []string
			for _, e := range got {
				descriptions = append(descriptions, e.Description)
			}
			assert.Equal(t, tt.want, descriptions)
		})
	}

	_, err := repo.Search(ctx, "amount +")
	assert.Error(t, err)
	_, err = repo.Search(ctx, "amount")
	assert.Error(t, err)
}

func TestExpensesSummary(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newExpenses(t, u1)

	_, err := repo.Add(ctx, models.ExpenseInput{Amount: 10.10, Category: "food", Date: "2024-03-15"})
	require.NoError(t, err)
	_, err = repo.Add(ctx, models.ExpenseInput{Amount: 0.20, Category: "food", Date: "2024-03-15"})
	require.NoError(t, err)

	s := repo.Summary(ctx, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, 10.30, s.Total)
	assert.Equal(t, 10.30, s.Today)
}

func TestExpensesAcceptMinutePrecisionDates(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newExpenses(t, u1)

	in := lunch()
	in.Date = "2024-03-01T12:00"
	added, err := repo.Add(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T12:00", added.Date)
	assert.Len(t, repo.List(ctx), 1)
}

func TestExpensesInvalidRecordDoesNotCostValidOnes(t *testing.T) {
	ctx := context.Background()
	repo, store, _ := newExpenses(t, u1)

	require.NoError(t, store.Put(ctx, "expenses_u1", []byte(`[
		{"id":"a","amount":1,"category":"food","ownerId":"u1"},
		{"id":"b","amount":2,"category":"food","date":"2024-03-01T12:00","ownerId":"u1"},
		{"id":"c","amount":3,"category":"food","date":"someday","ownerId":"u1"}
	]`)))

	list := repo.List(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	_, ok := repo.GetByID(ctx, "c")
	assert.False(t, ok)

	_, err := repo.Add(ctx, lunch())
	require.NoError(t, err)
	require.NoError(t, repo.DeleteBatch(ctx, []string{"a"}))

	stored, ok, err := storage.Load[[]models.Expense](ctx, store, "expenses_u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, stored, 3)
	assert.Equal(t, "b", stored[0].ID)
	assert.Equal(t, "c", stored[1].ID)
	assert.Equal(t, "someday", stored[1].Date)
	assert.Len(t, repo.List(ctx), 2)
}

func TestExpensesRefuseToOverwriteUnreadableList(t *testing.T) {
	ctx := context.Background()
	repo, store, _ := newExpenses(t, u1)

	garbage := []byte(`{"not":"a list"}`)
	require.NoError(t, store.Put(ctx, "expenses_u1", garbage))

	assert.Empty(t, repo.List(ctx))

	_, err := repo.Add(ctx, lunch())
	var decodeErr *storage.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.ErrorAs(t, repo.DeleteBatch(ctx, []string{"x"}), &decodeErr)

	data, ok, err := store.Raw(ctx, "expenses_u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, garbage, data)
}
