package repository

import (
	"context"
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

func newNotifications(t *testing.T, ident models.Identity, opts ...namespace.MigratorOption) (*Notifications, *storage.Local, *session.Session) {
	t.Helper()
	store := storage.NewLocal(memory.New(0))
	sess := session.New()
	sess.Set(ident)
	repo := NewNotifications(store, sess, namespace.NewMigrator(store, opts...), nil)
	repo.now = func() time.Time { return time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC) }
	return repo, store, sess
}

func TestNotificationsAddAndList(t *testing.T) {
	ctx := context.Background()
	repo, store, _ := newNotifications(t, u1)

	first, err := repo.Add(ctx, models.NotificationInput{Title: "Welcome", Message: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, models.NotificationSystem, first.Category)
	assert.Equal(t, "2024-03-15T09:30:00Z", first.Timestamp)
	assert.Equal(t, "u1@example.com", first.OwnerEmail)
	assert.False(t, first.Read)

	second, err := repo.Add(ctx, models.NotificationInput{Title: "Paid", Category: models.NotificationPayment})
	require.NoError(t, err)

	list := repo.List(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, 2, repo.UnreadCount(ctx))

	assert.True(t, store.Has(ctx, "notifications-u1@example.com"))

	_, err = repo.Add(ctx, models.NotificationInput{Title: "x", Category: "weather"})
	assert.Error(t, err)
}

func TestNotificationsRequireIdentity(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newNotifications(t, models.Identity{})

	_, err := repo.Add(ctx, models.NotificationInput{Title: "x"})
	assert.ErrorIs(t, err, models.ErrIdentityRequired)
	assert.ErrorIs(t, repo.MarkAllRead(ctx), models.ErrIdentityRequired)
	assert.Nil(t, repo.List(ctx))
	assert.Zero(t, repo.UnreadCount(ctx))
}

func TestNotificationsReadState(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newNotifications(t, u1)

	a, err := repo.Add(ctx, models.NotificationInput{Title: "a"})
	require.NoError(t, err)
	_, err = repo.Add(ctx, models.NotificationInput{Title: "b"})
	require.NoError(t, err)
	_, err = repo.Add(ctx, models.NotificationInput{Title: "c"})
	require.NoError(t, err)

	require.NoError(t, repo.MarkRead(ctx, a.ID))
	assert.Equal(t, 2, repo.UnreadCount(ctx))
	require.NoError(t, repo.MarkRead(ctx, a.ID))
	assert.ErrorIs(t, repo.MarkRead(ctx, "missing"), models.ErrNotFound)

	removed, err := repo.DeleteAllRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Len(t, repo.List(ctx), 2)

	require.NoError(t, repo.MarkAllRead(ctx))
	assert.Zero(t, repo.UnreadCount(ctx))

	removed, err = repo.DeleteAllRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Empty(t, repo.List(ctx))
}

func TestNotificationsDelete(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newNotifications(t, u1)

	n, err := repo.Add(ctx, models.NotificationInput{Title: "a"})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, n.ID))
	assert.Empty(t, repo.List(ctx))
	assert.ErrorIs(t, repo.Delete(ctx, n.ID), models.ErrNotFound)
}

func TestNotificationsFilterByOwner(t *testing.T) {
	ctx := context.Background()
	repo, store, sess := newNotifications(t, u1)
	require.NoError(t, storage.Write(ctx, store, "notifications-u1@example.com", models.Notifications{
		{ID: "mine", Title: "a", Category: models.NotificationSystem, OwnerEmail: "U1@example.com"},
		{ID: "legacy", Title: "b", Category: models.NotificationSystem},
		{ID: "theirs", Title: "c", Category: models.NotificationSystem, OwnerEmail: "u2@example.com"},
	}))

	var ids []string
	for _, n := range repo.ListForUser(ctx, " U1@Example.com ") {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"mine", "legacy"}, ids)

	sess.Set(u2)
	assert.Empty(t, repo.List(ctx))
	assert.Empty(t, repo.ListForUser(ctx, ""))
}

func TestNotificationsMigrateLegacy(t *testing.T) {
	tests := []struct {
		name       string
		opts       []namespace.MigratorOption
		keepLegacy bool
	}{
		{name: "preserve legacy", keepLegacy: true},
		{name: "delete legacy", opts: []namespace.MigratorOption{namespace.WithPolicy(namespace.DeleteLegacy)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			repo, store, _ := newNotifications(t, u1, tt.opts...)
			require.NoError(t, storage.Write(ctx, store, "notifications", models.Notifications{
				{ID: "n1", Title: "old", Category: models.NotificationGroup},
			}))

			migrated, err := repo.MigrateLegacy(ctx, "u1@example.com")
			require.NoError(t, err)
			assert.True(t, migrated)

			list := repo.List(ctx)
			require.Len(t, list, 1)
			assert.Equal(t, "u1@example.com", list[0].OwnerEmail)
			assert.Equal(t, tt.keepLegacy, store.Has(ctx, "notifications"))

			// A second run leaves the per-user key alone.
			migrated, err = repo.MigrateLegacy(ctx, "u1@example.com")
			require.NoError(t, err)
			assert.False(t, migrated)
		})
	}
}

func TestNotificationsEphemeral(t *testing.T) {
	ctx := context.Background()
	repo, store, _ := newNotifications(t, demo)

	_, err := repo.Add(ctx, models.NotificationInput{Title: "demo"})
	require.NoError(t, err)
	assert.Len(t, repo.List(ctx), 1)
	assert.Len(t, repo.ListForUser(ctx, models.DemoEmail), 1)
	assert.False(t, store.Has(ctx, "notifications-"+models.DemoEmail))
}

func TestNotifyOnExpense(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocal(memory.New(0))
	sess := session.New()
	sess.Set(u1)
	bus := events.NewBus(nil)

	expenses := NewExpenses(store, sess, bus, nil)
	notifications := NewNotifications(store, sess, nil, nil)
	settings := NewSettings(store, nil)
	unsubscribe := NotifyOnExpense(bus, notifications, settings)
	defer unsubscribe()

	added, err := expenses.Add(ctx, lunch())
	require.NoError(t, err)

	list := notifications.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, models.NotificationExpense, list[0].Category)
	assert.Equal(t, "Expense added", list[0].Title)
	assert.Equal(t, "lunch: 250.00 (food)", list[0].Message)

	require.NoError(t, expenses.DeleteBatch(ctx, []string{added.ID}))
	list = notifications.List(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, "1 expenses removed", list[0].Message)

	app := settings.App(ctx)
	app.NotificationsEnabled = false
	require.NoError(t, settings.SaveApp(ctx, app))
	_, err = expenses.Add(ctx, lunch())
	require.NoError(t, err)
	assert.Len(t, notifications.List(ctx), 2)
}
