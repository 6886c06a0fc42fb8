package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/mealsync/internal/models"
	"github.com/mmynk/mealsync/internal/namespace"
	"github.com/mmynk/mealsync/internal/storage"
	"github.com/mmynk/mealsync/internal/storage/memory"
)

func TestSettings(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocal(memory.New(0))
	repo := NewSettings(store, nil)

	assert.Equal(t, models.DefaultAppSettings(), repo.App(ctx))
	assert.Equal(t, models.DefaultAccountSettings(), repo.Account(ctx))

	app := repo.App(ctx)
	app.Currency = "EUR"
	app.Theme = "dark"
	require.NoError(t, repo.SaveApp(ctx, app))
	assert.Equal(t, app, repo.App(ctx))

	app.Theme = "neon"
	assert.Error(t, repo.SaveApp(ctx, app))
	assert.Equal(t, "dark", repo.App(ctx).Theme)

	account := repo.Account(ctx)
	account.TwoFactorEnabled = true
	require.NoError(t, repo.SaveAccount(ctx, account))
	assert.True(t, repo.Account(ctx).TwoFactorEnabled)

	account.SessionTimeoutMinutes = 0
	assert.Error(t, repo.SaveAccount(ctx, account))

	require.NoError(t, repo.Reset(ctx))
	assert.Equal(t, models.DefaultAppSettings(), repo.App(ctx))
	assert.Equal(t, models.DefaultAccountSettings(), repo.Account(ctx))
}

func TestSettingsMalformedFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocal(memory.New(0))
	repo := NewSettings(store, nil)

	require.NoError(t, store.Put(ctx, namespace.AppSettingsKey, []byte(`{"theme":"neon","currency":"USD"}`)))
	assert.Equal(t, models.DefaultAppSettings(), repo.App(ctx))
}
