package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmynk/mealsync/internal/models"
	"github.com/mmynk/mealsync/internal/namespace"
	"github.com/mmynk/mealsync/internal/storage"
)

// Settings stores the device-wide application and account settings. They
// are not per user.
type Settings struct {
	store  *storage.Local
	logger *slog.Logger
}

// NewSettings creates a settings repository.
func NewSettings(store *storage.Local, logger *slog.Logger) *Settings {
	if logger == nil {
		logger = slog.Default()
	}
	return &Settings{store: store, logger: logger}
}

// App returns the application settings, or the defaults when none are
// stored or the stored value is malformed.
func (r *Settings) App(ctx context.Context) models.AppSettings {
	return storage.Read(ctx, r.store, namespace.AppSettingsKey, models.DefaultAppSettings())
}

// SaveApp validates and stores the application settings.
func (r *Settings) SaveApp(ctx context.Context, s models.AppSettings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("save app settings: %w", err)
	}
	return storage.Write(ctx, r.store, namespace.AppSettingsKey, s)
}

// Account returns the account settings, or the defaults.
func (r *Settings) Account(ctx context.Context) models.AccountSettings {
	return storage.Read(ctx, r.store, namespace.AccountSettingsKey, models.DefaultAccountSettings())
}

// SaveAccount validates and stores the account settings.
func (r *Settings) SaveAccount(ctx context.Context, s models.AccountSettings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("save account settings: %w", err)
	}
	return storage.Write(ctx, r.store, namespace.AccountSettingsKey, s)
}

// Reset removes both settings records so the defaults apply again.
func (r *Settings) Reset(ctx context.Context) error {
	err := errors.Join(
		r.store.Remove(ctx, namespace.AppSettingsKey),
		r.store.Remove(ctx, namespace.AccountSettingsKey),
	)
	if err != nil {
		return fmt.Errorf("reset settings: %w", err)
	}
	r.logger.Info("Settings reset")
	return nil
}
