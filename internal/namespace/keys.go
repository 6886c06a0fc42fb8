// Package namespace maps entity kinds and identities to storage keys and
// migrates data written before keys were per-user.
package namespace

import (
	"fmt"

	"github.com/mmynk/mealsync/internal/models"
)

// Kind is a per-user entity stored under its own key.
type Kind string

const (
	Expenses      Kind = "expenses"
	Notifications Kind = "notifications"
	Profile       Kind = "user-profile"
	Avatar        Kind = "user-avatar"
	Cover         Kind = "user-cover"
)

// Global keys, shared by every identity on the device.
const (
	TempExpensesKey    = "expenses_temp"
	AppSettingsKey     = "app-settings"
	AccountSettingsKey = "account-settings"
	AuthSessionKey     = "auth-session"
)

// Key returns the storage key for kind owned by ident.
//
// Expenses are keyed by identity ID and fall back to TempExpensesKey when no
// identity is resolved. Every other kind is keyed by normalized email, falling
// back to the ID when the email is unknown. Display names are never used.
func Key(kind Kind, ident models.Identity) (string, error) {
	if kind == Expenses {
		switch {
		case ident.ID != "":
			return "expenses_" + ident.ID, nil
		case ident.Email != "":
			return "expenses_" + ident.NormalizedEmail(), nil
		default:
			return TempExpensesKey, nil
		}
	}

	owner := ident.NormalizedEmail()
	if owner == "" {
		owner = ident.ID
	}
	if owner == "" {
		return "", fmt.Errorf("key for %s: %w", kind, models.ErrIdentityRequired)
	}
	return ForEmail(kind, owner), nil
}

// ForEmail returns the key for an email-scoped kind.
func ForEmail(kind Kind, email string) string {
	return string(kind) + "-" + models.NormalizeEmail(email)
}

// LegacyKeys returns the pre-namespacing keys that may hold data for kind,
// in the order they are merged during migration.
func LegacyKeys(kind Kind) []string {
	switch kind {
	case Expenses:
		return []string{"expenses", TempExpensesKey}
	case Notifications:
		return []string{"notifications"}
	case Profile:
		return []string{"user-profile"}
	}
	return nil
}
