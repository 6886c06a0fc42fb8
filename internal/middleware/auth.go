package middleware

import (
	"context"
	"fmt"

	"github.com/mmynk/mealsync/internal/models"
	"github.com/mmynk/mealsync/internal/session"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// IdentityKey is the context key for the identity a command runs as.
const IdentityKey contextKey = "identity"

// WithIdentity returns a context carrying ident.
func WithIdentity(ctx context.Context, ident models.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, ident)
}

// GetIdentity extracts the identity from the context.
// Returns the zero identity if not found.
func GetIdentity(ctx context.Context) models.Identity {
	ident, _ := ctx.Value(IdentityKey).(models.Identity)
	return ident
}

// GetUserID extracts the user ID from the context.
// Returns empty string if not found.
func GetUserID(ctx context.Context) string {
	return GetIdentity(ctx).ID
}

// GetEmail extracts the normalized user email from the context.
// Returns empty string if not found.
func GetEmail(ctx context.Context) string {
	return GetIdentity(ctx).NormalizedEmail()
}

// RequireIdentity returns a middleware that fails with
// models.ErrIdentityRequired unless the session has an identity, and adds
// that identity to the context.
func RequireIdentity(sess *session.Session) Middleware {
	return func(name string, next Handler) Handler {
		return func(ctx context.Context, args []string) error {
			ident := sess.Identity()
			if ident.IsZero() {
				return fmt.Errorf("%s: sign in or start a demo first: %w", name, models.ErrIdentityRequired)
			}
			return next(WithIdentity(ctx, ident), args)
		}
	}
}

// OptionalIdentity returns a middleware that adds the session's identity to
// the context when there is one.
func OptionalIdentity(sess *session.Session) Middleware {
	return func(name string, next Handler) Handler {
		return func(ctx context.Context, args []string) error {
			if ident := sess.Identity(); !ident.IsZero() {
				ctx = WithIdentity(ctx, ident)
			}
			return next(ctx, args)
		}
	}
}
