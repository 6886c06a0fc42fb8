// Package auth is the authentication provider behind the identity adapter:
// account sign-up with confirmation, password sign-in and reset, and the
// session tokens that let a later process resume the signed-in identity.
package auth

import (
	"context"

	"github.com/mmynk/mealsync/internal/models"
)

// Authenticator defines the interface for authentication providers.
// The identity service depends only on this interface, so the password
// implementation can be swapped for a hosted provider without changing it.
//
// Confirmation and reset codes are returned to the caller rather than sent;
// delivering them (email, SMS) is the caller's concern.
type Authenticator interface {
	// SignUp creates an unconfirmed account and returns it together with the
	// confirmation code that must be presented to ConfirmSignUp.
	SignUp(ctx context.Context, email, displayName, password string) (*models.User, string, error)

	// ConfirmSignUp confirms the account when code matches.
	ConfirmSignUp(ctx context.Context, email, code string) error

	// SignIn verifies the credentials of a confirmed account.
	SignIn(ctx context.Context, email, password string) (*models.User, error)

	// ForgotPassword starts a password reset and returns the reset code.
	ForgotPassword(ctx context.Context, email string) (string, error)

	// ConfirmForgotPassword sets a new password when code matches the
	// pending reset code.
	ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error

	// ValidateCredential checks that a password meets the provider's rules.
	ValidateCredential(credential string) error
}
