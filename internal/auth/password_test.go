package auth

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/mealsync/internal/storage/memory"
)

func newTestAuthenticator() *PasswordAuthenticator {
	return NewPasswordAuthenticator(NewKVUsers(memory.New(0)), WithCost(bcrypt.MinCost))
}

func TestSignUpConfirmSignIn(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator()

	user, code, err := a.SignUp(ctx, " Alice@Example.com ", "Alice", "correct horse")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("expected normalized email, got %q", user.Email)
	}
	if len(code) != 6 {
		t.Errorf("expected 6-digit code, got %q", code)
	}

	if _, err := a.SignIn(ctx, "alice@example.com", "correct horse"); !errors.Is(err, ErrNotConfirmed) {
		t.Errorf("expected ErrNotConfirmed before confirmation, got %v", err)
	}

	if err := a.ConfirmSignUp(ctx, "alice@example.com", "not-it"); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("expected ErrInvalidCode, got %v", err)
	}
	if err := a.ConfirmSignUp(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("ConfirmSignUp failed: %v", err)
	}

	signedIn, err := a.SignIn(ctx, "ALICE@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if signedIn.ID != user.ID {
		t.Errorf("expected user %s, got %s", user.ID, signedIn.ID)
	}
}

func TestSignUpValidation(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator()

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{name: "weak password", email: "a@example.com", password: "short", wantErr: ErrWeakPassword},
		{name: "duplicate email", email: "taken@example.com", password: "long enough", wantErr: ErrEmailExists},
	}

	if _, _, err := a.SignUp(ctx, "taken@example.com", "", "long enough"); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := a.SignUp(ctx, tt.email, "", tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator()

	_, code, err := a.SignUp(ctx, "bob@example.com", "Bob", "hunter2hunter2")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if err := a.ConfirmSignUp(ctx, "bob@example.com", code); err != nil {
		t.Fatalf("ConfirmSignUp failed: %v", err)
	}

	if _, err := a.SignIn(ctx, "bob@example.com", "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := a.SignIn(ctx, "nobody@example.com", "hunter2hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestForgotPassword(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator()

	if _, _, err := a.SignUp(ctx, "carol@example.com", "Carol", "old password"); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	if _, err := a.ForgotPassword(ctx, "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}

	code, err := a.ForgotPassword(ctx, "carol@example.com")
	if err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}

	if err := a.ConfirmForgotPassword(ctx, "carol@example.com", code, "short"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("expected ErrWeakPassword, got %v", err)
	}
	if err := a.ConfirmForgotPassword(ctx, "carol@example.com", "000000x", "new password"); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("expected ErrInvalidCode, got %v", err)
	}
	if err := a.ConfirmForgotPassword(ctx, "carol@example.com", code, "new password"); err != nil {
		t.Fatalf("ConfirmForgotPassword failed: %v", err)
	}

	if _, err := a.SignIn(ctx, "carol@example.com", "old password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected old password to be rejected, got %v", err)
	}
	if _, err := a.SignIn(ctx, "carol@example.com", "new password"); err != nil {
		t.Errorf("SignIn with new password failed: %v", err)
	}

	// The code is single use.
	if err := a.ConfirmForgotPassword(ctx, "carol@example.com", code, "another password"); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("expected reused code to be rejected, got %v", err)
	}
}
