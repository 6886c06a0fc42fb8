package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/mealsync/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrEmailExists        = errors.New("email already registered")
	ErrUserNotFound       = errors.New("no account for that email")
	ErrNotConfirmed       = errors.New("account not confirmed")
	ErrInvalidCode        = errors.New("invalid or expired code")
)

// Ensure PasswordAuthenticator implements Authenticator
var _ Authenticator = (*PasswordAuthenticator)(nil)

// UserStorage defines the interface for user persistence operations.
// Lookups return (nil, nil) when the user does not exist.
type UserStorage interface {
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// PasswordAuthenticator implements password-based authentication using bcrypt.
type PasswordAuthenticator struct {
	storage UserStorage
	cost    int
	logger  *slog.Logger
}

// PasswordOption configures a PasswordAuthenticator.
type PasswordOption func(*PasswordAuthenticator)

// WithCost sets the bcrypt cost.
func WithCost(cost int) PasswordOption {
	return func(a *PasswordAuthenticator) { a.cost = cost }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PasswordOption {
	return func(a *PasswordAuthenticator) { a.logger = logger }
}

// NewPasswordAuthenticator creates a new password-based authenticator.
func NewPasswordAuthenticator(storage UserStorage, opts ...PasswordOption) *PasswordAuthenticator {
	a := &PasswordAuthenticator{
		storage: storage,
		cost:    bcrypt.DefaultCost,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ValidateCredential checks if the password meets minimum requirements.
func (a *PasswordAuthenticator) ValidateCredential(credential string) error {
	if len(credential) < 8 {
		return ErrWeakPassword
	}
	return nil
}

// SignUp creates an unconfirmed user with a hashed password.
func (a *PasswordAuthenticator) SignUp(ctx context.Context, email, displayName, password string) (*models.User, string, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, "", fmt.Errorf("sign up: %w", models.ErrIdentityRequired)
	}
	if err := a.ValidateCredential(password); err != nil {
		return nil, "", err
	}

	existing, err := a.storage.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil {
		return nil, "", ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}
	code, err := newCode()
	if err != nil {
		return nil, "", err
	}

	user := models.NewUser(email, displayName, string(hash))
	user.ConfirmationCode = code
	if err := a.storage.CreateUser(ctx, user); err != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	a.logger.Info("User signed up", "user_id", user.ID, "email", email)
	return user, code, nil
}

// ConfirmSignUp confirms the user's account.
func (a *PasswordAuthenticator) ConfirmSignUp(ctx context.Context, email, code string) error {
	user, err := a.lookup(ctx, email)
	if err != nil {
		return err
	}
	if user.Confirmed {
		return nil
	}
	if !codesMatch(user.ConfirmationCode, code) {
		return ErrInvalidCode
	}

	user.Confirmed = true
	user.ConfirmationCode = ""
	user.UpdatedAt = time.Now().Unix()
	if err := a.storage.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to confirm user: %w", err)
	}

	a.logger.Info("User confirmed", "user_id", user.ID)
	return nil
}

// SignIn verifies the email and password, returning the user if valid.
func (a *PasswordAuthenticator) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	user, err := a.storage.GetUserByEmail(ctx, models.NormalizeEmail(email))
	if err != nil || user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Confirmed {
		return nil, ErrNotConfirmed
	}
	return user, nil
}

// ForgotPassword issues a reset code for the account.
func (a *PasswordAuthenticator) ForgotPassword(ctx context.Context, email string) (string, error) {
	user, err := a.lookup(ctx, email)
	if err != nil {
		return "", err
	}

	code, err := newCode()
	if err != nil {
		return "", err
	}
	user.ResetCode = code
	user.UpdatedAt = time.Now().Unix()
	if err := a.storage.UpdateUser(ctx, user); err != nil {
		return "", fmt.Errorf("failed to store reset code: %w", err)
	}

	a.logger.Info("Password reset requested", "user_id", user.ID)
	return code, nil
}

// ConfirmForgotPassword replaces the password when the reset code matches.
// A successful reset also confirms the account.
func (a *PasswordAuthenticator) ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error {
	if err := a.ValidateCredential(newPassword); err != nil {
		return err
	}
	user, err := a.lookup(ctx, email)
	if err != nil {
		return err
	}
	if !codesMatch(user.ResetCode, code) {
		return ErrInvalidCode
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), a.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	user.ResetCode = ""
	user.Confirmed = true
	user.ConfirmationCode = ""
	user.UpdatedAt = time.Now().Unix()
	if err := a.storage.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	a.logger.Info("Password reset", "user_id", user.ID)
	return nil
}

func (a *PasswordAuthenticator) lookup(ctx context.Context, email string) (*models.User, error) {
	user, err := a.storage.GetUserByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// newCode returns a random 6-digit code.
func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func codesMatch(want, got string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
