// Package service adapts the authentication provider to the session: it
// decides which identity is current and therefore which namespace every
// repository works in.
package service

import (
	"context"
	"log/slog"

	"github.com/rs/xid"

	"github.com/mmynk/mealsync/internal/auth"
	"github.com/mmynk/mealsync/internal/models"
	"github.com/mmynk/mealsync/internal/namespace"
	"github.com/mmynk/mealsync/internal/repository"
	"github.com/mmynk/mealsync/internal/session"
	"github.com/mmynk/mealsync/internal/storage"
)

// sessionRecord is persisted under namespace.AuthSessionKey.
type sessionRecord struct {
	// Token resumes the signed-in identity in a later process.
	Token string `json:"token,omitempty"`

	// LastEmail is the last persistent identity seen on this device. It
	// survives sign-out so that the next, different account can clear the
	// previous account's data.
	LastEmail string `json:"lastEmail,omitempty"`
}

// IdentityService is the identity provider adapter.
type IdentityService struct {
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
	session       *session.Session
	store         *storage.Local
	profiles      *repository.Profiles
	migrator      *namespace.Migrator
	clearPrevious bool
	logger        *slog.Logger
}

// Option configures an IdentityService.
type Option func(*IdentityService)

// WithMigrator runs m whenever a persistent identity is resolved.
func WithMigrator(m *namespace.Migrator) Option {
	return func(s *IdentityService) { s.migrator = m }
}

// WithClearPreviousUserData controls whether the previous account's profile
// and notifications are removed when a different account signs in.
// Default true.
func WithClearPreviousUserData(clear bool) Option {
	return func(s *IdentityService) { s.clearPrevious = clear }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *IdentityService) { s.logger = logger }
}

// NewIdentityService creates an identity service. store is the persistent
// store holding the session record; profiles is used for previous-user
// cleanup.
func NewIdentityService(
	authenticator auth.Authenticator,
	jwtManager *auth.JWTManager,
	sess *session.Session,
	store *storage.Local,
	profiles *repository.Profiles,
	opts ...Option,
) *IdentityService {
	s := &IdentityService{
		authenticator: authenticator,
		jwtManager:    jwtManager,
		session:       sess,
		store:         store,
		profiles:      profiles,
		clearPrevious: true,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the current identity, which may be zero.
func (s *IdentityService) Current() models.Identity {
	return s.session.Identity()
}

// SignUp creates an unconfirmed account and returns its confirmation code.
func (s *IdentityService) SignUp(ctx context.Context, email, displayName, password string) (*models.User, string, error) {
	s.logger.Info("Sign-up request", "email", email)
	user, code, err := s.authenticator.SignUp(ctx, email, displayName, password)
	if err != nil {
		s.logger.Warn("Sign-up failed", "email", email, "error", err)
		return nil, "", err
	}
	return user, code, nil
}

// ConfirmSignUp confirms a new account.
func (s *IdentityService) ConfirmSignUp(ctx context.Context, email, code string) error {
	if err := s.authenticator.ConfirmSignUp(ctx, email, code); err != nil {
		s.logger.Warn("Confirmation failed", "email", email, "error", err)
		return err
	}
	return nil
}

// ForgotPassword starts a password reset and returns the reset code.
func (s *IdentityService) ForgotPassword(ctx context.Context, email string) (string, error) {
	return s.authenticator.ForgotPassword(ctx, email)
}

// ConfirmForgotPassword completes a password reset.
func (s *IdentityService) ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error {
	return s.authenticator.ConfirmForgotPassword(ctx, email, code, newPassword)
}

// SignIn authenticates a persistent account and makes it current.
func (s *IdentityService) SignIn(ctx context.Context, email, password string) (models.Identity, error) {
	s.logger.Info("Sign-in request", "email", email)

	user, err := s.authenticator.SignIn(ctx, email, password)
	if err != nil {
		s.logger.Warn("Sign-in failed", "email", email, "error", err)
		return models.Identity{}, err
	}

	ident := user.Identity()
	token, err := s.jwtManager.Generate(ident)
	if err != nil {
		s.logger.Error("Failed to generate token", "user_id", user.ID, "error", err)
		return models.Identity{}, err
	}

	s.resolve(ctx, ident, token)
	s.logger.Info("User signed in", "user_id", ident.ID, "email", ident.Email)
	return ident, nil
}

// SignInEphemeral starts a demo session. Its data lives only in memory and
// starts empty every time.
func (s *IdentityService) SignInEphemeral(ctx context.Context) models.Identity {
	ident := models.Identity{
		ID:        "demo-" + xid.New().String(),
		Email:     models.DemoEmail,
		Ephemeral: true,
	}
	s.resolve(ctx, ident, "")
	s.logger.Info("Demo session started", "user_id", ident.ID)
	return ident
}

// SignOut clears the current identity and any ephemeral data.
func (s *IdentityService) SignOut(ctx context.Context) {
	prev := s.session.Identity()
	s.session.Clear()

	rec := s.loadRecord(ctx)
	if prev.Persistent() {
		rec.LastEmail = prev.NormalizedEmail()
	}
	rec.Token = ""
	s.saveRecord(ctx, rec)

	s.logger.Info("User signed out", "user_id", prev.ID, "ephemeral", prev.Ephemeral)
}

// Restore resumes the identity of the persisted session token. It reports
// false when there is no usable token.
func (s *IdentityService) Restore(ctx context.Context) (models.Identity, bool) {
	rec := s.loadRecord(ctx)
	if rec.Token == "" {
		return models.Identity{}, false
	}

	claims, err := s.jwtManager.Validate(rec.Token)
	if err != nil {
		s.logger.Warn("Discarding stored session", "error", err)
		rec.Token = ""
		s.saveRecord(ctx, rec)
		return models.Identity{}, false
	}

	ident := claims.Identity()
	if !ident.Persistent() {
		return models.Identity{}, false
	}
	s.resolve(ctx, ident, rec.Token)
	s.logger.Info("Session restored", "user_id", ident.ID, "email", ident.Email)
	return ident, true
}

// resolve makes ident current. For a persistent identity it first clears the
// previous account's data when the email changed, then migrates legacy data
// and records the session.
func (s *IdentityService) resolve(ctx context.Context, ident models.Identity, token string) {
	prev := s.session.Identity()
	rec := s.loadRecord(ctx)
	lastEmail := rec.LastEmail
	if prev.Persistent() {
		lastEmail = prev.NormalizedEmail()
	}

	if !ident.Persistent() {
		s.session.Set(ident)
		if prev.Persistent() {
			rec.LastEmail = lastEmail
			rec.Token = ""
			s.saveRecord(ctx, rec)
		}
		return
	}

	email := ident.NormalizedEmail()
	if s.clearPrevious && s.profiles != nil && lastEmail != "" && email != "" && lastEmail != email {
		if err := s.profiles.ClearUserData(ctx, lastEmail); err != nil {
			s.logger.Warn("Previous user data not fully cleared", "email", lastEmail, "error", err)
		}
	}

	s.session.Set(ident)

	if s.migrator != nil {
		res, err := s.migrator.Migrate(ctx, ident)
		if err != nil {
			s.logger.Error("Legacy migration failed", "user_id", ident.ID, "error", err)
		} else if res != (namespace.Result{}) {
			s.logger.Info("Legacy data migrated",
				"user_id", ident.ID,
				"expenses", res.Expenses,
				"notifications", res.Notifications,
				"profile", res.Profile,
			)
		}
	}

	if email != "" {
		rec.LastEmail = email
	}
	rec.Token = token
	s.saveRecord(ctx, rec)
}

func (s *IdentityService) loadRecord(ctx context.Context) sessionRecord {
	return storage.Read(ctx, s.store, namespace.AuthSessionKey, sessionRecord{})
}

func (s *IdentityService) saveRecord(ctx context.Context, rec sessionRecord) {
	if err := storage.Write(ctx, s.store, namespace.AuthSessionKey, rec); err != nil {
		s.logger.Warn("Failed to persist session", "error", err)
	}
}
