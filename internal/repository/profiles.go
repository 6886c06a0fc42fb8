package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/mealsync/internal/models"
	"github.com/mmynk/mealsync/internal/namespace"
	"github.com/mmynk/mealsync/internal/session"
	"github.com/mmynk/mealsync/internal/storage"
)

// Profiles is the profile repository. Every operation names the owning
// email explicitly; the avatar and cover image live under their own keys.
type Profiles struct {
	store   *storage.Local
	session *session.Session
	logger  *slog.Logger
	now     func() time.Time
}

// NewProfiles creates a profile repository. sess may be nil when ephemeral
// identities never reach it.
func NewProfiles(store *storage.Local, sess *session.Session, logger *slog.Logger) *Profiles {
	if logger == nil {
		logger = slog.Default()
	}
	return &Profiles{store: store, session: sess, logger: logger, now: time.Now}
}

func (r *Profiles) target(email string) (string, *storage.Local, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return "", nil, models.ErrIdentityRequired
	}
	return email, storeFor(r.session, r.store, email), nil
}

// Load returns email's profile with its avatar and cover merged in. The
// second result is false when no valid profile is stored.
func (r *Profiles) Load(ctx context.Context, email string) (*models.Profile, bool) {
	email, store, err := r.target(email)
	if err != nil {
		return nil, false
	}

	p, ok, err := storage.Load[models.Profile](ctx, store, namespace.ForEmail(namespace.Profile, email))
	if err != nil {
		r.logger.Warn("Discarding malformed profile", "email", email, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	p.Email = email
	if avatar, ok := r.image(ctx, store, namespace.Avatar, email); ok {
		p.Avatar = avatar
	}
	if cover, ok := r.image(ctx, store, namespace.Cover, email); ok {
		p.CoverImage = cover
	}
	return &p, true
}

// Save stores p as email's profile. It stamps p's Email and LastUpdated,
// assigns an ID when p has none, and moves the avatar and cover images to
// their own keys. An empty image removes the stored one, so Load returns
// exactly what was saved. p is updated in place with the stamped fields.
func (r *Profiles) Save(ctx context.Context, email string, p *models.Profile) error {
	email, store, err := r.target(email)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.Email = email
	p.LastUpdated = r.now().UTC().Format(time.RFC3339)

	record := p.Clone()
	record.Avatar = ""
	record.CoverImage = ""
	if err := storage.Write(ctx, store, namespace.ForEmail(namespace.Profile, email), *record); err != nil {
		return err
	}
	images := []struct {
		kind    namespace.Kind
		payload string
	}{
		{namespace.Avatar, p.Avatar},
		{namespace.Cover, p.CoverImage},
	}
	for _, img := range images {
		key := namespace.ForEmail(img.kind, email)
		switch {
		case img.payload != "":
			err = storage.Write(ctx, store, key, img.payload)
		case store.Has(ctx, key):
			err = store.Remove(ctx, key)
		}
		if err != nil {
			return err
		}
	}

	r.logger.Debug("Profile saved", "profile_id", p.ID, "email", email)
	return nil
}

// GetOrCreate returns email's profile, creating and persisting a default one
// when none exists.
func (r *Profiles) GetOrCreate(ctx context.Context, email string) (*models.Profile, error) {
	if p, ok := r.Load(ctx, email); ok {
		return p, nil
	}

	email = models.NormalizeEmail(email)
	name, _, _ := strings.Cut(email, "@")
	p := &models.Profile{
		ID:          uuid.New().String(),
		Name:        name,
		Email:       email,
		Interests:   []string{},
		SocialLinks: map[string]string{},
	}
	if err := r.Save(ctx, email, p); err != nil {
		return nil, err
	}

	r.logger.Info("Profile created", "profile_id", p.ID, "email", email)
	return p, nil
}

// Update merges patch into email's profile, creating the profile first when
// needed. Setting Avatar or CoverImage to the empty string removes it.
func (r *Profiles) Update(ctx context.Context, email string, patch models.ProfilePatch) (*models.Profile, error) {
	p, err := r.GetOrCreate(ctx, email)
	if err != nil {
		return nil, err
	}

	patch.Apply(p)
	if err := r.Save(ctx, email, p); err != nil {
		return nil, err
	}
	return p, nil
}

// SaveAvatar stores an encoded avatar image for email.
func (r *Profiles) SaveAvatar(ctx context.Context, email, payload string) error {
	return r.saveImage(ctx, namespace.Avatar, email, payload)
}

// LoadAvatar returns email's avatar, if any.
func (r *Profiles) LoadAvatar(ctx context.Context, email string) (string, bool) {
	return r.loadImage(ctx, namespace.Avatar, email)
}

// RemoveAvatar deletes email's avatar.
func (r *Profiles) RemoveAvatar(ctx context.Context, email string) error {
	return r.removeImage(ctx, namespace.Avatar, email)
}

// SaveCover stores an encoded cover image for email.
func (r *Profiles) SaveCover(ctx context.Context, email, payload string) error {
	return r.saveImage(ctx, namespace.Cover, email, payload)
}

// LoadCover returns email's cover image, if any.
func (r *Profiles) LoadCover(ctx context.Context, email string) (string, bool) {
	return r.loadImage(ctx, namespace.Cover, email)
}

// RemoveCover deletes email's cover image.
func (r *Profiles) RemoveCover(ctx context.Context, email string) error {
	return r.removeImage(ctx, namespace.Cover, email)
}

// ClearUserData removes email's profile, avatar, cover image and
// notifications, in that order. Every removal is attempted; the failures are
// returned joined.
func (r *Profiles) ClearUserData(ctx context.Context, email string) error {
	email, store, err := r.target(email)
	if err != nil {
		return fmt.Errorf("clear user data: %w", err)
	}

	var errs []error
	for _, kind := range []namespace.Kind{namespace.Profile, namespace.Avatar, namespace.Cover, namespace.Notifications} {
		if err := store.Remove(ctx, namespace.ForEmail(kind, email)); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", kind, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		r.logger.Error("Failed to clear user data", "email", email, "error", err)
		return fmt.Errorf("clear user data for %s: %w", email, err)
	}

	r.logger.Info("User data cleared", "email", email)
	return nil
}

func (r *Profiles) image(ctx context.Context, store *storage.Local, kind namespace.Kind, email string) (string, bool) {
	payload := storage.Read(ctx, store, namespace.ForEmail(kind, email), "")
	return payload, payload != ""
}

func (r *Profiles) saveImage(ctx context.Context, kind namespace.Kind, email, payload string) error {
	email, store, err := r.target(email)
	if err != nil {
		return fmt.Errorf("save %s: %w", kind, err)
	}
	if payload == "" {
		return fmt.Errorf("save %s: empty image", kind)
	}
	return storage.Write(ctx, store, namespace.ForEmail(kind, email), payload)
}

func (r *Profiles) loadImage(ctx context.Context, kind namespace.Kind, email string) (string, bool) {
	email, store, err := r.target(email)
	if err != nil {
		return "", false
	}
	return r.image(ctx, store, kind, email)
}

func (r *Profiles) removeImage(ctx context.Context, kind namespace.Kind, email string) error {
	email, store, err := r.target(email)
	if err != nil {
		return fmt.Errorf("remove %s: %w", kind, err)
	}
	return store.Remove(ctx, namespace.ForEmail(kind, email))
}
