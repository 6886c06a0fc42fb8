package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mmynk/mealsync/internal/models"
	"github.com/mmynk/mealsync/internal/namespace"
	"github.com/mmynk/mealsync/internal/session"
	"github.com/mmynk/mealsync/internal/storage"
)

// Notifications is the notification repository. Notifications are stored
// newest first under the owner's email.
type Notifications struct {
	store    *storage.Local
	session  *session.Session
	migrator *namespace.Migrator
	logger   *slog.Logger
	now      func() time.Time
}

// NewNotifications creates a notification repository. migrator may be nil,
// in which case MigrateLegacy reports nothing migrated.
func NewNotifications(store *storage.Local, sess *session.Session, migrator *namespace.Migrator, logger *slog.Logger) *Notifications {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifications{
		store:    store,
		session:  sess,
		migrator: migrator,
		logger:   logger,
		now:      time.Now,
	}
}

// current returns the current owner's email and store.
func (r *Notifications) current() (string, *storage.Local, error) {
	ident := r.session.Identity()
	if ident.IsZero() {
		return "", nil, models.ErrIdentityRequired
	}
	email := ownerEmail(ident)
	return email, storeFor(r.session, r.store, email), nil
}

// load reads email's notifications, keeping only those it owns.
func (r *Notifications) load(ctx context.Context, store *storage.Local, email string) models.Notifications {
	all := storage.Read[models.Notifications](ctx, store, namespace.ForEmail(namespace.Notifications, email), nil)
	owned := make(models.Notifications, 0, len(all))
	for _, n := range all {
		if n.OwnerEmail == "" || models.NormalizeEmail(n.OwnerEmail) == email {
			owned = append(owned, n)
		}
	}
	return owned
}

func (r *Notifications) save(ctx context.Context, store *storage.Local, email string, list models.Notifications) error {
	return storage.Write(ctx, store, namespace.ForEmail(namespace.Notifications, email), list)
}

// Add creates an unread notification for the current identity. An empty
// category defaults to system.
func (r *Notifications) Add(ctx context.Context, in models.NotificationInput) (*models.Notification, error) {
	email, store, err := r.current()
	if err != nil {
		return nil, fmt.Errorf("add notification: %w", err)
	}
	if in.Category == "" {
		in.Category = models.NotificationSystem
	}
	if !in.Category.Valid() {
		return nil, fmt.Errorf("add notification: unknown category %q", in.Category)
	}

	n := models.Notification{
		ID:         ulid.Make().String(),
		Title:      in.Title,
		Message:    in.Message,
		Timestamp:  r.now().UTC().Format(time.RFC3339),
		Category:   in.Category,
		OwnerEmail: email,
	}
	list := append(models.Notifications{n}, r.load(ctx, store, email)...)
	if err := r.save(ctx, store, email, list); err != nil {
		return nil, err
	}

	r.logger.Debug("Notification added", "notification_id", n.ID, "owner", email, "category", n.Category)
	return &n, nil
}

// MarkRead marks one notification as read.
func (r *Notifications) MarkRead(ctx context.Context, id string) error {
	email, store, err := r.current()
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}

	list := r.load(ctx, store, email)
	for i := range list {
		if list[i].ID == id {
			if list[i].Read {
				return nil
			}
			list[i].Read = true
			return r.save(ctx, store, email, list)
		}
	}
	return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
}

// MarkAllRead marks every notification of the current identity as read.
func (r *Notifications) MarkAllRead(ctx context.Context) error {
	email, store, err := r.current()
	if err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}

	list := r.load(ctx, store, email)
	changed := false
	for i := range list {
		if !list[i].Read {
			list[i].Read = true
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return r.save(ctx, store, email, list)
}

// Delete removes one notification.
func (r *Notifications) Delete(ctx context.Context, id string) error {
	email, store, err := r.current()
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}

	list := r.load(ctx, store, email)
	for i := range list {
		if list[i].ID == id {
			list = append(list[:i], list[i+1:]...)
			return r.save(ctx, store, email, list)
		}
	}
	return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
}

// DeleteAllRead removes every read notification and returns how many were
// removed.
func (r *Notifications) DeleteAllRead(ctx context.Context) (int, error) {
	email, store, err := r.current()
	if err != nil {
		return 0, fmt.Errorf("delete read notifications: %w", err)
	}

	list := r.load(ctx, store, email)
	kept := make(models.Notifications, 0, len(list))
	for _, n := range list {
		if !n.Read {
			kept = append(kept, n)
		}
	}
	removed := len(list) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := r.save(ctx, store, email, kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// ListForUser returns the notifications owned by email, newest first.
func (r *Notifications) ListForUser(ctx context.Context, email string) []models.Notification {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil
	}
	return r.load(ctx, storeFor(r.session, r.store, email), email)
}

// List returns the current identity's notifications, or nil without one.
func (r *Notifications) List(ctx context.Context) []models.Notification {
	email, store, err := r.current()
	if err != nil {
		return nil
	}
	return r.load(ctx, store, email)
}

// UnreadCount returns the number of unread notifications of the current
// identity.
func (r *Notifications) UnreadCount(ctx context.Context) int {
	count := 0
	for _, n := range r.List(ctx) {
		if !n.Read {
			count++
		}
	}
	return count
}

// MigrateLegacy copies the shared pre-namespacing notification list into
// email's key. The legacy key is kept or removed according to the
// migrator's policy.
func (r *Notifications) MigrateLegacy(ctx context.Context, email string) (bool, error) {
	if r.migrator == nil {
		return false, nil
	}
	return r.migrator.MigrateNotifications(ctx, email)
}
