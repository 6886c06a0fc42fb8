package repository

import (
	"github.com/mmynk/mealsync/internal/models"
	"github.com/mmynk/mealsync/internal/session"
	"github.com/mmynk/mealsync/internal/storage"
)

// storeFor returns the store that holds email's data. It is the session's
// scratch store only when email belongs to the current ephemeral identity.
func storeFor(sess *session.Session, persistent *storage.Local, email string) *storage.Local {
	if sess == nil {
		return persistent
	}
	ident := sess.Identity()
	if ident.Ephemeral && ident.NormalizedEmail() == models.NormalizeEmail(email) {
		return sess.Store(persistent)
	}
	return persistent
}

// ownerEmail returns the email-scoped owner of ident's data: its email, or
// its ID when the email is unknown.
func ownerEmail(ident models.Identity) string {
	if email := ident.NormalizedEmail(); email != "" {
		return email
	}
	return models.NormalizeEmail(ident.ID)
}
