package models

import "strings"

// DemoEmail is the email reported for ephemeral identities.
const DemoEmail = "demo@mealsync.app"

// Identity is the resolved current user.
type Identity struct {
	// ID is stable per account. For ephemeral identities it is unique per session.
	ID string `json:"id"`

	// Email may be empty for identities resolved before the provider returned it.
	Email string `json:"email,omitempty"`

	// Ephemeral marks a demo session whose data never leaves process memory.
	Ephemeral bool `json:"isEphemeral,omitempty"`
}

// IsZero reports whether no identity has been resolved.
func (i Identity) IsZero() bool {
	return i.ID == "" && i.Email == ""
}

// Persistent reports whether the identity's data is durably stored.
func (i Identity) Persistent() bool {
	return !i.IsZero() && !i.Ephemeral
}

// NormalizedEmail returns the trimmed, lower-cased email.
func (i Identity) NormalizedEmail() string {
	return NormalizeEmail(i.Email)
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
