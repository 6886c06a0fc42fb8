package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account known to the authentication provider.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string `json:"id"`

	// Email is the user's email address (unique, normalized).
	Email string `json:"email"`

	DisplayName  string `json:"displayName"`
	PasswordHash string `json:"passwordHash"`

	// Confirmed is false until the sign-up confirmation code is presented.
	Confirmed        bool   `json:"confirmed"`
	ConfirmationCode string `json:"confirmationCode,omitempty"`

	// ResetCode is set while a password reset is pending.
	ResetCode string `json:"resetCode,omitempty"`

	// CreatedAt and UpdatedAt are Unix timestamps.
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// NewUser creates an unconfirmed user with a fresh ID.
func NewUser(email, displayName, passwordHash string) *User {
	now := time.Now().Unix()
	return &User{
		ID:           uuid.New().String(),
		Email:        NormalizeEmail(email),
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Identity returns the persistent identity for the user.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email}
}
