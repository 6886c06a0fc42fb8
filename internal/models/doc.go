// Package models defines the core domain models for MealSync.
//
// # Stored Models
//
// Every model that lives in the key-value store is JSON encoded and carries a
// Validate method. The storage layer calls Validate after decoding, so a record
// that decodes but has the wrong shape is treated the same as malformed JSON.
//
//   - Expense: one spending entry owned by an identity
//   - Notification: a user-visible message with read/unread state
//   - Profile: per-user profile record (avatar and cover stored separately)
//   - AppSettings, AccountSettings: global preference records
//
// # Identities
//
// Identity is the resolved current user. Ephemeral identities ("demo"
// sessions) never reach the persistent store.
//
// User is the authentication provider's account record and is never stored
// in the key-value store.
package models
