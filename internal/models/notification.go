package models

import "fmt"

// NotificationCategory groups notifications for display and filtering.
type NotificationCategory string

const (
	NotificationExpense NotificationCategory = "expense"
	NotificationPayment NotificationCategory = "payment"
	NotificationGroup   NotificationCategory = "group"
	NotificationSystem  NotificationCategory = "system"
)

// Valid reports whether c is one of the known categories.
func (c NotificationCategory) Valid() bool {
	switch c {
	case NotificationExpense, NotificationPayment, NotificationGroup, NotificationSystem:
		return true
	}
	return false
}

// Notification is a user-visible message.
type Notification struct {
	// ID is time-derived (ULID) so notifications sort by creation.
	ID      string `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`

	// Timestamp is the RFC 3339 creation time. Immutable.
	Timestamp string `json:"timestamp"`

	Read     bool                 `json:"read"`
	Category NotificationCategory `json:"category"`

	// OwnerEmail is empty only for records written before per-user keys
	// existed; such records belong to whoever migrates them first.
	OwnerEmail string `json:"ownerEmail,omitempty"`
}

// NotificationInput is a notification as supplied by a caller.
type NotificationInput struct {
	Title    string
	Message  string
	Category NotificationCategory
}

// Validate checks the stored shape of a notification.
func (n *Notification) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("notification: missing id")
	}
	if !n.Category.Valid() {
		return fmt.Errorf("notification %s: unknown category %q", n.ID, n.Category)
	}
	return nil
}

// Notifications is the stored notification list.
type Notifications []Notification

// Validate validates every notification.
func (ns Notifications) Validate() error {
	for i := range ns {
		if err := ns[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
