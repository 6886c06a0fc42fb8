package repository

import (
	"context"
	"fmt"

	"github.com/mmynk/mealsync/internal/events"
	"github.com/mmynk/mealsync/internal/models"
)

// NotifyOnExpense subscribes a listener to bus that records an expense
// notification for every expense event raised by the session's identity.
// When settings is non-nil and notifications are disabled in the app
// settings, events are ignored.
func NotifyOnExpense(bus *events.Bus, notifications *Notifications, settings *Settings) (unsubscribe func()) {
	return bus.Subscribe(func(ctx context.Context, e events.Event) {
		if settings != nil && !settings.App(ctx).NotificationsEnabled {
			return
		}
		current := notifications.session.Identity()
		if current.ID != e.Owner.ID {
			notifications.logger.Warn("Dropping expense event for another identity",
				"event", e.Kind,
				"owner_id", e.Owner.ID,
			)
			return
		}

		in, ok := expenseNotification(e)
		if !ok {
			return
		}
		if _, err := notifications.Add(ctx, in); err != nil {
			notifications.logger.Error("Failed to record expense notification", "event", e.Kind, "error", err)
		}
	})
}

func expenseNotification(e events.Event) (models.NotificationInput, bool) {
	in := models.NotificationInput{Category: models.NotificationExpense}
	switch e.Kind {
	case events.ExpenseAdded:
		in.Title = "Expense added"
		in.Message = describe(e.Expense)
	case events.ExpenseUpdated:
		in.Title = "Expense updated"
		in.Message = describe(e.Expense)
	case events.ExpenseDeleted:
		in.Title = "Expense deleted"
		in.Message = describe(e.Expense)
	case events.ExpensesBatchDelete:
		in.Title = "Expenses deleted"
		in.Message = fmt.Sprintf("%d expenses removed", len(e.IDs))
	default:
		return in, false
	}
	return in, true
}

func describe(e *models.Expense) string {
	if e == nil {
		return ""
	}
	label := e.Description
	if label == "" {
		label = e.Category
	}
	return fmt.Sprintf("%s: %.2f (%s)", label, e.Amount, e.Category)
}
