package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DateLayout is the day-only form accepted for Expense.Date.
const DateLayout = "2006-01-02"

// dateLayouts are the ISO 8601 forms accepted for Expense.Date, tried in
// order. Date-times without a zone are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	DateLayout,
}

// Expense is a single spending entry.
type Expense struct {
	// ID is generated on creation (UUID format).
	ID string `json:"id"`

	// Amount is a non-negative decimal amount in the user's currency.
	Amount float64 `json:"amount"`

	// Category is a free-form, case-sensitive tag (e.g. "food").
	Category string `json:"category"`

	Description string `json:"description,omitempty"`

	// Date is an ISO 8601 date-time or a YYYY-MM-DD day. Optional, but
	// expenses without a date are left out of day-based summaries.
	Date string `json:"date,omitempty"`

	// OwnerID is the owning identity's ID. Set at creation, never changed.
	OwnerID string `json:"ownerId,omitempty"`
}

// ExpenseInput is an expense as supplied by a caller, before an ID and owner
// are assigned.
type ExpenseInput struct {
	Amount      float64
	Category    string
	Description string
	Date        string
}

// ExpensePatch holds the fields to change in an update. Nil fields are left
// untouched.
type ExpensePatch struct {
	Amount      *float64
	Category    *string
	Description *string
	Date        *string
}

// Apply merges the patch into e. ID and OwnerID are never modified.
func (p ExpensePatch) Apply(e *Expense) {
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
}

// Validate checks the stored shape of an expense.
func (e *Expense) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("expense: missing id")
	}
	return validateAmountAndDate(e.Amount, e.Date)
}

// Validate checks caller-supplied fields before an expense is created.
func (in ExpenseInput) Validate() error {
	return validateAmountAndDate(in.Amount, in.Date)
}

// Time parses Date. The second return value is false when Date is empty or
// unparseable.
func (e *Expense) Time() (time.Time, bool) {
	return ParseDate(e.Date)
}

// ParseDate accepts ISO 8601 date-times, with or without seconds, fraction
// or zone, and YYYY-MM-DD days.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func validateAmountAndDate(amount float64, date string) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("expense: amount must be a finite number")
	}
	if amount < 0 {
		return fmt.Errorf("expense: amount must be non-negative, got %v", amount)
	}
	if date != "" {
		if _, ok := ParseDate(date); !ok {
			return fmt.Errorf("expense: invalid date %q", date)
		}
	}
	return nil
}

// Expenses is the stored expense list.
type Expenses []Expense

// Validate validates every expense and rejects duplicate IDs.
func (es Expenses) Validate() error {
	seen := make(map[string]struct{}, len(es))
	for i := range es {
		if err := es[i].Validate(); err != nil {
			return fmt.Errorf("expense %d: %w", i, err)
		}
		if _, dup := seen[es[i].ID]; dup {
			return fmt.Errorf("expense %d: duplicate id %q", i, es[i].ID)
		}
		seen[es[i].ID] = struct{}{}
	}
	return nil
}

// Valid returns the records that pass validation, in order. Records that fail
// and repeats of an earlier ID are left out and reported in the error.
func (es Expenses) Valid() (Expenses, error) {
	valid := make(Expenses, 0, len(es))
	seen := make(map[string]struct{}, len(es))
	var errs []error
	for i := range es {
		if err := es[i].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("expense %d: %w", i, err))
			continue
		}
		if _, dup := seen[es[i].ID]; dup {
			errs = append(errs, fmt.Errorf("expense %d: duplicate id %q", i, es[i].ID))
			continue
		}
		seen[es[i].ID] = struct{}{}
		valid = append(valid, es[i])
	}
	return valid, errors.Join(errs...)
}
