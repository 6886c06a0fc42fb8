// Package calculator computes the insight-card figures shown over an expense
// list: totals, averages, and per-category and per-day breakdowns.
package calculator

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/mealsync/internal/models"
)

// CategoryTotal is the spend for one category.
type CategoryTotal struct {
	Category string
	Total    float64
	Count    int
}

// DayTotal is the spend for one calendar day (YYYY-MM-DD).
type DayTotal struct {
	Day   string
	Total float64
}

// Summary holds the figures for the insight cards.
type Summary struct {
	Count   int
	Total   float64
	Average float64

	// Largest is the most expensive expense, nil for an empty list.
	Largest *models.Expense

	// ByCategory is sorted by total, largest first.
	ByCategory []CategoryTotal

	// ByDay is sorted by day, oldest first. Undated expenses are left out.
	ByDay   []DayTotal
	Undated int

	Today     float64
	ThisMonth float64
}

// Summarize computes a Summary. Amounts are summed as decimals and rounded to
// cents so that totals do not drift. now decides "today" and "this month",
// in now's location.
func Summarize(expenses []models.Expense, now time.Time) Summary {
	var s Summary
	s.Count = len(expenses)
	if s.Count == 0 {
		return s
	}

	total := decimal.Zero
	today := decimal.Zero
	month := decimal.Zero
	byCategory := make(map[string]decimal.Decimal)
	categoryCount := make(map[string]int)
	byDay := make(map[string]decimal.Decimal)

	todayKey := now.Format(models.DateLayout)
	monthKey := now.Format("2006-01")

	for i := range expenses {
		e := &expenses[i]
		amount := decimal.NewFromFloat(e.Amount)
		total = total.Add(amount)

		byCategory[e.Category] = byCategory[e.Category].Add(amount)
		categoryCount[e.Category]++

		if s.Largest == nil || e.Amount > s.Largest.Amount {
			largest := *e
			s.Largest = &largest
		}

		day, ok := dayOf(e.Date, now.Location())
		if !ok {
			s.Undated++
			continue
		}
		byDay[day] = byDay[day].Add(amount)
		if day == todayKey {
			today = today.Add(amount)
		}
		if strings.HasPrefix(day, monthKey) {
			month = month.Add(amount)
		}
	}

	s.Total = cents(total)
	s.Average = cents(total.Div(decimal.NewFromInt(int64(s.Count))))
	s.Today = cents(today)
	s.ThisMonth = cents(month)

	for category, sum := range byCategory {
		s.ByCategory = append(s.ByCategory, CategoryTotal{
			Category: category,
			Total:    cents(sum),
			Count:    categoryCount[category],
		})
	}
	slices.SortFunc(s.ByCategory, func(a, b CategoryTotal) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})

	for day, sum := range byDay {
		s.ByDay = append(s.ByDay, DayTotal{Day: day, Total: cents(sum)})
	}
	slices.SortFunc(s.ByDay, func(a, b DayTotal) int { return cmp.Compare(a.Day, b.Day) })

	return s
}

// dayOf returns the calendar day of an expense date. Day-only dates are
// taken as written; date-times are converted to loc first.
func dayOf(date string, loc *time.Location) (string, bool) {
	if len(date) == len(models.DateLayout) {
		if _, err := time.Parse(models.DateLayout, date); err == nil {
			return date, true
		}
	}
	t, ok := models.ParseDate(date)
	if !ok {
		return "", false
	}
	return t.In(loc).Format(models.DateLayout), true
}

func cents(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
