package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used in forms and storage.
const DateLayout = "2006-01-02"

// DefaultCategory is assigned when an expense is recorded without a category.
const DefaultCategory = "Other"

// Expense represents a dated spending entry owned by a single user.
type Expense struct {
	ID         int64           `json:"id"`
	OwnerID    int64           `json:"owner_id"`
	Amount     decimal.Decimal `json:"amount"`
	Category   string          `json:"category"`
	Note       string          `json:"note"`
	OccurredOn time.Time       `json:"occurred_on"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Day returns the occurrence date formatted as YYYY-MM-DD.
func (e Expense) Day() string {
	return e.OccurredOn.Format(DateLayout)
}

// CivilDate returns midnight UTC of the calendar day t falls on in its own location.
// Expense dates carry no timezone, so every stored date is normalised this way.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
