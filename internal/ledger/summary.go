package ledger

import (
	"sort"
	"time"

	"expense-tracker/internal/models"

	"github.com/shopspring/decimal"
)

// CategoryTotal is the spending for one category label.
type CategoryTotal struct {
	Category   string
	Total      decimal.Decimal
	Count      int
	Percentage float64
}

// Summary is the dashboard view of a user's ledger.
type Summary struct {
	Total      decimal.Decimal
	Count      int
	ByCategory []CategoryTotal
	// Empty is set when there are no expenses at all. Presentation decides
	// what a chart shows in that case.
	Empty bool
}

// Summarize totals expenses overall and per category. Categories are ordered
// by total descending, then by name. Percentages are shares of the absolute
// sum of category totals, so negative entries do not push shares above 100.
func Summarize(expenses []models.Expense) Summary {
	if len(expenses) == 0 {
		return Summary{Total: decimal.Zero, Empty: true}
	}

	byCategory := make(map[string]*CategoryTotal)
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
		ct, ok := byCategory[e.Category]
		if !ok {
			ct = &CategoryTotal{Category: e.Category, Total: decimal.Zero}
			byCategory[e.Category] = ct
		}
		ct.Total = ct.Total.Add(e.Amount)
		ct.Count++
	}

	absSum := decimal.Zero
	for _, ct := range byCategory {
		absSum = absSum.Add(ct.Total.Abs())
	}

	out := make([]CategoryTotal, 0, len(byCategory))
	for _, ct := range byCategory {
		if !absSum.IsZero() {
			ct.Percentage = ct.Total.Abs().Div(absSum).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
		out = append(out, *ct)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})

	return Summary{Total: total, Count: len(expenses), ByCategory: out}
}

// CategoryMap returns the per-category totals keyed by label.
func (s Summary) CategoryMap() map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(s.ByCategory))
	for _, ct := range s.ByCategory {
		m[ct.Category] = ct.Total
	}
	return m
}

// InMonth returns the expenses that occurred in the given calendar month.
func InMonth(expenses []models.Expense, year int, month time.Month) []models.Expense {
	var out []models.Expense
	for _, e := range expenses {
		if e.OccurredOn.Year() == year && e.OccurredOn.Month() == month {
			out = append(out, e)
		}
	}
	return out
}
