package ledger

import (
	"testing"
	"time"

	"expense-tracker/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expense(amount, category string) models.Expense {
	return models.Expense{Amount: decimal.RequireFromString(amount), Category: category}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]models.Expense{
		expense("10", "Food"),
		expense("5", "Food"),
		expense("3", "Transport"),
	})

	assert.False(t, s.Empty)
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, "18", s.Total.String())
	require.Len(t, s.ByCategory, 2)

	assert.Equal(t, "Food", s.ByCategory[0].Category)
	assert.Equal(t, "15", s.ByCategory[0].Total.String())
	assert.Equal(t, 2, s.ByCategory[0].Count)
	assert.InDelta(t, 83.33, s.ByCategory[0].Percentage, 0.01)

	assert.Equal(t, "Transport", s.ByCategory[1].Category)
	assert.Equal(t, "3", s.ByCategory[1].Total.String())
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)

	assert.True(t, s.Empty)
	assert.True(t, s.Total.IsZero())
	assert.Empty(t, s.ByCategory)
	assert.Empty(t, s.CategoryMap())
}

func TestSummarize_DecimalExact(t *testing.T) {
	s := Summarize([]models.Expense{
		expense("0.1", "Food"),
		expense("0.2", "Food"),
	})
	assert.Equal(t, "0.3", s.Total.String(), "no float drift")
}

func TestSummarize_TiesOrderedByName(t *testing.T) {
	s := Summarize([]models.Expense{
		expense("4", "Zoo"),
		expense("4", "Art"),
		expense("-2", "Refund"),
	})
	require.Len(t, s.ByCategory, 3)
	assert.Equal(t, "Art", s.ByCategory[0].Category)
	assert.Equal(t, "Zoo", s.ByCategory[1].Category)
	assert.Equal(t, "Refund", s.ByCategory[2].Category)
	assert.Equal(t, "6", s.Total.String())
	assert.InDelta(t, 20.0, s.ByCategory[2].Percentage, 0.001)
}

func TestInMonth(t *testing.T) {
	day := func(s string) models.Expense {
		d, err := ParseDate(s)
		require.NoError(t, err)
		return models.Expense{OccurredOn: d, Amount: decimal.NewFromInt(1)}
	}
	all := []models.Expense{day("2024-03-31"), day("2024-03-01"), day("2024-02-29"), day("2023-03-15")}

	got := InMonth(all, 2024, time.March)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-03-31", got[0].Day())
	assert.Equal(t, "2024-03-01", got[1].Day())
	assert.Empty(t, InMonth(all, 2024, time.April))
}
