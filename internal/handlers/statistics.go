package handlers

import (
	"net/http"
	"time"

	"expense-tracker/internal/ledger"
	"expense-tracker/internal/models"

	"github.com/shopspring/decimal"
)

// noDataLabel is the single chart slice shown for an empty ledger.
const noDataLabel = "No Data"

// recentLimit caps the expenses listed under the summary.
const recentLimit = 5

// StatsCategoryItem represents a category with its spending statistics.
type StatsCategoryItem struct {
	ledger.CategoryTotal
	CategoryStyle CategoryStyle
}

// DashboardViewModel is the data passed to the dashboard template.
type DashboardViewModel struct {
	Total      decimal.Decimal
	Count      int
	Categories []StatsCategoryItem
	Recent     []ExpenseItem
	Chart      map[string]float64

	// Period is empty for all time, otherwise "January 2024" and the
	// neighbouring months as YYYY-MM.
	Period    string
	PrevMonth string
	NextMonth string
	// CurrentMonth links to this month's view.
	CurrentMonth string
}

// Dashboard renders the spending summary. ?month=YYYY-MM narrows it to one
// calendar month.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.ledger.List(r.Context(), GetUserFromContext(r).ID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	view := DashboardViewModel{CurrentMonth: monthParam(h.now())}
	if raw := r.URL.Query().Get("month"); raw != "" {
		if month, err := time.Parse("2006-01", raw); err == nil {
			expenses = ledger.InMonth(expenses, month.Year(), month.Month())
			view.Period = month.Format("January 2006")
			view.PrevMonth = month.AddDate(0, -1, 0).Format("2006-01")
			view.NextMonth = month.AddDate(0, 1, 0).Format("2006-01")
		}
	}

	summary := ledger.Summarize(expenses)
	view.Total = summary.Total
	view.Count = summary.Count
	view.Chart = chartData(summary)
	view.Categories = make([]StatsCategoryItem, 0, len(summary.ByCategory))
	for _, ct := range summary.ByCategory {
		view.Categories = append(view.Categories, StatsCategoryItem{
			CategoryTotal: ct,
			CategoryStyle: getCategoryStyle(ct.Category),
		})
	}
	for i := 0; i < len(expenses) && i < recentLimit; i++ {
		view.Recent = append(view.Recent, newItem(expenses[i]))
	}

	h.render(w, r, http.StatusOK, "dashboard.html", view)
}

// chartData maps category labels to totals for the pie chart. An empty
// ledger yields the single "No Data" slice with value 0.
func chartData(s ledger.Summary) map[string]float64 {
	if s.Empty {
		return map[string]float64{noDataLabel: 0}
	}
	out := make(map[string]float64, len(s.ByCategory))
	for _, ct := range s.ByCategory {
		out[ct.Category] = ct.Total.InexactFloat64()
	}
	return out
}

// monthParam formats t for the ?month= query parameter.
func monthParam(t time.Time) string {
	return models.CivilDate(t).Format("2006-01")
}
