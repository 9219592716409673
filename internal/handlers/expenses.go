package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"expense-tracker/internal/ledger"
	"expense-tracker/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// CategoryDef defines the properties of a suggested category.
type CategoryDef struct {
	ID    string
	Name  string
	Icon  string
	Color string
}

var categories = []CategoryDef{
	{"food", "Food", "🍽️", "#60a5fa"},
	{"transport", "Transport", "🚌", "#a78bfa"},
	{"entertainment", "Entertainment", "🎮", "#f472b6"},
	{"utilities", "Utilities", "💡", "#fbbf24"},
	{"housing", "Housing", "🏠", "#818cf8"},
	{"gifts", "Gifts", "🎁", "#fb7185"},
	{"other", "Other", "📦", "#94a3b8"},
}

// CategoryStyle defines the visual style for a category.
type CategoryStyle struct {
	Icon  string
	Color string
}

// getCategoryStyle matches known categories case-insensitively. Free-form
// labels get the "Other" style.
func getCategoryStyle(category string) CategoryStyle {
	catLower := strings.ToLower(strings.TrimSpace(category))
	for _, c := range categories {
		if c.ID == catLower {
			return CategoryStyle{Icon: c.Icon, Color: c.Color}
		}
	}
	return CategoryStyle{Icon: "📦", Color: "#94a3b8"}
}

// ExpenseItem represents an expense in the list view.
type ExpenseItem struct {
	models.Expense
	CategoryStyle CategoryStyle
	// IsRefund marks negative amounts.
	IsRefund bool
}

// ExpenseGroup groups expenses by date.
type ExpenseGroup struct {
	Title string
	Date  string
	Total decimal.Decimal
	Items []ExpenseItem
}

// ListViewModel is the data passed to the list view template.
type ListViewModel struct {
	Total  decimal.Decimal
	Groups []ExpenseGroup
}

// FormViewModel is the data passed to the add/edit form template. Values are
// kept as submitted so a rejected form can be shown again.
type FormViewModel struct {
	IsEdit     bool
	ID         int64
	Amount     string
	Category   string
	Note       string
	Date       string
	Error      string
	ErrorField string
	Categories []CategoryDef
}

func newItem(e models.Expense) ExpenseItem {
	return ExpenseItem{
		Expense:       e,
		CategoryStyle: getCategoryStyle(e.Category),
		IsRefund:      e.Amount.IsNegative(),
	}
}

// ListExpenses renders the current user's expenses grouped by day.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	expenses, err := h.ledger.List(r.Context(), user.ID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	groupsMap := make(map[string]*ExpenseGroup)
	total := decimal.Zero
	for _, e := range expenses {
		day := e.Day()
		group, ok := groupsMap[day]
		if !ok {
			group = &ExpenseGroup{Date: day, Title: h.formatGroupTitle(e.OccurredOn), Total: decimal.Zero}
			groupsMap[day] = group
		}
		group.Total = group.Total.Add(e.Amount)
		total = total.Add(e.Amount)
		group.Items = append(group.Items, newItem(e))
	}

	groups := make([]ExpenseGroup, 0, len(groupsMap))
	for _, g := range groupsMap {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Date > groups[j].Date })

	h.render(w, r, http.StatusOK, "expenses.html", ListViewModel{Total: total, Groups: groups})
}

// AddExpenseForm renders the form to record a new expense.
func (h *Handlers) AddExpenseForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "expense_form.html", FormViewModel{
		Date:       h.now().Format(models.DateLayout),
		Categories: categories,
	})
}

// AddExpense handles the creation of a new expense.
func (h *Handlers) AddExpense(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	view := formFromRequest(r.PostForm)

	_, err := h.ledger.Add(r.Context(), GetUserFromContext(r).ID, ledger.Input{
		Amount:   view.Amount,
		Category: view.Category,
		Note:     view.Note,
		Date:     view.Date,
	})
	if h.formError(w, r, err, view) {
		return
	}
	h.redirectWithFlash(w, r, "/dashboard", "success", "Expense added.")
}

// EditExpenseForm renders the form to edit an existing expense.
func (h *Handlers) EditExpenseForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.expenseID(w, r)
	if !ok {
		return
	}
	e, err := h.ledger.Get(r.Context(), id, GetUserFromContext(r).ID)
	if err != nil {
		h.ownershipError(w, r, err, "edit")
		return
	}
	h.render(w, r, http.StatusOK, "expense_form.html", FormViewModel{
		IsEdit:     true,
		ID:         e.ID,
		Amount:     e.Amount.String(),
		Category:   e.Category,
		Note:       e.Note,
		Date:       e.Day(),
		Categories: categories,
	})
}

// EditExpense applies the submitted fields. Blank amount, category and date
// fields keep their current values; a submitted note always replaces the old one.
func (h *Handlers) EditExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := h.expenseID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	view := formFromRequest(r.PostForm)
	view.IsEdit = true
	view.ID = id

	u := ledger.Update{
		Amount:   nonBlank(r.PostForm, "amount"),
		Category: nonBlank(r.PostForm, "category"),
		Date:     nonBlank(r.PostForm, "date"),
	}
	if r.PostForm.Has("note") {
		note := r.PostForm.Get("note")
		u.Note = &note
	}

	_, err := h.ledger.Update(r.Context(), id, GetUserFromContext(r).ID, u)
	if ledger.IsOwnershipError(err) {
		h.ownershipError(w, r, err, "edit")
		return
	}
	if h.formError(w, r, err, view) {
		return
	}
	h.redirectWithFlash(w, r, "/expenses", "success", "Expense updated successfully.")
}

// DeleteExpense permanently removes an expense.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := h.expenseID(w, r)
	if !ok {
		return
	}
	if err := h.ledger.Delete(r.Context(), id, GetUserFromContext(r).ID); err != nil {
		h.ownershipError(w, r, err, "delete")
		return
	}
	h.redirectWithFlash(w, r, "/expenses", "success", "Expense deleted successfully.")
}

// expenseID parses the {id} URL parameter. Malformed ids are reported like
// unknown ones.
func (h *Handlers) expenseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.redirectWithFlash(w, r, "/expenses", "danger", "Expense not found.")
		return 0, false
	}
	return id, true
}

func (h *Handlers) ownershipError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		h.redirectWithFlash(w, r, "/expenses", "danger", "Expense not found.")
	case errors.Is(err, models.ErrForbidden):
		h.logger.WarnContext(r.Context(), "foreign expense access", "user_id", GetUserFromContext(r).ID, "action", action)
		h.redirectWithFlash(w, r, "/expenses", "danger", "You are not authorized to "+action+" this expense.")
	default:
		h.serverError(w, r, err)
	}
}

// formError renders validation failures with 422 and reports whether the
// response has been written.
func (h *Handlers) formError(w http.ResponseWriter, r *http.Request, err error, view FormViewModel) bool {
	if err == nil {
		return false
	}
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		view.Error = ve.Message
		view.ErrorField = ve.Field
		view.Categories = categories
		h.render(w, r, http.StatusUnprocessableEntity, "expense_form.html", view)
		return true
	}
	h.serverError(w, r, err)
	return true
}

func formFromRequest(form url.Values) FormViewModel {
	return FormViewModel{
		Amount:   strings.TrimSpace(form.Get("amount")),
		Category: strings.TrimSpace(form.Get("category")),
		Note:     form.Get("note"),
		Date:     strings.TrimSpace(form.Get("date")),
	}
}

func nonBlank(form url.Values, key string) *string {
	if v := strings.TrimSpace(form.Get(key)); v != "" {
		return &v
	}
	return nil
}

func (h *Handlers) formatGroupTitle(date time.Time) string {
	dateStr := date.Format(models.DateLayout)
	now := h.now()
	if dateStr == now.Format(models.DateLayout) {
		return "TODAY"
	}
	if dateStr == now.AddDate(0, 0, -1).Format(models.DateLayout) {
		return "YESTERDAY"
	}
	return strings.ToUpper(date.Format("Mon, 02 Jan '06"))
}
