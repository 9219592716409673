// Package ledger owns expense records and their ownership rules.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"expense-tracker/internal/metrics"
	"expense-tracker/internal/models"

	"github.com/shopspring/decimal"
)

const (
	maxCategoryLen = 100
	maxNoteLen     = 200
)

// amountPattern accepts plain decimals only: at most 13 integer digits and
// 2 fraction digits, no exponent.
var amountPattern = regexp.MustCompile(`^[+-]?(\d{1,13}(\.\d{1,2})?|\.\d{1,2})$`)

// Store persists expenses. UpdateExpense and DeleteExpense are keyed by both
// expense ID and owner ID and report models.ErrNotFound when no row matches.
type Store interface {
	CreateExpense(ctx context.Context, e *models.Expense) error
	GetExpense(ctx context.Context, id int64) (*models.Expense, error)
	UpdateExpense(ctx context.Context, e *models.Expense) error
	DeleteExpense(ctx context.Context, id, ownerID int64) error
	ListExpenses(ctx context.Context, ownerID int64) ([]models.Expense, error)
}

// Input is the raw form data for a new expense.
type Input struct {
	Amount   string
	Category string
	Note     string
	// Date is YYYY-MM-DD. Empty means today.
	Date string
}

// Update lists the fields to change. Nil fields keep their current value.
type Update struct {
	Amount   *string
	Category *string
	Note     *string
	Date     *string
}

// Options tunes validation.
type Options struct {
	// AllowNonPositive accepts zero and negative amounts.
	AllowNonPositive bool
	Logger           *slog.Logger
	// Now returns the current time; the server's local date is "today".
	Now func() time.Time
}

// Service validates and applies ledger operations.
type Service struct {
	store  Store
	opts   Options
	logger *slog.Logger
}

// NewService returns a Service over store.
func NewService(store Store, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, opts: opts, logger: logger.With("component", "ledger")}
}

// Add records a new expense for ownerID. Malformed input yields a
// *models.ValidationError and nothing is stored.
func (s *Service) Add(ctx context.Context, ownerID int64, in Input) (*models.Expense, error) {
	amount, err := s.ParseAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	day, err := s.parseDateOrToday(in.Date)
	if err != nil {
		return nil, err
	}
	category, err := normalizeCategory(in.Category)
	if err != nil {
		return nil, err
	}
	note, err := normalizeNote(in.Note)
	if err != nil {
		return nil, err
	}

	e := &models.Expense{
		OwnerID:    ownerID,
		Amount:     amount,
		Category:   category,
		Note:       note,
		OccurredOn: day,
	}
	if err := s.store.CreateExpense(ctx, e); err != nil {
		return nil, err
	}
	metrics.ExpenseMutation("create")
	s.logger.DebugContext(ctx, "expense added", "expense_id", e.ID, "owner_id", ownerID)
	return e, nil
}

// List returns ownerID's expenses, newest date first.
func (s *Service) List(ctx context.Context, ownerID int64) ([]models.Expense, error) {
	return s.store.ListExpenses(ctx, ownerID)
}

// Get returns expense id if ownerID owns it. Existence is checked before
// ownership: unknown ids yield models.ErrNotFound, foreign ones models.ErrForbidden.
func (s *Service) Get(ctx context.Context, id, ownerID int64) (*models.Expense, error) {
	e, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.OwnerID != ownerID {
		return nil, models.ErrForbidden
	}
	return e, nil
}

// Update applies the non-nil fields of u to expense id. Ownership is checked
// as in Get and the write itself is keyed by (id, ownerID).
func (s *Service) Update(ctx context.Context, id, ownerID int64, u Update) (*models.Expense, error) {
	e, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	if u.Amount != nil {
		if e.Amount, err = s.ParseAmount(*u.Amount); err != nil {
			return nil, err
		}
	}
	if u.Category != nil {
		if e.Category, err = normalizeCategory(*u.Category); err != nil {
			return nil, err
		}
	}
	if u.Note != nil {
		if e.Note, err = normalizeNote(*u.Note); err != nil {
			return nil, err
		}
	}
	if u.Date != nil {
		if e.OccurredOn, err = ParseDate(*u.Date); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateExpense(ctx, e); err != nil {
		return nil, err
	}
	metrics.ExpenseMutation("update")
	return e, nil
}

// Delete permanently removes expense id, with the same checks as Update.
func (s *Service) Delete(ctx context.Context, id, ownerID int64) error {
	if _, err := s.Get(ctx, id, ownerID); err != nil {
		return err
	}
	if err := s.store.DeleteExpense(ctx, id, ownerID); err != nil {
		return err
	}
	metrics.ExpenseMutation("delete")
	return nil
}

// Summary aggregates ownerID's expenses.
func (s *Service) Summary(ctx context.Context, ownerID int64) (Summary, error) {
	expenses, err := s.List(ctx, ownerID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(expenses), nil
}

// ParseAmount parses a decimal amount and applies the sign policy. Scientific
// notation and values beyond amountPattern are rejected before decimal sees
// them, since an unbounded exponent makes formatting arbitrarily expensive.
func (s *Service) ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, models.NewValidationError("amount", "Please enter an amount.")
	}
	if !amountPattern.MatchString(raw) {
		return decimal.Decimal{}, models.NewValidationError("amount", "Please enter a valid amount.")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, models.NewValidationError("amount", "Please enter a valid amount.")
	}
	if !s.opts.AllowNonPositive && !amount.IsPositive() {
		return decimal.Decimal{}, models.NewValidationError("amount", "Amount must be greater than zero.")
	}
	return amount, nil
}

func (s *Service) parseDateOrToday(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return models.CivilDate(s.opts.Now()), nil
	}
	return ParseDate(raw)
}

// ParseDate parses a YYYY-MM-DD calendar date. The result is midnight UTC, so
// it does not depend on the server's timezone.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(models.DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, models.NewValidationError("date", "Invalid date format. Use YYYY-MM-DD.")
	}
	return d, nil
}

func normalizeCategory(raw string) (string, error) {
	category := strings.TrimSpace(raw)
	if category == "" {
		return models.DefaultCategory, nil
	}
	if utf8.RuneCountInString(category) > maxCategoryLen {
		return "", models.NewValidationError("category", "Category is too long.")
	}
	return category, nil
}

func normalizeNote(raw string) (string, error) {
	note := strings.TrimSpace(raw)
	if utf8.RuneCountInString(note) > maxNoteLen {
		return "", models.NewValidationError("note", "Note is too long.")
	}
	return note, nil
}

// IsOwnershipError reports whether err means the expense is missing or foreign.
func IsOwnershipError(err error) bool {
	return errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrForbidden)
}
