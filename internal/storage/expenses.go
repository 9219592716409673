package storage

import (
	"context"
	"fmt"
	"time"

	"expense-tracker/internal/models"
)

const expenseColumns = "id, owner_id, amount, category, note, occurred_on, created_at"

func scanExpense(row rowScanner) (*models.Expense, error) {
	var (
		e          models.Expense
		occurredOn string
		createdAt  int64
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Amount, &e.Category, &e.Note, &occurredOn, &createdAt); err != nil {
		return nil, err
	}
	day, err := time.Parse(models.DateLayout, occurredOn)
	if err != nil {
		return nil, fmt.Errorf("expense %d: bad stored date %q: %w", e.ID, occurredOn, err)
	}
	e.OccurredOn = day
	e.CreatedAt = fromMillis(createdAt)
	return &e, nil
}

// CreateExpense inserts e and fills in its ID and CreatedAt.
func (db *DB) CreateExpense(ctx context.Context, e *models.Expense) error {
	if e.OccurredOn.IsZero() {
		e.OccurredOn = models.CivilDate(time.Now())
	}
	row := db.queryRow(ctx,
		"INSERT INTO expenses (owner_id, amount, category, note, occurred_on, created_at) VALUES (?, ?, ?, ?, ?, ?) RETURNING "+expenseColumns,
		e.OwnerID, e.Amount.String(), e.Category, e.Note, e.Day(), toMillis(time.Now()),
	)
	created, err := scanExpense(row)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	*e = *created
	return nil
}

// GetExpense retrieves a single expense by ID regardless of owner.
func (db *DB) GetExpense(ctx context.Context, id int64) (*models.Expense, error) {
	e, err := scanExpense(db.queryRow(ctx, "SELECT "+expenseColumns+" FROM expenses WHERE id = ?", id))
	return e, notFound(err)
}

// UpdateExpense writes the mutable fields of e, keyed by both ID and owner.
// It returns models.ErrNotFound when no row matches the pair.
func (db *DB) UpdateExpense(ctx context.Context, e *models.Expense) error {
	res, err := db.exec(ctx,
		"UPDATE expenses SET amount = ?, category = ?, note = ?, occurred_on = ? WHERE id = ? AND owner_id = ?",
		e.Amount.String(), e.Category, e.Note, e.Day(), e.ID, e.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return expectOneRow(res)
}

// DeleteExpense removes the expense with id owned by ownerID.
func (db *DB) DeleteExpense(ctx context.Context, id, ownerID int64) error {
	res, err := db.exec(ctx, "DELETE FROM expenses WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return expectOneRow(res)
}

// ListExpenses returns the owner's expenses, newest date first.
// Expenses sharing a date are ordered by most recently recorded first.
func (db *DB) ListExpenses(ctx context.Context, ownerID int64) ([]models.Expense, error) {
	rows, err := db.query(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE owner_id = ? ORDER BY occurred_on DESC, id DESC",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []models.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}

	return expenses, rows.Err()
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func expectOneRow(res rowsAffected) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
