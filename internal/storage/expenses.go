package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"rette/internal/core"
)

// CreateExpense inserts an expense record and returns it with the assigned
// id.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, userID string, e core.Expense) (core.Expense, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (user_id, date, description, amount_cents, primary_category, secondary_category, recurring)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, e.Date.ISO(), e.Description, e.Amount.Cents, e.Primary, e.Secondary, boolToInt(e.Recurring))
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense insert id: %w", err)
	}
	e.ID = id

	slog.InfoContext(ctx, "Expense saved",
		"id", e.ID,
		"user_id", userID,
		"description", e.Description,
		"amount_cents", e.Amount.Cents,
		"date", e.Date.ISO())

	return e, nil
}

// GetExpense retrieves a single expense by id.
func (r *SQLiteRepository) GetExpense(ctx context.Context, userID string, id int64) (core.Expense, error) {
	return scanExpense(r.db.QueryRowContext(ctx,
		`SELECT id, date, description, amount_cents, primary_category, secondary_category, recurring
		 FROM expenses WHERE user_id = ? AND id = ?`,
		userID, id))
}

// ListExpenses returns the user's expenses, newest first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, date, description, amount_cents, primary_category, secondary_category, recurring
		 FROM expenses WHERE user_id = ? ORDER BY date DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

// UpdateExpenseDate moves an expense to a new date. Used when the paid date
// of a linked installment is edited, to keep the two in agreement.
func (r *SQLiteRepository) UpdateExpenseDate(ctx context.Context, userID string, id int64, date core.Date) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE expenses SET date = ? WHERE user_id = ? AND id = ?",
		date.ISO(), userID, id)
	if err != nil {
		return fmt.Errorf("update expense date: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update expense date affected rows: %w", err)
	}
	if affected == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

// DeleteExpense removes the expense and, in the same transaction, resets any
// installment of the user that referenced it back to unpaid with the link
// and paid date cleared.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID string, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM expenses WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense affected rows: %w", err)
	}
	if affected == 0 {
		return ErrExpenseNotFound
	}

	unlinked, err := unlinkInstallments(ctx, tx, userID, id)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete transaction: %w", err)
	}

	slog.InfoContext(ctx, "Expense deleted",
		"id", id,
		"user_id", userID,
		"installments_unlinked", unlinked)

	return nil
}

// unlinkInstallments flips every installment referencing the expense back to
// unpaid.
func unlinkInstallments(ctx context.Context, tx dbtx, userID string, expenseID int64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE installments SET status = 'unpaid', expense_id = NULL, paid_date = NULL
		 WHERE user_id = ? AND expense_id = ?`,
		userID, expenseID)
	if err != nil {
		return 0, fmt.Errorf("unlink installments of expense %d: %w", expenseID, err)
	}
	unlinked, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("unlink affected rows: %w", err)
	}
	return unlinked, nil
}

// RepairDanglingLinks resets installments whose expense reference points at
// a record that no longer exists. Dangling links are not an error anywhere
// in the read path; this sweep is the eventual correction.
func (r *SQLiteRepository) RepairDanglingLinks(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE installments SET status = 'unpaid', expense_id = NULL, paid_date = NULL
		 WHERE expense_id IS NOT NULL
		   AND NOT EXISTS (SELECT 1 FROM expenses e WHERE e.id = installments.expense_id AND e.user_id = installments.user_id)`)
	if err != nil {
		return 0, fmt.Errorf("repair dangling links: %w", err)
	}
	repaired, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repair affected rows: %w", err)
	}
	return repaired, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e         core.Expense
		date      string
		cents     int64
		recurring int64
	)
	err := row.Scan(&e.ID, &date, &e.Description, &cents, &e.Primary, &e.Secondary, &recurring)
	if err == sql.ErrNoRows {
		return core.Expense{}, ErrExpenseNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("scan expense: %w", err)
	}
	e.Amount = core.Money{Cents: cents}
	e.Recurring = recurring != 0
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse expense date: %w", err)
	}
	e.Date = d
	return e, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
