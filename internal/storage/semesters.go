package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"rette/internal/core"
)

// SyncSemesters reconciles the incoming full snapshot against the persisted
// semester list for one user, inside a single transaction. Matching
// installment ids are updated in place so expense back-references survive;
// semesters absent from the snapshot are removed together with their
// installments. Returns the freshly reloaded post-reconciliation state.
//
// The snapshot is validated against the paid floor first: a diff that would
// delete a persisted paid installment aborts before any write, returning a
// *core.CountBelowPaidError.
func (r *SQLiteRepository) SyncSemesters(ctx context.Context, userID string, incoming []core.Semester) ([]core.Semester, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin sync transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := loadSemesters(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("load existing semesters: %w", err)
	}

	if err := core.ValidateSync(existing, incoming); err != nil {
		return nil, err
	}

	plan := core.BuildSyncPlan(existing, incoming)
	if err := applySyncPlan(ctx, tx, userID, plan); err != nil {
		return nil, err
	}

	result, err := loadSemesters(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("reload semesters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit sync transaction: %w", err)
	}

	slog.DebugContext(ctx, "Semesters synced",
		"user_id", userID,
		"deleted", len(plan.DeleteTerms),
		"created", len(plan.Create),
		"updated", len(plan.Update),
		"noop", plan.IsNoop())

	return result, nil
}

// ListSemesters returns the user's semesters with installments in payment
// order.
func (r *SQLiteRepository) ListSemesters(ctx context.Context, userID string) ([]core.Semester, error) {
	return loadSemesters(ctx, r.db, userID)
}

// GetSemester returns one semester by term id.
func (r *SQLiteRepository) GetSemester(ctx context.Context, userID, termID string) (core.Semester, error) {
	var (
		sem   core.Semester
		cents int64
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT term_id, name, total_tuition_cents FROM semesters WHERE user_id = ? AND term_id = ?",
		userID, termID,
	).Scan(&sem.TermID, &sem.Name, &cents)
	if err == sql.ErrNoRows {
		return core.Semester{}, ErrSemesterNotFound
	}
	if err != nil {
		return core.Semester{}, fmt.Errorf("get semester %s: %w", termID, err)
	}
	sem.TotalTuition = core.Money{Cents: cents}

	sem.Installments, err = loadInstallments(ctx, r.db, userID, termID)
	if err != nil {
		return core.Semester{}, err
	}
	return sem, nil
}

func applySyncPlan(ctx context.Context, tx dbtx, userID string, plan core.SyncPlan) error {
	for _, termID := range plan.DeleteTerms {
		if err := deleteSemester(ctx, tx, userID, termID); err != nil {
			return err
		}
	}
	for _, sem := range plan.Create {
		if err := createSemester(ctx, tx, userID, sem); err != nil {
			return err
		}
	}
	for _, upd := range plan.Update {
		if err := updateSemester(ctx, tx, userID, upd); err != nil {
			return err
		}
	}
	return nil
}

// deleteSemester removes the semester row and its installments. The delete
// is explicit rather than relying on the schema cascade so it works
// regardless of the connection's foreign_keys pragma.
func deleteSemester(ctx context.Context, tx dbtx, userID, termID string) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM installments WHERE user_id = ? AND term_id = ?", userID, termID); err != nil {
		return fmt.Errorf("delete installments of %s: %w", termID, err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM semesters WHERE user_id = ? AND term_id = ?", userID, termID); err != nil {
		return fmt.Errorf("delete semester %s: %w", termID, err)
	}
	return nil
}

func createSemester(ctx context.Context, tx dbtx, userID string, sem core.Semester) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO semesters (term_id, user_id, name, total_tuition_cents) VALUES (?, ?, ?, ?)",
		sem.TermID, userID, sem.Name, sem.TotalTuition.Cents)
	if err != nil {
		return fmt.Errorf("insert semester %s: %w", sem.TermID, err)
	}
	for idx, inst := range sem.Installments {
		if err := insertInstallment(ctx, tx, userID, sem.TermID, idx+1, inst); err != nil {
			return err
		}
	}
	return nil
}

func updateSemester(ctx context.Context, tx dbtx, userID string, upd core.SemesterUpdate) error {
	sem := upd.Incoming
	_, err := tx.ExecContext(ctx,
		"UPDATE semesters SET name = ?, total_tuition_cents = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ? AND term_id = ?",
		sem.Name, sem.TotalTuition.Cents, userID, sem.TermID)
	if err != nil {
		return fmt.Errorf("update semester %s: %w", sem.TermID, err)
	}

	for _, id := range upd.DeleteInstallments {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM installments WHERE id = ? AND user_id = ?", id, userID); err != nil {
			return fmt.Errorf("delete installment %d: %w", id, err)
		}
	}

	for idx, inst := range sem.Installments {
		seq := idx + 1
		if inst.ID != 0 && upd.Keep[inst.ID] {
			if err := updateInstallment(ctx, tx, userID, seq, inst); err != nil {
				return err
			}
			continue
		}
		// No id, or an id the database does not know: insert a fresh row.
		if err := insertInstallment(ctx, tx, userID, sem.TermID, seq, inst); err != nil {
			return err
		}
	}
	return nil
}

func insertInstallment(ctx context.Context, tx dbtx, userID, termID string, seq int, inst core.Installment) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO installments (term_id, user_id, seq, amount_cents, status, expense_id, paid_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		termID, userID, seq, inst.Amount.Cents, string(inst.Status),
		nullableID(inst.ExpenseID), nullableDate(inst.PaidDate))
	if err != nil {
		return fmt.Errorf("insert installment %d of %s: %w", seq, termID, err)
	}
	return nil
}

func updateInstallment(ctx context.Context, tx dbtx, userID string, seq int, inst core.Installment) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE installments SET seq = ?, amount_cents = ?, status = ?, expense_id = ?, paid_date = ?
		 WHERE id = ? AND user_id = ?`,
		seq, inst.Amount.Cents, string(inst.Status),
		nullableID(inst.ExpenseID), nullableDate(inst.PaidDate),
		inst.ID, userID)
	if err != nil {
		return fmt.Errorf("update installment %d: %w", inst.ID, err)
	}
	return nil
}

func loadSemesters(ctx context.Context, q dbtx, userID string) ([]core.Semester, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT term_id, name, total_tuition_cents FROM semesters WHERE user_id = ? ORDER BY term_id",
		userID)
	if err != nil {
		return nil, fmt.Errorf("query semesters: %w", err)
	}
	defer rows.Close()

	var semesters []core.Semester
	for rows.Next() {
		var (
			sem   core.Semester
			cents int64
		)
		if err := rows.Scan(&sem.TermID, &sem.Name, &cents); err != nil {
			return nil, fmt.Errorf("scan semester: %w", err)
		}
		sem.TotalTuition = core.Money{Cents: cents}
		semesters = append(semesters, sem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate semesters: %w", err)
	}

	for i := range semesters {
		semesters[i].Installments, err = loadInstallments(ctx, q, userID, semesters[i].TermID)
		if err != nil {
			return nil, err
		}
	}
	return semesters, nil
}

func loadInstallments(ctx context.Context, q dbtx, userID, termID string) ([]core.Installment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, amount_cents, status, expense_id, paid_date
		 FROM installments WHERE user_id = ? AND term_id = ? ORDER BY seq`,
		userID, termID)
	if err != nil {
		return nil, fmt.Errorf("query installments of %s: %w", termID, err)
	}
	defer rows.Close()

	var installments []core.Installment
	for rows.Next() {
		var (
			inst      core.Installment
			cents     int64
			status    string
			expenseID sql.NullInt64
			paidDate  sql.NullString
		)
		if err := rows.Scan(&inst.ID, &cents, &status, &expenseID, &paidDate); err != nil {
			return nil, fmt.Errorf("scan installment: %w", err)
		}
		inst.Amount = core.Money{Cents: cents}
		inst.Status = core.PaymentStatus(status)
		if expenseID.Valid {
			inst.ExpenseID = expenseID.Int64
		}
		if paidDate.Valid {
			d, err := core.ParseDate(paidDate.String)
			if err != nil {
				return nil, fmt.Errorf("parse paid date of installment %d: %w", inst.ID, err)
			}
			inst.PaidDate = d
		}
		installments = append(installments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate installments of %s: %w", termID, err)
	}
	return installments, nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullableDate(d core.Date) any {
	if d.IsEmpty() {
		return nil
	}
	return d.ISO()
}
