// Package services provides business logic and orchestration over storage:
// snapshot reconciliation, the installment payment flow, and the background
// link-repair sweep.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"rette/internal/amqp"
	"rette/internal/core"
	"rette/internal/storage"
)

// DefaultSyncTimeout bounds the reconciliation transaction. A sync that
// cannot finish inside it is rolled back wholesale.
const DefaultSyncTimeout = 15 * time.Second

var (
	ErrInstallmentNotPaid = errors.New("installment is not paid")
	ErrInvalidCount       = errors.New("installment count must be at least 1")
)

// ExpenseRecorder is the expense collaborator the payment flow depends on.
// Implemented by ExpenseService; kept as an interface because expense CRUD
// is owned by a different layer.
type ExpenseRecorder interface {
	CreateExpense(ctx context.Context, userID string, e core.Expense) (core.Expense, error)
	UpdateExpenseDate(ctx context.Context, userID string, id int64, date core.Date) error
}

// SemesterService owns the reconciliation entrypoint and the named
// operations (mark paid, edit paid date, change installment count) that all
// funnel through it. Every operation works on full snapshots: mutate, then
// sync.
type SemesterService struct {
	storage     *storage.SQLiteRepository
	expenses    ExpenseRecorder
	events      *amqp.Client
	syncTimeout time.Duration
}

func NewSemesterService(repo *storage.SQLiteRepository, expenses ExpenseRecorder, events *amqp.Client, syncTimeout time.Duration) *SemesterService {
	if syncTimeout <= 0 {
		syncTimeout = DefaultSyncTimeout
	}
	return &SemesterService{
		storage:     repo,
		expenses:    expenses,
		events:      events,
		syncTimeout: syncTimeout,
	}
}

// List returns the user's current semester snapshot.
func (s *SemesterService) List(ctx context.Context, userID string) ([]core.Semester, error) {
	semesters, err := s.storage.ListSemesters(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list semesters: %w", err)
	}
	return semesters, nil
}

// Sync reconciles a full client snapshot against persisted state and
// returns the canonical post-reconciliation list. Amounts are normalized
// before the diff; the whole operation runs in one transaction under the
// configured timeout.
func (s *SemesterService) Sync(ctx context.Context, userID string, incoming []core.Semester) ([]core.Semester, error) {
	for _, sem := range incoming {
		if err := sem.Validate(); err != nil {
			return nil, fmt.Errorf("semester %s: %w", sem.TermID, err)
		}
	}
	normalized := core.Normalize(incoming)

	cctx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	result, err := s.storage.SyncSemesters(cctx, userID, normalized)
	if err != nil {
		var floor *core.CountBelowPaidError
		if errors.As(err, &floor) {
			return nil, err
		}
		slog.ErrorContext(ctx, "Semester sync failed",
			"user_id", userID, "semesters", len(incoming), "error", err)
		return nil, fmt.Errorf("synchronize semesters: %w", err)
	}

	s.publishSynced(ctx, userID, len(result))
	return result, nil
}

// MarkInstallmentPaid records a payment: the expense is created first, and
// only then does the installment flip to paid with the link and date set,
// persisted through Sync. Marking an already-paid or zero-amount
// installment is a no-op returning the current state.
func (s *SemesterService) MarkInstallmentPaid(ctx context.Context, userID, termID string, installmentID int64, paidDate core.Date) ([]core.Semester, error) {
	if paidDate.IsEmpty() {
		paidDate = core.Today()
	}

	snapshot, sem, inst, seq, err := s.findInstallment(ctx, userID, termID, installmentID)
	if err != nil {
		return nil, err
	}

	if inst.Paid() || inst.Amount.Cents <= 0 {
		slog.DebugContext(ctx, "Mark paid is a no-op",
			"user_id", userID, "term_id", termID, "installment_id", installmentID,
			"already_paid", inst.Paid(), "amount_cents", inst.Amount.Cents)
		return snapshot, nil
	}

	expense, err := s.expenses.CreateExpense(ctx, userID, core.Expense{
		Date:        paidDate,
		Description: fmt.Sprintf("%s - rata %d/%d", sem.Name, seq, len(sem.Installments)),
		Amount:      inst.Amount,
		Primary:     core.TuitionPrimaryCategory,
		Secondary:   core.TuitionSecondaryCategory,
	})
	if err != nil {
		return nil, fmt.Errorf("create tuition expense: %w", err)
	}

	inst.Status = core.StatusPaid
	inst.ExpenseID = expense.ID
	inst.PaidDate = expense.Date

	result, err := s.Sync(ctx, userID, snapshot)
	if err != nil {
		// The expense exists but the flip did not commit: the safe failure
		// direction. The caller retries; the orphan is visible in the
		// expense list and harmless.
		slog.WarnContext(ctx, "Expense created but installment flip failed",
			"user_id", userID, "expense_id", expense.ID, "error", err)
		return nil, err
	}

	slog.InfoContext(ctx, "Installment marked paid",
		"user_id", userID,
		"term_id", termID,
		"installment_id", installmentID,
		"seq", seq,
		"expense_id", expense.ID,
		"paid_date", expense.Date.ISO())

	return result, nil
}

// UpdatePaidDate moves the payment date of a paid installment and the
// linked expense together. A dangling expense link is logged and left to
// the repair sweep; the installment's own date still moves.
func (s *SemesterService) UpdatePaidDate(ctx context.Context, userID, termID string, installmentID int64, newDate core.Date) ([]core.Semester, error) {
	if newDate.IsEmpty() {
		return nil, core.ErrInvalidDate
	}

	snapshot, _, inst, _, err := s.findInstallment(ctx, userID, termID, installmentID)
	if err != nil {
		return nil, err
	}
	if !inst.Paid() {
		return nil, ErrInstallmentNotPaid
	}

	if err := s.expenses.UpdateExpenseDate(ctx, userID, inst.ExpenseID, newDate); err != nil {
		if !errors.Is(err, storage.ErrExpenseNotFound) {
			return nil, fmt.Errorf("update linked expense date: %w", err)
		}
		slog.WarnContext(ctx, "Paid installment references a missing expense",
			"user_id", userID, "installment_id", installmentID, "expense_id", inst.ExpenseID)
	}

	inst.PaidDate = newDate
	return s.Sync(ctx, userID, snapshot)
}

// ChangeInstallmentCount resizes a semester's schedule per the paid-floor
// policy and persists the result through Sync.
func (s *SemesterService) ChangeInstallmentCount(ctx context.Context, userID, termID string, count int) ([]core.Semester, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}

	snapshot, err := s.storage.ListSemesters(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load semesters: %w", err)
	}
	idx := -1
	for i := range snapshot {
		if snapshot[i].TermID == termID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, storage.ErrSemesterNotFound
	}

	resized, err := core.ResizeInstallments(snapshot[idx], count)
	if err != nil {
		return nil, err
	}
	snapshot[idx] = resized

	return s.Sync(ctx, userID, snapshot)
}

// findInstallment loads the full snapshot and returns pointers into it so
// callers can mutate and re-sync.
func (s *SemesterService) findInstallment(ctx context.Context, userID, termID string, installmentID int64) ([]core.Semester, *core.Semester, *core.Installment, int, error) {
	snapshot, err := s.storage.ListSemesters(ctx, userID)
	if err != nil {
		return nil, nil, nil, 0, fmt.Errorf("load semesters: %w", err)
	}
	for i := range snapshot {
		if snapshot[i].TermID != termID {
			continue
		}
		inst, seq := snapshot[i].FindInstallment(installmentID)
		if inst == nil {
			return nil, nil, nil, 0, storage.ErrInstallmentNotFound
		}
		return snapshot, &snapshot[i], inst, seq, nil
	}
	return nil, nil, nil, 0, storage.ErrSemesterNotFound
}

func (s *SemesterService) publishSynced(ctx context.Context, userID string, semesters int) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSemestersSynced(ctx, userID, semesters); err != nil {
		// Events are best-effort; the sync already committed.
		slog.ErrorContext(ctx, "Failed to publish semesters synced event",
			"user_id", userID, "error", err)
	}
}
