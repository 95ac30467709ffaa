package services

import (
	"context"
	"fmt"
	"log/slog"

	"rette/internal/amqp"
	"rette/internal/core"
	"rette/internal/storage"
)

// ExpenseService owns expense records. Deleting an expense also resets any
// installment that referenced it, in the same transaction, so a recorded
// payment never silently outlives its expense.
type ExpenseService struct {
	storage *storage.SQLiteRepository
	events  *amqp.Client
}

var _ ExpenseRecorder = (*ExpenseService)(nil)

func NewExpenseService(repo *storage.SQLiteRepository, events *amqp.Client) *ExpenseService {
	return &ExpenseService{
		storage: repo,
		events:  events,
	}
}

// CreateExpense validates and persists an expense, then publishes a
// best-effort created event.
func (s *ExpenseService) CreateExpense(ctx context.Context, userID string, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	created, err := s.storage.CreateExpense(ctx, userID, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	s.publishEvent(ctx, amqp.EventExpenseCreated, userID, created.ID)
	return created, nil
}

func (s *ExpenseService) GetExpense(ctx context.Context, userID string, id int64) (core.Expense, error) {
	return s.storage.GetExpense(ctx, userID, id)
}

func (s *ExpenseService) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	return s.storage.ListExpenses(ctx, userID)
}

// UpdateExpenseDate moves an expense to a new date.
func (s *ExpenseService) UpdateExpenseDate(ctx context.Context, userID string, id int64, date core.Date) error {
	if err := date.Validate(); err != nil {
		return err
	}
	return s.storage.UpdateExpenseDate(ctx, userID, id, date)
}

// DeleteExpense removes the expense and un-links any installment that
// referenced it.
func (s *ExpenseService) DeleteExpense(ctx context.Context, userID string, id int64) error {
	if err := s.storage.DeleteExpense(ctx, userID, id); err != nil {
		return err
	}

	s.publishEvent(ctx, amqp.EventExpenseDeleted, userID, id)
	return nil
}

func (s *ExpenseService) publishEvent(ctx context.Context, event, userID string, expenseID int64) {
	if s.events == nil {
		slog.DebugContext(ctx, "AMQP client not configured, skipping event", "event", event)
		return
	}
	if err := s.events.PublishExpenseEvent(ctx, event, userID, expenseID); err != nil {
		// Don't fail the request; the expense change is already committed.
		slog.ErrorContext(ctx, "Failed to publish expense event",
			"event", event, "expense_id", expenseID, "error", err)
	}
}
