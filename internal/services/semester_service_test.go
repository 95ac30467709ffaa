package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"rette/internal/core"
	"rette/internal/storage"
)

func newTestServices(t *testing.T) (*SemesterService, *ExpenseService) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "rette.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	expenses := NewExpenseService(repo, nil)
	semesters := NewSemesterService(repo, expenses, nil, 0)
	return semesters, expenses
}

func seedFourInstallments(t *testing.T, s *SemesterService, userID string) []core.Semester {
	t.Helper()
	state, err := s.Sync(context.Background(), userID, []core.Semester{{
		TermID:       "2025-fall",
		Name:         "Fall 2025",
		TotalTuition: core.MoneyFromFloat(30000),
		Installments: []core.Installment{
			{Amount: core.MoneyFromFloat(7500), Status: core.StatusUnpaid},
			{Amount: core.MoneyFromFloat(7500), Status: core.StatusUnpaid},
			{Amount: core.MoneyFromFloat(7500), Status: core.StatusUnpaid},
			{Amount: core.MoneyFromFloat(7500), Status: core.StatusUnpaid},
		},
	}})
	if err != nil {
		t.Fatalf("seed sync: %v", err)
	}
	return state
}

func TestMarkInstallmentPaidLinksExpense(t *testing.T) {
	semesters, expenses := newTestServices(t)
	ctx := context.Background()
	state := seedFourInstallments(t, semesters, "alice")
	third := state[0].Installments[2]

	after, err := semesters.MarkInstallmentPaid(ctx, "alice", "2025-fall", third.ID, core.NewDate(2025, 3, 1))
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	inst := after[0].Installments[2]
	if !inst.Paid() {
		t.Fatalf("installment should be paid, got %+v", inst)
	}
	if inst.ID != third.ID {
		t.Fatalf("installment identity must survive payment: %d -> %d", third.ID, inst.ID)
	}
	if inst.ExpenseID == 0 || inst.PaidDate.ISO() != "2025-03-01" {
		t.Fatalf("installment not linked: %+v", inst)
	}

	expense, err := expenses.GetExpense(ctx, "alice", inst.ExpenseID)
	if err != nil {
		t.Fatalf("get linked expense: %v", err)
	}
	if expense.Amount.Cents != 750000 || expense.Date.ISO() != "2025-03-01" {
		t.Fatalf("expense mismatch: %+v", expense)
	}
	if expense.Primary != core.TuitionPrimaryCategory || expense.Recurring {
		t.Fatalf("expense should be a non-recurring tuition record: %+v", expense)
	}
}

func TestMarkInstallmentPaidNoopGuards(t *testing.T) {
	semesters, expenses := newTestServices(t)
	ctx := context.Background()
	state := seedFourInstallments(t, semesters, "alice")
	first := state[0].Installments[0]

	after, err := semesters.MarkInstallmentPaid(ctx, "alice", "2025-fall", first.ID, core.NewDate(2025, 3, 1))
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	linked := after[0].Installments[0].ExpenseID

	// Duplicate pay event: silently ignored, nothing new created.
	again, err := semesters.MarkInstallmentPaid(ctx, "alice", "2025-fall", first.ID, core.NewDate(2025, 4, 1))
	if err != nil {
		t.Fatalf("repeat mark paid should be a no-op: %v", err)
	}
	if got := again[0].Installments[0]; got.ExpenseID != linked || got.PaidDate.ISO() != "2025-03-01" {
		t.Fatalf("repeat pay must not change the link: %+v", got)
	}
	all, err := expenses.ListExpenses(ctx, "alice")
	if err != nil {
		t.Fatalf("list expenses: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one expense, got %d", len(all))
	}

	// Zero-amount installment: also a no-op.
	state = again
	state[0].Installments[1].Amount = core.Money{}
	state, err = semesters.Sync(ctx, "alice", state)
	if err != nil {
		t.Fatalf("sync zero amount: %v", err)
	}
	second := state[0].Installments[1]
	res, err := semesters.MarkInstallmentPaid(ctx, "alice", "2025-fall", second.ID, core.Date{})
	if err != nil {
		t.Fatalf("zero-amount pay should be a no-op: %v", err)
	}
	if res[0].Installments[1].Paid() {
		t.Fatal("zero-amount installment must stay unpaid")
	}
}

func TestUpdatePaidDatePropagatesToExpense(t *testing.T) {
	semesters, expenses := newTestServices(t)
	ctx := context.Background()
	state := seedFourInstallments(t, semesters, "alice")
	first := state[0].Installments[0]

	after, err := semesters.MarkInstallmentPaid(ctx, "alice", "2025-fall", first.ID, core.NewDate(2025, 3, 1))
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	expenseID := after[0].Installments[0].ExpenseID

	moved, err := semesters.UpdatePaidDate(ctx, "alice", "2025-fall", first.ID, core.NewDate(2025, 3, 20))
	if err != nil {
		t.Fatalf("update paid date: %v", err)
	}
	if moved[0].Installments[0].PaidDate.ISO() != "2025-03-20" {
		t.Fatalf("installment date not moved: %+v", moved[0].Installments[0])
	}

	expense, err := expenses.GetExpense(ctx, "alice", expenseID)
	if err != nil {
		t.Fatalf("get expense: %v", err)
	}
	if expense.Date.ISO() != "2025-03-20" {
		t.Fatalf("expense date must follow the installment, got %q", expense.Date.ISO())
	}
}

func TestUpdatePaidDateRequiresPaidInstallment(t *testing.T) {
	semesters, _ := newTestServices(t)
	state := seedFourInstallments(t, semesters, "alice")

	_, err := semesters.UpdatePaidDate(context.Background(), "alice", "2025-fall",
		state[0].Installments[0].ID, core.NewDate(2025, 3, 20))
	if !errors.Is(err, ErrInstallmentNotPaid) {
		t.Fatalf("expected ErrInstallmentNotPaid, got %v", err)
	}
}

func TestChangeInstallmentCountSplitsRemaining(t *testing.T) {
	semesters, _ := newTestServices(t)
	ctx := context.Background()
	state := seedFourInstallments(t, semesters, "alice")

	// Pay #1, then change the count to 3: the remaining 22500 splits across
	// the two still-unpaid slots.
	after, err := semesters.MarkInstallmentPaid(ctx, "alice", "2025-fall", state[0].Installments[0].ID, core.NewDate(2025, 2, 1))
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	resized, err := semesters.ChangeInstallmentCount(ctx, "alice", "2025-fall", 3)
	if err != nil {
		t.Fatalf("change count: %v", err)
	}
	installments := resized[0].Installments
	if len(installments) != 3 {
		t.Fatalf("expected 3 installments, got %d", len(installments))
	}
	if !installments[0].Paid() || installments[0].Amount.Cents != 750000 {
		t.Fatalf("paid installment must be untouched: %+v", installments[0])
	}
	if installments[0].ID != after[0].Installments[0].ID {
		t.Fatal("paid installment identity must survive the count change")
	}
	for _, inst := range installments[1:] {
		if inst.Amount.Cents != 1125000 || inst.Paid() {
			t.Fatalf("unpaid slots should hold 11250.00, got %+v", inst)
		}
	}
}

func TestChangeInstallmentCountRejectsBelowFloor(t *testing.T) {
	semesters, _ := newTestServices(t)
	ctx := context.Background()
	state := seedFourInstallments(t, semesters, "alice")

	if _, err := semesters.MarkInstallmentPaid(ctx, "alice", "2025-fall", state[0].Installments[0].ID, core.NewDate(2025, 2, 1)); err != nil {
		t.Fatalf("pay #1: %v", err)
	}
	state, err := semesters.List(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := semesters.MarkInstallmentPaid(ctx, "alice", "2025-fall", state[0].Installments[1].ID, core.NewDate(2025, 3, 1)); err != nil {
		t.Fatalf("pay #2: %v", err)
	}

	for _, count := range []int{1, 2} {
		_, err := semesters.ChangeInstallmentCount(ctx, "alice", "2025-fall", count)
		var floor *core.CountBelowPaidError
		if !errors.As(err, &floor) {
			t.Fatalf("count %d: expected CountBelowPaidError, got %v", count, err)
		}
		if floor.MinCount != 3 {
			t.Fatalf("count %d: expected minimum 3, got %d", count, floor.MinCount)
		}
	}
	if _, err := semesters.ChangeInstallmentCount(ctx, "alice", "2025-fall", 3); err != nil {
		t.Fatalf("count 3 should be accepted: %v", err)
	}
}

func TestSyncRoundTripIsStable(t *testing.T) {
	semesters, _ := newTestServices(t)
	ctx := context.Background()
	first := seedFourInstallments(t, semesters, "alice")

	second, err := semesters.Sync(ctx, "alice", first)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("snapshot changed size: %d -> %d", len(first), len(second))
	}
	for i := range first {
		if first[i].TermID != second[i].TermID || len(first[i].Installments) != len(second[i].Installments) {
			t.Fatalf("snapshot drifted:\nfirst:  %+v\nsecond: %+v", first[i], second[i])
		}
		for j := range first[i].Installments {
			if first[i].Installments[j] != second[i].Installments[j] {
				t.Fatalf("installment drifted: %+v -> %+v", first[i].Installments[j], second[i].Installments[j])
			}
		}
	}
}

func TestExpenseDeleteResetsInstallment(t *testing.T) {
	semesters, expenses := newTestServices(t)
	ctx := context.Background()
	state := seedFourInstallments(t, semesters, "alice")

	after, err := semesters.MarkInstallmentPaid(ctx, "alice", "2025-fall", state[0].Installments[0].ID, core.NewDate(2025, 3, 1))
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	expenseID := after[0].Installments[0].ExpenseID

	if err := expenses.DeleteExpense(ctx, "alice", expenseID); err != nil {
		t.Fatalf("delete expense: %v", err)
	}

	current, err := semesters.List(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	inst := current[0].Installments[0]
	if inst.Paid() || inst.ExpenseID != 0 || !inst.PaidDate.IsEmpty() {
		t.Fatalf("installment should be back to unpaid, got %+v", inst)
	}
}
