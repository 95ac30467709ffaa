package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"rette/internal/core"
	"rette/internal/storage"
)

func TestLinkRepairSweep(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "rette.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	ctx := context.Background()

	// A paid installment whose expense id was never created: a dangling
	// link, as left behind by an expense deletion that bypassed the core.
	_, err = repo.SyncSemesters(ctx, "alice", []core.Semester{{
		TermID:       "2025-fall",
		Name:         "Fall 2025",
		TotalTuition: core.MoneyFromFloat(30000),
		Installments: []core.Installment{{
			Amount:    core.MoneyFromFloat(30000),
			Status:    core.StatusPaid,
			ExpenseID: 4242,
			PaidDate:  core.NewDate(2025, 3, 1),
		}},
	}})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	repair := NewLinkRepair(repo, LinkRepairConfig{Interval: time.Hour})
	repaired, err := repair.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if repaired != 1 {
		t.Fatalf("expected 1 repaired installment, got %d", repaired)
	}

	state, err := repo.ListSemesters(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if inst := state[0].Installments[0]; inst.Paid() || inst.ExpenseID != 0 {
		t.Fatalf("installment should be unlinked, got %+v", inst)
	}
}

func TestLinkRepairLifecycle(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "rette.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	ctx := context.Background()

	repair := NewLinkRepair(repo, LinkRepairConfig{Interval: time.Hour})
	if err := repair.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !repair.IsRunning() {
		t.Fatal("repair should report running after Start")
	}
	if err := repair.Start(ctx); err == nil {
		t.Fatal("second Start should fail while running")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := repair.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if repair.IsRunning() {
		t.Fatal("repair should not report running after Stop")
	}
}
