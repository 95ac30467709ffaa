package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rette/internal/storage"
)

// LinkRepairConfig holds configuration for the link repair sweep.
type LinkRepairConfig struct {
	// Interval is how often to scan for dangling expense links (default: 1h)
	Interval time.Duration
}

// DefaultLinkRepairConfig returns sensible defaults.
func DefaultLinkRepairConfig() LinkRepairConfig {
	return LinkRepairConfig{Interval: time.Hour}
}

// LinkRepair periodically resets installments whose expense reference
// points at a deleted record. Readers tolerate dangling links; this sweep
// is the eventual correction.
type LinkRepair struct {
	storage *storage.SQLiteRepository
	config  LinkRepairConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewLinkRepair(repo *storage.SQLiteRepository, config LinkRepairConfig) *LinkRepair {
	if config.Interval <= 0 {
		config.Interval = DefaultLinkRepairConfig().Interval
	}
	return &LinkRepair{
		storage: repo,
		config:  config,
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (p *LinkRepair) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("link repair is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Link repair started", "interval", p.config.Interval)
	return nil
}

// Stop gracefully stops the sweep and waits for completion.
func (p *LinkRepair) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Link repair stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Link repair stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the sweep loop is active.
func (p *LinkRepair) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *LinkRepair) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Sweep immediately on startup
	p.sweep(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// Sweep runs one repair pass and returns how many installments were reset.
func (p *LinkRepair) Sweep(ctx context.Context) (int64, error) {
	return p.storage.RepairDanglingLinks(ctx)
}

func (p *LinkRepair) sweep(ctx context.Context) {
	repaired, err := p.Sweep(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Link repair sweep failed", "error", err)
		return
	}
	if repaired > 0 {
		slog.WarnContext(ctx, "Reset installments with dangling expense links",
			"repaired", repaired)
	}
}
