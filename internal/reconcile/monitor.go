package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dcm-project/service-orchestrator/internal/config"
)

// Reconciler brings stored service states in line with the runtime.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (int, error)
}

// Monitor periodically reconciles RUNNING and STOPPED services
type Monitor struct {
	reconciler Reconciler
	interval   time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewMonitor creates a new reconcile monitor
func NewMonitor(reconciler Reconciler, config *config.ReconcileConfig) *Monitor {
	return &Monitor{
		reconciler: reconciler,
		interval:   config.Interval,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the reconcile loop. A non-positive interval disables it.
func (m *Monitor) Start(ctx context.Context) {
	if m.interval <= 0 {
		slog.Info("periodic reconciliation disabled")
		return
	}
	m.wg.Add(1)
	go m.run(ctx)
}

// Stop stops the monitor and waits for a running pass to finish
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Run immediately on start
	m.Reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Reconcile(ctx)
		}
	}
}

// Reconcile runs a single reconciliation pass.
func (m *Monitor) Reconcile(ctx context.Context) {
	start := time.Now()
	changed, err := m.reconciler.ReconcileAll(ctx)
	if err != nil {
		slog.Error("reconciliation pass failed", "error", err)
		return
	}
	if changed > 0 {
		slog.Info("reconciliation pass updated services", "changed", changed, "elapsed", time.Since(start))
	}
}
