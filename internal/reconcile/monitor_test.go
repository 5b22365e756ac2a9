package reconcile_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dcm-project/service-orchestrator/internal/config"
	"github.com/dcm-project/service-orchestrator/internal/reconcile"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// countingReconciler implements reconcile.Reconciler for testing
type countingReconciler struct {
	passes atomic.Int32
	err    error
}

func (c *countingReconciler) ReconcileAll(ctx context.Context) (int, error) {
	c.passes.Add(1)
	return 1, c.err
}

var _ = Describe("Monitor", func() {
	var reconciler *countingReconciler

	BeforeEach(func() {
		reconciler = &countingReconciler{}
	})

	It("reconciles immediately and then on every tick", func() {
		monitor := reconcile.NewMonitor(reconciler, &config.ReconcileConfig{Interval: 10 * time.Millisecond})
		monitor.Start(context.Background())
		defer monitor.Stop()

		Eventually(reconciler.passes.Load).Should(BeNumerically(">=", 3))
	})

	It("stops when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		monitor := reconcile.NewMonitor(reconciler, &config.ReconcileConfig{Interval: 10 * time.Millisecond})
		monitor.Start(ctx)
		Eventually(reconciler.passes.Load).Should(BeNumerically(">=", 1))

		cancel()
		monitor.Stop()
		passes := reconciler.passes.Load()
		Consistently(reconciler.passes.Load, 50*time.Millisecond).Should(Equal(passes))
	})

	It("keeps running after a failed pass", func() {
		reconciler.err = errors.New("database is locked")
		monitor := reconcile.NewMonitor(reconciler, &config.ReconcileConfig{Interval: 10 * time.Millisecond})
		monitor.Start(context.Background())
		defer monitor.Stop()

		Eventually(reconciler.passes.Load).Should(BeNumerically(">=", 2))
	})

	It("does nothing when disabled", func() {
		monitor := reconcile.NewMonitor(reconciler, &config.ReconcileConfig{Interval: 0})
		monitor.Start(context.Background())
		monitor.Stop()

		Expect(reconciler.passes.Load()).To(BeZero())
	})

	It("can be stopped twice", func() {
		monitor := reconcile.NewMonitor(reconciler, &config.ReconcileConfig{Interval: time.Hour})
		monitor.Start(context.Background())
		monitor.Stop()
		monitor.Stop()
	})
})
