package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dcm-project/service-orchestrator/internal/metrics"
	"github.com/google/uuid"
)

// Pool runs tasks on a fixed set of in-process workers fed by a bounded queue.
// A task whose handler fails or panics is run again up to maxRetry times.
type Pool struct {
	workers    int
	queue      chan Task
	maxRetry   int
	retryDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

var _ Dispatcher = (*Pool)(nil)

type PoolOption func(*Pool)

// WithRetry re-runs a failed task up to maxRetry more times, waiting
// delay times the attempt number in between.
func WithRetry(maxRetry int, delay time.Duration) PoolOption {
	return func(p *Pool) {
		p.maxRetry = maxRetry
		p.retryDelay = delay
	}
}

func NewPool(workers, queueSize int, opts ...PoolOption) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		workers: workers,
		queue:   make(chan Task, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dispatch never blocks; a full queue is reported as ErrQueueFull.
func (p *Pool) Dispatch(_ context.Context, task Task) (string, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return "", ErrStopped
	}

	select {
	case p.queue <- task:
		metrics.TaskDispatched(string(task.Kind))
		metrics.SetQueueDepth(len(p.queue))
		return task.ID, nil
	default:
		return "", ErrQueueFull
	}
}

func (p *Pool) Start(handler Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	if p.started {
		return fmt.Errorf("dispatcher already started")
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i, handler)
	}
	slog.Info("task dispatcher started", "workers", p.workers, "queue_size", cap(p.queue))
	return nil
}

// Stop cancels running tasks, drops queued ones and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.cancel()
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	slog.Info("task dispatcher stopped")
}

func (p *Pool) worker(n int, handler Handler) {
	defer p.wg.Done()
	for task := range p.queue {
		metrics.SetQueueDepth(len(p.queue))
		if p.ctx.Err() != nil {
			slog.Warn("dropping task on shutdown", "task_id", task.ID, "service_id", task.ServiceID, "kind", task.Kind)
			continue
		}
		p.run(n, handler, task)
	}
}

func (p *Pool) run(n int, handler Handler, task Task) {
	for attempt := 1; ; attempt++ {
		err := p.attempt(n, handler, task)
		if err == nil {
			return
		}
		if attempt > p.maxRetry || p.ctx.Err() != nil {
			slog.Error("task failed", "task_id", task.ID, "service_id", task.ServiceID, "kind", task.Kind,
				"attempts", attempt, "error", err)
			return
		}
		slog.Warn("task failed, retrying", "task_id", task.ID, "service_id", task.ServiceID, "kind", task.Kind,
			"attempt", attempt, "error", err)

		timer := time.NewTimer(p.retryDelay * time.Duration(attempt))
		select {
		case <-timer.C:
		case <-p.ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (p *Pool) attempt(n int, handler Handler, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panicked", "task_id", task.ID, "service_id", task.ServiceID,
				"kind", task.Kind, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	slog.Debug("task started", "worker", n, "task_id", task.ID, "service_id", task.ServiceID, "kind", task.Kind)
	return handler(p.ctx, task)
}
