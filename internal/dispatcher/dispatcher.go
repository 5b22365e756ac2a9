package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dcm-project/service-orchestrator/internal/config"
)

var (
	ErrQueueFull = errors.New("task queue is full")
	ErrStopped   = errors.New("dispatcher is stopped")
)

type Kind string

const (
	KindBuild  Kind = "build"
	KindUpdate Kind = "update"
)

// Task is a unit of background work on one service.
type Task struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	ServiceID string            `json:"service_id"`
	Files     map[string]string `json:"files,omitempty"`
}

// Handler runs a task. Returned errors are logged; they do not reach the
// caller that dispatched the task.
type Handler func(ctx context.Context, task Task) error

// Dispatcher runs tasks in the background, decoupled from the request that
// created them.
type Dispatcher interface {
	// Dispatch accepts task for execution and returns its id without waiting.
	Dispatch(ctx context.Context, task Task) (string, error)
	Start(handler Handler) error
	Stop()
}

// New returns the dispatcher backend selected by cfg.
func New(cfg *config.DispatcherConfig) Dispatcher {
	if cfg.Backend == "asynq" {
		slog.Info("using redis task queue", "addr", cfg.RedisAddr)
		return NewAsynqDispatcher(cfg)
	}
	return NewPool(cfg.Workers, cfg.QueueSize, WithRetry(cfg.MaxRetry, time.Second))
}
