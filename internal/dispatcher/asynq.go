package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dcm-project/service-orchestrator/internal/config"
	"github.com/dcm-project/service-orchestrator/internal/metrics"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const taskTypePrefix = "service:"

// AsynqDispatcher queues tasks in Redis and runs them on an embedded asynq
// server, so accepted tasks survive a restart of the process.
type AsynqDispatcher struct {
	client   *asynq.Client
	server   *asynq.Server
	maxRetry int
}

var _ Dispatcher = (*AsynqDispatcher)(nil)

func NewAsynqDispatcher(cfg *config.DispatcherConfig) *AsynqDispatcher {
	redis := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	return &AsynqDispatcher{
		client: asynq.NewClient(redis),
		server: asynq.NewServer(redis, asynq.Config{
			Concurrency: cfg.Workers,
		}),
		maxRetry: cfg.MaxRetry,
	}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, task Task) (string, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return "", err
	}

	info, err := d.client.EnqueueContext(ctx,
		asynq.NewTask(taskTypePrefix+string(task.Kind), payload),
		asynq.TaskID(task.ID),
		asynq.MaxRetry(d.maxRetry),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue %s task: %w", task.Kind, err)
	}
	metrics.TaskDispatched(string(task.Kind))
	return info.ID, nil
}

func (d *AsynqDispatcher) Start(handler Handler) error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(taskTypePrefix, func(ctx context.Context, t *asynq.Task) error {
		var task Task
		if err := json.Unmarshal(t.Payload(), &task); err != nil {
			return fmt.Errorf("decode task payload: %v: %w", err, asynq.SkipRetry)
		}
		return handler(ctx, task)
	})
	return d.server.Start(mux)
}

func (d *AsynqDispatcher) Stop() {
	d.server.Shutdown()
	_ = d.client.Close()
}
