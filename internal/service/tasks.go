package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dcm-project/service-orchestrator/internal/dispatcher"
	"github.com/dcm-project/service-orchestrator/internal/runtime"
	"github.com/dcm-project/service-orchestrator/internal/store"
	"github.com/dcm-project/service-orchestrator/internal/store/model"
)

var (
	errTaskDeadline  = errors.New("task deadline exceeded")
	errServiceDelete = errors.New("service is being deleted")
)

// RunTask is the dispatcher handler. It holds the service lease for the
// whole pipeline, which runs under the task timeout and is cancelled by a
// concurrent Delete. Tasks for services deleted in the meantime are dropped.
func (o *Orchestrator) RunTask(ctx context.Context, task dispatcher.Task) error {
	release, err := o.leases.Acquire(ctx, task.ServiceID)
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if o.opts.TaskTimeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeoutCause(ctx, o.opts.TaskTimeout,
			fmt.Errorf("%w after %s", errTaskDeadline, o.opts.TaskTimeout))
		defer stop()
	}
	if !o.track(task.ServiceID, cancel) {
		slog.Info("service is being deleted, dropping task", "service_id", task.ServiceID, "task_id", task.ID, "kind", task.Kind)
		// the delete may still fail; do not leave the service in a transient state
		err := o.executor.Fail(ctx, task.ServiceID, fmt.Sprintf("aborted: %v\n", errServiceDelete))
		if errors.Is(err, store.ErrServiceNotFound) {
			return nil
		}
		return err
	}
	defer o.untrack(task.ServiceID)

	svc, err := o.store.Service().Get(ctx, task.ServiceID)
	if err != nil {
		if errors.Is(err, store.ErrServiceNotFound) {
			slog.Info("service gone, dropping task", "service_id", task.ServiceID, "task_id", task.ID, "kind", task.Kind)
			return nil
		}
		return err
	}

	switch task.Kind {
	case dispatcher.KindBuild:
		return o.executor.Execute(ctx, svc)
	case dispatcher.KindUpdate:
		return o.redeploy(ctx, svc, task.Files)
	}
	return fmt.Errorf("unknown task kind %q", task.Kind)
}

// redeploy stops the current deployment, refreshes the source tree and
// overrides, then builds and starts again.
func (o *Orchestrator) redeploy(ctx context.Context, svc *model.Service, files map[string]string) error {
	log := slog.With("service_id", svc.ID, "mode", svc.Mode)

	if err := o.executor.Teardown(ctx, svc); err != nil {
		log.Warn("teardown before redeploy failed", "error", err)
		return o.executor.Fail(ctx, svc.ID, runtime.Output(err))
	}

	if svc.Mode.SourceBacked() && svc.SourceLocator != "" {
		revision, err := o.workspaces.Sync(ctx, svc.ID)
		if err != nil {
			log.Warn("source sync failed", "error", err)
			return o.executor.Fail(ctx, svc.ID, err.Error()+"\n")
		}
		if err := o.store.Service().UpdateRevision(ctx, svc.ID, revision); err != nil {
			return err
		}
		svc.Revision = revision
		log.Info("source synced", "revision", revision)
	}

	if err := o.workspaces.ApplyOverrides(svc.ID, files); err != nil {
		return o.executor.Fail(ctx, svc.ID, err.Error()+"\n")
	}

	return o.executor.Execute(ctx, svc)
}

// track registers cancel as the way to stop the task running on id. It
// refuses while a Delete of id is in progress.
func (o *Orchestrator) track(id string, cancel context.CancelCauseFunc) bool {
	o.tasksMu.Lock()
	defer o.tasksMu.Unlock()
	if o.deleting[id] > 0 {
		return false
	}
	o.running[id] = cancel
	return true
}

func (o *Orchestrator) untrack(id string) {
	o.tasksMu.Lock()
	defer o.tasksMu.Unlock()
	delete(o.running, id)
}

// preempt cancels the task running on id and keeps new ones from starting
// until endPreempt.
func (o *Orchestrator) preempt(id string) {
	o.tasksMu.Lock()
	defer o.tasksMu.Unlock()
	o.deleting[id]++
	if cancel, ok := o.running[id]; ok {
		slog.Info("cancelling running task", "service_id", id)
		cancel(errServiceDelete)
	}
}

func (o *Orchestrator) endPreempt(id string) {
	o.tasksMu.Lock()
	defer o.tasksMu.Unlock()
	if o.deleting[id]--; o.deleting[id] <= 0 {
		delete(o.deleting, id)
	}
}

// Reconcile compares a RUNNING or STOPPED container-backed service with the
// runtime and persists a changed state. It is best effort: it skips services
// that are being worked on and gives up after the status timeout.
func (o *Orchestrator) Reconcile(ctx context.Context, svc *model.Service) *model.Service {
	if !reconcilable(svc) {
		return svc
	}
	release, ok := o.leases.TryAcquire(svc.ID)
	if !ok {
		return svc
	}
	defer release()

	// re-read under the lease; a task may have finished since svc was loaded
	current, err := o.store.Service().Get(ctx, svc.ID)
	if err != nil || !reconcilable(current) {
		if err != nil && !errors.Is(err, store.ErrServiceNotFound) {
			slog.Warn("reconcile: reload failed", "service_id", svc.ID, "error", err)
		}
		if current != nil {
			return current
		}
		return svc
	}

	statusCtx, cancel := context.WithTimeout(ctx, o.opts.StatusTimeout)
	defer cancel()
	status, err := o.executor.Status(statusCtx, current)

	next := model.StateStopped
	switch {
	case errors.Is(err, runtime.ErrContainerNotFound):
	case err != nil:
		slog.Debug("reconcile: status unavailable", "service_id", current.ID, "error", err)
		return current
	case status.Up():
		next = model.StateRunning
	}
	if next == current.State {
		return current
	}

	if err := o.store.Service().UpdateState(ctx, current.ID, next); err != nil {
		slog.Warn("reconcile: state update failed", "service_id", current.ID, "error", err)
		return current
	}
	slog.Info("reconciled service state", "service_id", current.ID, "from", current.State, "to", next, "status", status)
	reconciled := *current
	reconciled.State = next
	return &reconciled
}

func reconcilable(svc *model.Service) bool {
	return svc.Mode.RunsContainer() && (svc.State == model.StateRunning || svc.State == model.StateStopped)
}

// ReconcileAll applies Reconcile to every RUNNING or STOPPED container-backed
// service and returns how many changed state.
func (o *Orchestrator) ReconcileAll(ctx context.Context) (int, error) {
	services, err := o.store.Service().List(ctx, &store.ServiceFilter{
		States: []model.State{model.StateRunning, model.StateStopped},
		Modes:  []model.Mode{model.ModeBuildFromSource, model.ModePrebuiltImage},
	}, nil)
	if err != nil {
		return 0, err
	}

	changed := 0
	for i := range services {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		if o.Reconcile(ctx, &services[i]).State != services[i].State {
			changed++
		}
	}
	return changed, nil
}

// FailInterrupted marks services left INITIALIZING, BUILDING or UPDATING by
// an earlier process as BUILD_FAILED. Call it only before the dispatcher
// starts and only when no queued task can outlive a restart.
func (o *Orchestrator) FailInterrupted(ctx context.Context) (int, error) {
	services, err := o.store.Service().List(ctx, &store.ServiceFilter{
		States: []model.State{model.StateInitializing, model.StateBuilding, model.StateUpdating},
	}, nil)
	if err != nil {
		return 0, err
	}
	for i := range services {
		slog.Warn("task interrupted by restart", "service_id", services[i].ID, "state", services[i].State)
		if err := o.executor.Fail(ctx, services[i].ID, "interrupted: the orchestrator restarted before the task finished\n"); err != nil {
			return i, err
		}
	}
	return len(services), nil
}
