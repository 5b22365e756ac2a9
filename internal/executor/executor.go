// Package executor builds and starts the container or compose stack behind a
// service, recording the outcome on the service record.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dcm-project/service-orchestrator/internal/metrics"
	"github.com/dcm-project/service-orchestrator/internal/runtime"
	"github.com/dcm-project/service-orchestrator/internal/store"
	"github.com/dcm-project/service-orchestrator/internal/store/model"
	"github.com/dcm-project/service-orchestrator/internal/workspace"
)

type Executor struct {
	runtime    runtime.Runtime
	workspaces *workspace.Manager
	services   store.Service
}

func New(rt runtime.Runtime, workspaces *workspace.Manager, services store.Service) *Executor {
	return &Executor{runtime: rt, workspaces: workspaces, services: services}
}

// Execute builds and starts svc. The outcome is recorded as RUNNING or
// BUILD_FAILED plus a diagnostic; the returned error only reports a failure
// to record it. Failed builds are not retried.
func (e *Executor) Execute(ctx context.Context, svc *model.Service) error {
	log := slog.With("service_id", svc.ID, "mode", svc.Mode)

	if svc.State == model.StateInitializing {
		if err := e.services.UpdateState(ctx, svc.ID, model.StateBuilding); err != nil {
			return err
		}
	}

	start := time.Now()
	err := e.deploy(ctx, svc)
	metrics.ObserveBuild(string(svc.Mode), err == nil, time.Since(start))
	if err != nil {
		log.Warn("deployment failed", "error", err)
		return e.Fail(ctx, svc.ID, runtime.Output(err))
	}

	if err := e.workspaces.ClearDiagnostic(svc.ID); err != nil {
		log.Warn("failed to clear diagnostic", "error", err)
	}
	log.Info("service running", "elapsed", time.Since(start))
	return e.services.UpdateState(context.WithoutCancel(ctx), svc.ID, model.StateRunning)
}

// Fail marks id as BUILD_FAILED with diagnostic as its error artifact. The
// outcome is recorded even when ctx is already done; its cause is appended
// to the diagnostic.
func (e *Executor) Fail(ctx context.Context, id, diagnostic string) error {
	if cause := context.Cause(ctx); cause != nil {
		if diagnostic != "" && !strings.HasSuffix(diagnostic, "\n") {
			diagnostic += "\n"
		}
		diagnostic += fmt.Sprintf("aborted: %v\n", cause)
	}
	if err := e.workspaces.WriteDiagnostic(id, diagnostic); err != nil {
		slog.Error("failed to write diagnostic", "service_id", id, "error", err)
	}
	return e.services.UpdateState(context.WithoutCancel(ctx), id, model.StateBuildFailed)
}

func (e *Executor) deploy(ctx context.Context, svc *model.Service) error {
	dir := e.workspaces.BuildDir(svc.ID, svc.WorkspaceRoot)

	switch svc.Mode {
	case model.ModeBuildFromSource:
		if err := e.runtime.BuildImage(ctx, svc.ImageName(), dir); err != nil {
			return err
		}
		return e.replaceContainer(ctx, svc)

	case model.ModeComposeStack:
		if err := e.runtime.ComposeBuild(ctx, svc.ID, dir); err != nil {
			return err
		}
		if err := e.runtime.ComposeUp(ctx, svc.ID, dir); err != nil {
			// containers that did come up must not outlive the failure
			if downErr := e.runtime.ComposeDown(ctx, svc.ID, dir); downErr != nil {
				slog.Warn("failed to stop partial stack", "service_id", svc.ID, "error", downErr)
			}
			return err
		}
		return nil

	case model.ModePrebuiltImage:
		if err := e.runtime.PullImage(ctx, svc.ImageName()); err != nil {
			return err
		}
		return e.replaceContainer(ctx, svc)
	}
	return fmt.Errorf("unsupported mode %q", svc.Mode)
}

// replaceContainer starts the container of svc, removing one left behind by
// an earlier attempt of the same task first.
func (e *Executor) replaceContainer(ctx context.Context, svc *model.Service) error {
	if err := e.runtime.RemoveContainer(ctx, svc.ID); err != nil && !errors.Is(err, runtime.ErrContainerNotFound) {
		return err
	}
	return e.runtime.RunContainer(ctx, e.containerSpec(svc))
}

func (e *Executor) containerSpec(svc *model.Service) runtime.ContainerSpec {
	return runtime.ContainerSpec{
		Name:    svc.ID,
		Image:   svc.ImageName(),
		Ports:   svc.PortMappings,
		Volumes: svc.VolumeMappings,
		EnvFile: e.workspaces.EnvFile(svc.ID, svc.WorkspaceRoot),
	}
}

// Teardown stops and removes the container or stack of svc. Resources that
// are already gone are not an error.
func (e *Executor) Teardown(ctx context.Context, svc *model.Service) error {
	var err error
	if svc.Mode == model.ModeComposeStack {
		exists, statErr := e.workspaces.Exists(svc.ID)
		if statErr != nil {
			return statErr
		}
		if !exists {
			// without the descriptor there is no stack to address
			slog.Warn("workspace missing, skipping stack teardown", "service_id", svc.ID)
			return nil
		}
		err = e.runtime.ComposeDown(ctx, svc.ID, e.workspaces.BuildDir(svc.ID, svc.WorkspaceRoot))
	} else {
		err = e.runtime.RemoveContainer(ctx, svc.ID)
	}
	if errors.Is(err, runtime.ErrContainerNotFound) {
		slog.Debug("nothing to tear down", "service_id", svc.ID)
		return nil
	}
	return err
}

// Status reads the live container status of a container-backed service.
func (e *Executor) Status(ctx context.Context, svc *model.Service) (runtime.ContainerStatus, error) {
	return e.runtime.ContainerStatus(ctx, svc.ID)
}
