package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	v1 "github.com/dcm-project/service-orchestrator/api/v1"
	"github.com/dcm-project/service-orchestrator/internal/dispatcher"
	"github.com/dcm-project/service-orchestrator/internal/executor"
	"github.com/dcm-project/service-orchestrator/internal/lease"
	"github.com/dcm-project/service-orchestrator/internal/store"
	"github.com/dcm-project/service-orchestrator/internal/store/model"
	"github.com/dcm-project/service-orchestrator/internal/validation"
	"github.com/dcm-project/service-orchestrator/internal/workspace"
)

const (
	defaultPageSize = 100
	maxPageSize     = 100
)

// ListResult contains the result of listing services with pagination info.
type ListResult struct {
	Services      []v1.Service
	NextPageToken string
}

// Options tunes request-path behaviour of the Orchestrator.
type Options struct {
	// LeaseWait bounds how long a request waits for work on the same service.
	LeaseWait time.Duration
	// ReconcileOnGet compares RUNNING/STOPPED services with the runtime on Get.
	ReconcileOnGet bool
	StatusTimeout  time.Duration
	// TaskTimeout bounds one build or redeploy; zero means no deadline.
	TaskTimeout time.Duration
}

// Orchestrator handles the lifecycle of services: registration, redeploys,
// deletion and state queries. Builds and redeploys run on the dispatcher.
type Orchestrator struct {
	store      store.Store
	workspaces *workspace.Manager
	executor   *executor.Executor
	dispatcher dispatcher.Dispatcher
	leases     *lease.Table
	opts       Options

	tasksMu  sync.Mutex
	running  map[string]context.CancelCauseFunc
	deleting map[string]int
}

func NewOrchestrator(store store.Store, workspaces *workspace.Manager, exec *executor.Executor,
	disp dispatcher.Dispatcher, leases *lease.Table, opts Options) *Orchestrator {
	if opts.LeaseWait <= 0 {
		opts.LeaseWait = 2 * time.Second
	}
	if opts.StatusTimeout <= 0 {
		opts.StatusTimeout = 2 * time.Second
	}
	return &Orchestrator{
		store:      store,
		workspaces: workspaces,
		executor:   exec,
		dispatcher: disp,
		leases:     leases,
		opts:       opts,
		running:    make(map[string]context.CancelCauseFunc),
		deleting:   make(map[string]int),
	}
}

// Register validates req, materialises the workspace, persists the record in
// INITIALIZING and dispatches the first build. It returns before the build
// runs. Validation and identity errors leave nothing behind.
func (o *Orchestrator) Register(ctx context.Context, req *v1.RegisterServiceRequest) (*v1.TaskAcknowledgement, error) {
	svc, err := o.newServiceModel(req)
	if err != nil {
		return nil, err
	}
	log := slog.With("service_id", svc.ID, "mode", svc.Mode)

	release, err := o.acquire(ctx, svc.ID)
	if err != nil {
		return nil, err
	}
	created, err := o.create(ctx, svc, req.SourceLocator, req.Files)
	release()
	if err != nil {
		return nil, err
	}
	log.Info("registered service", "revision", created.Revision)

	taskID, err := o.dispatch(ctx, dispatcher.Task{Kind: dispatcher.KindBuild, ServiceID: created.ID})
	if err != nil {
		return nil, err
	}
	return &v1.TaskAcknowledgement{Id: created.ID, State: v1.Created, Task: taskID}, nil
}

func (o *Orchestrator) newServiceModel(req *v1.RegisterServiceRequest) (model.Service, error) {
	mode, err := validation.ParseMode(req.Mode)
	if err != nil {
		return model.Service{}, classify(err)
	}
	volumes, err := validation.ParseVolumeMappings(req.Volumes)
	if err != nil {
		return model.Service{}, classify(err)
	}
	root := req.WorkspaceRoot
	if root == "" {
		root = "."
	}
	if err := validation.ValidateWorkspaceRoot(root); err != nil {
		return model.Service{}, classify(err)
	}
	if err := workspace.CheckOverridePaths(req.Files); err != nil {
		return model.Service{}, classify(err)
	}

	var ports []model.PortMapping
	if mode.RequiresPorts() || (mode.BindsPorts() && strings.TrimSpace(req.Port) != "") {
		if ports, err = validation.ParsePortMapping(req.Port); err != nil {
			return model.Service{}, classify(err)
		}
	}

	svc := model.Service{
		Mode:           mode,
		State:          model.StateInitializing,
		PortMappings:   ports,
		VolumeMappings: volumes,
		WorkspaceRoot:  root,
	}
	if mode == model.ModePrebuiltImage {
		if req.Image == "" || req.Tag == "" {
			return model.Service{}, &ServiceError{Code: ErrCodeValidation, Message: "image and tag are required for PREBUILT_IMAGE"}
		}
		svc.ImageReference = req.Image
		svc.ImageTag = req.Tag
	} else {
		if req.SourceLocator == "" {
			return model.Service{}, &ServiceError{Code: ErrCodeValidation, Message: fmt.Sprintf("source_locator is required for %s", mode)}
		}
		svc.SourceLocator = req.SourceLocator
	}

	if svc.ID, err = workspace.DeriveID(mode, req.SourceLocator, req.Image); err != nil {
		return model.Service{}, classify(err)
	}
	return svc, nil
}

// create runs the synchronous part of registration under the service lease.
func (o *Orchestrator) create(ctx context.Context, svc model.Service, locator string, files map[string]string) (*model.Service, error) {
	exists, err := o.workspaces.Exists(svc.ID)
	if err != nil {
		return nil, err
	}
	if !exists {
		exists, err = o.store.Service().ExistsByID(ctx, svc.ID)
		if err != nil {
			return nil, err
		}
	}
	if exists {
		return nil, &ServiceError{Code: ErrCodeAlreadyExists, Message: fmt.Sprintf("service %s already exists", svc.ID)}
	}

	if err := validation.CheckPortAvailability(ctx, svc.PortMappings, o.store.Service(), ""); err != nil {
		return nil, classify(err)
	}

	ws, err := o.workspaces.Create(ctx, svc.ID, locator, svc.Mode, files)
	if err != nil {
		return nil, classify(err)
	}
	svc.Revision = ws.Revision

	created, err := o.store.Service().Create(ctx, svc)
	if err != nil {
		// the claim insert lost a race or the record appeared meanwhile
		if rmErr := o.workspaces.Destroy(svc.ID); rmErr != nil {
			slog.Error("failed to remove workspace", "service_id", svc.ID, "error", rmErr)
		}
		return nil, classify(err)
	}
	return created, nil
}

// Update validates and commits the patched fields of service id, moves it
// to UPDATING and dispatches the redeploy. A rejected patch changes nothing.
func (o *Orchestrator) Update(ctx context.Context, id string, req *v1.UpdateServiceRequest) (*v1.TaskAcknowledgement, error) {
	if req == nil {
		req = &v1.UpdateServiceRequest{}
	}
	if err := workspace.CheckOverridePaths(req.Files); err != nil {
		return nil, classify(err)
	}

	release, err := o.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	err = o.commitUpdate(ctx, id, req)
	release()
	if err != nil {
		return nil, err
	}

	taskID, err := o.dispatch(ctx, dispatcher.Task{Kind: dispatcher.KindUpdate, ServiceID: id, Files: req.Files})
	if err != nil {
		return nil, err
	}
	slog.Info("redeploy accepted", "service_id", id, "task_id", taskID)
	return &v1.TaskAcknowledgement{Id: id, State: v1.Updating, Task: taskID}, nil
}

// Patch is Update for requests that must change at least one field.
func (o *Orchestrator) Patch(ctx context.Context, id string, req *v1.UpdateServiceRequest) (*v1.TaskAcknowledgement, error) {
	if req == nil || (req.Port == nil && req.Image == nil && req.Tag == nil && req.Volumes == nil && len(req.Files) == 0) {
		return nil, &ServiceError{Code: ErrCodeValidation, Message: "patch must change at least one field"}
	}
	return o.Update(ctx, id, req)
}

func (o *Orchestrator) commitUpdate(ctx context.Context, id string, req *v1.UpdateServiceRequest) error {
	existing, err := o.store.Service().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrServiceNotFound) {
			return notFound(id)
		}
		return err
	}
	updated := *existing

	if req.Port != nil {
		if !existing.Mode.BindsPorts() {
			return &ServiceError{Code: ErrCodeValidation, Message: fmt.Sprintf("%s services do not bind ports", existing.Mode)}
		}
		var ports []model.PortMapping
		// an empty spec unpublishes all ports where the mode allows it
		if existing.Mode.RequiresPorts() || strings.TrimSpace(*req.Port) != "" {
			if ports, err = validation.ParsePortMapping(*req.Port); err != nil {
				return classify(err)
			}
		}
		if err := validation.CheckPortAvailability(ctx, ports, o.store.Service(), id); err != nil {
			return classify(err)
		}
		updated.PortMappings = ports
	}

	if req.Image != nil || req.Tag != nil {
		if existing.Mode != model.ModePrebuiltImage {
			return &ServiceError{Code: ErrCodeValidation, Message: fmt.Sprintf("image and tag cannot be changed on %s services", existing.Mode)}
		}
		if req.Image != nil {
			if *req.Image == "" {
				return &ServiceError{Code: ErrCodeValidation, Message: "image must not be empty"}
			}
			updated.ImageReference = *req.Image
		}
		if req.Tag != nil {
			if *req.Tag == "" {
				return &ServiceError{Code: ErrCodeValidation, Message: "tag must not be empty"}
			}
			updated.ImageTag = *req.Tag
		}
	}

	if req.Volumes != nil {
		volumes, err := validation.ParseVolumeMappings(*req.Volumes)
		if err != nil {
			return classify(err)
		}
		updated.VolumeMappings = volumes
	}

	updated.State = model.StateUpdating
	if _, err := o.store.Service().Update(ctx, updated); err != nil {
		if errors.Is(err, store.ErrServiceNotFound) {
			return notFound(id)
		}
		return classify(err)
	}
	return nil
}

// Delete stops the service, removes its workspace and finally its record.
// A build or redeploy in progress is cancelled first. Every step tolerates
// an earlier partial delete, so retrying converges.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	o.preempt(id)
	defer o.endPreempt(id)

	release, err := o.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	svc, err := o.store.Service().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrServiceNotFound) {
			return notFound(id)
		}
		return err
	}

	if err := o.executor.Teardown(ctx, svc); err != nil {
		return &ServiceError{Code: ErrCodeInternal, Message: fmt.Sprintf("stop service %s: %v", id, err)}
	}
	if err := o.workspaces.Destroy(id); err != nil {
		return &ServiceError{Code: ErrCodeInternal, Message: fmt.Sprintf("remove workspace of %s: %v", id, err)}
	}
	if err := o.store.Service().Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrServiceNotFound) {
			return notFound(id)
		}
		return err
	}

	slog.Info("deleted service", "service_id", id)
	return nil
}

// GetService returns the service with its last diagnostic. Returns ErrCodeNotFound if not found.
func (o *Orchestrator) GetService(ctx context.Context, id string) (*v1.Service, error) {
	svc, err := o.store.Service().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrServiceNotFound) {
			return nil, notFound(id)
		}
		return nil, err
	}

	if o.opts.ReconcileOnGet {
		svc = o.Reconcile(ctx, svc)
	}

	diagnostic, err := o.workspaces.ReadDiagnostic(id)
	if err != nil {
		slog.Warn("failed to read diagnostic", "service_id", id, "error", err)
	}
	return ModelToService(svc, diagnostic), nil
}

// ListServices returns services with pagination support per AEP-158.
func (o *Orchestrator) ListServices(ctx context.Context, requestedPageSize int, pageToken string) (*ListResult, error) {
	pageSize := requestedPageSize
	if pageSize < 0 {
		return nil, &ServiceError{Code: ErrCodeValidation, Message: "max_page_size must not be negative"}
	}
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	offset := 0
	if pageToken != "" {
		decoded, err := decodePageToken(pageToken)
		if err != nil || decoded < 0 {
			return nil, &ServiceError{Code: ErrCodeValidation, Message: "invalid page_token"}
		}
		offset = decoded
	}

	total, err := o.store.Service().Count(ctx, nil)
	if err != nil {
		return nil, err
	}

	services, err := o.store.Service().List(ctx, nil, &store.Pagination{Limit: pageSize, Offset: offset})
	if err != nil {
		return nil, err
	}

	result := make([]v1.Service, len(services))
	for i := range services {
		diagnostic, err := o.workspaces.ReadDiagnostic(services[i].ID)
		if err != nil {
			slog.Warn("failed to read diagnostic", "service_id", services[i].ID, "error", err)
		}
		result[i] = *ModelToService(&services[i], diagnostic)
	}

	var nextPageToken string
	nextOffset := offset + len(services)
	if int64(nextOffset) < total {
		nextPageToken = encodePageToken(nextOffset)
	}

	return &ListResult{
		Services:      result,
		NextPageToken: nextPageToken,
	}, nil
}

func encodePageToken(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodePageToken(token string) (int, error) {
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(decoded))
}

func (o *Orchestrator) acquire(ctx context.Context, id string) (lease.Release, error) {
	waitCtx, cancel := context.WithTimeout(ctx, o.opts.LeaseWait)
	defer cancel()
	release, err := o.leases.Acquire(waitCtx, id)
	if err != nil {
		return nil, &ServiceError{Code: ErrCodeBusy, Message: fmt.Sprintf("service %s is busy, retry later", id)}
	}
	return release, nil
}

// dispatch hands task to the dispatcher. When it cannot be accepted the
// service is marked BUILD_FAILED so it does not stay in a transient state.
func (o *Orchestrator) dispatch(ctx context.Context, task dispatcher.Task) (string, error) {
	taskID, err := o.dispatcher.Dispatch(ctx, task)
	if err == nil {
		return taskID, nil
	}

	slog.Error("failed to dispatch task", "service_id", task.ServiceID, "kind", task.Kind, "error", err)
	if failErr := o.executor.Fail(ctx, task.ServiceID, fmt.Sprintf("%s task was not accepted: %v\n", task.Kind, err)); failErr != nil {
		slog.Error("failed to record dispatch failure", "service_id", task.ServiceID, "error", failErr)
	}
	return "", &ServiceError{Code: ErrCodeUnavailable, Message: fmt.Sprintf("cannot schedule %s of %s: %v", task.Kind, task.ServiceID, err)}
}
