package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	apiserver "github.com/dcm-project/service-orchestrator/internal/api_server"
	"github.com/dcm-project/service-orchestrator/internal/config"
	"github.com/dcm-project/service-orchestrator/internal/dispatcher"
	"github.com/dcm-project/service-orchestrator/internal/executor"
	"github.com/dcm-project/service-orchestrator/internal/handlers"
	"github.com/dcm-project/service-orchestrator/internal/lease"
	"github.com/dcm-project/service-orchestrator/internal/reconcile"
	"github.com/dcm-project/service-orchestrator/internal/runtime"
	"github.com/dcm-project/service-orchestrator/internal/service"
	"github.com/dcm-project/service-orchestrator/internal/store"
	"github.com/dcm-project/service-orchestrator/internal/workspace"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator API server",
		Long:  "Run the orchestrator API server. Configuration is read from the environment (DB_*, SVC_*, WORKSPACE_*, RUNTIME_*, DISPATCHER_*, RECONCILE_*).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Service.SlogLevel()})))

	// Initialize database
	db, err := store.InitDB(cfg)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	dataStore := store.NewStore(db)
	defer dataStore.Close()

	workspaces := workspace.NewManager(cfg.Workspace.Dir, cfg.Workspace.EnvFile, workspace.GitFetcher{})
	docker := runtime.NewDockerCLI(cfg.Runtime, runtime.ExecRunner{})
	exec := executor.New(docker, workspaces, dataStore.Service())
	disp := dispatcher.New(cfg.Dispatcher)

	orchestrator := service.NewOrchestrator(dataStore, workspaces, exec, disp, lease.New(), service.Options{
		LeaseWait:      cfg.Service.LeaseWait,
		ReconcileOnGet: cfg.Reconcile.OnGet,
		StatusTimeout:  cfg.Runtime.StatusTimeout,
		TaskTimeout:    cfg.Dispatcher.TaskTimeout,
	})

	if cfg.Dispatcher.Backend == "pool" {
		if n, err := orchestrator.FailInterrupted(ctx); err != nil {
			return fmt.Errorf("recover interrupted services: %w", err)
		} else if n > 0 {
			slog.Warn("marked interrupted services as failed", "count", n)
		}
	}

	if err := disp.Start(orchestrator.RunTask); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}
	defer disp.Stop()

	monitor := reconcile.NewMonitor(orchestrator, cfg.Reconcile)
	monitor.Start(ctx)
	defer monitor.Stop()

	// Start server
	listener, err := net.Listen("tcp", cfg.Service.Address)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	srv := apiserver.New(cfg, listener, handlers.NewHandler(orchestrator))

	slog.Info("starting server", "address", listener.Addr().String(),
		"db_type", cfg.Database.Type, "dispatcher", cfg.Dispatcher.Backend, "workspace_dir", cfg.Workspace.Dir)
	return srv.Run(ctx)
}
