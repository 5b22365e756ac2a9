package config_test

import (
	"log/slog"
	"time"

	"github.com/dcm-project/service-orchestrator/internal/config"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Load", func() {
	It("applies defaults", func() {
		cfg, err := config.Load()

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Database.Type).To(Equal("sqlite"))
		Expect(cfg.Service.Address).To(Equal(":8080"))
		Expect(cfg.Service.LeaseWait).To(Equal(2 * time.Second))
		Expect(cfg.Workspace.Dir).To(Equal("services"))
		Expect(cfg.Runtime.ComposeCommand).To(Equal("docker compose"))
		Expect(cfg.Dispatcher.Backend).To(Equal("pool"))
		Expect(cfg.Dispatcher.MaxRetry).To(Equal(3))
		Expect(cfg.Dispatcher.TaskTimeout).To(Equal(30 * time.Minute))
		Expect(cfg.Reconcile.OnGet).To(BeTrue())
	})

	It("reads overrides from the environment", func() {
		GinkgoT().Setenv("SVC_API_KEYS", "alpha,beta")
		GinkgoT().Setenv("DISPATCHER_WORKERS", "4")
		GinkgoT().Setenv("RECONCILE_INTERVAL", "1m")
		GinkgoT().Setenv("DISPATCHER_TASK_TIMEOUT", "10m")

		cfg, err := config.Load()

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Service.APIKeys).To(Equal([]string{"alpha", "beta"}))
		Expect(cfg.Dispatcher.Workers).To(Equal(4))
		Expect(cfg.Reconcile.Interval).To(Equal(time.Minute))
		Expect(cfg.Dispatcher.TaskTimeout).To(Equal(10 * time.Minute))
	})

	It("falls back to sqlite and the pool for unknown backends", func() {
		GinkgoT().Setenv("DB_TYPE", "oracle")
		GinkgoT().Setenv("DISPATCHER_BACKEND", "carrier-pigeon")

		cfg, err := config.Load()

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Database.Type).To(Equal("sqlite"))
		Expect(cfg.Dispatcher.Backend).To(Equal("pool"))
	})

	It("maps the log level", func() {
		Expect((&config.ServiceConfig{LogLevel: "debug"}).SlogLevel()).To(Equal(slog.LevelDebug))
		Expect((&config.ServiceConfig{LogLevel: "nonsense"}).SlogLevel()).To(Equal(slog.LevelInfo))
	})
})
