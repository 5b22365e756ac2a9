package apiserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	v1 "github.com/dcm-project/service-orchestrator/api/v1"
	"github.com/dcm-project/service-orchestrator/internal/api/server"
	"github.com/dcm-project/service-orchestrator/internal/config"
	"github.com/dcm-project/service-orchestrator/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const gracefulShutdownTimeout = 5 * time.Second

type Server struct {
	cfg      *config.Config
	listener net.Listener
	handler  server.ServerInterface
}

func New(cfg *config.Config, listener net.Listener, handler server.ServerInterface) *Server {
	return &Server{
		cfg:      cfg,
		listener: listener,
		handler:  handler,
	}
}

// Router builds the HTTP handler serving the API under the base URL of the
// OpenAPI document, plus /metrics.
func (s *Server) Router() (http.Handler, error) {
	swagger, err := v1.GetSwagger()
	if err != nil {
		return nil, fmt.Errorf("load OpenAPI spec: %w", err)
	}
	if len(swagger.Servers) == 0 {
		return nil, fmt.Errorf("OpenAPI spec missing servers configuration")
	}
	baseURL := swagger.Servers[0].URL

	public := map[string]bool{
		baseURL + "/health":       true,
		baseURL + "/openapi.json": true,
		"/metrics":                true,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(loggingMiddleware)
	router.Use(middleware.Recoverer)
	router.Use(metrics.Middleware)
	router.Use(bodySizeLimitMiddleware)
	router.Use(authMiddleware(s.cfg.Service.APIKeys, public))

	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	server.HandlerFromMuxWithBaseURL(s.handler, router, baseURL)
	return router, nil
}

func (s *Server) Run(ctx context.Context) error {
	router, err := s.Router()
	if err != nil {
		return err
	}
	if len(s.cfg.Service.APIKeys) == 0 {
		slog.Warn("no API keys configured, authentication is disabled")
	}

	srv := http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()
		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
	}()

	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
