package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_http_requests_total",
			Help: "Total HTTP requests by route and status code",
		},
		[]string{"method", "route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	builds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_builds_total",
			Help: "Build and run attempts by mode and result",
		},
		[]string{"mode", "result"},
	)

	buildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_build_duration_seconds",
			Help:    "Duration of build and run attempts",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"mode"},
	)

	tasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_tasks_dispatched_total",
			Help: "Background tasks accepted by the dispatcher",
		},
		[]string{"kind"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_dispatcher_queue_depth",
			Help: "Tasks waiting for a worker",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequests)
	prometheus.MustRegister(httpDuration)
	prometheus.MustRegister(builds)
	prometheus.MustRegister(buildDuration)
	prometheus.MustRegister(tasks)
	prometheus.MustRegister(queueDepth)
}

// ObserveBuild records one executor run.
func ObserveBuild(mode string, success bool, elapsed time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	builds.WithLabelValues(mode, result).Inc()
	buildDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

func TaskDispatched(kind string) {
	tasks.WithLabelValues(kind).Inc()
}

func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// Middleware records request counts and latencies labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
