package apiserver

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	v1 "github.com/dcm-project/service-orchestrator/api/v1"
	"github.com/dcm-project/service-orchestrator/internal/api/server"
	"github.com/go-chi/chi/v5/middleware"
)

const maxRequestBodySize = 1 << 20 // 1MB

// authMiddleware requires one of keys in X-API-Key on every path not listed
// in public. No keys disables authentication.
func authMiddleware(keys []string, public map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(keys) == 0 || public[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			provided := []byte(r.Header.Get("X-API-Key"))
			for _, key := range keys {
				if subtle.ConstantTimeCompare(provided, []byte(key)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			status := http.StatusUnauthorized
			detail := "missing or invalid X-API-Key header"
			server.WriteProblem(w, v1.Error{Type: "unauthorized", Title: "Unauthorized", Status: &status, Detail: &detail})
		})
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func bodySizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		next.ServeHTTP(w, r)
	})
}
