package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	v1 "github.com/dcm-project/service-orchestrator/api/v1"
	"github.com/dcm-project/service-orchestrator/internal/api/server"
	"github.com/dcm-project/service-orchestrator/internal/service"
)

// newError creates an RFC 7807 compliant error response.
func newError(errType, title, detail string, status int) v1.Error {
	return v1.Error{
		Type:   errType,
		Title:  title,
		Detail: &detail,
		Status: &status,
	}
}

// problemFor converts a service error to a problem document. Errors without
// a code are reported as internal failures.
func problemFor(err error, fallbackType, fallbackTitle string) v1.Error {
	var svcErr *service.ServiceError
	if !errors.As(err, &svcErr) {
		slog.Error(fallbackTitle, "error", err)
		return newError(fallbackType, fallbackTitle, err.Error(), http.StatusInternalServerError)
	}

	switch svcErr.Code {
	case service.ErrCodeValidation:
		return newError("validation-error", "Validation failed", svcErr.Message, http.StatusBadRequest)
	case service.ErrCodeInvalidPortMapping:
		return newError("invalid-port-mapping", "Invalid port mapping", svcErr.Message, http.StatusBadRequest)
	case service.ErrCodeInvalidVolumeMapping:
		return newError("invalid-volume-mapping", "Invalid volume mapping", svcErr.Message, http.StatusBadRequest)
	case service.ErrCodeUnsupportedMode:
		return newError("unsupported-mode", "Unsupported mode", svcErr.Message, http.StatusBadRequest)
	case service.ErrCodeNotFound:
		return newError("not-found", "Service not found", svcErr.Message, http.StatusNotFound)
	case service.ErrCodeAlreadyExists:
		return newError("already-exists", "Service already exists", svcErr.Message, http.StatusConflict)
	case service.ErrCodePortConflict:
		problem := newError("port-conflict", "Port already in use", svcErr.Message, http.StatusConflict)
		port := svcErr.Port
		problem.Port = &port
		return problem
	case service.ErrCodeBusy:
		return newError("busy", "Service is busy", svcErr.Message, http.StatusConflict)
	case service.ErrCodeSourceFetch:
		return newError("source-fetch-error", "Source could not be fetched", svcErr.Message, http.StatusUnprocessableEntity)
	case service.ErrCodeUnavailable:
		return newError("unavailable", "Task could not be scheduled", svcErr.Message, http.StatusServiceUnavailable)
	}
	slog.Error(fallbackTitle, "code", svcErr.Code, "error", svcErr.Message)
	return newError(fallbackType, fallbackTitle, svcErr.Message, http.StatusInternalServerError)
}

func writeError(w http.ResponseWriter, err error, fallbackType, fallbackTitle string) {
	server.WriteProblem(w, problemFor(err, fallbackType, fallbackTitle))
}
