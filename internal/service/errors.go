package service

import (
	"errors"
	"fmt"

	"github.com/dcm-project/service-orchestrator/internal/store"
	"github.com/dcm-project/service-orchestrator/internal/validation"
	"github.com/dcm-project/service-orchestrator/internal/workspace"
)

// Error codes returned by service operations.
const (
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeAlreadyExists        = "ALREADY_EXISTS"
	ErrCodePortConflict         = "PORT_CONFLICT"
	ErrCodeInvalidPortMapping   = "INVALID_PORT_MAPPING"
	ErrCodeInvalidVolumeMapping = "INVALID_VOLUME_MAPPING"
	ErrCodeUnsupportedMode      = "UNSUPPORTED_MODE"
	ErrCodeValidation           = "VALIDATION"
	ErrCodeSourceFetch          = "SOURCE_FETCH"
	ErrCodeBusy                 = "BUSY"
	ErrCodeUnavailable          = "UNAVAILABLE"
	ErrCodeInternal             = "INTERNAL"
)

// ServiceError represents a business logic error with a code for HTTP mapping.
type ServiceError struct {
	Code    string
	Message string
	// Port is the conflicting external port for ErrCodePortConflict.
	Port int
}

func (e *ServiceError) Error() string {
	return e.Message
}

func notFound(id string) *ServiceError {
	return &ServiceError{Code: ErrCodeNotFound, Message: fmt.Sprintf("service %s not found", id)}
}

func portConflict(port int) *ServiceError {
	return &ServiceError{Code: ErrCodePortConflict, Message: fmt.Sprintf("port %d is already in use", port), Port: port}
}

// classify maps lower-layer errors onto service errors. Errors it does not
// recognise are returned unchanged.
func classify(err error) error {
	var (
		conflict *validation.PortConflictError
		claimed  *store.PortClaimedError
	)
	switch {
	case errors.As(err, &conflict):
		return portConflict(conflict.Port)
	case errors.As(err, &claimed):
		return portConflict(claimed.Port)
	case errors.Is(err, validation.ErrInvalidPortMapping):
		return &ServiceError{Code: ErrCodeInvalidPortMapping, Message: err.Error()}
	case errors.Is(err, validation.ErrInvalidVolumeMapping):
		return &ServiceError{Code: ErrCodeInvalidVolumeMapping, Message: err.Error()}
	case errors.Is(err, validation.ErrUnsupportedMode):
		return &ServiceError{Code: ErrCodeUnsupportedMode, Message: err.Error()}
	case errors.Is(err, validation.ErrInvalidWorkspaceRoot),
		errors.Is(err, workspace.ErrInvalidOverridePath),
		errors.Is(err, workspace.ErrInvalidSourceLocator),
		errors.Is(err, workspace.ErrInvalidImageReference):
		return &ServiceError{Code: ErrCodeValidation, Message: err.Error()}
	case errors.Is(err, workspace.ErrAlreadyExists), errors.Is(err, store.ErrServiceExists):
		return &ServiceError{Code: ErrCodeAlreadyExists, Message: err.Error()}
	case errors.Is(err, workspace.ErrSourceFetch):
		return &ServiceError{Code: ErrCodeSourceFetch, Message: err.Error()}
	}
	return err
}
