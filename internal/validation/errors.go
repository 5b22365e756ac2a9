package validation

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPortMapping   = errors.New("invalid port mapping")
	ErrInvalidVolumeMapping = errors.New("invalid volume mapping")
	ErrUnsupportedMode      = errors.New("unsupported mode")
	ErrInvalidWorkspaceRoot = errors.New("invalid workspace root")
)

// PortConflictError reports an external port held by another active service.
type PortConflictError struct {
	Port  int
	Owner string
}

func (e *PortConflictError) Error() string {
	return fmt.Sprintf("port %d is already in use", e.Port)
}
