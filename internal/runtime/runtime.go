package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dcm-project/service-orchestrator/internal/store/model"
)

var ErrContainerNotFound = errors.New("container not found")

// Runtime builds and runs the containers backing services.
type Runtime interface {
	BuildImage(ctx context.Context, tag, contextDir string) error
	PullImage(ctx context.Context, ref string) error
	RunContainer(ctx context.Context, spec ContainerSpec) error
	RemoveContainer(ctx context.Context, name string) error
	ComposeBuild(ctx context.Context, project, dir string) error
	ComposeUp(ctx context.Context, project, dir string) error
	ComposeDown(ctx context.Context, project, dir string) error
	ContainerStatus(ctx context.Context, name string) (ContainerStatus, error)
}

// ContainerSpec describes a detached, named container.
type ContainerSpec struct {
	Name    string
	Image   string
	Ports   []model.PortMapping
	Volumes []model.VolumeMapping
	EnvFile string
}

// ContainerStatus is the runtime's view of a container, e.g. "running" or "exited".
type ContainerStatus string

const (
	StatusRunning    ContainerStatus = "running"
	StatusRestarting ContainerStatus = "restarting"
	StatusExited     ContainerStatus = "exited"
	StatusDead       ContainerStatus = "dead"
)

// Up reports whether the container is serving or about to.
func (s ContainerStatus) Up() bool {
	return s == StatusRunning || s == StatusRestarting
}

// CommandError carries the verbatim output of a failed runtime command.
type CommandError struct {
	Args     []string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %s", strings.Join(e.Args, " "), e.ExitCode, strings.TrimSpace(e.Output))
}

// Output returns the diagnostic text for err: the tool output when err came
// from a runtime command, the error text otherwise.
func Output(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Output
	}
	return err.Error()
}
