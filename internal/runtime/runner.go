package runtime

import (
	"context"
	"errors"
	"os/exec"
)

// Runner executes a command in dir and returns its combined output and exit code.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (output []byte, exitCode int, err error)
}

// ExecRunner runs commands as child processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, exitErr.ExitCode(), err
		}
		return out, -1, err
	}
	return out, 0, nil
}
