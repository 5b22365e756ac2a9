package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dcm-project/service-orchestrator/internal/config"
)

// DockerCLI drives the docker binary and its compose plugin.
type DockerCLI struct {
	runner        Runner
	binary        string
	compose       []string
	restartPolicy string
}

var _ Runtime = (*DockerCLI)(nil)

func NewDockerCLI(cfg *config.RuntimeConfig, runner Runner) *DockerCLI {
	if runner == nil {
		runner = ExecRunner{}
	}
	compose := strings.Fields(cfg.ComposeCommand)
	if len(compose) == 0 {
		compose = []string{cfg.DockerBinary, "compose"}
	}
	return &DockerCLI{
		runner:        runner,
		binary:        cfg.DockerBinary,
		compose:       compose,
		restartPolicy: cfg.RestartPolicy,
	}
}

func (d *DockerCLI) exec(ctx context.Context, dir, name string, args ...string) (string, error) {
	slog.Debug("runtime command", "cmd", name, "args", args, "dir", dir)
	out, code, err := d.runner.Run(ctx, dir, name, args...)
	if err != nil {
		output := string(out)
		if output == "" {
			output = err.Error()
		}
		return output, &CommandError{Args: append([]string{name}, args...), ExitCode: code, Output: output}
	}
	return string(out), nil
}

func (d *DockerCLI) docker(ctx context.Context, args ...string) (string, error) {
	return d.exec(ctx, "", d.binary, args...)
}

func (d *DockerCLI) composeCmd(ctx context.Context, project, dir string, args ...string) error {
	full := append(append([]string{}, d.compose[1:]...), "-p", project)
	_, err := d.exec(ctx, dir, d.compose[0], append(full, args...)...)
	return err
}

func (d *DockerCLI) BuildImage(ctx context.Context, tag, contextDir string) error {
	_, err := d.docker(ctx, "build", "-t", tag, contextDir)
	return err
}

func (d *DockerCLI) PullImage(ctx context.Context, ref string) error {
	_, err := d.docker(ctx, "pull", ref)
	return err
}

// RunContainer starts spec detached. A container left behind by a failed
// start is removed so the name can be reused.
func (d *DockerCLI) RunContainer(ctx context.Context, spec ContainerSpec) error {
	args := []string{"run", "-d", "--name", spec.Name}
	if d.restartPolicy != "" {
		args = append(args, "--restart", d.restartPolicy)
	}
	for _, p := range spec.Ports {
		args = append(args, "-p", fmt.Sprintf("%d:%d", p.External, p.Internal))
	}
	for _, v := range spec.Volumes {
		args = append(args, "-v", v.Host+":"+v.Container)
	}
	if spec.EnvFile != "" {
		args = append(args, "--env-file", spec.EnvFile)
	}
	args = append(args, spec.Image)

	if _, err := d.docker(ctx, args...); err != nil {
		if rmErr := d.RemoveContainer(ctx, spec.Name); rmErr != nil && !errors.Is(rmErr, ErrContainerNotFound) {
			slog.Warn("failed to remove container after failed start", "container", spec.Name, "error", rmErr)
		}
		return err
	}
	return nil
}

func (d *DockerCLI) RemoveContainer(ctx context.Context, name string) error {
	out, err := d.docker(ctx, "rm", "-f", name)
	if err != nil && isNotFound(out) {
		return ErrContainerNotFound
	}
	return err
}

func (d *DockerCLI) ComposeBuild(ctx context.Context, project, dir string) error {
	return d.composeCmd(ctx, project, dir, "build")
}

func (d *DockerCLI) ComposeUp(ctx context.Context, project, dir string) error {
	return d.composeCmd(ctx, project, dir, "up", "-d")
}

func (d *DockerCLI) ComposeDown(ctx context.Context, project, dir string) error {
	return d.composeCmd(ctx, project, dir, "down")
}

func (d *DockerCLI) ContainerStatus(ctx context.Context, name string) (ContainerStatus, error) {
	out, err := d.docker(ctx, "inspect", "-f", "{{.State.Status}}", name)
	if err != nil {
		if isNotFound(out) {
			return "", ErrContainerNotFound
		}
		return "", err
	}
	return ContainerStatus(strings.TrimSpace(out)), nil
}

func isNotFound(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "no such container") || strings.Contains(lower, "no such object")
}
