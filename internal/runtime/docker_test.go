package runtime_test

import (
	"context"
	"errors"
	"strings"

	"github.com/dcm-project/service-orchestrator/internal/config"
	"github.com/dcm-project/service-orchestrator/internal/runtime"
	"github.com/dcm-project/service-orchestrator/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type call struct {
	dir  string
	line string
}

type result struct {
	output string
	code   int
}

// scriptedRunner answers commands by prefix and records every call.
type scriptedRunner struct {
	calls   []call
	results map[string]result
}

func (r *scriptedRunner) Run(_ context.Context, dir, name string, args ...string) ([]byte, int, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	r.calls = append(r.calls, call{dir: dir, line: line})
	for prefix, res := range r.results {
		if strings.HasPrefix(line, prefix) {
			if res.code != 0 {
				return []byte(res.output), res.code, errors.New("exit status")
			}
			return []byte(res.output), 0, nil
		}
	}
	return nil, 0, nil
}

func (r *scriptedRunner) lines() []string {
	lines := make([]string, len(r.calls))
	for i, c := range r.calls {
		lines[i] = c.line
	}
	return lines
}

var _ = Describe("DockerCLI", func() {
	var (
		runner *scriptedRunner
		docker *runtime.DockerCLI
		ctx    context.Context
	)

	BeforeEach(func() {
		runner = &scriptedRunner{results: map[string]result{}}
		docker = runtime.NewDockerCLI(&config.RuntimeConfig{
			DockerBinary:   "docker",
			ComposeCommand: "docker compose",
			RestartPolicy:  "unless-stopped",
		}, runner)
		ctx = context.Background()
	})

	It("builds and pulls images", func() {
		Expect(docker.BuildImage(ctx, "repo:latest", "/srv/repo")).To(Succeed())
		Expect(docker.PullImage(ctx, "nginx:1.27")).To(Succeed())

		Expect(runner.lines()).To(Equal([]string{
			"docker build -t repo:latest /srv/repo",
			"docker pull nginx:1.27",
		}))
	})

	It("runs a container with ports, volumes and env file", func() {
		err := docker.RunContainer(ctx, runtime.ContainerSpec{
			Name:    "repo",
			Image:   "repo:latest",
			Ports:   []model.PortMapping{{External: 8080, Internal: 80}},
			Volumes: []model.VolumeMapping{{Host: "/data", Container: "/var/data"}},
			EnvFile: "/srv/repo/.env",
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(runner.lines()).To(Equal([]string{
			"docker run -d --name repo --restart unless-stopped -p 8080:80 -v /data:/var/data --env-file /srv/repo/.env repo:latest",
		}))
	})

	It("returns the verbatim output and cleans up when the run fails", func() {
		runner.results["docker run"] = result{output: "port is already allocated\n", code: 125}

		err := docker.RunContainer(ctx, runtime.ContainerSpec{Name: "repo", Image: "repo:latest"})

		var cmdErr *runtime.CommandError
		Expect(errors.As(err, &cmdErr)).To(BeTrue())
		Expect(cmdErr.ExitCode).To(Equal(125))
		Expect(cmdErr.Output).To(Equal("port is already allocated\n"))
		Expect(runtime.Output(err)).To(Equal("port is already allocated\n"))
		Expect(runner.lines()).To(ContainElement("docker rm -f repo"))
	})

	It("maps a missing container to ErrContainerNotFound", func() {
		runner.results["docker rm"] = result{output: "Error response from daemon: No such container: repo", code: 1}
		runner.results["docker inspect"] = result{output: "Error: No such object: repo", code: 1}

		Expect(docker.RemoveContainer(ctx, "repo")).To(MatchError(runtime.ErrContainerNotFound))
		_, err := docker.ContainerStatus(ctx, "repo")
		Expect(err).To(MatchError(runtime.ErrContainerNotFound))
	})

	It("reads the container status", func() {
		runner.results["docker inspect"] = result{output: "exited\n"}

		status, err := docker.ContainerStatus(ctx, "repo")

		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(runtime.StatusExited))
		Expect(status.Up()).To(BeFalse())
	})

	It("runs compose in the build directory under the service project", func() {
		Expect(docker.ComposeBuild(ctx, "stack", "/srv/stack")).To(Succeed())
		Expect(docker.ComposeUp(ctx, "stack", "/srv/stack")).To(Succeed())
		Expect(docker.ComposeDown(ctx, "stack", "/srv/stack")).To(Succeed())

		Expect(runner.lines()).To(Equal([]string{
			"docker compose -p stack build",
			"docker compose -p stack up -d",
			"docker compose -p stack down",
		}))
		for _, c := range runner.calls {
			Expect(c.dir).To(Equal("/srv/stack"))
		}
	})

	It("supports a standalone compose binary", func() {
		docker = runtime.NewDockerCLI(&config.RuntimeConfig{DockerBinary: "docker", ComposeCommand: "docker-compose"}, runner)

		Expect(docker.ComposeUp(ctx, "stack", "/srv/stack")).To(Succeed())
		Expect(runner.lines()).To(Equal([]string{"docker-compose -p stack up -d"}))
	})
})
