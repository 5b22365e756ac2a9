package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"

	v1 "github.com/dcm-project/service-orchestrator/api/v1"
	"github.com/dcm-project/service-orchestrator/internal/cli"
	"github.com/dcm-project/service-orchestrator/pkg/client"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const manifestYAML = `
host: http://orchestrator.local/api/v1
api_key: secret
services:
  - mode: PREBUILT_IMAGE
    image: nginx
    tag: latest
    port: "8080:80"
    volumes:
      - /srv/html:/usr/share/nginx/html
    files:
      - path: .env
        source: nginx.env
  - mode: BUILD_FROM_SOURCE
    source_locator: https://example.com/api.git
    files:
      - path: Dockerfile
        source: api.Dockerfile
`

var _ = Describe("Bootstrap", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "services.yaml"), []byte(manifestYAML), 0o644)).To(Succeed())
		Expect(os.MkdirAll(filepath.Join(dir, "files"), 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "files", "nginx.env"), []byte("MODE=prod\n"), 0o644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "files", "api.Dockerfile"), []byte("FROM golang\n"), 0o644)).To(Succeed())
	})

	Describe("LoadManifest", func() {
		It("reads services and resolves the files directory", func() {
			manifest, err := cli.LoadManifest(filepath.Join(dir, "services.yaml"))

			Expect(err).NotTo(HaveOccurred())
			Expect(manifest.Host).To(Equal("http://orchestrator.local/api/v1"))
			Expect(manifest.APIKey).To(Equal("secret"))
			Expect(manifest.FilesDir).To(Equal(filepath.Join(dir, "files")))
			Expect(manifest.Services).To(HaveLen(2))
			Expect(manifest.Services[0].Volumes).To(ConsistOf("/srv/html:/usr/share/nginx/html"))
			Expect(manifest.Services[1].Files).To(ConsistOf(cli.ManifestFile{Path: "Dockerfile", Source: "api.Dockerfile"}))
		})

		It("lets the environment override the host", func() {
			GinkgoT().Setenv("ORCHESTRATOR_HOST", "http://other:9000/api/v1")

			manifest, err := cli.LoadManifest(filepath.Join(dir, "services.yaml"))

			Expect(err).NotTo(HaveOccurred())
			Expect(manifest.Host).To(Equal("http://other:9000/api/v1"))
		})

		It("fails for a missing manifest", func() {
			_, err := cli.LoadManifest(filepath.Join(dir, "absent.yaml"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Bootstrap", func() {
		var (
			mu       sync.Mutex
			received []v1.RegisterServiceRequest
			srv      *httptest.Server
		)

		BeforeEach(func() {
			received = nil
			srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req v1.RegisterServiceRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				mu.Lock()
				received = append(received, req)
				mu.Unlock()
				w.Header().Set("Content-Type", "application/json")
				if req.Mode == "BUILD_FROM_SOURCE" {
					w.Header().Set("Content-Type", "application/problem+json")
					w.WriteHeader(http.StatusUnprocessableEntity)
					_ = json.NewEncoder(w).Encode(v1.Error{Type: "source-fetch-error", Title: "Source could not be fetched"})
					return
				}
				w.WriteHeader(http.StatusCreated)
				_ = json.NewEncoder(w).Encode(v1.TaskAcknowledgement{Id: req.Image, State: v1.Created, Task: "t1"})
			}))
		})

		AfterEach(func() {
			srv.Close()
		})

		It("registers every service with its file contents and reports failures", func() {
			manifest, err := cli.LoadManifest(filepath.Join(dir, "services.yaml"))
			Expect(err).NotTo(HaveOccurred())
			var out bytes.Buffer

			err = cli.Bootstrap(context.Background(), manifest, client.New(srv.URL+"/api/v1"), 0, &out)

			Expect(err).To(MatchError(ContainSubstring("service 1")))
			Expect(received).To(HaveLen(2))
			Expect(received[0].Files).To(HaveKeyWithValue(".env", "MODE=prod\n"))
			Expect(received[1].Files).To(HaveKeyWithValue("Dockerfile", "FROM golang\n"))
			Expect(out.String()).To(ContainSubstring("service 0: registered nginx (task t1)"))
			Expect(out.String()).To(ContainSubstring("service 1: registration failed"))
		})

		It("skips a service whose override file is missing", func() {
			manifest, err := cli.LoadManifest(filepath.Join(dir, "services.yaml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(os.Remove(filepath.Join(dir, "files", "nginx.env"))).To(Succeed())

			err = cli.Bootstrap(context.Background(), manifest, client.New(srv.URL+"/api/v1"), 0, &bytes.Buffer{})

			Expect(err).To(MatchError(ContainSubstring("read override .env")))
			Expect(received).To(HaveLen(1))
		})
	})
})

var _ = Describe("version", func() {
	It("prints the build version", func() {
		var out bytes.Buffer
		cmd := cli.NewRootCommand()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"version"})

		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(Equal(cli.Version + "\n"))
	})
})
