package apiserver_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	v1 "github.com/dcm-project/service-orchestrator/api/v1"
	apiserver "github.com/dcm-project/service-orchestrator/internal/api_server"
	"github.com/dcm-project/service-orchestrator/internal/api/server"
	"github.com/dcm-project/service-orchestrator/internal/config"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// stubHandler answers every operation with a fixed status.
type stubHandler struct{}

var _ server.ServerInterface = stubHandler{}

func (stubHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	server.WriteJSON(w, http.StatusOK, v1.Health{Status: &status})
}
func (stubHandler) GetOpenAPI(w http.ResponseWriter, r *http.Request) {
	server.WriteJSON(w, http.StatusOK, map[string]string{})
}
func (stubHandler) ListServices(w http.ResponseWriter, r *http.Request, params v1.ListServicesParams) {
	server.WriteJSON(w, http.StatusOK, v1.ServiceList{Services: []v1.Service{}})
}
func (stubHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	if _, err := io.ReadAll(r.Body); err != nil {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}
	w.WriteHeader(http.StatusCreated)
}
func (stubHandler) GetService(w http.ResponseWriter, r *http.Request, serviceId string) {
	panic("boom")
}
func (stubHandler) RedeployService(w http.ResponseWriter, r *http.Request, serviceId string) {
	w.WriteHeader(http.StatusAccepted)
}
func (stubHandler) PatchService(w http.ResponseWriter, r *http.Request, serviceId string) {
	w.WriteHeader(http.StatusAccepted)
}
func (stubHandler) DeleteService(w http.ResponseWriter, r *http.Request, serviceId string) {
	w.WriteHeader(http.StatusNoContent)
}

func newServer(keys ...string) *apiserver.Server {
	cfg := &config.Config{Service: &config.ServiceConfig{APIKeys: keys}}
	return apiserver.New(cfg, nil, stubHandler{})
}

var _ = Describe("Server", func() {
	serve := func(srv *apiserver.Server, method, path, key string, body io.Reader) *httptest.ResponseRecorder {
		GinkgoHelper()
		router, err := srv.Router()
		Expect(err).NotTo(HaveOccurred())
		req := httptest.NewRequest(method, path, body)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	Describe("authentication", func() {
		DescribeTable("checks X-API-Key",
			func(keys []string, path, key string, expected int) {
				rec := serve(newServer(keys...), http.MethodGet, path, key, nil)
				Expect(rec.Code).To(Equal(expected))
			},
			Entry("disabled without keys", nil, "/api/v1/services", "", http.StatusOK),
			Entry("accepts a configured key", []string{"a", "b"}, "/api/v1/services", "b", http.StatusOK),
			Entry("rejects a wrong key", []string{"a"}, "/api/v1/services", "c", http.StatusUnauthorized),
			Entry("rejects a missing key", []string{"a"}, "/api/v1/services", "", http.StatusUnauthorized),
			Entry("leaves health public", []string{"a"}, "/api/v1/health", "", http.StatusOK),
			Entry("leaves the API description public", []string{"a"}, "/api/v1/openapi.json", "", http.StatusOK),
			Entry("leaves metrics public", []string{"a"}, "/metrics", "", http.StatusOK),
		)

		It("answers with a problem document", func() {
			rec := serve(newServer("secret"), http.MethodDelete, "/api/v1/services/nginx", "", nil)

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/problem+json"))
		})
	})

	It("recovers from handler panics", func() {
		rec := serve(newServer(), http.MethodGet, "/api/v1/services/nginx", "", nil)

		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
	})

	It("limits the request body size", func() {
		body := strings.NewReader(strings.Repeat("x", 2<<20))
		rec := serve(newServer(), http.MethodPost, "/api/v1/services", "", body)

		Expect(rec.Code).To(Equal(http.StatusRequestEntityTooLarge))
	})

	It("exposes request metrics by route", func() {
		serve(newServer(), http.MethodPatch, "/api/v1/services/nginx", "", nil)

		rec := serve(newServer(), http.MethodGet, "/metrics", "", nil)
		Expect(rec.Body.String()).To(ContainSubstring(`orchestrator_http_requests_total{code="202",method="PATCH",route="/api/v1/services/{serviceId}"}`))
	})

	It("shuts down when the context is cancelled", func() {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		cfg := &config.Config{Service: &config.ServiceConfig{}}
		srv := apiserver.New(cfg, listener, stubHandler{})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- srv.Run(ctx) }()

		url := fmt.Sprintf("http://%s/api/v1/health", listener.Addr())
		Eventually(func() (int, error) {
			resp, err := http.Get(url)
			if err != nil {
				return 0, err
			}
			defer resp.Body.Close()
			return resp.StatusCode, nil
		}).Should(Equal(http.StatusOK))

		cancel()
		Eventually(done, 10*time.Second).Should(Receive(BeNil()))
	})
})
