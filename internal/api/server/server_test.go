package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"

	v1 "github.com/dcm-project/service-orchestrator/api/v1"
	"github.com/dcm-project/service-orchestrator/internal/api/server"
	"github.com/go-chi/chi/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// recorder captures what the router bound for each call.
type recorder struct {
	op     string
	params v1.ListServicesParams
	id     string
}

func (rec *recorder) GetHealth(w http.ResponseWriter, _ *http.Request) {
	rec.op = "GetHealth"
	w.WriteHeader(http.StatusOK)
}

func (rec *recorder) GetOpenAPI(w http.ResponseWriter, _ *http.Request) {
	rec.op = "GetOpenAPI"
	w.WriteHeader(http.StatusOK)
}

func (rec *recorder) ListServices(w http.ResponseWriter, _ *http.Request, params v1.ListServicesParams) {
	rec.op, rec.params = "ListServices", params
	w.WriteHeader(http.StatusOK)
}

func (rec *recorder) CreateService(w http.ResponseWriter, _ *http.Request) {
	rec.op = "CreateService"
	w.WriteHeader(http.StatusCreated)
}

func (rec *recorder) GetService(w http.ResponseWriter, _ *http.Request, id string) {
	rec.op, rec.id = "GetService", id
	w.WriteHeader(http.StatusOK)
}

func (rec *recorder) RedeployService(w http.ResponseWriter, _ *http.Request, id string) {
	rec.op, rec.id = "RedeployService", id
	w.WriteHeader(http.StatusAccepted)
}

func (rec *recorder) PatchService(w http.ResponseWriter, _ *http.Request, id string) {
	rec.op, rec.id = "PatchService", id
	w.WriteHeader(http.StatusAccepted)
}

func (rec *recorder) DeleteService(w http.ResponseWriter, _ *http.Request, id string) {
	rec.op, rec.id = "DeleteService", id
	w.WriteHeader(http.StatusNoContent)
}

var _ = Describe("HandlerFromMuxWithBaseURL", func() {
	var (
		rec     *recorder
		handler http.Handler
	)

	BeforeEach(func() {
		rec = &recorder{}
		handler = server.HandlerFromMuxWithBaseURL(rec, chi.NewRouter(), "/api/v1alpha1")
	})

	do := func(method, target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(method, target, nil))
		return w
	}

	It("binds the paging query parameters", func() {
		w := do(http.MethodGet, "/api/v1alpha1/services?max_page_size=25&page_token=MjU=")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(rec.op).To(Equal("ListServices"))
		Expect(rec.params.MaxPageSize).To(HaveValue(Equal(25)))
		Expect(rec.params.PageToken).To(HaveValue(Equal("MjU=")))
	})

	It("leaves absent query parameters unset", func() {
		Expect(do(http.MethodGet, "/api/v1alpha1/services").Code).To(Equal(http.StatusOK))

		Expect(rec.params.MaxPageSize).To(BeNil())
		Expect(rec.params.PageToken).To(BeNil())
	})

	It("rejects a non-numeric page size with a problem naming the parameter", func() {
		w := do(http.MethodGet, "/api/v1alpha1/services?max_page_size=ten")

		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(w.Header().Get("Content-Type")).To(Equal("application/problem+json"))
		Expect(rec.op).To(BeEmpty())
		var problem v1.Error
		Expect(json.Unmarshal(w.Body.Bytes(), &problem)).To(Succeed())
		Expect(problem.Type).To(Equal("invalid-parameter"))
		Expect(*problem.Detail).To(ContainSubstring("max_page_size"))
	})

	DescribeTable("binds the service id of item routes",
		func(method, op string) {
			do(method, "/api/v1alpha1/services/acme_api")

			Expect(rec.op).To(Equal(op))
			Expect(rec.id).To(Equal("acme_api"))
		},
		Entry("get", http.MethodGet, "GetService"),
		Entry("redeploy", http.MethodPost, "RedeployService"),
		Entry("patch", http.MethodPatch, "PatchService"),
		Entry("delete", http.MethodDelete, "DeleteService"),
	)

	It("serves nothing outside the base URL", func() {
		Expect(do(http.MethodGet, "/services").Code).To(Equal(http.StatusNotFound))
		Expect(rec.op).To(BeEmpty())
	})
})
