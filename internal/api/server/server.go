// Package server binds the service API operations to a chi router.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	v1 "github.com/dcm-project/service-orchestrator/api/v1"
	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface is implemented by the API handlers.
type ServerInterface interface {
	// (GET /health)
	GetHealth(w http.ResponseWriter, r *http.Request)
	// (GET /openapi.json)
	GetOpenAPI(w http.ResponseWriter, r *http.Request)
	// (GET /services)
	ListServices(w http.ResponseWriter, r *http.Request, params v1.ListServicesParams)
	// (POST /services)
	CreateService(w http.ResponseWriter, r *http.Request)
	// (GET /services/{serviceId})
	GetService(w http.ResponseWriter, r *http.Request, serviceId string)
	// (POST /services/{serviceId})
	RedeployService(w http.ResponseWriter, r *http.Request, serviceId string)
	// (PATCH /services/{serviceId})
	PatchService(w http.ResponseWriter, r *http.Request, serviceId string)
	// (DELETE /services/{serviceId})
	DeleteService(w http.ResponseWriter, r *http.Request, serviceId string)
}

// InvalidParamFormatError reports a query or path parameter that could not be parsed.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

type wrapper struct {
	handler          ServerInterface
	errorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

func (sw *wrapper) ListServices(w http.ResponseWriter, r *http.Request) {
	var err error
	var params v1.ListServicesParams

	err = runtime.BindQueryParameter("form", true, false, "max_page_size", r.URL.Query(), &params.MaxPageSize)
	if err != nil {
		sw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "max_page_size", Err: err})
		return
	}

	err = runtime.BindQueryParameter("form", true, false, "page_token", r.URL.Query(), &params.PageToken)
	if err != nil {
		sw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "page_token", Err: err})
		return
	}

	sw.handler.ListServices(w, r, params)
}

// withID binds the serviceId path parameter before calling fn.
func (sw *wrapper) withID(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var serviceId string
		err := runtime.BindStyledParameterWithOptions("simple", "serviceId", chi.URLParam(r, "serviceId"), &serviceId,
			runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
		if err != nil {
			sw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "serviceId", Err: err})
			return
		}
		fn(w, r, serviceId)
	}
}

// HandlerFromMuxWithBaseURL registers the API routes on r under baseURL.
func HandlerFromMuxWithBaseURL(si ServerInterface, r chi.Router, baseURL string) http.Handler {
	sw := &wrapper{handler: si, errorHandlerFunc: badRequest}

	r.Group(func(r chi.Router) {
		r.Get(baseURL+"/health", si.GetHealth)
		r.Get(baseURL+"/openapi.json", si.GetOpenAPI)
		r.Get(baseURL+"/services", sw.ListServices)
		r.Post(baseURL+"/services", si.CreateService)
		r.Get(baseURL+"/services/{serviceId}", sw.withID(si.GetService))
		r.Post(baseURL+"/services/{serviceId}", sw.withID(si.RedeployService))
		r.Patch(baseURL+"/services/{serviceId}", sw.withID(si.PatchService))
		r.Delete(baseURL+"/services/{serviceId}", sw.withID(si.DeleteService))
	})
	return r
}

func badRequest(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusBadRequest
	detail := err.Error()
	WriteProblem(w, v1.Error{
		Type:   "invalid-parameter",
		Title:  "Invalid parameter",
		Status: &status,
		Detail: &detail,
	})
}

// WriteJSON writes body as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteProblem writes an RFC 7807 problem document.
func WriteProblem(w http.ResponseWriter, problem v1.Error) {
	status := http.StatusInternalServerError
	if problem.Status != nil {
		status = *problem.Status
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}
