package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	v1 "github.com/dcm-project/service-orchestrator/api/v1"
	"github.com/dcm-project/service-orchestrator/internal/api/server"
	"github.com/dcm-project/service-orchestrator/internal/service"
)

// Handler implements server.ServerInterface for the service API.
type Handler struct {
	orchestrator *service.Orchestrator
}

// NewHandler creates a new Handler with the given orchestrator.
func NewHandler(orchestrator *service.Orchestrator) *Handler {
	return &Handler{orchestrator: orchestrator}
}

// Ensure Handler implements ServerInterface
var _ server.ServerInterface = (*Handler)(nil)

func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	path := "health"
	server.WriteJSON(w, http.StatusOK, v1.Health{Status: &status, Path: &path})
}

func (h *Handler) GetOpenAPI(w http.ResponseWriter, r *http.Request) {
	swagger, err := v1.GetSwagger()
	if err != nil {
		writeError(w, err, "openapi-error", "Failed to load API description")
		return
	}
	server.WriteJSON(w, http.StatusOK, swagger)
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request, params v1.ListServicesParams) {
	var (
		pageSize  int
		pageToken string
	)
	if params.MaxPageSize != nil {
		pageSize = *params.MaxPageSize
	}
	if params.PageToken != nil {
		pageToken = *params.PageToken
	}

	result, err := h.orchestrator.ListServices(r.Context(), pageSize, pageToken)
	if err != nil {
		writeError(w, err, "list-error", "Failed to list services")
		return
	}

	response := v1.ServiceList{Services: result.Services}
	if result.NextPageToken != "" {
		response.NextPageToken = &result.NextPageToken
	}
	server.WriteJSON(w, http.StatusOK, response)
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req v1.RegisterServiceRequest
	if err := decodeBody(r, &req, true); err != nil {
		server.WriteProblem(w, newError("invalid-body", "Invalid request body", err.Error(), http.StatusBadRequest))
		return
	}

	ack, err := h.orchestrator.Register(r.Context(), &req)
	if err != nil {
		writeError(w, err, "create-error", "Failed to register service")
		return
	}
	server.WriteJSON(w, http.StatusCreated, ack)
}

func (h *Handler) GetService(w http.ResponseWriter, r *http.Request, serviceId string) {
	svc, err := h.orchestrator.GetService(r.Context(), serviceId)
	if err != nil {
		writeError(w, err, "get-error", "Failed to get service")
		return
	}
	server.WriteJSON(w, http.StatusOK, svc)
}

// RedeployService accepts an optional body; an empty one rebuilds as is.
func (h *Handler) RedeployService(w http.ResponseWriter, r *http.Request, serviceId string) {
	var req v1.UpdateServiceRequest
	if err := decodeBody(r, &req, false); err != nil {
		server.WriteProblem(w, newError("invalid-body", "Invalid request body", err.Error(), http.StatusBadRequest))
		return
	}

	ack, err := h.orchestrator.Update(r.Context(), serviceId, &req)
	if err != nil {
		writeError(w, err, "update-error", "Failed to redeploy service")
		return
	}
	server.WriteJSON(w, http.StatusAccepted, ack)
}

func (h *Handler) PatchService(w http.ResponseWriter, r *http.Request, serviceId string) {
	var req v1.UpdateServiceRequest
	if err := decodeBody(r, &req, true); err != nil {
		server.WriteProblem(w, newError("invalid-body", "Invalid request body", err.Error(), http.StatusBadRequest))
		return
	}

	ack, err := h.orchestrator.Patch(r.Context(), serviceId, &req)
	if err != nil {
		writeError(w, err, "update-error", "Failed to patch service")
		return
	}
	server.WriteJSON(w, http.StatusAccepted, ack)
}

func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request, serviceId string) {
	if err := h.orchestrator.Delete(r.Context(), serviceId); err != nil {
		writeError(w, err, "delete-error", "Failed to delete service")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(r *http.Request, v any, required bool) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(v)
	if errors.Is(err, io.EOF) {
		if required {
			return errors.New("request body is required")
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode JSON: %w", err)
	}
	return nil
}
