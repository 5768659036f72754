package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/portsight/portsight-back/internal/domain"
	"github.com/portsight/portsight-back/internal/repository"
)

// startDeepResearch handles POST /v1/{collection}/{id}/deep-research/start.
// Conflict-as-success: an already-active job is returned, not an error.
func (api *API) startDeepResearch(
	w http.ResponseWriter,
	r *http.Request,
	entityType domain.EntityType,
	entityID string,
) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	result, err := api.jobsService.StartResearch(r.Context(), entityType, entityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", fmt.Sprintf("%s not found", entityType))
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	message := "deep research started"
	if result.Existing {
		message = "deep research already in progress"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":  result.Job.ID,
		"status":  string(result.Job.Status),
		"message": message,
	})
}

type pipelineStartRequest struct {
	ClusterID string   `json:"cluster_id"`
	PortIDs   []string `json:"port_ids,omitempty"`
}

// PipelineStart handles POST /v1/research/pipeline/start: one research
// job per port in the cluster (optionally filtered to port_ids).
func (api *API) PipelineStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var request pipelineStartRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	if strings.TrimSpace(request.ClusterID) == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "cluster_id is required")
		return
	}

	result, err := api.jobsService.StartClusterPipeline(r.Context(), request.ClusterID, request.PortIDs)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "cluster not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_ids":    result.JobIDs,
		"cluster_id": result.ClusterID,
		"message":    fmt.Sprintf("research pipeline started for %d ports", len(result.JobIDs)),
	})
}

// ResearchJobs handles /v1/research/jobs/{id} and /v1/research/jobs/cleanup.
func (api *API) ResearchJobs(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/research/jobs"), "/")
	switch {
	case rest == "cleanup":
		api.cleanupJobs(w, r)
	case rest != "" && !strings.Contains(rest, "/"):
		api.jobStatus(w, r, rest)
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "unknown research route")
	}
}

func (api *API) jobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	job, err := api.jobsService.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "job not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load job")
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (api *API) cleanupJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	reaped, err := api.jobsService.Reap(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cleaned": len(reaped),
		"job_ids": reaped,
		"message": fmt.Sprintf("%d stale jobs cleaned up", len(reaped)),
	})
}

type applyRequest struct {
	DataToUpdate   json.RawMessage `json:"data_to_update"`
	ApprovedFields []string        `json:"approved_fields"`
}

// applyDeepResearch handles PATCH /v1/{collection}/{id}/deep-research/apply.
func (api *API) applyDeepResearch(
	w http.ResponseWriter,
	r *http.Request,
	entityType domain.EntityType,
	entityID string,
) {
	if r.Method != http.MethodPatch {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var request applyRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}

	ctx := r.Context()
	var (
		entity any
		err    error
	)
	switch entityType {
	case domain.EntityPort:
		var port *domain.Port
		port, err = api.applyService.ApplyPort(ctx, entityID, request.DataToUpdate, request.ApprovedFields)
		if err == nil {
			entity = toPortResponse(port)
		}
	case domain.EntityTerminal:
		var terminal *domain.Terminal
		terminal, err = api.applyService.ApplyTerminal(ctx, entityID, request.DataToUpdate, request.ApprovedFields)
		if err == nil {
			entity = toTerminalResponse(terminal)
		}
	case domain.EntityTerminalOperator:
		var operator *domain.TerminalOperator
		operator, err = api.applyService.ApplyOperator(ctx, entityID, request.DataToUpdate, request.ApprovedFields)
		if err == nil {
			entity = toOperatorResponse(operator)
		}
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "unknown entity type")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity":  entity,
		"message": "approved fields applied",
	})
}
