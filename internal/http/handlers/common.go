package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/portsight/portsight-back/internal/domain"
	"github.com/portsight/portsight-back/internal/http/middleware"
	"github.com/portsight/portsight-back/internal/repository"
	"github.com/portsight/portsight-back/internal/service"
)

var errInvalidPayload = errors.New("invalid payload")

// API bundles the handler dependencies behind the router.
type API struct {
	jobsService  *service.JobsService
	applyService *service.ApplyService
	entities     repository.EntitiesRepository
}

func NewAPI(
	jobsService *service.JobsService,
	applyService *service.ApplyService,
	entities repository.EntitiesRepository,
) *API {
	return &API{
		jobsService:  jobsService,
		applyService: applyService,
		entities:     entities,
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

func decodeJSON(r *http.Request, value any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Unexpected errors become a 500 carrying the message, never a stack.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, service.ErrMissingPayload):
		writeError(w, r, http.StatusBadRequest, "invalid_request", "data_to_update is required")
	case errors.Is(err, service.ErrInvalidPayload):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

type jobResponse struct {
	JobID         string     `json:"job_id"`
	Type          string     `json:"type"`
	EntityID      string     `json:"entity_id"`
	Status        string     `json:"status"`
	Progress      int        `json:"progress"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
}

func toJobResponse(job *domain.ResearchJob) jobResponse {
	return jobResponse{
		JobID:         job.ID,
		Type:          string(job.Type),
		EntityID:      job.EntityID,
		Status:        string(job.Status),
		Progress:      job.Progress,
		Error:         job.Error,
		CreatedAt:     job.CreatedAt,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
		LastHeartbeat: job.LastHeartbeat,
	}
}

type researchDraftResponse struct {
	LastDeepResearchAt      *time.Time `json:"last_deep_research_at"`
	LastDeepResearchSummary string     `json:"last_deep_research_summary,omitempty"`
	LastDeepResearchReport  string     `json:"last_deep_research_report,omitempty"`
}

func toDraftResponse(draft domain.ResearchDraft) researchDraftResponse {
	return researchDraftResponse{
		LastDeepResearchAt:      draft.LastDeepResearchAt,
		LastDeepResearchSummary: draft.LastDeepResearchSummary,
		LastDeepResearchReport:  draft.LastDeepResearchReport,
	}
}
