package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/portsight/portsight-back/internal/domain"
	"github.com/portsight/portsight-back/internal/queue"
	"github.com/portsight/portsight-back/internal/repository"
	"github.com/portsight/portsight-back/internal/service"
)

func newTestAPI(t *testing.T) (*API, *repository.MemoryJobsRepository, *repository.MemoryEntitiesRepository) {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	jobsRepo := repository.NewMemoryJobsRepository()
	entitiesRepo := repository.NewMemoryEntitiesRepository()
	entitiesRepo.SeedPort(&domain.Port{ID: "port-1", Name: "Hamburg", Country: "Germany", PortAuthority: "HPA"})
	entitiesRepo.SeedPort(&domain.Port{ID: "port-2", Name: "Bremerhaven", Country: "Germany"})
	entitiesRepo.SeedTerminal(&domain.Terminal{ID: "terminal-1", PortID: "port-1", Name: "CTA"})
	entitiesRepo.SeedOperator(&domain.TerminalOperator{ID: "operator-1", Name: "HHLA"})
	entitiesRepo.SeedCluster(&domain.PortCluster{
		ID:      "cluster-1",
		Name:    "German Bight",
		PortIDs: []string{"port-1", "port-2"},
	})

	localQueue := queue.NewLocalQueue(64, 3, logger)
	jobsService := service.NewJobsService(jobsRepo, entitiesRepo, localQueue, service.DefaultStaleWindow, logger)
	applyService := service.NewApplyService(entitiesRepo, logger)
	return NewAPI(jobsService, applyService, entitiesRepo), jobsRepo, entitiesRepo
}

func doRequest(t *testing.T, handler http.HandlerFunc, method, path, body string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	handler(recorder, request)

	decoded := map[string]any{}
	if recorder.Body.Len() > 0 {
		if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response (%d): %s", recorder.Code, recorder.Body.String())
		}
	}
	return recorder.Code, decoded
}

func timeNowMinus(t *testing.T, minutes int) time.Time {
	t.Helper()
	return time.Now().UTC().Add(-time.Duration(minutes) * time.Minute)
}

func TestListPorts(t *testing.T) {
	api, _, _ := newTestAPI(t)

	status, body := doRequest(t, api.Ports, http.MethodGet, "/v1/ports", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	items, ok := body["items"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("expected 2 ports, got %v", body["items"])
	}
}

func TestGetPortDetail(t *testing.T) {
	api, _, _ := newTestAPI(t)

	status, body := doRequest(t, api.Ports, http.MethodGet, "/v1/ports/port-1", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	if body["name"] != "Hamburg" {
		t.Fatalf("unexpected port payload: %v", body)
	}

	status, _ = doRequest(t, api.Ports, http.MethodGet, "/v1/ports/port-missing", "")
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for missing port, got %d", status)
	}
}

func TestStartDeepResearch(t *testing.T) {
	api, _, _ := newTestAPI(t)

	status, body := doRequest(t, api.Ports, http.MethodPost, "/v1/ports/port-1/deep-research/start", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	jobID, _ := body["job_id"].(string)
	if jobID == "" {
		t.Fatalf("response must carry a job id: %v", body)
	}
	if body["status"] != "pending" {
		t.Fatalf("expected pending status, got %v", body["status"])
	}
	if body["message"] != "deep research started" {
		t.Fatalf("unexpected message: %v", body["message"])
	}

	// Starting again returns the same job, conflict-as-success.
	status, dedupBody := doRequest(t, api.Ports, http.MethodPost, "/v1/ports/port-1/deep-research/start", "")
	if status != http.StatusOK {
		t.Fatalf("duplicate start must succeed, got %d", status)
	}
	if dedupBody["job_id"] != jobID {
		t.Fatalf("duplicate start must return the same job id: %v vs %v", dedupBody["job_id"], jobID)
	}
	if dedupBody["message"] != "deep research already in progress" {
		t.Fatalf("unexpected dedup message: %v", dedupBody["message"])
	}
}

func TestStartDeepResearchUnknownEntity(t *testing.T) {
	api, _, _ := newTestAPI(t)

	status, _ := doRequest(t, api.Terminals, http.MethodPost, "/v1/terminals/terminal-missing/deep-research/start", "")
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestStartDeepResearchWrongMethod(t *testing.T) {
	api, _, _ := newTestAPI(t)

	status, _ := doRequest(t, api.Ports, http.MethodGet, "/v1/ports/port-1/deep-research/start", "")
	if status != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", status)
	}
}

func TestJobStatusEndpoint(t *testing.T) {
	api, _, _ := newTestAPI(t)

	_, startBody := doRequest(t, api.Operators, http.MethodPost, "/v1/operators/operator-1/deep-research/start", "")
	jobID, _ := startBody["job_id"].(string)
	if jobID == "" {
		t.Fatalf("missing job id: %v", startBody)
	}

	status, body := doRequest(t, api.ResearchJobs, http.MethodGet, "/v1/research/jobs/"+jobID, "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	if body["job_id"] != jobID || body["type"] != "terminal_operator" || body["entity_id"] != "operator-1" {
		t.Fatalf("unexpected job payload: %v", body)
	}

	status, _ = doRequest(t, api.ResearchJobs, http.MethodGet, "/v1/research/jobs/job-missing", "")
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", status)
	}
}

func TestCleanupEndpoint(t *testing.T) {
	api, jobsRepo, _ := newTestAPI(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	// One stale running job, one fresh pending job.
	stale := &domain.ResearchJob{
		ID: "job-stale", Type: domain.EntityPort, EntityID: "port-1",
		Status: domain.JobStatusPending,
	}
	if err := jobsRepo.CreateJob(ctx, stale); err != nil {
		t.Fatalf("seed: %v", err)
	}
	longAgo := timeNowMinus(t, 30)
	if err := jobsRepo.ClaimJob(ctx, stale.ID, longAgo); err != nil {
		t.Fatalf("claim: %v", err)
	}

	status, body := doRequest(t, api.ResearchJobs, http.MethodPost, "/v1/research/jobs/cleanup", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	if body["cleaned"] != float64(1) {
		t.Fatalf("expected 1 cleaned job, got %v", body["cleaned"])
	}

	job, err := jobsRepo.GetJob(ctx, stale.ID)
	if err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("stale job must be failed, got %s", job.Status)
	}
}

func TestApplyEndpointGatesFields(t *testing.T) {
	api, _, entitiesRepo := newTestAPI(t)

	payload := `{
		"data_to_update": {"strategic_notes": "drafted", "port_authority": "Drafted Authority"},
		"approved_fields": ["strategic_notes"]
	}`
	status, body := doRequest(t, api.Ports, http.MethodPatch, "/v1/ports/port-1/deep-research/apply", payload)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	if body["message"] != "approved fields applied" {
		t.Fatalf("unexpected message: %v", body["message"])
	}

	port, err := entitiesRepo.GetPort(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "port-1")
	if err != nil {
		t.Fatalf("load port: %v", err)
	}
	if port.StrategicNotes != "drafted" {
		t.Fatalf("approved field not applied: %q", port.StrategicNotes)
	}
	if port.PortAuthority != "HPA" {
		t.Fatalf("unapproved field must not change: %q", port.PortAuthority)
	}
}

func TestApplyEndpointMissingPayload(t *testing.T) {
	api, _, _ := newTestAPI(t)

	status, body := doRequest(t, api.Ports, http.MethodPatch, "/v1/ports/port-1/deep-research/apply",
		`{"approved_fields": ["name"]}`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %v", status, body)
	}
}

func TestApplyEndpointUnknownEntity(t *testing.T) {
	api, _, _ := newTestAPI(t)

	status, _ := doRequest(t, api.Operators, http.MethodPatch, "/v1/operators/operator-missing/deep-research/apply",
		`{"data_to_update": {"name": "Ghost"}, "approved_fields": ["name"]}`)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestPipelineStart(t *testing.T) {
	api, _, _ := newTestAPI(t)

	status, body := doRequest(t, api.PipelineStart, http.MethodPost, "/v1/research/pipeline/start",
		`{"cluster_id": "cluster-1"}`)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	jobIDs, ok := body["job_ids"].([]any)
	if !ok || len(jobIDs) != 2 {
		t.Fatalf("expected 2 jobs for the cluster, got %v", body["job_ids"])
	}
	if body["cluster_id"] != "cluster-1" {
		t.Fatalf("unexpected cluster id: %v", body["cluster_id"])
	}
}

func TestPipelineStartValidation(t *testing.T) {
	api, _, _ := newTestAPI(t)

	status, _ := doRequest(t, api.PipelineStart, http.MethodPost, "/v1/research/pipeline/start", `{}`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing cluster_id, got %d", status)
	}

	status, _ = doRequest(t, api.PipelineStart, http.MethodPost, "/v1/research/pipeline/start",
		`{"cluster_id": "cluster-missing"}`)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown cluster, got %d", status)
	}
}

func TestClustersEndpoints(t *testing.T) {
	api, _, _ := newTestAPI(t)

	status, body := doRequest(t, api.Clusters, http.MethodGet, "/v1/clusters", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	if body["total"] != float64(1) {
		t.Fatalf("expected 1 cluster, got %v", body["total"])
	}

	status, detail := doRequest(t, api.Clusters, http.MethodGet, "/v1/clusters/cluster-1", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, detail)
	}
	if detail["name"] != "German Bight" {
		t.Fatalf("unexpected cluster payload: %v", detail)
	}
}
