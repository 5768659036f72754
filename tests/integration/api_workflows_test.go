package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/portsight/portsight-back/internal/ai"
	"github.com/portsight/portsight-back/internal/domain"
	httpserver "github.com/portsight/portsight-back/internal/http"
	"github.com/portsight/portsight-back/internal/http/handlers"
	"github.com/portsight/portsight-back/internal/queue"
	"github.com/portsight/portsight-back/internal/repository"
	"github.com/portsight/portsight-back/internal/research"
	"github.com/portsight/portsight-back/internal/service"
	"github.com/portsight/portsight-back/internal/worker"
)

type stubProvider struct{}

func (stubProvider) Search(_ context.Context, request ai.SearchRequest) (ai.SearchResult, error) {
	return ai.SearchResult{
		Text:    "Deterministic finding. Extra detail for " + request.Model + ".",
		ModelID: request.Model,
	}, nil
}

func (stubProvider) Available() bool { return true }

type integrationRuntime struct {
	server *httptest.Server
	cancel context.CancelFunc
}

func startIntegrationRuntime(t *testing.T) integrationRuntime {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard, "", 0)

	jobsRepo := repository.NewMemoryJobsRepository()
	entitiesRepo := repository.NewMemoryEntitiesRepository()
	entitiesRepo.SeedPort(&domain.Port{
		ID:       "port-rtm",
		Name:     "Rotterdam",
		UNLocode: "NLRTM",
		Country:  "Netherlands",
		Region:   "Northwest Europe",
	})
	entitiesRepo.SeedPort(&domain.Port{
		ID:      "port-ant",
		Name:    "Antwerp-Bruges",
		Country: "Belgium",
	})
	entitiesRepo.SeedTerminal(&domain.Terminal{
		ID:     "terminal-euromax",
		PortID: "port-rtm",
		Name:   "Euromax Terminal",
	})
	entitiesRepo.SeedOperator(&domain.TerminalOperator{
		ID:   "operator-ect",
		Name: "ECT",
	})
	entitiesRepo.SeedCluster(&domain.PortCluster{
		ID:      "cluster-nsr",
		Name:    "North Sea Range",
		Region:  "Northwest Europe",
		PortIDs: []string{"port-rtm", "port-ant"},
	})

	localQueue := queue.NewLocalQueue(2048, 3, logger)
	jobsService := service.NewJobsService(jobsRepo, entitiesRepo, localQueue, service.DefaultStaleWindow, logger)
	applyService := service.NewApplyService(entitiesRepo, logger)

	executor := research.NewExecutor(stubProvider{}, research.ExecutorConfig{
		QueryTimeout: 5 * time.Second,
		Concurrency:  2,
	}, logger)

	api := handlers.NewAPI(jobsService, applyService, entitiesRepo)
	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API: api,
		Health: handlers.HealthDeps{
			Provider: true,
			Worker:   true,
		},
		Logger:         logger,
		AuthToken:      "",
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})

	processor := worker.NewProcessor(localQueue, jobsService, entitiesRepo, executor, time.Minute, logger)
	go processor.Start(ctx)

	server := httptest.NewServer(router)
	return integrationRuntime{
		server: server,
		cancel: func() {
			cancel()
			server.Close()
		},
	}
}

func requestJSON(
	t *testing.T,
	client *http.Client,
	method, url string,
	payload any,
) (int, map[string]any) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	request.Header.Set("Accept", "application/json")
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := client.Do(request)
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	defer response.Body.Close()

	raw, _ := io.ReadAll(response.Body)
	if len(raw) == 0 {
		return response.StatusCode, map[string]any{}
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode response body (%d): %s", response.StatusCode, string(raw))
	}
	return response.StatusCode, decoded
}

func waitForJobStatus(
	t *testing.T,
	client *http.Client,
	baseURL, jobID string,
	wanted string,
) map[string]any {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for {
		status, body := requestJSON(t, client, http.MethodGet,
			fmt.Sprintf("%s/v1/research/jobs/%s", baseURL, jobID), nil)
		if status != http.StatusOK {
			t.Fatalf("job status returned %d: %v", status, body)
		}
		if body["status"] == wanted {
			return body
		}
		if body["status"] == "failed" && wanted != "failed" {
			t.Fatalf("job failed instead of %s: %v", wanted, body["error"])
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s never reached %s, last state %v", jobID, wanted, body["status"])
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestDeepResearchWorkflowEndToEnd(t *testing.T) {
	runtime := startIntegrationRuntime(t)
	defer runtime.cancel()

	client := runtime.server.Client()
	baseURL := runtime.server.URL

	status, startBody := requestJSON(t, client, http.MethodPost,
		baseURL+"/v1/ports/port-rtm/deep-research/start", nil)
	if status != http.StatusOK {
		t.Fatalf("start returned %d: %v", status, startBody)
	}
	jobID, _ := startBody["job_id"].(string)
	if jobID == "" {
		t.Fatalf("start response missing job_id: %v", startBody)
	}

	finished := waitForJobStatus(t, client, baseURL, jobID, "completed")
	if finished["progress"] != float64(100) {
		t.Fatalf("completed job must report 100%%, got %v", finished["progress"])
	}

	status, portBody := requestJSON(t, client, http.MethodGet, baseURL+"/v1/ports/port-rtm", nil)
	if status != http.StatusOK {
		t.Fatalf("port detail returned %d", status)
	}
	draft, _ := portBody["research"].(map[string]any)
	report, _ := draft["last_deep_research_report"].(string)
	if !strings.Contains(report, "## Port Governance & Authority") {
		t.Fatalf("draft report missing governance section:\n%s", report)
	}
	if draft["last_deep_research_summary"] == "" {
		t.Fatalf("draft summary missing: %v", draft)
	}
}

func TestDuplicateStartReturnsSameJob(t *testing.T) {
	runtime := startIntegrationRuntime(t)
	defer runtime.cancel()

	client := runtime.server.Client()
	baseURL := runtime.server.URL

	_, first := requestJSON(t, client, http.MethodPost,
		baseURL+"/v1/operators/operator-ect/deep-research/start", nil)
	_, second := requestJSON(t, client, http.MethodPost,
		baseURL+"/v1/operators/operator-ect/deep-research/start", nil)

	firstID, _ := first["job_id"].(string)
	secondID, _ := second["job_id"].(string)
	if firstID == "" {
		t.Fatalf("missing first job id: %v", first)
	}
	// The worker may complete the first job between the two calls; only a
	// still-active job is required to dedup.
	if second["message"] == "deep research already in progress" && secondID != firstID {
		t.Fatalf("active dedup must reuse the job id: %v vs %v", secondID, firstID)
	}
}

func TestApplyWorkflowPromotesApprovedFields(t *testing.T) {
	runtime := startIntegrationRuntime(t)
	defer runtime.cancel()

	client := runtime.server.Client()
	baseURL := runtime.server.URL

	payload := map[string]any{
		"data_to_update": map[string]any{
			"strategic_notes": "Gateway hub for Northwest Europe.",
			"port_authority":  "Unreviewed Authority",
		},
		"approved_fields": []string{"strategic_notes"},
	}
	status, applyBody := requestJSON(t, client, http.MethodPatch,
		baseURL+"/v1/ports/port-rtm/deep-research/apply", payload)
	if status != http.StatusOK {
		t.Fatalf("apply returned %d: %v", status, applyBody)
	}

	entity, _ := applyBody["entity"].(map[string]any)
	if entity["strategic_notes"] != "Gateway hub for Northwest Europe." {
		t.Fatalf("approved field not promoted: %v", entity)
	}
	if entity["port_authority"] != nil && entity["port_authority"] != "" {
		t.Fatalf("unapproved field must not be promoted: %v", entity["port_authority"])
	}

	status, errorBody := requestJSON(t, client, http.MethodPatch,
		baseURL+"/v1/ports/port-rtm/deep-research/apply",
		map[string]any{"approved_fields": []string{"name"}})
	if status != http.StatusBadRequest {
		t.Fatalf("apply without data_to_update must 400, got %d: %v", status, errorBody)
	}
}

func TestClusterPipelineWorkflow(t *testing.T) {
	runtime := startIntegrationRuntime(t)
	defer runtime.cancel()

	client := runtime.server.Client()
	baseURL := runtime.server.URL

	status, body := requestJSON(t, client, http.MethodPost,
		baseURL+"/v1/research/pipeline/start",
		map[string]any{"cluster_id": "cluster-nsr"})
	if status != http.StatusOK {
		t.Fatalf("pipeline start returned %d: %v", status, body)
	}

	jobIDs, _ := body["job_ids"].([]any)
	if len(jobIDs) != 2 {
		t.Fatalf("expected a job per cluster port, got %v", body["job_ids"])
	}
	for _, rawID := range jobIDs {
		jobID, _ := rawID.(string)
		waitForJobStatus(t, client, baseURL, jobID, "completed")
	}
}

func TestHealthEndpoint(t *testing.T) {
	runtime := startIntegrationRuntime(t)
	defer runtime.cancel()

	status, body := requestJSON(t, runtime.server.Client(), http.MethodGet,
		runtime.server.URL+"/healthz", nil)
	if status != http.StatusOK {
		t.Fatalf("healthz returned %d: %v", status, body)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health payload: %v", body)
	}
	components, _ := body["components"].(map[string]any)
	if components["worker"] != true || components["provider"] != true {
		t.Fatalf("unexpected components: %v", components)
	}
}

func TestAuthTokenEnforcedOnV1Routes(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	jobsRepo := repository.NewMemoryJobsRepository()
	entitiesRepo := repository.NewMemoryEntitiesRepository()
	localQueue := queue.NewLocalQueue(16, 3, logger)
	jobsService := service.NewJobsService(jobsRepo, entitiesRepo, localQueue, service.DefaultStaleWindow, logger)
	applyService := service.NewApplyService(entitiesRepo, logger)
	api := handlers.NewAPI(jobsService, applyService, entitiesRepo)

	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      "secret-token",
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})
	server := httptest.NewServer(router)
	defer server.Close()
	client := server.Client()

	response, err := client.Get(server.URL + "/v1/ports")
	if err != nil {
		t.Fatalf("unauthenticated request: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", response.StatusCode)
	}

	request, _ := http.NewRequest(http.MethodGet, server.URL+"/v1/ports", nil)
	request.Header.Set("Authorization", "Bearer secret-token")
	response, err = client.Do(request)
	if err != nil {
		t.Fatalf("authenticated request: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", response.StatusCode)
	}

	// Health stays open for probes.
	response, err = client.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("healthz must not require auth, got %d", response.StatusCode)
	}
}
