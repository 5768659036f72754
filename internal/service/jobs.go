package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/portsight/portsight-back/internal/domain"
	"github.com/portsight/portsight-back/internal/queue"
	"github.com/portsight/portsight-back/internal/repository"
)

// DefaultStaleWindow is the liveness window for running jobs: a running
// job whose heartbeat (or start, when it never heartbeat) is older than
// this is considered abandoned and reaped.
const DefaultStaleWindow = 10 * time.Minute

// JobsService is the research-job lifecycle manager: creation with
// dedup, claiming, heartbeats, progress, terminal transitions and the
// stale-job reaper.
type JobsService struct {
	jobs        repository.JobsRepository
	entities    repository.EntitiesRepository
	producer    queue.Producer
	staleWindow time.Duration
	logger      *log.Logger
	now         func() time.Time
}

func NewJobsService(
	jobs repository.JobsRepository,
	entities repository.EntitiesRepository,
	producer queue.Producer,
	staleWindow time.Duration,
	logger *log.Logger,
) *JobsService {
	if staleWindow <= 0 {
		staleWindow = DefaultStaleWindow
	}
	return &JobsService{
		jobs:        jobs,
		entities:    entities,
		producer:    producer,
		staleWindow: staleWindow,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// StartResult reports whether the start request created a job or hit an
// already-active one. Dedup is conflict-as-success: the caller gets the
// active job's identity either way.
type StartResult struct {
	Job      *domain.ResearchJob
	Existing bool
}

// StartResearch creates a pending job for the entity unless one is
// already active for the (type, entityID) pair. On genuine creation the
// entity's draft-research fields are cleared so stale content is never
// displayed next to an in-flight job.
func (s *JobsService) StartResearch(
	ctx context.Context,
	entityType domain.EntityType,
	entityID string,
) (StartResult, error) {
	if !entityType.Valid() {
		return StartResult{}, fmt.Errorf("invalid entity type: %s", entityType)
	}
	if err := s.entityExists(ctx, entityType, entityID); err != nil {
		return StartResult{}, err
	}

	if existing, err := s.jobs.FindActiveJob(ctx, entityType, entityID); err == nil {
		return StartResult{Job: existing, Existing: true}, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return StartResult{}, fmt.Errorf("find active job: %w", err)
	}

	now := s.now()
	job := &domain.ResearchJob{
		ID:        uuid.NewString(),
		Type:      entityType,
		EntityID:  entityID,
		Status:    domain.JobStatusPending,
		Progress:  0,
		CreatedAt: now,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return StartResult{}, fmt.Errorf("create job: %w", err)
	}

	if err := s.entities.ClearResearchDraft(ctx, entityType, entityID); err != nil {
		_ = s.jobs.FailJob(ctx, job.ID, fmt.Sprintf("clear research draft: %v", err), s.now())
		return StartResult{}, fmt.Errorf("clear research draft: %w", err)
	}

	message := domain.DispatchMessage{
		JobID:       job.ID,
		Type:        entityType,
		EntityID:    entityID,
		Attempt:     0,
		RequestedAt: now,
	}
	if err := s.producer.Enqueue(ctx, message); err != nil {
		_ = s.jobs.FailJob(ctx, job.ID, fmt.Sprintf("dispatch job: %v", err), s.now())
		return StartResult{}, fmt.Errorf("dispatch job: %w", err)
	}

	return StartResult{Job: job}, nil
}

// PipelineResult lists the jobs started (or reused) for a cluster run.
type PipelineResult struct {
	ClusterID string
	JobIDs    []string
}

// StartClusterPipeline fans research out over a cluster's ports. An
// optional portIDs filter restricts the run to a subset of the cluster;
// ids outside the cluster are ignored.
func (s *JobsService) StartClusterPipeline(
	ctx context.Context,
	clusterID string,
	portIDs []string,
) (PipelineResult, error) {
	cluster, err := s.entities.GetCluster(ctx, clusterID)
	if err != nil {
		return PipelineResult{}, err
	}

	targets := cluster.PortIDs
	if len(portIDs) > 0 {
		requested := make(map[string]bool, len(portIDs))
		for _, id := range portIDs {
			requested[id] = true
		}
		filtered := make([]string, 0, len(targets))
		for _, id := range targets {
			if requested[id] {
				filtered = append(filtered, id)
			}
		}
		targets = filtered
	}

	result := PipelineResult{ClusterID: clusterID, JobIDs: make([]string, 0, len(targets))}
	for _, portID := range targets {
		started, err := s.StartResearch(ctx, domain.EntityPort, portID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				if s.logger != nil {
					s.logger.Printf("pipeline skipped missing port cluster_id=%s port_id=%s", clusterID, portID)
				}
				continue
			}
			return PipelineResult{}, err
		}
		result.JobIDs = append(result.JobIDs, started.Job.ID)
	}
	return result, nil
}

func (s *JobsService) GetJob(ctx context.Context, jobID string) (*domain.ResearchJob, error) {
	return s.jobs.GetJob(ctx, jobID)
}

// Claim transitions a pending job to running. Exactly one worker wins
// the conditional update; a loser sees repository.ErrConflict and must
// drop the dispatch message.
func (s *JobsService) Claim(ctx context.Context, jobID string) error {
	return s.jobs.ClaimJob(ctx, jobID, s.now())
}

// Heartbeat renews the liveness signal; call it at an interval well
// below the stale window.
func (s *JobsService) Heartbeat(ctx context.Context, jobID string) error {
	return s.jobs.Heartbeat(ctx, jobID, s.now())
}

// Progress raises the job's progress while running. Monotonic: a value
// below the current progress is ignored.
func (s *JobsService) Progress(ctx context.Context, jobID string, percent int) error {
	return s.jobs.SetProgress(ctx, jobID, percent)
}

// Complete writes the assembled report and summary to the entity's
// draft fields, stamps lastDeepResearchAt, and finalizes the job.
func (s *JobsService) Complete(ctx context.Context, jobID, report, summary string) error {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	now := s.now()
	draft := domain.ResearchDraft{
		LastDeepResearchAt:      &now,
		LastDeepResearchSummary: summary,
		LastDeepResearchReport:  report,
	}
	if err := s.entities.SaveResearchDraft(ctx, job.Type, job.EntityID, draft); err != nil {
		return fmt.Errorf("save research draft: %w", err)
	}

	if err := s.jobs.CompleteJob(ctx, jobID, now); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail records a terminal failure with a diagnostic message.
func (s *JobsService) Fail(ctx context.Context, jobID, message string) error {
	return s.jobs.FailJob(ctx, jobID, message, s.now())
}

// Reap force-fails running jobs whose liveness signal expired. This is
// the sole recovery path for crashed or hung workers; there is no
// cancellation API. Idempotent: already-terminal jobs are untouched.
func (s *JobsService) Reap(ctx context.Context) ([]string, error) {
	running, err := s.jobs.ListRunning(ctx)
	if err != nil {
		return nil, fmt.Errorf("list running jobs: %w", err)
	}

	now := s.now()
	reaped := make([]string, 0)
	for _, job := range running {
		if !s.isStale(job, now) {
			continue
		}

		startedAt := "unknown"
		if job.StartedAt != nil {
			startedAt = job.StartedAt.Format(time.RFC3339)
		}
		message := fmt.Sprintf("reaped: no heartbeat for more than %s (started at %s)", s.staleWindow, startedAt)

		if err := s.jobs.FailJob(ctx, job.ID, message, now); err != nil {
			// A conflict means the job resolved between scan and fail.
			if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return reaped, fmt.Errorf("reap job %s: %w", job.ID, err)
		}
		reaped = append(reaped, job.ID)
		if s.logger != nil {
			s.logger.Printf("reaped stale job job_id=%s type=%s entity_id=%s", job.ID, job.Type, job.EntityID)
		}
	}
	return reaped, nil
}

func (s *JobsService) isStale(job *domain.ResearchJob, now time.Time) bool {
	if job.LastHeartbeat != nil {
		return now.Sub(*job.LastHeartbeat) > s.staleWindow
	}
	if job.StartedAt != nil {
		return now.Sub(*job.StartedAt) > s.staleWindow
	}
	return false
}

func (s *JobsService) entityExists(ctx context.Context, entityType domain.EntityType, entityID string) error {
	var err error
	switch entityType {
	case domain.EntityPort:
		_, err = s.entities.GetPort(ctx, entityID)
	case domain.EntityTerminal:
		_, err = s.entities.GetTerminal(ctx, entityID)
	case domain.EntityTerminalOperator:
		_, err = s.entities.GetOperator(ctx, entityID)
	default:
		return fmt.Errorf("invalid entity type: %s", entityType)
	}
	return err
}

// WithClock overrides the service clock. Test hook.
func (s *JobsService) WithClock(now func() time.Time) *JobsService {
	s.now = now
	return s
}
