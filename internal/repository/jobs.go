package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/portsight/portsight-back/internal/domain"
)

var (
	ErrNotFound = errors.New("resource not found")

	// ErrConflict signals a state-machine violation: claiming a job that
	// is not pending, or mutating a job that is no longer running.
	ErrConflict = errors.New("job state conflict")
)

// JobsRepository abstracts research-job persistence. Transitions are
// expressed as conditional updates so a lost race surfaces as
// ErrConflict instead of silently overwriting terminal state.
type JobsRepository interface {
	CreateJob(ctx context.Context, job *domain.ResearchJob) error
	GetJob(ctx context.Context, jobID string) (*domain.ResearchJob, error)

	// FindActiveJob returns the pending or running job for the pair, or
	// ErrNotFound when no active job exists.
	FindActiveJob(ctx context.Context, entityType domain.EntityType, entityID string) (*domain.ResearchJob, error)

	// ClaimJob transitions pending -> running, setting startedAt and the
	// initial heartbeat. Exactly one caller wins; losers get ErrConflict.
	ClaimJob(ctx context.Context, jobID string, now time.Time) error

	// Heartbeat refreshes liveness while the job is running.
	Heartbeat(ctx context.Context, jobID string, now time.Time) error

	// SetProgress raises progress while running; a lower value is a no-op.
	SetProgress(ctx context.Context, jobID string, progress int) error

	// CompleteJob transitions running -> completed, progress 100,
	// completedAt set once.
	CompleteJob(ctx context.Context, jobID string, now time.Time) error

	// FailJob transitions pending|running -> failed with a diagnostic.
	FailJob(ctx context.Context, jobID string, message string, now time.Time) error

	ListRunning(ctx context.Context) ([]*domain.ResearchJob, error)
}

// MemoryJobsRepository stores jobs in memory for local development and tests.
type MemoryJobsRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.ResearchJob
}

func NewMemoryJobsRepository() *MemoryJobsRepository {
	return &MemoryJobsRepository{jobs: make(map[string]*domain.ResearchJob)}
}

func (r *MemoryJobsRepository) CreateJob(_ context.Context, job *domain.ResearchJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryJobsRepository) GetJob(_ context.Context, jobID string) (*domain.ResearchJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *MemoryJobsRepository) FindActiveJob(
	_ context.Context,
	entityType domain.EntityType,
	entityID string,
) (*domain.ResearchJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, job := range r.jobs {
		if job.Type == entityType && job.EntityID == entityID && job.Status.Active() {
			return cloneJob(job), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryJobsRepository) ClaimJob(_ context.Context, jobID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status != domain.JobStatusPending {
		return ErrConflict
	}

	started := now
	heartbeat := now
	job.Status = domain.JobStatusRunning
	job.StartedAt = &started
	job.LastHeartbeat = &heartbeat
	return nil
}

func (r *MemoryJobsRepository) Heartbeat(_ context.Context, jobID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status != domain.JobStatusRunning {
		return ErrConflict
	}

	heartbeat := now
	job.LastHeartbeat = &heartbeat
	return nil
}

func (r *MemoryJobsRepository) SetProgress(_ context.Context, jobID string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status != domain.JobStatusRunning {
		return ErrConflict
	}

	if progress > job.Progress {
		job.Progress = clampProgress(progress)
	}
	return nil
}

func (r *MemoryJobsRepository) CompleteJob(_ context.Context, jobID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status != domain.JobStatusRunning {
		return ErrConflict
	}

	completed := now
	job.Status = domain.JobStatusCompleted
	job.Progress = 100
	job.Error = ""
	job.CompletedAt = &completed
	return nil
}

func (r *MemoryJobsRepository) FailJob(_ context.Context, jobID string, message string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if !job.Status.Active() {
		return ErrConflict
	}

	completed := now
	job.Status = domain.JobStatusFailed
	job.Error = message
	job.CompletedAt = &completed
	return nil
}

func (r *MemoryJobsRepository) ListRunning(_ context.Context) ([]*domain.ResearchJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	running := make([]*domain.ResearchJob, 0)
	for _, job := range r.jobs {
		if job.Status == domain.JobStatusRunning {
			running = append(running, cloneJob(job))
		}
	}
	return running, nil
}

func cloneJob(job *domain.ResearchJob) *domain.ResearchJob {
	if job == nil {
		return nil
	}
	clone := *job
	clone.StartedAt = cloneTime(job.StartedAt)
	clone.CompletedAt = cloneTime(job.CompletedAt)
	clone.LastHeartbeat = cloneTime(job.LastHeartbeat)
	return &clone
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func clampProgress(progress int) int {
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}
