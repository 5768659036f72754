package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/portsight/portsight-back/internal/domain"
)

type PostgresJobsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresJobsRepository(pool *pgxpool.Pool) *PostgresJobsRepository {
	return &PostgresJobsRepository{pool: pool}
}

// NewPool creates and pings a pgx pool shared by the postgres repositories.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return pool, nil
}

const jobColumns = `id, type, entity_id, status, progress, error_message, created_at, started_at, completed_at, last_heartbeat`

func (r *PostgresJobsRepository) CreateJob(ctx context.Context, job *domain.ResearchJob) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO research_jobs (
			id,
			type,
			entity_id,
			status,
			progress,
			error_message,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		job.ID,
		string(job.Type),
		job.EntityID,
		string(job.Status),
		job.Progress,
		job.Error,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert research job: %w", err)
	}
	return nil
}

func (r *PostgresJobsRepository) GetJob(ctx context.Context, jobID string) (*domain.ResearchJob, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM research_jobs WHERE id = $1`, jobID)
	return scanJob(row)
}

func (r *PostgresJobsRepository) FindActiveJob(
	ctx context.Context,
	entityType domain.EntityType,
	entityID string,
) (*domain.ResearchJob, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM research_jobs
		WHERE type = $1 AND entity_id = $2 AND status IN ('pending', 'running')
		ORDER BY created_at
		LIMIT 1
	`, string(entityType), entityID)
	return scanJob(row)
}

func (r *PostgresJobsRepository) ClaimJob(ctx context.Context, jobID string, now time.Time) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE research_jobs
		SET status = 'running', started_at = $2, last_heartbeat = $2
		WHERE id = $1 AND status = 'pending'
	`, jobID, now)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if command.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, jobID)
	}
	return nil
}

func (r *PostgresJobsRepository) Heartbeat(ctx context.Context, jobID string, now time.Time) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE research_jobs
		SET last_heartbeat = $2
		WHERE id = $1 AND status = 'running'
	`, jobID, now)
	if err != nil {
		return fmt.Errorf("heartbeat job: %w", err)
	}
	if command.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, jobID)
	}
	return nil
}

func (r *PostgresJobsRepository) SetProgress(ctx context.Context, jobID string, progress int) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE research_jobs
		SET progress = GREATEST(progress, LEAST($2, 100))
		WHERE id = $1 AND status = 'running'
	`, jobID, progress)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if command.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, jobID)
	}
	return nil
}

func (r *PostgresJobsRepository) CompleteJob(ctx context.Context, jobID string, now time.Time) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE research_jobs
		SET status = 'completed', progress = 100, error_message = '', completed_at = $2
		WHERE id = $1 AND status = 'running'
	`, jobID, now)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if command.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, jobID)
	}
	return nil
}

func (r *PostgresJobsRepository) FailJob(ctx context.Context, jobID string, message string, now time.Time) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE research_jobs
		SET status = 'failed', error_message = $2, completed_at = $3
		WHERE id = $1 AND status IN ('pending', 'running')
	`, jobID, message, now)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if command.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, jobID)
	}
	return nil
}

func (r *PostgresJobsRepository) ListRunning(ctx context.Context) ([]*domain.ResearchJob, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM research_jobs
		WHERE status = 'running'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list running jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*domain.ResearchJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate running jobs: %w", rows.Err())
	}
	return jobs, nil
}

// conflictOrMissing distinguishes a zero-row conditional update: the job
// either does not exist or is in the wrong state.
func (r *PostgresJobsRepository) conflictOrMissing(ctx context.Context, jobID string) error {
	var one int
	err := r.pool.QueryRow(ctx, `SELECT 1 FROM research_jobs WHERE id = $1`, jobID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check job existence: %w", err)
	}
	return ErrConflict
}

func scanJob(row pgx.Row) (*domain.ResearchJob, error) {
	var (
		job         domain.ResearchJob
		jobType     string
		status      string
		startedAt   *time.Time
		completedAt *time.Time
		heartbeat   *time.Time
	)

	err := row.Scan(
		&job.ID,
		&jobType,
		&job.EntityID,
		&status,
		&job.Progress,
		&job.Error,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
		&heartbeat,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan research job: %w", err)
	}

	job.Type = domain.EntityType(jobType)
	job.Status = domain.JobStatus(status)
	job.StartedAt = startedAt
	job.CompletedAt = completedAt
	job.LastHeartbeat = heartbeat
	return &job, nil
}
