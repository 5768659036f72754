package domain

import "time"

// EntityType identifies which kind of record a research job targets.
type EntityType string

const (
	EntityPort             EntityType = "port"
	EntityTerminal         EntityType = "terminal"
	EntityTerminalOperator EntityType = "terminal_operator"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityPort, EntityTerminal, EntityTerminalOperator:
		return true
	}
	return false
}

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Active reports whether the status still admits transitions. Completed
// and failed jobs are immutable history.
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusRunning
}

// ResearchJob is the durable unit of deep-research work for one entity.
// The row is the source of truth for workers; queue messages only carry
// dispatch hints.
type ResearchJob struct {
	ID            string
	Type          EntityType
	EntityID      string
	Status        JobStatus
	Progress      int
	Error         string
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	LastHeartbeat *time.Time
}

// DispatchMessage is the transport format sent to queue backends to wake
// a worker for a persisted pending job.
type DispatchMessage struct {
	JobID       string     `json:"job_id"`
	Type        EntityType `json:"type"`
	EntityID    string     `json:"entity_id"`
	Attempt     int        `json:"attempt"`
	RequestedAt time.Time  `json:"requested_at"`
}
