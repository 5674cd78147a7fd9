package task

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows a job listing. Zero values mean "no filter" for UserID,
// Status, and TaskType.
type ListFilter struct {
	UserID   string
	Status   Status
	TaskType string
	Limit    int
	Offset   int
}

// Listing defaults applied by the query API.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// normalized applies the default and maximum page size and clamps the offset.
func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// JobReader is the read-only view of job persistence handed to task handlers.
type JobReader interface {
	// GetJob retrieves a job by ID. Returns store.ErrNotFound when missing.
	GetJob(ctx context.Context, id uuid.UUID) (Job, error)

	// ListJobs returns one page of jobs matching the filter, newest first,
	// together with the total number of matching jobs.
	ListJobs(ctx context.Context, filter ListFilter) ([]Job, int, error)
}

// JobStore defines the persistence operations the queue relies on.
// Every mutating call is conditional on the job's current status so that a
// record can never move backwards through its lifecycle; implementations
// return ErrInvalidTransition when the condition does not hold and
// store.ErrNotFound when the job does not exist.
type JobStore interface {
	JobReader

	// CreateJob persists a new pending job.
	CreateJob(ctx context.Context, job Job) error

	// MarkRunning moves a pending job to running.
	MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) error

	// UpdateProgress overwrites the progress snapshot of a running job.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress Progress, at time.Time) error

	// CompleteJob moves a running job to completed with its result.
	CompleteJob(ctx context.Context, id uuid.UUID, result Payload, at time.Time) error

	// FailJob moves a pending or running job to failed with an error message.
	FailJob(ctx context.Context, id uuid.UUID, message string, at time.Time) error

	// ListJobsByStatus returns every job currently in the given status,
	// oldest first. Used for startup recovery.
	ListJobsByStatus(ctx context.Context, status Status) ([]Job, error)

	// DeleteTerminalBefore removes completed and failed jobs whose last update
	// is older than cutoff and returns how many were removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
