package task

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/relay-api/internal/store"
)

// ListPage is one page of a job listing.
type ListPage struct {
	Jobs   []Job
	Total  int
	Limit  int
	Offset int
}

// GetJob returns the job if it exists and is visible to req. Missing and
// foreign jobs are both reported as ErrJobNotFound.
func (q *Queue) GetJob(ctx context.Context, id uuid.UUID, req Requester) (Job, error) {
	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		if store.IsNotFoundError(err) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, fmt.Errorf("failed to get job: %w", err)
	}

	if !req.canRead(job) {
		return Job{}, ErrJobNotFound
	}

	return job, nil
}

// GetResult returns the terminal outcome of a job. It returns ErrJobNotReady
// while the job is still pending or running.
func (q *Queue) GetResult(ctx context.Context, id uuid.UUID, req Requester) (JobResult, error) {
	job, err := q.GetJob(ctx, id, req)
	if err != nil {
		return JobResult{}, err
	}

	if !job.Status.Terminal() {
		return JobResult{}, ErrJobNotReady
	}

	res := JobResult{JobID: job.ID, Status: job.Status}
	if job.Status == StatusCompleted {
		res.Result = job.Result
	} else {
		res.Error = job.Error
	}
	return res, nil
}

// ListJobs returns the requester's jobs matching filter, newest first.
// Non-elevated requesters are always scoped to their own jobs; elevated
// requesters see everyone's unless filter.UserID narrows the listing.
func (q *Queue) ListJobs(ctx context.Context, req Requester, filter ListFilter) (ListPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return ListPage{}, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, filter.Status)
	}

	if !req.Elevated {
		if req.UserID == "" {
			return ListPage{}, ErrJobNotFound
		}
		filter.UserID = req.UserID
	}
	filter = filter.normalized()

	jobs, total, err := q.store.ListJobs(ctx, filter)
	if err != nil {
		return ListPage{}, fmt.Errorf("failed to list jobs: %w", err)
	}
	if jobs == nil {
		jobs = []Job{}
	}

	return ListPage{
		Jobs:   jobs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// Cleanup deletes completed and failed jobs whose last update is older than
// olderThan and returns how many were removed. Pending and running jobs are
// never touched.
func (q *Queue) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan < 0 {
		return 0, fmt.Errorf("retention must not be negative: %s", olderThan)
	}

	cutoff := q.now().UTC().Add(-olderThan)

	deleted, err := q.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old jobs: %w", err)
	}

	if deleted > 0 {
		q.logger.Info("deleted old jobs",
			"count", deleted,
			"cutoff", cutoff)
	}
	return deleted, nil
}
