package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/relay-api/internal/store"
)

// MemoryJobStore is a JobStore kept in process memory. It is used when no
// database is configured and in tests. Records do not survive a restart.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
}

// NewMemoryJobStore creates an empty MemoryJobStore.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[uuid.UUID]*Job)}
}

// CreateJob implements JobStore.
func (s *MemoryJobStore) CreateJob(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return store.ErrJobExists
	}
	stored := copyJob(job)
	s.jobs[job.ID] = &stored
	return nil
}

// GetJob implements JobReader.
func (s *MemoryJobStore) GetJob(ctx context.Context, id uuid.UUID) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, store.ErrJobNotFound
	}
	return copyJob(*j), nil
}

// update applies mutate to the job if allowed accepts its current status.
func (s *MemoryJobStore) update(ctx context.Context, id uuid.UUID, allowed func(Status) bool, mutate func(*Job)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if !allowed(j.Status) {
		return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, id, j.Status)
	}
	mutate(j)
	return nil
}

// transition moves the job to next, provided its lifecycle permits it.
func (s *MemoryJobStore) transition(ctx context.Context, id uuid.UUID, next Status, mutate func(*Job)) error {
	return s.update(ctx, id, func(current Status) bool {
		return current.CanTransitionTo(next)
	}, func(j *Job) {
		j.Status = next
		mutate(j)
	})
}

// MarkRunning implements JobStore.
func (s *MemoryJobStore) MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.transition(ctx, id, StatusRunning, func(j *Job) {
		j.StartedAt = &at
		j.UpdatedAt = at
	})
}

// UpdateProgress implements JobStore.
func (s *MemoryJobStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress Progress, at time.Time) error {
	running := func(current Status) bool { return current == StatusRunning }
	return s.update(ctx, id, running, func(j *Job) {
		j.Progress = &progress
		j.UpdatedAt = at
	})
}

// CompleteJob implements JobStore.
func (s *MemoryJobStore) CompleteJob(ctx context.Context, id uuid.UUID, result Payload, at time.Time) error {
	result = result.Clone()
	if result == nil {
		result = Payload{}
	}
	return s.transition(ctx, id, StatusCompleted, func(j *Job) {
		j.Result = result
		j.Error = ""
		j.CompletedAt = &at
		j.UpdatedAt = at
	})
}

// FailJob implements JobStore.
func (s *MemoryJobStore) FailJob(ctx context.Context, id uuid.UUID, message string, at time.Time) error {
	return s.transition(ctx, id, StatusFailed, func(j *Job) {
		j.Result = nil
		j.Error = message
		j.CompletedAt = &at
		j.UpdatedAt = at
	})
}

// ListJobs implements JobReader.
func (s *MemoryJobStore) ListJobs(ctx context.Context, filter ListFilter) ([]Job, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	matched := make([]Job, 0)
	for _, j := range s.jobs {
		if filter.UserID != "" && j.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.TaskType != "" && j.TaskType != filter.TaskType {
			continue
		}
		matched = append(matched, copyJob(*j))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(a, b int) bool {
		if matched[a].CreatedAt.Equal(matched[b].CreatedAt) {
			return matched[a].ID.String() > matched[b].ID.String()
		}
		return matched[a].CreatedAt.After(matched[b].CreatedAt)
	})

	total := len(matched)
	if filter.Offset >= total {
		return []Job{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}

// ListJobsByStatus implements JobStore.
func (s *MemoryJobStore) ListJobsByStatus(ctx context.Context, status Status) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	jobs := make([]Job, 0)
	for _, j := range s.jobs {
		if j.Status == status {
			jobs = append(jobs, copyJob(*j))
		}
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.Before(jobs[b].CreatedAt)
	})
	return jobs, nil
}

// DeleteTerminalBefore implements JobStore.
func (s *MemoryJobStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, j := range s.jobs {
		if j.Status.Terminal() && j.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

var _ JobStore = (*MemoryJobStore)(nil)
