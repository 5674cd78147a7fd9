package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	testUser  = "user-a"
	otherUser = "user-b"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// newTestQueue builds a queue over the given store (a fresh MemoryJobStore
// when nil) and shuts it down on cleanup so no executor outlives the test.
func newTestQueue(t *testing.T, jobStore JobStore, opts ...QueueOption) (*Queue, *Registry) {
	t.Helper()

	if jobStore == nil {
		jobStore = NewMemoryJobStore()
	}
	registry := NewRegistry()
	q := NewQueue(jobStore, registry, DefaultQueueConfig(), newTestLogger(), opts...)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Shutdown(ctx)
	})
	return q, registry
}

// waitForTerminal polls until the job reaches completed or failed.
func waitForTerminal(t *testing.T, q *Queue, id uuid.UUID, req Requester) Job {
	t.Helper()

	var job Job
	require.Eventually(t, func() bool {
		var err error
		job, err = q.GetJob(context.Background(), id, req)
		return err == nil && job.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond, "job %s did not finish", id)
	return job
}

func echoHandler(ctx context.Context, job Job, _ JobReader, _ ProgressFunc) (Payload, error) {
	return Payload{"echo": job.Input["text"]}, nil
}

// blockingHandler returns a handler that waits for release (or ctx) and a
// channel that is closed once the handler has started.
func blockingHandler(release <-chan struct{}) (Handler, <-chan struct{}) {
	started := make(chan struct{})
	var once sync.Once
	h := func(ctx context.Context, job Job, _ JobReader, _ ProgressFunc) (Payload, error) {
		once.Do(func() { close(started) })
		select {
		case <-release:
			return Payload{"released": true}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return h, started
}

// recordingStore wraps MemoryJobStore and records every status a job moves
// through, in the order the writes succeeded.
type recordingStore struct {
	*MemoryJobStore

	mu      sync.Mutex
	history map[uuid.UUID][]Status
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		MemoryJobStore: NewMemoryJobStore(),
		history:        make(map[uuid.UUID][]Status),
	}
}

func (s *recordingStore) record(id uuid.UUID, st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[id] = append(s.history[id], st)
}

func (s *recordingStore) statuses(id uuid.UUID) []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Status(nil), s.history[id]...)
}

func (s *recordingStore) CreateJob(ctx context.Context, job Job) error {
	if err := s.MemoryJobStore.CreateJob(ctx, job); err != nil {
		return err
	}
	s.record(job.ID, job.Status)
	return nil
}

func (s *recordingStore) MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := s.MemoryJobStore.MarkRunning(ctx, id, at); err != nil {
		return err
	}
	s.record(id, StatusRunning)
	return nil
}

func (s *recordingStore) CompleteJob(ctx context.Context, id uuid.UUID, result Payload, at time.Time) error {
	if err := s.MemoryJobStore.CompleteJob(ctx, id, result, at); err != nil {
		return err
	}
	s.record(id, StatusCompleted)
	return nil
}

func (s *recordingStore) FailJob(ctx context.Context, id uuid.UUID, msg string, at time.Time) error {
	if err := s.MemoryJobStore.FailJob(ctx, id, msg, at); err != nil {
		return err
	}
	s.record(id, StatusFailed)
	return nil
}

// faultyStore lets a test replace individual store writes.
type faultyStore struct {
	*MemoryJobStore

	CreateJobFn      func(ctx context.Context, job Job) error
	MarkRunningFn    func(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateProgressFn func(ctx context.Context, id uuid.UUID, p Progress, at time.Time) error
	CompleteJobFn    func(ctx context.Context, id uuid.UUID, result Payload, at time.Time) error
}

var errStoreDown = errors.New("store unavailable")

func (s *faultyStore) CreateJob(ctx context.Context, job Job) error {
	if s.CreateJobFn != nil {
		return s.CreateJobFn(ctx, job)
	}
	return s.MemoryJobStore.CreateJob(ctx, job)
}

func (s *faultyStore) MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) error {
	if s.MarkRunningFn != nil {
		return s.MarkRunningFn(ctx, id, at)
	}
	return s.MemoryJobStore.MarkRunning(ctx, id, at)
}

func (s *faultyStore) UpdateProgress(ctx context.Context, id uuid.UUID, p Progress, at time.Time) error {
	if s.UpdateProgressFn != nil {
		return s.UpdateProgressFn(ctx, id, p, at)
	}
	return s.MemoryJobStore.UpdateProgress(ctx, id, p, at)
}

func (s *faultyStore) CompleteJob(ctx context.Context, id uuid.UUID, result Payload, at time.Time) error {
	if s.CompleteJobFn != nil {
		return s.CompleteJobFn(ctx, id, result, at)
	}
	return s.MemoryJobStore.CompleteJob(ctx, id, result, at)
}
