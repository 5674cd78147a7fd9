package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/relay-api/internal/events"
)

// QueueConfig holds configuration for the job queue
type QueueConfig struct {
	// WriteTimeout bounds each store write the executor performs on a job's
	// behalf (status changes, progress snapshots). If zero, defaults to 10 seconds.
	WriteTimeout time.Duration

	// EmitTimeout bounds the delivery of one lifecycle event to the emitter.
	// If zero, defaults to 2 seconds.
	EmitTimeout time.Duration
}

// DefaultQueueConfig returns a QueueConfig with reasonable defaults
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		WriteTimeout: 10 * time.Second,
		EmitTimeout:  2 * time.Second,
	}
}

// QueueOption customizes a Queue at construction time.
type QueueOption func(*Queue)

// WithEmitter publishes job lifecycle events to emitter.
func WithEmitter(emitter events.EventEmitter) QueueOption {
	return func(q *Queue) {
		q.emitter = emitter
	}
}

// WithClock replaces the time source used for job timestamps.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		q.now = now
	}
}

// execution tracks one scheduled job until its executor returns.
type execution struct {
	jobID     uuid.UUID
	taskType  string
	startedAt time.Time
	done      chan struct{}

	// announce is set for new submissions; their job.submitted event is
	// emitted from the executor goroutine, ahead of every later event.
	announce bool
}

// Queue accepts job submissions, runs each job on its own goroutine, and
// answers queries about job state.
type Queue struct {
	store    JobStore
	registry *Registry
	config   QueueConfig
	logger   *slog.Logger
	emitter  events.EventEmitter
	now      func() time.Time

	// baseCtx is the parent of every handler context. It is cancelled only
	// when Shutdown gives up waiting.
	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	inflight map[uuid.UUID]*execution
	closed   bool
	wg       sync.WaitGroup
}

// NewQueue creates a Queue that persists jobs in store and dispatches them to
// the handlers in registry.
func NewQueue(store JobStore, registry *Registry, config QueueConfig, logger *slog.Logger, opts ...QueueOption) *Queue {
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.EmitTimeout <= 0 {
		config.EmitTimeout = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		store:    store,
		registry: registry,
		config:   config,
		logger:   logger.With("component", "job_queue"),
		now:      time.Now,
		baseCtx:  ctx,
		cancel:   cancel,
		inflight: make(map[uuid.UUID]*execution),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Registry returns the registry the queue dispatches to.
func (q *Queue) Registry() *Registry {
	return q.registry
}

// Submit validates and persists a new pending job, schedules it for
// execution, and returns the pending record without waiting for the handler.
func (q *Queue) Submit(ctx context.Context, taskType string, input Payload, userID string) (Job, error) {
	if userID == "" {
		return Job{}, fmt.Errorf("%w: user id is required", ErrInvalidSubmission)
	}
	if _, ok := q.registry.Lookup(taskType); !ok {
		return Job{}, fmt.Errorf("%w: %q", ErrUnknownTaskType, taskType)
	}
	if q.isClosed() {
		return Job{}, ErrQueueClosed
	}

	job := newJob(taskType, input.Clone(), userID, q.now().UTC())

	if err := q.store.CreateJob(ctx, job); err != nil {
		return Job{}, fmt.Errorf("failed to save job: %w", err)
	}

	q.logger.Debug("job submitted",
		"job_id", job.ID,
		"task_type", job.TaskType,
		"user_id", job.UserID)

	if !q.schedule(job, true) {
		// Shutdown started while the record was being written; the job
		// will never run in this process.
		q.failUnstarted(job, "job queue shut down before the job started")
		return Job{}, ErrQueueClosed
	}

	// The executor owns job from here on; the caller gets its own copy.
	return copyJob(job), nil
}

// schedule registers the job as in flight and starts its executor. It
// reports false when the queue no longer accepts work.
func (q *Queue) schedule(job Job, announce bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if _, running := q.inflight[job.ID]; running {
		return true
	}

	exec := &execution{
		jobID:     job.ID,
		taskType:  job.TaskType,
		startedAt: q.now(),
		done:      make(chan struct{}),
		announce:  announce,
	}
	q.inflight[job.ID] = exec
	q.wg.Add(1)

	go q.execute(job, exec)
	return true
}

// release removes a finished execution from the in-flight map.
func (q *Queue) release(exec *execution) {
	q.mu.Lock()
	delete(q.inflight, exec.jobID)
	q.mu.Unlock()

	close(exec.done)
	q.wg.Done()
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// InFlight returns the IDs of jobs whose executors have not yet returned.
func (q *Queue) InFlight() []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(q.inflight))
	for id := range q.inflight {
		ids = append(ids, id)
	}
	return ids
}

// InFlightCount returns the number of jobs currently executing.
func (q *Queue) InFlightCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

// Wait blocks until every scheduled job has finished executing.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Shutdown stops accepting submissions and waits for in-flight jobs. If ctx
// expires first, handler contexts are cancelled and ctx.Err() is returned;
// handlers that ignore cancellation keep running until they return.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	remaining := len(q.inflight)
	q.mu.Unlock()

	q.logger.Info("job queue shutting down", "in_flight", remaining)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.logger.Info("job queue drained")
		return nil
	case <-ctx.Done():
		q.cancel()
		q.logger.Warn("job queue shutdown timed out, cancelling running jobs",
			"in_flight", q.InFlight())
		return ctx.Err()
	}
}

// Recover resumes work left behind by a previous process. Pending jobs are
// scheduled again; jobs that were running when the process stopped cannot be
// resumed safely and are marked failed.
func (q *Queue) Recover(ctx context.Context) error {
	running, err := q.store.ListJobsByStatus(ctx, StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to get running jobs: %w", err)
	}

	pending, err := q.store.ListJobsByStatus(ctx, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to get pending jobs: %w", err)
	}

	q.logger.Info("recovering unfinished jobs",
		"pending_count", len(pending),
		"running_count", len(running))

	for _, job := range running {
		if q.isInFlight(job.ID) {
			continue
		}
		const msg = "job interrupted before completion"
		if err := q.store.FailJob(ctx, job.ID, msg, q.now().UTC()); err != nil {
			q.logger.Error("failed to mark interrupted job as failed",
				"job_id", job.ID,
				"task_type", job.TaskType,
				"error", err)
			continue
		}
		job.Status = StatusFailed
		job.Error = msg
		q.emit(events.TypeJobFailed, job, nil)
	}

	for _, job := range pending {
		if !q.schedule(job, false) {
			return ErrQueueClosed
		}
	}

	return nil
}

func (q *Queue) isInFlight(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.inflight[id]
	return ok
}

// writeContext returns the context used for store writes made on a job's
// behalf. It is independent of the handler context so that outcomes are
// still recorded after a forced shutdown.
func (q *Queue) writeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), q.config.WriteTimeout)
}

// failUnstarted records a failure for a job that never reached running.
func (q *Queue) failUnstarted(job Job, msg string) {
	ctx, cancel := q.writeContext()
	defer cancel()

	if err := q.store.FailJob(ctx, job.ID, msg, q.now().UTC()); err != nil {
		q.logger.Error("failed to mark job as failed",
			"job_id", job.ID,
			"task_type", job.TaskType,
			"error", err)
		return
	}
	job.Status = StatusFailed
	job.Error = msg
	q.emit(events.TypeJobFailed, job, nil)
}

// emit publishes a lifecycle event if an emitter is configured, waiting at
// most EmitTimeout. Submit leaves emission to the executor goroutine.
// Emission failures are logged and never affect the job.
func (q *Queue) emit(eventType string, job Job, payload any) {
	if q.emitter == nil {
		return
	}

	event, err := events.NewJobEvent(eventType, job.ID, job.TaskType, job.UserID, string(job.Status), payload)
	if err != nil {
		q.logger.Warn("failed to build job event",
			"event_type", eventType,
			"job_id", job.ID,
			"error", err)
		return
	}
	event.Error = job.Error

	ctx, cancel := context.WithTimeout(context.Background(), q.config.EmitTimeout)
	defer cancel()

	if err := q.emitter.EmitEvent(ctx, event); err != nil {
		q.logger.Warn("failed to emit job event",
			"event_type", eventType,
			"job_id", job.ID,
			"error", err)
	}
}
