package task

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/phrazzld/relay-api/internal/events"
	"github.com/phrazzld/relay-api/internal/platform/logger"
	"github.com/phrazzld/relay-api/internal/redact"
)

// outcome is what a handler invocation produced: either a result or an error.
type outcome struct {
	result Payload
	err    error
}

func succeeded(result Payload) outcome {
	if result == nil {
		result = Payload{}
	}
	return outcome{result: result}
}

func failed(err error) outcome {
	return outcome{err: err}
}

// message returns the text persisted for a failed outcome: the error text
// with only credentials masked.
func (o outcome) message() string {
	if o.err == nil {
		return "job failed"
	}
	if msg := redact.Secrets(o.err.Error()); msg != "" {
		return msg
	}
	return "job failed"
}

// execute drives one job from pending to a terminal status. It runs on its
// own goroutine and never returns an error; every failure ends up in the job
// record or the log.
func (q *Queue) execute(job Job, exec *execution) {
	defer q.release(exec)

	log := q.logger.With(
		"job_id", job.ID,
		"task_type", job.TaskType,
		"user_id", job.UserID)

	if exec.announce {
		q.emit(events.TypeJobSubmitted, job, nil)
	}

	handler, ok := q.registry.Lookup(job.TaskType)
	if !ok {
		log.Error("no handler registered for task type")
		q.failUnstarted(job, fmt.Sprintf("no handler registered for task type %q", job.TaskType))
		return
	}

	startedAt := q.now().UTC()
	writeCtx, cancel := q.writeContext()
	err := q.store.MarkRunning(writeCtx, job.ID, startedAt)
	cancel()
	if err != nil {
		log.Error("failed to mark job as running", "error", err)
		q.failUnstarted(job, fmt.Sprintf("failed to start job: %v", err))
		return
	}

	job.Status = StatusRunning
	job.StartedAt = &startedAt
	job.UpdatedAt = startedAt
	q.emit(events.TypeJobStarted, job, nil)
	log.Info("job started")

	reporter := newProgressReporter(q, job, log)
	go reporter.run()

	ctx := logger.WithLogger(q.baseCtx, log)
	out := q.invoke(ctx, handler, job, reporter.report, log)

	// All accepted progress must be written before the final status so that a
	// late snapshot can never land on a terminal record.
	reporter.close()

	q.finish(job, out, log)
}

// invoke calls the handler and converts a panic into a failed outcome.
func (q *Queue) invoke(ctx context.Context, handler Handler, job Job, report ProgressFunc, log *slog.Logger) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job handler panicked",
				"panic", r,
				"stack", string(debug.Stack()))
			out = failed(fmt.Errorf("handler panicked: %v", r))
		}
	}()

	// Handlers get their own deep copy of the input so they cannot mutate
	// the stored record.
	job.Input = job.Input.Clone()

	result, err := handler(ctx, job, q.store, report)
	if err != nil {
		return failed(err)
	}
	return succeeded(result)
}

// finish persists the terminal status for out.
func (q *Queue) finish(job Job, out outcome, log *slog.Logger) {
	ctx, cancel := q.writeContext()
	defer cancel()

	completedAt := q.now().UTC()

	if out.err == nil {
		err := q.store.CompleteJob(ctx, job.ID, out.result, completedAt)
		if err == nil {
			job.Status = StatusCompleted
			job.Result = out.result
			job.CompletedAt = &completedAt
			log.Info("job completed",
				"duration_ms", completedAt.Sub(*job.StartedAt).Milliseconds())
			q.emit(events.TypeJobCompleted, job, nil)
			return
		}

		// The work succeeded but its result could not be stored. Record the
		// failure rather than leave the job running forever.
		log.Error("failed to persist job result", "error", err)
		out = failed(fmt.Errorf("failed to persist job result: %w", err))
	}

	msg := out.message()
	if err := q.store.FailJob(ctx, job.ID, msg, completedAt); err != nil {
		log.Error("failed to mark job as failed",
			"job_error", redact.String(msg),
			"error", err)
		return
	}

	job.Status = StatusFailed
	job.Error = msg
	job.CompletedAt = &completedAt
	log.Warn("job failed", "job_error", redact.String(msg))
	q.emit(events.TypeJobFailed, job, nil)
}

// progressReporter coalesces progress reports from a handler into a single
// pending snapshot that a dedicated goroutine writes to the store. Reports
// never block the handler; when writes fall behind, intermediate snapshots
// are dropped and the newest one wins.
type progressReporter struct {
	q   *Queue
	job Job
	log *slog.Logger

	mu      sync.Mutex
	pending *Progress
	stopped bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newProgressReporter(q *Queue, job Job, log *slog.Logger) *progressReporter {
	return &progressReporter{
		q:    q,
		job:  job,
		log:  log,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// report is the ProgressFunc handed to the handler.
func (r *progressReporter) report(p Progress) {
	p = p.normalized()

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.pending = &p
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *progressReporter) run() {
	defer close(r.done)
	for {
		select {
		case <-r.wake:
			r.flush()
		case <-r.stop:
			r.flush()
			return
		}
	}
}

func (r *progressReporter) flush() {
	r.mu.Lock()
	p := r.pending
	r.pending = nil
	r.mu.Unlock()

	if p == nil {
		return
	}

	ctx, cancel := r.q.writeContext()
	defer cancel()

	if err := r.q.store.UpdateProgress(ctx, r.job.ID, *p, r.q.now().UTC()); err != nil {
		r.log.Warn("failed to persist job progress",
			"step", p.CurrentStep,
			"percentage", p.Percentage,
			"error", err)
		return
	}

	job := r.job
	job.Progress = p
	r.q.emit(events.TypeJobProgress, job, p)
}

// close stops accepting reports, writes the last pending snapshot, and
// waits for the writer goroutine to exit.
func (r *progressReporter) close() {
	r.once.Do(func() {
		r.mu.Lock()
		r.stopped = true
		r.mu.Unlock()
		close(r.stop)
	})
	<-r.done
}
