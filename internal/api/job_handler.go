package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/relay-api/internal/api/shared"
	"github.com/phrazzld/relay-api/internal/platform/logger"
	"github.com/phrazzld/relay-api/internal/task"
)

// JobQueue is the subset of *task.Queue the handlers use.
type JobQueue interface {
	Submit(ctx context.Context, taskType string, input task.Payload, userID string) (task.Job, error)
	GetJob(ctx context.Context, id uuid.UUID, req task.Requester) (task.Job, error)
	GetResult(ctx context.Context, id uuid.UUID, req task.Requester) (task.JobResult, error)
	ListJobs(ctx context.Context, req task.Requester, filter task.ListFilter) (task.ListPage, error)
	Registry() *task.Registry
}

var _ JobQueue = (*task.Queue)(nil)

// JobHandler serves the job endpoints.
type JobHandler struct {
	queue  JobQueue
	logger *slog.Logger
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(queue JobQueue, logger *slog.Logger) *JobHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for JobHandler")
	}

	return &JobHandler{
		queue:  queue,
		logger: logger.With(slog.String("component", "job_handler")),
	}
}

// requester extracts the caller or writes a 401.
func (h *JobHandler) requester(w http.ResponseWriter, r *http.Request) (task.Requester, bool) {
	req, ok := requesterFromContext(r)
	if !ok {
		logger.FromContext(r.Context()).Warn("user ID not found or invalid in request context")
		HandleAPIError(w, r, ErrUnauthorized, "")
		return task.Requester{}, false
	}
	return req, true
}

// SubmitJob handles POST /api/jobs. The job is accepted immediately and
// runs in the background.
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	var req SubmitJobRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		HandleAPIError(w, r, fmt.Errorf("%w: %v", ErrInvalidRequest, err), "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, fmt.Errorf("%w: %v", ErrInvalidRequest, err), SanitizeValidationError(err))
		return
	}

	job, err := h.queue.Submit(r.Context(), req.TaskType, req.InputData, requester.UserID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	h.logger.InfoContext(r.Context(), "job accepted",
		slog.String("job_id", job.ID.String()),
		slog.String("task_type", job.TaskType),
		slog.String("user_id", requester.UserID),
		slog.String("trace_id", shared.GetTraceID(r.Context())))

	w.Header().Set("Location", "/api/jobs/"+job.ID.String())
	shared.RespondWithJSON(w, r, http.StatusAccepted, job)
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "Invalid job ID")
		return
	}

	job, err := h.queue.GetJob(r.Context(), id, requester)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, job)
}

// GetJobResult handles GET /api/jobs/{id}/result. It answers 409 while the
// job is still pending or running.
func (h *JobHandler) GetJobResult(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "Invalid job ID")
		return
	}

	res, err := h.queue.GetResult(r.Context(), id, requester)
	if err != nil {
		if errors.Is(err, task.ErrJobNotReady) {
			logger.FromContext(r.Context()).Debug("result requested before job finished",
				slog.String("job_id", id.String()))
		}
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, res)
}

// ListJobs handles GET /api/jobs.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}
	filter, err := parseListFilter(r.URL.Query())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	page, err := h.queue.ListJobs(r.Context(), requester, filter)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ListJobsResponse{
		Jobs:   page.Jobs,
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

// ListTaskTypes handles GET /api/task-types.
func (h *JobHandler) ListTaskTypes(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, TaskTypesResponse{
		TaskTypes: h.queue.Registry().Types(),
	})
}
