package api

import (
	"github.com/phrazzld/relay-api/internal/task"
)

// SubmitJobRequest is the body of POST /api/jobs.
type SubmitJobRequest struct {
	TaskType  string       `json:"task_type"  validate:"required,max=100"`
	InputData task.Payload `json:"input_data"`
}

// ListJobsResponse is one page of GET /api/jobs.
type ListJobsResponse struct {
	Jobs   []task.Job `json:"jobs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// TaskTypesResponse lists the task types the server accepts.
type TaskTypesResponse struct {
	TaskTypes []string `json:"task_types"`
}
