package task

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a job
type Status string

// Possible job status values
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the known job statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions can occur from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is a legal lifecycle step.
// A job only ever moves forward: pending -> running -> completed|failed. A pending
// job may also fail directly when it cannot be started.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// TerminalStatuses lists the statuses that end a job's lifecycle.
var TerminalStatuses = []Status{StatusCompleted, StatusFailed}

var allStatuses = []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed}

// SourcesOf returns the statuses from which a job may move to next, in
// lifecycle order.
func SourcesOf(next Status) []Status {
	var from []Status
	for _, s := range allStatuses {
		if s.CanTransitionTo(next) {
			from = append(from, s)
		}
	}
	return from
}

// Payload is an opaque key-value document. Its schema belongs to the handler
// of each task type; the queue never inspects it.
type Payload map[string]any

// Clone returns a deep copy of p. Nested maps and slices are copied so the
// clone shares no mutable state with p. A nil payload stays nil.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Payload:
		return t.Clone()
	case map[string]any:
		if t == nil {
			return t
		}
		return map[string]any(Payload(t).Clone())
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []map[string]any:
		if t == nil {
			return t
		}
		out := make([]map[string]any, len(t))
		for i, e := range t {
			out[i] = map[string]any(Payload(e).Clone())
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []byte:
		return append([]byte(nil), t...)
	default:
		return v
	}
}

// Progress is the last snapshot a running handler reported for its job.
type Progress struct {
	CurrentStep    string  `json:"current_step"`
	TotalSteps     int     `json:"total_steps"`
	CurrentStepNum int     `json:"current_step_num"`
	Percentage     float64 `json:"percentage"`
	Message        string  `json:"message"`
}

// normalized clamps the percentage into [0, 100].
func (p Progress) normalized() Progress {
	switch {
	case p.Percentage < 0:
		p.Percentage = 0
	case p.Percentage > 100:
		p.Percentage = 100
	}
	return p
}

// Job is one unit of background work and its persisted lifecycle state.
type Job struct {
	ID          uuid.UUID  `json:"job_id"`
	TaskType    string     `json:"task_type"`
	UserID      string     `json:"user_id"`
	Input       Payload    `json:"input_data"`
	Status      Status     `json:"status"`
	Progress    *Progress  `json:"progress,omitempty"`
	Result      Payload    `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// newJob builds the pending record written at submission time.
func newJob(taskType string, input Payload, userID string, now time.Time) Job {
	if input == nil {
		input = Payload{}
	}
	return Job{
		ID:        uuid.New(),
		TaskType:  taskType,
		UserID:    userID,
		Input:     input,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// OwnedBy reports whether the job belongs to userID.
func (j Job) OwnedBy(userID string) bool {
	return j.UserID == userID
}

// JobResult is the read model returned by GetResult once a job is terminal.
// Result is set only for completed jobs and Error only for failed ones.
type JobResult struct {
	JobID  uuid.UUID `json:"job_id"`
	Status Status    `json:"status"`
	Result Payload   `json:"result,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Requester identifies who is reading job data. Elevated requesters may read
// every user's jobs; everyone else only sees their own.
type Requester struct {
	UserID   string
	Elevated bool
}

// canRead reports whether r may see job j.
func (r Requester) canRead(j Job) bool {
	return r.Elevated || (r.UserID != "" && j.OwnedBy(r.UserID))
}

// copyJob returns a copy of j that shares no mutable state with it.
func copyJob(j Job) Job {
	j.Input = j.Input.Clone()
	j.Result = j.Result.Clone()
	if j.Progress != nil {
		p := *j.Progress
		j.Progress = &p
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		j.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		j.CompletedAt = &t
	}
	return j
}
