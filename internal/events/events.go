package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job lifecycle event types
const (
	TypeJobSubmitted = "job.submitted"
	TypeJobStarted   = "job.started"
	TypeJobProgress  = "job.progress"
	TypeJobCompleted = "job.completed"
	TypeJobFailed    = "job.failed"
)

// JobEvent describes one lifecycle transition of a background job.
// It deliberately carries plain values so that this package has no
// dependency on the task package.
type JobEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the TypeJob* constants
	Type string `json:"type"`

	JobID    uuid.UUID `json:"job_id"`
	TaskType string    `json:"task_type"`
	UserID   string    `json:"user_id"`
	Status   string    `json:"status"`

	// Payload carries event-specific data (the progress snapshot for
	// job.progress) serialized as JSON
	Payload json.RawMessage `json:"payload,omitempty"`

	// Error is set for job.failed
	Error string `json:"error,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *JobEvent) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NewJobEvent creates a JobEvent of the given type. payload may be nil.
func NewJobEvent(eventType string, jobID uuid.UUID, taskType, userID, status string, payload any) (*JobEvent, error) {
	event := &JobEvent{
		ID:        uuid.New(),
		Type:      eventType,
		JobID:     jobID,
		TaskType:  taskType,
		UserID:    userID,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}

	if payload != nil {
		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		event.Payload = payloadBytes
	}

	return event, nil
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *JobEvent) error
}

// EventHandlerFunc adapts an ordinary function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, event *JobEvent) error

// HandleEvent calls f(ctx, event).
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *JobEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows the queue to publish events without knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *JobEvent) error
}
