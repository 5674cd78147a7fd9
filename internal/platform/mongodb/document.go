package mongodb

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/relay-api/internal/task"
	"go.mongodb.org/mongo-driver/bson"
)

// jobDocument is the stored form of a task.Job.
type jobDocument struct {
	ID          string            `bson:"_id"`
	TaskType    string            `bson:"task_type"`
	UserID      string            `bson:"user_id"`
	Input       bson.M            `bson:"input"`
	Status      string            `bson:"status"`
	Progress    *progressDocument `bson:"progress,omitempty"`
	Result      bson.M            `bson:"result,omitempty"`
	Error       string            `bson:"error,omitempty"`
	CreatedAt   time.Time         `bson:"created_at"`
	UpdatedAt   time.Time         `bson:"updated_at"`
	StartedAt   *time.Time        `bson:"started_at,omitempty"`
	CompletedAt *time.Time        `bson:"completed_at,omitempty"`
}

type progressDocument struct {
	CurrentStep    string  `bson:"current_step"`
	TotalSteps     int     `bson:"total_steps"`
	CurrentStepNum int     `bson:"current_step_num"`
	Percentage     float64 `bson:"percentage"`
	Message        string  `bson:"message"`
}

func newProgressDocument(p task.Progress) *progressDocument {
	return &progressDocument{
		CurrentStep:    p.CurrentStep,
		TotalSteps:     p.TotalSteps,
		CurrentStepNum: p.CurrentStepNum,
		Percentage:     p.Percentage,
		Message:        p.Message,
	}
}

func toDocument(job task.Job) jobDocument {
	input := bson.M(job.Input.Clone())
	if input == nil {
		input = bson.M{}
	}

	doc := jobDocument{
		ID:          job.ID.String(),
		TaskType:    job.TaskType,
		UserID:      job.UserID,
		Input:       input,
		Status:      string(job.Status),
		Result:      bson.M(job.Result.Clone()),
		Error:       job.Error,
		CreatedAt:   job.CreatedAt.UTC(),
		UpdatedAt:   job.UpdatedAt.UTC(),
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.Progress != nil {
		doc.Progress = newProgressDocument(*job.Progress)
	}
	return doc
}

func (d jobDocument) toJob() (task.Job, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return task.Job{}, fmt.Errorf("invalid job id %q: %w", d.ID, err)
	}

	input, err := decodePayload(d.Input)
	if err != nil {
		return task.Job{}, fmt.Errorf("failed to decode job input: %w", err)
	}
	if input == nil {
		input = task.Payload{}
	}
	result, err := decodePayload(d.Result)
	if err != nil {
		return task.Job{}, fmt.Errorf("failed to decode job result: %w", err)
	}

	job := task.Job{
		ID:        id,
		TaskType:  d.TaskType,
		UserID:    d.UserID,
		Input:     input,
		Status:    task.Status(d.Status),
		Result:    result,
		Error:     d.Error,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	if d.StartedAt != nil {
		t := d.StartedAt.UTC()
		job.StartedAt = &t
	}
	if d.CompletedAt != nil {
		t := d.CompletedAt.UTC()
		job.CompletedAt = &t
	}
	if d.Progress != nil {
		job.Progress = &task.Progress{
			CurrentStep:    d.Progress.CurrentStep,
			TotalSteps:     d.Progress.TotalSteps,
			CurrentStepNum: d.Progress.CurrentStepNum,
			Percentage:     d.Progress.Percentage,
			Message:        d.Progress.Message,
		}
	}
	return job, nil
}

// decodePayload converts a stored document to a Payload with the same value
// types a JSON decode produces, so every backend returns identical shapes.
func decodePayload(m bson.M) (task.Payload, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var p task.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// listQuery builds the filter document for a listing.
func listQuery(filter task.ListFilter) bson.M {
	query := bson.M{}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	if filter.TaskType != "" {
		query["task_type"] = filter.TaskType
	}
	return query
}

func statusValues(statuses []task.Status) bson.A {
	values := make(bson.A, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}
	return values
}
