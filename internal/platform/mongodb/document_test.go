package mongodb

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/relay-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestDocumentRoundTrip(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	started := created.Add(time.Second)
	completed := created.Add(time.Minute)
	job := task.Job{
		ID:          uuid.New(),
		TaskType:    "content_analysis",
		UserID:      "user-1",
		Input:       task.Payload{"text": "hello", "options": map[string]any{"strict": true}},
		Status:      task.StatusCompleted,
		Progress:    &task.Progress{CurrentStep: "done", TotalSteps: 2, CurrentStepNum: 2, Percentage: 100},
		Result:      task.Payload{"flagged": false},
		CreatedAt:   created,
		UpdatedAt:   completed,
		StartedAt:   &started,
		CompletedAt: &completed,
	}

	doc := toDocument(job)
	assert.Equal(t, job.ID.String(), doc.ID)
	assert.Equal(t, "completed", doc.Status)
	require.NotNil(t, doc.Progress)
	assert.Equal(t, 100.0, doc.Progress.Percentage)

	got, err := doc.toJob()
	require.NoError(t, err)
	assert.Equal(t, job, got)
}

func TestToDocument_NilInput(t *testing.T) {
	t.Parallel()

	doc := toDocument(task.Job{ID: uuid.New(), Status: task.StatusPending})
	assert.Equal(t, bson.M{}, doc.Input)
	assert.Nil(t, doc.Result)
	assert.Nil(t, doc.Progress)
}

func TestToJob_InvalidID(t *testing.T) {
	t.Parallel()

	_, err := jobDocument{ID: "not-a-uuid"}.toJob()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid job id")
}

func TestDecodePayload_NormalizesNumbers(t *testing.T) {
	t.Parallel()

	p, err := decodePayload(bson.M{
		"count":  int32(3),
		"nested": bson.M{"big": int64(7)},
		"tags":   bson.A{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, task.Payload{
		"count":  3.0,
		"nested": map[string]any{"big": 7.0},
		"tags":   []any{"a", "b"},
	}, p)

	p, err = decodePayload(nil)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestListQuery(t *testing.T) {
	t.Parallel()

	assert.Equal(t, bson.M{}, listQuery(task.ListFilter{}))
	assert.Equal(t, bson.M{
		"user_id":   "user-1",
		"status":    "failed",
		"task_type": "image_generation",
	}, listQuery(task.ListFilter{
		UserID:   "user-1",
		Status:   task.StatusFailed,
		TaskType: "image_generation",
	}))
}
