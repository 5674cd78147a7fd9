package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/relay-api/internal/store"
	"github.com/phrazzld/relay-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jobRowColumns = []string{
	"id", "task_type", "user_id", "input", "status", "progress", "result", "error",
	"created_at", "updated_at", "started_at", "completed_at",
}

func newMockStore(t *testing.T) (*PostgresJobStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgresJobStore(db), mock
}

func TestPostgresJobStore_CreateJob(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	job := task.Job{
		ID:        uuid.New(),
		TaskType:  "content_analysis",
		UserID:    "user-1",
		Input:     task.Payload{"text": "hello"},
		Status:    task.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	t.Run("inserts the pending row", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO jobs")).
			WithArgs(job.ID, job.TaskType, job.UserID, `{"text":"hello"}`, "pending", now, now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.CreateJob(ctx, job))
	})

	t.Run("nil input becomes an empty object", func(t *testing.T) {
		s, mock := newMockStore(t)
		empty := job
		empty.Input = nil
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO jobs")).
			WithArgs(job.ID, job.TaskType, job.UserID, "{}", "pending", now, now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.CreateJob(ctx, empty))
	})

	t.Run("duplicate id", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO jobs")).
			WillReturnError(newPgError(uniqueViolationCode))

		err := s.CreateJob(ctx, job)
		assert.ErrorIs(t, err, store.ErrJobExists)
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})
}

func TestPostgresJobStore_GetJob(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	created := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	finished := created.Add(time.Minute)

	t.Run("decodes a completed row", func(t *testing.T) {
		s, mock := newMockStore(t)
		rows := sqlmock.NewRows(jobRowColumns).AddRow(
			id.String(), "content_generation", "user-1", []byte(`{"topic":"go"}`), "completed",
			[]byte(`{"current_step":"finalize","total_steps":3,"current_step_num":3,"percentage":100,"message":"done"}`),
			[]byte(`{"text":"Go is fun"}`), nil,
			created, finished, created, finished,
		)
		mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE id = $1")).WithArgs(id).WillReturnRows(rows)

		job, err := s.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, job.ID)
		assert.Equal(t, task.StatusCompleted, job.Status)
		assert.Equal(t, task.Payload{"topic": "go"}, job.Input)
		assert.Equal(t, task.Payload{"text": "Go is fun"}, job.Result)
		assert.Empty(t, job.Error)
		require.NotNil(t, job.Progress)
		assert.Equal(t, 100.0, job.Progress.Percentage)
		assert.Equal(t, "finalize", job.Progress.CurrentStep)
		require.NotNil(t, job.CompletedAt)
		assert.Equal(t, finished, *job.CompletedAt)
	})

	t.Run("decodes a pending row", func(t *testing.T) {
		s, mock := newMockStore(t)
		rows := sqlmock.NewRows(jobRowColumns).AddRow(
			id.String(), "image_generation", "user-1", []byte(`{}`), "pending",
			nil, nil, nil, created, created, nil, nil,
		)
		mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE id = $1")).WithArgs(id).WillReturnRows(rows)

		job, err := s.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, task.StatusPending, job.Status)
		assert.Nil(t, job.Progress)
		assert.Nil(t, job.Result)
		assert.Nil(t, job.StartedAt)
	})

	t.Run("missing", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE id = $1")).WithArgs(id).WillReturnError(sql.ErrNoRows)

		_, err := s.GetJob(ctx, id)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestPostgresJobStore_ConditionalUpdates(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	at := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	t.Run("mark running", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'pending'")).
			WithArgs(id, at).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.MarkRunning(ctx, id, at))
	})

	t.Run("complete encodes the result", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("SET status = 'completed'")).
			WithArgs(id, `{"flagged":false}`, at).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.CompleteJob(ctx, id, task.Payload{"flagged": false}, at))
	})

	t.Run("progress encodes the snapshot", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("SET progress = $2")).
			WithArgs(id, `{"current_step":"analyze","total_steps":3,"current_step_num":2,"percentage":60,"message":""}`, at).
			WillReturnResult(sqlmock.NewResult(0, 1))

		progress := task.Progress{CurrentStep: "analyze", TotalSteps: 3, CurrentStepNum: 2, Percentage: 60}
		require.NoError(t, s.UpdateProgress(ctx, id, progress, at))
	})

	t.Run("terminal job is not overwritten", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("SET status = 'failed'")).
			WithArgs(id, "bad input", at).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM jobs WHERE id = $1")).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))

		err := s.FailJob(ctx, id, "bad input", at)
		assert.ErrorIs(t, err, task.ErrInvalidTransition)
		assert.Contains(t, err.Error(), "completed")
	})

	t.Run("missing job", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("SET status = 'running'")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM jobs WHERE id = $1")).
			WithArgs(id).
			WillReturnError(sql.ErrNoRows)

		err := s.MarkRunning(ctx, id, at)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestPostgresJobStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	id := uuid.New()

	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM jobs WHERE user_id = $1 AND status = $2")).
		WithArgs("user-1", "running").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4")).
		WithArgs("user-1", "running", 5, 5).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).AddRow(
			id.String(), "content_analysis", "user-1", []byte(`{"text":"hi"}`), "running",
			nil, nil, nil, created, created, created, nil,
		))
	mock.ExpectCommit()

	jobs, total, err := s.ListJobs(ctx, task.ListFilter{
		UserID: "user-1",
		Status: task.StatusRunning,
		Limit:  5,
		Offset: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)
	assert.Equal(t, task.StatusRunning, jobs[0].Status)
}

func TestPostgresJobStore_ListJobsByStatus(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(jobRowColumns)
	for i := 0; i < 3; i++ {
		rows.AddRow(uuid.New().String(), "content_analysis", "user-1", []byte(`{}`), "pending",
			nil, nil, nil, created, created, nil, nil)
	}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1 ORDER BY created_at ASC")).
		WithArgs("pending").
		WillReturnRows(rows)

	jobs, err := s.ListJobsByStatus(context.Background(), task.StatusPending)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestPostgresJobStore_DeleteTerminalBefore(t *testing.T) {
	s, mock := newMockStore(t)
	cutoff := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("WHERE status IN ('completed', 'failed') AND updated_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	deleted, err := s.DeleteTerminalBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
}

func TestListConditions(t *testing.T) {
	where, args := listConditions(task.ListFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = listConditions(task.ListFilter{TaskType: "image_generation", Status: task.StatusFailed})
	assert.Equal(t, " WHERE status = $1 AND task_type = $2", where)
	assert.Equal(t, []any{"failed", "image_generation"}, args)
}
