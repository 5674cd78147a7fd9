package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/relay-api/internal/platform/logger"
	"github.com/phrazzld/relay-api/internal/store"
	"github.com/phrazzld/relay-api/internal/task"
)

const jobColumns = `id, task_type, user_id, input, status, progress, result, error,
	created_at, updated_at, started_at, completed_at`

// PostgresJobStore implements task.JobStore using PostgreSQL.
type PostgresJobStore struct {
	db store.DBTX
}

// NewPostgresJobStore creates a new PostgresJobStore
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

// WithTx returns a store that runs its queries inside tx.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) *PostgresJobStore {
	return &PostgresJobStore{db: tx}
}

// CreateJob implements task.JobStore.
func (s *PostgresJobStore) CreateJob(ctx context.Context, job task.Job) error {
	log := logger.FromContext(ctx)

	input, err := marshalPayload(job.Input)
	if err != nil {
		return fmt.Errorf("%w: input: %v", store.ErrInvalidEntity, err)
	}
	if input == nil {
		input = "{}"
	}

	query := `
		INSERT INTO jobs (id, task_type, user_id, input, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		job.TaskType,
		job.UserID,
		input,
		string(job.Status),
		job.CreatedAt.UTC(),
		job.UpdatedAt.UTC(),
	)
	if IsUniqueViolation(err) {
		return store.ErrJobExists
	}
	if err != nil {
		log.Error("failed to insert job",
			"job_id", job.ID,
			"task_type", job.TaskType,
			"error", err)
		return fmt.Errorf("failed to insert job: %w", MapError(err))
	}

	return nil
}

// GetJob implements task.JobReader.
func (s *PostgresJobStore) GetJob(ctx context.Context, id uuid.UUID) (task.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if IsNotFoundError(err) {
			return task.Job{}, store.ErrJobNotFound
		}
		logger.FromContext(ctx).Error("failed to get job", "job_id", id, "error", err)
		return task.Job{}, fmt.Errorf("failed to get job: %w", MapError(err))
	}
	return job, nil
}

// MarkRunning implements task.JobStore.
func (s *PostgresJobStore) MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE jobs
		SET status = 'running', started_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`
	return s.conditionalUpdate(ctx, "mark running", id, query, id, at.UTC())
}

// UpdateProgress implements task.JobStore.
func (s *PostgresJobStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress task.Progress, at time.Time) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("%w: progress: %v", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE jobs
		SET progress = $2, updated_at = $3
		WHERE id = $1 AND status = 'running'
	`
	return s.conditionalUpdate(ctx, "update progress", id, query, id, string(data), at.UTC())
}

// CompleteJob implements task.JobStore.
func (s *PostgresJobStore) CompleteJob(ctx context.Context, id uuid.UUID, result task.Payload, at time.Time) error {
	if result == nil {
		result = task.Payload{}
	}
	data, err := marshalPayload(result)
	if err != nil {
		return fmt.Errorf("%w: result: %v", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE jobs
		SET status = 'completed', result = $2, error = NULL, completed_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'running'
	`
	return s.conditionalUpdate(ctx, "complete", id, query, id, data, at.UTC())
}

// FailJob implements task.JobStore.
func (s *PostgresJobStore) FailJob(ctx context.Context, id uuid.UUID, message string, at time.Time) error {
	query := `
		UPDATE jobs
		SET status = 'failed', error = $2, result = NULL, completed_at = $3, updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'running')
	`
	return s.conditionalUpdate(ctx, "fail", id, query, id, message, at.UTC())
}

// conditionalUpdate runs a status-guarded UPDATE. When no row matches it
// distinguishes a missing job from one in the wrong status.
func (s *PostgresJobStore) conditionalUpdate(ctx context.Context, op string, id uuid.UUID, query string, args ...any) error {
	log := logger.FromContext(ctx)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to update job",
			"operation", op,
			"job_id", id,
			"error", err)
		return fmt.Errorf("failed to %s job: %w", op, MapError(err))
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&current)
	if IsNotFoundError(err) {
		return store.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read job status: %w", MapError(err))
	}
	return fmt.Errorf("%w: cannot %s job %s in status %s", task.ErrInvalidTransition, op, id, current)
}

// ListJobs implements task.JobReader. When the store holds a connection pool
// the count and the page are read from one snapshot.
func (s *PostgresJobStore) ListJobs(ctx context.Context, filter task.ListFilter) ([]task.Job, int, error) {
	db, ok := s.db.(*sql.DB)
	if !ok {
		return s.listJobs(ctx, filter)
	}

	var (
		jobs  []task.Job
		total int
	)
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := store.RunInTransaction(ctx, db, opts, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		jobs, total, err = s.WithTx(tx).listJobs(ctx, filter)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (s *PostgresJobStore) listJobs(ctx context.Context, filter task.ListFilter) ([]task.Job, int, error) {
	where, args := listConditions(filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM jobs` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", MapError(err))
	}

	query := `SELECT ` + jobColumns + ` FROM jobs` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	jobs, err := s.queryJobs(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// listConditions builds the WHERE clause for a listing filter.
func listConditions(filter task.ListFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if filter.UserID != "" {
		add("user_id", filter.UserID)
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}
	if filter.TaskType != "" {
		add("task_type", filter.TaskType)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListJobsByStatus implements task.JobStore.
func (s *PostgresJobStore) ListJobsByStatus(ctx context.Context, status task.Status) ([]task.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = $1 ORDER BY created_at ASC`
	return s.queryJobs(ctx, query, string(status))
}

// DeleteTerminalBefore implements task.JobStore.
func (s *PostgresJobStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed') AND updated_at < $1
	`

	result, err := s.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		logger.FromContext(ctx).Error("failed to delete old jobs", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to delete old jobs: %w", MapError(err))
	}
	return rowsAffected(result)
}

func (s *PostgresJobStore) queryJobs(ctx context.Context, query string, args ...any) ([]task.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]task.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}
	return jobs, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (task.Job, error) {
	var (
		job         task.Job
		status      string
		input       []byte
		progress    []byte
		result      []byte
		errMsg      sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&job.TaskType,
		&job.UserID,
		&input,
		&status,
		&progress,
		&result,
		&errMsg,
		&job.CreatedAt,
		&job.UpdatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return task.Job{}, err
	}

	job.Status = task.Status(status)
	job.Error = errMsg.String
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		job.CompletedAt = &t
	}

	if err := json.Unmarshal(input, &job.Input); err != nil {
		return task.Job{}, fmt.Errorf("failed to decode job input: %w", err)
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &job.Result); err != nil {
			return task.Job{}, fmt.Errorf("failed to decode job result: %w", err)
		}
	}
	if len(progress) > 0 {
		var p task.Progress
		if err := json.Unmarshal(progress, &p); err != nil {
			return task.Job{}, fmt.Errorf("failed to decode job progress: %w", err)
		}
		job.Progress = &p
	}

	return job, nil
}

// marshalPayload encodes a payload for a JSONB column. A nil payload maps to
// SQL NULL.
func marshalPayload(p task.Payload) (any, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

var _ task.JobStore = (*PostgresJobStore)(nil)
