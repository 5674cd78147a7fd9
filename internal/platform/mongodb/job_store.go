package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/relay-api/internal/platform/logger"
	"github.com/phrazzld/relay-api/internal/store"
	"github.com/phrazzld/relay-api/internal/task"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// JobsCollection is the collection holding job documents.
const JobsCollection = "jobs"

// MongoJobStore implements task.JobStore using MongoDB.
type MongoJobStore struct {
	collection *mongo.Collection
}

// NewMongoJobStore creates a MongoJobStore over the jobs collection of db.
func NewMongoJobStore(db *mongo.Database) *MongoJobStore {
	opts := options.Collection().SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	return &MongoJobStore{collection: db.Collection(JobsCollection, opts)}
}

// EnsureIndexes creates the indexes used by listings, recovery and cleanup.
func (s *MongoJobStore) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_jobs_user_created"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}},
			Options: options.Index().SetName("idx_jobs_status_updated"),
		},
	}
	if _, err := s.collection.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("failed to create job indexes: %w", err)
	}
	return nil
}

// CreateJob implements task.JobStore.
func (s *MongoJobStore) CreateJob(ctx context.Context, job task.Job) error {
	_, err := s.collection.InsertOne(ctx, toDocument(job))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrJobExists
		}
		logger.FromContext(ctx).Error("failed to insert job",
			"job_id", job.ID,
			"task_type", job.TaskType,
			"error", err)
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// GetJob implements task.JobReader.
func (s *MongoJobStore) GetJob(ctx context.Context, id uuid.UUID) (task.Job, error) {
	var doc jobDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return task.Job{}, store.ErrJobNotFound
		}
		logger.FromContext(ctx).Error("failed to get job", "job_id", id, "error", err)
		return task.Job{}, fmt.Errorf("failed to get job: %w", err)
	}
	return doc.toJob()
}

// MarkRunning implements task.JobStore.
func (s *MongoJobStore) MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) error {
	at = at.UTC()
	update := bson.M{"$set": bson.M{
		"status":     string(task.StatusRunning),
		"started_at": at,
		"updated_at": at,
	}}
	return s.conditionalUpdate(ctx, "mark running", id, update, task.SourcesOf(task.StatusRunning)...)
}

// UpdateProgress implements task.JobStore.
func (s *MongoJobStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress task.Progress, at time.Time) error {
	update := bson.M{"$set": bson.M{
		"progress":   newProgressDocument(progress),
		"updated_at": at.UTC(),
	}}
	return s.conditionalUpdate(ctx, "update progress", id, update, task.StatusRunning)
}

// CompleteJob implements task.JobStore.
func (s *MongoJobStore) CompleteJob(ctx context.Context, id uuid.UUID, result task.Payload, at time.Time) error {
	doc := bson.M(result.Clone())
	if doc == nil {
		doc = bson.M{}
	}
	at = at.UTC()
	update := bson.M{
		"$set": bson.M{
			"status":       string(task.StatusCompleted),
			"result":       doc,
			"completed_at": at,
			"updated_at":   at,
		},
		"$unset": bson.M{"error": ""},
	}
	return s.conditionalUpdate(ctx, "complete", id, update, task.SourcesOf(task.StatusCompleted)...)
}

// FailJob implements task.JobStore.
func (s *MongoJobStore) FailJob(ctx context.Context, id uuid.UUID, message string, at time.Time) error {
	at = at.UTC()
	update := bson.M{
		"$set": bson.M{
			"status":       string(task.StatusFailed),
			"error":        message,
			"completed_at": at,
			"updated_at":   at,
		},
		"$unset": bson.M{"result": ""},
	}
	return s.conditionalUpdate(ctx, "fail", id, update, task.SourcesOf(task.StatusFailed)...)
}

// conditionalUpdate applies update only while the job is in one of from.
// When nothing matches it distinguishes a missing job from one in the wrong
// status.
func (s *MongoJobStore) conditionalUpdate(ctx context.Context, op string, id uuid.UUID, update bson.M, from ...task.Status) error {
	filter := bson.M{
		"_id":    id.String(),
		"status": bson.M{"$in": statusValues(from)},
	}

	res, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		logger.FromContext(ctx).Error("failed to update job",
			"operation", op,
			"job_id", id,
			"error", err)
		return fmt.Errorf("failed to %s job: %w", op, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	var current struct {
		Status string `bson:"status"`
	}
	opts := options.FindOne().SetProjection(bson.M{"status": 1})
	err = s.collection.FindOne(ctx, bson.M{"_id": id.String()}, opts).Decode(&current)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read job status: %w", err)
	}
	return fmt.Errorf("%w: cannot %s job %s in status %s", task.ErrInvalidTransition, op, id, current.Status)
}

// ListJobs implements task.JobReader.
func (s *MongoJobStore) ListJobs(ctx context.Context, filter task.ListFilter) ([]task.Job, int, error) {
	query := listQuery(filter)

	total, err := s.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(filter.Offset))
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	jobs, err := s.find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	return jobs, int(total), nil
}

// ListJobsByStatus implements task.JobStore.
func (s *MongoJobStore) ListJobsByStatus(ctx context.Context, status task.Status) ([]task.Job, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return s.find(ctx, bson.M{"status": string(status)}, opts)
}

// DeleteTerminalBefore implements task.JobStore.
func (s *MongoJobStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{
		"status":     bson.M{"$in": statusValues(task.TerminalStatuses)},
		"updated_at": bson.M{"$lt": cutoff.UTC()},
	}

	res, err := s.collection.DeleteMany(ctx, filter)
	if err != nil {
		logger.FromContext(ctx).Error("failed to delete old jobs", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to delete old jobs: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoJobStore) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]task.Job, error) {
	cursor, err := s.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []jobDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode jobs: %w", err)
	}

	jobs := make([]task.Job, 0, len(docs))
	for _, doc := range docs {
		job, err := doc.toJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

var _ task.JobStore = (*MongoJobStore)(nil)
