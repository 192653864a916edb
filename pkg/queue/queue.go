// Package queue is a Redis-list job queue for maintenance work that runs
// outside the capture critical path (corruption repair, S3 archive uploads).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueMaintenance is the Redis list key for maintenance jobs.
	QueueMaintenance = "worker:maintenance"
	// QueueDLQ is the dead-letter queue for jobs that exhausted retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of attempts before a job moves to the DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the maintenance job kind. The worker dispatches on a
// closed switch over these values.
type JobType string

const (
	JobTypeRepair  JobType = "video_repair"
	JobTypeArchive JobType = "archive_upload"
)

// RepairPayload is the payload for corruption repair jobs.
type RepairPayload struct {
	VideoID uuid.UUID `json:"video_id"`
	Path    string    `json:"path"`
}

// ArchivePayload is the payload for S3 archive upload jobs.
type ArchivePayload struct {
	VideoID uuid.UUID `json:"video_id"`
	Path    string    `json:"path"`
}

// Job is the generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues maintenance jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a Redis-backed maintenance queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

func (q *Queue) enqueue(ctx context.Context, jobType JobType, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueueMaintenance, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued maintenance job", zap.String("job_id", job.ID), zap.String("type", string(jobType)))
	return nil
}

// EnqueueRepair enqueues a corruption repair job.
func (q *Queue) EnqueueRepair(ctx context.Context, videoID uuid.UUID, path string) error {
	return q.enqueue(ctx, JobTypeRepair, RepairPayload{VideoID: videoID, Path: path})
}

// EnqueueArchive enqueues an S3 archive upload job.
func (q *Queue) EnqueueArchive(ctx context.Context, videoID uuid.UUID, path string) error {
	return q.enqueue(ctx, JobTypeArchive, ArchivePayload{VideoID: videoID, Path: path})
}

// Dequeue blocks until a job is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, 0, QueueMaintenance).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt; after MaxRetries it goes
// to the DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, QueueMaintenance, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
