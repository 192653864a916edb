// Package worker runs maintenance jobs off the capture critical path:
// container repair and S3 archive uploads.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamvault/backend/pkg/queue"
	"github.com/streamvault/backend/pkg/storage"
)

// VideoStore is the persistence surface the processor needs.
type VideoStore interface {
	UpdateArchive(ctx context.Context, id uuid.UUID, archiveURL, archiveKey string) error
}

// Repairer re-muxes malformed captures.
type Repairer interface {
	Repair(ctx context.Context, path string) (bool, error)
}

// Processor consumes maintenance jobs: dequeue, process, retry on error.
type Processor struct {
	videos   VideoStore
	repairer Repairer
	s3       *storage.S3
	queue    *queue.Queue
	logger   *zap.Logger
}

// NewProcessor creates a maintenance job processor. s3 may be nil when
// archiving is disabled; archive jobs then fail into the DLQ.
func NewProcessor(videos VideoStore, repairer Repairer, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{videos: videos, repairer: repairer, s3: s3, queue: q, logger: logger}
}

// Process executes one maintenance job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeRepair:
		return p.processRepair(ctx, job)
	case queue.JobTypeArchive:
		return p.processArchive(ctx, job)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Processor) processRepair(ctx context.Context, job *queue.Job) error {
	var payload queue.RepairPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	repaired, err := p.repairer.Repair(ctx, payload.Path)
	if err != nil {
		// Original is preserved on failure; nothing to roll back.
		return fmt.Errorf("repair %s: %w", payload.Path, err)
	}
	if repaired {
		p.logger.Info("video repaired",
			zap.String("video_id", payload.VideoID.String()),
			zap.String("path", payload.Path))
	}
	return nil
}

func (p *Processor) processArchive(ctx context.Context, job *queue.Job) error {
	if p.s3 == nil {
		return fmt.Errorf("archive requested but S3 is not configured")
	}
	var payload queue.ArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	f, err := os.Open(payload.Path)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat capture: %w", err)
	}

	key := storage.CaptureKey(payload.VideoID.String())
	url, err := p.s3.Upload(ctx, p.s3.CapturesBucket(), key, "video/mp4", f, info.Size())
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	if err := p.videos.UpdateArchive(ctx, payload.VideoID, url, key); err != nil {
		return fmt.Errorf("update archive location: %w", err)
	}
	p.logger.Info("capture archived",
		zap.String("video_id", payload.VideoID.String()),
		zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop and blocks until ctx is done.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("maintenance worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
