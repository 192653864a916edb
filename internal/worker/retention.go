package worker

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamvault/backend/internal/models"
)

// RetentionStore is the persistence surface the retention sweep needs.
type RetentionStore interface {
	ListExpiredRediffs(ctx context.Context) ([]models.Video, error)
	MarkRediffDeleted(ctx context.Context, id uuid.UUID) error
}

// ObjectRemover deletes archived objects. *storage.S3 satisfies it.
type ObjectRemover interface {
	DeleteObject(ctx context.Context, bucket, key string) error
	CapturesBucket() string
}

// Retention removes captures whose delete-rediff schedule retention window
// has elapsed: the local file, its thumbnail, and the archived S3 object.
type Retention struct {
	store     RetentionStore
	s3        ObjectRemover
	outputDir string
	logger    *zap.Logger
}

// NewRetention creates the retention sweeper. s3 may be nil when archiving
// is disabled; only local files are removed then.
func NewRetention(store RetentionStore, s3 ObjectRemover, outputDir string, logger *zap.Logger) *Retention {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retention{store: store, s3: s3, outputDir: outputDir, logger: logger}
}

// Run sweeps immediately, then on every tick until ctx is done.
func (r *Retention) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if n, err := r.Sweep(ctx); err != nil {
			r.logger.Error("retention sweep failed", zap.Error(err))
		} else if n > 0 {
			r.logger.Info("retention sweep removed captures", zap.Int("count", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep removes all currently expired rediffs and returns how many were
// fully removed. A failure on one video is logged and does not stop the
// sweep; the video stays unmarked and is retried next tick.
func (r *Retention) Sweep(ctx context.Context) (int, error) {
	expired, err := r.store.ListExpiredRediffs(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, v := range expired {
		clip := filepath.Join(r.outputDir, v.BroadcasterLogin, v.Filename)
		if err := os.Remove(clip); err != nil && !os.IsNotExist(err) {
			r.logger.Error("remove capture failed", zap.String("path", clip), zap.Error(err))
			continue
		}
		if v.Thumbnail != "" {
			if err := os.Remove(v.Thumbnail); err != nil && !os.IsNotExist(err) {
				r.logger.Warn("remove thumbnail failed", zap.String("path", v.Thumbnail), zap.Error(err))
			}
		}
		if r.s3 != nil && v.ArchiveKey != "" {
			if err := r.s3.DeleteObject(ctx, r.s3.CapturesBucket(), v.ArchiveKey); err != nil {
				r.logger.Error("delete archived object failed",
					zap.String("s3_key", v.ArchiveKey), zap.Error(err))
				continue
			}
		}
		if err := r.store.MarkRediffDeleted(ctx, v.ID); err != nil {
			r.logger.Error("mark rediff deleted failed",
				zap.String("video_id", v.ID.String()), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
