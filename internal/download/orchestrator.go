// Package download coordinates capture jobs: admission, job/video
// persistence, process supervision and finalization.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamvault/backend/internal/jobs"
	"github.com/streamvault/backend/internal/media"
	"github.com/streamvault/backend/internal/models"
)

// filenameLayout renders ddMMyyyy-HHmmss for the deterministic capture
// naming scheme {login}_{ddMMyyyy-HHmmss}.mp4.
const filenameLayout = "02012006-150405"

const watchURLBase = "https://www.twitch.tv/"

// ErrAlreadyDownloading is returned when a broadcaster already has an active
// capture. The conflicting job id accompanies it so callers can surface it.
var ErrAlreadyDownloading = errors.New("broadcaster already has an active capture")

// AdmissionResult is the outcome of the one-active-job-per-broadcaster check.
type AdmissionResult struct {
	Admitted         bool      `json:"admitted"`
	ConflictingJobID uuid.UUID `json:"conflicting_job_id,omitempty"`
}

// VideoStore is the persistence surface the orchestrator needs.
type VideoStore interface {
	Create(ctx context.Context, v *models.Video) error
	FindActiveByBroadcaster(ctx context.Context, broadcasterID string) (*models.Video, error)
	MarkRunning(ctx context.Context, jobID uuid.UUID) error
	FinalizeByFilename(ctx context.Context, filename string, downloadedAt time.Time, thumbnail string, size, duration float64) error
	FailByFilename(ctx context.Context, filename string) error
}

// ProcessRunner supervises the external capture binary.
type ProcessRunner interface {
	Run(ctx context.Context, url, formatSelector, outputPath string) error
}

// MetadataExtractor post-processes a finished capture.
type MetadataExtractor interface {
	Finish(ctx context.Context, videoPath, filename, channelLogin string) media.Result
}

// ArchiveEnqueuer schedules the optional S3 archive upload of a finalized
// capture.
type ArchiveEnqueuer interface {
	EnqueueArchive(ctx context.Context, videoID uuid.UUID, path string) error
}

// Orchestrator owns the job lifecycle. Admission and row creation run under
// a per-broadcaster mutex so two near-simultaneous triggers cannot both pass
// the check before either persists; the partial unique index on active
// videos backstops it across processes.
type Orchestrator struct {
	store     VideoStore
	registry  *jobs.Registry
	runner    ProcessRunner
	extractor MetadataExtractor
	archive   ArchiveEnqueuer
	outputDir string
	logger    *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewOrchestrator creates the download orchestrator. archive may be nil when
// S3 archiving is disabled.
func NewOrchestrator(store VideoStore, registry *jobs.Registry, runner ProcessRunner, extractor MetadataExtractor, archive ArchiveEnqueuer, outputDir string, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:     store,
		registry:  registry,
		runner:    runner,
		extractor: extractor,
		archive:   archive,
		outputDir: outputDir,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (o *Orchestrator) broadcasterLock(broadcasterID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[broadcasterID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[broadcasterID] = l
	}
	return l
}

// TryAdmit checks whether a new capture may start for the broadcaster.
// Read-only; callers that proceed must re-check under the broadcaster lock
// (HandleDownload and Launch do).
func (o *Orchestrator) TryAdmit(ctx context.Context, broadcasterID string) (AdmissionResult, error) {
	active, err := o.store.FindActiveByBroadcaster(ctx, broadcasterID)
	if err != nil {
		return AdmissionResult{}, fmt.Errorf("admission query: %w", err)
	}
	if active != nil {
		return AdmissionResult{Admitted: false, ConflictingJobID: active.JobID}, nil
	}
	return AdmissionResult{Admitted: true}, nil
}

// HandleDownload runs one capture job to completion: admit, persist, run the
// capture process, finalize. Process failures mark the job and video FAILED
// and are returned to the caller; they are not retried.
func (o *Orchestrator) HandleDownload(ctx context.Context, req *models.JobRequest) (uuid.UUID, error) {
	jobID, video, err := o.admit(ctx, req)
	if err != nil {
		return jobID, err
	}
	return jobID, o.execute(ctx, video, req)
}

// Launch admits and persists the job, then runs the capture asynchronously.
// The returned job id can be polled immediately.
func (o *Orchestrator) Launch(ctx context.Context, req *models.JobRequest) (uuid.UUID, error) {
	jobID, video, err := o.admit(ctx, req)
	if err != nil {
		return jobID, err
	}
	go func() {
		if err := o.execute(context.Background(), video, req); err != nil {
			o.logger.Error("capture job failed", zap.Error(err),
				zap.String("job_id", jobID.String()),
				zap.String("broadcaster_id", req.BroadcasterID))
		}
	}()
	return jobID, nil
}

// admit re-checks admission under the broadcaster lock and creates the Job
// and Video rows in PENDING state. On conflict it returns the existing job
// id with ErrAlreadyDownloading rather than silently doing nothing.
func (o *Orchestrator) admit(ctx context.Context, req *models.JobRequest) (uuid.UUID, *models.Video, error) {
	lock := o.broadcasterLock(req.BroadcasterID)
	lock.Lock()
	defer lock.Unlock()

	admission, err := o.TryAdmit(ctx, req.BroadcasterID)
	if err != nil {
		return uuid.Nil, nil, err
	}
	if !admission.Admitted {
		return admission.ConflictingJobID, nil, ErrAlreadyDownloading
	}

	dir := filepath.Join(o.outputDir, req.BroadcasterLogin)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return uuid.Nil, nil, fmt.Errorf("capture dir: %w", err)
	}

	jobID := uuid.New()
	video := &models.Video{
		JobID:            jobID,
		BroadcasterID:    req.BroadcasterID,
		BroadcasterLogin: req.BroadcasterLogin,
		DisplayName:      req.DisplayName,
		Filename:         fmt.Sprintf("%s_%s.mp4", req.BroadcasterLogin, time.Now().Format(filenameLayout)),
		Status:           models.JobStatusPending,
		Quality:          req.Quality,
		StartDownloadAt:  time.Now(),
	}
	if snap := req.Snapshot; snap != nil {
		video.StreamID = snap.StreamID
		video.ViewerCount = snap.ViewerCount
		video.Language = snap.Language
		video.Title = snap.Title
		video.Category = snap.Category
		video.Tags = snap.Tags
	}
	if err := o.store.Create(ctx, video); err != nil {
		return uuid.Nil, nil, fmt.Errorf("create video row: %w", err)
	}
	o.registry.Create(jobID, req.BroadcasterID)

	o.logger.Info("capture job admitted",
		zap.String("job_id", jobID.String()),
		zap.String("broadcaster_login", req.BroadcasterLogin),
		zap.String("filename", video.Filename))
	return jobID, video, nil
}

// execute runs the capture process and finalizes or fails the job.
func (o *Orchestrator) execute(ctx context.Context, video *models.Video, req *models.JobRequest) error {
	if err := o.registry.Transition(video.JobID, models.JobStatusRunning); err != nil {
		o.logger.Warn("registry transition failed", zap.Error(err))
	}
	if err := o.store.MarkRunning(ctx, video.JobID); err != nil {
		o.logger.Error("mark video running failed", zap.Error(err),
			zap.String("job_id", video.JobID.String()))
	}

	outputPath := filepath.Join(o.outputDir, video.BroadcasterLogin, video.Filename)
	runErr := o.runner.Run(ctx, watchURLBase+video.BroadcasterLogin, FormatSelector(video.Quality), outputPath)
	if runErr != nil {
		// Matched by filename: the failing path may not have the job linkage.
		if err := o.store.FailByFilename(ctx, video.Filename); err != nil {
			o.logger.Error("mark video failed errored", zap.Error(err),
				zap.String("filename", video.Filename))
		}
		if err := o.registry.Transition(video.JobID, models.JobStatusFailed); err != nil {
			o.logger.Warn("registry transition failed", zap.Error(err))
		}
		return fmt.Errorf("capture process: %w", runErr)
	}

	meta := o.extractor.Finish(ctx, outputPath, video.Filename, video.BroadcasterLogin)
	if err := o.store.FinalizeByFilename(ctx, video.Filename, time.Now(), meta.ThumbnailPath, meta.Size, meta.Duration); err != nil {
		o.logger.Error("finalize video failed", zap.Error(err),
			zap.String("filename", video.Filename))
	}
	if err := o.registry.Transition(video.JobID, models.JobStatusDone); err != nil {
		o.logger.Warn("registry transition failed", zap.Error(err))
	}

	if o.archive != nil {
		if err := o.archive.EnqueueArchive(ctx, video.ID, outputPath); err != nil {
			o.logger.Error("enqueue archive failed", zap.Error(err),
				zap.String("video_id", video.ID.String()))
		}
	}

	o.logger.Info("capture job finished",
		zap.String("job_id", video.JobID.String()),
		zap.String("filename", video.Filename),
		zap.Float64("duration", meta.Duration),
		zap.Float64("size_mb", meta.Size))
	return nil
}

// FormatSelector maps a quality to the capture tool's format selector via a
// height constraint. Unknown qualities fall back to HIGH.
func FormatSelector(q models.Quality) string {
	return fmt.Sprintf("best[height<=%d]", q.Height())
}
