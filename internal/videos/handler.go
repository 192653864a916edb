package videos

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamvault/backend/internal/download"
	"github.com/streamvault/backend/internal/jobs"
	"github.com/streamvault/backend/internal/middleware"
	"github.com/streamvault/backend/internal/models"
	"github.com/streamvault/backend/pkg/response"
	"github.com/streamvault/backend/pkg/storage"
)

const defaultListLimit = 50

// DownloadRequest is the body for POST /downloads.
type DownloadRequest struct {
	BroadcasterID    string `json:"broadcaster_id" binding:"required"`
	BroadcasterLogin string `json:"broadcaster_login" binding:"required"`
	DisplayName      string `json:"display_name"`
	Quality          string `json:"quality"`
}

// Launcher starts capture jobs.
type Launcher interface {
	Launch(ctx context.Context, req *models.JobRequest) (uuid.UUID, error)
}

// SnapshotProvider returns the current live snapshot, or nil when offline.
type SnapshotProvider interface {
	StreamSnapshot(ctx context.Context, broadcasterID string) (*models.StreamSnapshot, error)
}

// RepairEnqueuer schedules a repair job for a downloaded clip.
type RepairEnqueuer interface {
	EnqueueRepair(ctx context.Context, videoID uuid.UUID, path string) error
}

// Handler handles video and capture-job HTTP endpoints.
type Handler struct {
	repo      *Repository
	registry  *jobs.Registry
	launcher  Launcher
	streams   SnapshotProvider
	repairs   RepairEnqueuer
	s3        *storage.S3
	outputDir string
	logger    *zap.Logger
}

// NewHandler creates a video handler.
func NewHandler(repo *Repository, registry *jobs.Registry, launcher Launcher, streams SnapshotProvider, repairs RepairEnqueuer, s3 *storage.S3, outputDir string, logger *zap.Logger) *Handler {
	return &Handler{
		repo:      repo,
		registry:  registry,
		launcher:  launcher,
		streams:   streams,
		repairs:   repairs,
		s3:        s3,
		outputDir: outputDir,
		logger:    logger,
	}
}

// StartDownload handles POST /downloads: manually trigger a capture for a
// broadcaster. Responds 202 with the job id, or 409 with the conflicting
// job id when a capture is already active.
func (h *Handler) StartDownload(c *gin.Context) {
	var req DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	quality := models.Quality(req.Quality)
	if quality == "" {
		quality = models.QualityHigh
	}

	jobReq := &models.JobRequest{
		BroadcasterID:    req.BroadcasterID,
		BroadcasterLogin: req.BroadcasterLogin,
		DisplayName:      req.DisplayName,
		RequestedBy:      userID,
		Quality:          quality,
	}
	if h.streams != nil {
		snap, err := h.streams.StreamSnapshot(c.Request.Context(), req.BroadcasterID)
		if err != nil {
			h.logger.Warn("snapshot fetch failed for manual download",
				zap.String("broadcaster_id", req.BroadcasterID), zap.Error(err))
		}
		jobReq.Snapshot = snap
	}

	jobID, err := h.launcher.Launch(c.Request.Context(), jobReq)
	if errors.Is(err, download.ErrAlreadyDownloading) {
		c.JSON(409, gin.H{
			"success":            false,
			"error":              "broadcaster already has an active capture",
			"conflicting_job_id": jobID,
		})
		return
	}
	if err != nil {
		response.Internal(c, "failed to start capture")
		return
	}
	response.Accepted(c, gin.H{"job_id": jobID})
}

// GetJob handles GET /jobs/:id.
func (h *Handler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid job id")
		return
	}
	status, err := h.registry.Status(jobID)
	if errors.Is(err, jobs.ErrUnknownJob) {
		// Fall back to the database for jobs from earlier runs.
		video, dbErr := h.repo.GetByJobID(c.Request.Context(), jobID)
		if dbErr != nil {
			response.Internal(c, "failed to load job")
			return
		}
		if video == nil {
			response.NotFound(c, "job not found")
			return
		}
		status = video.Status
	} else if err != nil {
		response.Internal(c, "failed to load job")
		return
	}
	response.OK(c, gin.H{"job_id": jobID, "status": status})
}

// List handles GET /videos. ?status=done restricts to finalized clips.
func (h *Handler) List(c *gin.Context) {
	if strings.EqualFold(c.Query("status"), string(models.JobStatusDone)) {
		vids, err := h.repo.ListDone(c.Request.Context())
		if err != nil {
			response.Internal(c, "failed to list videos")
			return
		}
		response.OK(c, vids)
		return
	}
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	vids, err := h.repo.List(c.Request.Context(), limit)
	if err != nil {
		response.Internal(c, "failed to list videos")
		return
	}
	response.OK(c, vids)
}

// GetByID handles GET /videos/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return
	}
	video, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load video")
		return
	}
	if video == nil {
		response.NotFound(c, "video not found")
		return
	}
	response.OK(c, video)
}

// DownloadURL handles GET /videos/:id/download-url: presigned S3 URL for an
// archived clip.
func (h *Handler) DownloadURL(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return
	}
	video, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load video")
		return
	}
	if video == nil {
		response.NotFound(c, "video not found")
		return
	}
	if h.s3 == nil {
		response.NotFound(c, "archival is not configured")
		return
	}
	if video.ArchiveKey == "" {
		response.NotFound(c, "video is not archived")
		return
	}
	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(),
		h.s3.CapturesBucket(), video.ArchiveKey, h.s3.PresignExpire())
	if err != nil {
		h.logger.Error("presign failed", zap.String("video_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to generate download url")
		return
	}
	response.OK(c, gin.H{"url": url, "expires_minutes": int(h.s3.PresignExpire().Minutes())})
}

// Repair handles POST /videos/:id/repair: enqueue a corruption check and
// remux for a finished clip.
func (h *Handler) Repair(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return
	}
	video, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load video")
		return
	}
	if video == nil {
		response.NotFound(c, "video not found")
		return
	}
	if video.Status != models.JobStatusDone {
		response.Conflict(c, "video is not in a repairable state")
		return
	}
	path := filepath.Join(h.outputDir, video.BroadcasterLogin, video.Filename)
	if err := h.repairs.EnqueueRepair(c.Request.Context(), video.ID, path); err != nil {
		response.Internal(c, "failed to enqueue repair")
		return
	}
	response.Accepted(c, gin.H{"video_id": video.ID})
}
