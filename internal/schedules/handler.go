package schedules

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/streamvault/backend/internal/middleware"
	"github.com/streamvault/backend/internal/models"
	"github.com/streamvault/backend/pkg/response"
)

// CreateRequest is the body for POST /schedules.
type CreateRequest struct {
	BroadcasterID    string   `json:"broadcaster_id" binding:"required"`
	BroadcasterLogin string   `json:"broadcaster_login" binding:"required"`
	Quality          string   `json:"quality"`
	HasTags          bool     `json:"has_tags"`
	Tags             []string `json:"tags"`
	HasMinView       bool     `json:"has_min_view"`
	ViewersCount     int      `json:"viewers_count"`
	HasCategory      bool     `json:"has_category"`
	Categories       []string `json:"categories"`
	IsDeleteRediff   bool     `json:"is_delete_rediff"`
	TimeBeforeDelete int      `json:"time_before_delete"`
}

// ToggleRequest is the body for PATCH /schedules/:id.
type ToggleRequest struct {
	IsDisabled *bool `json:"is_disabled" binding:"required"`
}

// Handler handles download-schedule HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a schedule handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Create handles POST /schedules.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	quality := models.Quality(req.Quality)
	if quality == "" {
		quality = models.QualityHigh
	}

	s := &models.DownloadSchedule{
		BroadcasterID:    req.BroadcasterID,
		BroadcasterLogin: req.BroadcasterLogin,
		Quality:          quality,
		HasTags:          req.HasTags,
		Tags:             req.Tags,
		HasMinView:       req.HasMinView,
		ViewersCount:     req.ViewersCount,
		HasCategory:      req.HasCategory,
		Categories:       req.Categories,
		IsDeleteRediff:   req.IsDeleteRediff,
		TimeBeforeDelete: req.TimeBeforeDelete,
		RequestedBy:      userID,
	}
	if err := s.Validate(); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.repo.Create(c.Request.Context(), s); err != nil {
		response.Internal(c, "failed to create schedule")
		return
	}
	response.Created(c, s)
}

// List handles GET /schedules. Optional ?broadcaster_id= filter.
func (h *Handler) List(c *gin.Context) {
	var (
		items []models.DownloadSchedule
		err   error
	)
	if bid := c.Query("broadcaster_id"); bid != "" {
		items, err = h.repo.ListByBroadcaster(c.Request.Context(), bid)
	} else {
		items, err = h.repo.List(c.Request.Context())
	}
	if err != nil {
		response.Internal(c, "failed to list schedules")
		return
	}
	response.OK(c, items)
}

// Toggle handles PATCH /schedules/:id.
func (h *Handler) Toggle(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid schedule id")
		return
	}
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsDisabled == nil {
		response.BadRequest(c, "is_disabled is required")
		return
	}
	if err := h.repo.SetDisabled(c.Request.Context(), id, *req.IsDisabled); err != nil {
		response.Internal(c, "failed to update schedule")
		return
	}
	response.OK(c, gin.H{"id": id, "is_disabled": *req.IsDisabled})
}

// Delete handles DELETE /schedules/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid schedule id")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		response.Internal(c, "failed to delete schedule")
		return
	}
	response.NoContent(c)
}
