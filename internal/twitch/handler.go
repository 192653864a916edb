package twitch

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/streamvault/backend/pkg/response"
)

// ChannelLister walks the followed-channels listing for a platform user.
type ChannelLister interface {
	FollowedChannels(ctx context.Context, userID string) ([]Channel, error)
}

// Handler exposes platform lookups used by the admin UI.
type Handler struct {
	channels ChannelLister
	logger   *zap.Logger
}

// NewHandler creates a platform lookup handler.
func NewHandler(channels ChannelLister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{channels: channels, logger: logger}
}

// ListFollowed handles GET /channels: channels followed by the given platform
// user. Pagination is walked server-side, so large follow lists can take a
// few seconds.
func (h *Handler) ListFollowed(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.BadRequest(c, "user_id is required")
		return
	}
	channels, err := h.channels.FollowedChannels(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("followed channels fetch failed",
			zap.String("user_id", userID), zap.Error(err))
		response.Internal(c, "failed to list followed channels")
		return
	}
	response.OK(c, channels)
}
