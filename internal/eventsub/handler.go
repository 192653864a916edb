package eventsub

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamvault/backend/internal/models"
	"github.com/streamvault/backend/pkg/response"
)

// Twitch EventSub header and message type constants.
const (
	headerMessageID        = "Twitch-Eventsub-Message-Id"
	headerMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	headerMessageSignature = "Twitch-Eventsub-Message-Signature"
	headerMessageType      = "Twitch-Eventsub-Message-Type"

	messageTypeVerification = "webhook_callback_verification"
	messageTypeNotification = "notification"
	messageTypeRevocation   = "revocation"

	subTypeStreamOnline  = "stream.online"
	subTypeStreamOffline = "stream.offline"
	subTypeChannelUpdate = "channel.update"

	// onlineRetryDelay is how long to wait before the single re-fetch when a
	// stream.online notification arrives ahead of API propagation.
	onlineRetryDelay = 5 * time.Minute

	onlineFetchTimeout = 30 * time.Second
)

type subscription struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Status    string            `json:"status"`
	Condition map[string]string `json:"condition"`
}

type notificationEvent struct {
	ID                   string `json:"id"`
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	StartedAt            string `json:"started_at"`
}

type callbackBody struct {
	Subscription *subscription      `json:"subscription"`
	Challenge    string             `json:"challenge"`
	Event        *notificationEvent `json:"event"`
}

// EventStore records observed transitions for audit.
type EventStore interface {
	RecordEvent(ctx context.Context, e *models.WebhookEvent) error
	ListByBroadcaster(ctx context.Context, broadcasterID string, since time.Time) ([]models.WebhookEvent, error)
}

// SnapshotProvider fetches the broadcaster's live snapshot ((nil, nil) when
// offline).
type SnapshotProvider interface {
	StreamSnapshot(ctx context.Context, broadcasterID string) (*models.StreamSnapshot, error)
}

// Resolver matches a broadcaster against active download schedules.
type Resolver interface {
	Resolve(ctx context.Context, broadcasterID string) (*models.JobRequest, error)
}

// Launcher admits and starts a capture job.
type Launcher interface {
	Launch(ctx context.Context, req *models.JobRequest) (uuid.UUID, error)
}

// Handler dispatches inbound EventSub callbacks.
type Handler struct {
	secret     string
	events     EventStore
	streams    SnapshotProvider
	resolver   Resolver
	launcher   Launcher
	logger     *zap.Logger
	retryDelay time.Duration
}

// NewHandler creates an EventSub callback handler.
func NewHandler(secret string, events EventStore, streams SnapshotProvider, resolver Resolver, launcher Launcher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		secret:     secret,
		events:     events,
		streams:    streams,
		resolver:   resolver,
		launcher:   launcher,
		logger:     logger,
		retryDelay: onlineRetryDelay,
	}
}

// Callback handles POST /webhook/callback. The signature gate runs before any
// dispatch; unauthenticated payloads never reach orchestration logic.
func (h *Handler) Callback(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, "read body: "+err.Error())
		return
	}

	err = VerifySignature(h.secret,
		c.GetHeader(headerMessageID),
		c.GetHeader(headerMessageTimestamp),
		raw,
		c.GetHeader(headerMessageSignature))
	switch err {
	case nil:
	case ErrSignatureMismatch:
		response.Forbidden(c, "signature mismatch")
		return
	default:
		response.BadRequest(c, err.Error())
		return
	}

	var body callbackBody
	if err := json.Unmarshal(raw, &body); err != nil {
		response.BadRequest(c, "invalid payload")
		return
	}

	switch c.GetHeader(headerMessageType) {
	case messageTypeVerification:
		if body.Challenge == "" || body.Subscription == nil {
			response.BadRequest(c, "missing challenge")
			return
		}
		c.Data(http.StatusOK, "text/plain", []byte(body.Challenge))
	case messageTypeNotification:
		if body.Subscription == nil || body.Event == nil {
			response.BadRequest(c, "missing event")
			return
		}
		h.handleNotification(c, body.Subscription, body.Event)
	case messageTypeRevocation:
		if body.Subscription == nil {
			response.BadRequest(c, "missing subscription")
			return
		}
		// TODO: reconcile subscriptions when upstream revokes one.
		h.logger.Warn("eventsub subscription revoked",
			zap.String("subscription_type", body.Subscription.Type),
			zap.String("status", body.Subscription.Status),
			zap.Any("condition", body.Subscription.Condition))
		c.Status(http.StatusNoContent)
	default:
		response.BadRequest(c, "unrecognized message type")
	}
}

// ListEvents handles GET /webhook/events: recorded transitions for a
// broadcaster, most recent first. ?hours= bounds the window (default 24).
func (h *Handler) ListEvents(c *gin.Context) {
	broadcasterID := c.Query("broadcaster_id")
	if broadcasterID == "" {
		response.BadRequest(c, "broadcaster_id is required")
		return
	}
	hours := 24
	if v := c.Query("hours"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			hours = n
		}
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	events, err := h.events.ListByBroadcaster(c.Request.Context(), broadcasterID, since)
	if err != nil {
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, events)
}

func (h *Handler) handleNotification(c *gin.Context, sub *subscription, event *notificationEvent) {
	switch sub.Type {
	case subTypeStreamOnline:
		startedAt := parseEventTime(event.StartedAt)
		e := &models.WebhookEvent{
			BroadcasterID: event.BroadcasterUserID,
			EventType:     subTypeStreamOnline,
			StartedAt:     startedAt,
		}
		if err := h.events.RecordEvent(c.Request.Context(), e); err != nil {
			h.logger.Error("record webhook event failed", zap.Error(err),
				zap.String("broadcaster_id", event.BroadcasterUserID))
		}
		// Respond before the fetch; the scheduling decision is fire-and-forget.
		go h.handleStreamOnline(event.BroadcasterUserID, true)
		c.Status(http.StatusNoContent)
	case subTypeStreamOffline:
		now := time.Now()
		e := &models.WebhookEvent{
			BroadcasterID: event.BroadcasterUserID,
			EventType:     subTypeStreamOffline,
			EndAt:         &now,
		}
		if err := h.events.RecordEvent(c.Request.Context(), e); err != nil {
			h.logger.Error("record webhook event failed", zap.Error(err),
				zap.String("broadcaster_id", event.BroadcasterUserID))
		}
		c.Status(http.StatusNoContent)
	case subTypeChannelUpdate:
		c.Status(http.StatusNoContent)
	default:
		c.Status(http.StatusNoContent)
	}
}

// handleStreamOnline fetches the live snapshot and feeds the schedule
// matcher. A notification can outrun API propagation, so when the stream is
// not visible yet one retry is scheduled after retryDelay; if it is still not
// live then, the event is dropped with a log line.
func (h *Handler) handleStreamOnline(broadcasterID string, allowRetry bool) {
	ctx, cancel := context.WithTimeout(context.Background(), onlineFetchTimeout)
	defer cancel()

	snapshot, err := h.streams.StreamSnapshot(ctx, broadcasterID)
	if err != nil {
		h.logger.Error("stream snapshot fetch failed", zap.Error(err),
			zap.String("broadcaster_id", broadcasterID))
		return
	}
	if snapshot == nil {
		if allowRetry {
			h.logger.Info("stream not live yet, scheduling retry",
				zap.String("broadcaster_id", broadcasterID),
				zap.Duration("delay", h.retryDelay))
			time.AfterFunc(h.retryDelay, func() { h.handleStreamOnline(broadcasterID, false) })
			return
		}
		h.logger.Warn("stream still not live after retry, dropping event",
			zap.String("broadcaster_id", broadcasterID))
		return
	}

	req, err := h.resolver.Resolve(ctx, broadcasterID)
	if err != nil {
		h.logger.Error("schedule resolve failed", zap.Error(err),
			zap.String("broadcaster_id", broadcasterID))
		return
	}
	if req == nil {
		h.logger.Debug("no schedule matched", zap.String("broadcaster_id", broadcasterID))
		return
	}

	jobID, err := h.launcher.Launch(ctx, req)
	if err != nil {
		h.logger.Error("launch capture failed", zap.Error(err),
			zap.String("broadcaster_id", broadcasterID))
		return
	}
	h.logger.Info("capture launched from stream.online",
		zap.String("broadcaster_id", broadcasterID),
		zap.String("job_id", jobID.String()))
}

func parseEventTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
