// Package realtime pushes job status transitions to websocket subscribers,
// fanned out across instances via Redis pub/sub.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamvault/backend/internal/models"
)

// Heartbeat intervals in seconds.
const (
	PingInterval = 30
	PongWait     = 60
)

// EventJobStatus is the event name for job transitions.
const EventJobStatus = "job_status"

// JobEvent is the payload broadcast on every job status transition.
type JobEvent struct {
	JobID         uuid.UUID        `json:"job_id"`
	BroadcasterID string           `json:"broadcaster_id"`
	Status        models.JobStatus `json:"status"`
}

// Publisher publishes events to other instances.
type Publisher interface {
	PublishEvent(event string, payload []byte) error
}

// Subscriber delivers events published by other instances.
type Subscriber interface {
	Subscribe(handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains the set of connected clients and broadcasts job events.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
	pub     Publisher
	sub     Subscriber
	cancel  func()
}

// NewHub creates a websocket hub. pub and sub may be nil for single-instance
// deployments.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
		pub:     pub,
		sub:     sub,
	}
	if sub != nil {
		cancel, err := sub.Subscribe(func(event string, payload []byte) {
			h.broadcast(event, json.RawMessage(payload))
		})
		if err != nil {
			logger.Warn("redis subscribe failed, events stay local", zap.Error(err))
		} else {
			h.cancel = cancel
		}
	}
	return h
}

// Close stops the Redis subscription.
func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
}

// PublishJobEvent implements jobs.EventPublisher: broadcast locally and
// publish for other instances.
func (h *Hub) PublishJobEvent(jobID uuid.UUID, broadcasterID string, status models.JobStatus) {
	payload, err := json.Marshal(JobEvent{JobID: jobID, BroadcasterID: broadcasterID, Status: status})
	if err != nil {
		return
	}
	h.broadcast(EventJobStatus, json.RawMessage(payload))
	if h.pub != nil {
		if err := h.pub.PublishEvent(EventJobStatus, payload); err != nil {
			h.logger.Warn("publish job event failed", zap.Error(err))
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("ws client connected", zap.String("client_id", c.ID))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
	h.logger.Debug("ws client disconnected", zap.String("client_id", c.ID))
}

func (h *Hub) broadcast(event string, data json.RawMessage) {
	msg := WSMessage{Event: event, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
