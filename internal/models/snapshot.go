package models

import (
	"time"

	"github.com/google/uuid"
)

// StreamSnapshot is the ephemeral upstream state of a currently-live
// broadcast, fetched at webhook or schedule-match time.
type StreamSnapshot struct {
	StreamID      string    `json:"stream_id"`
	BroadcasterID string    `json:"broadcaster_id"`
	Login         string    `json:"login"`
	DisplayName   string    `json:"display_name"`
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	Tags          []string  `json:"tags"`
	ViewerCount   int       `json:"viewer_count"`
	Language      string    `json:"language"`
	StartedAt     time.Time `json:"started_at"`
}

// JobRequest is a concrete request for one capture job, produced by the
// schedule matcher or a manual API trigger.
type JobRequest struct {
	BroadcasterID    string
	BroadcasterLogin string
	DisplayName      string
	RequestedBy      uuid.UUID
	Quality          Quality
	Snapshot         *StreamSnapshot
}
