package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is an append-only audit record of observed online/offline
// transitions.
type WebhookEvent struct {
	ID            uuid.UUID  `json:"id"`
	BroadcasterID string     `json:"broadcaster_id"`
	EventType     string     `json:"event_type"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndAt         *time.Time `json:"end_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Upstream fetch types recorded in fetch_logs and used as cache keys.
const (
	FetchTypeStream        = "stream"
	FetchTypeFollowedList  = "followed_list"
	FetchTypeChannelDetail = "channel_detail"
)

// FetchLog records one upstream API fetch. A cached result is reused only
// while now - FetchedAt stays inside the freshness window.
type FetchLog struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	FetchType     string    `json:"fetch_type"`
	BroadcasterID string    `json:"broadcaster_id,omitempty"`
	FetchedAt     time.Time `json:"fetched_at"`
}
