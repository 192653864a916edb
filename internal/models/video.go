package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the capture job lifecycle.
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusDone    JobStatus = "DONE"
	JobStatusFailed  JobStatus = "FAILED"
)

// Terminal reports whether a status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// Video is the persisted record of one capture attempt. Status mirrors the
// job status; DONE additionally means the file has been finalized with
// metadata.
type Video struct {
	ID               uuid.UUID  `json:"id"`
	JobID            uuid.UUID  `json:"job_id"`
	BroadcasterID    string     `json:"broadcaster_id"`
	BroadcasterLogin string     `json:"broadcaster_login"`
	DisplayName      string     `json:"display_name"`
	StreamID         string     `json:"stream_id,omitempty"`
	Filename         string     `json:"filename"`
	Status           JobStatus  `json:"status"`
	Quality          Quality    `json:"quality"`
	Language         string     `json:"language,omitempty"`
	ViewerCount      int        `json:"viewer_count"`
	StartDownloadAt  time.Time  `json:"start_download_at"`
	DownloadedAt     *time.Time `json:"downloaded_at,omitempty"`
	Duration         float64    `json:"duration"`
	Size             float64    `json:"size"`
	Thumbnail        string     `json:"thumbnail,omitempty"`
	Title            string     `json:"title,omitempty"`
	Category         string     `json:"category,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	ArchiveURL       string     `json:"archive_url,omitempty"`
	ArchiveKey       string     `json:"archive_key,omitempty"`
	RediffDeletedAt  *time.Time `json:"rediff_deleted_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
