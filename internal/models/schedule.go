package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Schedule validation errors.
var (
	ErrScheduleTagsRequired       = errors.New("tags must be set when has_tags is true")
	ErrScheduleCategoriesRequired = errors.New("categories must be set when has_category is true")
	ErrScheduleMinViewRequired    = errors.New("viewers_count must be positive when has_min_view is true")
)

// DownloadSchedule is a standing rule describing when and how to auto-capture
// a broadcaster's streams.
type DownloadSchedule struct {
	ID               uuid.UUID `json:"id"`
	BroadcasterID    string    `json:"broadcaster_id"`
	BroadcasterLogin string    `json:"broadcaster_login"`
	Quality          Quality   `json:"quality"`
	HasTags          bool      `json:"has_tags"`
	Tags             []string  `json:"tags,omitempty"`
	HasMinView       bool      `json:"has_min_view"`
	ViewersCount     int       `json:"viewers_count"`
	HasCategory      bool      `json:"has_category"`
	Categories       []string  `json:"categories,omitempty"`
	IsDeleteRediff   bool      `json:"is_delete_rediff"`
	TimeBeforeDelete int       `json:"time_before_delete"`
	RequestedBy      uuid.UUID `json:"requested_by"`
	IsDisabled       bool      `json:"is_disabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Validate checks that gating fields are populated whenever their has* flag
// is set. Called before persistence.
func (s *DownloadSchedule) Validate() error {
	if s.HasTags && len(s.Tags) == 0 {
		return ErrScheduleTagsRequired
	}
	if s.HasCategory && len(s.Categories) == 0 {
		return ErrScheduleCategoriesRequired
	}
	if s.HasMinView && s.ViewersCount <= 0 {
		return ErrScheduleMinViewRequired
	}
	return nil
}
