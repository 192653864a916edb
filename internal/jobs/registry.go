// Package jobs tracks in-memory capture job status. The persisted video
// table is the source of truth after a restart; the registry starts empty.
package jobs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamvault/backend/internal/models"
)

// ErrUnknownJob is returned when looking up a job id the registry has never
// seen (or that predates the last restart).
var ErrUnknownJob = errors.New("unknown job")

// EventPublisher receives job status transitions (e.g. for the websocket
// feed). Implementations must not block.
type EventPublisher interface {
	PublishJobEvent(jobID uuid.UUID, broadcasterID string, status models.JobStatus)
}

type entry struct {
	broadcasterID string
	status        models.JobStatus
}

// Registry maps job ids to their current status behind a mutex. Constructed
// once at process start.
type Registry struct {
	mu     sync.RWMutex
	jobs   map[uuid.UUID]entry
	events EventPublisher
	logger *zap.Logger
}

// NewRegistry creates an empty registry. events may be nil.
func NewRegistry(events EventPublisher, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		jobs:   make(map[uuid.UUID]entry),
		events: events,
		logger: logger,
	}
}

// Create registers a new job in PENDING state.
func (r *Registry) Create(jobID uuid.UUID, broadcasterID string) {
	r.mu.Lock()
	r.jobs[jobID] = entry{broadcasterID: broadcasterID, status: models.JobStatusPending}
	r.mu.Unlock()
	r.publish(jobID, broadcasterID, models.JobStatusPending)
}

// Transition moves a job to the given status, validating the state machine
// edge PENDING→RUNNING→DONE|FAILED.
func (r *Registry) Transition(jobID uuid.UUID, status models.JobStatus) error {
	r.mu.Lock()
	e, ok := r.jobs[jobID]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownJob
	}
	if !validTransition(e.status, status) {
		r.mu.Unlock()
		return fmt.Errorf("invalid job transition: %s -> %s", e.status, status)
	}
	e.status = status
	r.jobs[jobID] = e
	r.mu.Unlock()

	r.logger.Debug("job transition",
		zap.String("job_id", jobID.String()),
		zap.String("status", string(status)))
	r.publish(jobID, e.broadcasterID, status)
	return nil
}

// Status returns the current status of a job, or ErrUnknownJob.
func (r *Registry) Status(jobID uuid.UUID) (models.JobStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[jobID]
	if !ok {
		return "", ErrUnknownJob
	}
	return e.status, nil
}

func (r *Registry) publish(jobID uuid.UUID, broadcasterID string, status models.JobStatus) {
	if r.events != nil {
		r.events.PublishJobEvent(jobID, broadcasterID, status)
	}
}

func validTransition(from, to models.JobStatus) bool {
	switch from {
	case models.JobStatusPending:
		return to == models.JobStatusRunning || to == models.JobStatusFailed
	case models.JobStatusRunning:
		return to == models.JobStatusDone || to == models.JobStatusFailed
	default:
		return false
	}
}
