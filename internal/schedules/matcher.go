package schedules

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/streamvault/backend/internal/models"
)

// ScheduleStore is the subset of the repository the matcher reads.
type ScheduleStore interface {
	ListByBroadcaster(ctx context.Context, broadcasterID string) ([]models.DownloadSchedule, error)
}

// SnapshotProvider returns the broadcaster's live snapshot, or
// (nil, nil) when the stream is offline.
type SnapshotProvider interface {
	StreamSnapshot(ctx context.Context, broadcasterID string) (*models.StreamSnapshot, error)
}

// Matcher resolves a broadcaster's standing download schedules against the
// live stream state to produce a concrete job request.
type Matcher struct {
	store   ScheduleStore
	streams SnapshotProvider
	logger  *zap.Logger
}

// NewMatcher creates a schedule matcher.
func NewMatcher(store ScheduleStore, streams SnapshotProvider, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{store: store, streams: streams, logger: logger}
}

// Resolve returns a JobRequest for the first enabled schedule whose gates
// pass against the current snapshot, or nil when no schedule matches (or the
// stream is offline). Upstream fetch errors are propagated.
func (m *Matcher) Resolve(ctx context.Context, broadcasterID string) (*models.JobRequest, error) {
	list, err := m.store.ListByBroadcaster(ctx, broadcasterID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	if len(list) == 0 {
		return nil, nil
	}

	snapshot, err := m.streams.StreamSnapshot(ctx, broadcasterID)
	if err != nil {
		return nil, fmt.Errorf("stream snapshot: %w", err)
	}
	if snapshot == nil {
		return nil, nil
	}

	for _, s := range list {
		if s.IsDisabled {
			continue
		}
		if !gatesPass(&s, snapshot) {
			m.logger.Debug("schedule gates not met",
				zap.String("schedule_id", s.ID.String()),
				zap.String("broadcaster_id", broadcasterID))
			continue
		}
		return &models.JobRequest{
			BroadcasterID:    broadcasterID,
			BroadcasterLogin: s.BroadcasterLogin,
			DisplayName:      snapshot.DisplayName,
			RequestedBy:      s.RequestedBy,
			Quality:          s.Quality,
			Snapshot:         snapshot,
		}, nil
	}
	return nil, nil
}

func gatesPass(s *models.DownloadSchedule, snap *models.StreamSnapshot) bool {
	if s.HasMinView && snap.ViewerCount < s.ViewersCount {
		return false
	}
	if s.HasCategory && !containsFold(s.Categories, snap.Category) {
		return false
	}
	if s.HasTags && !intersectsFold(s.Tags, snap.Tags) {
		return false
	}
	return true
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func intersectsFold(a, b []string) bool {
	for _, v := range b {
		if containsFold(a, v) {
			return true
		}
	}
	return false
}
