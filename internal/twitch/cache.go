package twitch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/streamvault/backend/internal/models"
)

// FreshnessWindow is how long a fetched snapshot is reused before hitting
// upstream again.
const FreshnessWindow = 5 * time.Minute

// offlineMarker is cached in place of a snapshot when the broadcaster is not
// live, so offline broadcasters don't trigger repeated upstream calls either.
const offlineMarker = "offline"

// SnapshotSource is the uncached upstream lookup.
type SnapshotSource interface {
	StreamSnapshot(ctx context.Context, broadcasterID string) (*models.StreamSnapshot, error)
}

// FetchLogStore gates cache hits on recorded fetch times.
type FetchLogStore interface {
	Record(ctx context.Context, userID uuid.UUID, fetchType, broadcasterID string) error
	Latest(ctx context.Context, userID uuid.UUID, fetchType, broadcasterID string) (*time.Time, error)
}

// CachedSnapshots wraps a SnapshotSource with a Redis cache keyed
// broadcaster+fetchType, gated by the fetch log's freshness window.
type CachedSnapshots struct {
	source   SnapshotSource
	rdb      *redis.Client
	fetchLog FetchLogStore
	userID   uuid.UUID
	window   time.Duration
	logger   *zap.Logger
}

// NewCachedSnapshots creates the caching wrapper. userID attributes fetch log
// rows (the service identity for webhook-driven fetches).
func NewCachedSnapshots(source SnapshotSource, rdb *redis.Client, fetchLog FetchLogStore, userID uuid.UUID, logger *zap.Logger) *CachedSnapshots {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSnapshots{
		source:   source,
		rdb:      rdb,
		fetchLog: fetchLog,
		userID:   userID,
		window:   FreshnessWindow,
		logger:   logger,
	}
}

// IsFresh reports whether a fetch recorded at fetchedAt is still inside the
// freshness window at now.
func IsFresh(fetchedAt *time.Time, now time.Time, window time.Duration) bool {
	return fetchedAt != nil && now.Sub(*fetchedAt) < window
}

func snapshotKey(broadcasterID string) string {
	return "snapshot:" + models.FetchTypeStream + ":" + broadcasterID
}

// StreamSnapshot returns the cached snapshot while fresh, otherwise fetches
// from upstream, caches the result (including "offline"), and records the
// fetch.
func (c *CachedSnapshots) StreamSnapshot(ctx context.Context, broadcasterID string) (*models.StreamSnapshot, error) {
	fetchedAt, err := c.fetchLog.Latest(ctx, c.userID, models.FetchTypeStream, broadcasterID)
	if err != nil {
		c.logger.Warn("fetch log lookup failed", zap.Error(err))
	}
	if IsFresh(fetchedAt, time.Now(), c.window) {
		if snap, ok := c.cached(ctx, broadcasterID); ok {
			return snap, nil
		}
	}

	snap, err := c.source.StreamSnapshot(ctx, broadcasterID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, broadcasterID, snap)
	if err := c.fetchLog.Record(ctx, c.userID, models.FetchTypeStream, broadcasterID); err != nil {
		c.logger.Warn("fetch log record failed", zap.Error(err))
	}
	return snap, nil
}

func (c *CachedSnapshots) cached(ctx context.Context, broadcasterID string) (*models.StreamSnapshot, bool) {
	raw, err := c.rdb.Get(ctx, snapshotKey(broadcasterID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("snapshot cache read failed", zap.Error(err))
		}
		return nil, false
	}
	if raw == offlineMarker {
		return nil, true
	}
	var snap models.StreamSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		c.logger.Warn("snapshot cache decode failed", zap.Error(err))
		return nil, false
	}
	return &snap, true
}

func (c *CachedSnapshots) store(ctx context.Context, broadcasterID string, snap *models.StreamSnapshot) {
	val := offlineMarker
	if snap != nil {
		raw, err := json.Marshal(snap)
		if err != nil {
			return
		}
		val = string(raw)
	}
	if err := c.rdb.Set(ctx, snapshotKey(broadcasterID), val, c.window).Err(); err != nil {
		c.logger.Warn("snapshot cache write failed", zap.Error(err))
	}
}
