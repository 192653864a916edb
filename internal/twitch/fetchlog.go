package twitch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FetchLogRepository records upstream fetches; the snapshot cache consults it
// to decide whether a cached result is still fresh.
type FetchLogRepository struct {
	pool *pgxpool.Pool
}

// NewFetchLogRepository creates a fetch log repository.
func NewFetchLogRepository(pool *pgxpool.Pool) *FetchLogRepository {
	return &FetchLogRepository{pool: pool}
}

// Record logs one upstream fetch.
func (r *FetchLogRepository) Record(ctx context.Context, userID uuid.UUID, fetchType, broadcasterID string) error {
	const q = `INSERT INTO fetch_logs (id, user_id, fetch_type, broadcaster_id, fetched_at)
		VALUES (gen_random_uuid(), $1, $2, $3, NOW())`
	_, err := r.pool.Exec(ctx, q, userID, fetchType, broadcasterID)
	return err
}

// Latest returns the most recent fetch time for (userID, fetchType,
// broadcasterID), or nil when none exists.
func (r *FetchLogRepository) Latest(ctx context.Context, userID uuid.UUID, fetchType, broadcasterID string) (*time.Time, error) {
	const q = `SELECT fetched_at FROM fetch_logs
		WHERE user_id = $1 AND fetch_type = $2 AND broadcaster_id = $3
		ORDER BY fetched_at DESC LIMIT 1`
	var t time.Time
	err := r.pool.QueryRow(ctx, q, userID, fetchType, broadcasterID).Scan(&t)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
