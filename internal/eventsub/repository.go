package eventsub

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamvault/backend/internal/models"
)

// Repository persists webhook events. Rows exist for audit; nothing in the
// capture path reads them back.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a webhook events repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordEvent appends one observed online/offline transition.
func (r *Repository) RecordEvent(ctx context.Context, e *models.WebhookEvent) error {
	const q = `INSERT INTO webhook_events (id, broadcaster_id, event_type, started_at, end_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, e.BroadcasterID, e.EventType, e.StartedAt, e.EndAt).Scan(&e.ID, &e.CreatedAt)
}

// ListByBroadcaster returns recent events for a broadcaster, newest first.
func (r *Repository) ListByBroadcaster(ctx context.Context, broadcasterID string, since time.Time) ([]models.WebhookEvent, error) {
	const q = `SELECT id, broadcaster_id, event_type, started_at, end_at, created_at
		FROM webhook_events WHERE broadcaster_id = $1 AND created_at >= $2 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, broadcasterID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.WebhookEvent
	for rows.Next() {
		var e models.WebhookEvent
		if err := rows.Scan(&e.ID, &e.BroadcasterID, &e.EventType, &e.StartedAt, &e.EndAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}
