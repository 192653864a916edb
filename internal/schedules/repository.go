package schedules

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamvault/backend/internal/models"
)

const scheduleColumns = `id, broadcaster_id, broadcaster_login, quality, has_tags, tags, has_min_view, viewers_count,
		has_category, categories, is_delete_rediff, time_before_delete, requested_by, is_disabled, created_at, updated_at`

// Repository handles download schedule persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a schedules repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new schedule. Callers must Validate first.
func (r *Repository) Create(ctx context.Context, s *models.DownloadSchedule) error {
	const q = `INSERT INTO download_schedules (id, broadcaster_id, broadcaster_login, quality, has_tags, tags, has_min_view, viewers_count, has_category, categories, is_delete_rediff, time_before_delete, requested_by, is_disabled)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, s.BroadcasterID, s.BroadcasterLogin, s.Quality, s.HasTags, s.Tags, s.HasMinView, s.ViewersCount, s.HasCategory, s.Categories, s.IsDeleteRediff, s.TimeBeforeDelete, s.RequestedBy, s.IsDisabled).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// ListByBroadcaster returns all schedules for a broadcaster.
func (r *Repository) ListByBroadcaster(ctx context.Context, broadcasterID string) ([]models.DownloadSchedule, error) {
	const q = `SELECT ` + scheduleColumns + ` FROM download_schedules WHERE broadcaster_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, broadcasterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.DownloadSchedule
	for rows.Next() {
		var s models.DownloadSchedule
		if err := rows.Scan(&s.ID, &s.BroadcasterID, &s.BroadcasterLogin, &s.Quality, &s.HasTags, &s.Tags, &s.HasMinView, &s.ViewersCount,
			&s.HasCategory, &s.Categories, &s.IsDeleteRediff, &s.TimeBeforeDelete, &s.RequestedBy, &s.IsDisabled, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// List returns all schedules.
func (r *Repository) List(ctx context.Context) ([]models.DownloadSchedule, error) {
	const q = `SELECT ` + scheduleColumns + ` FROM download_schedules ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.DownloadSchedule
	for rows.Next() {
		var s models.DownloadSchedule
		if err := rows.Scan(&s.ID, &s.BroadcasterID, &s.BroadcasterLogin, &s.Quality, &s.HasTags, &s.Tags, &s.HasMinView, &s.ViewersCount,
			&s.HasCategory, &s.Categories, &s.IsDeleteRediff, &s.TimeBeforeDelete, &s.RequestedBy, &s.IsDisabled, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// SetDisabled toggles a schedule.
func (r *Repository) SetDisabled(ctx context.Context, id uuid.UUID, disabled bool) error {
	const q = `UPDATE download_schedules SET is_disabled = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, disabled, id)
	return err
}

// Delete removes a schedule.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM download_schedules WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}
