package videos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamvault/backend/internal/models"
)

const videoColumns = `id, job_id, broadcaster_id, broadcaster_login, display_name, COALESCE(stream_id,''), filename, status, quality,
		COALESCE(language,''), viewer_count, start_download_at, downloaded_at, duration, size, COALESCE(thumbnail,''),
		COALESCE(title,''), COALESCE(category,''), tags, COALESCE(archive_url,''), COALESCE(archive_key,''), rediff_deleted_at, created_at, updated_at`

// Repository handles video persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a videos repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanVideo(row pgx.Row) (*models.Video, error) {
	var v models.Video
	err := row.Scan(&v.ID, &v.JobID, &v.BroadcasterID, &v.BroadcasterLogin, &v.DisplayName, &v.StreamID, &v.Filename, &v.Status, &v.Quality,
		&v.Language, &v.ViewerCount, &v.StartDownloadAt, &v.DownloadedAt, &v.Duration, &v.Size, &v.Thumbnail,
		&v.Title, &v.Category, &v.Tags, &v.ArchiveURL, &v.ArchiveKey, &v.RediffDeletedAt, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Create inserts a new video row (capture start, status PENDING).
func (r *Repository) Create(ctx context.Context, v *models.Video) error {
	const q = `INSERT INTO videos (id, job_id, broadcaster_id, broadcaster_login, display_name, stream_id, filename, status, quality, language, viewer_count, start_download_at, title, category, tags)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, v.JobID, v.BroadcasterID, v.BroadcasterLogin, v.DisplayName, v.StreamID, v.Filename, v.Status, v.Quality, v.Language, v.ViewerCount, v.StartDownloadAt, v.Title, v.Category, v.Tags).
		Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
}

// GetByID returns a video by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	const q = `SELECT ` + videoColumns + ` FROM videos WHERE id = $1`
	v, err := scanVideo(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return v, err
}

// GetByJobID returns the video linked 1:1 to a job id.
func (r *Repository) GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.Video, error) {
	const q = `SELECT ` + videoColumns + ` FROM videos WHERE job_id = $1`
	v, err := scanVideo(r.pool.QueryRow(ctx, q, jobID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return v, err
}

// FindActiveByBroadcaster returns the broadcaster's PENDING or RUNNING video,
// if any. This is the admission check: at most one active capture per
// broadcaster.
func (r *Repository) FindActiveByBroadcaster(ctx context.Context, broadcasterID string) (*models.Video, error) {
	const q = `SELECT ` + videoColumns + ` FROM videos
		WHERE broadcaster_id = $1 AND status IN ('PENDING', 'RUNNING')
		ORDER BY start_download_at DESC LIMIT 1`
	v, err := scanVideo(r.pool.QueryRow(ctx, q, broadcasterID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return v, err
}

// List returns videos ordered by capture start, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]models.Video, error) {
	const q = `SELECT ` + videoColumns + ` FROM videos ORDER BY start_download_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *v)
	}
	return list, rows.Err()
}

// ListDone returns finalized videos (for maintenance scans).
func (r *Repository) ListDone(ctx context.Context) ([]models.Video, error) {
	const q = `SELECT ` + videoColumns + ` FROM videos WHERE status = 'DONE' ORDER BY downloaded_at DESC`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *v)
	}
	return list, rows.Err()
}

// MarkRunning transitions a video to RUNNING.
func (r *Repository) MarkRunning(ctx context.Context, jobID uuid.UUID) error {
	const q = `UPDATE videos SET status = 'RUNNING', updated_at = NOW() WHERE job_id = $1`
	_, err := r.pool.Exec(ctx, q, jobID)
	return err
}

// FinalizeByFilename marks a capture DONE with its extracted metadata.
// Keyed by filename so re-invocation with the same data is idempotent.
func (r *Repository) FinalizeByFilename(ctx context.Context, filename string, downloadedAt time.Time, thumbnail string, size, duration float64) error {
	const q = `UPDATE videos SET status = 'DONE', downloaded_at = $1, thumbnail = $2, size = $3, duration = $4, updated_at = NOW()
		WHERE filename = $5`
	_, err := r.pool.Exec(ctx, q, downloadedAt, thumbnail, size, duration, filename)
	return err
}

// FailByFilename marks a capture FAILED. Matched by filename because the
// job-to-video linkage may not be available to the failing path.
func (r *Repository) FailByFilename(ctx context.Context, filename string) error {
	const q = `UPDATE videos SET status = 'FAILED', updated_at = NOW() WHERE filename = $1`
	_, err := r.pool.Exec(ctx, q, filename)
	return err
}

// UpdateArchive records the S3 location of an archived capture.
func (r *Repository) UpdateArchive(ctx context.Context, id uuid.UUID, archiveURL, archiveKey string) error {
	const q = `UPDATE videos SET archive_url = $1, archive_key = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, archiveURL, archiveKey, id)
	return err
}

// ListExpiredRediffs returns finalized videos whose broadcaster has a
// delete-rediff schedule and whose retention window has elapsed, excluding
// ones already swept.
func (r *Repository) ListExpiredRediffs(ctx context.Context) ([]models.Video, error) {
	const q = `SELECT ` + videoColumns + ` FROM videos
		WHERE status = 'DONE' AND rediff_deleted_at IS NULL AND downloaded_at IS NOT NULL
		AND EXISTS (
			SELECT 1 FROM download_schedules s
			WHERE s.broadcaster_id = videos.broadcaster_id
			AND s.is_delete_rediff
			AND videos.downloaded_at + make_interval(hours => s.time_before_delete) < NOW())
		ORDER BY downloaded_at`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *v)
	}
	return list, rows.Err()
}

// MarkRediffDeleted records that a capture's files were removed by the
// retention sweep.
func (r *Repository) MarkRediffDeleted(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE videos SET rediff_deleted_at = NOW(), updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// SweepStale marks all non-terminal videos FAILED. Run once at startup: a
// crash mid-capture leaves PENDING/RUNNING rows behind and the in-memory
// registry is rebuilt empty, so those jobs can never complete.
func (r *Repository) SweepStale(ctx context.Context) (int64, error) {
	const q = `UPDATE videos SET status = 'FAILED', updated_at = NOW() WHERE status IN ('PENDING', 'RUNNING')`
	tag, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
