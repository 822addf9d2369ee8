package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clipforge/clipforge/pkg/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Repository provides database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Health reports whether the underlying database connection is usable
func (r *Repository) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}

// Media Assets

// CreateMediaAsset creates a new media asset record
func (r *Repository) CreateMediaAsset(ctx context.Context, asset *models.MediaAsset) error {
	if asset.ID == "" {
		asset.ID = uuid.New().String()
	}

	query := `
		INSERT INTO media_assets (id, filename, type, object_key, content_type, size,
		                          duration, width, height, codec, frame_rate, has_audio)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		asset.ID, asset.Filename, asset.Type, asset.ObjectKey, asset.ContentType,
		asset.Size, asset.Duration, asset.Width, asset.Height, asset.Codec,
		asset.FrameRate, asset.HasAudio,
	).Scan(&asset.CreatedAt, &asset.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create media asset: %w", err)
	}

	return nil
}

// GetMediaAsset retrieves a media asset by ID
func (r *Repository) GetMediaAsset(ctx context.Context, id string) (*models.MediaAsset, error) {
	var asset models.MediaAsset

	query := `
		SELECT id, filename, type, object_key, content_type, size, duration,
		       width, height, codec, frame_rate, has_audio, created_at, updated_at
		FROM media_assets
		WHERE id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&asset.ID, &asset.Filename, &asset.Type, &asset.ObjectKey, &asset.ContentType,
		&asset.Size, &asset.Duration, &asset.Width, &asset.Height, &asset.Codec,
		&asset.FrameRate, &asset.HasAudio, &asset.CreatedAt, &asset.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media asset: %w", err)
	}

	return &asset, nil
}

// ListMediaAssets retrieves media assets with pagination
func (r *Repository) ListMediaAssets(ctx context.Context, limit, offset int) ([]*models.MediaAsset, error) {
	query := `
		SELECT id, filename, type, object_key, content_type, size, duration,
		       width, height, codec, frame_rate, has_audio, created_at, updated_at
		FROM media_assets
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list media assets: %w", err)
	}
	defer rows.Close()

	var assets []*models.MediaAsset
	for rows.Next() {
		var asset models.MediaAsset
		err := rows.Scan(
			&asset.ID, &asset.Filename, &asset.Type, &asset.ObjectKey, &asset.ContentType,
			&asset.Size, &asset.Duration, &asset.Width, &asset.Height, &asset.Codec,
			&asset.FrameRate, &asset.HasAudio, &asset.CreatedAt, &asset.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media asset: %w", err)
		}
		assets = append(assets, &asset)
	}

	return assets, nil
}

// DeleteMediaAsset removes a media asset record
func (r *Repository) DeleteMediaAsset(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM media_assets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete media asset: %w", err)
	}
	return nil
}

// Export Jobs

// CreateExportJob creates a new export job record
func (r *Repository) CreateExportJob(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	query := `
		INSERT INTO export_jobs (id, status, driver, progress, timeline, config)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		job.ID, job.Status, job.Driver, job.Progress, job.Timeline, job.Config,
	).Scan(&job.CreatedAt, &job.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create export job: %w", err)
	}

	return nil
}

// GetExportJob retrieves an export job by ID
func (r *Repository) GetExportJob(ctx context.Context, id string) (*models.ExportJob, error) {
	var job models.ExportJob

	query := `
		SELECT id, status, driver, progress, error_msg, worker_id, output_key, mime_type,
		       started_at, completed_at, created_at, updated_at, timeline, config
		FROM export_jobs
		WHERE id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.Status, &job.Driver, &job.Progress, &job.ErrorMsg,
		&job.WorkerID, &job.OutputKey, &job.MimeType, &job.StartedAt,
		&job.CompletedAt, &job.CreatedAt, &job.UpdatedAt, &job.Timeline, &job.Config,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get export job: %w", err)
	}

	return &job, nil
}

// UpdateExportJob updates an export job record
func (r *Repository) UpdateExportJob(ctx context.Context, job *models.ExportJob) error {
	query := `
		UPDATE export_jobs
		SET status = $2, progress = $3, error_msg = $4, worker_id = $5,
		    output_key = $6, mime_type = $7, started_at = $8, completed_at = $9,
		    updated_at = now()
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query,
		job.ID, job.Status, job.Progress, job.ErrorMsg, job.WorkerID,
		job.OutputKey, job.MimeType, job.StartedAt, job.CompletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update export job: %w", err)
	}

	return nil
}

// UpdateExportJobStatus updates just the status and error message
func (r *Repository) UpdateExportJobStatus(ctx context.Context, id, status, errorMsg string) error {
	query := `
		UPDATE export_jobs
		SET status = $2, error_msg = $3, updated_at = now()
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, id, status, errorMsg)
	if err != nil {
		return fmt.Errorf("failed to update export job status: %w", err)
	}

	return nil
}

// UpdateExportJobProgress updates just the progress column
func (r *Repository) UpdateExportJobProgress(ctx context.Context, id string, progress int) error {
	query := `
		UPDATE export_jobs
		SET progress = $2, updated_at = now()
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, id, progress)
	if err != nil {
		return fmt.Errorf("failed to update export job progress: %w", err)
	}

	return nil
}

// MarkExportJobStarted claims a job for a worker and stamps the start time
func (r *Repository) MarkExportJobStarted(ctx context.Context, id, workerID string) error {
	now := time.Now()
	query := `
		UPDATE export_jobs
		SET status = $2, worker_id = $3, started_at = $4, updated_at = now()
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, id, models.ExportStatusRendering, workerID, now)
	if err != nil {
		return fmt.Errorf("failed to mark export job started: %w", err)
	}

	return nil
}

// MarkExportJobCompleted records the deliverable and stamps completion
func (r *Repository) MarkExportJobCompleted(ctx context.Context, id, outputKey, mimeType string) error {
	now := time.Now()
	query := `
		UPDATE export_jobs
		SET status = $2, progress = 100, output_key = $3, mime_type = $4,
		    completed_at = $5, updated_at = now()
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, id, models.ExportStatusCompleted, outputKey, mimeType, now)
	if err != nil {
		return fmt.Errorf("failed to mark export job completed: %w", err)
	}

	return nil
}

// ListExportJobs retrieves export jobs with pagination
func (r *Repository) ListExportJobs(ctx context.Context, limit, offset int) ([]*models.ExportJob, error) {
	query := `
		SELECT id, status, driver, progress, error_msg, worker_id, output_key, mime_type,
		       started_at, completed_at, created_at, updated_at, timeline, config
		FROM export_jobs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list export jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ExportJob
	for rows.Next() {
		var job models.ExportJob
		err := rows.Scan(
			&job.ID, &job.Status, &job.Driver, &job.Progress, &job.ErrorMsg,
			&job.WorkerID, &job.OutputKey, &job.MimeType, &job.StartedAt,
			&job.CompletedAt, &job.CreatedAt, &job.UpdatedAt, &job.Timeline, &job.Config,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export job: %w", err)
		}
		jobs = append(jobs, &job)
	}

	return jobs, nil
}
