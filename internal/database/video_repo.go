package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/clipquery/clipquery/internal/models"
)

// ErrVideoNotFound is returned when a lookup or update targets a video
// id that does not exist.
var ErrVideoNotFound = errors.New("video not found")

type VideoRepository struct {
	db *DB
}

func NewVideoRepository(db *DB) *VideoRepository {
	return &VideoRepository{db: db}
}

func (r *VideoRepository) InsertVideo(ctx context.Context, video *models.Video) error {
	query := `
		INSERT INTO videos (id, filename, original_name, file_path, file_size, duration, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.conn.ExecContext(ctx, query,
		video.ID,
		video.Filename,
		video.OriginalName,
		video.FilePath,
		video.Size,
		video.Duration,
		video.Status,
		video.CreatedAt,
		video.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert video: %w", err)
	}
	return nil
}

func (r *VideoRepository) GetVideoByID(ctx context.Context, id string) (*models.Video, error) {
	query := `
		SELECT id, filename, original_name, file_path, file_size, duration, status, created_at, updated_at
		FROM videos
		WHERE id = $1`

	video, err := r.scanVideo(r.db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return video, nil
}

func (r *VideoRepository) GetVideoByFilename(ctx context.Context, filename string) (*models.Video, error) {
	query := `
		SELECT id, filename, original_name, file_path, file_size, duration, status, created_at, updated_at
		FROM videos
		WHERE filename = $1`

	video, err := r.scanVideo(r.db.conn.QueryRowContext(ctx, query, filename))
	if err == sql.ErrNoRows {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return video, nil
}

func (r *VideoRepository) ListVideos(ctx context.Context) ([]models.Video, error) {
	query := `
		SELECT id, filename, original_name, file_path, file_size, duration, status, created_at, updated_at
		FROM videos
		ORDER BY created_at DESC`

	rows, err := r.db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		video, err := r.scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, *video)
	}
	return videos, rows.Err()
}

func (r *VideoRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE videos SET status = $1, updated_at = $2 WHERE id = $3`

	res, err := r.db.conn.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update video status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrVideoNotFound
	}
	return nil
}

func (r *VideoRepository) UpdateDuration(ctx context.Context, id string, duration float64) error {
	query := `UPDATE videos SET duration = $1, updated_at = $2 WHERE id = $3`

	_, err := r.db.conn.ExecContext(ctx, query, duration, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update video duration: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *VideoRepository) scanVideo(row rowScanner) (*models.Video, error) {
	video := &models.Video{}
	var duration sql.NullFloat64

	err := row.Scan(
		&video.ID,
		&video.Filename,
		&video.OriginalName,
		&video.FilePath,
		&video.Size,
		&duration,
		&video.Status,
		&video.CreatedAt,
		&video.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if duration.Valid {
		video.Duration = &duration.Float64
	}
	return video, nil
}
