package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clipquery/clipquery/internal/models"
	"github.com/google/uuid"
)

// minWordLength filters noise words out of the word-level search
// fallback; shorter words match too broadly to be useful.
const minWordLength = 4

type SegmentRepository struct {
	db *DB
}

func NewSegmentRepository(db *DB) *SegmentRepository {
	return &SegmentRepository{db: db}
}

// InsertSegments persists a video's transcript segments in one
// transaction, assigning each an id.
func (r *SegmentRepository) InsertSegments(ctx context.Context, videoID string, segments []models.TranscriptSegment) error {
	if len(segments) == 0 {
		return nil
	}

	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO video_segments (id, video_id, text, start_time, end_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	now := time.Now()
	for i := range segments {
		segments[i].ID = uuid.New().String()
		segments[i].VideoID = videoID
		segments[i].CreatedAt = now

		if _, err := tx.ExecContext(ctx, query,
			segments[i].ID,
			videoID,
			segments[i].Text,
			segments[i].StartTime,
			segments[i].EndTime,
			now,
		); err != nil {
			return fmt.Errorf("failed to insert segment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit segments: %w", err)
	}
	return nil
}

func (r *SegmentRepository) ListByVideo(ctx context.Context, videoID string) ([]models.TranscriptSegment, error) {
	query := `
		SELECT id, video_id, text, start_time, end_time, created_at
		FROM video_segments
		WHERE video_id = $1
		ORDER BY start_time`

	rows, err := r.db.conn.QueryContext(ctx, query, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var segments []models.TranscriptSegment
	for rows.Next() {
		var seg models.TranscriptSegment
		if err := rows.Scan(&seg.ID, &seg.VideoID, &seg.Text, &seg.StartTime, &seg.EndTime, &seg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

func (r *SegmentRepository) CountByVideo(ctx context.Context, videoID string) (int, error) {
	var count int
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM video_segments WHERE video_id = $1`, videoID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count segments: %w", err)
	}
	return count, nil
}

// SearchLexical runs a case-insensitive substring search over a video's
// segments, ordered by start time. If the full phrase matches nothing
// and the query has multiple words, each sufficiently long word is tried
// on its own until the limit fills up.
func (r *SegmentRepository) SearchLexical(ctx context.Context, videoID, query string, limit int) ([]models.TranscriptSegment, error) {
	if limit <= 0 {
		limit = 5
	}

	segments, err := r.searchPattern(ctx, videoID, query, limit)
	if err != nil {
		return nil, err
	}

	words := strings.Fields(query)
	if len(segments) == 0 && len(words) > 1 {
		seen := make(map[string]bool)
		for _, word := range words {
			if len(word) < minWordLength {
				continue
			}
			wordMatches, err := r.searchPattern(ctx, videoID, word, 3)
			if err != nil {
				return nil, err
			}
			for _, seg := range wordMatches {
				if seen[seg.ID] {
					continue
				}
				seen[seg.ID] = true
				segments = append(segments, seg)
			}
			if len(segments) >= limit {
				segments = segments[:limit]
				break
			}
		}
	}

	return segments, nil
}

func (r *SegmentRepository) searchPattern(ctx context.Context, videoID, pattern string, limit int) ([]models.TranscriptSegment, error) {
	var query string
	if r.db.dbType == "postgres" {
		query = `
			SELECT id, video_id, text, start_time, end_time, created_at
			FROM video_segments
			WHERE video_id = $1 AND text ILIKE $2
			ORDER BY start_time
			LIMIT $3`
	} else {
		query = `
			SELECT id, video_id, text, start_time, end_time, created_at
			FROM video_segments
			WHERE video_id = $1 AND LOWER(text) LIKE LOWER($2)
			ORDER BY start_time
			LIMIT $3`
	}

	rows, err := r.db.conn.QueryContext(ctx, query, videoID, "%"+pattern+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search segments: %w", err)
	}
	defer rows.Close()

	var segments []models.TranscriptSegment
	for rows.Next() {
		var seg models.TranscriptSegment
		if err := rows.Scan(&seg.ID, &seg.VideoID, &seg.Text, &seg.StartTime, &seg.EndTime, &seg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}
