package indexer

import (
	"context"
	"fmt"
	"log"

	"github.com/clipquery/clipquery/internal/models"
	"github.com/clipquery/clipquery/internal/search"
	"github.com/clipquery/clipquery/internal/transcript"
	"github.com/clipquery/clipquery/internal/vector"
)

// SegmentWriter persists transcript segments for a video.
type SegmentWriter interface {
	InsertSegments(ctx context.Context, videoID string, segments []models.TranscriptSegment) error
}

// Result reports what an indexing pass produced.
type Result struct {
	SegmentCount int
	WindowCount  int
}

// Indexer stores a video's transcript segments and pushes overlapping
// transcript windows into the vector index for semantic search. The
// vector side is best effort: keyword search still works from the
// database when embedding or upserting fails.
type Indexer struct {
	writer   SegmentWriter
	embedder search.Embedder
	index    vector.Index
}

func NewIndexer(writer SegmentWriter, embedder search.Embedder, index vector.Index) *Indexer {
	return &Indexer{
		writer:   writer,
		embedder: embedder,
		index:    index,
	}
}

func (ix *Indexer) Index(ctx context.Context, videoID string, segments []models.TranscriptSegment) (Result, error) {
	if err := ix.writer.InsertSegments(ctx, videoID, segments); err != nil {
		return Result{}, fmt.Errorf("failed to store segments: %w", err)
	}

	windows := transcript.OverlappingWindows(segments, transcript.DefaultWindowSize, transcript.DefaultWindowStep)
	res := Result{
		SegmentCount: len(segments),
		WindowCount:  len(windows),
	}

	if ix.embedder == nil || ix.index == nil {
		log.Printf("[INDEXER] vector index not configured, skipping embeddings for video %s", videoID)
		return res, nil
	}

	vectors := make([]vector.Vector, 0, len(windows))
	for i, w := range windows {
		values, err := ix.embedder.Embed(ctx, w.Text)
		if err != nil {
			log.Printf("[INDEXER] embedding failed for video %s window at %.1fs: %v", videoID, w.StartTime, err)
			return res, nil
		}
		// Deterministic ids make re-indexing overwrite instead of
		// duplicating vectors.
		vectors = append(vectors, vector.Vector{
			ID:     fmt.Sprintf("%s-%d", videoID, i),
			Values: values,
			Metadata: vector.Metadata{
				VideoID:   videoID,
				Text:      w.Text,
				StartTime: w.StartTime,
				EndTime:   w.EndTime,
			},
		})
	}

	if err := ix.index.Upsert(ctx, vectors); err != nil {
		log.Printf("[INDEXER] vector upsert failed for video %s: %v", videoID, err)
		return res, nil
	}

	log.Printf("[INDEXER] indexed video %s: %d segments, %d windows", videoID, res.SegmentCount, res.WindowCount)
	return res, nil
}
