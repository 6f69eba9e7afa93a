package search

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/clipquery/clipquery/internal/models"
	"github.com/clipquery/clipquery/internal/vector"
)

// lexicalConfidence is assigned to every keyword-search hit; the
// fallback path has no similarity score of its own.
const lexicalConfidence = 0.7

// Embedder turns query text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, input string) ([]float32, error)
}

// SegmentStore provides keyword search over stored transcript segments.
type SegmentStore interface {
	SearchLexical(ctx context.Context, videoID, query string, limit int) ([]models.TranscriptSegment, error)
}

// Retriever answers free-text queries over one video's transcript. It
// prefers semantic search through the vector index and falls back to
// keyword matching against the database when the index is unconfigured,
// unreachable, or returns nothing.
type Retriever struct {
	embedder Embedder
	index    vector.Index
	store    SegmentStore
}

func NewRetriever(embedder Embedder, index vector.Index, store SegmentStore) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		store:    store,
	}
}

func (r *Retriever) Search(ctx context.Context, videoID, query string, topK int) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if topK <= 0 {
		topK = 5
	}

	results := r.searchVector(ctx, videoID, query, topK)
	if len(results) == 0 {
		var err error
		results, err = r.searchLexical(ctx, videoID, query, topK)
		if err != nil {
			return nil, err
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		return results[i].StartTime < results[j].StartTime
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// searchVector returns nil whenever the semantic path cannot produce
// hits, which sends the caller down the lexical fallback.
func (r *Retriever) searchVector(ctx context.Context, videoID, query string, topK int) []models.SearchResult {
	if r.embedder == nil || r.index == nil {
		return nil
	}

	values, err := r.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("[SEARCH] embedding failed, falling back to keyword search: %v", err)
		return nil
	}

	matches, err := r.index.Query(ctx, values, videoID, topK)
	if err != nil {
		log.Printf("[SEARCH] vector query failed, falling back to keyword search: %v", err)
		return nil
	}

	results := make([]models.SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, models.SearchResult{
			Text:       m.Text,
			StartTime:  m.StartTime,
			EndTime:    m.EndTime,
			Confidence: m.Score,
		})
	}
	return results
}

func (r *Retriever) searchLexical(ctx context.Context, videoID, query string, topK int) ([]models.SearchResult, error) {
	segments, err := r.store.SearchLexical(ctx, videoID, query, topK)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	results := make([]models.SearchResult, 0, len(segments))
	for _, s := range segments {
		results = append(results, models.SearchResult{
			Text:       s.Text,
			StartTime:  s.StartTime,
			EndTime:    s.EndTime,
			Confidence: lexicalConfidence,
		})
	}
	return results, nil
}
