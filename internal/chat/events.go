package chat

import "github.com/clipquery/clipquery/internal/models"

// Wire event shapes sent to chat clients. Every event is a flat JSON
// object carrying a "type" discriminator.

type ChunkEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type CompleteEvent struct {
	Type             string                `json:"type"`
	FullResponse     string                `json:"full_response"`
	SearchSegments   []models.SearchResult `json:"search_segments"`
	VideoContextUsed bool                  `json:"video_context_used"`
	SegmentsFound    int                   `json:"segments_found"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newChunk(content string) ChunkEvent {
	return ChunkEvent{Type: "chunk", Content: content}
}

func newComplete(fullResponse string, segments []models.SearchResult) CompleteEvent {
	if segments == nil {
		segments = []models.SearchResult{}
	}
	return CompleteEvent{
		Type:             "complete",
		FullResponse:     fullResponse,
		SearchSegments:   segments,
		VideoContextUsed: len(segments) > 0,
		SegmentsFound:    len(segments),
	}
}

func newError(message string) ErrorEvent {
	return ErrorEvent{Type: "error", Message: message}
}
