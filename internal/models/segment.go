package models

import "time"

// RawFragment is one atomic timed unit from an upstream transcript source
// (Whisper segment, caption line). Fragments are finer-grained than a
// search unit; the transcript segmenter merges them.
type RawFragment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TranscriptSegment is a merged, search-unit-sized span of spoken content.
// Start is the first contributing fragment's start, End the last
// contributing fragment's end. Segments are ordered and non-overlapping
// within a transcript.
type TranscriptSegment struct {
	ID        string    `json:"id,omitempty"`
	VideoID   string    `json:"video_id,omitempty"`
	Text      string    `json:"text"`
	StartTime float64   `json:"start_time"`
	EndTime   float64   `json:"end_time"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// SearchResult is a ranked match for a query. Confidence is a relative
// ranking score, not a calibrated probability; results are ordered
// descending by confidence.
type SearchResult struct {
	Text       string  `json:"text"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Confidence float64 `json:"confidence"`
}

// ChatMessage is one exchange turn in a video chat session. Assistant
// messages carry the grounding segments used to generate them once the
// turn is complete; user messages never do.
type ChatMessage struct {
	ID         string         `json:"id"`
	Text       string         `json:"text"`
	IsFromUser bool           `json:"is_from_user"`
	Segments   []SearchResult `json:"segments,omitempty"`
}
