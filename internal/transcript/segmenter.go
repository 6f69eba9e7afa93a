package transcript

import (
	"strings"

	"github.com/clipquery/clipquery/internal/models"
)

// Thresholds tune how raw fragments are grouped into segments. The
// defaults keep segments short enough for precise search hits while long
// enough to carry a coherent thought.
type Thresholds struct {
	// MinDuration is the group length after which a speech pause is
	// allowed to end the group.
	MinDuration float64
	// MaxDuration force-splits a group regardless of punctuation or
	// pauses, bounding segment length.
	MaxDuration float64
	// PauseGap is the silence between consecutive fragments that counts
	// as a natural speech pause.
	PauseGap float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinDuration: 3.0,
		MaxDuration: 15.0,
		PauseGap:    0.5,
	}
}

// Segment merges an ordered sequence of raw timed fragments into
// search-unit-sized transcript segments. It is a pure function: the same
// fragments and thresholds always produce the same segments.
//
// A single forward pass accumulates a current group. After each fragment
// the group is finalized when, in priority order: the fragment ends a
// sentence; the group is at least MinDuration long and either a pause
// longer than PauseGap follows or this was the last fragment; or the
// group has reached MaxDuration. Empty-text fragments are skipped.
func Segment(fragments []models.RawFragment, t Thresholds) []models.TranscriptSegment {
	if len(fragments) == 0 {
		return nil
	}

	var segments []models.TranscriptSegment

	var (
		parts      []string
		groupStart float64
		groupEnd   float64
		open       bool
	)

	finalize := func() {
		if !open {
			return
		}
		text := strings.TrimSpace(strings.Join(parts, " "))
		if text != "" {
			segments = append(segments, models.TranscriptSegment{
				Text:      text,
				StartTime: groupStart,
				EndTime:   groupEnd,
			})
		}
		parts = parts[:0]
		open = false
	}

	for i, frag := range fragments {
		text := strings.TrimSpace(frag.Text)
		if text == "" {
			continue
		}

		if !open {
			groupStart = frag.Start
			open = true
		}
		parts = append(parts, text)
		groupEnd = frag.End

		duration := groupEnd - groupStart
		isLast := i == len(fragments)-1

		shouldFinalize := false
		if endsSentence(text) {
			shouldFinalize = true
		} else if duration >= t.MinDuration && (isLast || pauseAfter(fragments, i) > t.PauseGap) {
			shouldFinalize = true
		} else if duration >= t.MaxDuration {
			shouldFinalize = true
		}

		if shouldFinalize {
			finalize()
		}
	}

	finalize()

	return segments
}

func endsSentence(text string) bool {
	return strings.HasSuffix(text, ".") ||
		strings.HasSuffix(text, "!") ||
		strings.HasSuffix(text, "?")
}

func pauseAfter(fragments []models.RawFragment, i int) float64 {
	if i+1 >= len(fragments) {
		return 0
	}
	return fragments[i+1].Start - fragments[i].End
}
