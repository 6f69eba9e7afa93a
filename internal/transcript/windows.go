package transcript

import (
	"strings"

	"github.com/clipquery/clipquery/internal/models"
)

const (
	// DefaultWindowSize is the span of one search window in seconds.
	DefaultWindowSize = 10.0
	// DefaultWindowStep is how far each window advances, giving 50%
	// overlap between consecutive windows.
	DefaultWindowStep = 5.0
)

// Window is the unit of text that gets embedded and indexed. Overlapping
// windows trade index size for timestamp precision: a query phrase that
// straddles a segment boundary still lands inside some window.
type Window struct {
	Text      string
	StartTime float64
	EndTime   float64
}

// OverlappingWindows slides a fixed-size window over the segment list and
// joins the text of every segment that overlaps each window position.
// Windows with no text are dropped; the final window end is clamped to
// the last segment end.
func OverlappingWindows(segments []models.TranscriptSegment, size, step float64) []Window {
	if len(segments) == 0 || size <= 0 || step <= 0 {
		return nil
	}

	var lastEnd float64
	for _, seg := range segments {
		if seg.EndTime > lastEnd {
			lastEnd = seg.EndTime
		}
	}

	var windows []Window
	for current := 0.0; current < lastEnd; current += step {
		windowEnd := current + size

		var parts []string
		for _, seg := range segments {
			if overlaps(seg, current, windowEnd) {
				parts = append(parts, strings.TrimSpace(seg.Text))
			}
		}
		if len(parts) == 0 {
			continue
		}

		text := strings.TrimSpace(strings.Join(parts, " "))
		if text == "" {
			continue
		}

		end := windowEnd
		if end > lastEnd {
			end = lastEnd
		}
		windows = append(windows, Window{
			Text:      text,
			StartTime: current,
			EndTime:   end,
		})
	}

	return windows
}

func overlaps(seg models.TranscriptSegment, start, end float64) bool {
	return (seg.StartTime >= start && seg.StartTime < end) ||
		(seg.EndTime > start && seg.EndTime <= end) ||
		(seg.StartTime < start && seg.EndTime > end)
}
