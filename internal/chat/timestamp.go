package chat

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/clipquery/clipquery/internal/models"
)

// TimestampReference is one mention of a video moment inside response
// text, resolvable to a playback position.
type TimestampReference struct {
	Offset  int     // byte offset into the source text
	Length  int     // byte length of the matched text
	Seconds float64 // playback position
	Display string  // the matched text as written
}

// timestampPattern pairs a regexp with a converter from its submatches
// to seconds. Patterns are ordered by priority: when two matches
// overlap, the earlier pattern in this table wins.
type timestampPattern struct {
	re      *regexp.Regexp
	seconds func(groups []string) (float64, bool)
}

func plainSeconds(groups []string) (float64, bool) {
	v, err := strconv.ParseFloat(groups[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func minutesSeconds(groups []string) (float64, bool) {
	mins, err := strconv.Atoi(groups[1])
	if err != nil {
		return 0, false
	}
	secs, err := strconv.Atoi(groups[2])
	if err != nil || secs >= 60 {
		return 0, false
	}
	return float64(mins*60 + secs), true
}

var timestampPatterns = []timestampPattern{
	// [12.3s] - the citation form the model is asked to produce.
	{regexp.MustCompile(`\[(\d+(?:\.\d+)?)s\]`), plainSeconds},
	// "at 12 seconds", "around 12.5 seconds"
	{regexp.MustCompile(`(?i)\b(?:at|around)\s+(\d+(?:\.\d+)?)\s+seconds?\b`), plainSeconds},
	// "at 1:23"
	{regexp.MustCompile(`(?i)\bat\s+(\d{1,2}):(\d{2})\b`), minutesSeconds},
	// "at 12s"
	{regexp.MustCompile(`(?i)\bat\s+(\d+(?:\.\d+)?)s\b`), plainSeconds},
	// bare "1:23"
	{regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`), minutesSeconds},
}

// FindTimestamps extracts every timestamp mention from text. Matches
// from higher-priority patterns suppress overlapping lower-priority
// ones, and the survivors come back in text order.
func FindTimestamps(text string) []TimestampReference {
	var refs []TimestampReference

	for _, p := range timestampPatterns {
		for _, idx := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := idx[0], idx[1]
			if overlapsAny(refs, start, end) {
				continue
			}

			groups := make([]string, 0, len(idx)/2)
			for g := 0; g < len(idx); g += 2 {
				if idx[g] < 0 {
					groups = append(groups, "")
					continue
				}
				groups = append(groups, text[idx[g]:idx[g+1]])
			}

			secs, ok := p.seconds(groups)
			if !ok {
				continue
			}

			refs = append(refs, TimestampReference{
				Offset:  start,
				Length:  end - start,
				Seconds: secs,
				Display: text[start:end],
			})
		}
	}

	sort.Slice(refs, func(i, j int) bool {
		return refs[i].Offset < refs[j].Offset
	})
	return refs
}

func overlapsAny(refs []TimestampReference, start, end int) bool {
	for _, r := range refs {
		if start < r.Offset+r.Length && end > r.Offset {
			return true
		}
	}
	return false
}

// TextPart is a run of response text; parts carrying a Ref render as
// clickable timestamps.
type TextPart struct {
	Text string              `json:"text"`
	Ref  *TimestampReference `json:"ref,omitempty"`
}

// SplitByReferences cuts text into plain runs and timestamp mentions,
// preserving the original text exactly when the parts are rejoined.
func SplitByReferences(text string) []TextPart {
	refs := FindTimestamps(text)
	if len(refs) == 0 {
		if text == "" {
			return nil
		}
		return []TextPart{{Text: text}}
	}

	var parts []TextPart
	pos := 0
	for i := range refs {
		r := refs[i]
		if r.Offset > pos {
			parts = append(parts, TextPart{Text: text[pos:r.Offset]})
		}
		parts = append(parts, TextPart{Text: r.Display, Ref: &refs[i]})
		pos = r.Offset + r.Length
	}
	if pos < len(text) {
		parts = append(parts, TextPart{Text: text[pos:]})
	}
	return parts
}

// ResolveToSegment maps a timestamp to the transcript segment whose
// start time is nearest, so seeking lands at a sentence boundary.
func ResolveToSegment(seconds float64, segments []models.TranscriptSegment) (models.TranscriptSegment, bool) {
	if len(segments) == 0 {
		return models.TranscriptSegment{}, false
	}

	best := segments[0]
	bestDist := dist(seconds, best.StartTime)
	for _, s := range segments[1:] {
		if d := dist(seconds, s.StartTime); d < bestDist {
			best = s
			bestDist = d
		}
	}
	return best, true
}

func dist(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
