// Package captions holds the silence-removal region math and the boundary
// parsing/validation for transcription and b-roll suggestion payloads. The
// rest of the core only ever sees well-formed records.
package captions

import (
	"sort"

	"github.com/clipforge/clipforge/pkg/models"
)

// mergeGap is the largest gap in seconds between two regions that still
// collapses them into one.
const mergeGap = 0.05

// MergeRegions sorts regions by start time and merges overlapping or
// near-adjacent ones (gap <= 0.05s). The operation is idempotent.
func MergeRegions(regions []models.Region) []models.Region {
	if len(regions) == 0 {
		return nil
	}

	sorted := make([]models.Region, len(regions))
	copy(sorted, regions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	merged := []models.Region{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Start-last.End <= mergeGap {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}

	return merged
}

// InvertToSpeech returns the complement of the silence regions within
// [start, end]: the spans that contain speech. Silences outside the window
// are clipped to it; an empty silence list yields the whole window.
func InvertToSpeech(silences []models.Region, start, end float64) []models.Region {
	if end <= start {
		return nil
	}

	merged := MergeRegions(silences)

	var speech []models.Region
	cursor := start
	for _, s := range merged {
		if s.End <= start || s.Start >= end {
			continue
		}
		if s.Start > cursor {
			speech = append(speech, models.Region{Start: cursor, End: s.Start})
		}
		if s.End > cursor {
			cursor = s.End
		}
	}
	if cursor < end {
		speech = append(speech, models.Region{Start: cursor, End: end})
	}

	return speech
}
