package captions

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/clipforge/clipforge/pkg/models"
)

// ParseTranscription decodes a captioning endpoint response. A payload
// that cannot be decoded at all is an error; individual segments are
// normalized afterwards so the caller always receives non-overlapping
// segments with strictly increasing start times.
func ParseTranscription(payload []byte) (*models.TranscriptionResult, error) {
	var result models.TranscriptionResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to parse transcription response: %w", err)
	}

	result.Segments = NormalizeSegments(result.Segments)
	return &result, nil
}

// NormalizeSegments sorts segments by start time, drops empty or inverted
// ones and trims overlaps so start times are strictly increasing.
func NormalizeSegments(segments []models.CaptionSegment) []models.CaptionSegment {
	var valid []models.CaptionSegment
	for _, s := range segments {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		if s.EndTime <= s.StartTime || s.StartTime < 0 {
			continue
		}
		valid = append(valid, s)
	}

	sort.Slice(valid, func(i, j int) bool {
		return valid[i].StartTime < valid[j].StartTime
	})

	var out []models.CaptionSegment
	for _, s := range valid {
		if len(out) > 0 {
			prev := &out[len(out)-1]
			if s.StartTime <= prev.StartTime {
				continue
			}
			if s.StartTime < prev.EndTime {
				prev.EndTime = s.StartTime
			}
		}
		out = append(out, s)
	}

	return out
}

// ParseSuggestions decodes a b-roll analysis response, silently filtering
// out malformed entries rather than failing the whole list.
func ParseSuggestions(payload []byte) ([]models.BrollSuggestion, error) {
	var raw struct {
		Suggestions []json.RawMessage `json:"suggestions"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse suggestions response: %w", err)
	}

	var suggestions []models.BrollSuggestion
	for _, entry := range raw.Suggestions {
		var s models.BrollSuggestion
		if err := json.Unmarshal(entry, &s); err != nil {
			continue
		}
		if s.TimestampStart < 0 || s.Duration <= 0 || strings.TrimSpace(s.Prompt) == "" {
			continue
		}
		suggestions = append(suggestions, s)
	}

	return suggestions, nil
}
