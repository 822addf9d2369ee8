package models

// Region is a half-open time range in seconds. End is strictly greater
// than Start; both are non-negative.
type Region struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// CaptionSegment is a timed piece of transcript text. After post-processing
// segments are non-overlapping with strictly increasing start times.
type CaptionSegment struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Text      string  `json:"text"`
}

// TranscriptionResult is the shape returned by the captioning endpoint
type TranscriptionResult struct {
	Segments     []CaptionSegment `json:"segments"`
	LanguageCode string           `json:"language_code"`
	FullText     string           `json:"full_text"`
}

// BrollSuggestion is one structured suggestion from the b-roll analysis
// endpoint. Malformed entries are filtered out at the boundary; the core
// never sees a partially-validated record.
type BrollSuggestion struct {
	TimestampStart float64 `json:"timestamp_start"`
	Duration       float64 `json:"duration"`
	Prompt         string  `json:"prompt"`
	Rationale      string  `json:"rationale"`
}
