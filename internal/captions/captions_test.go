package captions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/pkg/models"
)

func TestMergeRegions(t *testing.T) {
	t.Run("MergesOverlapping", func(t *testing.T) {
		got := MergeRegions([]models.Region{
			{Start: 0, End: 5},
			{Start: 3, End: 8},
		})
		assert.Equal(t, []models.Region{{Start: 0, End: 8}}, got)
	})

	t.Run("MergesWithinGap", func(t *testing.T) {
		got := MergeRegions([]models.Region{
			{Start: 0, End: 5},
			{Start: 5.04, End: 8},
		})
		assert.Equal(t, []models.Region{{Start: 0, End: 8}}, got)
	})

	t.Run("KeepsBeyondGap", func(t *testing.T) {
		got := MergeRegions([]models.Region{
			{Start: 0, End: 5},
			{Start: 5.1, End: 8},
		})
		assert.Len(t, got, 2)
	})

	t.Run("SortsUnorderedInput", func(t *testing.T) {
		got := MergeRegions([]models.Region{
			{Start: 10, End: 12},
			{Start: 0, End: 2},
		})
		assert.Equal(t, []models.Region{{Start: 0, End: 2}, {Start: 10, End: 12}}, got)
	})

	t.Run("Idempotent", func(t *testing.T) {
		input := []models.Region{
			{Start: 0, End: 1},
			{Start: 1.02, End: 3},
			{Start: 7, End: 9},
			{Start: 8, End: 10},
		}
		once := MergeRegions(input)
		twice := MergeRegions(once)
		assert.Equal(t, once, twice)
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Nil(t, MergeRegions(nil))
	})
}

func TestInvertToSpeech(t *testing.T) {
	t.Run("SingleSilence", func(t *testing.T) {
		got := InvertToSpeech([]models.Region{{Start: 10, End: 20}}, 0, 100)
		assert.Equal(t, []models.Region{{Start: 0, End: 10}, {Start: 20, End: 100}}, got)
	})

	t.Run("NoSilence", func(t *testing.T) {
		got := InvertToSpeech(nil, 0, 100)
		assert.Equal(t, []models.Region{{Start: 0, End: 100}}, got)
	})

	t.Run("SilenceAtEdges", func(t *testing.T) {
		got := InvertToSpeech([]models.Region{
			{Start: 0, End: 5},
			{Start: 95, End: 100},
		}, 0, 100)
		assert.Equal(t, []models.Region{{Start: 5, End: 95}}, got)
	})

	t.Run("SilenceOutsideWindowIgnored", func(t *testing.T) {
		got := InvertToSpeech([]models.Region{{Start: 200, End: 300}}, 0, 100)
		assert.Equal(t, []models.Region{{Start: 0, End: 100}}, got)
	})

	t.Run("FullySilent", func(t *testing.T) {
		got := InvertToSpeech([]models.Region{{Start: 0, End: 100}}, 0, 100)
		assert.Empty(t, got)
	})
}

func TestParseTranscription(t *testing.T) {
	t.Run("ValidPayload", func(t *testing.T) {
		payload := []byte(`{
			"segments": [
				{"start_time": 2, "end_time": 4, "text": "world"},
				{"start_time": 0, "end_time": 2.5, "text": "hello"}
			],
			"language_code": "en",
			"full_text": "hello world"
		}`)

		result, err := ParseTranscription(payload)
		require.NoError(t, err)
		assert.Equal(t, "en", result.LanguageCode)
		require.Len(t, result.Segments, 2)
		// Sorted, and the first segment trimmed to remove the overlap.
		assert.Equal(t, "hello", result.Segments[0].Text)
		assert.Equal(t, 2.0, result.Segments[0].EndTime)
	})

	t.Run("UnparseablePayloadFails", func(t *testing.T) {
		_, err := ParseTranscription([]byte("not json"))
		assert.Error(t, err)
	})

	t.Run("DropsEmptyAndInvertedSegments", func(t *testing.T) {
		payload := []byte(`{"segments": [
			{"start_time": 0, "end_time": 1, "text": "  "},
			{"start_time": 5, "end_time": 3, "text": "backwards"},
			{"start_time": 1, "end_time": 2, "text": "kept"}
		]}`)

		result, err := ParseTranscription(payload)
		require.NoError(t, err)
		require.Len(t, result.Segments, 1)
		assert.Equal(t, "kept", result.Segments[0].Text)
	})
}

func TestParseSuggestions(t *testing.T) {
	t.Run("FiltersMalformedEntries", func(t *testing.T) {
		payload := []byte(`{"suggestions": [
			{"timestamp_start": 1.5, "duration": 3, "prompt": "city skyline", "rationale": "establishing shot"},
			{"timestamp_start": -2, "duration": 3, "prompt": "bad start"},
			{"timestamp_start": 4, "duration": 0, "prompt": "zero duration"},
			{"timestamp_start": 8, "duration": 2, "prompt": ""}
		]}`)

		got, err := ParseSuggestions(payload)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "city skyline", got[0].Prompt)
	})

	t.Run("UnparseablePayloadFails", func(t *testing.T) {
		_, err := ParseSuggestions([]byte("<html>"))
		assert.Error(t, err)
	})
}
