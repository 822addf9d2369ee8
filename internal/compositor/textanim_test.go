package compositor

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clipforge/clipforge/pkg/models"
)

func TestAnimationStyle(t *testing.T) {
	t.Run("fadeIn endpoints", func(t *testing.T) {
		assert.InDelta(t, 0, AnimationStyle(models.TextAnimationFadeIn, 0).Opacity, 1e-9)
		assert.InDelta(t, 1, AnimationStyle(models.TextAnimationFadeIn, 1).Opacity, 1e-9)
	})

	t.Run("none is identity", func(t *testing.T) {
		s := AnimationStyle(models.TextAnimationNone, 0.3)
		assert.Equal(t, TextStyle{Opacity: 1, Scale: 1}, s)
	})

	t.Run("slideUp travels to rest", func(t *testing.T) {
		start := AnimationStyle(models.TextAnimationSlideUp, 0)
		end := AnimationStyle(models.TextAnimationSlideUp, 1)
		assert.InDelta(t, slideDistance, start.TranslateY, 1e-9)
		assert.InDelta(t, 0, end.TranslateY, 1e-9)
	})

	t.Run("slide directions oppose", func(t *testing.T) {
		left := AnimationStyle(models.TextAnimationSlideLeft, 0.25)
		right := AnimationStyle(models.TextAnimationSlideRight, 0.25)
		assert.InDelta(t, -left.TranslateX, right.TranslateX, 1e-9)
	})

	t.Run("scaleUp grows from half size", func(t *testing.T) {
		assert.InDelta(t, 0.5, AnimationStyle(models.TextAnimationScaleUp, 0).Scale, 1e-9)
		assert.InDelta(t, 1.0, AnimationStyle(models.TextAnimationScaleUp, 1).Scale, 1e-9)
	})

	t.Run("pop settles at full size", func(t *testing.T) {
		end := AnimationStyle(models.TextAnimationPop, 1)
		assert.InDelta(t, 1, end.Scale, 1e-9)
		assert.InDelta(t, 1, end.Opacity, 1e-9)
		mid := AnimationStyle(models.TextAnimationPop, 0.7)
		assert.Greater(t, mid.Scale, 1.0, "pop overshoots before settling")
	})

	t.Run("blurReveal sharpens", func(t *testing.T) {
		assert.InDelta(t, 8, AnimationStyle(models.TextAnimationBlurReveal, 0).Blur, 1e-9)
		assert.InDelta(t, 0, AnimationStyle(models.TextAnimationBlurReveal, 1).Blur, 1e-9)
	})

	t.Run("progress is clamped", func(t *testing.T) {
		assert.InDelta(t, 1, AnimationStyle(models.TextAnimationFadeIn, 3.5).Opacity, 1e-9)
		assert.InDelta(t, 0, AnimationStyle(models.TextAnimationFadeIn, -1).Opacity, 1e-9)
	})

	t.Run("deterministic", func(t *testing.T) {
		a := AnimationStyle(models.TextAnimationPop, 0.37)
		b := AnimationStyle(models.TextAnimationPop, 0.37)
		assert.Equal(t, a, b)
	})
}

func TestVisibleCharacters(t *testing.T) {
	t.Run("word timings drive the reveal", func(t *testing.T) {
		timings := []models.WordTiming{{Word: "Hi", Start: 0, End: 0.5}}
		// A quarter second in, the word is half spoken: exactly "H".
		assert.Equal(t, 1, VisibleCharacters("Hi", 0.25, 2, timings))
		assert.Equal(t, 0, VisibleCharacters("Hi", 0, 2, timings))
		assert.Equal(t, 2, VisibleCharacters("Hi", 0.5, 2, timings))
	})

	t.Run("uniform rate without timings", func(t *testing.T) {
		assert.Equal(t, 0, VisibleCharacters("abcd", 0, 4, nil))
		assert.Equal(t, 2, VisibleCharacters("abcd", 2, 4, nil))
		assert.Equal(t, 4, VisibleCharacters("abcd", 4, 4, nil))
		assert.Equal(t, 4, VisibleCharacters("abcd", 99, 4, nil))
	})

	t.Run("joining spaces count between timed words", func(t *testing.T) {
		timings := []models.WordTiming{
			{Word: "Hi", Start: 0, End: 0.5},
			{Word: "there", Start: 0.5, End: 1},
		}
		// "Hi " fully revealed once the first word ends.
		assert.Equal(t, 3, VisibleCharacters("Hi there", 0.5, 2, timings))
		assert.Equal(t, 8, VisibleCharacters("Hi there", 1.5, 2, timings))
	})
}

func TestVisibleWords(t *testing.T) {
	timings := []models.WordTiming{
		{Word: "one", Start: 0, End: 0.4},
		{Word: "two", Start: 0.4, End: 0.8},
		{Word: "three", Start: 0.8, End: 1.2},
	}

	assert.Equal(t, 1, VisibleWords(3, 0.1, 3, timings))
	assert.Equal(t, 2, VisibleWords(3, 0.5, 3, timings))
	assert.Equal(t, 3, VisibleWords(3, 2, 3, timings))
	assert.Equal(t, 0, VisibleWords(3, 0, 3, timings))

	// Uniform fallback reveals the first word immediately.
	assert.Equal(t, 1, VisibleWords(4, 0.1, 4, nil))
	assert.Equal(t, 4, VisibleWords(4, 3.9, 4, nil))
}

func TestKaraokeIndex(t *testing.T) {
	timings := []models.WordTiming{
		{Word: "one", Start: 0.2, End: 0.4},
		{Word: "two", Start: 0.4, End: 0.8},
	}

	assert.Equal(t, -1, KaraokeIndex(2, 0.1, 1, timings))
	assert.Equal(t, 0, KaraokeIndex(2, 0.3, 1, timings))
	assert.Equal(t, 1, KaraokeIndex(2, 0.9, 1, timings))

	// Uniform slicing without timings.
	assert.Equal(t, 0, KaraokeIndex(4, 0.1, 4, nil))
	assert.Equal(t, 2, KaraokeIndex(4, 2.5, 4, nil))
	assert.Equal(t, 3, KaraokeIndex(4, 9, 4, nil))
}

func TestWrapWords(t *testing.T) {
	// At scale 1 every glyph advances 7px: "aaaa" is 28px, a space 7px.
	lines := wrapWords([]string{"aaaa", "bbbb", "cccc"}, 70, 1)
	assert.Equal(t, [][]string{{"aaaa", "bbbb"}, {"cccc"}}, lines)

	t.Run("single oversized word gets its own line", func(t *testing.T) {
		lines := wrapWords([]string{"supercalifragilistic", "a"}, 70, 1)
		assert.Equal(t, [][]string{{"supercalifragilistic"}, {"a"}}, lines)
	})

	t.Run("idempotent layout for same inputs", func(t *testing.T) {
		a := wrapWords([]string{"one", "two", "three"}, 100, 2)
		b := wrapWords([]string{"one", "two", "three"}, 100, 2)
		assert.Equal(t, a, b)
	})
}

func TestRenderTypewriterClip(t *testing.T) {
	// Word-timing-driven reveal drawn onto a real surface: at 0.25s one
	// glyph is visible; at 0s, none.
	clip := &models.Clip{
		ID:        "t1",
		Type:      models.TrackTypeText,
		StartTime: 0,
		Duration:  2,
		Properties: models.ClipProperties{
			Text:          "Hi",
			TextAnimation: models.TextAnimationTypewriter,
			WordTimings:   []models.WordTiming{{Word: "Hi", Start: 0, End: 0.5}},
		},
	}

	countLit := func(at float64) int {
		dst := image.NewRGBA(image.Rect(0, 0, 160, 90))
		RenderTextClip(dst, clip, at)
		n := 0
		for i := 0; i < len(dst.Pix); i += 4 {
			if dst.Pix[i] > 128 {
				n++
			}
		}
		return n
	}

	assert.Equal(t, 0, countLit(0))
	one := countLit(0.25)
	full := countLit(1.0)
	assert.Greater(t, one, 0, "one glyph visible mid-word")
	assert.Greater(t, full, one, "both glyphs visible after the word ends")
}
