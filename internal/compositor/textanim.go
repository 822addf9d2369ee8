package compositor

import (
	"math"
	"strings"

	"github.com/clipforge/clipforge/internal/timing"
	"github.com/clipforge/clipforge/pkg/models"
)

// TextStyle is the resolved look of an animated text block at one instant.
// Translations are in output pixels, scale is about the block center.
type TextStyle struct {
	Opacity    float64
	TranslateX float64
	TranslateY float64
	Scale      float64
	Blur       float64
}

// slideDistance is how far, in pixels, a sliding text block travels
const slideDistance = 40

// AnimationStyle resolves a standard text animation at the given progress
// fraction. It is a pure function: the capture driver feeds it wall-clock
// progress, the frame-exact renderer feeds it frame/animationFrames, and
// both get the same style for the same logical progress.
func AnimationStyle(kind models.TextAnimation, progress float64) TextStyle {
	p := clamp01(progress)
	e := timing.Cubic(p)
	style := TextStyle{Opacity: 1, Scale: 1}

	switch kind {
	case models.TextAnimationFadeIn:
		style.Opacity = e
	case models.TextAnimationSlideUp:
		style.Opacity = e
		style.TranslateY = (1 - e) * slideDistance
	case models.TextAnimationSlideDown:
		style.Opacity = e
		style.TranslateY = -(1 - e) * slideDistance
	case models.TextAnimationSlideLeft:
		style.Opacity = e
		style.TranslateX = (1 - e) * slideDistance
	case models.TextAnimationSlideRight:
		style.Opacity = e
		style.TranslateX = -(1 - e) * slideDistance
	case models.TextAnimationScaleUp:
		style.Opacity = e
		style.Scale = 0.5 + 0.5*e
	case models.TextAnimationPop:
		style.Opacity = math.Min(1, p*2)
		// Overshoot past full size mid-animation, settling at 1.
		style.Scale = e + 0.25*math.Sin(math.Pi*e)
	case models.TextAnimationBlurReveal:
		style.Opacity = e
		style.Blur = (1 - e) * 8
	}

	return style
}

// VisibleCharacters returns how many characters of text are revealed at
// elapsed seconds into the clip. With word timings the reveal tracks each
// word's spoken window; without, characters appear at a uniform rate over
// the clip duration.
func VisibleCharacters(text string, elapsed, clipDuration float64, timings []models.WordTiming) int {
	runes := []rune(text)
	if len(runes) == 0 {
		return 0
	}
	if elapsed <= 0 {
		return 0
	}

	if len(timings) == 0 {
		if clipDuration <= 0 {
			return len(runes)
		}
		n := int(math.Floor(elapsed / clipDuration * float64(len(runes))))
		return minInt(n, len(runes))
	}

	visible := 0
	for i, wt := range timings {
		wordLen := len([]rune(wt.Word))
		if elapsed >= wt.End {
			visible += wordLen
			if i < len(timings)-1 {
				visible++ // the joining space
			}
			continue
		}
		if elapsed > wt.Start && wt.End > wt.Start {
			frac := (elapsed - wt.Start) / (wt.End - wt.Start)
			visible += int(math.Round(frac * float64(wordLen)))
		}
		break
	}
	return minInt(visible, len(runes))
}

// VisibleWords returns how many whole words are revealed at elapsed
// seconds into the clip.
func VisibleWords(wordCount int, elapsed, clipDuration float64, timings []models.WordTiming) int {
	if wordCount == 0 || elapsed <= 0 {
		return 0
	}

	if len(timings) == 0 {
		if clipDuration <= 0 {
			return wordCount
		}
		n := int(math.Floor(elapsed/clipDuration*float64(wordCount))) + 1
		return minInt(n, wordCount)
	}

	visible := 0
	for i := 0; i < minInt(wordCount, len(timings)); i++ {
		if elapsed >= timings[i].Start {
			visible = i + 1
		} else {
			break
		}
	}
	return visible
}

// KaraokeIndex returns the index of the word being highlighted at elapsed
// seconds, or -1 before the first word starts. Between two timed words the
// highlight stays on the one that last ended.
func KaraokeIndex(wordCount int, elapsed, clipDuration float64, timings []models.WordTiming) int {
	if wordCount == 0 {
		return -1
	}

	if len(timings) == 0 {
		if elapsed < 0 {
			return -1
		}
		if clipDuration <= 0 {
			return wordCount - 1
		}
		return minInt(int(math.Floor(elapsed/clipDuration*float64(wordCount))), wordCount-1)
	}

	idx := -1
	for i := 0; i < minInt(wordCount, len(timings)); i++ {
		if elapsed >= timings[i].Start {
			idx = i
		} else {
			break
		}
	}
	return idx
}

// splitWords tokenizes clip text on whitespace
func splitWords(text string) []string {
	return strings.Fields(text)
}
