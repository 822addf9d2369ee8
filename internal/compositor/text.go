package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/clipforge/clipforge/pkg/models"
)

const (
	// wrapWidthFraction is the share of the frame width a text block may
	// occupy before wrapping.
	wrapWidthFraction = 0.85

	baseAdvance    = 7 // Face7x13 glyph advance in px
	baseLineHeight = 16
	baseAscent     = 11
)

// textBlock is one laid-out text clip ready to draw
type textBlock struct {
	lines [][]string

	fontColor      color.RGBA
	highlightColor color.RGBA
	scale          float64 // font scale from the 13px base face

	// Reveal state; -1 means not applicable (everything visible).
	visibleChars int
	visibleWords int
	activeWord   int

	style   TextStyle
	opacity float64 // clip base opacity, multiplied into style.Opacity
}

// RenderTextClip resolves a text clip's animation state at currentTime and
// draws it centered at its configured position. The animation state is a
// pure function of (clip, currentTime), so frame-indexed callers get
// identical output for identical times.
func RenderTextClip(dst *image.RGBA, clip *models.Clip, currentTime float64) {
	props := clip.Properties
	props.ApplyDefaults()

	words := splitWords(props.Text)
	if len(words) == 0 {
		return
	}

	elapsed := currentTime - clip.StartTime

	block := textBlock{
		fontColor:      parseHexColor(props.FontColor),
		highlightColor: parseHexColor(props.HighlightColor),
		scale:          props.FontSize / 13,
		visibleChars:   -1,
		visibleWords:   -1,
		activeWord:     -1,
		style:          TextStyle{Opacity: 1, Scale: 1},
		opacity:        props.Opacity,
	}

	switch props.TextAnimation {
	case models.TextAnimationKaraoke:
		block.activeWord = KaraokeIndex(len(words), elapsed, clip.Duration, props.WordTimings)
	case models.TextAnimationTypewriter:
		block.visibleChars = VisibleCharacters(props.Text, elapsed, clip.Duration, props.WordTimings)
		if block.visibleChars == 0 {
			return
		}
	case models.TextAnimationWordByWord:
		block.visibleWords = VisibleWords(len(words), elapsed, clip.Duration, props.WordTimings)
		if block.visibleWords == 0 {
			return
		}
	default:
		progress := 1.0
		if props.AnimationDuration > 0 {
			progress = elapsed / props.AnimationDuration
		}
		block.style = AnimationStyle(props.TextAnimation, progress)
	}

	maxWidth := wrapWidthFraction * float64(dst.Bounds().Dx())
	block.lines = wrapWords(words, maxWidth, block.scale)

	drawTextBlock(dst, block, props.PositionX, props.PositionY)
}

// wrapWords greedily packs words into lines no wider than maxWidth output
// pixels at the given font scale.
func wrapWords(words []string, maxWidth, scale float64) [][]string {
	var lines [][]string
	var line []string
	lineWidth := 0.0

	for _, w := range words {
		wordWidth := float64(len([]rune(w))*baseAdvance) * scale
		spaceWidth := float64(baseAdvance) * scale

		if len(line) > 0 && lineWidth+spaceWidth+wordWidth > maxWidth {
			lines = append(lines, line)
			line = nil
			lineWidth = 0
		}
		if len(line) > 0 {
			lineWidth += spaceWidth
		}
		line = append(line, w)
		lineWidth += wordWidth
	}
	if len(line) > 0 {
		lines = append(lines, line)
	}
	return lines
}

// drawTextBlock rasterizes the block at the base font size, scales it to
// the target size, and composites it centered at the given frame position.
func drawTextBlock(dst *image.RGBA, block textBlock, posXPct, posYPct float64) {
	opacity := clamp01(block.style.Opacity * block.opacity)
	if opacity <= 0 {
		return
	}

	blockW := 0
	for _, line := range block.lines {
		if w := lineAdvance(line); w > blockW {
			blockW = w
		}
	}
	blockH := len(block.lines) * baseLineHeight
	if blockW == 0 || blockH == 0 {
		return
	}

	// Padding keeps the karaoke highlight box and blur fringe inside the
	// raster.
	const pad = 4
	raster := image.NewRGBA(image.Rect(0, 0, blockW+2*pad, blockH+2*pad))

	charBudget := block.visibleChars
	wordBudget := block.visibleWords
	wordIndex := 0

	for row, line := range block.lines {
		// Each row is centered as a block.
		x := pad + (blockW-lineAdvance(line))/2
		y := pad + row*baseLineHeight + baseAscent

		for col, word := range line {
			if wordBudget == 0 {
				break
			}

			visible := word
			if charBudget >= 0 {
				runes := []rune(word)
				if charBudget < len(runes) {
					visible = string(runes[:charBudget])
					charBudget = 0
				} else {
					charBudget -= len(runes)
					if col < len(line)-1 || row < len(block.lines)-1 {
						charBudget-- // the joining space
					}
					if charBudget < 0 {
						charBudget = 0
					}
				}
			}

			if wordIndex == block.activeWord {
				box := image.Rect(x-2, y-baseAscent-1, x+len([]rune(word))*baseAdvance+2, y+3)
				draw.Draw(raster, box, image.NewUniform(block.highlightColor), image.Point{}, draw.Src)
			}

			if visible != "" {
				d := font.Drawer{
					Dst:  raster,
					Src:  image.NewUniform(block.fontColor),
					Face: basicfont.Face7x13,
					Dot:  fixed.P(x, y),
				}
				d.DrawString(visible)
			}

			if charBudget == 0 && block.visibleChars >= 0 {
				wordBudget = 0
				break
			}
			if wordBudget > 0 {
				wordBudget--
			}
			x += (len([]rune(word)) + 1) * baseAdvance
			wordIndex++
		}
		if wordBudget == 0 && (block.visibleWords >= 0 || block.visibleChars >= 0) {
			break
		}
	}

	scale := block.scale * block.style.Scale
	if scale <= 0 {
		return
	}
	outW := int(math.Round(float64(raster.Bounds().Dx()) * scale))
	outH := int(math.Round(float64(raster.Bounds().Dy()) * scale))
	if outW == 0 || outH == 0 {
		return
	}

	scaled := image.NewRGBA(image.Rect(0, 0, outW, outH))
	xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), raster, raster.Bounds(), xdraw.Src, nil)

	if block.style.Blur > 0 {
		boxBlur(scaled, int(math.Round(block.style.Blur)))
	}

	b := dst.Bounds()
	cx := posXPct/100*float64(b.Dx()) + block.style.TranslateX
	cy := posYPct/100*float64(b.Dy()) + block.style.TranslateY
	origin := image.Pt(
		b.Min.X+int(math.Round(cx))-outW/2,
		b.Min.Y+int(math.Round(cy))-outH/2,
	)

	rect := scaled.Bounds().Add(origin).Intersect(b)
	if rect.Empty() {
		return
	}
	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(opacity * 255))})
	draw.DrawMask(dst, rect, scaled, rect.Min.Sub(origin), mask, image.Point{}, draw.Over)
}

func lineAdvance(line []string) int {
	w := 0
	for i, word := range line {
		if i > 0 {
			w += baseAdvance
		}
		w += len([]rune(word)) * baseAdvance
	}
	return w
}

// parseHexColor parses #rgb and #rrggbb colors; anything else is white
func parseHexColor(s string) color.RGBA {
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	if len(s) == 0 || s[0] != '#' {
		return white
	}

	hex := func(c byte) (uint8, bool) {
		switch {
		case c >= '0' && c <= '9':
			return c - '0', true
		case c >= 'a' && c <= 'f':
			return c - 'a' + 10, true
		case c >= 'A' && c <= 'F':
			return c - 'A' + 10, true
		}
		return 0, false
	}

	switch len(s) {
	case 4:
		r, ok1 := hex(s[1])
		g, ok2 := hex(s[2])
		b, ok3 := hex(s[3])
		if ok1 && ok2 && ok3 {
			return color.RGBA{R: r * 17, G: g * 17, B: b * 17, A: 255}
		}
	case 7:
		var v [6]uint8
		for i := 0; i < 6; i++ {
			n, ok := hex(s[i+1])
			if !ok {
				return white
			}
			v[i] = n
		}
		return color.RGBA{R: v[0]<<4 | v[1], G: v[2]<<4 | v[3], B: v[4]<<4 | v[5], A: 255}
	}
	return white
}
