package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/clipforge/clipforge/internal/transition"
)

// fillBlack paints the opaque base background
func fillBlack(dst *image.RGBA) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
}

// DrawStyled composites one full-frame video layer onto dst with the given
// transition style: scale about the frame center, percentage translation,
// optional rectangular clip insets and pixel filter, then alpha blend.
// Both export drivers draw through here so a given style renders the same
// pixels on either path.
func DrawStyled(dst *image.RGBA, src image.Image, style transition.Style) {
	if style.Opacity <= 0 {
		return
	}

	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()

	layer := image.NewRGBA(b)
	target := b
	if style.Scale != 1 && style.Scale > 0 {
		sw := int(math.Round(float64(w) * style.Scale))
		sh := int(math.Round(float64(h) * style.Scale))
		target = image.Rect(0, 0, sw, sh).Add(image.Pt((w-sw)/2, (h-sh)/2))
	}
	xdraw.ApproxBiLinear.Scale(layer, target, src, src.Bounds(), xdraw.Src, nil)

	if style.Filter != nil {
		applyFilter(layer, style.Filter)
	}

	offset := image.Pt(
		int(math.Round(style.TranslateX/100*float64(w))),
		int(math.Round(style.TranslateY/100*float64(h))),
	)

	rect := b.Add(offset).Intersect(b)
	if style.Clip != nil {
		inset := image.Rect(
			b.Min.X+int(math.Round(style.Clip.Left/100*float64(w))),
			b.Min.Y+int(math.Round(style.Clip.Top/100*float64(h))),
			b.Max.X-int(math.Round(style.Clip.Right/100*float64(w))),
			b.Max.Y-int(math.Round(style.Clip.Bottom/100*float64(h))),
		)
		rect = rect.Intersect(inset)
	}
	if rect.Empty() {
		return
	}

	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(clamp01(style.Opacity) * 255))})
	sp := rect.Min.Sub(offset)
	draw.DrawMask(dst, rect, layer, sp, mask, image.Point{}, draw.Over)
}

// DrawDecoration adds the transition's overlay gradients on top of both
// clips. Gradients blend additively toward their center color.
func DrawDecoration(dst *image.RGBA, ov *transition.Overlay) {
	if ov == nil {
		return
	}
	b := dst.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())

	for _, g := range ov.Gradients {
		cx := b.Min.X + int(g.CenterX/100*w)
		cy := b.Min.Y + int(g.CenterY/100*h)
		radius := g.Radius / 100 * math.Min(w, h)
		if radius <= 0 || g.Alpha <= 0 {
			continue
		}

		minX := maxInt(b.Min.X, cx-int(radius))
		maxX := minInt(b.Max.X, cx+int(radius)+1)
		minY := maxInt(b.Min.Y, cy-int(radius))
		maxY := minInt(b.Max.Y, cy+int(radius)+1)

		for y := minY; y < maxY; y++ {
			for x := minX; x < maxX; x++ {
				dx, dy := float64(x-cx), float64(y-cy)
				dist := math.Sqrt(dx*dx + dy*dy)
				if dist >= radius {
					continue
				}
				// Intensity falls off linearly to the gradient edge.
				a := g.Alpha * (1 - dist/radius)
				i := dst.PixOffset(x, y)
				dst.Pix[i+0] = addChannel(dst.Pix[i+0], g.R, a)
				dst.Pix[i+1] = addChannel(dst.Pix[i+1], g.G, a)
				dst.Pix[i+2] = addChannel(dst.Pix[i+2], g.B, a)
			}
		}
	}
}

func addChannel(base, add uint8, alpha float64) uint8 {
	v := float64(base) + float64(add)*alpha
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// applyFilter adjusts pixel values in place: brightness and saturation
// multipliers, a sepia mix, then an optional box blur.
func applyFilter(img *image.RGBA, f *transition.Filter) {
	brightness := f.Brightness
	if brightness == 0 {
		brightness = 1
	}
	saturate := f.Saturate
	if saturate == 0 {
		saturate = 1
	}

	if brightness != 1 || saturate != 1 || f.Sepia > 0 {
		pix := img.Pix
		for i := 0; i < len(pix); i += 4 {
			r := float64(pix[i]) * brightness
			g := float64(pix[i+1]) * brightness
			b := float64(pix[i+2]) * brightness

			if saturate != 1 {
				luma := 0.2126*r + 0.7152*g + 0.0722*b
				r = luma + (r-luma)*saturate
				g = luma + (g-luma)*saturate
				b = luma + (b-luma)*saturate
			}

			if f.Sepia > 0 {
				sr := 0.393*r + 0.769*g + 0.189*b
				sg := 0.349*r + 0.686*g + 0.168*b
				sb := 0.272*r + 0.534*g + 0.131*b
				r = r + (sr-r)*f.Sepia
				g = g + (sg-g)*f.Sepia
				b = b + (sb-b)*f.Sepia
			}

			pix[i] = clampByte(r)
			pix[i+1] = clampByte(g)
			pix[i+2] = clampByte(b)
		}
	}

	if f.Blur > 0 {
		boxBlur(img, int(math.Round(f.Blur)))
	}
}

// boxBlur is a single-pass box blur; transition and text blurs are small
// and brief enough that a gaussian is not worth the cost.
func boxBlur(img *image.RGBA, radius int) {
	if radius <= 0 {
		return
	}
	b := img.Bounds()
	out := image.NewRGBA(b)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var r, g, bl, a, n float64
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					px, py := x+dx, y+dy
					if px < b.Min.X || px >= b.Max.X || py < b.Min.Y || py >= b.Max.Y {
						continue
					}
					i := img.PixOffset(px, py)
					r += float64(img.Pix[i])
					g += float64(img.Pix[i+1])
					bl += float64(img.Pix[i+2])
					a += float64(img.Pix[i+3])
					n++
				}
			}
			i := out.PixOffset(x, y)
			out.Pix[i] = uint8(r / n)
			out.Pix[i+1] = uint8(g / n)
			out.Pix[i+2] = uint8(bl / n)
			out.Pix[i+3] = uint8(a / n)
		}
	}

	copy(img.Pix, out.Pix)
}

// drawOverlayMedia draws an overlay clip's raster aspect-fit within the
// frame, scaled and rotated about its position origin, at the given
// opacity.
func drawOverlayMedia(dst *image.RGBA, src image.Image, posXPct, posYPct, scale, rotationDeg, opacity float64) {
	if opacity <= 0 || scale <= 0 {
		return
	}

	b := dst.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	sb := src.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())
	if sw == 0 || sh == 0 {
		return
	}

	// Aspect-fit the source within the frame, then apply the clip scale.
	fit := math.Min(w/sw, h/sh) * scale
	cx := posXPct / 100 * w
	cy := posYPct / 100 * h
	rad := rotationDeg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)

	// Rotate and scale about the source center, then move it to (cx, cy).
	m := f64.Aff3{
		fit * cos, -fit * sin, cx - fit*(cos*sw/2-sin*sh/2),
		fit * sin, fit * cos, cy - fit*(sin*sw/2+cos*sh/2),
	}

	layer := image.NewRGBA(b)
	xdraw.ApproxBiLinear.Transform(layer, m, src, sb, xdraw.Src, nil)

	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(clamp01(opacity) * 255))})
	draw.DrawMask(dst, b, layer, b.Min, mask, image.Point{}, draw.Over)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
