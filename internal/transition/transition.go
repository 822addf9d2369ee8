package transition

import (
	"math"

	"github.com/clipforge/clipforge/internal/timing"
	"github.com/clipforge/clipforge/pkg/models"
)

// Progress returns the transition progress at currentTime for a transition
// of the given duration starting at clipStart. A non-positive duration
// resolves to 1 (transition already complete); otherwise the result is
// clamped to [0,1].
func Progress(currentTime, clipStart, transitionDuration float64) float64 {
	if transitionDuration <= 0 {
		return 1
	}
	p := (currentTime - clipStart) / transitionDuration
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// ComputePair resolves a transition kind at the given progress into the
// outgoing and incoming styles plus an optional overlay decoration.
// Progress is clamped to [0,1] before use. An unknown kind resolves to the
// identity pair; this is policy, not an error.
func ComputePair(kind models.TransitionKind, progress float64) Pair {
	p := progress
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}

	switch kind {
	case models.TransitionCrossfade:
		return crossfade(p)
	case models.TransitionDipToBlack:
		return dipToBlack(p)
	case models.TransitionSlideLeft:
		return slide(p, -1, 0)
	case models.TransitionSlideRight:
		return slide(p, 1, 0)
	case models.TransitionSlideUp:
		return slide(p, 0, -1)
	case models.TransitionSlideDown:
		return slide(p, 0, 1)
	case models.TransitionWipeLeft:
		return wipe(p, false)
	case models.TransitionWipeRight:
		return wipe(p, true)
	case models.TransitionZoom:
		return zoom(p)
	case models.TransitionGlare:
		return glare(p)
	case models.TransitionFilmBurn:
		return filmBurn(p)
	default:
		return IdentityPair()
	}
}

func crossfade(p float64) Pair {
	e := timing.Cubic(p)
	out := Identity()
	in := Identity()
	out.Opacity = 1 - e
	in.Opacity = e
	return Pair{Outgoing: out, Incoming: in}
}

// dipToBlack fades the outgoing clip to black over the first half and the
// incoming clip up from black over the second half; the midpoint is fully
// black.
func dipToBlack(p float64) Pair {
	out := Identity()
	in := Identity()

	firstHalf := p * 2
	if firstHalf > 1 {
		firstHalf = 1
	}
	out.Opacity = 1 - timing.Cubic(firstHalf)

	secondHalf := (p - 0.5) * 2
	if secondHalf < 0 {
		secondHalf = 0
	}
	in.Opacity = timing.Cubic(secondHalf)

	return Pair{Outgoing: out, Incoming: in}
}

// slide moves the outgoing clip out toward (dx,dy)*100% of the frame while
// the incoming clip arrives from the opposite edge.
func slide(p, dx, dy float64) Pair {
	e := timing.Cubic(p)
	out := Identity()
	in := Identity()
	out.TranslateX = dx * 100 * e
	out.TranslateY = dy * 100 * e
	in.TranslateX = -dx * 100 * (1 - e)
	in.TranslateY = -dy * 100 * (1 - e)
	return Pair{Outgoing: out, Incoming: in}
}

// wipe keeps the outgoing clip untouched and reveals the incoming clip
// behind a shrinking inset.
func wipe(p float64, fromLeft bool) Pair {
	e := timing.Cubic(p)
	out := Identity()
	in := Identity()
	inset := 100 * (1 - e)
	if fromLeft {
		in.Clip = &ClipInset{Left: inset}
	} else {
		in.Clip = &ClipInset{Right: inset}
	}
	return Pair{Outgoing: out, Incoming: in}
}

func zoom(p float64) Pair {
	e := timing.Cubic(p)
	out := Identity()
	in := Identity()
	out.Opacity = 1 - e
	in.Opacity = e
	in.Scale = 0.3 + 0.7*e
	return Pair{Outgoing: out, Incoming: in}
}

// glare runs a two-phase brightness/saturation spike with a small scale
// pulse. The first half brightens the outgoing clip only; at p=0.5 the
// incoming clip takes over and the spike decays.
func glare(p float64) Pair {
	out := Identity()
	in := Identity()

	if p < 0.5 {
		q := p * 2
		out.Filter = &Filter{Brightness: 1 + 1.5*q, Saturate: 1 + 0.5*q}
		out.Scale = 1 + 0.05*q
		in.Opacity = 0
		return Pair{Outgoing: out, Incoming: in}
	}

	q := (p - 0.5) * 2
	spike := &Filter{Brightness: 2.5 - 1.5*q, Saturate: 1.5 - 0.5*q}
	out.Opacity = 1 - q
	out.Filter = spike
	out.Scale = 1.05 - 0.05*q
	in.Opacity = q
	in.Filter = &Filter{Brightness: spike.Brightness, Saturate: spike.Saturate}
	in.Scale = 1.05 - 0.05*q
	return Pair{Outgoing: out, Incoming: in}
}

// filmBurn ramps a sepia/brightness wash up to the midpoint and back down,
// with an additive pair of moving light streaks riding the same ramp.
func filmBurn(p float64) Pair {
	e := timing.Cubic(p)
	ramp := 1 - math.Abs(2*p-1)

	wash := &Filter{
		Brightness: 1 + 0.6*ramp,
		Saturate:   1,
		Sepia:      0.8 * ramp,
	}

	out := Identity()
	in := Identity()
	out.Opacity = 1 - e
	out.Filter = wash
	in.Opacity = e
	in.Filter = &Filter{Brightness: wash.Brightness, Saturate: 1, Sepia: wash.Sepia}

	overlay := &Overlay{
		Gradients: []RadialGradient{
			{
				CenterX: 20 + 60*p,
				CenterY: 30,
				Radius:  40,
				R:       255, G: 160, B: 60,
				Alpha: 0.5 * ramp,
			},
			{
				CenterX: 80 - 60*p,
				CenterY: 70,
				Radius:  30,
				R:       230, G: 80, B: 40,
				Alpha: 0.4 * ramp,
			},
		},
	}

	return Pair{Outgoing: out, Incoming: in, Overlay: overlay}
}
