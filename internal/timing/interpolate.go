// Package timing provides the pure numeric primitives (range remapping,
// spring simulation, easing curves) that the transition resolver, the
// compositor and both export drivers share. Everything here is a pure
// function of its inputs so the wall-clock and frame-indexed export paths
// produce identical values for the same logical progress.
package timing

// ExtrapolateMode controls what Interpolate does outside the input range
type ExtrapolateMode string

const (
	// ExtrapolateExtend leaves the progress fraction unclamped.
	ExtrapolateExtend ExtrapolateMode = "extend"
	// ExtrapolateClamp pins the progress fraction to the nearest edge.
	ExtrapolateClamp ExtrapolateMode = "clamp"
	// ExtrapolateIdentity returns the input value unchanged, bypassing
	// the output range entirely.
	ExtrapolateIdentity ExtrapolateMode = "identity"
)

// EasingFunc maps a progress fraction in [0,1] to an eased fraction
type EasingFunc func(float64) float64

// InterpolateOptions tunes extrapolation and easing for Interpolate
type InterpolateOptions struct {
	ExtrapolateLeft  ExtrapolateMode
	ExtrapolateRight ExtrapolateMode
	Easing           EasingFunc
}

// Interpolate linearly remaps value from inputRange to outputRange.
//
// The extrapolation decision is made on the unclamped progress fraction;
// the easing function, when present, always receives the fraction clamped
// into [0,1]. A degenerate input range (inMin == inMax) is a caller error
// and yields the IEEE result (NaN or an infinity), not a panic.
func Interpolate(value float64, inputRange, outputRange [2]float64, opts InterpolateOptions) float64 {
	inMin, inMax := inputRange[0], inputRange[1]
	outMin, outMax := outputRange[0], outputRange[1]

	t := (value - inMin) / (inMax - inMin)

	if t < 0 {
		switch opts.ExtrapolateLeft {
		case ExtrapolateClamp:
			t = 0
		case ExtrapolateIdentity:
			return value
		}
	}
	if t > 1 {
		switch opts.ExtrapolateRight {
		case ExtrapolateClamp:
			t = 1
		case ExtrapolateIdentity:
			return value
		}
	}

	if opts.Easing != nil {
		t = opts.Easing(clamp01(t))
	}

	return outMin + t*(outMax-outMin)
}

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
