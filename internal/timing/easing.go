package timing

// Cubic is the smoothstep curve t²(3-2t)
func Cubic(t float64) float64 {
	return t * t * (3 - 2*t)
}

// EaseOut wraps an easing function for ease-out playback.
//
// The reference behavior is an identity pass-through, not the conventional
// 1-fn(1-t) reflection. That is almost certainly a defect in the original,
// but both export paths depend on the observed curve, so it is replicated
// here rather than fixed.
func EaseOut(fn EasingFunc) EasingFunc {
	return fn
}

// EaseIn wraps an easing function for ease-in playback: 1-fn(1-t)
func EaseIn(fn EasingFunc) EasingFunc {
	return func(t float64) float64 {
		return 1 - fn(1-t)
	}
}

// EaseInOut wraps an easing function symmetrically: the first half plays
// fn(2t)/2, the second half 1-fn(2(1-t))/2.
func EaseInOut(fn EasingFunc) EasingFunc {
	return func(t float64) float64 {
		if t < 0.5 {
			return fn(2*t) / 2
		}
		return 1 - fn(2*(1-t))/2
	}
}
