package timing

// SpringConfig parameterizes the damped harmonic oscillator
type SpringConfig struct {
	Damping   float64
	Stiffness float64
	Mass      float64
}

// DefaultSpringConfig returns the reference spring parameters
func DefaultSpringConfig() SpringConfig {
	return SpringConfig{Damping: 10, Stiffness: 100, Mass: 1}
}

// Spring simulates a damped harmonic oscillator toward rest position 1,
// starting at position 0 with velocity 0, by explicit Euler integration
// with step size 1/fps iterated frame times. This is deliberately a
// discrete step-accumulation model rather than the closed-form solution:
// the per-step update is part of the observable contract, so both export
// paths reproduce identical values frame for frame. The result is clamped
// to [0,1].
func Spring(frame int, fps float64, cfg SpringConfig) float64 {
	if cfg.Damping == 0 && cfg.Stiffness == 0 && cfg.Mass == 0 {
		cfg = DefaultSpringConfig()
	}

	pos := 0.0
	vel := 0.0
	dt := 1.0 / fps

	for i := 0; i < frame; i++ {
		acc := (-cfg.Stiffness*(pos-1) - cfg.Damping*vel) / cfg.Mass
		vel += acc * dt
		pos += vel * dt
	}

	return clamp01(pos)
}
