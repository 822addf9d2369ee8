// Package transition resolves a transition kind and a progress fraction
// into the paired visual styles for the outgoing and incoming clip. It is
// the single home of the transition math: the wall-clock capture driver
// and the frame-indexed renderer both call into it, so a given logical
// progress always produces the same pair of styles on either path.
package transition

// Style describes how one side of a transition is drawn
type Style struct {
	// Opacity in [0,1].
	Opacity float64
	// TranslateX/TranslateY are offsets as a percentage of the output
	// frame; zero means no translation.
	TranslateX float64
	TranslateY float64
	// Scale is an absolute scale factor about the frame center; 1 is
	// identity.
	Scale float64
	// Clip, when set, restricts drawing to the frame minus the insets.
	Clip *ClipInset
	// Filter, when set, adjusts pixel values after transform.
	Filter *Filter
}

// Identity returns the style that draws a clip unmodified
func Identity() Style {
	return Style{Opacity: 1, Scale: 1}
}

// IsIdentity reports whether the style leaves the clip untouched
func (s Style) IsIdentity() bool {
	return s.Opacity == 1 && s.TranslateX == 0 && s.TranslateY == 0 &&
		s.Scale == 1 && s.Clip == nil && s.Filter == nil
}

// ClipInset is a rectangular clip region expressed as percentage insets
// from each frame edge.
type ClipInset struct {
	Top    float64
	Right  float64
	Bottom float64
	Left   float64
}

// Filter is a brightness/saturation/sepia/blur composition. Brightness and
// Saturate are multipliers with identity 1; Sepia is a mix fraction with
// identity 0; Blur is a radius in pixels.
type Filter struct {
	Brightness float64
	Saturate   float64
	Sepia      float64
	Blur       float64
}

// RadialGradient is one moving light streak of the filmBurn decoration
type RadialGradient struct {
	// CenterX/CenterY and Radius are percentages of the output frame.
	CenterX float64
	CenterY float64
	Radius  float64
	// Additive color contribution at the gradient center.
	R, G, B uint8
	Alpha   float64
}

// Overlay is an additive decoration drawn on top of both clips
type Overlay struct {
	Gradients []RadialGradient
}

// Pair is the resolved look of a transition at one progress value
type Pair struct {
	Outgoing Style
	Incoming Style
	Overlay  *Overlay
}

// IdentityPair draws both clips unmodified; it is the resolution of the
// none kind and of any unknown kind.
func IdentityPair() Pair {
	return Pair{Outgoing: Identity(), Incoming: Identity()}
}
