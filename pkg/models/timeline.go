package models

// TrackType identifies the media kind a track carries
type TrackType string

const (
	TrackTypeVideo   TrackType = "video"
	TrackTypeOverlay TrackType = "overlay"
	TrackTypeText    TrackType = "text"
	TrackTypeAudio   TrackType = "audio"
)

// MediaType identifies the kind of a stored media file
type MediaType string

const (
	MediaTypeVideo MediaType = "video"
	MediaTypeImage MediaType = "image"
	MediaTypeAudio MediaType = "audio"
)

// TransitionKind identifies a visual blend between two adjacent clips
type TransitionKind string

const (
	TransitionNone       TransitionKind = "none"
	TransitionCrossfade  TransitionKind = "crossfade"
	TransitionDipToBlack TransitionKind = "dipToBlack"
	TransitionSlideLeft  TransitionKind = "slideLeft"
	TransitionSlideRight TransitionKind = "slideRight"
	TransitionSlideUp    TransitionKind = "slideUp"
	TransitionSlideDown  TransitionKind = "slideDown"
	TransitionWipeLeft   TransitionKind = "wipeLeft"
	TransitionWipeRight  TransitionKind = "wipeRight"
	TransitionZoom       TransitionKind = "zoom"
	TransitionGlare      TransitionKind = "glare"
	TransitionFilmBurn   TransitionKind = "filmBurn"
)

// TextAnimation identifies how a text clip is revealed
type TextAnimation string

const (
	TextAnimationNone       TextAnimation = "none"
	TextAnimationFadeIn     TextAnimation = "fadeIn"
	TextAnimationSlideUp    TextAnimation = "slideUp"
	TextAnimationSlideDown  TextAnimation = "slideDown"
	TextAnimationSlideLeft  TextAnimation = "slideLeft"
	TextAnimationSlideRight TextAnimation = "slideRight"
	TextAnimationScaleUp    TextAnimation = "scaleUp"
	TextAnimationPop        TextAnimation = "pop"
	TextAnimationBlurReveal TextAnimation = "blurReveal"
	TextAnimationTypewriter TextAnimation = "typewriter"
	TextAnimationWordByWord TextAnimation = "wordByWord"
	TextAnimationKaraoke    TextAnimation = "karaoke"
)

// OverlayAnimation identifies the motion applied to an overlay clip
type OverlayAnimation string

const (
	OverlayAnimationNone   OverlayAnimation = ""
	OverlayAnimationZoomIn OverlayAnimation = "zoomIn"
)

// WordTiming carries per-word timing measured from the start of a text clip
type WordTiming struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// ClipProperties holds per-clip visual parameters. Zero values are not
// meaningful for every field; ApplyDefaults fills the documented defaults
// (centered position, scale 1, opacity 1, 48px text, 0.5s animation).
type ClipProperties struct {
	// Placement, shared by overlay and text clips. Position is expressed as
	// a percentage of the output frame (50/50 is centered).
	PositionX float64 `json:"position_x"`
	PositionY float64 `json:"position_y"`
	Scale     float64 `json:"scale"`
	Rotation  float64 `json:"rotation"` // degrees
	Opacity   float64 `json:"opacity"`

	// Fade windows in seconds, measured from clip start and clip end.
	FadeInDuration  float64 `json:"fade_in_duration"`
	FadeOutDuration float64 `json:"fade_out_duration"`

	// Overlay animation.
	Animation OverlayAnimation `json:"animation,omitempty"`

	// Text rendering.
	Text              string        `json:"text,omitempty"`
	FontSize          float64       `json:"font_size,omitempty"`
	FontColor         string        `json:"font_color,omitempty"`
	BackgroundColor   string        `json:"background_color,omitempty"`
	HighlightColor    string        `json:"highlight_color,omitempty"`
	TextAnimation     TextAnimation `json:"text_animation,omitempty"`
	AnimationDuration float64       `json:"animation_duration,omitempty"` // seconds
	WordTimings       []WordTiming  `json:"word_timings,omitempty"`

	// Audio.
	Volume float64 `json:"volume"`
}

// ApplyDefaults fills unset fields with their documented defaults
func (p *ClipProperties) ApplyDefaults() {
	if p.PositionX == 0 && p.PositionY == 0 {
		p.PositionX = 50
		p.PositionY = 50
	}
	if p.Scale == 0 {
		p.Scale = 1
	}
	if p.Opacity == 0 {
		p.Opacity = 1
	}
	if p.FontSize == 0 {
		p.FontSize = 48
	}
	if p.FontColor == "" {
		p.FontColor = "#ffffff"
	}
	if p.HighlightColor == "" {
		p.HighlightColor = "#facc15"
	}
	if p.AnimationDuration == 0 {
		p.AnimationDuration = 0.5
	}
	if p.Volume == 0 {
		p.Volume = 1
	}
}

// Clip is a time-bounded reference to media or generated content on a track
type Clip struct {
	ID         string         `json:"id"`
	TrackID    string         `json:"track_id"`
	MediaID    string         `json:"media_id,omitempty"`
	Type       TrackType      `json:"type"`
	StartTime  float64        `json:"start_time"` // timeline seconds
	Duration   float64        `json:"duration"`   // seconds, > 0
	TrimStart  float64        `json:"trim_start"` // seconds into source media
	TrimEnd    float64        `json:"trim_end"`
	Properties ClipProperties `json:"properties"`
}

// EndTime returns the timeline time at which the clip stops being active
func (c *Clip) EndTime() float64 {
	return c.StartTime + c.Duration
}

// ActiveAt reports whether the clip covers timeline time t.
// The window is half-open: start <= t < start+duration.
func (c *Clip) ActiveAt(t float64) bool {
	return t >= c.StartTime && t < c.StartTime+c.Duration
}

// SourceTime maps timeline time t into the clip's source media timeline
func (c *Clip) SourceTime(t float64) float64 {
	return c.TrimStart + (t - c.StartTime)
}

// Progress returns the clip-local progress fraction in [0,1] at timeline time t
func (c *Clip) Progress(t float64) float64 {
	if c.Duration <= 0 {
		return 1
	}
	p := (t - c.StartTime) / c.Duration
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Track is an ordered lane of non-overlapping clips of one media kind
type Track struct {
	ID    string    `json:"id"`
	Type  TrackType `json:"type"`
	Role  string    `json:"role,omitempty"` // e.g. "main"
	Muted bool      `json:"muted"`
	Clips []Clip    `json:"clips"`
}

// ActiveClips returns the clips on the track covering timeline time t
func (tr *Track) ActiveClips(t float64) []*Clip {
	var active []*Clip
	for i := range tr.Clips {
		if tr.Clips[i].ActiveAt(t) {
			active = append(active, &tr.Clips[i])
		}
	}
	return active
}

// Transition links the end of one clip to the start of the next.
// At most one transition targets a given ToClipID.
type Transition struct {
	ID         string         `json:"id"`
	FromClipID string         `json:"from_clip_id"`
	ToClipID   string         `json:"to_clip_id"`
	Kind       TransitionKind `json:"kind"`
	Duration   float64        `json:"duration"` // seconds
}

// MediaFile is a byte-accessible media source owned by project storage
type MediaFile struct {
	ID       string    `json:"id"`
	Type     MediaType `json:"type"`
	Filename string    `json:"filename"`
	// Locator is the object key resolving to the media bytes.
	Locator string `json:"locator"`
	Size    int64  `json:"size,omitempty"`
}

// Timeline is the immutable snapshot of the editing model taken at export
// start. The core never mutates it.
type Timeline struct {
	Tracks      []Track      `json:"tracks"`
	Transitions []Transition `json:"transitions"`
	MediaFiles  []MediaFile  `json:"media_files"`
}

// TotalDuration returns the end time of the last clip on any track
func (tl *Timeline) TotalDuration() float64 {
	var max float64
	for i := range tl.Tracks {
		for j := range tl.Tracks[i].Clips {
			if end := tl.Tracks[i].Clips[j].EndTime(); end > max {
				max = end
			}
		}
	}
	return max
}

// FindClip locates a clip by id across all tracks. First match per id wins.
func (tl *Timeline) FindClip(clipID string) *Clip {
	for i := range tl.Tracks {
		for j := range tl.Tracks[i].Clips {
			if tl.Tracks[i].Clips[j].ID == clipID {
				return &tl.Tracks[i].Clips[j]
			}
		}
	}
	return nil
}

// IncomingTransition returns the transition targeting the given clip, or nil
func (tl *Timeline) IncomingTransition(toClipID string) *Transition {
	for i := range tl.Transitions {
		if tl.Transitions[i].ToClipID == toClipID {
			return &tl.Transitions[i]
		}
	}
	return nil
}

// MediaFileByID resolves a media file reference, or nil if absent
func (tl *Timeline) MediaFileByID(mediaID string) *MediaFile {
	for i := range tl.MediaFiles {
		if tl.MediaFiles[i].ID == mediaID {
			return &tl.MediaFiles[i]
		}
	}
	return nil
}
