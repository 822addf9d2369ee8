package compositor

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/pkg/models"
)

// solidSource serves a fixed-color raster and counts reads
type solidSource struct {
	img   image.Image
	calls int
}

func newSolidSource(c color.RGBA) *solidSource {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return &solidSource{img: img}
}

func (s *solidSource) FrameAt(ctx context.Context, seconds float64) (image.Image, error) {
	s.calls++
	return s.img, nil
}

func videoClip(id string, start, duration float64) models.Clip {
	return models.Clip{
		ID:        id,
		TrackID:   "video-1",
		Type:      models.TrackTypeVideo,
		StartTime: start,
		Duration:  duration,
	}
}

func TestCompositeFrame_EndToEnd(t *testing.T) {
	// One video clip 0-5s, one text clip 1-3s fading in over 0.5s.
	tl := &models.Timeline{
		Tracks: []models.Track{
			{
				ID:    "video-1",
				Type:  models.TrackTypeVideo,
				Clips: []models.Clip{videoClip("v1", 0, 5)},
			},
			{
				ID:   "text-1",
				Type: models.TrackTypeText,
				Clips: []models.Clip{{
					ID:        "t1",
					TrackID:   "text-1",
					Type:      models.TrackTypeText,
					StartTime: 1,
					Duration:  2,
					Properties: models.ClipProperties{
						Text:              "Hello world",
						TextAnimation:     models.TextAnimationFadeIn,
						AnimationDuration: 0.5,
					},
				}},
			},
		},
	}
	entries := Entries{"v1": newSolidSource(color.RGBA{B: 200, A: 255})}

	const fps = 30
	const width, height = 320, 180
	ctx := context.Background()

	rendered := 0
	for frame := 0; frame < 5*fps; frame++ {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		require.NoError(t, CompositeFrame(ctx, dst, float64(frame)/fps, tl, entries))
		rendered++
	}
	assert.Equal(t, 150, rendered)

	// Baseline with no text track for pixel comparison.
	videoOnly := &models.Timeline{Tracks: tl.Tracks[:1]}
	base := image.NewRGBA(image.Rect(0, 0, width, height))
	require.NoError(t, CompositeFrame(ctx, base, 1.0, videoOnly, entries))

	// At t=1.0 the fade-in has not begun: text opacity is 0.
	atStart := image.NewRGBA(image.Rect(0, 0, width, height))
	require.NoError(t, CompositeFrame(ctx, atStart, 1.0, tl, entries))
	assert.Equal(t, base.Pix, atStart.Pix)

	// At t=1.5 the fade-in is complete: white glyphs are present.
	atFull := image.NewRGBA(image.Rect(0, 0, width, height))
	require.NoError(t, CompositeFrame(ctx, atFull, 1.5, tl, entries))
	assert.NotEqual(t, base.Pix, atFull.Pix)

	white := 0
	for i := 0; i < len(atFull.Pix); i += 4 {
		if atFull.Pix[i] > 200 && atFull.Pix[i+1] > 200 && atFull.Pix[i+2] > 200 {
			white++
		}
	}
	assert.Greater(t, white, 0, "expected visible white text pixels at t=1.5")
}

func TestCompositeFrame_TransitionDrawsOutgoingOnce(t *testing.T) {
	from := newSolidSource(color.RGBA{R: 200, A: 255})
	to := newSolidSource(color.RGBA{B: 200, A: 255})

	tl := &models.Timeline{
		Tracks: []models.Track{{
			ID:   "video-1",
			Type: models.TrackTypeVideo,
			Clips: []models.Clip{
				videoClip("v1", 0, 2),
				videoClip("v2", 2, 2),
			},
		}},
		Transitions: []models.Transition{{
			ID:         "tr1",
			FromClipID: "v1",
			ToClipID:   "v2",
			Kind:       models.TransitionCrossfade,
			Duration:   1,
		}},
	}
	entries := Entries{"v1": from, "v2": to}

	// t=2.5 is mid-transition: v1 has ended on the timeline but still
	// paints as the outgoing side.
	dst := image.NewRGBA(image.Rect(0, 0, 64, 36))
	require.NoError(t, CompositeFrame(context.Background(), dst, 2.5, tl, entries))

	assert.Equal(t, 1, from.calls, "outgoing clip must be drawn exactly once")
	assert.Equal(t, 1, to.calls)

	// Crossfade midpoint: half red over black, then half blue over that.
	r, g, b, _ := dst.At(32, 18).RGBA()
	assert.InDelta(t, 50, r>>8, 8)
	assert.InDelta(t, 0, g>>8, 4)
	assert.InDelta(t, 100, b>>8, 8)
}

func TestCompositeFrame_CompletedTransitionDrawsPlainly(t *testing.T) {
	to := newSolidSource(color.RGBA{B: 200, A: 255})
	tl := &models.Timeline{
		Tracks: []models.Track{{
			ID:    "video-1",
			Type:  models.TrackTypeVideo,
			Clips: []models.Clip{videoClip("v2", 2, 2)},
		}},
		Transitions: []models.Transition{{
			FromClipID: "v1",
			ToClipID:   "v2",
			Kind:       models.TransitionCrossfade,
			Duration:   1,
		}},
	}
	entries := Entries{"v2": to}

	dst := image.NewRGBA(image.Rect(0, 0, 64, 36))
	require.NoError(t, CompositeFrame(context.Background(), dst, 3.5, tl, entries))

	_, _, b, _ := dst.At(32, 18).RGBA()
	assert.InDelta(t, 200, b>>8, 4, "clip past its transition window draws at full opacity")
}

func TestCompositeFrame_MutedTrackSkipped(t *testing.T) {
	src := newSolidSource(color.RGBA{R: 200, A: 255})
	tl := &models.Timeline{
		Tracks: []models.Track{{
			ID:    "video-1",
			Type:  models.TrackTypeVideo,
			Muted: true,
			Clips: []models.Clip{videoClip("v1", 0, 5)},
		}},
	}

	dst := image.NewRGBA(image.Rect(0, 0, 32, 18))
	require.NoError(t, CompositeFrame(context.Background(), dst, 1, tl, Entries{"v1": src}))

	assert.Equal(t, 0, src.calls)
	r, g, b, _ := dst.At(16, 9).RGBA()
	assert.Zero(t, r>>8)
	assert.Zero(t, g>>8)
	assert.Zero(t, b>>8)
}

func TestCompositeFrame_MissingEntryContributesNothing(t *testing.T) {
	tl := &models.Timeline{
		Tracks: []models.Track{{
			ID:    "video-1",
			Type:  models.TrackTypeVideo,
			Clips: []models.Clip{videoClip("v1", 0, 5)},
		}},
	}

	dst := image.NewRGBA(image.Rect(0, 0, 32, 18))
	assert.NoError(t, CompositeFrame(context.Background(), dst, 1, tl, Entries{}))
}

func TestFadeOpacity(t *testing.T) {
	clip := &models.Clip{StartTime: 1, Duration: 4}
	props := &models.ClipProperties{FadeInDuration: 1, FadeOutDuration: 2}

	assert.InDelta(t, 0.0, fadeOpacity(clip, props, 1.0), 1e-9)
	assert.InDelta(t, 0.5, fadeOpacity(clip, props, 1.5), 1e-9)
	assert.InDelta(t, 1.0, fadeOpacity(clip, props, 2.5), 1e-9)
	assert.InDelta(t, 0.5, fadeOpacity(clip, props, 4.0), 1e-9)
	assert.InDelta(t, 0.0, fadeOpacity(clip, props, 5.0), 1e-9)
}

func TestOverlayZoomInGrowsWithProgress(t *testing.T) {
	src := newSolidSource(color.RGBA{G: 200, A: 255})
	clip := models.Clip{
		ID:        "o1",
		Type:      models.TrackTypeOverlay,
		StartTime: 0,
		Duration:  10,
		Properties: models.ClipProperties{
			Animation: models.OverlayAnimationZoomIn,
			PositionX: 50, PositionY: 50,
			Scale: 0.2, Opacity: 1,
		},
	}
	tl := &models.Timeline{Tracks: []models.Track{{
		ID: "overlay-1", Type: models.TrackTypeOverlay, Clips: []models.Clip{clip},
	}}}
	entries := Entries{"o1": src}

	countGreen := func(at float64) int {
		dst := image.NewRGBA(image.Rect(0, 0, 160, 90))
		require.NoError(t, CompositeFrame(context.Background(), dst, at, tl, entries))
		n := 0
		for i := 0; i < len(dst.Pix); i += 4 {
			if dst.Pix[i+1] > 100 {
				n++
			}
		}
		return n
	}

	early := countGreen(0.5)
	late := countGreen(9.5)
	assert.Greater(t, early, 0)
	assert.Greater(t, late, early, "zoomIn overlay must cover more pixels later in the clip")
}
