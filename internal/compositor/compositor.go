package compositor

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/clipforge/clipforge/internal/timing"
	"github.com/clipforge/clipforge/internal/transition"
	"github.com/clipforge/clipforge/pkg/models"
)

// zoomInGrowth is the scale gained by an overlay's zoomIn animation over
// the full clip duration.
const zoomInGrowth = 0.15

// CompositeFrame draws the fully-resolved output frame at currentTime onto
// dst. Layer order is a correctness invariant: video tracks first, then
// overlay tracks, then text tracks; later layers always composite over
// earlier ones.
func CompositeFrame(ctx context.Context, dst *image.RGBA, currentTime float64, tl *models.Timeline, entries Entries) error {
	fillBlack(dst)

	if err := drawVideoLayer(ctx, dst, currentTime, tl, entries); err != nil {
		return err
	}
	if err := drawOverlayLayer(ctx, dst, currentTime, tl, entries); err != nil {
		return err
	}
	drawTextLayer(dst, currentTime, tl)
	return nil
}

// drawVideoLayer renders every active video clip, pairing clips joined by
// an in-progress transition so the outgoing clip is drawn exactly once.
func drawVideoLayer(ctx context.Context, dst *image.RGBA, currentTime float64, tl *models.Timeline, entries Entries) error {
	drawn := make(map[string]bool)

	for i := range tl.Tracks {
		track := &tl.Tracks[i]
		if track.Type != models.TrackTypeVideo || track.Muted {
			continue
		}

		for _, clip := range track.ActiveClips(currentTime) {
			if drawn[clip.ID] {
				continue
			}

			tr := tl.IncomingTransition(clip.ID)
			if tr != nil && tr.Kind != models.TransitionNone {
				progress := transition.Progress(currentTime, clip.StartTime, tr.Duration)
				if progress < 1 {
					if err := drawTransitionPair(ctx, dst, currentTime, tl, entries, clip, tr, progress, drawn); err != nil {
						return err
					}
					continue
				}
			}

			if err := drawClipFrame(ctx, dst, currentTime, clip, entries, transition.Identity()); err != nil {
				return err
			}
			drawn[clip.ID] = true
		}
	}
	return nil
}

func drawTransitionPair(ctx context.Context, dst *image.RGBA, currentTime float64, tl *models.Timeline, entries Entries, incoming *models.Clip, tr *models.Transition, progress float64, drawn map[string]bool) error {
	pair := transition.ComputePair(tr.Kind, progress)

	if outgoing := tl.FindClip(tr.FromClipID); outgoing != nil {
		// The outgoing clip may already have ended inside the transition
		// window; hold its last frame in that case.
		at := math.Min(currentTime, outgoing.EndTime())
		if err := drawClipFrameAt(ctx, dst, outgoing, at, entries, pair.Outgoing); err != nil {
			return err
		}
		drawn[outgoing.ID] = true
	}

	if err := drawClipFrame(ctx, dst, currentTime, incoming, entries, pair.Incoming); err != nil {
		return err
	}
	drawn[incoming.ID] = true

	DrawDecoration(dst, pair.Overlay)
	return nil
}

func drawClipFrame(ctx context.Context, dst *image.RGBA, currentTime float64, clip *models.Clip, entries Entries, style transition.Style) error {
	return drawClipFrameAt(ctx, dst, clip, currentTime, entries, style)
}

func drawClipFrameAt(ctx context.Context, dst *image.RGBA, clip *models.Clip, timelineTime float64, entries Entries, style transition.Style) error {
	src, ok := entries[clip.ID]
	if !ok {
		// A clip with no opened media contributes nothing; the export
		// session decides whether that is an error at open time.
		return nil
	}

	frame, err := src.FrameAt(ctx, clip.SourceTime(timelineTime))
	if err != nil {
		return fmt.Errorf("failed to read frame for clip %s: %w", clip.ID, err)
	}

	DrawStyled(dst, frame, style)
	return nil
}

// drawOverlayLayer renders overlay-media clips: fade windows, percentage
// position, rotation, scale, and the optional zoomIn growth.
func drawOverlayLayer(ctx context.Context, dst *image.RGBA, currentTime float64, tl *models.Timeline, entries Entries) error {
	for i := range tl.Tracks {
		track := &tl.Tracks[i]
		if track.Type != models.TrackTypeOverlay || track.Muted {
			continue
		}

		for _, clip := range track.ActiveClips(currentTime) {
			src, ok := entries[clip.ID]
			if !ok {
				continue
			}
			if err := DrawOverlayClip(ctx, dst, clip, currentTime, src); err != nil {
				return err
			}
		}
	}
	return nil
}

// DrawOverlayClip resolves an overlay clip's fade windows, position,
// rotation, scale and zoomIn growth at currentTime and draws it.
func DrawOverlayClip(ctx context.Context, dst *image.RGBA, clip *models.Clip, currentTime float64, src FrameSource) error {
	props := clip.Properties
	props.ApplyDefaults()

	opacity := props.Opacity * fadeOpacity(clip, &props, currentTime)
	if opacity <= 0 {
		return nil
	}

	scale := props.Scale
	if props.Animation == models.OverlayAnimationZoomIn {
		scale *= 1 + zoomInGrowth*clip.Progress(currentTime)
	}

	frame, err := src.FrameAt(ctx, clip.SourceTime(currentTime))
	if err != nil {
		return fmt.Errorf("failed to read frame for clip %s: %w", clip.ID, err)
	}

	drawOverlayMedia(dst, frame, props.PositionX, props.PositionY, scale, props.Rotation, opacity)
	return nil
}

func drawTextLayer(dst *image.RGBA, currentTime float64, tl *models.Timeline) {
	for i := range tl.Tracks {
		track := &tl.Tracks[i]
		if track.Type != models.TrackTypeText || track.Muted {
			continue
		}
		for _, clip := range track.ActiveClips(currentTime) {
			RenderTextClip(dst, clip, currentTime)
		}
	}
}

// fadeOpacity resolves the linear fade-in/fade-out ramp at currentTime.
// The ramps are measured from clip start and clip end and combine
// multiplicatively.
func fadeOpacity(clip *models.Clip, props *models.ClipProperties, currentTime float64) float64 {
	opacity := 1.0

	if props.FadeInDuration > 0 {
		opacity *= timing.Interpolate(currentTime-clip.StartTime,
			[2]float64{0, props.FadeInDuration}, [2]float64{0, 1},
			timing.InterpolateOptions{
				ExtrapolateLeft:  timing.ExtrapolateClamp,
				ExtrapolateRight: timing.ExtrapolateClamp,
			})
	}
	if props.FadeOutDuration > 0 {
		opacity *= timing.Interpolate(clip.EndTime()-currentTime,
			[2]float64{0, props.FadeOutDuration}, [2]float64{0, 1},
			timing.InterpolateOptions{
				ExtrapolateLeft:  timing.ExtrapolateClamp,
				ExtrapolateRight: timing.ExtrapolateClamp,
			})
	}

	return opacity
}
