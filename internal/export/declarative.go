package export

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/clipforge/clipforge/internal/compositor"
	"github.com/clipforge/clipforge/internal/renderer"
	"github.com/clipforge/clipforge/pkg/models"
)

// AudioResolver materializes a clip's audio into a scratch file the
// renderer's mux pass can read. A nil resolver skips audio entirely.
type AudioResolver func(ctx context.Context, clip *models.Clip, media *models.MediaFile) (string, error)

// DeclarativeOptions tunes one declarative export
type DeclarativeOptions struct {
	Width    int
	Height   int
	FPS      float64
	Format   string // "mp4" or "webm"
	CRF      int
	Progress func(int)

	ResolveAudio AudioResolver
}

// DeclarativeDriver exports a timeline by converting it into frame-indexed
// sequences and delegating to the frame-exact renderer. It has no
// wall-clock dependency: every time value is rounded to an integer output
// frame up front.
type DeclarativeDriver struct {
	renderer *renderer.Renderer
}

// NewDeclarativeDriver wires a declarative driver around a renderer
func NewDeclarativeDriver(r *renderer.Renderer) *DeclarativeDriver {
	return &DeclarativeDriver{renderer: r}
}

// Export builds the composition and renders it. Progress is reported as
// renderedFrames/totalFrames capped at 99 until the renderer completes.
func (d *DeclarativeDriver) Export(ctx context.Context, tl *models.Timeline, entries compositor.Entries, opts DeclarativeOptions) (*models.ExportResult, error) {
	if ctx.Err() != nil {
		return nil, ErrAborted
	}

	comp, err := d.buildComposition(ctx, tl, entries, opts)
	if err != nil {
		return nil, err
	}

	progress := newProgressReporter(opts.Progress)
	result, err := d.renderer.Render(ctx, comp, func(done, total int) {
		p := done * 100 / total
		if p > 99 {
			p = 99
		}
		progress.report(p)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrAborted
		}
		return nil, err
	}

	progress.report(100)
	return result, nil
}

// buildComposition converts the timeline model into frame-indexed
// sequences: transition-outgoing pairs, main video, overlay media, text,
// and audio, each placed by rounding its seconds to output frames.
func (d *DeclarativeDriver) buildComposition(ctx context.Context, tl *models.Timeline, entries compositor.Entries, opts DeclarativeOptions) (*renderer.Composition, error) {
	toFrames := func(seconds float64) int {
		return int(math.Round(seconds * opts.FPS))
	}

	comp := &renderer.Composition{
		Width:          opts.Width,
		Height:         opts.Height,
		FPS:            opts.FPS,
		DurationFrames: toFrames(tl.TotalDuration()),
		Format:         opts.Format,
		CRF:            opts.CRF,
	}

	for i := range tl.Tracks {
		track := &tl.Tracks[i]
		if track.Muted {
			continue
		}

		for j := range track.Clips {
			clip := &track.Clips[j]
			from := toFrames(clip.StartTime)
			frames := toFrames(clip.Duration)
			if frames <= 0 {
				continue
			}

			switch track.Type {
			case models.TrackTypeVideo:
				seq := renderer.Sequence{
					Kind:      renderer.SequenceVideo,
					FromFrame: from,
					Frames:    frames,
					Clip:      clip,
					Source:    entries[clip.ID],
				}

				if tr := tl.IncomingTransition(clip.ID); tr != nil && tr.Kind != models.TransitionNone {
					transitionFrames := toFrames(tr.Duration)
					if transitionFrames > 0 {
						seq.TransitionKind = tr.Kind
						seq.TransitionFrames = transitionFrames

						if outgoing := tl.FindClip(tr.FromClipID); outgoing != nil {
							comp.Sequences = append(comp.Sequences, renderer.Sequence{
								Kind:             renderer.SequenceTransitionOutgoing,
								FromFrame:        from,
								Frames:           minFrames(transitionFrames, comp.DurationFrames-from),
								Clip:             outgoing,
								Source:           entries[outgoing.ID],
								TransitionKind:   tr.Kind,
								TransitionFrames: transitionFrames,
							})
						}
					}
				}
				comp.Sequences = append(comp.Sequences, seq)

			case models.TrackTypeOverlay:
				comp.Sequences = append(comp.Sequences, renderer.Sequence{
					Kind:      renderer.SequenceOverlay,
					FromFrame: from,
					Frames:    frames,
					Clip:      clip,
					Source:    entries[clip.ID],
				})

			case models.TrackTypeText:
				comp.Sequences = append(comp.Sequences, renderer.Sequence{
					Kind:      renderer.SequenceText,
					FromFrame: from,
					Frames:    frames,
					Clip:      clip,
				})

			case models.TrackTypeAudio:
				if opts.ResolveAudio == nil || clip.MediaID == "" {
					continue
				}
				media := tl.MediaFileByID(clip.MediaID)
				if media == nil {
					continue
				}
				path, err := opts.ResolveAudio(ctx, clip, media)
				if err != nil {
					return nil, fmt.Errorf("failed to resolve audio for clip %s: %w", clip.ID, err)
				}
				props := clip.Properties
				props.ApplyDefaults()
				comp.Sequences = append(comp.Sequences, renderer.Sequence{
					Kind:      renderer.SequenceAudio,
					FromFrame: from,
					Frames:    frames,
					Clip:      clip,
					AudioPath: path,
					Volume:    props.Volume,
				})
			}
		}
	}

	return comp, nil
}

func minFrames(a, b int) int {
	if a < b {
		return a
	}
	return b
}
