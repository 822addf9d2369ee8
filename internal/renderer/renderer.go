// Package renderer is the frame-exact composition engine behind the
// declarative export driver. It renders a composition one frame index at a
// time with no wall-clock dependency: every layer's state is a pure
// function of the frame number, so identical compositions always produce
// identical output, frame for frame.
package renderer

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clipforge/clipforge/internal/compositor"
	"github.com/clipforge/clipforge/internal/metrics"
	"github.com/clipforge/clipforge/internal/transition"
	"github.com/clipforge/clipforge/pkg/models"
)

// SequenceKind orders sequences within one output frame. The order is a
// correctness invariant: transition-outgoing layers first, then the main
// video layer, then overlay media, then text. Audio never paints.
type SequenceKind int

const (
	SequenceTransitionOutgoing SequenceKind = iota
	SequenceVideo
	SequenceOverlay
	SequenceText
	SequenceAudio
)

// Sequence places one clip on the output frame axis
type Sequence struct {
	Kind      SequenceKind
	FromFrame int
	Frames    int

	Clip   *models.Clip
	Source compositor.FrameSource // nil for text and audio sequences

	// Incoming-transition state for video sequences, and the pairing for
	// transition-outgoing sequences.
	TransitionKind   models.TransitionKind
	TransitionFrames int

	// Audio sequences only: a scratch file holding the clip's audio.
	AudioPath string
	Volume    float64
}

// ActiveAt reports whether the sequence covers the given frame index
func (s *Sequence) ActiveAt(frame int) bool {
	return frame >= s.FromFrame && frame < s.FromFrame+s.Frames
}

// Composition is one complete render job
type Composition struct {
	Width          int
	Height         int
	FPS            float64
	DurationFrames int
	Format         string // "mp4" or "webm"
	CRF            int
	Sequences      []Sequence
}

// AudioSequences returns the sequences that feed the audio mux pass
func (c *Composition) AudioSequences() []Sequence {
	var out []Sequence
	for i := range c.Sequences {
		if c.Sequences[i].Kind == SequenceAudio {
			out = append(out, c.Sequences[i])
		}
	}
	return out
}

// FrameSink receives rendered raw RGBA frames in order and assembles the
// deliverable container.
type FrameSink interface {
	WriteFrame(pix []byte) error
	// Finish closes the stream and returns the deliverable.
	Finish(ctx context.Context) (*models.ExportResult, error)
	// Close tears the sink down without producing output; used on abort.
	Close() error
}

// SinkFactory opens a sink for one composition
type SinkFactory func(ctx context.Context, comp *Composition) (FrameSink, error)

// Progress reports rendered frames; totalFrames is constant per render
type Progress func(renderedFrames, totalFrames int)

// Renderer renders compositions through a sink
type Renderer struct {
	newSink SinkFactory
}

// New creates a renderer backed by the given sink factory
func New(factory SinkFactory) *Renderer {
	return &Renderer{newSink: factory}
}

// Render draws every frame of the composition in order and returns the
// assembled deliverable. Cancellation is honored between frames; the sink
// is torn down on every exit path.
func (r *Renderer) Render(ctx context.Context, comp *Composition, progress Progress) (*models.ExportResult, error) {
	if comp.Width <= 0 || comp.Height <= 0 {
		return nil, fmt.Errorf("invalid composition resolution %dx%d", comp.Width, comp.Height)
	}
	if comp.FPS <= 0 || comp.DurationFrames <= 0 {
		return nil, fmt.Errorf("invalid composition timing: fps=%v frames=%d", comp.FPS, comp.DurationFrames)
	}

	sink, err := r.newSink(ctx, comp)
	if err != nil {
		return nil, fmt.Errorf("failed to open render sink: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, comp.Width, comp.Height))

	for frame := 0; frame < comp.DurationFrames; frame++ {
		if err := ctx.Err(); err != nil {
			if cerr := sink.Close(); cerr != nil {
				log.Warn().Err(cerr).Msg("failed to close render sink after cancellation")
			}
			return nil, err
		}

		frameStart := time.Now()
		if err := r.renderFrame(ctx, dst, comp, frame); err != nil {
			sink.Close()
			return nil, err
		}
		metrics.RecordFrameRendered("declarative", time.Since(frameStart).Seconds())
		if err := sink.WriteFrame(dst.Pix); err != nil {
			sink.Close()
			return nil, fmt.Errorf("render sink rejected frame %d: %w", frame, err)
		}

		if progress != nil {
			progress(frame+1, comp.DurationFrames)
		}
	}

	return sink.Finish(ctx)
}

// renderFrame composites every sequence active at the frame index, in the
// fixed kind order.
func (r *Renderer) renderFrame(ctx context.Context, dst *image.RGBA, comp *Composition, frame int) error {
	fillBlack(dst)
	t := float64(frame) / comp.FPS

	for _, kind := range []SequenceKind{SequenceTransitionOutgoing, SequenceVideo, SequenceOverlay, SequenceText} {
		for i := range comp.Sequences {
			seq := &comp.Sequences[i]
			if seq.Kind != kind || !seq.ActiveAt(frame) {
				continue
			}
			if err := r.drawSequence(ctx, dst, seq, frame, t); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Renderer) drawSequence(ctx context.Context, dst *image.RGBA, seq *Sequence, frame int, t float64) error {
	local := frame - seq.FromFrame

	switch seq.Kind {
	case SequenceTransitionOutgoing:
		pair := transition.ComputePair(seq.TransitionKind, transitionProgress(local, seq.TransitionFrames))
		// Hold the outgoing clip's last frame once it has ended.
		at := math.Min(t, seq.Clip.EndTime())
		return drawVideoFrame(ctx, dst, seq, at, pair.Outgoing, nil)

	case SequenceVideo:
		style := transition.Identity()
		var decoration *transition.Overlay
		if seq.TransitionFrames > 0 && local < seq.TransitionFrames {
			pair := transition.ComputePair(seq.TransitionKind, transitionProgress(local, seq.TransitionFrames))
			style = pair.Incoming
			decoration = pair.Overlay
		}
		return drawVideoFrame(ctx, dst, seq, t, style, decoration)

	case SequenceOverlay:
		return compositor.DrawOverlayClip(ctx, dst, seq.Clip, t, seq.Source)

	case SequenceText:
		compositor.RenderTextClip(dst, seq.Clip, t)
	}
	return nil
}

func drawVideoFrame(ctx context.Context, dst *image.RGBA, seq *Sequence, timelineTime float64, style transition.Style, decoration *transition.Overlay) error {
	if seq.Source == nil {
		return nil
	}
	img, err := seq.Source.FrameAt(ctx, seq.Clip.SourceTime(timelineTime))
	if err != nil {
		return fmt.Errorf("failed to read frame for clip %s: %w", seq.Clip.ID, err)
	}
	compositor.DrawStyled(dst, img, style)
	compositor.DrawDecoration(dst, decoration)
	return nil
}

// transitionProgress maps a local frame index into the transition's [0,1]
// progress. It is the frame-indexed analogue of transition.Progress.
func transitionProgress(localFrame, transitionFrames int) float64 {
	if transitionFrames <= 0 {
		return 1
	}
	p := float64(localFrame) / float64(transitionFrames)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func fillBlack(dst *image.RGBA) {
	for i := range dst.Pix {
		if i%4 == 3 {
			dst.Pix[i] = 0xff
		} else {
			dst.Pix[i] = 0
		}
	}
}
