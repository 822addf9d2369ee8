package export

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/clipforge/clipforge/internal/compositor"
	"github.com/clipforge/clipforge/internal/decoder"
	"github.com/clipforge/clipforge/pkg/models"
)

// MediaElement is one opened playback surface for a clip during a
// capture-stream session. The driver owns its play/pause/seek state in
// lock-step with the simulation clock and must Close it on every exit
// path.
type MediaElement interface {
	Play()
	Pause()
	// CurrentTime is the element's playhead in source-media seconds.
	CurrentTime() float64
	Seek(seconds float64)
	// Frame returns the raster at the current playhead.
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// MediaOpener opens media elements for clips at session start
type MediaOpener interface {
	Open(ctx context.Context, clip *models.Clip, media *models.MediaFile) (MediaElement, error)
}

// decoderElement adapts a FrameDecoder into a MediaElement. The playhead
// advances with wall time while playing, mirroring a real-time media
// element; the drift-resync logic in the capture driver corrects it
// against the simulation clock.
type decoderElement struct {
	dec *decoder.FrameDecoder

	mu         sync.Mutex
	playing    bool
	playhead   float64
	lastUpdate time.Time
}

// NewDecoderElement wraps a frame decoder as a playback element. The
// element takes ownership of the decoder.
func NewDecoderElement(dec *decoder.FrameDecoder) MediaElement {
	return &decoderElement{dec: dec}
}

func (e *decoderElement) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playing {
		e.playing = true
		e.lastUpdate = time.Now()
	}
}

func (e *decoderElement) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.advanceLocked()
	e.playing = false
}

func (e *decoderElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.advanceLocked()
	return e.playhead
}

func (e *decoderElement) Seek(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playhead = seconds
	e.lastUpdate = time.Now()
}

func (e *decoderElement) advanceLocked() {
	if e.playing {
		now := time.Now()
		e.playhead += now.Sub(e.lastUpdate).Seconds()
		e.lastUpdate = now
	}
}

func (e *decoderElement) Frame(ctx context.Context) (image.Image, error) {
	frame, err := e.dec.GetFrameAtTime(ctx, e.CurrentTime())
	if err != nil {
		return nil, err
	}
	// The pixel buffer stays reachable through the returned image; the
	// handle itself is released immediately.
	img := frame.Image()
	frame.Close()
	return img, nil
}

func (e *decoderElement) Close() error {
	e.dec.Close()
	return nil
}

// StillElement serves one fixed raster, used for image media. Playback
// controls only move a nominal playhead so drift checks stay quiet.
type StillElement struct {
	Img image.Image

	mu       sync.Mutex
	playhead float64
}

func (e *StillElement) Play()  {}
func (e *StillElement) Pause() {}

func (e *StillElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playhead
}

func (e *StillElement) Seek(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playhead = seconds
}

func (e *StillElement) Frame(ctx context.Context) (image.Image, error) {
	return e.Img, nil
}

func (e *StillElement) Close() error { return nil }

// elementSource adapts a MediaElement into a compositor FrameSource: the
// compositor asks for a source time, but a playing element serves
// whatever its playhead holds — that is the capture model.
type elementSource struct {
	el MediaElement
}

func (s elementSource) FrameAt(ctx context.Context, seconds float64) (image.Image, error) {
	return s.el.Frame(ctx)
}

// DecoderSource adapts a FrameDecoder directly into a FrameSource for the
// frame-exact paths, where the requested time is authoritative.
type DecoderSource struct {
	Dec *decoder.FrameDecoder
}

func (s DecoderSource) FrameAt(ctx context.Context, seconds float64) (image.Image, error) {
	frame, err := s.Dec.GetFrameAtTime(ctx, seconds)
	if err != nil {
		return nil, err
	}
	img := frame.Image()
	frame.Close()
	return img, nil
}

var _ compositor.FrameSource = DecoderSource{}
