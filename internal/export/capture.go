// Package export holds the two export drivers: the capture-stream driver,
// which runs a wall-clock simulation of timeline playback into a stream
// recorder, and the declarative driver, which pre-resolves the timeline
// into frame-indexed sequences for the frame-exact renderer. Both share
// the compositor and transition math, so a given logical progress paints
// the same pixels on either path.
package export

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clipforge/clipforge/internal/compositor"
	"github.com/clipforge/clipforge/internal/metrics"
	"github.com/clipforge/clipforge/pkg/models"
)

const (
	// driftThreshold is the playhead drift, in seconds, beyond which a
	// media element is forcibly reseeked to the simulation clock.
	driftThreshold = 0.2

	// watchdogSlack is added to the timeline duration as a hard stop
	// against stalled media elements.
	watchdogSlack = 3 * time.Second

	// Progress ceilings for the recording phase. Native MP4 recording is
	// essentially done at stop; a WebM recording still owes the remux,
	// which consumes the remaining budget (remuxFloor..100).
	ceilingMP4  = 99
	ceilingWebM = 65
	remuxFloor  = 68
)

// RecorderOptions configures one recording session
type RecorderOptions struct {
	Mime   string
	Width  int
	Height int
	FPS    float64
}

// Recorder is the stream-recording backend behind the capture driver.
// Errors() surfaces internal recorder failures asynchronously.
type Recorder interface {
	Supports(mime string) bool
	Start(ctx context.Context, opts RecorderOptions) error
	WriteFrame(pix []byte) error
	// Stop assembles the buffered chunks into one container blob.
	Stop(ctx context.Context) ([]byte, error)
	Errors() <-chan error
}

// Remuxer converts a recorded non-MP4 container into the MP4 deliverable,
// reporting fractional progress in [0,1].
type Remuxer interface {
	Remux(ctx context.Context, data []byte, quality string, progress func(float64)) ([]byte, error)
}

// AudioInput is one clip's contribution to the shared audio mix: a source
// file, its placement on the output timeline, and the clip's gain.
type AudioInput struct {
	Path     string
	Start    float64 // timeline seconds
	Trim     float64 // seconds trimmed off the source head
	Duration float64
	Volume   float64
}

// AudioMixer combines the per-clip audio inputs into a recorded container
// blob without touching its video stream.
type AudioMixer interface {
	Mix(ctx context.Context, recording []byte, mime string, inputs []AudioInput) ([]byte, error)
}

// CaptureOptions tunes one capture-stream export
type CaptureOptions struct {
	Width    int
	Height   int
	FPS      float64
	Quality  string
	Progress func(int)

	// ResolveAudio materializes clip audio for the mix; nil skips audio.
	ResolveAudio AudioResolver
}

// CaptureDriver exports a timeline by real-time simulated playback into a
// stream recorder, mixing timeline audio into the recording and remuxing
// afterwards when the negotiated container is not already MP4.
type CaptureDriver struct {
	recorder Recorder
	remuxer  Remuxer
	mixer    AudioMixer
}

// NewCaptureDriver wires a capture driver from its backends. mixer may be
// nil for video-only exports.
func NewCaptureDriver(recorder Recorder, remuxer Remuxer, mixer AudioMixer) *CaptureDriver {
	return &CaptureDriver{recorder: recorder, remuxer: remuxer, mixer: mixer}
}

// Export runs the full capture-stream state machine:
// Idle → Recording → Remuxing? → Done | Aborted | Failed.
// Opened media elements are torn down on every exit path.
func (d *CaptureDriver) Export(ctx context.Context, tl *models.Timeline, opener MediaOpener, opts CaptureOptions) (*models.ExportResult, error) {
	// Eager cancellation check before any resource is opened.
	if ctx.Err() != nil {
		return nil, ErrAborted
	}
	if opts.FPS <= 0 || opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid capture parameters %dx%d@%v", opts.Width, opts.Height, opts.FPS)
	}

	elements, entries, err := openElements(ctx, tl, opener)
	if err != nil {
		return nil, err
	}
	var once sync.Once
	teardown := func() {
		once.Do(func() {
			for id, el := range elements {
				el.Pause()
				if err := el.Close(); err != nil {
					log.Warn().Err(err).Str("clip_id", id).Msg("failed to close media element")
				}
			}
		})
	}
	defer teardown()

	mime := negotiateMime(d.recorder)
	ceiling := ceilingWebM
	if isMP4(mime) {
		ceiling = ceilingMP4
	}

	if err := d.recorder.Start(ctx, RecorderOptions{
		Mime: mime, Width: opts.Width, Height: opts.Height, FPS: opts.FPS,
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecorder, err)
	}

	progress := newProgressReporter(opts.Progress)

	if err := d.record(ctx, tl, elements, entries, opts, ceiling, progress); err != nil {
		d.recorder.Stop(context.WithoutCancel(ctx))
		return nil, err
	}

	data, err := d.recorder.Stop(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecorder, err)
	}

	// Media elements are not needed for the mix and remux legs.
	teardown()

	// Timeline audio is mixed into the recording before any remux, so both
	// container legs carry it. The mix is best-effort: when it fails the
	// video is delivered silent rather than failing the export.
	if d.mixer != nil && opts.ResolveAudio != nil {
		if inputs := collectAudio(ctx, tl, opts.ResolveAudio); len(inputs) > 0 {
			mixed, err := d.mixer.Mix(ctx, data, mime, inputs)
			if err != nil {
				log.Warn().Err(err).Msg("audio mix failed, delivering silent export")
			} else {
				data = mixed
			}
		}
	}

	result := &models.ExportResult{Data: data, MimeType: mime}
	if !isMP4(mime) {
		remuxed, err := d.remuxer.Remux(ctx, data, opts.Quality, func(f float64) {
			progress.report(remuxFloor + int(f*float64(100-remuxFloor)))
		})
		if err != nil {
			// Remux failures propagate with the tool's own message.
			return nil, err
		}
		result = &models.ExportResult{Data: remuxed, MimeType: "video/mp4"}
	}

	progress.report(100)
	return result, nil
}

// record runs the simulation tick loop until the timeline is exhausted,
// the watchdog fires, the recorder fails, or the context is cancelled.
func (d *CaptureDriver) record(ctx context.Context, tl *models.Timeline, elements map[string]MediaElement, entries compositor.Entries, opts CaptureOptions, ceiling int, progress *progressReporter) error {
	total := tl.TotalDuration()
	if total <= 0 {
		return nil
	}

	tick := time.NewTicker(time.Duration(float64(time.Second) / opts.FPS))
	defer tick.Stop()
	watchdog := time.NewTimer(time.Duration(total*float64(time.Second)) + watchdogSlack)
	defer watchdog.Stop()

	dst := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ErrAborted

		case err := <-d.recorder.Errors():
			return fmt.Errorf("%w: %v", ErrRecorder, err)

		case <-watchdog.C:
			log.Warn().Float64("duration", total).Msg("capture watchdog fired, force-stopping recording")
			return nil

		case <-tick.C:
			elapsed := time.Since(start).Seconds()
			if elapsed >= total {
				return nil
			}

			syncPlayback(tl, elements, elapsed)

			frameStart := time.Now()
			if err := compositor.CompositeFrame(ctx, dst, elapsed, tl, entries); err != nil {
				return err
			}
			metrics.RecordFrameRendered("capture", time.Since(frameStart).Seconds())
			if err := d.recorder.WriteFrame(dst.Pix); err != nil {
				return fmt.Errorf("%w: %v", ErrRecorder, err)
			}

			progress.report(int(elapsed / total * float64(ceiling)))
		}
	}
}

// syncPlayback plays, pauses and drift-corrects every media element
// against the simulation clock.
func syncPlayback(tl *models.Timeline, elements map[string]MediaElement, elapsed float64) {
	for id, el := range elements {
		clip := tl.FindClip(id)
		if clip == nil {
			continue
		}
		if !clip.ActiveAt(elapsed) {
			el.Pause()
			continue
		}

		el.Play()
		want := clip.SourceTime(elapsed)
		if math.Abs(el.CurrentTime()-want) > driftThreshold {
			el.Seek(want)
		}
	}
}

// collectAudio resolves one audio input per clip on the non-muted audio
// tracks. Resolution is best-effort per clip: a clip whose audio cannot be
// materialized is skipped, never fatal.
func collectAudio(ctx context.Context, tl *models.Timeline, resolve AudioResolver) []AudioInput {
	var inputs []AudioInput

	for i := range tl.Tracks {
		track := &tl.Tracks[i]
		if track.Type != models.TrackTypeAudio || track.Muted {
			continue
		}
		for j := range track.Clips {
			clip := &track.Clips[j]
			if clip.MediaID == "" || clip.Duration <= 0 {
				continue
			}
			media := tl.MediaFileByID(clip.MediaID)
			if media == nil {
				continue
			}

			path, err := resolve(ctx, clip, media)
			if err != nil {
				log.Warn().Err(err).Str("clip_id", clip.ID).Msg("skipping audio clip")
				continue
			}

			props := clip.Properties
			props.ApplyDefaults()
			inputs = append(inputs, AudioInput{
				Path:     path,
				Start:    clip.StartTime,
				Trim:     clip.TrimStart,
				Duration: clip.Duration,
				Volume:   props.Volume,
			})
		}
	}

	return inputs
}

// openElements opens a media element for every video-bearing clip. On any
// open failure, already-opened elements are closed before returning.
func openElements(ctx context.Context, tl *models.Timeline, opener MediaOpener) (map[string]MediaElement, compositor.Entries, error) {
	elements := make(map[string]MediaElement)
	entries := make(compositor.Entries)

	for i := range tl.Tracks {
		track := &tl.Tracks[i]
		if track.Type != models.TrackTypeVideo && track.Type != models.TrackTypeOverlay {
			continue
		}
		for j := range track.Clips {
			clip := &track.Clips[j]
			if clip.MediaID == "" {
				continue
			}
			media := tl.MediaFileByID(clip.MediaID)
			if media == nil {
				continue
			}

			el, err := opener.Open(ctx, clip, media)
			if err != nil {
				for _, opened := range elements {
					opened.Close()
				}
				return nil, nil, fmt.Errorf("failed to open media for clip %s: %w", clip.ID, err)
			}
			elements[clip.ID] = el
			entries[clip.ID] = elementSource{el: el}
		}
	}

	return elements, entries, nil
}

// progressReporter keeps the reported integer progress monotonically
// non-decreasing.
type progressReporter struct {
	cb   func(int)
	last int
}

func newProgressReporter(cb func(int)) *progressReporter {
	return &progressReporter{cb: cb, last: -1}
}

func (p *progressReporter) report(v int) {
	if p.cb == nil {
		return
	}
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	if v <= p.last {
		return
	}
	p.last = v
	p.cb(v)
}
