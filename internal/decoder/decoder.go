package decoder

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clipforge/clipforge/internal/metrics"
)

const (
	// defaultCacheCapacity bounds the decoded-frame cache.
	defaultCacheCapacity = 5
	// defaultTimeout bounds how long one frame request may wait for the
	// pipeline before failing with ErrDecodeTimeout.
	defaultTimeout = 5 * time.Second
	// matchTolerance is the half-window, in track ticks, within which a
	// delivered frame is accepted as answering the pending request.
	matchTolerance = 1000
	// maxForwardGapSeconds is the largest forward seek served without
	// resetting the pipeline; beyond it, decoding the intervening span
	// would cost more than a fresh keyframe seek.
	maxForwardGapSeconds = 2
)

// Options tunes a FrameDecoder. Zero values select the defaults.
type Options struct {
	CacheCapacity int
	Timeout       time.Duration
}

// FrameDecoder serves frame-at-timestamp requests against one MP4 source.
// One instance supports one in-flight request at a time; a second call
// while one is pending fails with ErrDecoderBusy rather than corrupting
// the pending state.
type FrameDecoder struct {
	mu     sync.Mutex
	src    io.ReadSeeker
	track  *VideoTrack
	pipe   Pipeline
	cache  *frameCache
	opts   Options
	closed bool
	busy   bool

	configured  bool
	hasDecoded  bool
	lastDecoded int64 // PTS ticks of the last resolved frame

	pendingMu sync.Mutex
	pending   *pendingRequest
}

type pendingRequest struct {
	target int64
	ch     chan *Frame
}

// New parses the container from src and prepares a decoder using the given
// pipeline. It fails with ErrNoVideoTrack when the container carries none.
func New(src io.ReadSeeker, pipe Pipeline, opts Options) (*FrameDecoder, error) {
	track, err := ParseVideoTrack(src)
	if err != nil {
		return nil, err
	}
	return newWithTrack(src, track, pipe, opts), nil
}

// newWithTrack wires a decoder around an already-parsed track
func newWithTrack(src io.ReadSeeker, track *VideoTrack, pipe Pipeline, opts Options) *FrameDecoder {
	if opts.CacheCapacity <= 0 {
		opts.CacheCapacity = defaultCacheCapacity
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &FrameDecoder{
		src:   src,
		track: track,
		pipe:  pipe,
		cache: newFrameCache(opts.CacheCapacity),
		opts:  opts,
	}
}

// Track exposes the parsed video track metadata
func (d *FrameDecoder) Track() *VideoTrack {
	return d.track
}

// FrameRate returns the source's derived native frame rate
func (d *FrameDecoder) FrameRate() float64 {
	return d.track.FrameRate()
}

// GetFrameAtTime returns the frame nearest to the given playback time.
// The returned handle is a clone; the caller must Close it. A timestamp
// beyond the last sample resolves to the last sample's frame.
func (d *FrameDecoder) GetFrameAtTime(ctx context.Context, seconds float64) (*Frame, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrDecoderClosed
	}
	if d.busy {
		d.mu.Unlock()
		return nil, ErrDecoderBusy
	}
	d.busy = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
	}()

	if len(d.track.Samples) == 0 {
		return nil, ErrNoVideoTrack
	}

	targetTicks := int64(math.Round(seconds * float64(d.track.Timescale)))

	// A timestamp past the last sample resolves to the last sample's
	// frame. Clamp the match/cache target to its PTS: the delivered frame
	// can never reach the raw target, which would otherwise time out.
	if last := d.track.Samples[len(d.track.Samples)-1].PTS; targetTicks > last {
		targetTicks = last
	}

	// Cache hit: anything within half a native frame duration of the
	// target is the same output frame.
	if cached := d.cache.lookup(targetTicks, d.track.FrameDurationTicks()/2); cached != nil {
		metrics.RecordFrameCacheAccess(true)
		return cached.Clone(), nil
	}
	metrics.RecordFrameCacheAccess(false)
	decodeStart := time.Now()

	// Nearest sample by presentation time; ties go to the lowest index.
	target := 0
	bestDist := absInt64(d.track.Samples[0].PTS - targetTicks)
	for i := 1; i < len(d.track.Samples); i++ {
		dist := absInt64(d.track.Samples[i].PTS - targetTicks)
		if dist < bestDist {
			bestDist = dist
			target = i
		}
	}

	// Nearest preceding keyframe at or before the target sample.
	start := target
	for start > 0 && !d.track.Samples[start].Key {
		start--
	}

	if err := d.prepare(targetTicks); err != nil {
		return nil, err
	}

	ch := make(chan *Frame, 1)
	d.setPending(&pendingRequest{target: targetTicks, ch: ch})
	defer d.setPending(nil)

	// Feed the keyframe through the target in order, then flush. The
	// pipeline is not continued incrementally across calls: every call
	// decodes from its keyframe.
	for i := start; i <= target; i++ {
		sample := d.track.Samples[i]
		payload, err := d.readSample(sample)
		if err != nil {
			return nil, fmt.Errorf("failed to read sample at %d ticks: %w", sample.PTS, err)
		}
		unit := SampleUnit{
			Data:     payload,
			PTS:      sample.PTS,
			Duration: sample.Duration,
			Key:      sample.Key,
		}
		if err := d.pipe.Feed(ctx, unit); err != nil {
			return nil, fmt.Errorf("decode error: %w", err)
		}
	}
	if err := d.pipe.Flush(ctx); err != nil {
		return nil, fmt.Errorf("decode error: %w", err)
	}

	timer := time.NewTimer(d.opts.Timeout)
	defer timer.Stop()

	select {
	case frame := <-ch:
		d.hasDecoded = true
		d.lastDecoded = frame.PTS()
		d.cache.insert(targetTicks, frame)
		metrics.DecodeFrameDuration.Observe(time.Since(decodeStart).Seconds())
		return frame.Clone(), nil
	case <-timer.C:
		return nil, ErrDecodeTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// prepare configures the pipeline on first use and resets it when the
// request cannot be served by continuing forward from the last decode.
func (d *FrameDecoder) prepare(targetTicks int64) error {
	if !d.configured {
		cfg := PipelineConfig{
			Codec:       d.track.Codec,
			CodecConfig: d.track.CodecConfig,
			Width:       int(d.track.Width),
			Height:      int(d.track.Height),
			Timescale:   d.track.Timescale,
		}
		if err := d.pipe.Configure(cfg, d.onFrame); err != nil {
			return fmt.Errorf("decode error: %w", err)
		}
		d.configured = true
		return nil
	}

	needsReset := !d.hasDecoded ||
		targetTicks < d.lastDecoded ||
		targetTicks-d.lastDecoded > int64(maxForwardGapSeconds)*int64(d.track.Timescale)
	if needsReset {
		log.Debug().
			Int64("target_ticks", targetTicks).
			Int64("last_decoded", d.lastDecoded).
			Msg("resetting decode pipeline")
		d.pipe.Reset()
	}

	return nil
}

// onFrame is the pipeline output callback. Frames arriving with no pending
// request, or before the requested timestamp, are closed immediately; the
// first frame at-or-after the target (or within tolerance) resolves it.
func (d *FrameDecoder) onFrame(frame *Frame) {
	d.pendingMu.Lock()
	p := d.pending
	d.pendingMu.Unlock()

	if p == nil {
		frame.Close()
		return
	}

	pts := frame.PTS()
	if pts >= p.target || absInt64(pts-p.target) <= matchTolerance {
		select {
		case p.ch <- frame:
			d.pendingMu.Lock()
			d.pending = nil
			d.pendingMu.Unlock()
		default:
			frame.Close()
		}
		return
	}

	frame.Close()
}

func (d *FrameDecoder) setPending(p *pendingRequest) {
	d.pendingMu.Lock()
	d.pending = p
	d.pendingMu.Unlock()
}

func (d *FrameDecoder) readSample(s VideoSample) ([]byte, error) {
	if _, err := d.src.Seek(s.Offset, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, s.Size)
	if _, err := io.ReadFull(d.src, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close releases every cached frame, closes the pipeline and clears the
// sample state. Safe to call on a decoder that never finished
// initialization, and safe to call twice.
func (d *FrameDecoder) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true

	if d.cache != nil {
		d.cache.clear()
	}
	if d.pipe != nil && d.configured {
		if err := d.pipe.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close decode pipeline")
		}
	}
	if d.track != nil {
		d.track.Samples = nil
	}
	d.setPending(nil)
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// frameCache is the bounded decoded-frame cache. Eviction is strict FIFO
// over insertion order (deliberately not LRU): lookups never reorder
// entries, and the oldest insertion is always the one evicted.
type frameCache struct {
	capacity int
	entries  []cacheEntry
}

type cacheEntry struct {
	key   int64 // quantized source position in track ticks
	frame *Frame
}

func newFrameCache(capacity int) *frameCache {
	return &frameCache{capacity: capacity}
}

// lookup returns the cached frame whose key is within tolerance ticks of
// the target, or nil. The cache retains ownership of the returned frame;
// callers must clone before handing it out.
func (c *frameCache) lookup(target, tolerance int64) *Frame {
	for i := range c.entries {
		if absInt64(c.entries[i].key-target) <= tolerance {
			return c.entries[i].frame
		}
	}
	return nil
}

// insert stores a frame, taking ownership, and evicts the oldest insertion
// once capacity is reached. The evicted frame's resource is released.
func (c *frameCache) insert(key int64, frame *Frame) {
	if len(c.entries) >= c.capacity {
		c.entries[0].frame.Close()
		c.entries = c.entries[1:]
	}
	c.entries = append(c.entries, cacheEntry{key: key, frame: frame})
}

// clear releases every cached frame
func (c *frameCache) clear() {
	for i := range c.entries {
		c.entries[i].frame.Close()
	}
	c.entries = nil
}
