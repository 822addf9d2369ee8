package decoder

import (
	"bytes"
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePipeline synthesizes one frame per fed sample on Flush
type fakePipeline struct {
	mu      sync.Mutex
	cfg     PipelineConfig
	out     FrameOutput
	burst   []SampleUnit
	feeds   int
	flushes int
	resets  int
	closes  int

	silent     bool          // deliver nothing, to provoke timeouts
	blockFlush chan struct{} // when set, Flush waits until closed
}

func (f *fakePipeline) Configure(cfg PipelineConfig, out FrameOutput) error {
	f.cfg = cfg
	f.out = out
	return nil
}

func (f *fakePipeline) Feed(ctx context.Context, sample SampleUnit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeds++
	f.burst = append(f.burst, sample)
	return nil
}

func (f *fakePipeline) Flush(ctx context.Context) error {
	if f.blockFlush != nil {
		<-f.blockFlush
	}

	f.mu.Lock()
	burst := f.burst
	f.burst = nil
	f.flushes++
	out := f.out
	silent := f.silent
	f.mu.Unlock()

	if silent {
		return nil
	}
	for _, s := range burst {
		img := image.NewRGBA(image.Rect(0, 0, 2, 2))
		out(NewFrame(img, s.PTS, s.Duration))
	}
	return nil
}

func (f *fakePipeline) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.burst = nil
}

func (f *fakePipeline) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakePipeline) feedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.feeds
}

func (f *fakePipeline) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

// syntheticTrack builds a 30fps track at a 90kHz timescale with a keyframe
// every keyEvery samples (every sample when keyEvery <= 1).
func syntheticTrack(n int, keyEvery int) (*VideoTrack, *bytes.Reader) {
	const timescale = 90000
	const sampleDur = 3000 // 30fps

	track := &VideoTrack{
		Timescale: timescale,
		Duration:  uint64(n) * sampleDur,
		Width:     2,
		Height:    2,
		Codec:     "h264",
	}

	const sampleSize = 4
	for i := 0; i < n; i++ {
		key := keyEvery <= 1 || i%keyEvery == 0
		track.Samples = append(track.Samples, VideoSample{
			PTS:      int64(i) * sampleDur,
			DTS:      int64(i) * sampleDur,
			Duration: sampleDur,
			Offset:   int64(i) * sampleSize,
			Size:     sampleSize,
			Key:      key,
		})
	}

	return track, bytes.NewReader(make([]byte, n*sampleSize))
}

func newTestDecoder(t *testing.T, n, keyEvery int, opts Options) (*FrameDecoder, *fakePipeline) {
	t.Helper()
	track, src := syntheticTrack(n, keyEvery)
	pipe := &fakePipeline{}
	dec := newWithTrack(src, track, pipe, opts)
	return dec, pipe
}

func TestGetFrameAtTime_CacheHit(t *testing.T) {
	dec, pipe := newTestDecoder(t, 90, 10, Options{})
	defer dec.Close()
	ctx := context.Background()

	first, err := dec.GetFrameAtTime(ctx, 0.5)
	require.NoError(t, err)
	defer first.Close()
	feedsAfterFirst := pipe.feedCount()

	second, err := dec.GetFrameAtTime(ctx, 0.5)
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, feedsAfterFirst, pipe.feedCount(), "cache hit must not touch the pipeline")
	assert.Equal(t, first.PTS(), second.PTS())
}

func TestGetFrameAtTime_SeeksFromPrecedingKeyframe(t *testing.T) {
	dec, pipe := newTestDecoder(t, 90, 10, Options{})
	defer dec.Close()

	// 0.5s at 30fps is sample 15; the preceding keyframe is sample 10,
	// so exactly 6 samples are fed.
	frame, err := dec.GetFrameAtTime(context.Background(), 0.5)
	require.NoError(t, err)
	defer frame.Close()

	assert.Equal(t, 6, pipe.feedCount())
	assert.Equal(t, int64(15*3000), frame.PTS())
}

func TestGetFrameAtTime_FIFOEvictionNotLRU(t *testing.T) {
	dec, pipe := newTestDecoder(t, 90, 1, Options{})
	defer dec.Close()
	ctx := context.Background()

	times := []float64{0.1, 0.4, 0.7, 1.0, 1.3}
	for _, ts := range times {
		f, err := dec.GetFrameAtTime(ctx, ts)
		require.NoError(t, err)
		f.Close()
	}

	// Touch the first-inserted entry; under LRU this would protect it.
	feeds := pipe.feedCount()
	f, err := dec.GetFrameAtTime(ctx, 0.1)
	require.NoError(t, err)
	f.Close()
	assert.Equal(t, feeds, pipe.feedCount(), "expected cache hit")

	// A sixth distinct timestamp still evicts the first insertion.
	f, err = dec.GetFrameAtTime(ctx, 1.6)
	require.NoError(t, err)
	f.Close()

	feeds = pipe.feedCount()
	f, err = dec.GetFrameAtTime(ctx, 0.1)
	require.NoError(t, err)
	f.Close()
	assert.Greater(t, pipe.feedCount(), feeds, "first insertion must be evicted despite recent access")

	// The second insertion survives the first eviction round.
	// (It is evicted only by the re-insert of 0.1 above, FIFO order.)
	feeds = pipe.feedCount()
	f, err = dec.GetFrameAtTime(ctx, 0.7)
	require.NoError(t, err)
	f.Close()
	assert.Equal(t, feeds, pipe.feedCount())
}

func TestGetFrameAtTime_BeyondLastSampleReturnsLast(t *testing.T) {
	dec, pipe := newTestDecoder(t, 90, 10, Options{})
	defer dec.Close()

	frame, err := dec.GetFrameAtTime(context.Background(), 99)
	require.NoError(t, err)
	defer frame.Close()

	assert.Equal(t, int64(89*3000), frame.PTS())

	// Every beyond-duration timestamp maps to the same clamped frame, so
	// the second request must be a cache hit.
	feeds := pipe.feedCount()
	again, err := dec.GetFrameAtTime(context.Background(), 1234)
	require.NoError(t, err)
	defer again.Close()

	assert.Equal(t, int64(89*3000), again.PTS())
	assert.Equal(t, feeds, pipe.feedCount(), "clamped request must be served from cache")
}

func TestGetFrameAtTime_ResetHeuristics(t *testing.T) {
	dec, pipe := newTestDecoder(t, 300, 10, Options{})
	defer dec.Close()
	ctx := context.Background()

	mustGet := func(ts float64) {
		f, err := dec.GetFrameAtTime(ctx, ts)
		require.NoError(t, err)
		f.Close()
	}

	mustGet(2.0) // first decode configures, no reset
	assert.Equal(t, 0, pipe.resetCount())

	mustGet(0.5) // backward seek forces a reset
	assert.Equal(t, 1, pipe.resetCount())

	mustGet(0.6) // small forward gap continues without reset
	assert.Equal(t, 1, pipe.resetCount())

	mustGet(9.0) // >2s forward gap resets rather than decoding the span
	assert.Equal(t, 2, pipe.resetCount())
}

func TestGetFrameAtTime_Timeout(t *testing.T) {
	track, src := syntheticTrack(30, 10)
	pipe := &fakePipeline{silent: true}
	dec := newWithTrack(src, track, pipe, Options{Timeout: 50 * time.Millisecond})
	defer dec.Close()

	_, err := dec.GetFrameAtTime(context.Background(), 0.5)
	assert.ErrorIs(t, err, ErrDecodeTimeout)
}

func TestGetFrameAtTime_RejectsConcurrentCall(t *testing.T) {
	track, src := syntheticTrack(30, 10)
	pipe := &fakePipeline{blockFlush: make(chan struct{})}
	dec := newWithTrack(src, track, pipe, Options{})
	defer dec.Close()

	done := make(chan error, 1)
	go func() {
		f, err := dec.GetFrameAtTime(context.Background(), 0.5)
		if f != nil {
			f.Close()
		}
		done <- err
	}()

	// Wait for the first request to be inside the pipeline.
	require.Eventually(t, func() bool {
		return pipe.feedCount() > 0
	}, time.Second, time.Millisecond)

	_, err := dec.GetFrameAtTime(context.Background(), 1.0)
	assert.ErrorIs(t, err, ErrDecoderBusy)

	close(pipe.blockFlush)
	require.NoError(t, <-done)
}

func TestClose_ReleasesAllFrames(t *testing.T) {
	baseline := LiveHandles()

	dec, pipe := newTestDecoder(t, 90, 10, Options{})
	ctx := context.Background()

	var clones []*Frame
	for _, ts := range []float64{0.1, 0.5, 1.0} {
		f, err := dec.GetFrameAtTime(ctx, ts)
		require.NoError(t, err)
		clones = append(clones, f)
	}

	dec.Close()
	for _, f := range clones {
		f.Close()
	}

	assert.Equal(t, baseline, LiveHandles())
	assert.Equal(t, 1, pipe.closes)
}

func TestClose_SafeBeforeInitAndTwice(t *testing.T) {
	dec := newWithTrack(nil, &VideoTrack{}, &fakePipeline{}, Options{})
	dec.Close()
	dec.Close()

	_, err := dec.GetFrameAtTime(context.Background(), 0)
	assert.ErrorIs(t, err, ErrDecoderClosed)
}
