package renderer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/compositor"
	"github.com/clipforge/clipforge/pkg/models"
)

// captureSink buffers rendered frames in memory
type captureSink struct {
	frames   [][]byte
	finished bool
	closed   bool
}

func (s *captureSink) WriteFrame(pix []byte) error {
	cp := make([]byte, len(pix))
	copy(cp, pix)
	s.frames = append(s.frames, cp)
	return nil
}

func (s *captureSink) Finish(ctx context.Context) (*models.ExportResult, error) {
	s.finished = true
	return &models.ExportResult{Data: []byte("rendered"), MimeType: "video/mp4"}, nil
}

func (s *captureSink) Close() error {
	s.closed = true
	return nil
}

func captureFactory(sink *captureSink) SinkFactory {
	return func(ctx context.Context, comp *Composition) (FrameSink, error) {
		return sink, nil
	}
}

func solidSource(c color.RGBA) compositor.FrameSource {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return compositor.StillSource{Img: img}
}

func testComposition() *Composition {
	clip := &models.Clip{ID: "v1", Type: models.TrackTypeVideo, StartTime: 0, Duration: 1}
	return &Composition{
		Width: 32, Height: 18, FPS: 10, DurationFrames: 10, Format: "mp4",
		Sequences: []Sequence{{
			Kind:      SequenceVideo,
			FromFrame: 0,
			Frames:    10,
			Clip:      clip,
			Source:    solidSource(color.RGBA{R: 200, A: 255}),
		}},
	}
}

func TestRender_ProducesEveryFrame(t *testing.T) {
	sink := &captureSink{}
	r := New(captureFactory(sink))

	var reports []int
	result, err := r.Render(context.Background(), testComposition(), func(done, total int) {
		assert.Equal(t, 10, total)
		reports = append(reports, done)
	})
	require.NoError(t, err)

	assert.Len(t, sink.frames, 10)
	assert.True(t, sink.finished)
	assert.Equal(t, "video/mp4", result.MimeType)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, reports)

	// The clip paints red over the black base.
	first := sink.frames[0]
	assert.Equal(t, uint8(200), first[0])
	assert.Equal(t, uint8(0), first[2])
}

func TestRender_IsFrameDeterministic(t *testing.T) {
	render := func() [][]byte {
		sink := &captureSink{}
		comp := testComposition()
		comp.Sequences = append(comp.Sequences, Sequence{
			Kind:      SequenceText,
			FromFrame: 2,
			Frames:    6,
			Clip: &models.Clip{
				ID: "t1", Type: models.TrackTypeText, StartTime: 0.2, Duration: 0.6,
				Properties: models.ClipProperties{
					Text:              "Hi",
					TextAnimation:     models.TextAnimationFadeIn,
					AnimationDuration: 0.3,
				},
			},
		})
		_, err := New(captureFactory(sink)).Render(context.Background(), comp, nil)
		require.NoError(t, err)
		return sink.frames
	}

	assert.Equal(t, render(), render(), "identical compositions must render identical bytes")
}

func TestRender_TransitionBoundary(t *testing.T) {
	from := &models.Clip{ID: "v1", Type: models.TrackTypeVideo, StartTime: 0, Duration: 1}
	to := &models.Clip{ID: "v2", Type: models.TrackTypeVideo, StartTime: 1, Duration: 1}

	comp := &Composition{
		Width: 32, Height: 18, FPS: 10, DurationFrames: 20, Format: "mp4",
		Sequences: []Sequence{
			{
				Kind: SequenceVideo, FromFrame: 0, Frames: 10,
				Clip: from, Source: solidSource(color.RGBA{R: 200, A: 255}),
			},
			{
				Kind: SequenceTransitionOutgoing, FromFrame: 10, Frames: 4,
				Clip: from, Source: solidSource(color.RGBA{R: 200, A: 255}),
				TransitionKind: models.TransitionCrossfade, TransitionFrames: 4,
			},
			{
				Kind: SequenceVideo, FromFrame: 10, Frames: 10,
				Clip: to, Source: solidSource(color.RGBA{B: 200, A: 255}),
				TransitionKind: models.TransitionCrossfade, TransitionFrames: 4,
			},
		},
	}

	sink := &captureSink{}
	_, err := New(captureFactory(sink)).Render(context.Background(), comp, nil)
	require.NoError(t, err)
	require.Len(t, sink.frames, 20)

	// Frame 10 is progress 0: the outgoing clip still fully opaque.
	assert.Equal(t, uint8(200), sink.frames[10][0], "red at transition start")
	assert.Equal(t, uint8(0), sink.frames[10][2])

	// Frame 14 is at/after the boundary: the incoming clip plain.
	assert.Equal(t, uint8(0), sink.frames[14][0])
	assert.Equal(t, uint8(200), sink.frames[14][2], "blue after transition end")

	// Mid-transition both contribute.
	mid := sink.frames[12]
	assert.Greater(t, mid[0], uint8(20))
	assert.Greater(t, mid[2], uint8(20))
}

func TestRender_CancellationClosesSink(t *testing.T) {
	sink := &captureSink{}
	r := New(captureFactory(sink))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Render(ctx, testComposition(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, sink.closed)
	assert.False(t, sink.finished)
	assert.Empty(t, sink.frames)
}

func TestRender_RejectsInvalidComposition(t *testing.T) {
	r := New(captureFactory(&captureSink{}))

	_, err := r.Render(context.Background(), &Composition{Width: 0, Height: 10, FPS: 30, DurationFrames: 1}, nil)
	assert.Error(t, err)

	_, err = r.Render(context.Background(), &Composition{Width: 10, Height: 10, FPS: 0, DurationFrames: 1}, nil)
	assert.Error(t, err)
}

func TestRender_SinkErrorPropagates(t *testing.T) {
	boom := errors.New("pipe burst")
	r := New(func(ctx context.Context, comp *Composition) (FrameSink, error) {
		return &failingSink{err: boom}, nil
	})

	_, err := r.Render(context.Background(), testComposition(), nil)
	assert.ErrorIs(t, err, boom)
}

type failingSink struct {
	err    error
	closed bool
}

func (s *failingSink) WriteFrame([]byte) error { return s.err }
func (s *failingSink) Finish(context.Context) (*models.ExportResult, error) {
	return nil, s.err
}
func (s *failingSink) Close() error { s.closed = true; return nil }
