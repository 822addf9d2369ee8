package export

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
	"github.com/clipforge/clipforge/internal/renderer"
	"github.com/clipforge/clipforge/pkg/models"
)

type memorySink struct {
	frames int
}

func (s *memorySink) WriteFrame(pix []byte) error { s.frames++; return nil }
func (s *memorySink) Finish(ctx context.Context) (*models.ExportResult, error) {
	return &models.ExportResult{Data: []byte("out"), MimeType: "video/mp4"}, nil
}
func (s *memorySink) Close() error { return nil }

func stillEntry() compositor.FrameSource {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{G: 150, A: 255}), image.Point{}, draw.Src)
	return compositor.StillSource{Img: img}
}

func declarativeTimeline() *models.Timeline {
	return &models.Timeline{
		Tracks: []models.Track{
			{
				ID:   "video-1",
				Type: models.TrackTypeVideo,
				Clips: []models.Clip{
					{ID: "v1", Type: models.TrackTypeVideo, StartTime: 0, Duration: 2},
					{ID: "v2", Type: models.TrackTypeVideo, StartTime: 2, Duration: 2},
				},
			},
			{
				ID:   "text-1",
				Type: models.TrackTypeText,
				Clips: []models.Clip{{
					ID: "t1", Type: models.TrackTypeText, StartTime: 1, Duration: 1.5,
					Properties: models.ClipProperties{Text: "Hello"},
				}},
			},
		},
		Transitions: []models.Transition{{
			FromClipID: "v1", ToClipID: "v2",
			Kind: models.TransitionCrossfade, Duration: 0.5,
		}},
	}
}

func TestBuildComposition_FrameIndexing(t *testing.T) {
	driver := NewDeclarativeDriver(nil)
	entries := compositor.Entries{"v1": stillEntry(), "v2": stillEntry()}

	comp, err := driver.buildComposition(context.Background(), declarativeTimeline(), entries, DeclarativeOptions{
		Width: 64, Height: 36, FPS: 30, Format: "mp4",
	})
	require.NoError(t, err)

	assert.Equal(t, 120, comp.DurationFrames, "4s at 30fps")

	byKind := map[renderer.SequenceKind][]renderer.Sequence{}
	for _, s := range comp.Sequences {
		byKind[s.Kind] = append(byKind[s.Kind], s)
	}

	videos := byKind[renderer.SequenceVideo]
	require.Len(t, videos, 2)
	assert.Equal(t, 0, videos[0].FromFrame)
	assert.Equal(t, 60, videos[0].Frames)
	assert.Equal(t, 60, videos[1].FromFrame)
	assert.Equal(t, 15, videos[1].TransitionFrames, "0.5s at 30fps")
	assert.Equal(t, models.TransitionCrossfade, videos[1].TransitionKind)

	outgoing := byKind[renderer.SequenceTransitionOutgoing]
	require.Len(t, outgoing, 1)
	assert.Equal(t, 60, outgoing[0].FromFrame)
	assert.Equal(t, 15, outgoing[0].Frames)
	assert.Equal(t, "v1", outgoing[0].Clip.ID)

	texts := byKind[renderer.SequenceText]
	require.Len(t, texts, 1)
	assert.Equal(t, 30, texts[0].FromFrame)
	assert.Equal(t, 45, texts[0].Frames, "1.5s rounds to 45 frames")
}

func TestBuildComposition_SkipsMutedTracks(t *testing.T) {
	tl := declarativeTimeline()
	tl.Tracks[1].Muted = true

	driver := NewDeclarativeDriver(nil)
	comp, err := driver.buildComposition(context.Background(), tl, compositor.Entries{}, DeclarativeOptions{
		Width: 64, Height: 36, FPS: 30,
	})
	require.NoError(t, err)

	for _, s := range comp.Sequences {
		assert.NotEqual(t, renderer.SequenceText, s.Kind)
	}
}

func TestDeclarativeExport_RendersAllFramesAndCapsProgress(t *testing.T) {
	sink := &memorySink{}
	r := renderer.New(func(ctx context.Context, comp *renderer.Composition) (renderer.FrameSink, error) {
		return sink, nil
	})
	driver := NewDeclarativeDriver(r)

	tl := &models.Timeline{
		Tracks: []models.Track{{
			ID:   "video-1",
			Type: models.TrackTypeVideo,
			Clips: []models.Clip{{
				ID: "v1", Type: models.TrackTypeVideo, StartTime: 0, Duration: 0.5,
			}},
		}},
	}
	entries := compositor.Entries{"v1": stillEntry()}

	var reports []int
	result, err := driver.Export(context.Background(), tl, entries, DeclarativeOptions{
		Width: 32, Height: 18, FPS: 10, Format: "mp4",
		Progress: func(p int) { reports = append(reports, p) },
	})
	require.NoError(t, err)

	assert.Equal(t, 5, sink.frames, "0.5s at 10fps")
	assert.Equal(t, []byte("out"), result.Data)

	require.NotEmpty(t, reports)
	assert.Equal(t, 100, reports[len(reports)-1])
	for _, p := range reports[:len(reports)-1] {
		assert.LessOrEqual(t, p, 99, "capped until the renderer completes")
	}
}

func TestDeclarativeExport_CancelledContextAborts(t *testing.T) {
	r := renderer.New(func(ctx context.Context, comp *renderer.Composition) (renderer.FrameSink, error) {
		return &memorySink{}, nil
	})
	driver := NewDeclarativeDriver(r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := driver.Export(ctx, declarativeTimeline(), compositor.Entries{}, DeclarativeOptions{
		Width: 32, Height: 18, FPS: 10,
	})
	assert.ErrorIs(t, err, ErrAborted)
}

func TestDeclarativeExport_AudioResolverErrorPropagates(t *testing.T) {
	driver := NewDeclarativeDriver(nil)
	boom := errors.New("no audio bytes")

	tl := &models.Timeline{
		Tracks: []models.Track{{
			ID:   "audio-1",
			Type: models.TrackTypeAudio,
			Clips: []models.Clip{{
				ID: "a1", Type: models.TrackTypeAudio, MediaID: "m1",
				StartTime: 0, Duration: 1,
			}},
		}},
		MediaFiles: []models.MediaFile{{ID: "m1", Type: models.MediaTypeAudio, Locator: "media/a.aac"}},
	}

	_, err := driver.buildComposition(context.Background(), tl, compositor.Entries{}, DeclarativeOptions{
		Width: 32, Height: 18, FPS: 10,
		ResolveAudio: func(ctx context.Context, clip *models.Clip, media *models.MediaFile) (string, error) {
			return "", boom
		},
	})
	assert.ErrorIs(t, err, boom)
}
