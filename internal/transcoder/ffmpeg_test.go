package transcoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTranscodeArgs_Defaults(t *testing.T) {
	args := buildTranscodeArgs(TranscodeOptions{
		InputPath:  "in.webm",
		OutputPath: "out.mp4",
	})

	assert.Equal(t, []string{
		"-i", "in.webm",
		"-y",
		"-c:v", "libx264",
		"-preset", "medium",
		"-c:a", "aac",
		"-progress", "pipe:1",
		"out.mp4",
	}, args)
}

func TestBuildTranscodeArgs_FullOptions(t *testing.T) {
	args := buildTranscodeArgs(TranscodeOptions{
		InputPath:    "in.webm",
		OutputPath:   "out.mp4",
		Width:        1280,
		Height:       720,
		VideoCodec:   "libx264",
		VideoBitrate: "4M",
		AudioCodec:   "aac",
		AudioBitrate: "192k",
		Preset:       "ultrafast",
		ExtraArgs:    []string{"-crf", "23", "-movflags", "+faststart"},
	})

	assert.Contains(t, args, "-s")
	assert.Contains(t, args, "1280x720")
	assert.Contains(t, args, "ultrafast")
	assert.Contains(t, args, "192k")

	// Extra args land before the progress pipe, output path last.
	crfAt := indexOf(args, "-crf")
	progressAt := indexOf(args, "-progress")
	require.Greater(t, crfAt, 0)
	assert.Less(t, crfAt, progressAt)
	assert.Equal(t, "out.mp4", args[len(args)-1])
}

func TestMediaInfoFromMetadata(t *testing.T) {
	meta := &VideoMetadata{
		Format: FormatInfo{
			Duration: "12.480000",
			Size:     "1048576",
			BitRate:  "672000",
		},
		Streams: []StreamInfo{
			{CodecType: "audio", CodecName: "aac"},
			{CodecType: "video", CodecName: "h264", Width: 1920, Height: 1080, AvgFrameRate: "30000/1001"},
			{CodecType: "video", CodecName: "mjpeg", Width: 320, Height: 180},
		},
	}

	info := mediaInfoFromMetadata(meta)

	assert.InDelta(t, 12.48, info.Duration, 1e-9)
	assert.Equal(t, int64(1048576), info.Size)
	assert.Equal(t, int64(672000), info.Bitrate)
	assert.True(t, info.HasAudio)

	// First video stream wins; the cover-art stream is ignored.
	assert.Equal(t, "h264", info.Codec)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.InDelta(t, 29.97, info.FrameRate, 0.01)
}

func TestMediaInfoFromMetadata_AudioOnly(t *testing.T) {
	meta := &VideoMetadata{
		Format:  FormatInfo{Duration: "3.5"},
		Streams: []StreamInfo{{CodecType: "audio", CodecName: "opus"}},
	}

	info := mediaInfoFromMetadata(meta)
	assert.True(t, info.HasAudio)
	assert.Empty(t, info.Codec)
	assert.Zero(t, info.Width)
}

func indexOf(args []string, want string) int {
	for i, a := range args {
		if a == want {
			return i
		}
	}
	return -1
}
