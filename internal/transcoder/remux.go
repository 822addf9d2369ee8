package transcoder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/clipforge/clipforge/internal/tracing"
	"github.com/clipforge/clipforge/pkg/models"
)

// Remuxer re-encodes a recorded WebM blob into an MP4 deliverable. It
// satisfies the capture driver's remux port: input and output are in-memory
// blobs, progress is fractional.
type Remuxer struct {
	ff      *FFmpeg
	tempDir string
}

// NewRemuxer creates a Remuxer. tempDir may be empty for the OS default.
func NewRemuxer(ff *FFmpeg, tempDir string) *Remuxer {
	return &Remuxer{ff: ff, tempDir: tempDir}
}

// Remux writes the blob to scratch, transcodes it to H.264/AAC MP4 with a
// quality-tier CRF, and returns the output bytes. Scratch files are removed
// on every outcome.
func (r *Remuxer) Remux(ctx context.Context, data []byte, quality string, progress func(float64)) ([]byte, error) {
	span, ctx := tracing.StartSpan(ctx, "transcoder.remux")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "quality", quality)
	tracing.SetTag(span, "input_bytes", len(data))

	dir, err := os.MkdirTemp(r.tempDir, "remux-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create remux scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("failed to remove remux scratch dir")
		}
	}()

	inputPath := filepath.Join(dir, "recording.webm")
	if err := os.WriteFile(inputPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write remux input: %w", err)
	}
	outputPath := filepath.Join(dir, "output.mp4")

	opts := TranscodeOptions{
		InputPath:    inputPath,
		OutputPath:   outputPath,
		VideoCodec:   "libx264",
		AudioCodec:   "aac",
		AudioBitrate: "192k",
		Preset:       "ultrafast",
		ExtraArgs: []string{
			"-crf", fmt.Sprintf("%d", models.CRFForQuality(quality)),
			"-pix_fmt", "yuv420p",
			"-movflags", "+faststart",
		},
	}

	if err := r.ff.Transcode(ctx, opts, ProgressCallback(progress)); err != nil {
		return nil, fmt.Errorf("remux failed: %w", err)
	}

	out, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read remux output: %w", err)
	}

	return out, nil
}
