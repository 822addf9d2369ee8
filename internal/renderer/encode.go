package renderer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/clipforge/clipforge/pkg/models"
)

// FFmpegSinkConfig configures the encode leg of a render
type FFmpegSinkConfig struct {
	FFmpegPath string
	TempDir    string
}

// NewFFmpegSink returns a sink factory that pipes raw RGBA frames into an
// ffmpeg encode process and, when the composition carries audio
// sequences, muxes them in with a second pass.
func NewFFmpegSink(cfg FFmpegSinkConfig) SinkFactory {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	return func(ctx context.Context, comp *Composition) (FrameSink, error) {
		return newFFmpegSink(ctx, cfg, comp)
	}
}

type ffmpegSink struct {
	comp    *Composition
	cfg     FFmpegSinkConfig
	scratch string
	video   string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer

	frameSize int
	closed    bool
}

func newFFmpegSink(ctx context.Context, cfg FFmpegSinkConfig, comp *Composition) (*ffmpegSink, error) {
	scratch, err := os.MkdirTemp(cfg.TempDir, "render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}

	ext := comp.Format
	if ext != "webm" {
		ext = "mp4"
	}
	videoPath := filepath.Join(scratch, "video."+ext)

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", comp.Width, comp.Height),
		"-r", strconv.FormatFloat(comp.FPS, 'f', -1, 64),
		"-i", "pipe:0",
	}
	if ext == "webm" {
		args = append(args,
			"-c:v", "libvpx-vp9",
			"-crf", strconv.Itoa(comp.CRF),
			"-b:v", "0",
		)
	} else {
		args = append(args,
			"-c:v", "libx264",
			"-preset", "ultrafast",
			"-crf", strconv.Itoa(comp.CRF),
			"-movflags", "+faststart",
		)
	}
	args = append(args, "-pix_fmt", "yuv420p", "-y", videoPath)

	sink := &ffmpegSink{
		comp:      comp,
		cfg:       cfg,
		scratch:   scratch,
		video:     videoPath,
		frameSize: comp.Width * comp.Height * 4,
	}

	cmd := exec.CommandContext(ctx, cfg.FFmpegPath, args...)
	cmd.Stderr = &sink.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		os.RemoveAll(scratch)
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		os.RemoveAll(scratch)
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	sink.cmd = cmd
	sink.stdin = stdin
	return sink, nil
}

func (s *ffmpegSink) WriteFrame(pix []byte) error {
	if len(pix) != s.frameSize {
		return fmt.Errorf("frame size %d does not match %dx%d rgba", len(pix), s.comp.Width, s.comp.Height)
	}
	_, err := s.stdin.Write(pix)
	return err
}

func (s *ffmpegSink) Finish(ctx context.Context) (*models.ExportResult, error) {
	defer s.cleanup()

	if err := s.stdin.Close(); err != nil {
		return nil, fmt.Errorf("failed to close encode stream: %w", err)
	}
	if err := s.cmd.Wait(); err != nil {
		return nil, fmt.Errorf("encode failed: %w, stderr: %s", err, s.stderr.String())
	}

	outPath := s.video
	if audio := s.comp.AudioSequences(); len(audio) > 0 {
		muxed, err := s.muxAudio(ctx, audio)
		if err != nil {
			return nil, err
		}
		outPath = muxed
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered output: %w", err)
	}

	mime := "video/mp4"
	if s.comp.Format == "webm" {
		mime = "video/webm"
	}
	return &models.ExportResult{Data: data, MimeType: mime}, nil
}

// muxAudio runs a second ffmpeg pass that delays, trims and mixes every
// audio sequence against the rendered video, re-muxing without
// re-encoding the video stream.
func (s *ffmpegSink) muxAudio(ctx context.Context, audio []Sequence) (string, error) {
	outPath := filepath.Join(s.scratch, "muxed."+filepath.Ext(s.video)[1:])

	args := []string{"-hide_banner", "-loglevel", "error", "-i", s.video}
	for _, seq := range audio {
		args = append(args, "-i", seq.AudioPath)
	}

	var filter bytes.Buffer
	labels := make([]string, 0, len(audio))
	for i, seq := range audio {
		volume := seq.Volume
		if volume == 0 {
			volume = 1
		}
		delayMs := int(float64(seq.FromFrame) / s.comp.FPS * 1000)
		durSec := float64(seq.Frames) / s.comp.FPS
		trim := seq.Clip.TrimStart

		label := fmt.Sprintf("a%d", i)
		fmt.Fprintf(&filter, "[%d:a]atrim=start=%.3f:duration=%.3f,asetpts=PTS-STARTPTS,volume=%.3f,adelay=%d|%d[%s];",
			i+1, trim, durSec, volume, delayMs, delayMs, label)
		labels = append(labels, "["+label+"]")
	}
	for _, l := range labels {
		filter.WriteString(l)
	}
	fmt.Fprintf(&filter, "amix=inputs=%d:normalize=0[aout]", len(audio))

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "0:v", "-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac", "-b:a", "192k",
		"-y", outPath,
	)

	cmd := exec.CommandContext(ctx, s.cfg.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("audio mux failed: %w, stderr: %s", err, stderr.String())
	}
	return outPath, nil
}

func (s *ffmpegSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.stdin.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
	s.cleanup()
	return nil
}

func (s *ffmpegSink) cleanup() {
	s.closed = true
	if err := os.RemoveAll(s.scratch); err != nil {
		log.Warn().Err(err).Str("dir", s.scratch).Msg("failed to remove render scratch dir")
	}
}
