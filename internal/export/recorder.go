package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// StreamRecorder is an ffmpeg-backed Recorder: raw RGBA frames are piped to
// an encoder process that appends to a growing WebM container, mirroring a
// chunked stream recording. MP4 MIME types are not supported, so recordings
// always take the remux leg.
type StreamRecorder struct {
	ffmpegPath string
	tempDir    string

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	dir       string
	outPath   string
	frameSize int
	stopping  bool

	waitErr chan error
	errs    chan error
}

// NewStreamRecorder creates a recorder. tempDir may be empty for the OS
// default.
func NewStreamRecorder(ffmpegPath, tempDir string) *StreamRecorder {
	return &StreamRecorder{
		ffmpegPath: ffmpegPath,
		tempDir:    tempDir,
		errs:       make(chan error, 1),
	}
}

// Supports reports whether the recorder can produce the given MIME type
func (r *StreamRecorder) Supports(mime string) bool {
	return strings.HasPrefix(mime, "video/webm")
}

// Start launches the encoder process
func (r *StreamRecorder) Start(ctx context.Context, opts RecorderOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd != nil {
		return fmt.Errorf("recorder already started")
	}

	dir, err := os.MkdirTemp(r.tempDir, "record-*")
	if err != nil {
		return fmt.Errorf("failed to create recording scratch dir: %w", err)
	}
	r.dir = dir
	r.outPath = filepath.Join(dir, "recording.webm")

	codec := "libvpx-vp9"
	if strings.Contains(opts.Mime, "vp8") {
		codec = "libvpx"
	}

	args := []string{
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-r", fmt.Sprintf("%g", opts.FPS),
		"-i", "pipe:0",
		"-c:v", codec,
		"-deadline", "realtime",
		"-b:v", "4M",
		"-y",
		r.outPath,
	}

	cmd := exec.CommandContext(ctx, r.ffmpegPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("failed to create encoder stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("failed to start encoder: %w", err)
	}

	r.cmd = cmd
	r.stdin = stdin
	r.frameSize = opts.Width * opts.Height * 4
	r.waitErr = make(chan error, 1)

	go func() {
		err := cmd.Wait()
		r.mu.Lock()
		stopping := r.stopping
		r.mu.Unlock()

		// An exit before Stop means the encoder died mid-recording.
		if !stopping && err != nil {
			select {
			case r.errs <- fmt.Errorf("encoder exited: %w", err):
			default:
			}
		}
		r.waitErr <- err
	}()

	return nil
}

// WriteFrame feeds one raw RGBA frame to the encoder
func (r *StreamRecorder) WriteFrame(pix []byte) error {
	r.mu.Lock()
	stdin := r.stdin
	frameSize := r.frameSize
	r.mu.Unlock()

	if stdin == nil {
		return fmt.Errorf("recorder not started")
	}
	if len(pix) != frameSize {
		return fmt.Errorf("frame size mismatch: got %d bytes, want %d", len(pix), frameSize)
	}

	if _, err := stdin.Write(pix); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Stop finishes the encode and assembles the recording into one blob. The
// scratch directory is removed on every outcome.
func (r *StreamRecorder) Stop(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	if r.cmd == nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("recorder not started")
	}
	r.stopping = true
	stdin := r.stdin
	dir := r.dir
	outPath := r.outPath
	waitErr := r.waitErr
	r.mu.Unlock()

	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("failed to remove recording scratch dir")
		}
	}()

	stdin.Close()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("encoder failed: %w", err)
		}
	case <-ctx.Done():
		r.cmd.Process.Kill()
		<-waitErr
		return nil, ctx.Err()
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}
	return data, nil
}

// Errors surfaces asynchronous encoder failures
func (r *StreamRecorder) Errors() <-chan error {
	return r.errs
}

// Mix muxes the collected clip audio into a recorded blob with a second
// ffmpeg pass: each input is trimmed, gain-adjusted and delayed to its
// timeline position, then all of them feed one amix while the video
// stream is copied untouched.
func (r *StreamRecorder) Mix(ctx context.Context, recording []byte, mime string, inputs []AudioInput) ([]byte, error) {
	if len(inputs) == 0 {
		return recording, nil
	}

	dir, err := os.MkdirTemp(r.tempDir, "mix-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create mix scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("failed to remove mix scratch dir")
		}
	}()

	ext := ".webm"
	audioCodec := "libopus"
	if strings.HasPrefix(mime, "video/mp4") {
		ext = ".mp4"
		audioCodec = "aac"
	}
	inPath := filepath.Join(dir, "recording"+ext)
	outPath := filepath.Join(dir, "mixed"+ext)
	if err := os.WriteFile(inPath, recording, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write mix input: %w", err)
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-i", inPath}
	for _, in := range inputs {
		args = append(args, "-i", in.Path)
	}

	var filter strings.Builder
	for i, in := range inputs {
		delayMs := int(in.Start * 1000)
		fmt.Fprintf(&filter, "[%d:a]atrim=start=%.3f:duration=%.3f,asetpts=PTS-STARTPTS,volume=%.3f,adelay=%d|%d[a%d];",
			i+1, in.Trim, in.Duration, in.Volume, delayMs, delayMs, i)
	}
	for i := range inputs {
		fmt.Fprintf(&filter, "[a%d]", i)
	}
	fmt.Fprintf(&filter, "amix=inputs=%d:normalize=0[aout]", len(inputs))

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "0:v", "-map", "[aout]",
		"-c:v", "copy",
		"-c:a", audioCodec, "-b:a", "192k",
		"-y", outPath,
	)

	cmd := exec.CommandContext(ctx, r.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("audio mix failed: %w, stderr: %s", err, stderr.String())
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read mixed output: %w", err)
	}
	return out, nil
}
