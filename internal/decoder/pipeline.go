package decoder

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"os/exec"

	"github.com/rs/zerolog/log"
)

// PipelineConfig carries the codec parameters a decode session is
// configured with once, before any sample is fed.
type PipelineConfig struct {
	Codec       string
	CodecConfig []byte
	Width       int
	Height      int
	Timescale   uint32
}

// SampleUnit is one encoded sample submitted to the pipeline. Samples must
// be fed in ascending presentation-time order within one seek-and-decode
// burst.
type SampleUnit struct {
	Data     []byte
	PTS      int64
	Duration int64
	Key      bool
}

// FrameOutput receives decoded frames asynchronously. The receiver takes
// ownership of each frame handle.
type FrameOutput func(*Frame)

// Pipeline is the decode backend behind a FrameDecoder. Configure is
// called once; Feed/Flush are called per seek burst; Reset discards any
// buffered decode state (required before decoding backward).
type Pipeline interface {
	Configure(cfg PipelineConfig, out FrameOutput) error
	Feed(ctx context.Context, sample SampleUnit) error
	Flush(ctx context.Context) error
	Reset()
	Close() error
}

// FFmpegPipeline decodes H.264/HEVC samples by piping an elementary
// stream through ffmpeg and reading raw RGBA frames back. Each Flush
// decodes the burst fed since the last Reset/Flush, which matches the
// decoder's feed-from-keyframe-through-target contract.
type FFmpegPipeline struct {
	ffmpegPath string
	cfg        PipelineConfig
	out        FrameOutput
	nalLength  int
	extradata  []byte
	pending    []SampleUnit
}

// NewFFmpegPipeline creates a pipeline backed by the given ffmpeg binary
func NewFFmpegPipeline(ffmpegPath string) *FFmpegPipeline {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegPipeline{ffmpegPath: ffmpegPath}
}

// Configure stores the codec parameters and output callback
func (p *FFmpegPipeline) Configure(cfg PipelineConfig, out FrameOutput) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", cfg.Width, cfg.Height)
	}
	switch cfg.Codec {
	case "h264", "hevc":
	default:
		return fmt.Errorf("unsupported codec %q", cfg.Codec)
	}

	p.cfg = cfg
	p.out = out
	p.nalLength = 4
	p.extradata = nil

	if cfg.Codec == "h264" && len(cfg.CodecConfig) > 6 {
		p.nalLength, p.extradata = parseAVCConfig(cfg.CodecConfig)
	}

	return nil
}

// Feed buffers one sample for the next Flush
func (p *FFmpegPipeline) Feed(ctx context.Context, sample SampleUnit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.pending = append(p.pending, sample)
	return nil
}

// Flush decodes every buffered sample and delivers the resulting frames
// through the output callback in fed order.
func (p *FFmpegPipeline) Flush(ctx context.Context) error {
	if len(p.pending) == 0 {
		return nil
	}
	burst := p.pending
	p.pending = nil

	var es bytes.Buffer
	es.Write(p.extradata)
	for _, s := range burst {
		es.Write(lengthPrefixedToAnnexB(s.Data, p.nalLength))
	}

	inputFormat := "h264"
	if p.cfg.Codec == "hevc" {
		inputFormat = "hevc"
	}

	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-f", inputFormat,
		"-i", "pipe:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(es.Bytes())

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	frameSize := p.cfg.Width * p.cfg.Height * 4
	delivered := 0
	for {
		buf := make([]byte, frameSize)
		if _, err := io.ReadFull(stdout, buf); err != nil {
			break
		}

		img := &image.RGBA{
			Pix:    buf,
			Stride: p.cfg.Width * 4,
			Rect:   image.Rect(0, 0, p.cfg.Width, p.cfg.Height),
		}

		pts := int64(0)
		dur := int64(0)
		if delivered < len(burst) {
			pts = burst[delivered].PTS
			dur = burst[delivered].Duration
		}
		p.out(NewFrame(img, pts, dur))
		delivered++
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("decode pipeline failed: %w, stderr: %s", err, stderr.String())
	}
	if delivered < len(burst) {
		log.Debug().
			Int("fed", len(burst)).
			Int("decoded", delivered).
			Msg("decode burst delivered fewer frames than samples")
	}

	return nil
}

// Reset discards any buffered samples
func (p *FFmpegPipeline) Reset() {
	p.pending = nil
}

// Close releases pipeline state. Safe to call before Configure.
func (p *FFmpegPipeline) Close() error {
	p.pending = nil
	p.out = nil
	return nil
}

// parseAVCConfig extracts the NAL length size and the SPS/PPS sets from an
// avcC payload, returning the sets as an Annex B prefix.
func parseAVCConfig(cfg []byte) (int, []byte) {
	nalLength := int(cfg[4]&0x3) + 1

	var prefix bytes.Buffer
	pos := 5
	startCode := []byte{0, 0, 0, 1}

	readSets := func(count int) {
		for i := 0; i < count && pos+2 <= len(cfg); i++ {
			size := int(binary.BigEndian.Uint16(cfg[pos : pos+2]))
			pos += 2
			if pos+size > len(cfg) {
				return
			}
			prefix.Write(startCode)
			prefix.Write(cfg[pos : pos+size])
			pos += size
		}
	}

	numSPS := int(cfg[pos] & 0x1f)
	pos++
	readSets(numSPS)

	if pos < len(cfg) {
		numPPS := int(cfg[pos])
		pos++
		readSets(numPPS)
	}

	return nalLength, prefix.Bytes()
}

// lengthPrefixedToAnnexB rewrites MP4 length-prefixed NAL units into the
// start-code form ffmpeg's elementary stream demuxer expects.
func lengthPrefixedToAnnexB(sample []byte, nalLength int) []byte {
	var out bytes.Buffer
	startCode := []byte{0, 0, 0, 1}

	pos := 0
	for pos+nalLength <= len(sample) {
		size := 0
		for i := 0; i < nalLength; i++ {
			size = size<<8 | int(sample[pos+i])
		}
		pos += nalLength
		if size <= 0 || pos+size > len(sample) {
			break
		}
		out.Write(startCode)
		out.Write(sample[pos : pos+size])
		pos += size
	}

	return out.Bytes()
}
