// Package transcoder shells out to ffmpeg/ffprobe for the media work the
// in-process pipeline does not do itself: probing uploaded media and
// remuxing recorded WebM blobs into MP4 deliverables.
package transcoder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// FFmpeg wraps FFmpeg operations
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg creates a new FFmpeg instance
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// VideoMetadata holds media metadata extracted from ffprobe
type VideoMetadata struct {
	Format  FormatInfo   `json:"format"`
	Streams []StreamInfo `json:"streams"`
}

// FormatInfo holds format information
type FormatInfo struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// StreamInfo holds stream information
type StreamInfo struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	BitRate      string `json:"bit_rate"`
	FrameRate    string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

// MediaInfo is the condensed probe result used when registering uploads
type MediaInfo struct {
	Duration  float64
	Size      int64
	Bitrate   int64
	Width     int
	Height    int
	Codec     string
	FrameRate float64
	HasAudio  bool
}

// ProbeVideo extracts metadata from a media file
func (f *FFmpeg) ProbeVideo(ctx context.Context, inputPath string) (*VideoMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())
	}

	var metadata VideoMetadata
	if err := json.Unmarshal(stdout.Bytes(), &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	return &metadata, nil
}

// ProbeMediaInfo extracts the fields the upload flow records for a media file
func (f *FFmpeg) ProbeMediaInfo(ctx context.Context, inputPath string) (*MediaInfo, error) {
	metadata, err := f.ProbeVideo(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	return mediaInfoFromMetadata(metadata), nil
}

func mediaInfoFromMetadata(metadata *VideoMetadata) *MediaInfo {
	info := &MediaInfo{}

	if duration, err := strconv.ParseFloat(metadata.Format.Duration, 64); err == nil {
		info.Duration = duration
	}
	if size, err := strconv.ParseInt(metadata.Format.Size, 10, 64); err == nil {
		info.Size = size
	}
	if bitrate, err := strconv.ParseInt(metadata.Format.BitRate, 10, 64); err == nil {
		info.Bitrate = bitrate
	}

	for _, stream := range metadata.Streams {
		switch stream.CodecType {
		case "audio":
			info.HasAudio = true
		case "video":
			if info.Codec != "" {
				continue
			}
			info.Width = stream.Width
			info.Height = stream.Height
			info.Codec = stream.CodecName

			if stream.AvgFrameRate != "" {
				parts := strings.Split(stream.AvgFrameRate, "/")
				if len(parts) == 2 {
					num, _ := strconv.ParseFloat(parts[0], 64)
					den, _ := strconv.ParseFloat(parts[1], 64)
					if den != 0 {
						info.FrameRate = num / den
					}
				}
			}
		}
	}

	return info
}

// TranscodeOptions holds transcoding options
type TranscodeOptions struct {
	InputPath    string
	OutputPath   string
	Width        int
	Height       int
	VideoBitrate string
	AudioBitrate string
	VideoCodec   string
	AudioCodec   string
	Preset       string
	ExtraArgs    []string
}

// ProgressCallback is called with fractional progress in [0,1]
type ProgressCallback func(progress float64)

// Transcode transcodes a media file with progress tracking
func (f *FFmpeg) Transcode(ctx context.Context, opts TranscodeOptions, progressCB ProgressCallback) error {
	// Total duration drives the progress fraction.
	metadata, err := f.ProbeVideo(ctx, opts.InputPath)
	if err != nil {
		return fmt.Errorf("failed to probe input: %w", err)
	}
	totalDuration, _ := strconv.ParseFloat(metadata.Format.Duration, 64)

	cmd := exec.CommandContext(ctx, f.ffmpegPath, buildTranscodeArgs(opts)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	progressRegex := regexp.MustCompile(`out_time_ms=(\d+)`)
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			matches := progressRegex.FindStringSubmatch(scanner.Text())
			if len(matches) < 2 {
				continue
			}
			timeMs, err := strconv.ParseFloat(matches[1], 64)
			if err != nil || totalDuration <= 0 {
				continue
			}
			progress := (timeMs / 1000000.0) / totalDuration
			if progress > 1 {
				progress = 1
			}
			if progressCB != nil {
				progressCB(progress)
			}
		}
	}()

	var stderrBuf bytes.Buffer
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			stderrBuf.WriteString(scanner.Text() + "\n")
		}
	}()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, stderrBuf.String())
	}

	if progressCB != nil {
		progressCB(1)
	}

	return nil
}

// buildTranscodeArgs assembles the ffmpeg argument list for one transcode
func buildTranscodeArgs(opts TranscodeOptions) []string {
	args := []string{
		"-i", opts.InputPath,
		"-y",
	}

	if opts.VideoCodec != "" {
		args = append(args, "-c:v", opts.VideoCodec)
	} else {
		args = append(args, "-c:v", "libx264")
	}

	if opts.VideoBitrate != "" {
		args = append(args, "-b:v", opts.VideoBitrate)
	}

	if opts.Width > 0 && opts.Height > 0 {
		args = append(args, "-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height))
	}

	if opts.Preset != "" {
		args = append(args, "-preset", opts.Preset)
	} else {
		args = append(args, "-preset", "medium")
	}

	if opts.AudioCodec != "" {
		args = append(args, "-c:a", opts.AudioCodec)
	} else {
		args = append(args, "-c:a", "aac")
	}

	if opts.AudioBitrate != "" {
		args = append(args, "-b:a", opts.AudioBitrate)
	}

	args = append(args, opts.ExtraArgs...)
	args = append(args, "-progress", "pipe:1")
	args = append(args, opts.OutputPath)

	return args
}

// ExtractThumbnail extracts a poster frame at a specific time
func (f *FFmpeg) ExtractThumbnail(ctx context.Context, inputPath, outputPath string, timeSeconds float64) error {
	args := []string{
		"-i", inputPath,
		"-ss", fmt.Sprintf("%.2f", timeSeconds),
		"-vframes", "1",
		"-q:v", "2",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to extract thumbnail: %w, stderr: %s", err, stderr.String())
	}

	return nil
}
