package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mantonx/mediavault/internal/ingest/types"
)

const ffmpegTimeout = 10 * time.Minute

// FFmpegTranscoder is the default, in-process Transcoder: it shells out to
// ffmpeg/ffprobe, the way the teacher's pack invokes external media tools
// (e.g. the photog thumbnail generator's ffmpeg frame extraction).
type FFmpegTranscoder struct {
	FFmpegPath  string
	FFprobePath string
}

func NewFFmpegTranscoder(ffmpegPath, ffprobePath string) *FFmpegTranscoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegTranscoder{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

// Probe runs ffprobe and reports stream presence, matching §4.8 step 6's
// "require at least one video and one audio stream" check.
func (t *FFmpegTranscoder) Probe(ctx context.Context, path string) (types.MediaProbe, error) {
	ctx, cancel := context.WithTimeout(ctx, ffmpegTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.FFprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_streams", "-show_format",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return types.MediaProbe{}, fmt.Errorf("ffprobe: %w", err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return types.MediaProbe{}, fmt.Errorf("ffprobe: parse json: %w", err)
	}

	probe := types.MediaProbe{IsMP4: strings.Contains(parsed.Format.FormatName, "mp4")}
	if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
		probe.DurationMs = int64(d * 1000)
	}
	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "video":
			if !probe.HasVideoStream {
				probe.HasVideoStream = true
				probe.Width = s.Width
				probe.Height = s.Height
				probe.VideoCodec = s.CodecName
			}
		case "audio":
			if !probe.HasAudioStream {
				probe.HasAudioStream = true
				probe.AudioCodec = s.CodecName
			}
		}
	}
	return probe, nil
}

// Transcode runs ffmpeg with the std1080p scale filter, libx264/aac output,
// and +faststart, per §4.8 step 5.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, source, dest string, params Params) (types.TranscodeOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, ffmpegTimeout)
	defer cancel()

	scaleFilter := fmt.Sprintf("scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease",
		params.MaxWidth, params.MaxHeight)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.FFmpegPath,
		"-y",
		"-i", source,
		"-vf", scaleFilter,
		"-c:v", "libx264",
		"-crf", strconv.Itoa(params.CRF),
		"-preset", params.Preset,
		"-c:a", "aac",
		"-b:a", strconv.Itoa(params.AudioKbps)+"k",
		"-ac", "2",
		"-movflags", "+faststart",
		dest,
	)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return types.TranscodeOutcome{}, fmt.Errorf("ffmpeg: %s: %w", summarizeStderr(stderr.String()), err)
	}

	probe, err := t.Probe(ctx, dest)
	if err != nil {
		return types.TranscodeOutcome{}, fmt.Errorf("probe output: %w", err)
	}

	return types.TranscodeOutcome{
		OutputPath:  dest,
		Width:       probe.Width,
		Height:      probe.Height,
		VideoCodec:  probe.VideoCodec,
		AudioCodec:  probe.AudioCodec,
		DurationMs:  probe.DurationMs,
		BitrateKbps: estimateBitrateKbps(dest, probe.DurationMs),
	}, nil
}

// ExtractPoster grabs a single JPEG frame at offsetSeconds, for §4.8 step 7.
func (t *FFmpegTranscoder) ExtractPoster(ctx context.Context, source, dest string, offsetSeconds float64) error {
	ctx, cancel := context.WithTimeout(ctx, ffmpegTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.FFmpegPath,
		"-y",
		"-ss", strconv.FormatFloat(offsetSeconds, 'f', 2, 64),
		"-i", source,
		"-frames:v", "1",
		dest,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg poster: %s: %w", summarizeStderr(stderr.String()), err)
	}
	return nil
}

// summarizeStderr truncates ffmpeg's stderr to a bounded size and prefers
// lines naming dimension problems, per §4.8 step 8.
func summarizeStderr(stderr string) string {
	const maxLen = 500
	lines := strings.Split(stderr, "\n")
	for _, line := range lines {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "width") || strings.Contains(lower, "height") || strings.Contains(lower, "not divisible") {
			if len(line) > maxLen {
				return line[:maxLen]
			}
			return strings.TrimSpace(line)
		}
	}
	if len(stderr) > maxLen {
		stderr = stderr[len(stderr)-maxLen:]
	}
	return strings.TrimSpace(stderr)
}

func estimateBitrateKbps(path string, durationMs int64) int {
	if durationMs <= 0 {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	bits := info.Size() * 8
	seconds := float64(durationMs) / 1000
	if seconds <= 0 {
		return 0
	}
	return int(float64(bits) / seconds / 1000)
}
