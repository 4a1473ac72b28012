// Package analyzer implements the Media Analyzer (§4.1): given a
// filesystem path, it hashes the file, probes its dimensions, extracts
// EXIF/container metadata, and derives the archive-relative path a
// successful import will use.
package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	"io"
	"mime"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/mantonx/mediavault/internal/archive"
	"github.com/mantonx/mediavault/internal/ingest/types"
	"github.com/mantonx/mediavault/internal/logger"
	"github.com/mantonx/mediavault/internal/mverrors"
	"github.com/rwcarlsen/goexif/exif"
)

// Analyzer is the Media Analyzer collaborator. FFprobePath lets tests or
// deployments point at an alternate binary; empty uses "ffprobe" from PATH.
type Analyzer struct {
	FFprobePath string
	log         logger.Logger
}

// New returns a ready-to-use Analyzer.
func New(ffprobePath string, log logger.Logger) *Analyzer {
	return &Analyzer{FFprobePath: ffprobePath, log: logger.OrNop(log)}
}

// Analyze implements §4.1: returns an immutable MediaFileAnalysis, or an
// *mverrors.AnalysisError when the file cannot be opened, stat'ed or
// hashed. A failed image or video probe does not fail the call: it is
// logged, and the dimension/metadata fields it would have filled stay at
// their zero values. Missing EXIF never fails the call; it yields an empty
// mapping.
func (a *Analyzer) Analyze(path string) (*types.MediaFileAnalysis, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &mverrors.AnalysisError{Path: path, Cause: fmt.Errorf("open: %w", err)}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &mverrors.AnalysisError{Path: path, Cause: fmt.Errorf("stat: %w", err)}
	}

	hash, err := hashFile(f)
	if err != nil {
		return nil, &mverrors.AnalysisError{Path: path, Cause: fmt.Errorf("hash: %w", err)}
	}

	ext := strings.ToLower(filepath.Ext(path))
	isVideo := archive.IsVideoExtension(ext)
	basename := filepath.Base(path)

	result := &types.MediaFileAnalysis{
		SourcePath: path,
		Basename:   basename,
		FileHash:   hash,
		FileSize:   info.Size(),
		MimeType:   mimeTypeFor(ext),
		IsVideo:    isVideo,
		ExifData:   map[string]interface{}{},
	}

	if isVideo {
		if err := a.analyzeVideo(path, result); err != nil {
			a.log.Warn("analyzer.video_probe_failed", logger.F("path", path), logger.F("error", err.Error()))
		}
	} else {
		if err := a.analyzeImage(path, result); err != nil {
			a.log.Warn("analyzer.image_probe_failed", logger.F("path", path), logger.F("error", err.Error()))
		}
	}

	result.RelativePath = archive.RelativePath(result.ShotAt, basename)
	result.DestinationFilename = filepath.Base(result.RelativePath)
	return result, nil
}

func hashFile(f *os.File) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func mimeTypeFor(ext string) string {
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	switch ext {
	case ".heic", ".heif":
		return "image/heic"
	case ".mkv":
		return "video/x-matroska"
	case ".3gp":
		return "video/3gpp"
	default:
		return "application/octet-stream"
	}
}

// analyzeImage populates width/height/orientation/shotAt/exif/camera fields.
// Decode failures for HEIC/HEIF (no compatible decoder registered) are
// tolerated: EXIF is still attempted independently of pixel decode.
func (a *Analyzer) analyzeImage(path string, out *types.MediaFileAnalysis) error {
	ext := strings.ToLower(filepath.Ext(path))

	if img, err := decodeImage(path, ext); err == nil {
		bounds := img.Bounds()
		out.Width = bounds.Dx()
		out.Height = bounds.Dy()
	} else if w, h, probeErr := a.probeImageDimensions(path); probeErr == nil {
		out.Width = w
		out.Height = h
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		// No EXIF is not an error condition per §4.1.
		return nil
	}

	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			out.Orientation = v
		}
	}
	if tag, err := x.Get(exif.Make); err == nil {
		if v, err := tag.StringVal(); err == nil {
			out.CameraMake = strings.TrimSpace(v)
		}
	}
	if tag, err := x.Get(exif.Model); err == nil {
		if v, err := tag.StringVal(); err == nil {
			out.CameraModel = strings.TrimSpace(v)
		}
	}

	out.ExifData["orientation"] = out.Orientation
	out.ExifData["camera_make"] = out.CameraMake
	out.ExifData["camera_model"] = out.CameraModel

	if shotAt, offset, ok := decodeShotAt(x); ok {
		out.ShotAt = shotAt
		out.ExifData["offset_time_original"] = offset
	}

	return nil
}

func decodeImage(path, ext string) (image.Image, error) {
	switch ext {
	case ".webp":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return webp.Decode(f)
	case ".heic", ".heif":
		return nil, fmt.Errorf("no HEIC/HEIF decoder registered")
	default:
		return imaging.Open(path)
	}
}

// probeImageDimensions is the dimension fallback for formats with no
// registered Go decoder (HEIC/HEIF): it shells out to ffprobe, falling
// back to ImageMagick's identify if ffprobe can't read the container,
// so width/height are still populated rather than left at zero.
func (a *Analyzer) probeImageDimensions(path string) (int, int, error) {
	ffprobe := a.FFprobePath
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	if _, err := exec.LookPath(ffprobe); err == nil {
		cmd := exec.Command(ffprobe,
			"-v", "error",
			"-select_streams", "v:0",
			"-show_entries", "stream=width,height",
			"-of", "csv=s=x:p=0",
			path,
		)
		if outBytes, err := cmd.Output(); err == nil {
			if w, h, ok := parseDimensionPair(string(outBytes)); ok {
				return w, h, nil
			}
		}
	}

	if _, err := exec.LookPath("identify"); err == nil {
		cmd := exec.Command("identify", "-format", "%wx%h", path)
		if outBytes, err := cmd.Output(); err == nil {
			if w, h, ok := parseDimensionPair(string(outBytes)); ok {
				return w, h, nil
			}
		}
	}

	return 0, 0, fmt.Errorf("probe dimensions: no decoder available for %s", path)
}

func parseDimensionPair(s string) (int, int, bool) {
	s = strings.TrimSpace(strings.SplitN(s, "\n", 2)[0])
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// decodeShotAt derives shot_at from EXIF DateTimeOriginal, combined with
// OffsetTimeOriginal when present, per §4.1.
func decodeShotAt(x *exif.Exif) (*time.Time, string, bool) {
	tag, err := x.Get(exif.DateTimeOriginal)
	if err != nil {
		return nil, "", false
	}
	raw, err := tag.StringVal()
	if err != nil {
		return nil, "", false
	}

	offset := ""
	if offTag, err := x.Get(exif.OffsetTimeOriginal); err == nil {
		if v, err := offTag.StringVal(); err == nil {
			offset = v
		}
	}

	layout := "2006:01:02 15:04:05"
	if offset != "" {
		t, err := time.Parse(layout+" -07:00", raw+" "+offset)
		if err == nil {
			utc := t.UTC()
			return &utc, offset, true
		}
	}

	t, err := time.ParseInLocation(layout, raw, time.Local)
	if err != nil {
		return nil, "", false
	}
	utc := t.UTC()
	return &utc, "", true
}

// analyzeVideo shells out to ffprobe for dimensions, duration, and
// creation_time, per §4.1's container-metadata rule.
func (a *Analyzer) analyzeVideo(path string, out *types.MediaFileAnalysis) error {
	ffprobe := a.FFprobePath
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	if _, err := exec.LookPath(ffprobe); err != nil {
		out.VideoMetadata = map[string]interface{}{"processing_status": "ffprobe_unavailable"}
		return fmt.Errorf("ffprobe not available: %w", err)
	}

	cmd := exec.Command(ffprobe,
		"-v", "error",
		"-show_entries", "stream=width,height,r_frame_rate:format=duration:format_tags=creation_time",
		"-of", "default=noprint_wrappers=1",
		path,
	)
	outBytes, err := cmd.Output()
	if err != nil {
		out.VideoMetadata = map[string]interface{}{"processing_status": "probe_failed"}
		return fmt.Errorf("ffprobe: %w", err)
	}

	fields := parseFFprobeOutput(string(outBytes))
	if w, ok := fields["width"]; ok {
		out.Width, _ = strconv.Atoi(w)
	}
	if h, ok := fields["height"]; ok {
		out.Height, _ = strconv.Atoi(h)
	}
	if d, ok := fields["duration"]; ok {
		if secs, err := strconv.ParseFloat(d, 64); err == nil {
			out.DurationMs = int64(secs * 1000)
		}
	}
	fps := 0.0
	if r, ok := fields["r_frame_rate"]; ok {
		fps = parseFrameRate(r)
	}
	out.VideoMetadata = map[string]interface{}{
		"fps":               fps,
		"processing_status": "probed",
	}

	if ct, ok := fields["TAG:creation_time"]; ok {
		if t, err := time.Parse(time.RFC3339, ct); err == nil {
			utc := t.UTC()
			out.ShotAt = &utc
		}
	}
	return nil
}

func parseFFprobeOutput(s string) map[string]string {
	fields := map[string]string{}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if _, exists := fields[parts[0]]; !exists {
			fields[parts[0]] = parts[1]
		}
	}
	return fields
}

func parseFrameRate(s string) float64 {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}
