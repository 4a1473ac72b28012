// Package postprocess implements the Thumbnail Worker (§4.7.2), the
// playback preparation orchestration (§4.7.1), and the Retry Scheduler
// (§4.7.3).
package postprocess

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/mantonx/mediavault/internal/archive"
	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/repository"
	"github.com/mantonx/mediavault/internal/ingest/types"
	"github.com/mantonx/mediavault/internal/logger"
)

// PlaybackNotReady is the sentinel notes string §4.7.2/§4.7.3 name
// verbatim; the Retry Scheduler matches on this exact value.
const PlaybackNotReady = "playback not ready"

// Sizes is the fixed thumbnail size set of §4.7.2 (long-side pixels).
var Sizes = []int{256, 512, 1024, 2048}

// ThumbnailWorker implements thumbs_generate (§4.7.2).
type ThumbnailWorker struct {
	media    *repository.MediaRepository
	playback *repository.PlaybackRepository
	roots    archive.Roots
	quality  float32
	log      logger.Logger
}

func NewThumbnailWorker(media *repository.MediaRepository, playback *repository.PlaybackRepository, roots archive.Roots, quality float32, log logger.Logger) *ThumbnailWorker {
	if quality <= 0 {
		quality = 85
	}
	return &ThumbnailWorker{media: media, playback: playback, roots: roots, quality: quality, log: logger.OrNop(log)}
}

// Generate runs thumbs_generate for one Media, per §4.7.2's contract.
func (w *ThumbnailWorker) Generate(ctx context.Context, mediaID uint64, force bool) (types.ThumbnailResult, error) {
	m, err := w.media.GetByID(ctx, mediaID)
	if err != nil {
		return types.ThumbnailResult{}, fmt.Errorf("thumbnail worker: load media: %w", err)
	}
	if m.IsDeleted {
		return w.skipAll("deleted"), nil
	}

	sourcePath, alpha, decodeErr := w.resolveSource(ctx, m)
	if decodeErr != nil {
		if decodeErr == errPlaybackNotReady {
			return types.ThumbnailResult{
				OK:    true,
				Notes: PlaybackNotReady,
				RetryBlockers: map[string]interface{}{"reason": "completed playback missing"},
			}, nil
		}
		return types.ThumbnailResult{}, decodeErr
	}

	img, err := decodeSource(sourcePath)
	if err != nil {
		return types.ThumbnailResult{}, fmt.Errorf("thumbnail worker: decode %s: %w", sourcePath, err)
	}

	ext := ".jpg"
	if alpha {
		ext = ".png"
	}
	baseRel := relForThumbnail(m, ext)

	result := types.ThumbnailResult{OK: true, Paths: map[int]string{}}
	srcLongSide := img.Bounds().Dx()
	if img.Bounds().Dy() > srcLongSide {
		srcLongSide = img.Bounds().Dy()
	}

	var lastRel string
	for _, size := range Sizes {
		destRel := filepath.Join(strconv.Itoa(size), baseRel)
		destPath := filepath.Join(w.roots.Thumbnails, destRel)

		if !force {
			if _, err := os.Stat(destPath); err == nil {
				result.Skipped = append(result.Skipped, size)
				continue
			}
		}
		if srcLongSide < size {
			result.Skipped = append(result.Skipped, size)
			continue
		}

		thumb := imaging.Fit(img, size, size, imaging.Lanczos)
		if err := writeThumbnail(thumb, destPath, ext, w.quality); err != nil {
			return types.ThumbnailResult{}, fmt.Errorf("thumbnail worker: write size %d: %w", size, err)
		}
		result.Generated = append(result.Generated, size)
		result.Paths[size] = archive.ToSlash(destRel)
		lastRel = archive.ToSlash(destRel)
	}

	if lastRel != "" {
		normalized := normalizeThumbnailRelPath(baseRel)
		if m.ThumbnailRelPath == nil || *m.ThumbnailRelPath != normalized {
			if err := w.media.SetThumbnailRelPath(ctx, m.ID, normalized); err != nil {
				return types.ThumbnailResult{}, fmt.Errorf("thumbnail worker: persist thumbnail path: %w", err)
			}
		}
	}

	return result, nil
}

var errPlaybackNotReady = fmt.Errorf("playback not ready")

// resolveSource returns the path to read pixels from and whether the
// source carries alpha (driving the .png/.jpg choice).
func (w *ThumbnailWorker) resolveSource(ctx context.Context, m *database.Media) (string, bool, error) {
	if !m.IsVideo {
		path := filepath.Join(w.roots.Originals, m.LocalRelPath)
		img, err := decodeSource(path)
		if err != nil {
			return "", false, fmt.Errorf("thumbnail worker: probe alpha: %w", err)
		}
		return path, hasAlpha(img), nil
	}

	pb, err := w.playback.GetByMediaAndPreset(ctx, m.ID, database.PlaybackPresetStd1080p)
	if err != nil {
		return "", false, fmt.Errorf("thumbnail worker: lookup playback: %w", err)
	}
	if pb == nil || pb.Status != database.PlaybackStatusDone {
		return "", false, errPlaybackNotReady
	}
	if pb.PosterRelPath == nil || *pb.PosterRelPath == "" {
		return "", false, errPlaybackNotReady
	}
	posterPath := filepath.Join(w.roots.Playback, *pb.PosterRelPath)
	if _, err := os.Stat(posterPath); err != nil {
		return "", false, errPlaybackNotReady
	}
	return posterPath, false, nil
}

func (w *ThumbnailWorker) skipAll(reason string) types.ThumbnailResult {
	result := types.ThumbnailResult{OK: true, Paths: map[int]string{}}
	result.Skipped = append(result.Skipped, Sizes...)
	result.Notes = reason
	return result
}

func relForThumbnail(m *database.Media, ext string) string {
	stem := m.LocalRelPath
	oldExt := filepath.Ext(stem)
	stem = stem[:len(stem)-len(oldExt)]
	return stem + ext
}

func normalizeThumbnailRelPath(rel string) string {
	return archive.ToSlash(rel)
}

func decodeSource(path string) (image.Image, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".webp":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return webp.Decode(f)
	case ".heic", ".heif":
		return decodeHEICViaFFmpeg(path)
	default:
		return imaging.Open(path, imaging.AutoOrientation(true))
	}
}

// decodeHEICViaFFmpeg is the dimension-and-pixel fallback for HEIC/HEIF
// sources: no Go codec is registered for the container, so it shells out
// to ffmpeg to extract the first frame into a decodable temp PNG, mirroring
// the Media Analyzer's ffprobe dimension fallback for the same formats.
func decodeHEICViaFFmpeg(path string) (image.Image, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("decode heic/heif: ffmpeg not available: %w", err)
	}

	tmp, err := os.CreateTemp("", "heic-decode-*.png")
	if err != nil {
		return nil, fmt.Errorf("decode heic/heif: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	cmd := exec.Command("ffmpeg", "-y", "-i", path, "-frames:v", "1", tmpPath)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("decode heic/heif: ffmpeg convert: %w", err)
	}
	return imaging.Open(tmpPath, imaging.AutoOrientation(true))
}

func hasAlpha(img image.Image) bool {
	switch img.(type) {
	case *image.NRGBA, *image.RGBA:
		bounds := img.Bounds()
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				_, _, _, a := img.At(x, y).RGBA()
				if a < 0xffff {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

func writeThumbnail(img image.Image, destPath, ext string, quality float32) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-thumb-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	var encErr error
	switch ext {
	case ".png":
		encErr = png.Encode(tmp, img)
	default:
		encErr = jpeg.Encode(tmp, img, &jpeg.Options{Quality: int(quality)})
	}
	closeErr := tmp.Close()
	if encErr != nil {
		os.Remove(tmpPath)
		return encErr
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return closeErr
	}
	return archive.AtomicRename(tmpPath, destPath)
}
