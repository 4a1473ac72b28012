package transcode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mantonx/mediavault/internal/archive"
	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/repository"
	"github.com/mantonx/mediavault/internal/logger"
)

// ScanResult is the Transcode Scanner's return shape (§4.8).
type ScanResult struct {
	Queued  int
	Skipped int
}

// Scanner implements the Transcode Scanner (§4.8): selects videos lacking
// a playback record and creates/revives their std1080p MediaPlayback row.
type Scanner struct {
	media    *repository.MediaRepository
	playback *repository.PlaybackRepository
	roots    archive.Roots
	log      logger.Logger
}

func NewScanner(media *repository.MediaRepository, playback *repository.PlaybackRepository, roots archive.Roots, log logger.Logger) *Scanner {
	return &Scanner{media: media, playback: playback, roots: roots, log: logger.OrNop(log)}
}

// Scan selects every Media with is_video=true, has_playback=false,
// is_deleted=false, ordered by id descending, and queues or revives a
// std1080p MediaPlayback row for each.
func (s *Scanner) Scan(ctx context.Context, limit int) (ScanResult, error) {
	candidates, err := s.media.ListVideosNeedingTranscode(ctx, database.PlaybackPresetStd1080p, limit)
	if err != nil {
		return ScanResult{}, fmt.Errorf("transcode scanner: list candidates: %w", err)
	}

	var result ScanResult
	for _, m := range candidates {
		sourcePath := filepath.Join(s.roots.Originals, m.LocalRelPath)
		if _, err := os.Stat(sourcePath); err != nil {
			result.Skipped++
			continue
		}

		existing, err := s.playback.GetByMediaAndPreset(ctx, m.ID, database.PlaybackPresetStd1080p)
		if err != nil {
			return result, fmt.Errorf("transcode scanner: lookup playback: %w", err)
		}

		if existing != nil {
			switch existing.Status {
			case database.PlaybackStatusPending, database.PlaybackStatusProcessing, database.PlaybackStatusDone:
				result.Skipped++
				continue
			default:
				relPath := archive.ReplaceSuffix(m.LocalRelPath, ".mp4")
				if err := s.playback.Update(ctx, existing.ID, map[string]interface{}{
					"status":    database.PlaybackStatusPending,
					"error_msg": nil,
					"rel_path":  relPath,
				}); err != nil {
					return result, fmt.Errorf("transcode scanner: revive: %w", err)
				}
				result.Queued++
				continue
			}
		}

		relPath := archive.ReplaceSuffix(m.LocalRelPath, ".mp4")
		created, err := s.playback.GetOrCreatePending(ctx, m.ID, database.PlaybackPresetStd1080p)
		if err != nil {
			return result, fmt.Errorf("transcode scanner: create pending: %w", err)
		}
		if err := s.playback.Update(ctx, created.ID, map[string]interface{}{"rel_path": relPath}); err != nil {
			s.log.Warn("transcode.scanner.relpath_update_failed", logger.F("media_id", m.ID))
		}
		result.Queued++
	}
	return result, nil
}
