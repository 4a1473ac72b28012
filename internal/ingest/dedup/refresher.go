package dedup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mantonx/mediavault/internal/archive"
	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/analyzer"
	"github.com/mantonx/mediavault/internal/ingest/repository"
	"github.com/mantonx/mediavault/internal/logger"
	"gorm.io/gorm"
)

// Refresher implements the Metadata Refresher (§4.3): reconciles an
// existing Media row against a freshly re-imported duplicate.
type Refresher struct {
	media     *repository.MediaRepository
	mediaItem *repository.MediaItemRepository
	playback  *repository.PlaybackRepository
	exif      *repository.ExifRepository
	analyzer  *analyzer.Analyzer
	roots     archive.Roots
	log       logger.Logger
}

func NewRefresher(
	media *repository.MediaRepository,
	mediaItem *repository.MediaItemRepository,
	playback *repository.PlaybackRepository,
	exif *repository.ExifRepository,
	an *analyzer.Analyzer,
	roots archive.Roots,
	log logger.Logger,
) *Refresher {
	return &Refresher{
		media: media, mediaItem: mediaItem, playback: playback, exif: exif,
		analyzer: an, roots: roots, log: logger.OrNop(log),
	}
}

// Refresh implements §4.3's contract. It never returns an error out of the
// importer's control flow: failures are logged as duplicate_refresh_failed
// and reported via the (bool, error) return so the caller can set
// metadata_refreshed = false without treating it as a hard failure. The
// media/exif/media_item/playback row updates commit atomically: any
// failure partway through rolls the whole set back rather than leaving a
// half-updated row set behind.
func (r *Refresher) Refresh(ctx context.Context, existing *database.Media, fallbackPath string) (committed bool, err error) {
	currentArchivePath := filepath.Join(r.roots.Originals, existing.LocalRelPath)
	analyzePath := currentArchivePath
	if _, statErr := os.Stat(currentArchivePath); statErr != nil {
		analyzePath = fallbackPath
	}

	fresh, analyzeErr := r.analyzer.Analyze(analyzePath)
	if analyzeErr != nil {
		r.log.Error("local_import.file.duplicate_refresh_failed", analyzeErr, logger.F("media_id", existing.ID))
		return false, nil
	}

	newRelPath := fresh.RelativePath
	repartitioned := newRelPath != existing.LocalRelPath

	if repartitioned {
		dest := filepath.Join(r.roots.Originals, newRelPath)
		if err := archive.MoveOrCopy(analyzePath, dest); err != nil {
			r.log.Error("local_import.file.duplicate_refresh_failed", err, logger.F("media_id", existing.ID))
			return false, nil
		}
	}

	item, _ := r.mediaItem.GetByGoogleMediaID(ctx, existing.GoogleMediaID)

	txErr := r.media.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		oldRelPath := existing.LocalRelPath

		if repartitioned {
			if err := rebasePlaybackTx(tx, r.roots, existing.ID, oldRelPath, newRelPath); err != nil {
				return fmt.Errorf("rebase playback: %w", err)
			}
			existing.LocalRelPath = newRelPath
		}

		updates := map[string]interface{}{
			"mime_type":      fresh.MimeType,
			"hash_sha256":    fresh.FileHash,
			"bytes":          fresh.FileSize,
			"width":          fresh.Width,
			"height":         fresh.Height,
			"orientation":    fresh.Orientation,
			"local_rel_path": existing.LocalRelPath,
		}
		if fresh.ShotAt != nil {
			updates["shot_at"] = *fresh.ShotAt
		}
		if fresh.DurationMs > 0 {
			updates["duration_ms"] = fresh.DurationMs
		}
		if fresh.CameraMake != "" {
			updates["camera_make"] = fresh.CameraMake
		}
		if fresh.CameraModel != "" {
			updates["camera_model"] = fresh.CameraModel
		}
		if err := tx.Model(&database.Media{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update media: %w", err)
		}

		if err := upsertExifTx(tx, &database.Exif{
			MediaID:     existing.ID,
			CameraMake:  strPtr(fresh.CameraMake),
			CameraModel: strPtr(fresh.CameraModel),
		}); err != nil {
			return fmt.Errorf("upsert exif: %w", err)
		}

		if item != nil {
			item.Width = fresh.Width
			item.Height = fresh.Height
			if fresh.IsVideo {
				item.Type = database.MediaKindVideo
			} else {
				item.Type = database.MediaKindPhoto
			}
			if err := upsertMediaItemTx(tx, item); err != nil {
				return fmt.Errorf("upsert media item: %w", err)
			}
		}

		return nil
	})
	if txErr != nil {
		r.log.Error("local_import.file.duplicate_refresh_failed", txErr, logger.F("media_id", existing.ID))
		return false, nil
	}

	return true, nil
}

// rebasePlaybackTx rebases every MediaPlayback.rel_path/poster_rel_path
// under the new partition, preserving the stem/suffix convention (§4.3),
// inside the caller's transaction so the row updates commit with the rest
// of the refresh or not at all.
func rebasePlaybackTx(tx *gorm.DB, roots archive.Roots, mediaID uint64, oldRel, newRel string) error {
	for _, preset := range []database.PlaybackPreset{
		database.PlaybackPresetOriginal, database.PlaybackPresetPreview,
		database.PlaybackPresetMobile, database.PlaybackPresetStd1080p,
	} {
		var pb database.MediaPlayback
		err := tx.Where("media_id = ? AND preset = ?", mediaID, preset).First(&pb).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if pb.RelPath != nil {
			newPath := rebaseSibling(oldRel, newRel, *pb.RelPath)
			if newPath != *pb.RelPath {
				src := filepath.Join(roots.Playback, *pb.RelPath)
				dst := filepath.Join(roots.Playback, newPath)
				if _, statErr := os.Stat(src); statErr == nil {
					if err := archive.MoveOrCopy(src, dst); err != nil {
						return err
					}
				}
				updates["rel_path"] = newPath
			}
		}
		if pb.PosterRelPath != nil {
			newPath := rebaseSibling(oldRel, newRel, *pb.PosterRelPath)
			if newPath != *pb.PosterRelPath {
				src := filepath.Join(roots.Playback, *pb.PosterRelPath)
				dst := filepath.Join(roots.Playback, newPath)
				if _, statErr := os.Stat(src); statErr == nil {
					if err := archive.MoveOrCopy(src, dst); err != nil {
						return err
					}
				}
				updates["poster_rel_path"] = newPath
			}
		}
		if len(updates) > 0 {
			if err := tx.Model(&database.MediaPlayback{}).Where("id = ?", pb.ID).Updates(updates).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// upsertExifTx mirrors ExifRepository.Upsert's create-or-update shape
// against the caller's transaction.
func upsertExifTx(tx *gorm.DB, e *database.Exif) error {
	var existing database.Exif
	err := tx.Where("media_id = ?", e.MediaID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(e).Error
	}
	if err != nil {
		return err
	}
	return tx.Model(&database.Exif{}).Where("media_id = ?", e.MediaID).Updates(e).Error
}

// upsertMediaItemTx mirrors MediaItemRepository.Upsert's create-or-save
// shape against the caller's transaction.
func upsertMediaItemTx(tx *gorm.DB, item *database.MediaItem) error {
	var existing database.MediaItem
	err := tx.Where("google_media_id = ?", item.GoogleMediaID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(item).Error
	case err != nil:
		return err
	}
	item.ID = existing.ID
	return tx.Save(item).Error
}

// rebaseSibling returns newRel's stem (slash-separated) with relPath's own
// suffix appended. oldRel is not consulted.
func rebaseSibling(oldRel, newRel, relPath string) string {
	suffix := filepath.Ext(relPath)
	newStem := archive.ToSlash(newRel[:len(newRel)-len(filepath.Ext(newRel))])
	return newStem + suffix
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
