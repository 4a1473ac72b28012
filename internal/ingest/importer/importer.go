// Package importer implements the File Importer (§4.5): the single-file
// use case that turns one filesystem path into a Media row, or reconciles
// it against an existing duplicate.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mantonx/mediavault/internal/archive"
	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/analyzer"
	"github.com/mantonx/mediavault/internal/ingest/dedup"
	"github.com/mantonx/mediavault/internal/ingest/postprocess"
	"github.com/mantonx/mediavault/internal/ingest/repository"
	"github.com/mantonx/mediavault/internal/ingest/types"
	"github.com/mantonx/mediavault/internal/logger"
	"github.com/mantonx/mediavault/internal/mverrors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Importer implements import_file (§4.5).
type Importer struct {
	media     *repository.MediaRepository
	mediaItem *repository.MediaItemRepository
	exif      *repository.ExifRepository
	analyzer  *analyzer.Analyzer
	checker   *dedup.Checker
	refresher *dedup.Refresher
	preparer  *postprocess.Preparer
	roots     archive.Roots
	log       logger.Logger
}

func New(
	media *repository.MediaRepository,
	mediaItem *repository.MediaItemRepository,
	exif *repository.ExifRepository,
	an *analyzer.Analyzer,
	checker *dedup.Checker,
	refresher *dedup.Refresher,
	preparer *postprocess.Preparer,
	roots archive.Roots,
	log logger.Logger,
) *Importer {
	return &Importer{
		media: media, mediaItem: mediaItem, exif: exif, analyzer: an,
		checker: checker, refresher: refresher, preparer: preparer,
		roots: roots, log: logger.OrNop(log),
	}
}

// Import runs the full 7-step algorithm of §4.5 against one file.
func (im *Importer) Import(ctx context.Context, filePath string, sessionID *string, duplicateMode types.DuplicateRegenerationMode) types.ImportResult {
	log := im.log
	info, statErr := os.Stat(filePath)
	if statErr != nil {
		return types.ImportResult{Status: types.ImportStatusMissing, Reason: "file does not exist"}
	}
	if !archive.IsSupported(filepath.Ext(filePath)) {
		return types.ImportResult{Status: types.ImportStatusUnsupported, Reason: "extension not supported"}
	}
	if info.Size() == 0 {
		return types.ImportResult{Status: types.ImportStatusSkipped, Reason: "empty file"}
	}

	analysis, err := im.analyzer.Analyze(filePath)
	if err != nil {
		log.Error("local_import.file.analyze_failed", err, logger.F("path", filePath))
		return types.ImportResult{Status: types.ImportStatusFailed, Reason: err.Error()}
	}

	existing, err := im.checker.FindDuplicate(ctx, analysis.FileHash, analysis.FileSize)
	if err != nil {
		return types.ImportResult{Status: types.ImportStatusFailed, Reason: err.Error()}
	}

	if existing != nil {
		return im.importDuplicate(ctx, existing, filePath, duplicateMode)
	}
	return im.importNew(ctx, analysis, filePath, sessionID)
}

func (im *Importer) importDuplicate(ctx context.Context, existing *database.Media, filePath string, duplicateMode types.DuplicateRegenerationMode) types.ImportResult {
	result := types.ImportResult{
		Status:        types.ImportStatusDuplicate,
		MediaID:       &existing.ID,
		MediaGoogleID: &existing.GoogleMediaID,
		ImportedPath:  filepath.Join(im.roots.Originals, existing.LocalRelPath),
		RelativePath:  existing.LocalRelPath,
	}

	refreshed, err := im.refresher.Refresh(ctx, existing, filePath)
	if err != nil {
		result.Status = types.ImportStatusFailed
		result.Reason = err.Error()
		return result
	}
	result.MetadataRefreshed = refreshed

	if refreshed {
		result.Status = types.ImportStatusDuplicateRefreshed
		if removeErr := os.Remove(filePath); removeErr != nil {
			im.log.Warn("local_import.file.source_remove_failed", logger.F("path", filePath), logger.F("error", removeErr.Error()))
			result.Warnings = append(result.Warnings, "source file could not be removed")
		}
		if existing.IsVideo && duplicateMode != types.DuplicateSkip {
			thumbResult, err := im.preparer.ThumbnailsOnly(ctx, existing.ID, true)
			if err != nil {
				im.log.Warn("local_import.duplicate.thumbnail_regen_failed", logger.F("media_id", existing.ID), logger.F("error", err.Error()))
			} else {
				result.PostProcess = &types.PostProcessResult{OK: true, Thumbnails: &thumbResult}
			}
		}
	}
	return result
}

func (im *Importer) importNew(ctx context.Context, analysis *types.MediaFileAnalysis, filePath string, sessionID *string) types.ImportResult {
	result := types.ImportResult{RelativePath: analysis.RelativePath}

	destPath := filepath.Join(im.roots.Originals, analysis.RelativePath)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return types.ImportResult{Status: types.ImportStatusFailed, Reason: err.Error()}
	}
	if err := archive.CopyPreservingMetadata(filePath, destPath); err != nil {
		return types.ImportResult{Status: types.ImportStatusFailed, Reason: err.Error()}
	}

	googleMediaID := "local:" + uuid.NewString()
	mediaID, err := im.createMediaRecords(ctx, analysis, googleMediaID)
	if err != nil {
		_ = os.Remove(destPath)
		return types.ImportResult{Status: types.ImportStatusFailed, Reason: err.Error()}
	}

	result.MediaID = &mediaID
	result.MediaGoogleID = &googleMediaID
	result.ImportedFilename = analysis.DestinationFilename
	result.ImportedPath = destPath

	ppResult, err := im.preparer.Prepare(ctx, mediaID, false)
	if err != nil {
		return types.ImportResult{Status: types.ImportStatusFailed, Reason: err.Error()}
	}
	result.PostProcess = &ppResult

	if analysis.IsVideo && !ppResult.OK {
		playbackErr := &mverrors.PlaybackError{Note: ppResult.Note}
		if sessionID != nil && mverrors.IsRecoverable(ppResult.Note) {
			result.Warnings = append(result.Warnings, playbackErr.Error())
		} else {
			return types.ImportResult{Status: types.ImportStatusFailed, Reason: playbackErr.Error(), PostProcess: &ppResult}
		}
	}

	if err := os.Remove(filePath); err != nil {
		im.log.Warn("local_import.file.source_remove_failed", logger.F("path", filePath), logger.F("error", err.Error()))
		result.Warnings = append(result.Warnings, "source file could not be removed")
	}

	result.Status = types.ImportStatusSuccess
	result.Success = true
	return result
}

// createMediaRecords implements §4.5 step 4: MediaItem (+ metadata), Media,
// and Exif (when present) are created inside one transaction.
func (im *Importer) createMediaRecords(ctx context.Context, analysis *types.MediaFileAnalysis, googleMediaID string) (uint64, error) {
	var cameraMake, cameraModel *string
	if analysis.CameraMake != "" {
		v := analysis.CameraMake
		cameraMake = &v
	}
	if analysis.CameraModel != "" {
		v := analysis.CameraModel
		cameraModel = &v
	}

	item := &database.MediaItem{
		ID:            uuid.NewString(),
		GoogleMediaID: googleMediaID,
		Filename:      analysis.DestinationFilename,
		MimeType:      analysis.MimeType,
		Width:         analysis.Width,
		Height:        analysis.Height,
	}
	if analysis.IsVideo {
		item.Type = database.MediaKindVideo
		item.VideoMetadata = &database.VideoMetadata{CameraMake: cameraMake, CameraModel: cameraModel}
	} else {
		item.Type = database.MediaKindPhoto
		item.PhotoMetadata = &database.PhotoMetadata{CameraMake: cameraMake, CameraModel: cameraModel}
	}

	m := &database.Media{
		GoogleMediaID: googleMediaID,
		LocalRelPath:  analysis.RelativePath,
		Filename:      analysis.DestinationFilename,
		HashSHA256:    analysis.FileHash,
		Bytes:         analysis.FileSize,
		MimeType:      analysis.MimeType,
		Width:         analysis.Width,
		Height:        analysis.Height,
		ShotAt:        analysis.ShotAt,
		ImportedAt:    time.Now(),
		IsVideo:       analysis.IsVideo,
		CameraMake:    cameraMake,
		CameraModel:   cameraModel,
	}
	if analysis.DurationMs > 0 {
		durationMs := analysis.DurationMs
		m.DurationMs = &durationMs
	}
	if analysis.Orientation != 0 {
		orientation := analysis.Orientation
		m.Orientation = &orientation
	}

	var exifRow *database.Exif
	if len(analysis.ExifData) > 0 {
		if raw, err := json.Marshal(analysis.ExifData); err == nil {
			exifRow = &database.Exif{Raw: datatypes.JSON(raw)}
		}
	}

	err := im.media.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(item).Error; err != nil {
			return fmt.Errorf("create media item: %w", err)
		}
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("create media: %w", err)
		}
		if exifRow != nil {
			exifRow.MediaID = m.ID
			if err := tx.Create(exifRow).Error; err != nil {
				return fmt.Errorf("create exif: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("importer: %w", err)
	}
	return m.ID, nil
}
