// Package repository is the data access layer for the ingestion core's
// entities, grounded on the teacher's mediamodule repository: a thin
// *gorm.DB wrapper per entity, context-first methods, fmt.Errorf wrapping.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/mverrors"
	"gorm.io/gorm"
)

// MediaRepository is the data access layer for database.Media.
type MediaRepository struct {
	db *gorm.DB
}

func NewMediaRepository(db *gorm.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// FindByHash implements the duplicate-detection lookup of §4.2: the unique
// non-deleted (hash_sha256, bytes) pair.
func (r *MediaRepository) FindByHash(ctx context.Context, hashSHA256 string, bytes int64) (*database.Media, error) {
	var m database.Media
	err := r.db.WithContext(ctx).
		Where("hash_sha256 = ? AND bytes = ? AND is_deleted = ?", hashSHA256, bytes, false).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("media repository: find by hash: %w", err)
	}
	return &m, nil
}

func (r *MediaRepository) GetByID(ctx context.Context, id uint64) (*database.Media, error) {
	var m database.Media
	err := r.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &mverrors.ErrNotFound{Resource: "media", ID: fmt.Sprint(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("media repository: get by id: %w", err)
	}
	return &m, nil
}

func (r *MediaRepository) GetByGoogleMediaID(ctx context.Context, googleMediaID string) (*database.Media, error) {
	var m database.Media
	err := r.db.WithContext(ctx).Where("google_media_id = ?", googleMediaID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("media repository: get by google media id: %w", err)
	}
	return &m, nil
}

func (r *MediaRepository) Create(ctx context.Context, m *database.Media) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("media repository: create: %w", err)
	}
	return nil
}

func (r *MediaRepository) Update(ctx context.Context, id uint64, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&database.Media{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("media repository: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &mverrors.ErrNotFound{Resource: "media", ID: fmt.Sprint(id)}
	}
	return nil
}

// SetThumbnailRelPath is the single conditional write path.7.2 describes:
// only touches the row, and only when the value actually changed.
func (r *MediaRepository) SetThumbnailRelPath(ctx context.Context, id uint64, relPath string) error {
	result := r.db.WithContext(ctx).Model(&database.Media{}).
		Where("id = ? AND (thumbnail_rel_path IS NULL OR thumbnail_rel_path != ?)", id, relPath).
		Update("thumbnail_rel_path", relPath)
	if result.Error != nil {
		return fmt.Errorf("media repository: set thumbnail rel path: %w", result.Error)
	}
	return nil
}

func (r *MediaRepository) SoftDelete(ctx context.Context, id uint64) error {
	return r.Update(ctx, id, map[string]interface{}{"is_deleted": true})
}

// ListVideosNeedingTranscode finds videos with no done MediaPlayback row at
// the given preset, for the Transcode Scanner (§4.8).
func (r *MediaRepository) ListVideosNeedingTranscode(ctx context.Context, preset database.PlaybackPreset, limit int) ([]database.Media, error) {
	var media []database.Media
	sub := r.db.Model(&database.MediaPlayback{}).
		Select("media_id").
		Where("preset = ? AND status = ?", preset, database.PlaybackStatusDone)

	q := r.db.WithContext(ctx).
		Where("is_video = ? AND is_deleted = ?", true, false).
		Where("id NOT IN (?)", sub)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&media).Error; err != nil {
		return nil, fmt.Errorf("media repository: list videos needing transcode: %w", err)
	}
	return media, nil
}

func (r *MediaRepository) DB() *gorm.DB {
	return r.db
}
