package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/mantonx/mediavault/internal/database"
	"gorm.io/gorm"
)

// ExifRepository is the data access layer for database.Exif, an optional
// 1:1 with Media.
type ExifRepository struct {
	db *gorm.DB
}

func NewExifRepository(db *gorm.DB) *ExifRepository {
	return &ExifRepository{db: db}
}

func (r *ExifRepository) GetByMediaID(ctx context.Context, mediaID uint64) (*database.Exif, error) {
	var e database.Exif
	err := r.db.WithContext(ctx).Where("media_id = ?", mediaID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("exif repository: get by media id: %w", err)
	}
	return &e, nil
}

// Upsert creates or replaces the Exif row for e.MediaID.
func (r *ExifRepository) Upsert(ctx context.Context, e *database.Exif) error {
	existing, err := r.GetByMediaID(ctx, e.MediaID)
	if err != nil {
		return err
	}
	if existing == nil {
		if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
			return fmt.Errorf("exif repository: create: %w", err)
		}
		return nil
	}
	if err := r.db.WithContext(ctx).Model(&database.Exif{}).Where("media_id = ?", e.MediaID).Updates(e).Error; err != nil {
		return fmt.Errorf("exif repository: update: %w", err)
	}
	return nil
}
