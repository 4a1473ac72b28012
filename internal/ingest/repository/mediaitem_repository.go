package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/mantonx/mediavault/internal/database"
	"gorm.io/gorm"
)

// MediaItemRepository is the data access layer for database.MediaItem and
// its owned PhotoMetadata/VideoMetadata rows.
type MediaItemRepository struct {
	db *gorm.DB
}

func NewMediaItemRepository(db *gorm.DB) *MediaItemRepository {
	return &MediaItemRepository{db: db}
}

func (r *MediaItemRepository) GetByGoogleMediaID(ctx context.Context, googleMediaID string) (*database.MediaItem, error) {
	var item database.MediaItem
	err := r.db.WithContext(ctx).
		Preload("PhotoMetadata").
		Preload("VideoMetadata").
		Where("google_media_id = ?", googleMediaID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("media item repository: get by google media id: %w", err)
	}
	return &item, nil
}

// Upsert creates item (and its one populated metadata side) or replaces the
// existing row for the same GoogleMediaID, used by the Metadata Refresher
// (§4.3) when a re-import needs to realign descriptor data.
func (r *MediaItemRepository) Upsert(ctx context.Context, item *database.MediaItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing database.MediaItem
		err := tx.Where("google_media_id = ?", item.GoogleMediaID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(item).Error; err != nil {
				return fmt.Errorf("media item repository: create: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("media item repository: lookup: %w", err)
		}

		item.ID = existing.ID
		if err := tx.Save(item).Error; err != nil {
			return fmt.Errorf("media item repository: update: %w", err)
		}
		return nil
	})
}
