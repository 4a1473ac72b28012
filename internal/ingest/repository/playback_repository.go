package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/mverrors"
	"gorm.io/gorm"
)

// PlaybackRepository is the data access layer for database.MediaPlayback.
type PlaybackRepository struct {
	db *gorm.DB
}

func NewPlaybackRepository(db *gorm.DB) *PlaybackRepository {
	return &PlaybackRepository{db: db}
}

func (r *PlaybackRepository) GetByID(ctx context.Context, id uint64) (*database.MediaPlayback, error) {
	var p database.MediaPlayback
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("playback repository: get by id: %w", err)
	}
	return &p, nil
}

func (r *PlaybackRepository) GetByMediaAndPreset(ctx context.Context, mediaID uint64, preset database.PlaybackPreset) (*database.MediaPlayback, error) {
	var p database.MediaPlayback
	err := r.db.WithContext(ctx).
		Where("media_id = ? AND preset = ?", mediaID, preset).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("playback repository: get by media and preset: %w", err)
	}
	return &p, nil
}

// GetOrCreatePending returns the (media_id, preset) row, creating it in
// pending status if absent. This is the row the Transcode Worker's status
// gate (P6) reads and advances.
func (r *PlaybackRepository) GetOrCreatePending(ctx context.Context, mediaID uint64, preset database.PlaybackPreset) (*database.MediaPlayback, error) {
	existing, err := r.GetByMediaAndPreset(ctx, mediaID, preset)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	row := &database.MediaPlayback{
		MediaID: mediaID,
		Preset:  preset,
		Status:  database.PlaybackStatusPending,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("playback repository: create pending: %w", err)
	}
	return row, nil
}

// ClaimForProcessing atomically transitions a row from pending to
// processing, returning false if another worker already claimed it. This is
// the concurrency gate named in §4.8/P6.
func (r *PlaybackRepository) ClaimForProcessing(ctx context.Context, id uint64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&database.MediaPlayback{}).
		Where("id = ? AND status = ?", id, database.PlaybackStatusPending).
		Update("status", database.PlaybackStatusProcessing)
	if result.Error != nil {
		return false, fmt.Errorf("playback repository: claim: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *PlaybackRepository) MarkDone(ctx context.Context, id uint64, fields map[string]interface{}) error {
	fields["status"] = database.PlaybackStatusDone
	result := r.db.WithContext(ctx).Model(&database.MediaPlayback{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("playback repository: mark done: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &mverrors.ErrNotFound{Resource: "media_playback", ID: fmt.Sprint(id)}
	}
	return nil
}

func (r *PlaybackRepository) MarkError(ctx context.Context, id uint64, errMsg string) error {
	result := r.db.WithContext(ctx).Model(&database.MediaPlayback{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":    database.PlaybackStatusError,
			"error_msg": errMsg,
		})
	if result.Error != nil {
		return fmt.Errorf("playback repository: mark error: %w", result.Error)
	}
	return nil
}

func (r *PlaybackRepository) Update(ctx context.Context, id uint64, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&database.MediaPlayback{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("playback repository: update: %w", result.Error)
	}
	return nil
}

// ListPending returns up to limit rows for preset in pending status,
// ordered by id, for a worker loop to claim and process. limit<=0 means
// no cap.
func (r *PlaybackRepository) ListPending(ctx context.Context, preset database.PlaybackPreset, limit int) ([]database.MediaPlayback, error) {
	q := r.db.WithContext(ctx).
		Where("preset = ? AND status = ?", preset, database.PlaybackStatusPending).
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []database.MediaPlayback
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("playback repository: list pending: %w", err)
	}
	return rows, nil
}
