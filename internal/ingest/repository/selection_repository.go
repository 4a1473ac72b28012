package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mantonx/mediavault/internal/database"
	"gorm.io/gorm"
)

// SelectionRepository is the data access layer for database.PickerSelection.
type SelectionRepository struct {
	db *gorm.DB
}

func NewSelectionRepository(db *gorm.DB) *SelectionRepository {
	return &SelectionRepository{db: db}
}

func (r *SelectionRepository) ListBySession(ctx context.Context, sessionID uint64) ([]database.PickerSelection, error) {
	var rows []database.PickerSelection
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("selection repository: list by session: %w", err)
	}
	return rows, nil
}

// ListPendingBySession returns pending and enqueued selections in id order, the queue
// the Queue Processor (§4.6) works through single-threaded per Session.
func (r *SelectionRepository) ListPendingBySession(ctx context.Context, sessionID uint64) ([]database.PickerSelection, error) {
	var rows []database.PickerSelection
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND status IN ?", sessionID, []database.PickerSelectionStatus{
			database.SelectionStatusPending,
			database.SelectionStatusEnqueued,
		}).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("selection repository: list pending: %w", err)
	}
	return rows, nil
}

// GetBySessionAndPath finds the selection keyed by (session_id,
// local_file_path), the lookup the Local-Import Use Case's enqueue step
// (§4.9 step 4) upserts against. Returns nil, nil when no row exists.
func (r *SelectionRepository) GetBySessionAndPath(ctx context.Context, sessionID uint64, localFilePath string) (*database.PickerSelection, error) {
	var row database.PickerSelection
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND local_file_path = ?", sessionID, localFilePath).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selection repository: get by session and path: %w", err)
	}
	return &row, nil
}

// CountByStatus returns the count of sessionID's selections in each of the
// given statuses, keyed by status, for the Local-Import Use Case's finalize
// step (§4.9 step 7).
func (r *SelectionRepository) CountByStatus(ctx context.Context, sessionID uint64) (map[database.PickerSelectionStatus]int64, error) {
	type row struct {
		Status database.PickerSelectionStatus
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&database.PickerSelection{}).
		Select("status, count(*) as count").
		Where("session_id = ?", sessionID).
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("selection repository: count by status: %w", err)
	}
	counts := make(map[database.PickerSelectionStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (r *SelectionRepository) Create(ctx context.Context, s *database.PickerSelection) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("selection repository: create: %w", err)
	}
	return nil
}

func (r *SelectionRepository) Update(ctx context.Context, id uint64, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&database.PickerSelection{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("selection repository: update: %w", result.Error)
	}
	return nil
}

// ClaimLock assigns lockedBy to a pending/enqueued selection, stamping
// started_at and the first heartbeat, and bumps status to running. Returns
// false if the row was no longer claimable (already claimed elsewhere).
func (r *SelectionRepository) ClaimLock(ctx context.Context, id uint64, lockedBy string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&database.PickerSelection{}).
		Where("id = ? AND status IN ?", id, []database.PickerSelectionStatus{
			database.SelectionStatusPending,
			database.SelectionStatusEnqueued,
		}).
		Updates(map[string]interface{}{
			"status":            database.SelectionStatusRunning,
			"locked_by":         lockedBy,
			"lock_heartbeat_at": now,
			"started_at":        now,
			"attempts":          gorm.Expr("attempts + 1"),
		})
	if result.Error != nil {
		return false, fmt.Errorf("selection repository: claim lock: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *SelectionRepository) Heartbeat(ctx context.Context, id uint64, now time.Time) error {
	result := r.db.WithContext(ctx).Model(&database.PickerSelection{}).
		Where("id = ?", id).
		Update("lock_heartbeat_at", now)
	if result.Error != nil {
		return fmt.Errorf("selection repository: heartbeat: %w", result.Error)
	}
	return nil
}

// ListStaleLocked finds running selections whose heartbeat has lagged
// beyond threshold, for the watchdog's reclaim pass (§5).
func (r *SelectionRepository) ListStaleLocked(ctx context.Context, sessionID uint64, threshold time.Time) ([]database.PickerSelection, error) {
	var rows []database.PickerSelection
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND status = ? AND lock_heartbeat_at < ?", sessionID, database.SelectionStatusRunning, threshold).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("selection repository: list stale locked: %w", err)
	}
	return rows, nil
}

// ListStaleEnqueued finds enqueued selections older than threshold since
// enqueued_at, for the "stalled enqueued selections are re-published" rule.
func (r *SelectionRepository) ListStaleEnqueued(ctx context.Context, sessionID uint64, threshold time.Time) ([]database.PickerSelection, error) {
	var rows []database.PickerSelection
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND status = ? AND enqueued_at < ?", sessionID, database.SelectionStatusEnqueued, threshold).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("selection repository: list stale enqueued: %w", err)
	}
	return rows, nil
}
