package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mantonx/mediavault/internal/database"
	"gorm.io/gorm"
)

// TaskRecordRepository is the data access layer for database.TaskRecord,
// the generic task-tracking row the Retry Scheduler persists under
// task_name="thumbnail.retry" (§4.7.3) and any other background job can
// reuse.
type TaskRecordRepository struct {
	db *gorm.DB
}

func NewTaskRecordRepository(db *gorm.DB) *TaskRecordRepository {
	return &TaskRecordRepository{db: db}
}

// GetOrCreate mirrors core/models/celery_task.py's classmethod: match first
// by external_task_id if given, else by (task_name, object_type, object_id)
// ordered by id desc (the newest matching row), else create a new one.
func (r *TaskRecordRepository) GetOrCreate(ctx context.Context, taskName string, externalTaskID, objectType, objectID *string) (*database.TaskRecord, bool, error) {
	var existing database.TaskRecord

	q := r.db.WithContext(ctx).Model(&database.TaskRecord{})
	if externalTaskID != nil {
		err := q.Where("external_task_id = ?", *externalTaskID).First(&existing).Error
		if err == nil {
			return &existing, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("task record repository: lookup by external id: %w", err)
		}
	} else if objectType != nil && objectID != nil {
		err := r.db.WithContext(ctx).Model(&database.TaskRecord{}).
			Where("task_name = ? AND object_type = ? AND object_id = ?", taskName, *objectType, *objectID).
			Order("id desc").
			First(&existing).Error
		if err == nil {
			return &existing, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("task record repository: lookup by object: %w", err)
		}
	}

	row := &database.TaskRecord{
		TaskName:       taskName,
		ExternalTaskID: externalTaskID,
		ObjectType:     objectType,
		ObjectID:       objectID,
		Status:         database.TaskStatusScheduled,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, false, fmt.Errorf("task record repository: create: %w", err)
	}
	return row, true, nil
}

// GetLatestByObject returns the newest task_name record for (object_type,
// object_id), or nil if none exists. Used by the Local-Import Use Case's
// finalize step (§4.9) to read a media item's latest thumbnail retry state
// without creating one, unlike GetOrCreate.
func (r *TaskRecordRepository) GetLatestByObject(ctx context.Context, taskName, objectType, objectID string) (*database.TaskRecord, error) {
	var row database.TaskRecord
	err := r.db.WithContext(ctx).
		Where("task_name = ? AND object_type = ? AND object_id = ?", taskName, objectType, objectID).
		Order("id desc").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("task record repository: get latest by object: %w", err)
	}
	return &row, nil
}

func (r *TaskRecordRepository) Update(ctx context.Context, id uint64, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&database.TaskRecord{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("task record repository: update: %w", result.Error)
	}
	return nil
}

// ListDue returns rows matching taskName with status=scheduled and
// scheduled_for<=now, the Retry Monitor's sweep candidates (§4.7.3).
func (r *TaskRecordRepository) ListDue(ctx context.Context, taskName string, now time.Time) ([]database.TaskRecord, error) {
	var rows []database.TaskRecord
	err := r.db.WithContext(ctx).
		Where("task_name = ? AND status = ? AND scheduled_for <= ?", taskName, database.TaskStatusScheduled, now).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("task record repository: list due: %w", err)
	}
	return rows, nil
}

// CountAttempts returns how many rows exist for (task_name, object_type,
// object_id), the Retry Scheduler's attempt count against MaxAttempts.
func (r *TaskRecordRepository) CountAttempts(ctx context.Context, taskName, objectType, objectID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&database.TaskRecord{}).
		Where("task_name = ? AND object_type = ? AND object_id = ?", taskName, objectType, objectID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("task record repository: count attempts: %w", err)
	}
	return count, nil
}
