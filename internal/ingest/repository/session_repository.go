package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/mverrors"
	"gorm.io/gorm"
)

// SessionRepository is the data access layer for database.PickerSession.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*database.PickerSession, error) {
	var s database.PickerSession
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &mverrors.ErrNotFound{Resource: "picker_session", ID: sessionID}
	}
	if err != nil {
		return nil, fmt.Errorf("session repository: get by session id: %w", err)
	}
	return &s, nil
}

func (r *SessionRepository) Create(ctx context.Context, s *database.PickerSession) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("session repository: create: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction, handing back a SessionRepository
// bound to the tx so commit/rollback/retry-once callers (SetProgress) can
// compose against it.
func (r *SessionRepository) WithTx(ctx context.Context, fn func(tx *SessionRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&SessionRepository{db: tx})
	})
}

// Save persists every field on s (full-row save), used by SetProgress's
// apply-then-commit step.
func (r *SessionRepository) Save(ctx context.Context, s *database.PickerSession) error {
	if err := r.db.WithContext(ctx).Save(s).Error; err != nil {
		return fmt.Errorf("session repository: save: %w", err)
	}
	return nil
}

func (r *SessionRepository) TouchPolled(ctx context.Context, sessionID string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&database.PickerSession{}).
		Where("session_id = ?", sessionID).
		Update("last_polled_at", at)
	if result.Error != nil {
		return fmt.Errorf("session repository: touch polled: %w", result.Error)
	}
	return nil
}
