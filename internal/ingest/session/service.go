// Package session implements the Session Service (§4.10): the sole owner
// of PickerSession status transitions, its stats blob, and the
// cancellation latch. Every other component that wants to move a Session
// forward calls through here rather than writing the row directly, so
// ordering stays consistent under the rollback-and-retry protocol below.
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mantonx/mediavault/internal/clock"
	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/repository"
	"github.com/mantonx/mediavault/internal/logger"
	"github.com/mantonx/mediavault/internal/taskrunner"
	"gorm.io/datatypes"
)

// Service implements set_progress and cancel_requested (§4.10).
type Service struct {
	sessions *repository.SessionRepository
	clock    clock.Clock
	log      logger.Logger
}

func NewService(sessions *repository.SessionRepository, c clock.Clock, log logger.Logger) *Service {
	if c == nil {
		c = clock.Real
	}
	return &Service{sessions: sessions, clock: c, log: logger.OrNop(log)}
}

// ProgressUpdate is set_progress's argument: every field is optional, and
// only non-nil/non-empty fields are applied.
type ProgressUpdate struct {
	Status         *database.PickerSessionStatus
	Stage          *string
	ExternalTaskID *string
	StatsUpdates   map[string]interface{}
}

// SetProgress applies update to sess in memory, then commits. If the first
// commit fails, it rolls back, reapplies the same mutations against a
// freshly-read row, and commits once more; a second failure is logged and
// returned to the caller.
func (s *Service) SetProgress(ctx context.Context, sess *database.PickerSession, update ProgressUpdate) error {
	if err := s.commitOnce(ctx, sess, update); err != nil {
		s.log.Warn("local_import.session.progress_retry", logger.F("session_id", sess.SessionID), logger.F("error", err.Error()))
		if err := s.commitOnce(ctx, sess, update); err != nil {
			s.log.Error("local_import.session.progress_update_failed", err, logger.F("session_id", sess.SessionID))
			return fmt.Errorf("session service: set progress: %w", err)
		}
	}
	return nil
}

// commitOnce re-reads the row inside a fresh transaction, applies update,
// and saves — the unit the retry wraps.
func (s *Service) commitOnce(ctx context.Context, sess *database.PickerSession, update ProgressUpdate) error {
	return s.sessions.WithTx(ctx, func(tx *repository.SessionRepository) error {
		fresh, err := tx.GetBySessionID(ctx, sess.SessionID)
		if err != nil {
			return err
		}

		if update.Status != nil {
			fresh.Status = *update.Status
		}

		stats := decodeStats(fresh.StatsJSON)
		if update.Stage != nil {
			stats["stage"] = *update.Stage
		}
		if update.ExternalTaskID != nil {
			stats["celery_task_id"] = *update.ExternalTaskID
		}
		for k, v := range update.StatsUpdates {
			stats[k] = v
		}

		encoded, err := encodeStats(stats)
		if err != nil {
			return err
		}
		fresh.StatsJSON = encoded

		now := s.clock.Now()
		fresh.LastProgressAt = &now
		fresh.UpdatedAt = now

		if err := tx.Save(ctx, fresh); err != nil {
			return err
		}
		*sess = *fresh
		return nil
	})
}

// CancelRequested implements cancel_requested (§4.10 / §5): true if the
// task runner reports the instance aborted, or a re-read of the session
// shows status canceled or stats.cancel_requested == true. On a read
// failure it retries the same session_id lookup once before giving up (treated as not
// canceled, matching the Queue Processor's fail-open posture on a single
// transient read error).
func (s *Service) CancelRequested(ctx context.Context, sess *database.PickerSession, runner taskrunner.TaskRunner, inst *taskrunner.TaskInstance) bool {
	if runner != nil && inst != nil && runner.IsAborted(inst) {
		return true
	}

	fresh, err := s.sessions.GetBySessionID(ctx, sess.SessionID)
	if err != nil {
		fresh, err = s.sessions.GetBySessionID(ctx, sess.SessionID)
		if err != nil {
			return false
		}
	}

	if fresh.Status == database.SessionStatusCanceled {
		return true
	}
	stats := decodeStats(fresh.StatsJSON)
	if v, ok := stats["cancel_requested"].(bool); ok && v {
		return true
	}
	return false
}

func decodeStats(raw datatypes.JSON) map[string]interface{} {
	stats := map[string]interface{}{}
	if len(raw) == 0 {
		return stats
	}
	_ = json.Unmarshal(raw, &stats)
	return stats
}

func encodeStats(stats map[string]interface{}) (datatypes.JSON, error) {
	raw, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("session service: encode stats: %w", err)
	}
	return datatypes.JSON(raw), nil
}
