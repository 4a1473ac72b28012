package postprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mantonx/mediavault/internal/clock"
	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/repository"
	"github.com/mantonx/mediavault/internal/ingest/types"
	"github.com/mantonx/mediavault/internal/logger"
	"github.com/mantonx/mediavault/internal/taskrunner"
	"gorm.io/datatypes"
)

// MaxAttempts, Countdown and TaskName are the constants §4.7.3 requires be
// preserved verbatim.
const (
	MaxAttempts = 5
	Countdown   = 300 * time.Second
	TaskName    = "thumbnail.retry"
)

// retryPayload is the JSON shape stored in TaskRecord.PayloadJSON. TaskRecord
// has no dedicated attempts/retry_disabled columns, so the scheduler's own
// bookkeeping lives in the payload blob alongside the caller's force flag.
type retryPayload struct {
	Force           bool                   `json:"force"`
	Blockers        map[string]interface{} `json:"blockers,omitempty"`
	Attempts        int                    `json:"attempts"`
	RetryDisabled   bool                   `json:"retry_disabled,omitempty"`
	MonitorReported bool                   `json:"monitor_reported,omitempty"`
}

// Scheduler implements the Retry Scheduler and Retry Monitor of §4.7.3.
type Scheduler struct {
	tasks  *repository.TaskRecordRepository
	thumbs *ThumbnailWorker
	runner taskrunner.TaskRunner
	clock  clock.Clock
	log    logger.Logger
}

func NewScheduler(tasks *repository.TaskRecordRepository, thumbs *ThumbnailWorker, runner taskrunner.TaskRunner, c clock.Clock, log logger.Logger) *Scheduler {
	if c == nil {
		c = clock.Real
	}
	return &Scheduler{tasks: tasks, thumbs: thumbs, runner: runner, clock: c, log: logger.OrNop(log)}
}

// Handler is the taskrunner.Handler body for TaskName, registered once at
// startup against the process's TaskRunner so a delayed retry resolves back
// into a Thumbnail Worker re-invocation.
func (s *Scheduler) Handler(ctx context.Context, inst *taskrunner.TaskInstance, args map[string]interface{}) error {
	mediaID, err := coerceMediaID(args["media_id"])
	if err != nil {
		return fmt.Errorf("retry scheduler: handler: %w", err)
	}
	force, _ := args["force"].(bool)
	_, err = s.runOne(ctx, mediaID, force)
	return err
}

// Schedule is called when the Thumbnail Worker returns notes ==
// PlaybackNotReady. It implements §4.7.3's lookup/create, attempt-count
// check, and delayed-resubmission logic.
func (s *Scheduler) Schedule(ctx context.Context, mediaID uint64, force bool, blockers map[string]interface{}) (types.RetryDecision, error) {
	objectType := "media"
	objectID := fmt.Sprintf("%d", mediaID)

	record, _, err := s.tasks.GetOrCreate(ctx, TaskName, nil, &objectType, &objectID)
	if err != nil {
		return types.RetryDecision{}, fmt.Errorf("retry scheduler: get or create record: %w", err)
	}

	payload := decodePayload(record.PayloadJSON)
	payload.Force = force
	payload.Blockers = blockers

	if payload.Attempts >= MaxAttempts {
		payload.RetryDisabled = true
		encoded, err := json.Marshal(payload)
		if err != nil {
			return types.RetryDecision{}, fmt.Errorf("retry scheduler: encode payload: %w", err)
		}
		if err := s.tasks.Update(ctx, record.ID, map[string]interface{}{
			"status":        database.TaskStatusFailed,
			"scheduled_for": nil,
			"payload_json":  datatypes.JSON(encoded),
		}); err != nil {
			return types.RetryDecision{}, fmt.Errorf("retry scheduler: disable record: %w", err)
		}
		return types.RetryDecision{
			Scheduled: false,
			Reason:    "max_attempts",
			Attempts:  payload.Attempts,
			Blockers:  blockers,
		}, nil
	}

	payload.Attempts++
	encoded, err := json.Marshal(payload)
	if err != nil {
		return types.RetryDecision{}, fmt.Errorf("retry scheduler: encode payload: %w", err)
	}

	externalTaskID, err := s.runner.SubmitDelayed(ctx, TaskName, map[string]interface{}{
		"media_id": mediaID,
		"force":    force,
	}, Countdown)
	if err != nil {
		return types.RetryDecision{}, fmt.Errorf("retry scheduler: submit delayed: %w", err)
	}

	scheduledFor := s.clock.Now().Add(Countdown)
	if err := s.tasks.Update(ctx, record.ID, map[string]interface{}{
		"status":           database.TaskStatusScheduled,
		"scheduled_for":    scheduledFor,
		"payload_json":     datatypes.JSON(encoded),
		"external_task_id": externalTaskID,
	}); err != nil {
		return types.RetryDecision{}, fmt.Errorf("retry scheduler: persist schedule: %w", err)
	}

	return types.RetryDecision{
		Scheduled:      true,
		Countdown:      Countdown,
		ExternalTaskID: externalTaskID,
		Attempts:       payload.Attempts,
		MaxAttempts:    MaxAttempts,
		Blockers:       blockers,
	}, nil
}

// runOne re-invokes the Thumbnail Worker for one retry attempt and resolves
// it to success, another retry, or permanent failure.
func (s *Scheduler) runOne(ctx context.Context, mediaID uint64, force bool) (string, error) {
	result, err := s.thumbs.Generate(ctx, mediaID, force)
	if err != nil {
		return "", err
	}
	if result.Notes != PlaybackNotReady {
		return "cleared", nil
	}
	decision, err := s.Schedule(ctx, mediaID, force, result.RetryBlockers)
	if err != nil {
		return "", err
	}
	if !decision.Scheduled {
		return "disabled", nil
	}
	return "rescheduled", nil
}

// MonitorResult is the Retry Monitor sweep's outcome (§4.7.3).
type MonitorResult struct {
	Cleared     int
	Rescheduled int
	Disabled    int
}

// Sweep scans TaskRecord rows with task_name="thumbnail.retry",
// status=SCHEDULED, scheduled_for<=now, re-runs each, and logs a single
// warning for newly retry_disabled records.
func (s *Scheduler) Sweep(ctx context.Context) (MonitorResult, error) {
	due, err := s.tasks.ListDue(ctx, TaskName, s.clock.Now())
	if err != nil {
		return MonitorResult{}, fmt.Errorf("retry monitor: list due: %w", err)
	}

	var result MonitorResult
	var blockedSample []uint64
	for _, record := range due {
		payload := decodePayload(record.PayloadJSON)
		mediaID, objErr := parseMediaID(record.ObjectID)
		if objErr != nil {
			continue
		}

		outcome, err := s.runOne(ctx, mediaID, payload.Force)
		if err != nil {
			s.log.Warn("postprocess.retry_monitor.run_failed", logger.F("media_id", mediaID), logger.F("error", err.Error()))
			continue
		}

		switch outcome {
		case "cleared":
			result.Cleared++
			if err := s.tasks.Update(ctx, record.ID, map[string]interface{}{
				"status":        database.TaskStatusSuccess,
				"scheduled_for": nil,
				"payload_json":  datatypes.JSON("{}"),
			}); err != nil {
				s.log.Warn("postprocess.retry_monitor.clear_failed", logger.F("task_record_id", record.ID))
			}
		case "rescheduled":
			result.Rescheduled++
		default:
			result.Disabled++
			reloaded := decodePayload(record.PayloadJSON)
			if fresh, err := s.tasks.GetLatestByObject(ctx, TaskName, "media", *record.ObjectID); err == nil && fresh != nil {
				reloaded = decodePayload(fresh.PayloadJSON)
			}
			if reloaded.RetryDisabled && !reloaded.MonitorReported {
				blockedSample = append(blockedSample, mediaID)
				reloaded.MonitorReported = true
				if encoded, err := json.Marshal(reloaded); err == nil {
					_ = s.tasks.Update(ctx, record.ID, map[string]interface{}{"payload_json": datatypes.JSON(encoded)})
				}
			}
		}
	}

	if len(blockedSample) > 0 {
		s.log.Warn("postprocess.retry_monitor_blocked", logger.F("media_ids", blockedSample), logger.F("count", len(blockedSample)))
	}
	return result, nil
}

func decodePayload(raw datatypes.JSON) retryPayload {
	var p retryPayload
	if len(raw) == 0 {
		return p
	}
	_ = json.Unmarshal(raw, &p)
	return p
}

func parseMediaID(objectID *string) (uint64, error) {
	if objectID == nil {
		return 0, fmt.Errorf("nil object id")
	}
	return strconv.ParseUint(*objectID, 10, 64)
}

func coerceMediaID(v interface{}) (uint64, error) {
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		return strconv.ParseUint(t, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported media_id type %T", v)
	}
}
