// Package queue implements the Queue Processor (§4.6): drains one
// PickerSession's pending selections through an importer, single file at a
// time, in ascending id order.
package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/repository"
	"github.com/mantonx/mediavault/internal/ingest/types"
	"github.com/mantonx/mediavault/internal/logger"
	"github.com/mantonx/mediavault/internal/taskrunner"
)

// Importer is the narrow collaborator the Queue Processor drives; satisfied
// by *importer.Importer.
type Importer interface {
	Import(ctx context.Context, filePath string, sessionID *string, duplicateMode types.DuplicateRegenerationMode) types.ImportResult
}

// CancelPredicate reports whether the run should stop before the next
// selection is started.
type CancelPredicate func() bool

// Result is the Queue Processor's per-run outcome.
type Result struct {
	Canceled bool
	Details  []types.SelectionFileDetail
}

// Processor implements the Queue Processor.
type Processor struct {
	selections *repository.SelectionRepository
	clock      func() time.Time
	log        logger.Logger
}

func New(selections *repository.SelectionRepository, log logger.Logger) *Processor {
	return &Processor{selections: selections, clock: time.Now, log: logger.OrNop(log)}
}

// Run drains sessionID's pending/enqueued selections through importer,
// reporting progress via inst and honoring cancelPredicate between files.
func (p *Processor) Run(ctx context.Context, sessionID uint64, importer Importer, cancelPredicate CancelPredicate, runner taskrunner.TaskRunner, inst *taskrunner.TaskInstance, duplicateMode types.DuplicateRegenerationMode) (Result, error) {
	pending, err := p.selections.ListPendingBySession(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}

	total := len(pending)
	var result Result
	sessionIDStr := strconv.FormatUint(sessionID, 10)

	for i, sel := range pending {
		if cancelPredicate != nil && cancelPredicate() {
			result.Canceled = true
			break
		}

		now := p.clock()
		if err := p.selections.Update(ctx, sel.ID, map[string]interface{}{
			"status":     database.SelectionStatusRunning,
			"started_at": now,
		}); err != nil {
			p.log.Warn("queue.selection_mark_running_failed", logger.F("selection_id", sel.ID), logger.F("error", err.Error()))
		}

		filePath := ""
		if sel.LocalFilePath != nil {
			filePath = *sel.LocalFilePath
		}
		importResult := importer.Import(ctx, filePath, &sessionIDStr, duplicateMode)

		detail := p.applyOutcome(ctx, sel, importResult)
		result.Details = append(result.Details, detail)

		if runner != nil && inst != nil {
			percent := 0
			if total > 0 {
				percent = ((i + 1) * 100) / total
			}
			runner.ReportProgress(inst, taskrunner.ProgressUpdate{
				Current: i + 1,
				Total:   total,
				Percent: percent,
				Message: detail.File,
			})
		}
	}

	return result, nil
}

// applyOutcome implements §4.6's status-mapping table and appends the
// per-file detail entry.
func (p *Processor) applyOutcome(ctx context.Context, sel database.PickerSelection, res types.ImportResult) types.SelectionFileDetail {
	now := p.clock()
	updates := map[string]interface{}{"finished_at": now}

	detail := types.SelectionFileDetail{Reason: res.Reason}
	if sel.LocalFilePath != nil {
		detail.File = *sel.LocalFilePath
	}
	detail.MediaID = res.MediaID

	switch res.Status {
	case types.ImportStatusSuccess:
		updates["status"] = database.SelectionStatusImported
		if res.MediaID != nil {
			updates["media_id"] = *res.MediaID
		}
		if res.MediaGoogleID != nil {
			updates["google_media_id"] = *res.MediaGoogleID
		}
		detail.Status = string(database.SelectionStatusImported)
	case types.ImportStatusDuplicate, types.ImportStatusDuplicateRefreshed:
		updates["status"] = database.SelectionStatusDup
		if res.MediaGoogleID != nil {
			updates["google_media_id"] = *res.MediaGoogleID
		}
		detail.Status = string(database.SelectionStatusDup)
	case types.ImportStatusMissing, types.ImportStatusUnsupported, types.ImportStatusSkipped:
		updates["status"] = database.SelectionStatusSkipped
		detail.Status = string(database.SelectionStatusSkipped)
	default:
		updates["status"] = database.SelectionStatusFailed
		updates["error"] = res.Reason
		detail.Status = string(database.SelectionStatusFailed)
	}

	if res.PostProcess != nil && res.PostProcess.Thumbnails != nil {
		detail.Thumbnail = map[string]interface{}{
			"ok":        res.PostProcess.Thumbnails.OK,
			"generated": res.PostProcess.Thumbnails.Generated,
			"skipped":   res.PostProcess.Thumbnails.Skipped,
			"notes":     res.PostProcess.Thumbnails.Notes,
		}
	}

	if err := p.selections.Update(ctx, sel.ID, updates); err != nil {
		p.log.Warn("queue.selection_update_failed", logger.F("selection_id", sel.ID), logger.F("error", err.Error()))
	}

	return detail
}
