package localimport

import (
	"context"
	"strconv"

	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/postprocess"
	"github.com/mantonx/mediavault/internal/ingest/session"
	"github.com/mantonx/mediavault/internal/logger"
)

// taskEntry is one entry of stats.tasks, assembled in finalize.
type taskEntry struct {
	Key    string                 `json:"key"`
	Label  string                 `json:"label"`
	Status string                 `json:"status"`
	Counts map[string]interface{} `json:"counts"`
}

// finalize implements step 7, run unconditionally via defer: recount
// selections, compute the thumbnail snapshot, determine the session's
// final status, and commit through the Session Service. Errors are logged
// and swallowed so Scanner.Cleanup (the caller's deferred step 8) always
// runs regardless of what happens here.
func (uc *UseCase) finalize(ctx context.Context, sess *database.PickerSession) {
	if database.TerminalSessionStatuses[sess.Status] {
		return
	}

	counts, err := uc.selections.CountByStatus(ctx, sess.ID)
	if err != nil {
		uc.log.Error("local_import.session.progress_update_failed", err, logger.F("session_id", sess.SessionID))
		return
	}

	success := counts[database.SelectionStatusImported]
	skipped := counts[database.SelectionStatusSkipped] + counts[database.SelectionStatusDup]
	failed := counts[database.SelectionStatusFailed]
	pendingRemaining := counts[database.SelectionStatusPending] + counts[database.SelectionStatusEnqueued] + counts[database.SelectionStatusRunning]
	processed := success + skipped + failed

	thumbs := uc.thumbnailSnapshot(ctx, sess.ID)

	finalStatus := determineStatus(sess.Status, pendingRemaining, thumbs.Status, failed, processed)

	importEntry := taskEntry{
		Key:    "import",
		Label:  "Import",
		Status: statusForCounts(pendingRemaining, failed),
		Counts: map[string]interface{}{
			"total": success + skipped + failed + pendingRemaining,
			"success": success, "skipped": skipped, "failed": failed, "pending": pendingRemaining,
		},
	}
	tasks := []taskEntry{importEntry}
	if thumbs.Total > 0 {
		tasks = append(tasks, taskEntry{
			Key: "thumbnails", Label: "Thumbnails", Status: thumbs.Status,
			Counts: map[string]interface{}{
				"total": thumbs.Total, "completed": thumbs.Completed,
				"pending": thumbs.Pending, "failed": thumbs.Failed,
			},
		})
	}

	if err := uc.sessionSvc.SetProgress(ctx, sess, session.ProgressUpdate{
		Status: statusPtr(finalStatus),
		Stage:  strPtr("completed"),
		StatsUpdates: map[string]interface{}{
			"success": int(success), "skipped": int(skipped), "failed": int(failed),
			"processed": int(processed), "pending": int(pendingRemaining),
			"tasks": tasks,
		},
	}); err != nil {
		uc.log.Error("local_import.session.progress_update_failed", err, logger.F("session_id", sess.SessionID))
	}
}

// thumbnailResult is the aggregate counted across every imported
// selection's Media, the snapshot §4.9 step 7 names.
type thumbnailResult struct {
	Status    string
	Total     int64
	Completed int64
	Pending   int64
	Failed    int64
}

// thumbnailSnapshot joins imported PickerSelections to their Media row and
// the latest thumbnail retry record, classifying each per §4.9's rule: a
// Media with thumbnail_rel_path set is completed; else a scheduled/queued/
// running retry is pending; else a failed/canceled retry is failed; else
// it falls back to a pending in-flight status.
func (uc *UseCase) thumbnailSnapshot(ctx context.Context, sessionID uint64) thumbnailResult {
	selections, err := uc.selections.ListBySession(ctx, sessionID)
	if err != nil {
		return thumbnailResult{Status: "progress"}
	}

	var result thumbnailResult
	for _, sel := range selections {
		if sel.Status != database.SelectionStatusImported || sel.MediaID == nil {
			continue
		}
		result.Total++

		m, err := uc.media.GetByID(ctx, *sel.MediaID)
		if err != nil {
			result.Pending++
			continue
		}
		if m.ThumbnailRelPath != nil && *m.ThumbnailRelPath != "" {
			result.Completed++
			continue
		}

		record, err := uc.taskrecords.GetLatestByObject(ctx, postprocess.TaskName, "media", strconv.FormatUint(*sel.MediaID, 10))
		if err != nil || record == nil {
			result.Pending++
			continue
		}
		switch record.Status {
		case database.TaskStatusScheduled, database.TaskStatusQueued, database.TaskStatusRunning:
			result.Pending++
		case database.TaskStatusFailed, database.TaskStatusCanceled:
			result.Failed++
		default:
			result.Pending++
		}
	}

	switch {
	case result.Total == 0:
		result.Status = "completed"
	case result.Failed > 0:
		result.Status = "error"
	case result.Pending > 0:
		result.Status = "progress"
	default:
		result.Status = "completed"
	}
	return result
}

func statusForCounts(pendingRemaining, failed int64) string {
	if pendingRemaining > 0 {
		return "progress"
	}
	if failed > 0 {
		return "error"
	}
	return "completed"
}

// determineStatus implements §4.9 step 7's final-status priority order:
// canceled, then processing (work remaining), then error (any failure),
// then imported (thumbnails errored or any success/skip/processed),
// else ready (nothing happened at all).
func determineStatus(current database.PickerSessionStatus, pendingRemaining int64, thumbsStatus string, failed, processed int64) database.PickerSessionStatus {
	if current == database.SessionStatusCanceled {
		return database.SessionStatusCanceled
	}
	if pendingRemaining > 0 || thumbsStatus == "progress" {
		return database.SessionStatusProcessing
	}
	if failed > 0 {
		return database.SessionStatusError
	}
	if thumbsStatus == "error" {
		return database.SessionStatusImported
	}
	if processed > 0 {
		return database.SessionStatusImported
	}
	return database.SessionStatusReady
}
