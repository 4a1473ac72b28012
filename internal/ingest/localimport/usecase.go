// Package localimport implements the Local-Import Use Case (§4.9): the
// orchestration entry point that drives one PickerSession from an import
// directory through the Scanner, enqueues PickerSelections, delegates to
// the Queue Processor, and finalizes the session's status and stats.
package localimport

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/queue"
	"github.com/mantonx/mediavault/internal/ingest/repository"
	"github.com/mantonx/mediavault/internal/ingest/scanner"
	"github.com/mantonx/mediavault/internal/ingest/session"
	"github.com/mantonx/mediavault/internal/ingest/types"
	"github.com/mantonx/mediavault/internal/logger"
	"github.com/mantonx/mediavault/internal/taskrunner"
)

// Request is one invocation's input.
type Request struct {
	SessionID      *string
	ImportDir      string
	DestinationDir string
	DuplicateMode  types.DuplicateRegenerationMode
}

// UseCase wires the Scanner, Queue Processor, and Session Service into the
// 8-step flow of §4.9.
type UseCase struct {
	sessions    *repository.SessionRepository
	selections  *repository.SelectionRepository
	media       *repository.MediaRepository
	taskrecords *repository.TaskRecordRepository
	sessionSvc  *session.Service
	queue       *queue.Processor
	importer    queue.Importer
	runner      taskrunner.TaskRunner
	tempRoot    string
	minFreeMB   uint64
	log         logger.Logger
}

func New(
	sessions *repository.SessionRepository,
	selections *repository.SelectionRepository,
	media *repository.MediaRepository,
	taskrecords *repository.TaskRecordRepository,
	sessionSvc *session.Service,
	q *queue.Processor,
	imp queue.Importer,
	runner taskrunner.TaskRunner,
	tempRoot string,
	minFreeMB uint64,
	log logger.Logger,
) *UseCase {
	return &UseCase{
		sessions: sessions, selections: selections, media: media, taskrecords: taskrecords,
		sessionSvc: sessionSvc, queue: q, importer: imp, runner: runner,
		tempRoot: tempRoot, minFreeMB: minFreeMB, log: logger.OrNop(log),
	}
}

// Run executes the full Local-Import Use Case for req, always finalizing
// the session and cleaning up scanner temp directories before returning.
func (uc *UseCase) Run(ctx context.Context, req Request, inst *taskrunner.TaskInstance) (*database.PickerSession, error) {
	sc := scanner.New(uc.tempRoot, uc.minFreeMB, uc.log)
	defer sc.Cleanup()

	sess, err := uc.attachOrCreate(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("local import: attach session: %w", err)
	}

	defer uc.finalize(ctx, sess)

	if err := uc.sessionSvc.SetProgress(ctx, sess, session.ProgressUpdate{
		Status: statusPtr(database.SessionStatusExpanding),
		Stage:  strPtr("expanding"),
		StatsUpdates: map[string]interface{}{
			"total": 0, "success": 0, "skipped": 0, "failed": 0, "pending": 0,
		},
	}); err != nil {
		return sess, nil
	}

	if !dirExists(req.ImportDir) {
		uc.markError(ctx, sess, "import_dir_missing")
		return sess, nil
	}
	if !dirExists(req.DestinationDir) {
		uc.markError(ctx, sess, "destination_dir_missing")
		return sess, nil
	}

	files, err := sc.Scan(req.ImportDir)
	if err != nil {
		return sess, fmt.Errorf("local import: scan: %w", err)
	}
	if len(files) == 0 {
		uc.markError(ctx, sess, "no_files_found")
		return sess, nil
	}

	if err := uc.enqueueSelections(ctx, sess.ID, files); err != nil {
		return sess, fmt.Errorf("local import: enqueue: %w", err)
	}

	counts, err := uc.selections.CountByStatus(ctx, sess.ID)
	if err != nil {
		return sess, fmt.Errorf("local import: count pending: %w", err)
	}
	total := counts[database.SelectionStatusPending] + counts[database.SelectionStatusEnqueued] + counts[database.SelectionStatusRunning]

	if err := uc.sessionSvc.SetProgress(ctx, sess, session.ProgressUpdate{
		Status:       statusPtr(database.SessionStatusProcessing),
		Stage:        strPtr("progress"),
		StatsUpdates: map[string]interface{}{"total": int(total)},
	}); err != nil {
		return sess, nil
	}

	cancelPredicate := func() bool { return uc.sessionSvc.CancelRequested(ctx, sess, uc.runner, inst) }
	qres, err := uc.queue.Run(ctx, sess.ID, uc.importer, cancelPredicate, uc.runner, inst, req.DuplicateMode)
	if err != nil {
		return sess, fmt.Errorf("local import: queue: %w", err)
	}

	if qres.Canceled {
		uc.log.Event("local_import.cancel.detected", logger.F("session_id", sess.SessionID))
		_ = uc.sessionSvc.SetProgress(ctx, sess, session.ProgressUpdate{
			Status: statusPtr(database.SessionStatusCanceled),
			Stage:  strPtr("canceled"),
			StatsUpdates: map[string]interface{}{
				"cancel_requested": false,
				"canceled_at":      uc.now().UTC().Format(time.RFC3339),
			},
		})
	}

	return sess, nil
}

func (uc *UseCase) now() time.Time { return time.Now() }

// attachOrCreate implements step 1: load an existing session by id, or
// create a fresh one in expanding status with no account (local-import has
// no picker account).
func (uc *UseCase) attachOrCreate(ctx context.Context, sessionID *string) (*database.PickerSession, error) {
	if sessionID != nil {
		sess, err := uc.sessions.GetBySessionID(ctx, *sessionID)
		if err == nil {
			uc.log.Event("local_import.session.attach", logger.F("session_id", sess.SessionID))
			return sess, nil
		}
	}
	sess := &database.PickerSession{
		SessionID: newSessionID(),
		Status:    database.SessionStatusExpanding,
	}
	if err := uc.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	uc.log.Event("local_import.session.created", logger.F("session_id", sess.SessionID))
	return sess, nil
}

// enqueueSelections implements step 4: upsert a PickerSelection per
// scanned path, keyed by (session_id, local_file_path).
func (uc *UseCase) enqueueSelections(ctx context.Context, sessionID uint64, files []string) error {
	for _, path := range files {
		existing, err := uc.selections.GetBySessionAndPath(ctx, sessionID, path)
		if err != nil {
			return err
		}
		now := uc.now()
		if existing == nil {
			sel := &database.PickerSelection{
				SessionID:     sessionID,
				LocalFilePath: strPtr(path),
				LocalFilename: strPtr(baseName(path)),
				Status:        database.SelectionStatusEnqueued,
				EnqueuedAt:    &now,
			}
			if err := uc.selections.Create(ctx, sel); err != nil {
				return err
			}
			continue
		}
		if existing.Status == database.SelectionStatusImported || existing.Status == database.SelectionStatusDup {
			continue
		}
		if err := uc.selections.Update(ctx, existing.ID, map[string]interface{}{
			"status":          database.SelectionStatusEnqueued,
			"local_file_path": path,
			"local_filename":  baseName(path),
			"enqueued_at":     now,
		}); err != nil {
			return err
		}
	}
	uc.log.Event("local_import.queue.prepared", logger.F("count", len(files)))
	return nil
}

func (uc *UseCase) markError(ctx context.Context, sess *database.PickerSession, reason string) {
	_ = uc.sessionSvc.SetProgress(ctx, sess, session.ProgressUpdate{
		Status:       statusPtr(database.SessionStatusError),
		Stage:        nil,
		StatsUpdates: map[string]interface{}{"reason": reason},
	})
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

func newSessionID() string {
	return "local-" + strconv.FormatInt(time.Now().UnixNano(), 36)
}

func statusPtr(s database.PickerSessionStatus) *database.PickerSessionStatus { return &s }
func strPtr(s string) *string                                                { return &s }
