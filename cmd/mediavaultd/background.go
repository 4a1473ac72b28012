package main

import (
	"context"
	"time"

	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/localimport"
	"github.com/mantonx/mediavault/internal/ingest/postprocess"
	"github.com/mantonx/mediavault/internal/ingest/repository"
	"github.com/mantonx/mediavault/internal/ingest/transcode"
	"github.com/mantonx/mediavault/internal/ingest/types"
	"github.com/mantonx/mediavault/internal/logger"
)

// sweepInterval is how often the background loop re-scans the import
// directory, queues transcodes, drains pending playback, and re-checks
// blocked thumbnail retries. There is no live filesystem watch (§4.9/§4.8
// are both specified as scan-driven, not event-driven), so polling is the
// idiomatic fit.
const sweepInterval = 30 * time.Second

// backgroundSweep bundles the collaborators one sweep tick drives.
type backgroundSweep struct {
	useCase          *localimport.UseCase
	transcodeScanner *transcode.Scanner
	preparer         *postprocess.Preparer
	playback         *repository.PlaybackRepository
	retryScheduler   *postprocess.Scheduler
	importDir        string
	originalsDir     string
	log              logger.Logger
}

// runBackgroundSweep ticks every sweepInterval until ctx is canceled,
// running the Local-Import Use Case against importDir, the Transcode
// Scanner/Worker pair against any video lacking a std1080p playback, and
// the Retry Monitor's due-task sweep. Duplicates found on a sweep use
// DuplicateSkip rather than forcing a regeneration on every tick.
func runBackgroundSweep(ctx context.Context, s backgroundSweep) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s backgroundSweep) tick(ctx context.Context) {
	if _, err := s.useCase.Run(ctx, localimport.Request{
		ImportDir:      s.importDir,
		DestinationDir: s.originalsDir,
		DuplicateMode:  types.DuplicateSkip,
	}, nil); err != nil {
		s.log.Warn("mediavaultd.sweep.local_import_failed", logger.F("error", err.Error()))
	}

	if _, err := s.transcodeScanner.Scan(ctx, 0); err != nil {
		s.log.Warn("mediavaultd.sweep.transcode_scan_failed", logger.F("error", err.Error()))
	}

	pending, err := s.playback.ListPending(ctx, database.PlaybackPresetStd1080p, 10)
	if err != nil {
		s.log.Warn("mediavaultd.sweep.list_pending_failed", logger.F("error", err.Error()))
	}
	for _, pb := range pending {
		if _, err := s.preparer.Prepare(ctx, pb.MediaID, false); err != nil {
			s.log.Warn("mediavaultd.sweep.prepare_failed", logger.F("media_id", pb.MediaID), logger.F("error", err.Error()))
		}
	}

	if _, err := s.retryScheduler.Sweep(ctx); err != nil {
		s.log.Warn("mediavaultd.sweep.retry_sweep_failed", logger.F("error", err.Error()))
	}
}
