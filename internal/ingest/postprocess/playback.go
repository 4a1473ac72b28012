package postprocess

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mantonx/mediavault/internal/archive"
	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/repository"
	"github.com/mantonx/mediavault/internal/ingest/transcode"
	"github.com/mantonx/mediavault/internal/ingest/types"
	"github.com/mantonx/mediavault/internal/logger"
)

// Preparer implements the Playback Preparer (§4.7.1): the entry point post
// processing calls after a successful import, deciding whether a video
// needs transcoding before thumbnails can be generated.
type Preparer struct {
	media     *repository.MediaRepository
	playback  *repository.PlaybackRepository
	thumbs    *ThumbnailWorker
	transcode *transcode.Worker
	retry     *Scheduler
	roots     archive.Roots
	log       logger.Logger
}

func NewPreparer(media *repository.MediaRepository, playback *repository.PlaybackRepository, thumbs *ThumbnailWorker, transcodeWorker *transcode.Worker, retry *Scheduler, roots archive.Roots, log logger.Logger) *Preparer {
	return &Preparer{media: media, playback: playback, thumbs: thumbs, transcode: transcodeWorker, retry: retry, roots: roots, log: logger.OrNop(log)}
}

// generateThumbnails runs the Thumbnail Worker and, if it reports the
// playback-not-ready sentinel, hands the result to the Retry Scheduler.
func (p *Preparer) generateThumbnails(ctx context.Context, mediaID uint64, force bool) (types.ThumbnailResult, *types.RetryDecision, error) {
	thumbResult, err := p.thumbs.Generate(ctx, mediaID, force)
	if err != nil {
		return types.ThumbnailResult{}, nil, err
	}
	if thumbResult.Notes != PlaybackNotReady || p.retry == nil {
		return thumbResult, nil, nil
	}
	decision, err := p.retry.Schedule(ctx, mediaID, force, thumbResult.RetryBlockers)
	if err != nil {
		return thumbResult, nil, fmt.Errorf("playback preparer: retry schedule: %w", err)
	}
	return thumbResult, &decision, nil
}

// ThumbnailsOnly runs just the Thumbnail Worker (plus retry scheduling),
// skipping the video-readiness branch entirely. Used by the File Importer's
// duplicate-refresh path (§4.5 step 3), which already knows playback is in
// place and only needs thumbnails regenerated.
func (p *Preparer) ThumbnailsOnly(ctx context.Context, mediaID uint64, force bool) (types.ThumbnailResult, error) {
	thumbResult, _, err := p.generateThumbnails(ctx, mediaID, force)
	return thumbResult, err
}

// Prepare runs for a single Media after import. Non-video media goes
// straight to the Thumbnail Worker. Video media must reach a done
// std1080p MediaPlayback before thumbnails are attempted. forceRegenerate,
// per §4.7.1, forces a full re-transcode even when a done playback row
// already points at an existing on-disk file.
func (p *Preparer) Prepare(ctx context.Context, mediaID uint64, forceRegenerate bool) (types.PostProcessResult, error) {
	m, err := p.media.GetByID(ctx, mediaID)
	if err != nil {
		return types.PostProcessResult{}, fmt.Errorf("playback preparer: load media: %w", err)
	}

	if !m.IsVideo {
		thumbResult, retryDecision, err := p.generateThumbnails(ctx, mediaID, forceRegenerate)
		if err != nil {
			return types.PostProcessResult{}, fmt.Errorf("playback preparer: thumbnails: %w", err)
		}
		return types.PostProcessResult{OK: true, Thumbnails: &thumbResult, Retry: retryDecision}, nil
	}

	pb, err := p.playback.GetOrCreatePending(ctx, mediaID, database.PlaybackPresetStd1080p)
	if err != nil {
		return types.PostProcessResult{}, fmt.Errorf("playback preparer: get or create playback: %w", err)
	}

	if !forceRegenerate && pb.Status == database.PlaybackStatusDone && p.playbackFileExists(pb) {
		thumbResult, retryDecision, err := p.generateThumbnails(ctx, mediaID, false)
		if err != nil {
			return types.PostProcessResult{}, fmt.Errorf("playback preparer: thumbnails: %w", err)
		}
		return types.PostProcessResult{OK: true, Note: "already_done", Thumbnails: &thumbResult, Retry: retryDecision}, nil
	}

	workerResult, err := p.transcode.Run(ctx, pb.ID)
	if err != nil {
		return types.PostProcessResult{}, fmt.Errorf("playback preparer: transcode: %w", err)
	}
	if !workerResult.OK {
		return types.PostProcessResult{OK: false, Note: workerResult.Note}, nil
	}

	thumbResult, retryDecision, err := p.generateThumbnails(ctx, mediaID, forceRegenerate)
	if err != nil {
		return types.PostProcessResult{}, fmt.Errorf("playback preparer: thumbnails: %w", err)
	}
	return types.PostProcessResult{OK: true, Note: workerResult.Note, Thumbnails: &thumbResult, Retry: retryDecision}, nil
}

// playbackFileExists is the on-disk half of the "already done" short
// circuit: a done status row whose file has gone missing (e.g. an
// external cleanup) must still be re-transcoded, not trusted blindly.
func (p *Preparer) playbackFileExists(pb *database.MediaPlayback) bool {
	if pb.RelPath == nil || *pb.RelPath == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(p.roots.Playback, *pb.RelPath))
	return err == nil
}
