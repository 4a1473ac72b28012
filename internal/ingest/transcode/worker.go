package transcode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mantonx/mediavault/internal/archive"
	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/repository"
	"github.com/mantonx/mediavault/internal/ingest/types"
	"github.com/mantonx/mediavault/internal/logger"
)

// Worker implements the Transcode Worker (§4.8).
type Worker struct {
	media      *repository.MediaRepository
	playback   *repository.PlaybackRepository
	transcoder Transcoder
	roots      archive.Roots
	posterOffsetSeconds float64
	log        logger.Logger
}

func NewWorker(media *repository.MediaRepository, playback *repository.PlaybackRepository, transcoder Transcoder, roots archive.Roots, log logger.Logger) *Worker {
	return &Worker{
		media: media, playback: playback, transcoder: transcoder, roots: roots,
		posterOffsetSeconds: 1.0, log: logger.OrNop(log),
	}
}

// Run executes the worker against one MediaPlayback row, following the
// 8-step algorithm of §4.8.
func (w *Worker) Run(ctx context.Context, mediaPlaybackID uint64) (types.WorkerResult, error) {
	pb, err := w.loadPlayback(ctx, mediaPlaybackID)
	if err != nil {
		return types.WorkerResult{}, err
	}
	if pb == nil {
		return types.WorkerResult{OK: false, Note: "not_found"}, nil
	}
	switch pb.Status {
	case database.PlaybackStatusDone:
		return types.WorkerResult{OK: true, Note: "already_done", Width: pb.Width, Height: pb.Height, DurationMs: pb.DurationMs}, nil
	case database.PlaybackStatusProcessing:
		return types.WorkerResult{OK: false, Note: "already_running"}, nil
	}

	media, err := w.media.GetByID(ctx, pb.MediaID)
	if err != nil {
		return types.WorkerResult{}, fmt.Errorf("transcode worker: load media: %w", err)
	}
	sourcePath := filepath.Join(w.roots.Originals, media.LocalRelPath)
	if _, err := os.Stat(sourcePath); err != nil {
		_ = w.playback.MarkError(ctx, pb.ID, "missing_input")
		return types.WorkerResult{OK: false, Note: "missing_input"}, nil
	}

	claimed, err := w.playback.ClaimForProcessing(ctx, pb.ID)
	if err != nil {
		return types.WorkerResult{}, fmt.Errorf("transcode worker: claim: %w", err)
	}
	if !claimed {
		return types.WorkerResult{OK: false, Note: "already_running"}, nil
	}

	relPath := archive.ReplaceSuffix(media.LocalRelPath, ".mp4")
	if pb.RelPath != nil && *pb.RelPath != "" {
		relPath = *pb.RelPath
	}
	relPath = archive.ToSlash(relPath)
	destPath := filepath.Join(w.roots.Playback, relPath)

	probe, probeErr := w.transcoder.Probe(ctx, sourcePath)
	if probeErr == nil && probe.IsMP4 && probe.HasVideoStream && probe.HasAudioStream &&
		probe.Width <= 1920 && probe.Height <= 1080 {
		if err := archive.CopyPreservingMetadata(sourcePath, destPath); err != nil {
			_ = w.playback.MarkError(ctx, pb.ID, "passthrough_copy_failed")
			return types.WorkerResult{OK: false, Note: "ffmpeg_error", Error: err.Error()}, nil
		}
		return w.finish(ctx, pb, media, destPath, "", types.TranscodeOutcome{
			OutputPath: destPath, Width: probe.Width, Height: probe.Height,
			VideoCodec: probe.VideoCodec, AudioCodec: probe.AudioCodec, DurationMs: probe.DurationMs,
		}, "passthrough")
	}

	tmpFile, err := os.CreateTemp(w.roots.Temp, "mediavault-transcode-*.mp4")
	if err != nil {
		_ = w.playback.MarkError(ctx, pb.ID, "temp_file_failed")
		return types.WorkerResult{}, fmt.Errorf("transcode worker: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	outcome, err := w.transcoder.Transcode(ctx, sourcePath, tmpPath, DefaultParams())
	if err != nil {
		summary := err.Error()
		_ = w.playback.MarkError(ctx, pb.ID, summary)
		return types.WorkerResult{OK: false, Note: "ffmpeg_error", Error: summary}, nil
	}

	outProbe, err := w.transcoder.Probe(ctx, tmpPath)
	if err != nil || !outProbe.HasVideoStream || !outProbe.HasAudioStream {
		_ = w.playback.MarkError(ctx, pb.ID, "missing_stream")
		return types.WorkerResult{OK: false, Note: "missing_stream"}, nil
	}

	if err := archive.AtomicRename(tmpPath, destPath); err != nil {
		_ = w.playback.MarkError(ctx, pb.ID, "move_failed")
		return types.WorkerResult{}, fmt.Errorf("transcode worker: move output: %w", err)
	}

	posterRelPath := archive.ReplaceSuffix(relPath, ".jpg")
	posterPath := filepath.Join(w.roots.Playback, posterRelPath)
	if ffmpegT, ok := w.transcoder.(*FFmpegTranscoder); ok {
		if err := ffmpegT.ExtractPoster(ctx, destPath, posterPath, w.posterOffsetSeconds); err != nil {
			w.log.Warn("local_import.duplicate_video.playback_force_failed", logger.F("media_id", media.ID), logger.F("stage", "poster"))
			posterRelPath = ""
		}
	} else {
		posterRelPath = ""
	}

	outcome.OutputPath = destPath
	return w.finish(ctx, pb, media, destPath, posterRelPath, outcome, "")
}

func (w *Worker) finish(ctx context.Context, pb *database.MediaPlayback, media *database.Media, destPath, posterRelPath string, outcome types.TranscodeOutcome, note string) (types.WorkerResult, error) {
	relPath, err := filepath.Rel(w.roots.Playback, destPath)
	if err != nil {
		relPath = destPath
	}
	fields := map[string]interface{}{
		"width":        outcome.Width,
		"height":       outcome.Height,
		"video_codec":  outcome.VideoCodec,
		"audio_codec":  outcome.AudioCodec,
		"bitrate_kbps": outcome.BitrateKbps,
		"duration_ms":  outcome.DurationMs,
		"rel_path":     archive.ToSlash(relPath),
	}
	if posterRelPath != "" {
		fields["poster_rel_path"] = posterRelPath
	}
	if err := w.playback.MarkDone(ctx, pb.ID, fields); err != nil {
		return types.WorkerResult{}, fmt.Errorf("transcode worker: mark done: %w", err)
	}
	if err := w.media.Update(ctx, media.ID, map[string]interface{}{"has_playback": true}); err != nil {
		return types.WorkerResult{}, fmt.Errorf("transcode worker: mark has_playback: %w", err)
	}

	result := types.WorkerResult{
		OK: true, Note: note, OutputPath: destPath,
		Width: outcome.Width, Height: outcome.Height, DurationMs: outcome.DurationMs,
	}
	if posterRelPath != "" {
		result.PosterPath = filepath.Join(w.roots.Playback, posterRelPath)
	}
	return result, nil
}

func (w *Worker) loadPlayback(ctx context.Context, id uint64) (*database.MediaPlayback, error) {
	return w.playback.GetByID(ctx, id)
}
