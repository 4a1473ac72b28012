package postprocess

import (
	"context"
	"testing"
	"time"

	"github.com/mantonx/mediavault/internal/archive"
	"github.com/mantonx/mediavault/internal/clock"
	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/repository"
	"github.com/mantonx/mediavault/internal/taskrunner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	submitted int
	nextID    string
}

func (s *stubRunner) SubmitDelayed(ctx context.Context, taskName string, args map[string]interface{}, countdown time.Duration) (string, error) {
	s.submitted++
	if s.nextID != "" {
		return s.nextID, nil
	}
	return "task-id", nil
}

func (s *stubRunner) IsAborted(inst *taskrunner.TaskInstance) bool { return false }
func (s *stubRunner) ReportProgress(inst *taskrunner.TaskInstance, update taskrunner.ProgressUpdate) {
}

func newVideoMediaWithoutPlayback(t *testing.T, ctx context.Context, mediaRepo *repository.MediaRepository) *database.Media {
	t.Helper()
	media := &database.Media{GoogleMediaID: "g1", LocalRelPath: "video.mp4", Filename: "video.mp4", HashSHA256: "h", Bytes: 1, IsVideo: true, ImportedAt: time.Now().UTC()}
	require.NoError(t, mediaRepo.Create(ctx, media))
	return media
}

func TestScheduler_Schedule_FirstAttemptSubmitsDelayed(t *testing.T) {
	db := setupTestDB(t)
	mediaRepo := repository.NewMediaRepository(db)
	playbackRepo := repository.NewPlaybackRepository(db)
	taskRepo := repository.NewTaskRecordRepository(db)
	ctx := context.Background()

	media := newVideoMediaWithoutPlayback(t, ctx, mediaRepo)

	thumbs := NewThumbnailWorker(mediaRepo, playbackRepo, archive.Roots{}, 85, nil)
	runner := &stubRunner{}
	scheduler := NewScheduler(taskRepo, thumbs, runner, clock.Real, nil)

	decision, err := scheduler.Schedule(ctx, media.ID, false, map[string]interface{}{"reason": "completed playback missing"})
	require.NoError(t, err)
	assert.True(t, decision.Scheduled)
	assert.Equal(t, 1, decision.Attempts)
	assert.Equal(t, 1, runner.submitted)
}

func TestScheduler_Schedule_DisablesAfterMaxAttempts(t *testing.T) {
	db := setupTestDB(t)
	mediaRepo := repository.NewMediaRepository(db)
	playbackRepo := repository.NewPlaybackRepository(db)
	taskRepo := repository.NewTaskRecordRepository(db)
	ctx := context.Background()

	media := newVideoMediaWithoutPlayback(t, ctx, mediaRepo)

	thumbs := NewThumbnailWorker(mediaRepo, playbackRepo, archive.Roots{}, 85, nil)
	runner := &stubRunner{}
	scheduler := NewScheduler(taskRepo, thumbs, runner, clock.Real, nil)

	var last struct {
		Scheduled bool
		Reason    string
	}
	for i := 0; i < MaxAttempts+1; i++ {
		decision, err := scheduler.Schedule(ctx, media.ID, false, nil)
		require.NoError(t, err)
		last.Scheduled = decision.Scheduled
		last.Reason = decision.Reason
	}

	assert.False(t, last.Scheduled)
	assert.Equal(t, "max_attempts", last.Reason)
	assert.Equal(t, MaxAttempts, runner.submitted)
}

func TestScheduler_Sweep_ReschedulesDueRecordsStillNotReady(t *testing.T) {
	db := setupTestDB(t)
	mediaRepo := repository.NewMediaRepository(db)
	playbackRepo := repository.NewPlaybackRepository(db)
	taskRepo := repository.NewTaskRecordRepository(db)
	ctx := context.Background()

	media := newVideoMediaWithoutPlayback(t, ctx, mediaRepo)
	thumbs := NewThumbnailWorker(mediaRepo, playbackRepo, archive.Roots{}, 85, nil)
	runner := &stubRunner{}
	scheduler := NewScheduler(taskRepo, thumbs, runner, clock.Real, nil)

	_, err := scheduler.Schedule(ctx, media.ID, false, nil)
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, db.Model(&database.TaskRecord{}).Where("task_name = ?", TaskName).Update("scheduled_for", past).Error)

	result, err := scheduler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rescheduled)
}

func TestScheduler_Sweep_ClearsWhenPlaybackBecomesReady(t *testing.T) {
	dir := t.TempDir()
	roots := archive.Roots{Originals: dir + "/orig", Thumbnails: dir + "/thumbs", Playback: dir + "/pb"}
	require.NoError(t, roots.EnsureAll())

	db := setupTestDB(t)
	mediaRepo := repository.NewMediaRepository(db)
	playbackRepo := repository.NewPlaybackRepository(db)
	taskRepo := repository.NewTaskRecordRepository(db)
	ctx := context.Background()

	media := newVideoMediaWithoutPlayback(t, ctx, mediaRepo)
	thumbs := NewThumbnailWorker(mediaRepo, playbackRepo, roots, 85, nil)
	runner := &stubRunner{}
	scheduler := NewScheduler(taskRepo, thumbs, runner, clock.Real, nil)

	_, err := scheduler.Schedule(ctx, media.ID, false, nil)
	require.NoError(t, err)

	pb, err := playbackRepo.GetOrCreatePending(ctx, media.ID, database.PlaybackPresetStd1080p)
	require.NoError(t, err)
	posterPath := dir + "/pb_poster.jpg"
	writeTestImage(t, posterPath, 300)
	require.NoError(t, playbackRepo.MarkDone(ctx, pb.ID, map[string]interface{}{"poster_rel_path": "poster.jpg"}))
	require.NoError(t, copyFileForTest(posterPath, roots.Playback+"/poster.jpg"))

	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, db.Model(&database.TaskRecord{}).Where("task_name = ?", TaskName).Update("scheduled_for", past).Error)

	result, err := scheduler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Cleared)
}

func copyFileForTest(src, dst string) error {
	return archive.CopyPreservingMetadata(src, dst)
}
