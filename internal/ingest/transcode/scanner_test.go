package transcode

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mantonx/mediavault/internal/archive"
	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanner_Scan_QueuesVideosNeedingTranscode(t *testing.T) {
	dir := t.TempDir()
	roots := archive.Roots{Originals: filepath.Join(dir, "orig")}
	require.NoError(t, roots.EnsureAll())

	db := setupTestDB(t)
	mediaRepo := repository.NewMediaRepository(db)
	playbackRepo := repository.NewPlaybackRepository(db)
	ctx := context.Background()

	video := &database.Media{GoogleMediaID: "g1", LocalRelPath: "v.mp4", Filename: "v.mp4", HashSHA256: "h1", Bytes: 1, IsVideo: true, ImportedAt: time.Now().UTC()}
	require.NoError(t, mediaRepo.Create(ctx, video))
	require.NoError(t, os.WriteFile(filepath.Join(roots.Originals, "v.mp4"), []byte("x"), 0o644))

	s := NewScanner(mediaRepo, playbackRepo, roots, nil)
	result, err := s.Scan(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Queued)
	assert.Equal(t, 0, result.Skipped)

	pb, err := playbackRepo.GetByMediaAndPreset(ctx, video.ID, database.PlaybackPresetStd1080p)
	require.NoError(t, err)
	require.NotNil(t, pb)
	assert.Equal(t, database.PlaybackStatusPending, pb.Status)
}

func TestScanner_Scan_SkipsMissingSourceFile(t *testing.T) {
	dir := t.TempDir()
	roots := archive.Roots{Originals: filepath.Join(dir, "orig")}
	require.NoError(t, roots.EnsureAll())

	db := setupTestDB(t)
	mediaRepo := repository.NewMediaRepository(db)
	playbackRepo := repository.NewPlaybackRepository(db)
	ctx := context.Background()

	video := &database.Media{GoogleMediaID: "g1", LocalRelPath: "missing.mp4", Filename: "missing.mp4", HashSHA256: "h1", Bytes: 1, IsVideo: true, ImportedAt: time.Now().UTC()}
	require.NoError(t, mediaRepo.Create(ctx, video))

	s := NewScanner(mediaRepo, playbackRepo, roots, nil)
	result, err := s.Scan(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Queued)
	assert.Equal(t, 1, result.Skipped)
}

func TestScanner_Scan_RevivesErroredPlayback(t *testing.T) {
	dir := t.TempDir()
	roots := archive.Roots{Originals: filepath.Join(dir, "orig")}
	require.NoError(t, roots.EnsureAll())

	db := setupTestDB(t)
	mediaRepo := repository.NewMediaRepository(db)
	playbackRepo := repository.NewPlaybackRepository(db)
	ctx := context.Background()

	video := &database.Media{GoogleMediaID: "g1", LocalRelPath: "v.mp4", Filename: "v.mp4", HashSHA256: "h1", Bytes: 1, IsVideo: true, ImportedAt: time.Now().UTC()}
	require.NoError(t, mediaRepo.Create(ctx, video))
	require.NoError(t, os.WriteFile(filepath.Join(roots.Originals, "v.mp4"), []byte("x"), 0o644))

	pb, err := playbackRepo.GetOrCreatePending(ctx, video.ID, database.PlaybackPresetStd1080p)
	require.NoError(t, err)
	require.NoError(t, playbackRepo.MarkError(ctx, pb.ID, "ffmpeg_error"))

	s := NewScanner(mediaRepo, playbackRepo, roots, nil)
	result, err := s.Scan(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Queued)

	got, err := playbackRepo.GetByID(ctx, pb.ID)
	require.NoError(t, err)
	assert.Equal(t, database.PlaybackStatusPending, got.Status)
	assert.Nil(t, got.ErrorMsg)
}

func TestScanner_Scan_SkipsAlreadyDonePlayback(t *testing.T) {
	dir := t.TempDir()
	roots := archive.Roots{Originals: filepath.Join(dir, "orig")}
	require.NoError(t, roots.EnsureAll())

	db := setupTestDB(t)
	mediaRepo := repository.NewMediaRepository(db)
	playbackRepo := repository.NewPlaybackRepository(db)
	ctx := context.Background()

	video := &database.Media{GoogleMediaID: "g1", LocalRelPath: "v.mp4", Filename: "v.mp4", HashSHA256: "h1", Bytes: 1, IsVideo: true, ImportedAt: time.Now().UTC(), HasPlayback: true}
	require.NoError(t, mediaRepo.Create(ctx, video))
	require.NoError(t, os.WriteFile(filepath.Join(roots.Originals, "v.mp4"), []byte("x"), 0o644))

	pb, err := playbackRepo.GetOrCreatePending(ctx, video.ID, database.PlaybackPresetStd1080p)
	require.NoError(t, err)
	require.NoError(t, playbackRepo.MarkDone(ctx, pb.ID, map[string]interface{}{}))

	s := NewScanner(mediaRepo, playbackRepo, roots, nil)
	result, err := s.Scan(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Queued)
	assert.Equal(t, 0, result.Skipped)
}
