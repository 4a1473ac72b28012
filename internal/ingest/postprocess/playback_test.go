package postprocess

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mantonx/mediavault/internal/archive"
	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/repository"
	"github.com/mantonx/mediavault/internal/ingest/transcode"
	"github.com/mantonx/mediavault/internal/ingest/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTranscoder struct {
	probeResult  types.MediaProbe
	outputProbe  types.MediaProbe
	transcodeOut types.TranscodeOutcome
}

func (f *fakeTranscoder) Probe(ctx context.Context, path string) (types.MediaProbe, error) {
	if filepath.Ext(path) == ".tmp" || filepath.Base(filepath.Dir(path)) == "tmp" {
		return f.outputProbe, nil
	}
	return f.probeResult, nil
}

func (f *fakeTranscoder) Transcode(ctx context.Context, source, dest string, params transcode.Params) (types.TranscodeOutcome, error) {
	if err := os.WriteFile(dest, []byte("transcoded"), 0o644); err != nil {
		return types.TranscodeOutcome{}, err
	}
	return f.transcodeOut, nil
}

func newPreparerFixture(t *testing.T) (*Preparer, archive.Roots, *repository.MediaRepository, *repository.PlaybackRepository) {
	t.Helper()
	dir := t.TempDir()
	roots := archive.Roots{
		Originals:  filepath.Join(dir, "orig"),
		Playback:   filepath.Join(dir, "pb"),
		Thumbnails: filepath.Join(dir, "thumbs"),
		Temp:       filepath.Join(dir, "tmp"),
	}
	require.NoError(t, roots.EnsureAll())

	db := setupTestDB(t)
	mediaRepo := repository.NewMediaRepository(db)
	playbackRepo := repository.NewPlaybackRepository(db)

	thumbs := NewThumbnailWorker(mediaRepo, playbackRepo, roots, 85, nil)
	tc := &fakeTranscoder{
		probeResult:  types.MediaProbe{IsMP4: false, Width: 4000, Height: 3000},
		outputProbe:  types.MediaProbe{HasVideoStream: true, HasAudioStream: true, Width: 1920, Height: 1080},
		transcodeOut: types.TranscodeOutcome{Width: 1920, Height: 1080, VideoCodec: "h264", AudioCodec: "aac"},
	}
	transcodeWorker := transcode.NewWorker(mediaRepo, playbackRepo, tc, roots, nil)
	preparer := NewPreparer(mediaRepo, playbackRepo, thumbs, transcodeWorker, nil, roots, nil)
	return preparer, roots, mediaRepo, playbackRepo
}

func TestPreparer_Prepare_PhotoGoesStraightToThumbnails(t *testing.T) {
	preparer, roots, mediaRepo, _ := newPreparerFixture(t)
	ctx := context.Background()

	media := &database.Media{GoogleMediaID: "g1", LocalRelPath: "photo.jpg", Filename: "photo.jpg", HashSHA256: "h", Bytes: 1, ImportedAt: time.Now().UTC()}
	require.NoError(t, mediaRepo.Create(ctx, media))
	writeTestImage(t, filepath.Join(roots.Originals, media.LocalRelPath), 300)

	result, err := preparer.Prepare(ctx, media.ID, false)
	require.NoError(t, err)
	assert.True(t, result.OK)
	require.NotNil(t, result.Thumbnails)
	assert.Contains(t, result.Thumbnails.Generated, 256)
}

func TestPreparer_Prepare_VideoTranscodesThenThumbnails(t *testing.T) {
	preparer, roots, mediaRepo, playbackRepo := newPreparerFixture(t)
	ctx := context.Background()

	media := &database.Media{GoogleMediaID: "g1", LocalRelPath: "2026/01/v.mov", Filename: "v.mov", HashSHA256: "h", Bytes: 1, IsVideo: true, ImportedAt: time.Now().UTC()}
	require.NoError(t, mediaRepo.Create(ctx, media))
	require.NoError(t, os.MkdirAll(filepath.Join(roots.Originals, "2026/01"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(roots.Originals, media.LocalRelPath), []byte("source"), 0o644))

	result, err := preparer.Prepare(ctx, media.ID, false)
	require.NoError(t, err)
	assert.True(t, result.OK)

	pb, err := playbackRepo.GetByMediaAndPreset(ctx, media.ID, database.PlaybackPresetStd1080p)
	require.NoError(t, err)
	require.NotNil(t, pb)
	assert.Equal(t, database.PlaybackStatusDone, pb.Status)
}

func TestPreparer_Prepare_VideoAlreadyDoneSkipsTranscode(t *testing.T) {
	preparer, roots, mediaRepo, playbackRepo := newPreparerFixture(t)
	ctx := context.Background()

	media := &database.Media{GoogleMediaID: "g1", LocalRelPath: "v.mov", Filename: "v.mov", HashSHA256: "h", Bytes: 1, IsVideo: true, ImportedAt: time.Now().UTC()}
	require.NoError(t, mediaRepo.Create(ctx, media))

	pb, err := playbackRepo.GetOrCreatePending(ctx, media.ID, database.PlaybackPresetStd1080p)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(roots.Playback, "v.mp4"), []byte("playback"), 0o644))
	require.NoError(t, playbackRepo.MarkDone(ctx, pb.ID, map[string]interface{}{
		"width": 1920, "height": 1080, "rel_path": "v.mp4",
	}))

	result, err := preparer.Prepare(ctx, media.ID, false)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, "already_done", result.Note)
}

func TestPreparer_Prepare_VideoAlreadyDoneButFileMissingRetranscodes(t *testing.T) {
	preparer, roots, mediaRepo, playbackRepo := newPreparerFixture(t)
	ctx := context.Background()

	media := &database.Media{GoogleMediaID: "g1", LocalRelPath: "v.mov", Filename: "v.mov", HashSHA256: "h", Bytes: 1, IsVideo: true, ImportedAt: time.Now().UTC()}
	require.NoError(t, mediaRepo.Create(ctx, media))
	require.NoError(t, os.WriteFile(filepath.Join(roots.Originals, media.LocalRelPath), []byte("source"), 0o644))

	pb, err := playbackRepo.GetOrCreatePending(ctx, media.ID, database.PlaybackPresetStd1080p)
	require.NoError(t, err)
	require.NoError(t, playbackRepo.MarkDone(ctx, pb.ID, map[string]interface{}{
		"width": 1920, "height": 1080, "rel_path": "v.mp4",
	}))

	result, err := preparer.Prepare(ctx, media.ID, false)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.NotEqual(t, "already_done", result.Note)
}

func TestPreparer_Prepare_TranscodeFailurePropagatesNote(t *testing.T) {
	dir := t.TempDir()
	roots := archive.Roots{
		Originals:  filepath.Join(dir, "orig"),
		Playback:   filepath.Join(dir, "pb"),
		Thumbnails: filepath.Join(dir, "thumbs"),
		Temp:       filepath.Join(dir, "tmp"),
	}
	require.NoError(t, roots.EnsureAll())

	db := setupTestDB(t)
	mediaRepo := repository.NewMediaRepository(db)
	playbackRepo := repository.NewPlaybackRepository(db)
	thumbs := NewThumbnailWorker(mediaRepo, playbackRepo, roots, 85, nil)
	transcodeWorker := transcode.NewWorker(mediaRepo, playbackRepo, &fakeTranscoder{}, roots, nil)
	preparer := NewPreparer(mediaRepo, playbackRepo, thumbs, transcodeWorker, nil, roots, nil)
	ctx := context.Background()

	media := &database.Media{GoogleMediaID: "g1", LocalRelPath: "missing.mov", Filename: "missing.mov", HashSHA256: "h", Bytes: 1, IsVideo: true, ImportedAt: time.Now().UTC()}
	require.NoError(t, mediaRepo.Create(ctx, media))

	result, err := preparer.Prepare(ctx, media.ID, false)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, "missing_input", result.Note)
}

func TestPreparer_ThumbnailsOnly_SkipsVideoReadinessCheck(t *testing.T) {
	preparer, roots, mediaRepo, _ := newPreparerFixture(t)
	ctx := context.Background()

	media := &database.Media{GoogleMediaID: "g1", LocalRelPath: "photo.jpg", Filename: "photo.jpg", HashSHA256: "h", Bytes: 1, ImportedAt: time.Now().UTC()}
	require.NoError(t, mediaRepo.Create(ctx, media))
	writeTestImage(t, filepath.Join(roots.Originals, media.LocalRelPath), 300)

	result, err := preparer.ThumbnailsOnly(ctx, media.ID, false)
	require.NoError(t, err)
	assert.Contains(t, result.Generated, 256)
}
