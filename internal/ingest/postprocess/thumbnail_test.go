package postprocess

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/mantonx/mediavault/internal/archive"
	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&database.Media{}, &database.MediaPlayback{}, &database.TaskRecord{}))
	return db
}

func writeTestImage(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 2, A: 255})
		}
	}
	require.NoError(t, imaging.Save(img, path))
}

func TestThumbnailWorker_Generate_PhotoGeneratesSmallerSizes(t *testing.T) {
	dir := t.TempDir()
	roots := archive.Roots{Originals: filepath.Join(dir, "orig"), Thumbnails: filepath.Join(dir, "thumbs")}
	require.NoError(t, roots.EnsureAll())

	db := setupTestDB(t)
	mediaRepo := repository.NewMediaRepository(db)
	playbackRepo := repository.NewPlaybackRepository(db)
	ctx := context.Background()

	media := &database.Media{GoogleMediaID: "g1", LocalRelPath: "2026/01/photo.jpg", Filename: "photo.jpg", HashSHA256: "h", Bytes: 1, ImportedAt: time.Now().UTC()}
	require.NoError(t, mediaRepo.Create(ctx, media))
	writeTestImage(t, filepath.Join(roots.Originals, media.LocalRelPath), 300)

	w := NewThumbnailWorker(mediaRepo, playbackRepo, roots, 85, nil)
	result, err := w.Generate(ctx, media.ID, false)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Contains(t, result.Generated, 256)
	assert.Contains(t, result.Skipped, 512)
	assert.Contains(t, result.Skipped, 1024)
	assert.Contains(t, result.Skipped, 2048)

	got, err := mediaRepo.GetByID(ctx, media.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ThumbnailRelPath)
}

func TestThumbnailWorker_Generate_SkipsWhenAlreadyPresentWithoutForce(t *testing.T) {
	dir := t.TempDir()
	roots := archive.Roots{Originals: filepath.Join(dir, "orig"), Thumbnails: filepath.Join(dir, "thumbs")}
	require.NoError(t, roots.EnsureAll())

	db := setupTestDB(t)
	mediaRepo := repository.NewMediaRepository(db)
	playbackRepo := repository.NewPlaybackRepository(db)
	ctx := context.Background()

	media := &database.Media{GoogleMediaID: "g1", LocalRelPath: "photo.jpg", Filename: "photo.jpg", HashSHA256: "h", Bytes: 1, ImportedAt: time.Now().UTC()}
	require.NoError(t, mediaRepo.Create(ctx, media))
	writeTestImage(t, filepath.Join(roots.Originals, media.LocalRelPath), 300)

	w := NewThumbnailWorker(mediaRepo, playbackRepo, roots, 85, nil)
	first, err := w.Generate(ctx, media.ID, false)
	require.NoError(t, err)
	require.Contains(t, first.Generated, 256)

	second, err := w.Generate(ctx, media.ID, false)
	require.NoError(t, err)
	assert.Contains(t, second.Skipped, 256)
	assert.NotContains(t, second.Generated, 256)
}

func TestThumbnailWorker_Generate_DeletedMediaSkipsAll(t *testing.T) {
	db := setupTestDB(t)
	mediaRepo := repository.NewMediaRepository(db)
	playbackRepo := repository.NewPlaybackRepository(db)
	ctx := context.Background()

	media := &database.Media{GoogleMediaID: "g1", LocalRelPath: "photo.jpg", Filename: "photo.jpg", HashSHA256: "h", Bytes: 1, ImportedAt: time.Now().UTC(), IsDeleted: true}
	require.NoError(t, mediaRepo.Create(ctx, media))

	w := NewThumbnailWorker(mediaRepo, playbackRepo, archive.Roots{}, 85, nil)
	result, err := w.Generate(ctx, media.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "deleted", result.Notes)
	assert.ElementsMatch(t, Sizes, result.Skipped)
}

func TestThumbnailWorker_Generate_VideoWithoutReadyPlaybackReportsNotReady(t *testing.T) {
	db := setupTestDB(t)
	mediaRepo := repository.NewMediaRepository(db)
	playbackRepo := repository.NewPlaybackRepository(db)
	ctx := context.Background()

	media := &database.Media{GoogleMediaID: "g1", LocalRelPath: "video.mp4", Filename: "video.mp4", HashSHA256: "h", Bytes: 1, IsVideo: true, ImportedAt: time.Now().UTC()}
	require.NoError(t, mediaRepo.Create(ctx, media))

	w := NewThumbnailWorker(mediaRepo, playbackRepo, archive.Roots{}, 85, nil)
	result, err := w.Generate(ctx, media.ID, false)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, PlaybackNotReady, result.Notes)
}

func TestHasAlpha(t *testing.T) {
	opaque := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			opaque.Set(x, y, color.RGBA{A: 255})
		}
	}
	assert.False(t, hasAlpha(opaque))

	transparent := image.NewRGBA(image.Rect(0, 0, 2, 2))
	transparent.Set(0, 0, color.RGBA{A: 0})
	assert.True(t, hasAlpha(transparent))
}
