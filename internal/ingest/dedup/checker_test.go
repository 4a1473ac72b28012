package dedup

import (
	"context"
	"testing"
	"time"

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
	require.NoError(t, db.AutoMigrate(
		&database.Media{}, &database.MediaItem{}, &database.PhotoMetadata{},
		&database.VideoMetadata{}, &database.Exif{}, &database.MediaPlayback{},
	))
	return db
}

func TestChecker_FindDuplicate_FoundAndNotFound(t *testing.T) {
	db := setupTestDB(t)
	mediaRepo := repository.NewMediaRepository(db)
	c := NewChecker(mediaRepo)
	ctx := context.Background()

	require.NoError(t, mediaRepo.Create(ctx, &database.Media{
		GoogleMediaID: "g1", LocalRelPath: "a.jpg", Filename: "a.jpg",
		HashSHA256: "hash1", Bytes: 500, ImportedAt: time.Now().UTC(),
	}))

	found, err := c.FindDuplicate(ctx, "hash1", 500)
	require.NoError(t, err)
	require.NotNil(t, found)

	none, err := c.FindDuplicate(ctx, "hash1", 999)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestChecker_FindDuplicate_IgnoresSoftDeleted(t *testing.T) {
	db := setupTestDB(t)
	mediaRepo := repository.NewMediaRepository(db)
	c := NewChecker(mediaRepo)
	ctx := context.Background()

	require.NoError(t, mediaRepo.Create(ctx, &database.Media{
		GoogleMediaID: "g1", LocalRelPath: "a.jpg", Filename: "a.jpg",
		HashSHA256: "hash1", Bytes: 500, ImportedAt: time.Now().UTC(), IsDeleted: true,
	}))

	found, err := c.FindDuplicate(ctx, "hash1", 500)
	require.NoError(t, err)
	assert.Nil(t, found)
}
