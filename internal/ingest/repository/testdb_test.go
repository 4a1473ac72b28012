package repository

import (
	"testing"

	"github.com/mantonx/mediavault/internal/database"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&database.Media{},
		&database.MediaItem{},
		&database.PhotoMetadata{},
		&database.VideoMetadata{},
		&database.Exif{},
		&database.MediaPlayback{},
		&database.PickerSession{},
		&database.PickerSelection{},
		&database.TaskRecord{},
	)
	require.NoError(t, err)
	return db
}
