package localimport

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
	require.NoError(t, db.AutoMigrate(
		&database.PickerSession{}, &database.PickerSelection{},
		&database.Media{}, &database.TaskRecord{},
	))
	return db
}
