package session

import (
	"context"
	"testing"
	"time"

	"github.com/mantonx/mediavault/internal/clock"
	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&database.PickerSession{}))
	return db
}

func TestService_SetProgress_AppliesStatusStageAndStats(t *testing.T) {
	db := setupTestDB(t)
	sessions := repository.NewSessionRepository(db)
	ctx := context.Background()

	sess := &database.PickerSession{SessionID: "s1", Status: database.SessionStatusPending}
	require.NoError(t, sessions.Create(ctx, sess))

	svc := NewService(sessions, clock.NewFixed(time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)), nil)

	status := database.SessionStatusProcessing
	stage := "processing"
	err := svc.SetProgress(ctx, sess, ProgressUpdate{
		Status: &status,
		Stage:  &stage,
		StatsUpdates: map[string]interface{}{
			"total": 5,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, database.SessionStatusProcessing, sess.Status)

	got, err := sessions.GetBySessionID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, database.SessionStatusProcessing, got.Status)

	stats := decodeStats(got.StatsJSON)
	assert.Equal(t, "processing", stats["stage"])
	assert.EqualValues(t, 5, stats["total"])
}

func TestService_SetProgress_PreservesUnknownStatsKeys(t *testing.T) {
	db := setupTestDB(t)
	sessions := repository.NewSessionRepository(db)
	ctx := context.Background()

	sess := &database.PickerSession{
		SessionID: "s2", Status: database.SessionStatusPending,
		StatsJSON: datatypes.JSON(`{"ui_hint":"keep me"}`),
	}
	require.NoError(t, sessions.Create(ctx, sess))

	svc := NewService(sessions, clock.Real, nil)
	err := svc.SetProgress(ctx, sess, ProgressUpdate{StatsUpdates: map[string]interface{}{"total": 2}})
	require.NoError(t, err)

	got, err := sessions.GetBySessionID(ctx, "s2")
	require.NoError(t, err)
	stats := decodeStats(got.StatsJSON)
	assert.Equal(t, "keep me", stats["ui_hint"])
	assert.EqualValues(t, 2, stats["total"])
}

func TestService_CancelRequested_TrueWhenSessionCanceled(t *testing.T) {
	db := setupTestDB(t)
	sessions := repository.NewSessionRepository(db)
	ctx := context.Background()

	sess := &database.PickerSession{SessionID: "s3", Status: database.SessionStatusCanceled}
	require.NoError(t, sessions.Create(ctx, sess))

	svc := NewService(sessions, clock.Real, nil)
	assert.True(t, svc.CancelRequested(ctx, sess, nil, nil))
}

func TestService_CancelRequested_TrueWhenStatsFlagSet(t *testing.T) {
	db := setupTestDB(t)
	sessions := repository.NewSessionRepository(db)
	ctx := context.Background()

	sess := &database.PickerSession{
		SessionID: "s4", Status: database.SessionStatusProcessing,
		StatsJSON: datatypes.JSON(`{"cancel_requested":true}`),
	}
	require.NoError(t, sessions.Create(ctx, sess))

	svc := NewService(sessions, clock.Real, nil)
	assert.True(t, svc.CancelRequested(ctx, sess, nil, nil))
}

func TestService_CancelRequested_FalseByDefault(t *testing.T) {
	db := setupTestDB(t)
	sessions := repository.NewSessionRepository(db)
	ctx := context.Background()

	sess := &database.PickerSession{SessionID: "s5", Status: database.SessionStatusProcessing}
	require.NoError(t, sessions.Create(ctx, sess))

	svc := NewService(sessions, clock.Real, nil)
	assert.False(t, svc.CancelRequested(ctx, sess, nil, nil))
}
