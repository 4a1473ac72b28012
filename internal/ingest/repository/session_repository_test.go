package repository

import (
	"context"
	"testing"

	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/mverrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestSessionRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	r := NewSessionRepository(db)
	ctx := context.Background()

	sess := &database.PickerSession{SessionID: "sess-1", Status: database.SessionStatusPending}
	require.NoError(t, r.Create(ctx, sess))

	got, err := r.GetBySessionID(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}

func TestSessionRepository_GetBySessionID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	r := NewSessionRepository(db)

	_, err := r.GetBySessionID(context.Background(), "missing")
	require.Error(t, err)
	var notFound *mverrors.ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestSessionRepository_WithTx_CommitsOnSuccess(t *testing.T) {
	db := setupTestDB(t)
	r := NewSessionRepository(db)
	ctx := context.Background()

	sess := &database.PickerSession{SessionID: "sess-2", Status: database.SessionStatusPending}
	require.NoError(t, r.Create(ctx, sess))

	err := r.WithTx(ctx, func(tx *SessionRepository) error {
		fresh, err := tx.GetBySessionID(ctx, "sess-2")
		require.NoError(t, err)
		fresh.Status = database.SessionStatusProcessing
		fresh.StatsJSON = datatypes.JSON(`{"stage":"processing"}`)
		return tx.Save(ctx, fresh)
	})
	require.NoError(t, err)

	got, err := r.GetBySessionID(ctx, "sess-2")
	require.NoError(t, err)
	assert.Equal(t, database.SessionStatusProcessing, got.Status)
}

func TestSessionRepository_WithTx_RollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	r := NewSessionRepository(db)
	ctx := context.Background()

	sess := &database.PickerSession{SessionID: "sess-3", Status: database.SessionStatusPending}
	require.NoError(t, r.Create(ctx, sess))

	err := r.WithTx(ctx, func(tx *SessionRepository) error {
		fresh, err := tx.GetBySessionID(ctx, "sess-3")
		require.NoError(t, err)
		fresh.Status = database.SessionStatusImported
		require.NoError(t, tx.Save(ctx, fresh))
		return assert.AnError
	})
	require.Error(t, err)

	got, err := r.GetBySessionID(ctx, "sess-3")
	require.NoError(t, err)
	assert.Equal(t, database.SessionStatusPending, got.Status)
}
