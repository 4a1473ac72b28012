package repository

import (
	"context"
	"testing"

	"github.com/mantonx/mediavault/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMediaItemRepository_UpsertCreatesThenUpdates(t *testing.T) {
	db := setupTestDB(t)
	r := NewMediaItemRepository(db)
	ctx := context.Background()

	item := &database.MediaItem{
		ID: "item-1", GoogleMediaID: "g1", Type: database.MediaKindPhoto, Filename: "a.jpg",
	}
	require.NoError(t, r.Upsert(ctx, item))

	got, err := r.GetByGoogleMediaID(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a.jpg", got.Filename)

	updated := &database.MediaItem{
		GoogleMediaID: "g1", Type: database.MediaKindPhoto, Filename: "renamed.jpg",
	}
	require.NoError(t, r.Upsert(ctx, updated))

	got2, err := r.GetByGoogleMediaID(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "renamed.jpg", got2.Filename)
	assert.Equal(t, got.ID, got2.ID)
}

func TestMediaItemRepository_GetByGoogleMediaID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	r := NewMediaItemRepository(db)

	got, err := r.GetByGoogleMediaID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}
