package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
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
	require.NoError(t, db.AutoMigrate(&database.PickerSession{}))
	return db
}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHealthz_ReturnsOKWhenDBReachable(t *testing.T) {
	db := setupTestDB(t)
	sessions := repository.NewSessionRepository(db)
	srv := NewServer(db, sessions)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGetSession_ReturnsSessionWhenFound(t *testing.T) {
	db := setupTestDB(t)
	sessions := repository.NewSessionRepository(db)
	srv := NewServer(db, sessions)

	sess := &database.PickerSession{SessionID: "s1", Status: database.SessionStatusProcessing}
	require.NoError(t, sessions.Create(context.Background(), sess))

	req := httptest.NewRequest(http.MethodGet, "/sessions/s1", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"session_id":"s1"`)
}

func TestGetSession_ReturnsNotFoundForUnknownID(t *testing.T) {
	db := setupTestDB(t)
	sessions := repository.NewSessionRepository(db)
	srv := NewServer(db, sessions)

	req := httptest.NewRequest(http.MethodGet, "/sessions/missing", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
