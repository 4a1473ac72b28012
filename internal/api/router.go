// Package api exposes the minimal operability surface (§A.5): a health
// check and a read-only session status endpoint. HTTP controllers for the
// picker/OAuth/admin surfaces are out of scope; this exists only because
// the teacher never ships a module without some status surface reachable
// over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/mediavault/internal/ingest/repository"
	"github.com/mantonx/mediavault/internal/mverrors"
	"gorm.io/gorm"
)

// Server holds the collaborators the router's handlers read from.
type Server struct {
	db       *gorm.DB
	sessions *repository.SessionRepository
}

func NewServer(db *gorm.DB, sessions *repository.SessionRepository) *Server {
	return &Server{db: db, sessions: sessions}
}

// Router builds the gin engine exposing GET /healthz and GET /sessions/:id.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.healthz)
	r.GET("/sessions/:id", s.getSession)

	return r
}

func (s *Server) healthz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.Ping() != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.sessions.GetBySessionID(c.Request.Context(), c.Param("id"))
	if err != nil {
		var notFound *mverrors.ErrNotFound
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":       sess.SessionID,
		"status":           sess.Status,
		"selected_count":   sess.SelectedCount,
		"last_progress_at": sess.LastProgressAt,
		"stats":            json.RawMessage(sess.StatsJSON),
	})
}
