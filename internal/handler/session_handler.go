// Package handler contains the gin HTTP and websocket handlers.
package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"cyberchat-go/internal/middleware"
	"cyberchat-go/internal/repository"
	"cyberchat-go/internal/service"
	"cyberchat-go/pkg/log"
)

// SessionHandler opens, reads and closes chat sessions.
type SessionHandler struct {
	sessionService service.SessionService
	records        repository.ChatRecordRepository
}

// NewSessionHandler creates a SessionHandler. records may be nil when MySQL is not configured.
func NewSessionHandler(sessionService service.SessionService, records repository.ChatRecordRepository) *SessionHandler {
	return &SessionHandler{sessionService: sessionService, records: records}
}

type createSessionRequest struct {
	Model string `json:"model"`
}

// Create opens a session. The optional model field selects a configured provider.
func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	info, err := h.sessionService.Create(c.Request.Context(), req.Model)
	if err != nil {
		log.Warnf("[SessionHandler] create session failed, model: %q: %v", req.Model, err)
		status, msg := errorResponse(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusCreated, info)
}

// History returns the session's turns in order.
func (h *SessionHandler) History(c *gin.Context) {
	sess, ok := middleware.CurrentSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": sess.ID,
		"model":     sess.Provider,
		"state":     sess.State(),
		"turns":     service.HistoryViews(sess),
	})
}

// Records returns the persisted chat records of the session.
func (h *SessionHandler) Records(c *gin.Context) {
	sess, ok := middleware.CurrentSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
		return
	}
	if h.records == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat records are not stored"})
		return
	}
	records, err := h.records.FindBySession(c.Request.Context(), sess.ID)
	if err != nil {
		log.Errorf("[SessionHandler] load chat records failed, session: %s: %v", sess.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load chat records"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

// Close ends the session.
func (h *SessionHandler) Close(c *gin.Context) {
	sess, ok := middleware.CurrentSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
		return
	}
	archive, err := h.sessionService.Close(c.Request.Context(), sess.ID)
	if err != nil {
		status, msg := errorResponse(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	resp := gin.H{"sessionId": sess.ID, "closed": true}
	if archive != "" {
		resp["archive"] = archive
	}
	c.JSON(http.StatusOK, resp)
}
