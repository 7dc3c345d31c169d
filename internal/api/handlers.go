package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ClaudeSessionAuth/internal/container"
	"github.com/router-for-me/ClaudeSessionAuth/internal/logging"
	"github.com/router-for-me/ClaudeSessionAuth/internal/session"
)

type submitCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

func (s *Server) startAuth(c *gin.Context) {
	key := c.Param("key")
	ctx := c.Request.Context()

	orch, err := s.factory(ctx, s.currentConfig(), key)
	if err != nil {
		logging.FromContext(ctx).WithField("session", key).Warnf("cannot start authentication: %v", err)
		status := http.StatusInternalServerError
		if errors.Is(err, container.ErrContainerNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	snap, err := s.registry.Start(ctx, key, orch.Authenticate)
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, snap)
}

func (s *Server) getAuth(c *gin.Context) {
	snap, ok := s.registry.Get(c.Param("key"))
	if !ok {
		writeSessionError(c, session.ErrSessionNotFound)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) cancelAuth(c *gin.Context) {
	fired, err := s.registry.Cancel(c.Param("key"))
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"cancelled": fired})
}

// removeSession forgets the key's session so its history is no longer served.
func (s *Server) removeSession(c *gin.Context) {
	if err := s.registry.Remove(c.Param("key")); err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

func (s *Server) submitCode(c *gin.Context) {
	var req submitCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "message": err.Error()})
		return
	}
	if err := s.registry.SubmitCode(c.Param("key"), req.Code); err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "submitted"})
}

func (s *Server) credentialStatus(c *gin.Context) {
	key := c.Param("key")
	ctx := c.Request.Context()
	orch, err := s.factory(ctx, s.currentConfig(), key)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, container.ErrContainerNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	st, err := orch.Status(ctx)
	if err != nil {
		logging.FromContext(ctx).WithField("session", key).Errorf("failed to read credential status: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func writeSessionError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrInvalidKey), errors.Is(err, session.ErrNotAuthCode):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrSessionActive), errors.Is(err, session.ErrSessionStarting):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
