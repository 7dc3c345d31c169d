// Package api exposes authentication sessions over HTTP for the chat bot layer:
// starting, inspecting and cancelling an attempt, submitting codes, and streaming
// state changes over a websocket.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/router-for-me/ClaudeSessionAuth/internal/access"
	"github.com/router-for-me/ClaudeSessionAuth/internal/buildinfo"
	"github.com/router-for-me/ClaudeSessionAuth/internal/config"
	"github.com/router-for-me/ClaudeSessionAuth/internal/logging"
	"github.com/router-for-me/ClaudeSessionAuth/internal/session"
	"github.com/router-for-me/ClaudeSessionAuth/sdk/auth"
	log "github.com/sirupsen/logrus"
)

// OrchestratorFactory builds the orchestrator for a session key under cfg.
type OrchestratorFactory func(ctx context.Context, cfg *config.Config, key string) (*auth.Orchestrator, error)

// Server is the HTTP surface.
type Server struct {
	mu  sync.RWMutex
	cfg *config.Config

	engine   *gin.Engine
	server   *http.Server
	registry *session.Registry
	factory  OrchestratorFactory
	keys     *access.KeySet
	upgrader websocket.Upgrader
}

// NewServer wires routes and middleware. Start must be called to listen.
func NewServer(cfg *config.Config, registry *session.Registry, factory OrchestratorFactory) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(logging.GinLogrusLogger())
	engine.Use(logging.GinLogrusRecovery())

	s := &Server{
		cfg:      cfg,
		engine:   engine,
		registry: registry,
		factory:  factory,
		keys:     access.NewKeySet(cfg.APIKeys),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		logging.SkipGinRequestLogging(c)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": buildinfo.Version, "commit": buildinfo.Commit})
	})

	v0 := s.engine.Group("/v0/sessions/:key")
	v0.Use(s.authMiddleware())
	{
		v0.DELETE("", s.removeSession)
		v0.POST("/auth", s.startAuth)
		v0.GET("/auth", s.getAuth)
		v0.DELETE("/auth", s.cancelAuth)
		v0.POST("/auth/code", s.submitCode)
		v0.GET("/auth/stream", s.streamAuth)
		v0.GET("/status", s.credentialStatus)
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens until Stop is called. It returns nil after a graceful stop.
func (s *Server) Start() error {
	log.Infof("API server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop cancels running attempts and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.registry.Shutdown()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	log.Info("API server stopped")
	return nil
}

// UpdateConfig applies a reloaded configuration. New attempts use it; running
// attempts keep the configuration they started with. The listen address is not changed.
func (s *Server) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.keys.Update(cfg.APIKeys)
	s.registry.SetTTL(cfg.SessionTTL())
	logging.SetLogLevel(cfg)
	log.Info("configuration applied to API server")
}

func (s *Server) currentConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := s.keys.Authenticate(c.Request); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}
