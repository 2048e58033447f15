// Package server owns the components of the mock build service.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/buildchat/db"
	"github.com/xiaoyuanzhu-com/buildchat/log"
	"github.com/xiaoyuanzhu-com/buildchat/vendors"
)

// SocketPrefix is where the per-session websocket endpoints live
const SocketPrefix = "/session"

// Server owns and coordinates all mock service components
type Server struct {
	cfg *Config

	// Components (owned by server)
	database  *db.DB
	assistant vendors.Assistant

	// Shutdown context - cancelled when server is shutting down.
	// Session sockets listen to this.
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc

	// HTTP
	router *gin.Engine
	http   *http.Server
}

// Option customizes a server
type Option func(*Server)

// WithAssistant replaces the assistant derived from the config
func WithAssistant(a vendors.Assistant) Option {
	return func(s *Server) {
		s.assistant = a
	}
}

// New creates a new server with all components initialized
func New(cfg *Config, opts ...Option) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:            cfg,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	// 1. Open database
	log.Info().Msg("initializing database")
	database, err := db.Open(cfg.ToDBConfig())
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s.database = database

	// 2. Assistant backend
	if s.assistant == nil {
		s.assistant = vendors.NewAssistant(cfg.ToOpenAIConfig())
	}

	// 3. Setup HTTP router
	s.setupRouter()

	log.Info().Msg("server initialized successfully")
	return s, nil
}

// setupRouter creates and configures the Gin router
func (s *Server) setupRouter() {
	if !s.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()

	s.router.Use(gin.Recovery())
	s.router.Use(log.GinLogger())

	// Gzip compression (skip websocket endpoints)
	s.router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		SocketPrefix, // WebSocket - protocol upgrade
	})))

	s.router.SetTrustedProxies(nil)

	s.router.GET("/.well-known/*path", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	// Note: API routes are set up by calling code to avoid import cycles
}

// Start starts the HTTP server on the configured address (blocks)
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves HTTP on ln (blocks)
func (s *Server) Serve(ln net.Listener) error {
	s.http = &http.Server{
		Handler:  s.router,
		ErrorLog: log.StdErrorLogger(), // Route Go's internal HTTP errors through zerolog
	}

	log.Info().
		Str("addr", ln.Addr().String()).
		Str("env", s.cfg.Env).
		Msg("HTTP server starting")

	err := s.http.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")

	// Signal session sockets to stop before closing the HTTP server
	s.shutdownCancel()

	// Give handlers a moment to close their sockets.
	// This prevents "response.WriteHeader on hijacked connection" warnings.
	time.Sleep(100 * time.Millisecond)

	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("http server shutdown error")
		}
	}

	// Close database last
	if s.database != nil {
		if err := s.database.Close(); err != nil {
			log.Error().Err(err).Msg("database close error")
			return err
		}
	}

	log.Info().Msg("server shutdown complete")
	return nil
}

// Component accessors for API handlers
func (s *Server) Config() *Config { return s.cfg }
func (s *Server) DB() *db.DB { return s.database }
func (s *Server) Assistant() vendors.Assistant { return s.assistant }
func (s *Server) Router() *gin.Engine { return s.router }
func (s *Server) ShutdownContext() context.Context { return s.shutdownCtx }
