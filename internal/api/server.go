// Package api exposes a local diagnostics REST server for the voice
// client: connection status, channel and user listings, and desired-state
// mutations.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/murmurlink-project/murmurlink/internal/client"
	"github.com/murmurlink-project/murmurlink/internal/config"
	"github.com/murmurlink-project/murmurlink/internal/db"
	"github.com/murmurlink-project/murmurlink/internal/events"
)

// Server is the REST API server for Murmurlink.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	voice    *client.Client
	database *db.Database

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, eventBus *events.EventBus, voice *client.Client, database *db.Database) *Server {
	// Set Gin mode based on log level
	if cfg.GetApplicationData().Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:      cfg,
		eventBus: eventBus,
		voice:    voice,
		database: database,
	}
}

// Start runs the API server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.router = s.buildRouter()

	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.GetApplicationData().API.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("REST API server starting")

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	// CORS
	allowedOrigins := s.cfg.GetApplicationData().API.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group("/api")
	{
		api.GET("/ping", s.handlePing)
		api.GET("/status", s.handleStatus)
		api.GET("/channels", s.handleChannels)
		api.GET("/users", s.handleUsers)
		api.GET("/talkers", s.handleTalkers)
		api.GET("/history", s.handleHistory)

		api.POST("/channel", s.handleSetChannel)
		api.POST("/listen", s.handleListen)
		api.POST("/voice_target", s.handleVoiceTarget)
		api.POST("/volume_override", s.handleVolumeOverride)
	}

	return router
}

// requestLogger logs every request at trace level.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Trace().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("api request")
	}
}
