// Package api exposes the monitoring service's control plane: health,
// strategy listing, cache reload, on-demand evaluation, and Prometheus
// metrics. The evaluation loop itself has no user-facing channel; this
// surface is operational only.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"strategy-monitor/internal/cache"
	"strategy-monitor/internal/database"
	"strategy-monitor/internal/engine"
)

// Server is the HTTP control-plane server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	repo       *database.StrategyRepository
	db         *database.DB
	cache      *cache.Service
	scheduler  *engine.Scheduler
	logger     zerolog.Logger
	config     ServerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ProductionMode bool
}

// NewServer creates the control-plane server and registers its routes.
func NewServer(
	config ServerConfig,
	repo *database.StrategyRepository,
	db *database.DB,
	cacheSvc *cache.Service,
	scheduler *engine.Scheduler,
	logger zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:    router,
		repo:      repo,
		db:        db,
		cache:     cacheSvc,
		scheduler: scheduler,
		logger:    logger.With().Str("component", "api").Logger(),
		config:    config,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/strategies", s.handleListStrategies)
	s.router.GET("/strategies/:id/triggers", s.handleTriggerLogs)
	s.router.POST("/reload_strategies", s.handleReload)
	s.router.POST("/evaluate/:id", s.handleEvaluate)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := "ok"
	dbOK := true
	if err := s.db.Ping(ctx); err != nil {
		status = "degraded"
		dbOK = false
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"database":          dbOK,
		"cache_enabled":     s.cache.Enabled(),
		"cache_healthy":     s.cache.IsHealthy(),
		"scheduler_running": s.scheduler.IsRunning(),
	})
}

func (s *Server) handleListStrategies(c *gin.Context) {
	strategies, err := s.repo.GetActiveStrategies(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list strategies")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list strategies"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": strategies, "count": len(strategies)})
}

func (s *Server) handleTriggerLogs(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid strategy id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	logs, err := s.repo.GetTriggerLogs(c.Request.Context(), id, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("strategy_id", id.String()).Msg("failed to load trigger logs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trigger logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"triggers": logs, "count": len(logs)})
}

// handleReload is a hint endpoint: the scheduler reloads strategies from
// the store every cycle anyway, so this only acknowledges the request.
func (s *Server) handleReload(c *gin.Context) {
	s.logger.Info().Msg("strategy reload requested")
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

// handleEvaluate runs one off-cycle evaluation and returns the verdict
// without any bookkeeping: no last_run_at update and no trigger log.
func (s *Server) handleEvaluate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid strategy id"})
		return
	}

	strategy, err := s.repo.GetStrategyByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "strategy not found"})
			return
		}
		s.logger.Error().Err(err).Str("strategy_id", id.String()).Msg("failed to load strategy")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load strategy"})
		return
	}

	result := s.scheduler.Evaluate(c.Request.Context(), strategy)
	c.JSON(http.StatusOK, gin.H{
		"strategy_id": strategy.ID,
		"met":         result.Met,
		"evaluated":   result.Evaluated,
	})
}

// Start begins serving HTTP requests. It blocks until the server exits.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("api server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
