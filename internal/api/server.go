package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"wyckoff-trading-bot/config"
	"wyckoff-trading-bot/internal/circuit"
	"wyckoff-trading-bot/internal/detector"
	"wyckoff-trading-bot/internal/scanner"
	"wyckoff-trading-bot/internal/signal"
)

// Server exposes a read-only operational surface: health, breaker
// states, the queue snapshot, and the last scan summary. There is no
// mutation and no authentication here.
type Server struct {
	cfg      config.ServerConfig
	queue    *signal.PriorityQueue
	breakers *circuit.Registry
	loader   *detector.Loader
	scanner  *scanner.Scanner
	logger   zerolog.Logger
	srv      *http.Server
}

// NewServer wires the HTTP surface.
func NewServer(cfg config.ServerConfig, queue *signal.PriorityQueue, breakers *circuit.Registry,
	loader *detector.Loader, sc *scanner.Scanner, logger zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		queue:    queue,
		breakers: breakers,
		loader:   loader,
		scanner:  sc,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	gin.SetMode(s.cfg.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.GET("/health", s.handleHealth)
	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/breakers", s.handleBreakers)
		apiGroup.GET("/queue", s.handleQueue)
		apiGroup.GET("/queue/:id/score", s.handleScore)
		apiGroup.GET("/scan/last", s.handleLastScan)
		apiGroup.GET("/detectors/health", s.handleDetectorHealth)
	}

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info().Int("port", s.cfg.Port).Msg("api server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("api server stopped")
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	health := s.loader.HealthStatus()
	status := http.StatusOK
	overall := string(health.Status())
	if s.breakers.Degraded() {
		overall = string(detector.HealthDegraded)
	}
	if health.Status() == detector.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":    overall,
		"detectors": health,
		"queued":    s.queue.Len(),
	})
}

func (s *Server) handleBreakers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"breakers": s.breakers.States()})
}

func (s *Server) handleQueue(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"signals": s.queue.AllSorted()})
}

func (s *Server) handleScore(c *gin.Context) {
	score, err := s.queue.ScoreOf(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, score)
}

func (s *Server) handleLastScan(c *gin.Context) {
	last := s.scanner.LastResult()
	if last == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no scan has completed yet"})
		return
	}
	c.JSON(http.StatusOK, last)
}

func (s *Server) handleDetectorHealth(c *gin.Context) {
	health := s.loader.HealthStatus()
	c.JSON(http.StatusOK, gin.H{
		"status": health.Status(),
		"detail": health,
	})
}
