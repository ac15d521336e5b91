// Package api exposes the learning subsystem over HTTP for dashboards and
// operators: read-only views of outcomes and filters, a dry-run decision
// check, admin review controls, and a websocket event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"dex-perp-bot/config"
	"dex-perp-bot/internal/auth"
	"dex-perp-bot/internal/decision"
	"dex-perp-bot/internal/logging"
	"dex-perp-bot/internal/outcome"
	"dex-perp-bot/internal/performance"
	"dex-perp-bot/internal/selfimprove"
)

// LearningAPI is what the server needs from the orchestrator
type LearningAPI interface {
	Stats() selfimprove.Stats
	DimensionBreakdown() map[outcome.Dimension]map[string]outcome.DimensionStats
	ActiveFiltersSummary() []selfimprove.FilterSummary
	PromptEnhancement() string
	LastReport() *performance.Report
	OpenTrades() []*outcome.TradeOutcome
	FilterDecision(d decision.Decision) (decision.Decision, string)
	ForceReview() *performance.Report
	ClearFilters() int
	DeactivateFilter(id string) bool
}

// HealthCheck reports whether an optional dependency is reachable
type HealthCheck func(ctx context.Context) error

// RateLimiter provides simple in-memory rate limiting per key
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	learning    LearningAPI
	hub         *WSHub
	config      config.ServerConfig
	jwtManager  *auth.JWTManager
	rateLimiter *RateLimiter
	checks      map[string]HealthCheck
	logger      zerolog.Logger
	startedAt   time.Time
}

// NewServer creates a new API server. jwtManager may be nil, in which case
// admin routes are open; hub may be nil to disable the websocket.
func NewServer(cfg config.ServerConfig, learning LearningAPI, hub *WSHub, jwtManager *auth.JWTManager, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		learning:    learning,
		hub:         hub,
		config:      cfg,
		jwtManager:  jwtManager,
		rateLimiter: NewRateLimiter(10, time.Minute),
		checks:      make(map[string]HealthCheck),
		logger:      logging.WithComponent(logger, "APIServer"),
		startedAt:   time.Now(),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(s.requestLogger())
	s.router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	s.setupRoutes()
	return s
}

func corsConfig(allowedOrigins string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	c.ExposeHeaders = []string{"Content-Length"}

	var origins []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

// AddHealthCheck registers a dependency reported by /health
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

// Router exposes the gin engine for tests and embedding
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		l := logging.APIContext(s.logger, c.Request.Method, c.FullPath(), c.Writer.Status())
		event := l.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = l.Error()
		}
		event.Dur("latency", time.Since(start)).Msg("Request handled")
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.ClientIP()) {
			errorResponse(c, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	learning := s.router.Group("/api/learning")
	{
		learning.GET("/stats", s.handleGetStats)
		learning.GET("/dimensions", s.handleGetDimensions)
		learning.GET("/filters", s.handleGetFilters)
		learning.GET("/prompt", s.handleGetPrompt)
		learning.GET("/report", s.handleGetReport)
		learning.GET("/trades/open", s.handleGetOpenTrades)
		learning.POST("/decisions/evaluate", s.handleEvaluateDecision)
	}

	admin := learning.Group("")
	admin.Use(s.rateLimitMiddleware())
	if s.jwtManager != nil {
		admin.Use(auth.Middleware(s.jwtManager), auth.RequireAdmin())
	} else {
		s.logger.Warn().Msg("Admin routes are unauthenticated (auth disabled)")
	}
	{
		admin.POST("/review", s.handleForceReview)
		admin.POST("/filters/clear", s.handleClearFilters)
		admin.POST("/filters/:id/deactivate", s.handleDeactivateFilter)
	}

	if s.hub != nil {
		s.router.GET("/ws/learning", s.handleWebSocket)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")

	if s.hub != nil {
		s.hub.Stop()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleHealth reports the server and its optional dependencies
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	deps := gin.H{}
	healthy := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			deps[name] = "unhealthy"
			healthy = false
			continue
		}
		deps[name] = "healthy"
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":         status,
		"dependencies":   deps,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
