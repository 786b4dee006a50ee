// Package api exposes the signal engine over HTTP for external tooling.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mtf-signal-engine/internal/cache"
	"mtf-signal-engine/internal/engine"
	"mtf-signal-engine/internal/market"
)

// RateLimiter provides simple in-memory rate limiting per client.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a rate limiter allowing limit requests per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key.
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

// BarStore persists price history and scan output. Signal recording is
// best-effort: a failure is logged and never fails the scan request.
type BarStore interface {
	SaveBars(ctx context.Context, symbol string, res market.Resolution, bars []market.Bar) error
	SaveSignals(ctx context.Context, runID uuid.UUID, symbol string, signals []engine.Signal) error
}

// Config holds HTTP server settings.
type Config struct {
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimit      int      `json:"rate_limit"`
}

// Server hosts the scan endpoints.
type Server struct {
	router    *gin.Engine
	generator *engine.Generator
	provider  cache.HistoryProvider // nil when no store is configured
	store     BarStore              // nil disables persistence
	limiter   *RateLimiter
	log       zerolog.Logger
	httpSrv   *http.Server
}

// NewServer wires the routes. provider and store may be nil; without a
// provider scans require inline bars.
func NewServer(cfg Config, generator *engine.Generator, provider cache.HistoryProvider, store BarStore, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 60
	}

	s := &Server{
		router:    router,
		generator: generator,
		provider:  provider,
		store:     store,
		limiter:   NewRateLimiter(limit, time.Minute),
		log:       log,
		httpSrv: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: router,
		},
	}

	v1 := router.Group("/api/v1")
	v1.Use(s.rateLimit())
	v1.GET("/health", s.handleHealth)
	v1.POST("/scan", s.handleScan)
	v1.POST("/bars", s.handleSaveBars)

	return s
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.httpSrv.Addr).Msg("API server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}
