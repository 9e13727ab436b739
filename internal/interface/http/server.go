// Package http exposes the cron trigger, run lookup, job control, health and
// metrics endpoints of the drop matcher.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alem-hub/drop-matcher/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	// CronSecret / CronSecretBcrypt protect /api/v1 routes.
	CronSecret       string
	CronSecretBcrypt string

	// RateLimitPerMinute - requests per minute per IP on /api/v1 (0 = disabled).
	RateLimitPerMinute int

	// EnableMetrics exposes GET /metrics.
	EnableMetrics bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       10 * time.Minute,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		RateLimitPerMinute: 30,
		EnableMetrics:      true,
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	Runs   *handlers.RunsHandler
	Jobs   *handlers.JobsHandler // nil when the scheduler is disabled
	Health handlers.HealthChecker
	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	log := deps.Logger.With(slog.String("component", "http"))

	s := &Server{
		config: config,
		logger: log,
	}
	s.handler = handlers.Chain(s.routes(deps),
		handlers.RequestID(log),
		handlers.Recovery,
		handlers.AccessLog,
		handlers.SecurityHeaders,
		handlers.Metrics,
	)

	s.httpServer = &http.Server{
		Addr:              config.Address(),
		Handler:           s.handler,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
	}

	return s
}

// Handler returns the fully wrapped handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) routes(deps Dependencies) *http.ServeMux {
	mux := http.NewServeMux()

	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewHealthHandler(deps.Health)
	mux.HandleFunc("GET /health", health.Health)
	mux.HandleFunc("GET /healthz", health.Health)
	mux.HandleFunc("GET /ready", health.Ready)
	mux.HandleFunc("GET /live", health.Live)

	if s.config.EnableMetrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 - bearer protected
	// ─────────────────────────────────────────────────────────────────────────
	auth := handlers.NewBearerAuth(s.config.CronSecret, s.config.CronSecretBcrypt)
	if !auth.Configured() {
		s.logger.Warn("no cron secret configured, /api/v1 rejects every request")
	}
	protect := []handlers.MiddlewareFunc{auth.Middleware}
	if s.config.RateLimitPerMinute > 0 {
		protect = append([]handlers.MiddlewareFunc{handlers.NewRateLimiter(s.config.RateLimitPerMinute).Middleware}, protect...)
	}
	api := func(h http.HandlerFunc) http.Handler {
		return handlers.Chain(h, protect...)
	}

	if deps.Runs != nil {
		mux.Handle("POST /api/v1/cron/match", api(deps.Runs.TriggerMatch))
		mux.Handle("GET /api/v1/cron/match", api(deps.Runs.TriggerMatch))
		mux.Handle("GET /api/v1/runs", api(deps.Runs.ListRuns))
		mux.Handle("GET /api/v1/runs/{id}", api(deps.Runs.GetRun))
	}

	if deps.Jobs != nil {
		mux.Handle("GET /api/v1/jobs", api(deps.Jobs.ListJobs))
		mux.Handle("GET /api/v1/jobs/history", api(deps.Jobs.History))
		mux.Handle("GET /api/v1/jobs/{name}", api(deps.Jobs.GetJob))
		mux.Handle("POST /api/v1/jobs/{name}/run", api(deps.Jobs.RunJob))
		mux.Handle("POST /api/v1/jobs/{name}/enable", api(deps.Jobs.EnableJob))
		mux.Handle("POST /api/v1/jobs/{name}/disable", api(deps.Jobs.DisableJob))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		handlers.WriteError(w, http.StatusNotFound, "not_found", "route not found")
	})

	return mux
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", slog.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server, waiting for in-flight runs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}
