// Package server handles HTTP endpoints and request routing.
package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"bin-kiosk/pkg/collection"
	"bin-kiosk/storage"
)

//go:embed tmpl/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "tmpl/*.tmpl"))

// Collections answers collection queries.
type Collections interface {
	Next(ctx context.Context) collection.Result
	Upcoming(ctx context.Context) ([]collection.Event, bool, error)
	Refresh(ctx context.Context) error
}

// CacheLister summarizes cache entries for diagnostics.
type CacheLister interface {
	List(ctx context.Context, window time.Duration) ([]storage.Info, error)
}

// Server handles HTTP requests.
type Server struct {
	collections Collections
	cache       CacheLister
	logger      *slog.Logger
	now         func() time.Time
	pollLimiter *rateLimiter
	cacheWindow time.Duration
}

// Config holds server configuration.
type Config struct {
	Collections Collections
	Cache       CacheLister
	Logger      *slog.Logger
	Now         func() time.Time // Defaults to time.Now
	CacheWindow time.Duration
	PollLimit   int // Refreshes allowed per client per hour; 0 means 10
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	limit := cfg.PollLimit
	if limit <= 0 {
		limit = 10
	}
	return &Server{
		collections: cfg.Collections,
		cache:       cfg.Cache,
		logger:      cfg.Logger,
		now:         now,
		pollLimiter: newRateLimiter(limit, time.Hour, now),
		cacheWindow: cfg.CacheWindow,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/api/bins", s.handleBins)
	mux.HandleFunc("/api/bins.ics", s.handleCalendar)
	mux.HandleFunc("/api/bins/cache", s.handleCache)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/pollz", s.handlePoll)
	return mux
}

// ListenAndServe serves on port until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, port string) error {
	// Configure server with timeouts to prevent resource exhaustion
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,  // Time to read request headers and body
		WriteTimeout:      30 * time.Second,  // Time to write response
		IdleTimeout:       120 * time.Second, // Time to keep connection alive between requests
		ReadHeaderTimeout: 5 * time.Second,   // Time to read request headers only
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP server shutdown failed", "error", err)
		}
	}()

	s.logger.Info("Starting HTTP server", "port", port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
