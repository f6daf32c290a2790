package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/newthinker/dipper/internal/api/response"
	"github.com/newthinker/dipper/internal/app"
	"github.com/newthinker/dipper/internal/core"
	"github.com/newthinker/dipper/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes metrics and read-only status endpoints for the monitor.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	app        *app.App
	apiKey     string
	now        func() time.Time
}

// Config holds server configuration
type Config struct {
	Addr        string
	MetricsPath string
	APIKey      string // Empty disables auth on /api routes
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, a *app.App, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	mux := http.NewServeMux()

	s := &Server{
		logger: logger,
		mux:    mux,
		app:    a,
		apiKey: cfg.APIKey,
		now:    time.Now,
	}

	reg := a.Metrics()
	mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.Handle("/api/status", s.requireKey(http.HandlerFunc(s.handleStatus)))
	mux.Handle("/api/portfolio", s.requireKey(http.HandlerFunc(s.handlePortfolio)))

	var handler http.Handler = mux
	handler = metrics.LoggingMiddleware(logger)(handler)
	handler = metrics.HTTPMiddleware(reg, cfg.MetricsPath, "/api/health", "/api/status", "/api/portfolio")(handler)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"investments": s.app.Tracker().Len(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	date, err := s.date(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	report, err := s.app.Status(r.Context(), date)
	if err != nil {
		response.Error(w, 0, err)
		return
	}
	response.JSON(w, http.StatusOK, report)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	date, err := s.date(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	report, err := s.app.Portfolio(r.Context(), date)
	if err != nil {
		response.Error(w, 0, err)
		return
	}
	response.JSON(w, http.StatusOK, report)
}

// date reads the optional ?date=YYYY-MM-DD parameter, defaulting to today.
func (s *Server) date(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return core.Day(s.now()), nil
	}
	d, err := core.ParseDate(raw)
	if err != nil {
		return time.Time{}, core.WrapError(core.ErrConfigInvalid, err)
	}
	return d, nil
}

// requireKey checks X-API-Key in constant time when a key is configured.
func (s *Server) requireKey(next http.Handler) http.Handler {
	if s.apiKey == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := r.Header.Get("X-API-Key")
		if provided == "" {
			response.Error(w, http.StatusUnauthorized, core.WrapError(core.ErrConfigMissing, errors.New("X-API-Key header")))
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.apiKey)) != 1 {
			response.Error(w, http.StatusUnauthorized, core.WrapError(core.ErrConfigInvalid, errors.New("X-API-Key header")))
			return
		}
		next.ServeHTTP(w, r)
	})
}
