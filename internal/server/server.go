// Package server exposes topology queries and graph rendering over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/santoshpalla27/topograph/internal/discovery"
	"github.com/santoshpalla27/topograph/internal/metrics"
	"github.com/santoshpalla27/topograph/internal/render"
	"github.com/santoshpalla27/topograph/pkg/api"
	topoerrors "github.com/santoshpalla27/topograph/pkg/errors"
	"github.com/santoshpalla27/topograph/pkg/platform"
)

// Topology is the query surface the server needs.
type Topology interface {
	Query(ctx context.Context, application string) (*api.TopologyResponse, *discovery.Result, error)
	ListApplications(ctx context.Context) ([]string, error)
}

// Config holds server configuration.
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxRequestSize int64
	APIKey         string
	Version        string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   90 * time.Second,
		RequestTimeout: 75 * time.Second,
		MaxRequestSize: 10 * 1024 * 1024, // 10MB
		Version:        "dev",
	}
}

// ConfigFromEnv overlays PORT, API_KEY and the timeout variables on the defaults.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	cfg.Port = platform.GetEnvInt("PORT", cfg.Port)
	cfg.APIKey = platform.GetEnv("API_KEY", "")
	cfg.ReadTimeout = platform.GetEnvDuration("READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = platform.GetEnvDuration("WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.RequestTimeout = platform.GetEnvDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	return cfg
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	topology   Topology
	metrics    *metrics.Collector
	config     *Config
	logger     zerolog.Logger
	startTime  time.Time
}

// New creates a server. A nil config takes DefaultConfig; a nil collector disables /metrics.
func New(topology Topology, collector *metrics.Collector, config *Config, logger zerolog.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{
		topology:  topology,
		metrics:   collector,
		config:    config,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.config.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/health/live", handleLiveness)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(platform.APIKeyMiddleware(s.config.APIKey))
		r.Get("/applications", s.handleApplications)
		r.Get("/topology", s.handleTopology)
		r.Get("/topology/render", s.handleTopologyRender)
		r.Post("/render", s.handleRender)
	})
	return r
}

// Start serves until the server is shut down.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Router(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info().
		Int("port", s.config.Port).
		Str("version", s.config.Version).
		Bool("auth", s.config.APIKey != "").
		Msg("Starting topograph API server")
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown serves until ctx is done, then drains in-flight requests.
func (s *Server) StartWithGracefulShutdown(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveRequest(route, strconv.Itoa(status))
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "topograph",
		"version": s.config.Version,
		"uptime":  time.Since(s.startTime).String(),
	})
}

func handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := s.topology.ListApplications(r.Context())
	if err != nil {
		s.respondQueryError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"applications": apps})
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	resp, result, err := s.topology.Query(r.Context(), r.URL.Query().Get("application"))
	if err != nil {
		s.respondQueryError(w, r, err)
		return
	}
	w.Header().Set("X-Topograph-Run-ID", result.RunID)
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTopologyRender(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	showExternal := true
	if v := q.Get("external"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, topoerrors.ErrCodeInvalidRequest, "external must be true or false")
			return
		}
		showExternal = parsed
	}

	resp, result, err := s.topology.Query(r.Context(), q.Get("application"))
	if err != nil {
		s.respondQueryError(w, r, err)
		return
	}
	w.Header().Set("X-Topograph-Run-ID", result.RunID)
	s.writeSVG(w, api.RenderRequest{
		Resources:             resp.Resources,
		Relationships:         resp.Relationships,
		ExternalResources:     resp.ExternalResources,
		ShowExternalResources: showExternal,
		Highlight:             q.Get("highlight"),
	})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxRequestSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	}
	var req api.RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, topoerrors.ErrCodeInvalidRequest, "invalid request body")
		return
	}
	s.writeSVG(w, req)
}

func (s *Server) writeSVG(w http.ResponseWriter, req api.RenderRequest) {
	var buf bytes.Buffer
	view, err := render.SVG(&buf, req, render.Options{})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "", "render failed: "+err.Error())
		return
	}
	if view.Dropped > 0 {
		s.logger.Warn().Int("dropped", view.Dropped).Msg("Dropped unresolvable relationships")
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("X-Topograph-Dropped-Edges", strconv.Itoa(view.Dropped))
	w.Header().Set("X-Topograph-Hidden-Edges", strconv.Itoa(view.Hidden))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) respondQueryError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, topoerrors.ErrInventoryUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	s.logger.Error().
		Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("code", topoerrors.Code(err)).
		Msg("Topology query failed")
	respondError(w, status, topoerrors.Code(err), err.Error())
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, api.ErrorResponse{Success: false, Error: message, Code: code})
}
