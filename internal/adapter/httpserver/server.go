// Package httpserver serves the dashboard: operational endpoints the way a
// service exposes them (/healthz, /readyz, /metrics) plus the JSON and
// GeoJSON data the map views render from, and the embedded Leaflet page.
package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openpolicy-la/crimemap/internal/domain"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the dashboard over HTTP.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	data       *Data
	ready      ReadinessChecker
}

// NewServer creates the dashboard server. data must be fully populated
// before Start; the pipeline runs to completion first.
func NewServer(addr string, ready ReadinessChecker, data *Data, logger *slog.Logger) *Server {
	s := &Server{
		logger: logger,
		data:   data,
		ready:  ready,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/", s.handleIndex)
	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", s.handleSummary)
		r.Get("/cells", s.handleCells)
		r.Get("/boundaries", s.handleBoundaries)
		r.Get("/heatmap", s.handleHeatmap)
		r.Get("/categories", s.handleCategories)
		r.Get("/report", s.handleReport)
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("dashboard server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.ready.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.data.Summary())
}

func (s *Server) handleCells(w http.ResponseWriter, r *http.Request) {
	geo := r.URL.Query().Get("geo")
	category := r.URL.Query().Get("category")

	cells := s.data.Result.Table.Cells
	filtered := make([]domain.AggregationCell, 0, len(cells))
	for _, c := range cells {
		if geo != "" && c.GeoID != geo {
			continue
		}
		if category != "" && string(c.Category) != category {
			continue
		}
		filtered = append(filtered, c)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"granularity": s.data.Result.Table.Granularity,
		"cells":       filtered,
	})
}

func (s *Server) handleBoundaries(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(s.data.BoundariesGeoJSON()) //nolint:errcheck // best-effort write to client
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category") // canonical bucket
	raw := r.URL.Query().Get("raw")           // specific raw label

	writeJSON(w, http.StatusOK, map[string]any{
		"points": s.data.HeatmapPoints(category, raw),
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.data.CategoryCatalog())
}

func (s *Server) handleReport(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.data.Result.Report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort write to client
}

// requestLogger logs each request at debug with method, path, and duration.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
