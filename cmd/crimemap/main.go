// Command crimemap runs the county crime reconciliation pipeline: it loads
// the incident extract and the boundary layer, normalizes and joins every
// record, writes the aggregation table and reconciliation report to the
// output directory, and optionally serves the map dashboard.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/openpolicy-la/crimemap/internal/adapter/httpserver"
	"github.com/openpolicy-la/crimemap/internal/aggregate"
	"github.com/openpolicy-la/crimemap/internal/config"
	"github.com/openpolicy-la/crimemap/internal/domain"
	"github.com/openpolicy-la/crimemap/internal/ingest"
	"github.com/openpolicy-la/crimemap/internal/observability"
	"github.com/openpolicy-la/crimemap/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	granularity, err := aggregate.ParseGranularity(cfg.TimeBucket)
	if err != nil {
		return err
	}

	mapping, err := domain.LoadCategoryMapping(cfg.CategoryMappingPath)
	if err != nil {
		return fmt.Errorf("load category mapping: %w", err)
	}

	boundaries, err := ingest.ReadBoundariesFile(cfg.BoundariesPath, ingest.BoundaryFields{
		ID:   cfg.BoundaryIDField,
		Name: cfg.BoundaryNameField,
		Type: cfg.BoundaryTypeField,
	})
	if err != nil {
		return fmt.Errorf("load boundaries: %w", err)
	}
	logger.Info("boundary layer loaded", "path", cfg.BoundariesPath, "boundaries", len(boundaries))

	rows, err := ingest.ReadIncidentsFile(cfg.IncidentsPath)
	if err != nil {
		return fmt.Errorf("load incidents: %w", err)
	}
	logger.Info("incident extract loaded", "path", cfg.IncidentsPath, "rows", len(rows))

	p := pipeline.New(pipeline.Options{
		Mapping:         mapping,
		ToleranceMeters: cfg.JoinToleranceMeters,
		EditDistance:    cfg.CityEditDistance,
		Granularity:     granularity,
		Workers:         cfg.JoinWorkers,
	}, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := p.Run(ctx, pipeline.Inputs{Incidents: rows, Boundaries: boundaries})
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	if err := writeArtifacts(cfg.OutputDir, result); err != nil {
		return err
	}
	logger.Info("artifacts written", "dir", cfg.OutputDir)

	if !cfg.ServeDashboard {
		return nil
	}

	data, err := httpserver.NewData(result, boundaries, mapping)
	if err != nil {
		return err
	}
	srv := httpserver.NewServer(cfg.HTTPAddr, p, data, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// writeArtifacts persists the aggregation table and the reconciliation
// report as JSON files for downstream consumers.
func writeArtifacts(dir string, result *pipeline.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := writeJSONFile(filepath.Join(dir, "aggregation.json"), result.Table); err != nil {
		return err
	}
	return writeJSONFile(filepath.Join(dir, "report.json"), result.Report)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
