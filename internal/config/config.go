package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all pipeline and dashboard settings, populated from
// environment variables.
type Config struct {
	IncidentsPath  string
	BoundariesPath string

	// Boundary layer attribute names; defaults match the LA County
	// legal-boundaries export.
	BoundaryIDField   string
	BoundaryNameField string
	BoundaryTypeField string

	// CategoryMappingPath overrides the embedded taxonomy when set.
	CategoryMappingPath string

	JoinToleranceMeters float64
	CityEditDistance    int
	TimeBucket          string
	JoinWorkers         int

	OutputDir string

	HTTPAddr        string
	ServeDashboard  bool
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset. Input paths are required; everything else defaults.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	tolerance, err := parseFloat("JOIN_TOLERANCE_METERS", 150)
	if err != nil {
		return nil, err
	}
	editDistance, err := parseInt("CITY_EDIT_DISTANCE", 2)
	if err != nil {
		return nil, err
	}
	workers, err := parseInt("JOIN_WORKERS", 4)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		IncidentsPath:  os.Getenv("INCIDENTS_PATH"),
		BoundariesPath: os.Getenv("BOUNDARIES_PATH"),

		BoundaryIDField:   envOrDefault("BOUNDARY_ID_FIELD", "OBJECTID"),
		BoundaryNameField: envOrDefault("BOUNDARY_NAME_FIELD", "CITY_NAME"),
		BoundaryTypeField: envOrDefault("BOUNDARY_TYPE_FIELD", "CITY_TYPE"),

		CategoryMappingPath: os.Getenv("CATEGORY_MAPPING_PATH"),

		JoinToleranceMeters: tolerance,
		CityEditDistance:    editDistance,
		TimeBucket:          envOrDefault("TIME_BUCKET", "month"),
		JoinWorkers:         workers,

		OutputDir: envOrDefault("OUTPUT_DIR", "out"),

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		ServeDashboard:  envOrDefault("SERVE_DASHBOARD", "true") == "true",
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.IncidentsPath == "" {
		return nil, errors.New("INCIDENTS_PATH is required")
	}
	if cfg.BoundariesPath == "" {
		return nil, errors.New("BOUNDARIES_PATH is required")
	}
	if cfg.JoinToleranceMeters < 0 {
		return nil, errors.New("JOIN_TOLERANCE_METERS must not be negative")
	}
	if cfg.CityEditDistance < 0 {
		return nil, errors.New("CITY_EDIT_DISTANCE must not be negative")
	}
	if cfg.JoinWorkers < 1 {
		return nil, errors.New("JOIN_WORKERS must be at least 1")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	s := envOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}
