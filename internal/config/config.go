// Package config loads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.ngs.io/forecast-prep/internal/domain"
)

// Config holds all pipeline and server settings, populated from environment variables.
type Config struct {
	LogLevel        string
	LogFormat       string
	HTTPAddr        string
	ShutdownTimeout time.Duration

	SourceDir   string // Per-member source ensembles.
	OutputDir   string // Regridded mean/std artifacts.
	ForecastDir string // Sampled forecast ensembles.
	CountsDir   string // Histogram counts and the available-dates index.

	Accumulation domain.Accumulation
	FirstStep    int
	ValidTimes   int
	WindowHours  float64

	HistogramChunkRows int
	HistogramWorkers   int

	NormConstantsPath string // Empty selects the embedded defaults.
	ConstantsPath     string
	LedgerPath        string // Empty disables the run ledger.

	KafkaBrokers []string // Empty disables notifications.
	KafkaTopic   string

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	accumulation, err := domain.ParseAccumulation(envOrDefault("ACCUMULATION", string(domain.Accumulation6h)))
	if err != nil {
		return nil, fmt.Errorf("invalid ACCUMULATION: %w", err)
	}
	defaultFirstStep, defaultValidTimes := stepDefaults(accumulation)
	firstStep, err := parseInt("FIRST_STEP", defaultFirstStep, 0)
	if err != nil {
		return nil, err
	}
	validTimes, err := parseInt("VALID_TIMES", defaultValidTimes, 1)
	if err != nil {
		return nil, err
	}
	windowHours, err := parseInt("WINDOW_HOURS", accumulation.Hours(), 1)
	if err != nil {
		return nil, err
	}
	chunkRows, err := parseInt("HISTOGRAM_CHUNK_ROWS", 500, 1)
	if err != nil {
		return nil, err
	}
	workers, err := parseInt("HISTOGRAM_WORKERS", 1, 1)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		ShutdownTimeout: shutdownTimeout,

		SourceDir:   envOrDefault("SOURCE_DIR", "data/ifs"),
		OutputDir:   envOrDefault("OUTPUT_DIR", "data/regridded"),
		ForecastDir: envOrDefault("FORECAST_DIR", "data/forecasts"),
		CountsDir:   envOrDefault("COUNTS_DIR", "data/counts"),

		Accumulation: accumulation,
		FirstStep:    firstStep,
		ValidTimes:   validTimes,
		WindowHours:  float64(windowHours),

		HistogramChunkRows: chunkRows,
		HistogramWorkers:   workers,

		NormConstantsPath: os.Getenv("NORM_CONSTANTS_PATH"),
		ConstantsPath:     envOrDefault("CONSTANTS_PATH", "data/constants.nc"),
		LedgerPath:        os.Getenv("LEDGER_PATH"),

		KafkaBrokers: parseList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "forecast-artifacts"),

		CORSAllowedOrigins: parseList(envOrDefault("CORS_ALLOWED_ORIGINS", "*")),
	}

	switch cfg.LogFormat {
	case "json", "text":
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q: must be json or text", cfg.LogFormat)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return cfg, nil
}

// stepDefaults returns the FIRST_STEP and VALID_TIMES defaults for an
// accumulation. Daily products read the whole 7-day sub-step axis from step 0.
func stepDefaults(a domain.Accumulation) (firstStep, validTimes int) {
	if a == domain.Accumulation24h {
		return 0, 29
	}
	return 5, 5
}

// NotificationsEnabled reports whether artifact events should be published.
func (c *Config) NotificationsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// LedgerEnabled reports whether stage runs should be recorded.
func (c *Config) LedgerEnabled() bool {
	return c.LedgerPath != ""
}

func envOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseInt(key string, fallback, minimum int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s: must be an integer >= %d", key, minimum)
	}
	return n, nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
