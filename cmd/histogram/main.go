// Package main bins sampled ensemble forecasts into per-pixel counts files.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"go.ngs.io/forecast-prep/internal/app"
	"go.ngs.io/forecast-prep/internal/config"
	"go.ngs.io/forecast-prep/internal/domain"
	"go.ngs.io/forecast-prep/internal/observability"
	"go.ngs.io/forecast-prep/internal/usecase"
)

func main() {
	initFlag := flag.String("init", "", "Initialization time (YYYYMMDDHH, YYYYMMDD or RFC 3339)")
	force := flag.Bool("force", false, "Rewrite counts files that already exist")
	flag.Usage = printUsage
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)

	init, err := app.ParseInit(*initFlag)
	if err != nil {
		logger.Error("invalid -init", "error", err)
		os.Exit(2)
	}
	spec, err := domain.NewBinSpec(domain.DefaultBinEdges6h)
	if err != nil {
		logger.Error("invalid bin edges", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg, logger, observability.NewMetrics(), clockwork.NewRealClock())
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	uc := usecase.NewHistogramUseCase(cfg.ForecastDir, cfg.CountsDir, spec, cfg.Accumulation, cfg.FirstStep,
		cfg.HistogramChunkRows, cfg.HistogramWorkers, rt.Deps())
	result, err := uc.Execute(ctx, usecase.HistogramRequest{Init: init, Force: *force})
	if closeErr := rt.Close(); closeErr != nil {
		logger.Error("shutdown error", "error", closeErr)
	}
	if err != nil {
		logger.Error("histogram failed", "init", init, "error", err)
		os.Exit(1)
	}
	excluded := 0
	for _, n := range result.ExcludedPixels {
		excluded += n
	}
	logger.Info("histogram complete", "files", len(result.Paths), "skipped", result.Skipped, "members", result.Members, "excluded_pixels", excluded)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "USAGE:")
	fmt.Fprintln(os.Stderr, "  histogram -init YYYYMMDDHH [-force]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "FLAGS:")
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "ENVIRONMENT VARIABLES:")
	fmt.Fprintln(os.Stderr, "  FORECAST_DIR           Sampled forecast directory (default: data/forecasts)")
	fmt.Fprintln(os.Stderr, "  COUNTS_DIR             Counts output directory (default: data/counts)")
	fmt.Fprintln(os.Stderr, "  ACCUMULATION           6h or 24h (default: 6h)")
	fmt.Fprintln(os.Stderr, "  HISTOGRAM_CHUNK_ROWS   Latitude rows per chunk (default: 500)")
	fmt.Fprintln(os.Stderr, "  HISTOGRAM_WORKERS      Parallel chunk workers (default: 1)")
}
