// Package main reduces source ensembles and regrids them onto the East Africa grid.
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

	"go.ngs.io/forecast-prep/internal/adapter/store/ifs"
	"go.ngs.io/forecast-prep/internal/app"
	"go.ngs.io/forecast-prep/internal/config"
	"go.ngs.io/forecast-prep/internal/domain"
	"go.ngs.io/forecast-prep/internal/observability"
	"go.ngs.io/forecast-prep/internal/usecase"
)

func main() {
	initFlag := flag.String("init", "", "Initialization time (YYYYMMDDHH, YYYYMMDD or RFC 3339)")
	force := flag.Bool("force", false, "Rewrite the artifact if it already exists")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg, logger, observability.NewMetrics(), clockwork.NewRealClock())
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	uc := usecase.NewRegridUseCase(ifs.NewStore(cfg.SourceDir), cfg.OutputDir, domain.EastAfricaGrid(), cfg.FirstStep, cfg.ValidTimes, rt.Deps())
	result, err := uc.Execute(ctx, usecase.RegridRequest{Init: init, Force: *force})
	if closeErr := rt.Close(); closeErr != nil {
		logger.Error("shutdown error", "error", closeErr)
	}
	if err != nil {
		logger.Error("regrid failed", "init", init, "error", err)
		os.Exit(1)
	}
	logger.Info("regrid complete",
		"path", result.Path,
		"skipped", result.Skipped,
		"out_of_domain_fields", len(result.OutOfDomain),
	)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "USAGE:")
	fmt.Fprintln(os.Stderr, "  regrid -init YYYYMMDDHH [-force]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "FLAGS:")
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "ENVIRONMENT VARIABLES:")
	fmt.Fprintln(os.Stderr, "  SOURCE_DIR      Source ensemble directory (default: data/ifs)")
	fmt.Fprintln(os.Stderr, "  OUTPUT_DIR      Regridded artifact directory (default: data/regridded)")
	fmt.Fprintln(os.Stderr, "  FIRST_STEP      First source sub-step of the 6 hour product (default: 5)")
	fmt.Fprintln(os.Stderr, "  VALID_TIMES     Number of valid times (default: 5)")
	fmt.Fprintln(os.Stderr, "  LEDGER_PATH     SQLite run ledger (optional)")
	fmt.Fprintln(os.Stderr, "  KAFKA_BROKERS   Artifact notification brokers (optional)")
}
