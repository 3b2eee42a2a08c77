// Package main draws ensemble members from regridded inputs with the baseline spread generator.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"

	"go.ngs.io/forecast-prep/internal/adapter/store/constants"
	"go.ngs.io/forecast-prep/internal/app"
	"go.ngs.io/forecast-prep/internal/config"
	"go.ngs.io/forecast-prep/internal/domain"
	"go.ngs.io/forecast-prep/internal/observability"
	"go.ngs.io/forecast-prep/internal/usecase"
)

func main() {
	initFlag := flag.String("init", "", "Initialization time (YYYYMMDDHH, YYYYMMDD or RFC 3339)")
	members := flag.Int("members", 50, "Ensemble members to draw")
	noiseShape := flag.String("noise-shape", "128,160,4", "Comma-separated per-member noise shape")
	workers := flag.Int("workers", 4, "Members drawn concurrently")
	withConstants := flag.Bool("constants", true, "Append the static terrain channels from CONSTANTS_PATH")
	force := flag.Bool("force", false, "Rewrite the forecast if it already exists")
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
	shape, err := parseShape(*noiseShape)
	if err != nil {
		logger.Error("invalid -noise-shape", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg, logger, observability.NewMetrics(), clockwork.NewRealClock())
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	normalizer, err := rt.Normalizer()
	if err != nil {
		logger.Error("failed to load normalization constants", "error", err)
		_ = rt.Close()
		os.Exit(1)
	}

	var static usecase.ConstantChannels
	if *withConstants {
		static = constants.NewStore(cfg.ConstantsPath)
	}
	inputs := usecase.NewModelInputUseCase(cfg.OutputDir, domain.EastAfricaGrid(), normalizer, cfg.Accumulation, cfg.FirstStep, static)
	sampler := usecase.NewSampler(inputs, usecase.NewSpreadGenerator(), normalizer, shape, cfg.ForecastDir, *workers, rt.Deps())

	result, err := sampler.Execute(ctx, usecase.SampleRequest{Init: init, Members: *members, Force: *force})
	if closeErr := rt.Close(); closeErr != nil {
		logger.Error("shutdown error", "error", closeErr)
	}
	if err != nil {
		logger.Error("sampling failed", "init", init, "error", err)
		os.Exit(1)
	}
	logger.Info("sampling complete", "path", result.Path, "skipped", result.Skipped, "members", result.Members)
}

func parseShape(s string) ([]int, error) {
	var shape []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("dimension %q must be a positive integer", part)
		}
		shape = append(shape, n)
	}
	return shape, nil
}
