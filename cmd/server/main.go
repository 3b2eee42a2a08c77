// Package main provides the read-only pipeline status server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	"go.ngs.io/forecast-prep/internal/app"
	"go.ngs.io/forecast-prep/internal/config"
	httpHandler "go.ngs.io/forecast-prep/internal/http"
	"go.ngs.io/forecast-prep/internal/observability"
)

const version = "0.1.0"

func main() {
	// Parse command-line flags.
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("forecast-prep server version %s\n", version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg, logger, observability.NewMetrics(), clockwork.NewRealClock())
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	// The ledger is optional; without it /v1/runs reports 503 and readiness always passes.
	var runs httpHandler.RunLister
	var ready httpHandler.ReadinessChecker
	if rt.Ledger != nil {
		runs = rt.Ledger
		ready = rt.Ledger
	}
	handler := httpHandler.NewHandler(cfg.CountsDir, runs, ready)
	router := httpHandler.SetupRouter(handler, cfg.CORSAllowedOrigins)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		logger.Info("server listening", "addr", cfg.HTTPAddr, "counts_dir", cfg.CountsDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	if err := rt.Close(); err != nil {
		logger.Error("runtime close error", "error", err)
	}
	logger.Info("shutdown complete")
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("Forecast preparation status server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  server [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  HTTP_ADDR               Listen address (default: :8080)")
	fmt.Println("  COUNTS_DIR              Counts directory holding available_dates.json (default: data/counts)")
	fmt.Println("  LEDGER_PATH             SQLite run ledger (optional, enables /v1/runs)")
	fmt.Println("  CORS_ALLOWED_ORIGINS    Comma-separated list of allowed origins (default: all origins)")
	fmt.Println("  SHUTDOWN_TIMEOUT        Graceful shutdown timeout (default: 10s)")
	fmt.Println("  LOG_LEVEL, LOG_FORMAT   Logging (default: info, json)")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET /healthz                   Liveness")
	fmt.Println("  GET /readyz                    Readiness (pings the run ledger)")
	fmt.Println("  GET /metrics                   Prometheus metrics")
	fmt.Println("  GET /v1/fields                 Forecast field table")
	fmt.Println("  GET /v1/available-dates        Indexed counts files")
	fmt.Println("  GET /v1/runs?limit=N           Recent stage runs")
	fmt.Println()
}
