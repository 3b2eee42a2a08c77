// Package usecase orchestrates the pipeline stages over the stores.
package usecase

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"go.ngs.io/forecast-prep/internal/adapter/ledger"
	"go.ngs.io/forecast-prep/internal/adapter/notify"
	"go.ngs.io/forecast-prep/internal/domain"
	"go.ngs.io/forecast-prep/internal/observability"
)

// Stage names recorded in the ledger and metrics.
const (
	StageRegrid    = "regrid"
	StageSample    = "sample"
	StageHistogram = "histogram"
)

// RunLedger records stage runs. *ledger.Ledger implements it.
type RunLedger interface {
	Start(ctx context.Context, stage string, init time.Time) (int64, error)
	Finish(ctx context.Context, id int64, status ledger.Status, artifacts int, runErr error) error
	RecordOutOfDomain(ctx context.Context, id int64, o ledger.OutOfDomain) error
}

// Deps are the collaborators shared by every use case.
// Ledger and Publisher may be nil.
type Deps struct {
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Ledger    RunLedger
	Publisher notify.Publisher
	Clock     clockwork.Clock
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Metrics == nil {
		d.Metrics = observability.NewMetricsForTesting()
	}
	if d.Ledger == nil {
		d.Ledger = nopLedger{}
	}
	if d.Publisher == nil {
		d.Publisher = notify.Nop{}
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	return d
}

type nopLedger struct{}

func (nopLedger) Start(context.Context, string, time.Time) (int64, error) { return 0, nil }
func (nopLedger) Finish(context.Context, int64, ledger.Status, int, error) error {
	return nil
}
func (nopLedger) RecordOutOfDomain(context.Context, int64, ledger.OutOfDomain) error { return nil }

// stageRun is one ledger entry plus its timing.
type stageRun struct {
	deps    Deps
	stage   string
	id      int64
	started time.Time
	logger  *slog.Logger
}

// beginRun opens a ledger entry. Ledger failures are logged, never fatal to the stage.
func beginRun(ctx context.Context, deps Deps, stage string, init time.Time) *stageRun {
	r := &stageRun{
		deps:    deps,
		stage:   stage,
		started: deps.Clock.Now(),
		logger:  deps.Logger.With("stage", stage, "init", init.Format(time.RFC3339)),
	}
	id, err := deps.Ledger.Start(ctx, stage, init)
	if err != nil {
		r.logger.Error("failed to record run start", "error", err)
	}
	r.id = id
	r.logger.Info("stage started")
	return r
}

// outOfDomain records a non-fatal interpolation warning against the run.
func (r *stageRun) outOfDomain(ctx context.Context, w *domain.OutOfDomainWarning) {
	if err := r.deps.Ledger.RecordOutOfDomain(ctx, r.id, ledger.OutOfDomain{Field: w.Field, Excluded: w.Excluded, Total: w.Total}); err != nil {
		r.logger.Error("failed to record out-of-domain summary", "field", w.Field, "error", err)
	}
}

// finish closes the ledger entry with the outcome of runErr and returns runErr.
func (r *stageRun) finish(ctx context.Context, status ledger.Status, artifacts int, runErr error) error {
	if runErr != nil {
		status = ledger.StatusFailed
	}
	elapsed := r.deps.Clock.Since(r.started)
	r.deps.Metrics.ObserveStage(r.stage, string(status), elapsed)
	// The run outcome is recorded even when the caller's context is done.
	if err := r.deps.Ledger.Finish(context.WithoutCancel(ctx), r.id, status, artifacts, runErr); err != nil {
		r.logger.Error("failed to record run finish", "error", err)
	}
	if runErr != nil {
		r.logger.Error("stage failed", "error", runErr, "elapsed", elapsed)
	} else {
		r.logger.Info("stage finished", "status", status, "artifacts", artifacts, "elapsed", elapsed)
	}
	return runErr
}

// fileExists reports whether path names an existing file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
