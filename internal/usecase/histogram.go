package usecase

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"go.ngs.io/forecast-prep/internal/adapter/ledger"
	"go.ngs.io/forecast-prep/internal/adapter/notify"
	"go.ngs.io/forecast-prep/internal/adapter/store/catalog"
	"go.ngs.io/forecast-prep/internal/adapter/store/counts"
	"go.ngs.io/forecast-prep/internal/adapter/store/forecast"
	"go.ngs.io/forecast-prep/internal/domain"
)

// HistogramRequest selects one forecast initialization.
type HistogramRequest struct {
	Init  time.Time
	Force bool
}

// HistogramResult lists the counts files of one initialization.
// ExcludedPixels holds, per valid time, the pixels where every member was missing.
type HistogramResult struct {
	Paths          []string
	Skipped        bool
	Members        int
	ExcludedPixels []int
}

// HistogramUseCase bins a forecast ensemble into per-valid-time counts files.
type HistogramUseCase struct {
	forecastDir  string
	countsDir    string
	spec         domain.BinSpec
	accumulation domain.Accumulation
	firstStep    int
	chunkRows    int
	workers      int
	deps         Deps
}

// NewHistogramUseCase creates the histogram stage. chunkRows bounds the latitude rows held
// in memory per read; workers is the number of concurrent binning goroutines.
func NewHistogramUseCase(forecastDir, countsDir string, spec domain.BinSpec, accumulation domain.Accumulation, firstStep, chunkRows, workers int, deps Deps) *HistogramUseCase {
	return &HistogramUseCase{
		forecastDir:  forecastDir,
		countsDir:    countsDir,
		spec:         spec,
		accumulation: accumulation,
		firstStep:    firstStep,
		chunkRows:    max(chunkRows, 1),
		workers:      max(workers, 1),
		deps:         deps.withDefaults(),
	}
}

// Execute writes one counts file per valid time and refreshes the available-dates index.
func (uc *HistogramUseCase) Execute(ctx context.Context, req HistogramRequest) (*HistogramResult, error) {
	init := req.Init.UTC()
	run := beginRun(ctx, uc.deps, StageHistogram, init)

	r, err := forecast.Open(forecast.Path(uc.forecastDir, init))
	if err != nil {
		return nil, run.finish(ctx, ledger.StatusFailed, 0, err)
	}
	defer func() { _ = r.Close() }()

	result := &HistogramResult{
		Members:        r.Members,
		Paths:          make([]string, len(r.ValidTimes)),
		ExcludedPixels: make([]int, len(r.ValidTimes)),
	}
	missing := false
	for vt := range r.ValidTimes {
		result.Paths[vt] = counts.Path(uc.countsDir, init, uc.accumulation.LeadHours(uc.firstStep, vt))
		missing = missing || !fileExists(result.Paths[vt])
	}
	if !req.Force && !missing {
		result.Skipped = true
		run.logger.Info("counts exist, skipping", "files", len(result.Paths))
		return result, run.finish(ctx, ledger.StatusSkipped, 0, nil)
	}

	events := make([]notify.ArtifactReady, 0, len(r.ValidTimes))
	for vt := range r.ValidTimes {
		if err := ctx.Err(); err != nil {
			return nil, run.finish(ctx, ledger.StatusFailed, len(events), err)
		}
		tensor, err := uc.countValidTime(ctx, r, vt)
		if err != nil {
			return nil, run.finish(ctx, ledger.StatusFailed, len(events), fmt.Errorf("valid time %d: %w", vt, err))
		}
		lead := uc.accumulation.LeadHours(uc.firstStep, vt)
		if n := tensor.ExcludedPixels(); n > 0 {
			result.ExcludedPixels[vt] = n
			warn := &domain.OutOfDomainWarning{Field: fmt.Sprintf("precipitation_%dh", lead), Excluded: n, Total: r.Grid.Size()}
			run.logger.Warn("pixels excluded from counts", "lead_hours", lead, "excluded", n, "total", warn.Total)
			run.outOfDomain(ctx, warn)
			uc.deps.Metrics.HistogramPixelsExcluded(n)
		}
		artifact := counts.Artifact{
			Init:      init,
			ValidTime: r.ValidTimes[vt],
			LeadHours: lead,
			Grid:      r.Grid,
			Edges:     uc.spec.PersistedEdges(),
			Counts:    tensor,
		}
		if err := counts.WriteFile(result.Paths[vt], artifact); err != nil {
			return nil, run.finish(ctx, ledger.StatusFailed, len(events), err)
		}
		uc.deps.Metrics.ArtifactWritten(notify.KindCounts)
		run.logger.Info("counts written", "path", result.Paths[vt], "lead_hours", lead)
		events = append(events, notify.ArtifactReady{
			Kind:      notify.KindCounts,
			Path:      result.Paths[vt],
			InitTime:  init,
			LeadHours: lead,
			Members:   r.Members,
		})
	}

	if _, err := catalog.Write(uc.countsDir); err != nil {
		return nil, run.finish(ctx, ledger.StatusFailed, len(events), err)
	}
	if err := uc.deps.Publisher.Publish(ctx, events...); err != nil {
		run.logger.Error("failed to publish artifact events", "count", len(events), "error", err)
	}
	return result, run.finish(ctx, ledger.StatusSucceeded, len(events), nil)
}

// countValidTime streams row bands of one valid time to the workers. Reads stay on one
// goroutine; each worker folds into its own accumulator and the partials are merged.
func (uc *HistogramUseCase) countValidTime(ctx context.Context, r *forecast.Reader, vt int) (domain.CountsTensor, error) {
	nLat, nLon := r.Grid.NLat(), r.Grid.NLon()
	accs := make([]*domain.Accumulator, uc.workers)
	for i := range accs {
		acc, err := domain.NewAccumulator(uc.spec, r.Members, nLat, nLon)
		if err != nil {
			return domain.CountsTensor{}, err
		}
		accs[i] = acc
	}

	chunks := make(chan domain.RowChunk)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(chunks)
		for rr := range domain.RowChunks(nLat, uc.chunkRows) {
			chunk, err := r.ReadRows(vt, rr)
			if err != nil {
				return err
			}
			select {
			case chunks <- chunk:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for _, acc := range accs {
		g.Go(func() error {
			for chunk := range chunks {
				if err := acc.Add(chunk); err != nil {
					return err
				}
				uc.deps.Metrics.HistogramChunkDone()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.CountsTensor{}, err
	}

	for _, acc := range accs[1:] {
		if err := accs[0].Merge(acc); err != nil {
			return domain.CountsTensor{}, err
		}
	}
	return accs[0].Finish(vt)
}
