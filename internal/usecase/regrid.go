package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.ngs.io/forecast-prep/internal/adapter/interp"
	"go.ngs.io/forecast-prep/internal/adapter/ledger"
	"go.ngs.io/forecast-prep/internal/adapter/notify"
	"go.ngs.io/forecast-prep/internal/adapter/store/ifs"
	"go.ngs.io/forecast-prep/internal/adapter/store/regridded"
	"go.ngs.io/forecast-prep/internal/domain"
)

// levelGroups is the order source datasets are read in.
var levelGroups = []domain.LevelGroup{domain.LevelSurface, domain.LevelPressure, domain.LevelConvective}

// RegridRequest selects one initialization.
type RegridRequest struct {
	Init  time.Time
	Force bool // Rewrite an existing artifact.
}

// RegridResult describes the written artifact.
type RegridResult struct {
	Path        string
	Skipped     bool
	OutOfDomain []*domain.OutOfDomainWarning
}

// RegridUseCase reduces source ensembles and interpolates them onto the regional grid.
type RegridUseCase struct {
	source     *ifs.Store
	outputDir  string
	grid       domain.RegularGrid
	reducer    domain.Reducer
	firstStep  int
	validTimes int
	deps       Deps
}

// NewRegridUseCase creates a regrid stage reading from source and writing under outputDir.
func NewRegridUseCase(source *ifs.Store, outputDir string, grid domain.RegularGrid, firstStep, validTimes int, deps Deps) *RegridUseCase {
	return &RegridUseCase{
		source:     source,
		outputDir:  outputDir,
		grid:       grid,
		reducer:    domain.NewReducer(firstStep, validTimes),
		firstStep:  firstStep,
		validTimes: validTimes,
		deps:       deps.withDefaults(),
	}
}

// OutputPath returns where the artifact of init is written.
func (uc *RegridUseCase) OutputPath(init time.Time) string {
	return regridded.Path(uc.outputDir, init)
}

// Execute regrids every field of one initialization into a single artifact.
func (uc *RegridUseCase) Execute(ctx context.Context, req RegridRequest) (*RegridResult, error) {
	init := req.Init.UTC()
	result := &RegridResult{Path: uc.OutputPath(init)}
	run := beginRun(ctx, uc.deps, StageRegrid, init)

	if !req.Force && fileExists(result.Path) {
		result.Skipped = true
		run.logger.Info("artifact exists, skipping", "path", result.Path)
		return result, run.finish(ctx, ledger.StatusSkipped, 0, nil)
	}
	if !uc.source.Exists(init) {
		return nil, run.finish(ctx, ledger.StatusFailed, 0, fmt.Errorf("source datasets for %s not found", init.Format(time.RFC3339)))
	}
	if err := uc.grid.Validate(); err != nil {
		return nil, run.finish(ctx, ledger.StatusFailed, 0, err)
	}

	warnings, err := uc.regrid(ctx, run, init, result.Path)
	if err != nil {
		// A partial artifact must not satisfy the next existence check.
		_ = os.Remove(result.Path)
		return nil, run.finish(ctx, ledger.StatusFailed, 0, err)
	}
	result.OutOfDomain = warnings

	uc.deps.Metrics.ArtifactWritten(notify.KindRegridded)
	event := notify.ArtifactReady{Kind: notify.KindRegridded, Path: result.Path, InitTime: init}
	if err := uc.deps.Publisher.Publish(ctx, event); err != nil {
		run.logger.Error("failed to publish artifact event", "path", result.Path, "error", err)
	}
	return result, run.finish(ctx, ledger.StatusSucceeded, 1, nil)
}

func (uc *RegridUseCase) regrid(ctx context.Context, run *stageRun, init time.Time, path string) ([]*domain.OutOfDomainWarning, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	validTimes := make([]time.Time, uc.validTimes)
	for i := range validTimes {
		validTimes[i] = domain.Accumulation6h.ValidTime(init, uc.firstStep, i)
	}
	w, err := regridded.Create(path, regridded.Header{Init: init, ValidTimes: validTimes, Grid: uc.grid}, domain.Fields)
	if err != nil {
		return nil, err
	}

	// The triangulation cache lives for this run only.
	cache := interp.NewCache(uc.deps.Metrics)
	var warnings []*domain.OutOfDomainWarning
	for _, g := range levelGroups {
		if err := ctx.Err(); err != nil {
			_ = w.Close()
			return nil, err
		}
		ws, err := uc.regridGroup(ctx, run, cache, init, g, w)
		warnings = append(warnings, ws...)
		if err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return warnings, nil
}

// regridGroup processes every field of one source dataset against a single set of weights.
func (uc *RegridUseCase) regridGroup(ctx context.Context, run *stageRun, cache *interp.Cache, init time.Time, g domain.LevelGroup, w *regridded.Writer) ([]*domain.OutOfDomainWarning, error) {
	ds, err := uc.source.Open(init, g)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ds.Close() }()

	if !ds.Init.Equal(init) {
		run.logger.Warn("source initialization time differs from file name",
			"group", g.String(), "file_init", ds.Init.Format(time.RFC3339))
	}

	weights, err := cache.Weights(ds.Grid, uc.grid)
	if err != nil {
		return nil, fmt.Errorf("%s grid: %w", g, err)
	}

	var warnings []*domain.OutOfDomainWarning
	for _, f := range domain.FieldsInGroup(g) {
		rf, warn, err := uc.regridField(ds, weights, f)
		if err != nil {
			return warnings, fmt.Errorf("field %s: %w", f.Name, err)
		}
		if err := w.WriteField(rf); err != nil {
			return warnings, err
		}
		if warn != nil {
			run.logger.Warn("destination points outside source domain",
				"field", warn.Field, "excluded", warn.Excluded, "total", warn.Total)
			run.outOfDomain(ctx, warn)
			warnings = append(warnings, warn)
		}
		uc.deps.Metrics.FieldRegridded(f.Name, weights.Outside)
		run.logger.Debug("field regridded", "field", f.Name, "group", g.String())
	}
	return warnings, nil
}

// regridField reduces on the source points, then interpolates the mean and std separately.
// The returned warning is non-nil when part of the grid lies outside the source hull.
func (uc *RegridUseCase) regridField(ds *ifs.Dataset, weights interp.Weights, f domain.FieldDescriptor) (domain.ReducedField, *domain.OutOfDomainWarning, error) {
	snap, err := ds.Snapshot(f)
	if err != nil {
		return domain.ReducedField{}, nil, err
	}
	series, err := uc.reducer.ReduceAll(f, snap)
	if err != nil {
		return domain.ReducedField{}, nil, err
	}
	rf := domain.ReducedField{Field: f, Grid: uc.grid, ValidTimes: make([]domain.FieldPair, len(series))}
	for vt, pair := range series {
		if rf.ValidTimes[vt], err = weights.InterpolatePair(pair); err != nil {
			return domain.ReducedField{}, nil, err
		}
	}
	var warn *domain.OutOfDomainWarning
	if weights.Outside > 0 {
		warn = &domain.OutOfDomainWarning{Field: f.Name, Excluded: weights.Outside, Total: weights.Len()}
	}
	return rf, warn, nil
}
