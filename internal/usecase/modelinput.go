package usecase

import (
	"context"
	"fmt"
	"time"

	"go.ngs.io/forecast-prep/internal/adapter/store/regridded"
	"go.ngs.io/forecast-prep/internal/domain"
)

// ConstantChannels supplies static per-point channels on a regional grid.
// *constants.Store implements it.
type ConstantChannels interface {
	Channels(dst domain.RegularGrid) ([][]float32, error)
}

// ModelInputs are the generator inputs of one initialization, one per valid time.
type ModelInputs struct {
	Init       time.Time
	ValidTimes []time.Time
	Inputs     []domain.ModelInput
}

// ModelInputUseCase turns a regridded artifact into normalized model input tensors.
type ModelInputUseCase struct {
	regriddedDir string
	grid         domain.RegularGrid
	normalizer   *domain.Normalizer
	accumulation domain.Accumulation
	firstStep    int
	constants    ConstantChannels
}

// NewModelInputUseCase creates the model input stage. constants may be nil, in which case
// the tensors carry only the field channels.
func NewModelInputUseCase(regriddedDir string, grid domain.RegularGrid, normalizer *domain.Normalizer, accumulation domain.Accumulation, firstStep int, constants ConstantChannels) *ModelInputUseCase {
	return &ModelInputUseCase{
		regriddedDir: regriddedDir,
		grid:         grid,
		normalizer:   normalizer,
		accumulation: accumulation,
		firstStep:    firstStep,
		constants:    constants,
	}
}

// Execute builds one model input per valid time of init.
// 24h products collapse the 6-hourly series into daily blocks first.
func (uc *ModelInputUseCase) Execute(ctx context.Context, init time.Time) (*ModelInputs, error) {
	init = init.UTC()
	path := regridded.Path(uc.regriddedDir, init)
	r, err := regridded.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	if !r.MatchesGrid(uc.grid) {
		return nil, fmt.Errorf("%s: grid does not match the configured regional grid", path)
	}

	series := make([][]domain.FieldPair, len(domain.Fields))
	steps := -1
	for i, f := range domain.Fields {
		rf, err := r.Field(f)
		if err != nil {
			return nil, err
		}
		if series[i], err = uc.window(f, rf.ValidTimes); err != nil {
			return nil, err
		}
		if steps < 0 || len(series[i]) < steps {
			steps = len(series[i])
		}
	}
	if steps <= 0 {
		return nil, &domain.ShapeMismatchError{Field: "all", Axis: "series", Need: 1, Have: 0}
	}

	var extra [][]float32
	if uc.constants != nil {
		if extra, err = uc.constants.Channels(uc.grid); err != nil {
			return nil, err
		}
	}

	out := &ModelInputs{Init: init, ValidTimes: make([]time.Time, steps), Inputs: make([]domain.ModelInput, steps)}
	for vt := 0; vt < steps; vt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		normalized := make([]domain.NormalizedField, len(domain.Fields))
		for i, f := range domain.Fields {
			if normalized[i], err = uc.normalizer.Normalize(f, series[i][vt]); err != nil {
				return nil, err
			}
		}
		in, err := domain.BuildModelInput(normalized)
		if err != nil {
			return nil, err
		}
		if len(extra) > 0 {
			if in, err = in.AppendChannels(extra...); err != nil {
				return nil, err
			}
		}
		out.Inputs[vt] = in
		out.ValidTimes[vt] = uc.validTime(init, r.ValidTimes, vt)
	}
	return out, nil
}

// window returns the series at the product's accumulation.
func (uc *ModelInputUseCase) window(f domain.FieldDescriptor, series []domain.FieldPair) ([]domain.FieldPair, error) {
	if uc.accumulation != domain.Accumulation24h {
		return series, nil
	}
	days := domain.DailyBlocks(f, len(series))
	out := make([]domain.FieldPair, days)
	for d := range out {
		pair, err := domain.CombineDaily(f, series, d)
		if err != nil {
			return nil, err
		}
		out[d] = pair
	}
	return out, nil
}

func (uc *ModelInputUseCase) validTime(init time.Time, stored []time.Time, i int) time.Time {
	if uc.accumulation == domain.Accumulation6h && i < len(stored) {
		return stored[i]
	}
	return uc.accumulation.ValidTime(init, uc.firstStep, i)
}
