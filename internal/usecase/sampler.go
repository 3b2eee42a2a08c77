package usecase

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"go.ngs.io/forecast-prep/internal/adapter/ledger"
	"go.ngs.io/forecast-prep/internal/adapter/notify"
	"go.ngs.io/forecast-prep/internal/adapter/store/forecast"
	"go.ngs.io/forecast-prep/internal/domain"
)

// Generator is the external generative model. Generate returns one member's
// normalized precipitation for a single valid time, one value per grid point.
type Generator interface {
	Generate(ctx context.Context, input domain.ModelInput, noise Noise) ([]float32, error)
}

// SampleRequest selects one initialization and ensemble size.
type SampleRequest struct {
	Init    time.Time
	Members int
	Force   bool
}

// SampleResult describes the written forecast ensemble.
type SampleResult struct {
	Path    string
	Skipped bool
	Members int
}

// Sampler draws ensemble members from the generator and writes them as a forecast file.
type Sampler struct {
	inputs      *ModelInputUseCase
	generator   Generator
	noise       *NoiseGenerator
	noiseShape  []int
	normalizer  *domain.Normalizer
	forecastDir string
	workers     int
	deps        Deps
}

// NewSampler creates the sampling stage. noiseShape is the per-member latent shape the
// generator expects; workers bounds concurrent member draws.
func NewSampler(inputs *ModelInputUseCase, generator Generator, normalizer *domain.Normalizer, noiseShape []int, forecastDir string, workers int, deps Deps) *Sampler {
	return &Sampler{
		inputs:      inputs,
		generator:   generator,
		noise:       NewNoiseGenerator(),
		noiseShape:  noiseShape,
		normalizer:  normalizer,
		forecastDir: forecastDir,
		workers:     max(workers, 1),
		deps:        deps.withDefaults(),
	}
}

// Execute samples req.Members members of every valid time of one initialization.
func (s *Sampler) Execute(ctx context.Context, req SampleRequest) (*SampleResult, error) {
	init := req.Init.UTC()
	result := &SampleResult{Path: forecast.Path(s.forecastDir, init), Members: req.Members}
	run := beginRun(ctx, s.deps, StageSample, init)

	if !req.Force && fileExists(result.Path) {
		result.Skipped = true
		run.logger.Info("forecast exists, skipping", "path", result.Path)
		return result, run.finish(ctx, ledger.StatusSkipped, 0, nil)
	}
	if req.Members < 1 {
		return nil, run.finish(ctx, ledger.StatusFailed, 0, fmt.Errorf("ensemble size must be positive, got %d", req.Members))
	}

	if err := s.sample(ctx, init, req.Members, result.Path); err != nil {
		_ = os.Remove(result.Path)
		return nil, run.finish(ctx, ledger.StatusFailed, 0, err)
	}

	s.deps.Metrics.ArtifactWritten(notify.KindForecast)
	event := notify.ArtifactReady{Kind: notify.KindForecast, Path: result.Path, InitTime: init, Members: req.Members}
	if err := s.deps.Publisher.Publish(ctx, event); err != nil {
		run.logger.Error("failed to publish artifact event", "path", result.Path, "error", err)
	}
	return result, run.finish(ctx, ledger.StatusSucceeded, 1, nil)
}

func (s *Sampler) sample(ctx context.Context, init time.Time, members int, path string) error {
	inputs, err := s.inputs.Execute(ctx, init)
	if err != nil {
		return err
	}
	grid := s.inputs.grid
	w, err := forecast.NewWriter(path, forecast.Header{
		Init:       init,
		ValidTimes: inputs.ValidTimes,
		Grid:       grid,
		Members:    members,
	})
	if err != nil {
		return err
	}
	precip, err := domain.LookupField("tp")
	if err != nil {
		_ = w.Close()
		return err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for m := 0; m < members; m++ {
		g.Go(func() error {
			values, err := s.member(gctx, precip, inputs, grid.Size())
			if err != nil {
				return fmt.Errorf("member %d: %w", m, err)
			}
			mu.Lock()
			defer mu.Unlock()
			return w.SetMember(m, values)
		})
	}
	if err := g.Wait(); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// member draws one ensemble member across all valid times, in mm/h.
func (s *Sampler) member(ctx context.Context, precip domain.FieldDescriptor, inputs *ModelInputs, size int) ([]float32, error) {
	values := make([]float32, 0, len(inputs.Inputs)*size)
	for vt, in := range inputs.Inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		noise, err := s.noise.Sample(s.noiseShape...)
		if err != nil {
			return nil, err
		}
		out, err := s.generator.Generate(ctx, in, noise)
		if err != nil {
			return nil, fmt.Errorf("valid time %d: %w", vt, err)
		}
		if len(out) != size {
			return nil, &domain.ShapeMismatchError{Field: precip.Name, Axis: "point", Need: size, Have: len(out)}
		}
		for _, v := range out {
			rate, err := s.normalizer.Denormalize(precip, float64(v))
			if err != nil {
				return nil, err
			}
			values = append(values, float32(rate))
		}
	}
	return values, nil
}
