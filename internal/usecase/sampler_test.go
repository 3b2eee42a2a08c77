package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/forecast-prep/internal/adapter/ledger"
	"go.ngs.io/forecast-prep/internal/adapter/notify"
	"go.ngs.io/forecast-prep/internal/adapter/store/forecast"
	"go.ngs.io/forecast-prep/internal/domain"
)

// constantGenerator returns log10(1 + rate) everywhere and records the noise it was given.
type constantGenerator struct {
	rate float64
	err  error

	mu     sync.Mutex
	calls  int
	shapes [][]int
}

func (g *constantGenerator) Generate(_ context.Context, input domain.ModelInput, noise Noise) ([]float32, error) {
	g.mu.Lock()
	g.calls++
	g.shapes = append(g.shapes, noise.Shape)
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	out := make([]float32, input.Points)
	for i := range out {
		out[i] = float32(math.Log10(1 + g.rate))
	}
	return out, nil
}

func newTestSampler(t *testing.T, env *testEnv, gen Generator, forecastDir string) *Sampler {
	t.Helper()
	normalizer := testNormalizer(t)
	inputs := NewModelInputUseCase(regriddedDir(t), testGrid(), normalizer, domain.Accumulation6h, testFirstStep, nil)
	return NewSampler(inputs, gen, normalizer, []int{3, 4, 2}, forecastDir, 2, env.deps)
}

func TestSampler_Execute(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	gen := &constantGenerator{rate: 2.5}
	s := newTestSampler(t, env, gen, t.TempDir())

	result, err := s.Execute(ctx, SampleRequest{Init: testInit, Members: 4})
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, 4*testValidTimes, gen.calls)
	for _, shape := range gen.shapes {
		assert.Equal(t, []int{3, 4, 2}, shape)
	}

	r, err := forecast.Open(result.Path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	assert.Equal(t, 4, r.Members)
	require.Len(t, r.ValidTimes, testValidTimes)

	grid := testGrid()
	for vt := range r.ValidTimes {
		chunk, err := r.ReadRows(vt, domain.RowRange{Start: 0, End: grid.NLat()})
		require.NoError(t, err)
		require.Len(t, chunk.Values, 4*grid.Size())
		for _, v := range chunk.Values {
			assert.InDelta(t, 2.5, v, 1e-4)
		}
	}

	events := env.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.KindForecast, events[0].Kind)
	assert.Equal(t, 4, events[0].Members)

	again, err := s.Execute(ctx, SampleRequest{Init: testInit, Members: 4})
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, 4*testValidTimes, gen.calls, "skipped run must not call the generator")
}

func TestSampler_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("generator failure", func(t *testing.T) {
		env := newTestEnv(t)
		s := newTestSampler(t, env, &constantGenerator{err: errors.New("model offline")}, t.TempDir())
		_, err := s.Execute(ctx, SampleRequest{Init: testInit, Members: 2})
		assert.ErrorContains(t, err, "model offline")
		assert.False(t, fileExists(forecast.Path(s.forecastDir, testInit)))

		runs, err := env.ledger.Recent(ctx, 1)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, ledger.StatusFailed, runs[0].Status)
	})

	t.Run("no members", func(t *testing.T) {
		env := newTestEnv(t)
		s := newTestSampler(t, env, &constantGenerator{}, t.TempDir())
		_, err := s.Execute(ctx, SampleRequest{Init: testInit, Members: 0})
		assert.Error(t, err)
	})

	t.Run("bad noise shape", func(t *testing.T) {
		env := newTestEnv(t)
		s := newTestSampler(t, env, &constantGenerator{}, t.TempDir())
		s.noiseShape = []int{3, 0}
		_, err := s.Execute(ctx, SampleRequest{Init: testInit, Members: 1})
		assert.ErrorContains(t, err, "noise")
	})
}

func TestNoiseGenerator_Sample(t *testing.T) {
	g := NewNoiseGenerator()

	noise, err := g.Sample(50, 40, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{50, 40, 10}, noise.Shape)
	require.Len(t, noise.Data, 20000)

	var sum, sumSq float64
	for _, v := range noise.Data {
		sum += float64(v)
		sumSq += float64(v) * float64(v)
	}
	n := float64(len(noise.Data))
	mean := sum / n
	// Loose bounds: many standard errors wide for 20000 samples.
	assert.InDelta(t, 0, mean, 0.05)
	assert.InDelta(t, 1, math.Sqrt(sumSq/n-mean*mean), 0.05)

	_, err = g.Sample()
	assert.Error(t, err)
	_, err = g.Sample(4, -1)
	assert.Error(t, err)
}
