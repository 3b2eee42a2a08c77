package usecase

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/forecast-prep/internal/adapter/ledger"
	"go.ngs.io/forecast-prep/internal/adapter/notify"
	"go.ngs.io/forecast-prep/internal/adapter/store/ifs"
	"go.ngs.io/forecast-prep/internal/adapter/store/regridded"
	"go.ngs.io/forecast-prep/internal/domain"
)

func newTestRegrid(t *testing.T, env *testEnv) (*RegridUseCase, string) {
	t.Helper()
	srcDir, outDir := t.TempDir(), t.TempDir()
	writeSources(t, srcDir)
	return NewRegridUseCase(ifs.NewStore(srcDir), outDir, testGrid(), testFirstStep, testValidTimes, env.deps), outDir
}

func TestRegrid_Execute(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	uc, outDir := newTestRegrid(t, env)

	result, err := uc.Execute(ctx, RegridRequest{Init: testInit})
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, filepath.Join(outDir, "IFS_20240305_00Z.nc"), result.Path)

	require.Len(t, result.OutOfDomain, 1)
	assert.Equal(t, domain.OutOfDomainWarning{Field: "cape", Excluded: 6, Total: 12}, *result.OutOfDomain[0])

	r, err := regridded.Open(result.Path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	assert.True(t, r.MatchesGrid(testGrid()))
	require.Len(t, r.ValidTimes, testValidTimes)
	assert.Equal(t, testInit.Add(12*time.Hour), r.ValidTimes[1])

	grid := testGrid()
	t.Run("instantaneous", func(t *testing.T) {
		t2m, err := domain.LookupField("t2m")
		require.NoError(t, err)
		rf, err := r.Field(t2m)
		require.NoError(t, err)
		for vt, pair := range rf.ValidTimes {
			for i, lat := range grid.Lat {
				for j, lon := range grid.Lon {
					p := grid.Index(i, j)
					want := 2*lon + 3*lat + 1 + 0.5*float64(testFirstStep+vt)
					assert.InDelta(t, want, pair.Mean[p], 1e-3, "vt=%d p=%d", vt, p)
					assert.InDelta(t, 1.0, pair.Std[p], 1e-4, "vt=%d p=%d", vt, p)
				}
			}
		}
	})

	t.Run("accumulated", func(t *testing.T) {
		tp, err := domain.LookupField("tp")
		require.NoError(t, err)
		rf, err := r.Field(tp)
		require.NoError(t, err)
		for vt, pair := range rf.ValidTimes {
			wantMean, wantStd := 2*testRate, testRate
			if vt == testValidTimes-1 {
				wantMean, wantStd = 0, 0
			}
			for p := range pair.Mean {
				assert.InDelta(t, wantMean, pair.Mean[p], 1e-6)
				assert.InDelta(t, wantStd, pair.Std[p], 1e-6)
			}
		}
	})

	t.Run("out of domain", func(t *testing.T) {
		cape, err := domain.LookupField("cape")
		require.NoError(t, err)
		rf, err := r.Field(cape)
		require.NoError(t, err)
		mean := rf.ValidTimes[0].Mean
		for i := range grid.Lat {
			for j, lon := range grid.Lon {
				v := mean[grid.Index(i, j)]
				if lon > 30.15 {
					assert.True(t, math.IsNaN(v), "lon %.1f should be NaN", lon)
				} else {
					assert.False(t, math.IsNaN(v), "lon %.1f should be inside", lon)
				}
			}
		}
	})

	// Surface and pressure fields share one point set.
	assert.InDelta(t, 1.0, testutil.ToFloat64(env.metrics.TriangulationCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 2.0, testutil.ToFloat64(env.metrics.TriangulationCache.WithLabelValues("miss")), 0)
	assert.InDelta(t, 6.0, testutil.ToFloat64(env.metrics.OutOfDomainPoints.WithLabelValues("cape")), 0)

	events := env.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.KindRegridded, events[0].Kind)
	assert.Equal(t, result.Path, events[0].Path)

	runs, err := env.ledger.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ledger.StatusSucceeded, runs[0].Status)
	assert.Equal(t, StageRegrid, runs[0].Stage)
	assert.Equal(t, []ledger.OutOfDomain{{Field: "cape", Excluded: 6, Total: 12}}, runs[0].OutOfDomain)
}

func TestRegrid_SkipsExistingUnlessForced(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	uc, _ := newTestRegrid(t, env)

	_, err := uc.Execute(ctx, RegridRequest{Init: testInit})
	require.NoError(t, err)

	again, err := uc.Execute(ctx, RegridRequest{Init: testInit})
	require.NoError(t, err)
	assert.True(t, again.Skipped)

	forced, err := uc.Execute(ctx, RegridRequest{Init: testInit, Force: true})
	require.NoError(t, err)
	assert.False(t, forced.Skipped)

	runs, err := env.ledger.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	statuses := []ledger.Status{runs[0].Status, runs[1].Status, runs[2].Status}
	assert.ElementsMatch(t, []ledger.Status{ledger.StatusSucceeded, ledger.StatusSkipped, ledger.StatusSucceeded}, statuses)
	assert.Len(t, env.publisher.Events(), 2)
}

func TestRegrid_MissingSource(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	uc := NewRegridUseCase(ifs.NewStore(t.TempDir()), t.TempDir(), testGrid(), testFirstStep, testValidTimes, env.deps)

	_, err := uc.Execute(ctx, RegridRequest{Init: testInit})
	require.Error(t, err)
	assert.False(t, fileExists(uc.OutputPath(testInit)))

	runs, err := env.ledger.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ledger.StatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

func TestRegrid_ShortStepAxisRemovesPartialFile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	srcDir, outDir := t.TempDir(), t.TempDir()
	writeSources(t, srcDir)
	// Four valid times from sub-step 1 need five sub-steps; the fixture has four.
	uc := NewRegridUseCase(ifs.NewStore(srcDir), outDir, testGrid(), testFirstStep, testValidTimes+1, env.deps)

	_, err := uc.Execute(ctx, RegridRequest{Init: testInit})
	var shape *domain.ShapeMismatchError
	require.ErrorAs(t, err, &shape)
	assert.Equal(t, "step", shape.Axis)
	assert.False(t, fileExists(uc.OutputPath(testInit)))
}
