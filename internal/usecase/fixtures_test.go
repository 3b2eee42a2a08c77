package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"go.ngs.io/forecast-prep/internal/adapter/ledger"
	"go.ngs.io/forecast-prep/internal/adapter/notify"
	"go.ngs.io/forecast-prep/internal/adapter/store/ifs"
	"go.ngs.io/forecast-prep/internal/domain"
	"go.ngs.io/forecast-prep/internal/observability"
)

var testInit = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

const (
	testMembers    = 3
	testFirstStep  = 1
	testValidTimes = 3
	// Per-member accumulation rate in metres per sub-step; member m accumulates (m+1) times this.
	testRate = 0.003
)

var testSteps = []float64{0, 6, 12, 18}

// testGrid is 3 x 4 points at 0.1 degree spacing.
func testGrid() domain.RegularGrid {
	return domain.NewRegularGrid(0, 30, 3, 4, 0.1)
}

// lattice returns a rectangular source point set.
func lattice(g domain.LevelGroup, lons, lats []float64) domain.SourceGrid {
	src := domain.SourceGrid{Group: g}
	for _, y := range lats {
		for _, x := range lons {
			src.Lon = append(src.Lon, x)
			src.Lat = append(src.Lat, y)
		}
	}
	return src
}

// fullSource covers the whole test grid.
func fullSource(g domain.LevelGroup) domain.SourceGrid {
	return lattice(g, []float64{29.5, 29.9, 30.2, 30.6}, []float64{-0.5, -0.1, 0.3, 0.7})
}

// partialSource ends between longitudes 30.1 and 30.2 of the test grid.
func partialSource(g domain.LevelGroup) domain.SourceGrid {
	return lattice(g, []float64{29.5, 29.8, 30.0, 30.15}, []float64{-0.5, -0.1, 0.3, 0.7})
}

// instantaneousValue is linear in space, so interpolation reproduces it exactly.
// Member m is offset by m: three members sit 1 above the plane on average with std 1.
func instantaneousValue(lon, lat float64, m, step int) float32 {
	return float32(2*lon + 3*lat + float64(m) + 0.5*float64(step))
}

// cumulativeValue grows by (m+1)*testRate every sub-step.
func cumulativeValue(m, step int) float32 {
	return float32(float64(step) * float64(m+1) * testRate)
}

func writeSource(t *testing.T, dir string, g domain.LevelGroup, src domain.SourceGrid) {
	t.Helper()
	fields := domain.FieldsInGroup(g)
	snaps := make([]domain.EnsembleSnapshot, len(fields))
	for i, f := range fields {
		snap := domain.NewEnsembleSnapshot(f.Name, testMembers, len(testSteps), src.Len())
		for m := 0; m < testMembers; m++ {
			for s := range testSteps {
				for p := 0; p < src.Len(); p++ {
					v := instantaneousValue(src.Lon[p], src.Lat[p], m, s)
					if f.IsAccumulated() {
						v = cumulativeValue(m, s)
					}
					snap.Set(m, s, p, v)
				}
			}
		}
		snaps[i] = snap
	}
	path := ifs.NewStore(dir).Path(testInit, g)
	require.NoError(t, ifs.WriteFile(path, ifs.Source{
		Init:      testInit,
		Grid:      src,
		Steps:     testSteps,
		Snapshots: snaps,
		Fields:    fields,
	}))
}

// writeSources writes all three level groups. The convective group only partly covers the grid.
func writeSources(t *testing.T, dir string) {
	t.Helper()
	writeSource(t, dir, domain.LevelSurface, fullSource(domain.LevelSurface))
	writeSource(t, dir, domain.LevelPressure, fullSource(domain.LevelPressure))
	writeSource(t, dir, domain.LevelConvective, partialSource(domain.LevelConvective))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.ArtifactReady
}

func (p *recordingPublisher) Publish(_ context.Context, events ...notify.ArtifactReady) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []notify.ArtifactReady {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.ArtifactReady(nil), p.events...)
}

type testEnv struct {
	deps      Deps
	ledger    *ledger.Ledger
	publisher *recordingPublisher
	metrics   *observability.Metrics
	clock     *clockwork.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC))
	l, err := ledger.Open(context.Background(), ":memory:", clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	env := &testEnv{
		ledger:    l,
		publisher: &recordingPublisher{},
		metrics:   observability.NewMetricsForTesting(),
		clock:     clock,
	}
	env.deps = Deps{
		Metrics:   env.metrics,
		Ledger:    l,
		Publisher: env.publisher,
		Clock:     clock,
	}
	return env
}
