// Package main writes synthetic source ensembles for smoke runs of the pipeline.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"go.ngs.io/forecast-prep/internal/adapter/store/ifs"
	"go.ngs.io/forecast-prep/internal/app"
	"go.ngs.io/forecast-prep/internal/config"
	"go.ngs.io/forecast-prep/internal/domain"
	"go.ngs.io/forecast-prep/internal/observability"
)

// Region bounds the jittered source lattice.
type Region struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
	Spacing        float64 // degrees
}

// fieldClimate is the synthetic climatology of one field in source units.
type fieldClimate struct {
	base, amplitude, spread float64
	// ratePerStep is the mean accumulation per 6 hour step of accumulated fields.
	ratePerStep float64
}

var climates = map[string]fieldClimate{
	"cape": {base: 600, amplitude: 500, spread: 200},
	"cp":   {ratePerStep: 0.0015},
	"mcc":  {base: 0.4, amplitude: 0.3, spread: 0.1},
	"sp":   {base: 92000, amplitude: 6000, spread: 150},
	"ssr":  {ratePerStep: 6 * 3600 * 350},
	"t2m":  {base: 296, amplitude: 6, spread: 0.8},
	"tciw": {base: 0.05, amplitude: 0.04, spread: 0.02},
	"tclw": {base: 0.12, amplitude: 0.1, spread: 0.04},
	"tcrw": {base: 0.04, amplitude: 0.035, spread: 0.02},
	"tcw":  {base: 32, amplitude: 15, spread: 3},
	"tcwv": {base: 30, amplitude: 14, spread: 3},
	"tp":   {ratePerStep: 0.003},
	"u700": {base: -2, amplitude: 6, spread: 2},
	"v700": {base: 1, amplitude: 4, spread: 2},
}

func main() {
	initFlag := flag.String("init", "", "Initialization time (YYYYMMDDHH, YYYYMMDD or RFC 3339)")
	outDir := flag.String("out", "", "Output directory (default: SOURCE_DIR)")
	members := flag.Int("members", 10, "Ensemble members")
	spacing := flag.Float64("spacing", 0.25, "Source lattice spacing in degrees")
	seed := flag.Uint64("seed", 1, "Random seed")
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
	if *outDir == "" {
		*outDir = cfg.SourceDir
	}
	if *members < 1 || *spacing <= 0 {
		logger.Error("-members and -spacing must be positive")
		os.Exit(2)
	}

	// Cover the regional grid with a one-spacing margin so every target point is inside.
	grid := domain.EastAfricaGrid()
	region := Region{
		LatMin:  grid.Lat[0] - *spacing,
		LatMax:  grid.Lat[grid.NLat()-1] + *spacing,
		LonMin:  grid.Lon[0] - *spacing,
		LonMax:  grid.Lon[grid.NLon()-1] + *spacing,
		Spacing: *spacing,
	}
	steps := sourceSteps(cfg.Accumulation, cfg.FirstStep, cfg.ValidTimes)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	store := ifs.NewStore(*outDir)
	for _, g := range []domain.LevelGroup{domain.LevelSurface, domain.LevelPressure, domain.LevelConvective} {
		src := synthesize(rng, init, g, region, steps, *members)
		path := store.Path(init, g)
		if err := ifs.WriteFile(path, src); err != nil {
			logger.Error("failed to write source file", "path", path, "error", err)
			os.Exit(1)
		}
		logger.Info("source file written",
			"path", filepath.Base(path),
			"fields", len(src.Fields),
			"points", src.Grid.Len(),
			"steps", len(steps),
		)
	}
	logger.Info("synthesis complete", "dir", *outDir, "members", *members)
}

// sourceSteps returns enough 6 hourly lead hours for every configured valid time.
func sourceSteps(acc domain.Accumulation, firstStep, validTimes int) []float64 {
	perValidTime := acc.Hours() / 6
	n := firstStep + validTimes*perValidTime + 2
	steps := make([]float64, n)
	for i := range steps {
		steps[i] = float64(6 * i)
	}
	return steps
}

// lattice returns a jittered point set over r, standing in for a reduced Gaussian grid.
func lattice(rng *rand.Rand, g domain.LevelGroup, r Region) domain.SourceGrid {
	src := domain.SourceGrid{Group: g}
	jitter := r.Spacing / 4
	for lat := r.LatMin; lat <= r.LatMax+1e-9; lat += r.Spacing {
		for lon := r.LonMin; lon <= r.LonMax+1e-9; lon += r.Spacing {
			src.Lat = append(src.Lat, math.Max(r.LatMin, math.Min(r.LatMax, lat+(rng.Float64()-0.5)*jitter)))
			src.Lon = append(src.Lon, math.Max(r.LonMin, math.Min(r.LonMax, lon+(rng.Float64()-0.5)*jitter)))
		}
	}
	return src
}

// synthesize builds one level-group file with smooth spatial patterns and member perturbations.
func synthesize(rng *rand.Rand, init time.Time, g domain.LevelGroup, r Region, steps []float64, members int) ifs.Source {
	grid := lattice(rng, g, r)
	fields := domain.FieldsInGroup(g)
	snaps := make([]domain.EnsembleSnapshot, len(fields))
	for i, f := range fields {
		c, ok := climates[f.Name]
		if !ok {
			panic(fmt.Sprintf("no synthetic climate for %s", f.Name))
		}
		snap := domain.NewEnsembleSnapshot(f.Name, members, len(steps), grid.Len())
		for m := 0; m < members; m++ {
			z := rng.NormFloat64()
			for p := 0; p < grid.Len(); p++ {
				pattern := math.Sin(grid.Lon[p]*0.3) * math.Cos(grid.Lat[p]*0.2)
				total := 0.0
				for s := range steps {
					diurnal := math.Sin(2 * math.Pi * steps[s] / 24)
					var v float64
					if f.IsAccumulated() {
						if s > 0 {
							total += math.Max(c.ratePerStep*(1+0.6*pattern+0.3*z+0.2*diurnal), 0)
						}
						v = total
					} else {
						v = c.base + c.amplitude*(pattern+0.2*diurnal) + c.spread*z
						if f.NonNegative {
							v = math.Max(v, 0)
						}
					}
					snap.Set(m, s, p, float32(v))
				}
			}
		}
		snaps[i] = snap
	}
	return ifs.Source{Init: init, Grid: grid, Steps: steps, Snapshots: snaps, Fields: fields}
}
