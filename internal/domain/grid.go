package domain

import (
	"fmt"
	"math"
)

// DefaultResolution is the regional grid spacing in degrees.
const DefaultResolution = 0.1

// spacingTolerance absorbs float32 round-off in stored coordinates.
const spacingTolerance = 1e-4

// RegularGrid is the fixed regional destination mesh.
// Values on it are stored row-major: latitude outer, longitude inner.
type RegularGrid struct {
	Lat []float64 // Strictly increasing.
	Lon []float64 // Strictly increasing.
}

// NewRegularGrid builds a grid of nLat x nLon points starting at (latMin, lonMin).
func NewRegularGrid(latMin, lonMin float64, nLat, nLon int, step float64) RegularGrid {
	g := RegularGrid{Lat: make([]float64, nLat), Lon: make([]float64, nLon)}
	for i := range g.Lat {
		g.Lat[i] = roundCoord(latMin + float64(i)*step)
	}
	for j := range g.Lon {
		g.Lon[j] = roundCoord(lonMin + float64(j)*step)
	}
	return g
}

// EastAfricaGrid returns the 384 x 352 regional grid (-13.65..24.65N, 19.15..54.25E).
func EastAfricaGrid() RegularGrid {
	return NewRegularGrid(-13.65, 19.15, 384, 352, DefaultResolution)
}

func roundCoord(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// NLat returns the number of latitude rows.
func (g RegularGrid) NLat() int { return len(g.Lat) }

// NLon returns the number of longitude columns.
func (g RegularGrid) NLon() int { return len(g.Lon) }

// Size returns the number of grid points.
func (g RegularGrid) Size() int { return len(g.Lat) * len(g.Lon) }

// Validate checks that both axes are strictly increasing with a fixed spacing.
func (g RegularGrid) Validate() error {
	if len(g.Lat) < 2 || len(g.Lon) < 2 {
		return fmt.Errorf("regular grid needs at least 2 points per axis, got %d x %d", len(g.Lat), len(g.Lon))
	}
	if err := checkAxis("latitude", g.Lat); err != nil {
		return err
	}
	return checkAxis("longitude", g.Lon)
}

func checkAxis(name string, axis []float64) error {
	step := axis[1] - axis[0]
	if step <= 0 {
		return fmt.Errorf("%s must be strictly increasing", name)
	}
	for i := 2; i < len(axis); i++ {
		d := axis[i] - axis[i-1]
		if d <= 0 {
			return fmt.Errorf("%s must be strictly increasing (index %d)", name, i)
		}
		if math.Abs(d-step) > spacingTolerance {
			return fmt.Errorf("%s spacing not fixed at index %d: %.6f vs %.6f", name, i, d, step)
		}
	}
	return nil
}

// Index returns the flat offset of (row, col).
func (g RegularGrid) Index(row, col int) int {
	return row*len(g.Lon) + col
}

// Points returns the destination coordinates in storage order as (lon, lat) pairs.
func (g RegularGrid) Points() (lon, lat []float64) {
	n := g.Size()
	lon = make([]float64, 0, n)
	lat = make([]float64, 0, n)
	for _, y := range g.Lat {
		for _, x := range g.Lon {
			lon = append(lon, x)
			lat = append(lat, y)
		}
	}
	return lon, lat
}

// SourceGrid is the unordered irregular point set of one level group.
type SourceGrid struct {
	Group LevelGroup
	Lon   []float64
	Lat   []float64
}

// Len returns the number of source points.
func (s SourceGrid) Len() int { return len(s.Lon) }

// Validate checks that the coordinate arrays are parallel.
func (s SourceGrid) Validate() error {
	if len(s.Lon) != len(s.Lat) {
		return fmt.Errorf("source grid %s: %d longitudes vs %d latitudes", s.Group, len(s.Lon), len(s.Lat))
	}
	return nil
}
