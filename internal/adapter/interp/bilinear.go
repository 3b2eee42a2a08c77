package interp

import (
	"fmt"
	"math"
	"sort"

	"go.ngs.io/forecast-prep/internal/domain"
)

// GridCell is one rectangle of a rectilinear grid with its four corner values.
type GridCell struct {
	X0, X1 float64 // Longitude bounds.
	Y0, Y1 float64 // Latitude bounds.

	// V00 at (X0, Y0), V10 at (X1, Y0), V01 at (X0, Y1), V11 at (X1, Y1).
	V00, V10, V01, V11 float64
}

// BilinearInterpolate evaluates
//
//	f(x,y) = (1-t)(1-u)V00 + t(1-u)V10 + (1-t)u V01 + tu V11
//
// with t = (x-X0)/(X1-X0) and u = (y-Y0)/(Y1-Y0), clamped to the cell.
func BilinearInterpolate(cell GridCell, x, y float64) float64 {
	t := math.Max(0, math.Min(1, (x-cell.X0)/(cell.X1-cell.X0)))
	u := math.Max(0, math.Min(1, (y-cell.Y0)/(cell.Y1-cell.Y0)))

	return (1-t)*(1-u)*cell.V00 +
		t*(1-u)*cell.V10 +
		(1-t)*u*cell.V01 +
		t*u*cell.V11
}

// RegularField is a scalar field on a rectilinear lon/lat grid, such as a static
// terrain or land-sea mask. Values are row-major: Values[i*len(Lon)+j] is at (Lon[j], Lat[i]).
type RegularField struct {
	Lon    []float64
	Lat    []float64
	Values []float64
}

// Validate checks axis ordering and value count.
func (f *RegularField) Validate() error {
	if len(f.Lon) < 2 || len(f.Lat) < 2 {
		return fmt.Errorf("field must have at least 2 coordinates per axis, got %d x %d", len(f.Lat), len(f.Lon))
	}
	if len(f.Values) != len(f.Lat)*len(f.Lon) {
		return fmt.Errorf("field has %d values, expected %d", len(f.Values), len(f.Lat)*len(f.Lon))
	}
	if !sort.Float64sAreSorted(f.Lon) || !sort.Float64sAreSorted(f.Lat) {
		return fmt.Errorf("coordinates must be increasing")
	}
	for i := 1; i < len(f.Lon); i++ {
		if f.Lon[i] == f.Lon[i-1] {
			return fmt.Errorf("duplicate longitude %.6f", f.Lon[i])
		}
	}
	for i := 1; i < len(f.Lat); i++ {
		if f.Lat[i] == f.Lat[i-1] {
			return fmt.Errorf("duplicate latitude %.6f", f.Lat[i])
		}
	}
	return nil
}

// cellIndex returns i such that axis[i] <= v <= axis[i+1], or -1 outside the axis range.
func cellIndex(axis []float64, v float64) int {
	if v < axis[0] || v > axis[len(axis)-1] {
		return -1
	}
	i := sort.SearchFloat64s(axis, v) // First index with axis[i] >= v.
	if i > 0 {
		i--
	}
	return min(i, len(axis)-2)
}

// At interpolates the field at (lon, lat). It returns NaN outside the grid.
func (f *RegularField) At(lon, lat float64) float64 {
	j := cellIndex(f.Lon, lon)
	i := cellIndex(f.Lat, lat)
	if i < 0 || j < 0 {
		return math.NaN()
	}
	n := len(f.Lon)
	return BilinearInterpolate(GridCell{
		X0: f.Lon[j], X1: f.Lon[j+1],
		Y0: f.Lat[i], Y1: f.Lat[i+1],
		V00: f.Values[i*n+j], V10: f.Values[i*n+j+1],
		V01: f.Values[(i+1)*n+j], V11: f.Values[(i+1)*n+j+1],
	}, lon, lat)
}

// ResampleOnto interpolates the field at every point of dst in storage order.
func (f *RegularField) ResampleOnto(dst domain.RegularGrid) ([]float64, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid field: %w", err)
	}
	out := make([]float64, 0, dst.Size())
	for _, lat := range dst.Lat {
		for _, lon := range dst.Lon {
			out = append(out, f.At(lon, lat))
		}
	}
	return out, nil
}
