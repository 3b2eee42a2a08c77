// Package constants provides the static terrain and land-sea channels of the generator input.
package constants

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/forecast-prep/internal/adapter/interp"
	"go.ngs.io/forecast-prep/internal/adapter/store/ncio"
	"go.ngs.io/forecast-prep/internal/domain"
)

var (
	latNames       = []string{"latitude", "lat", "y"}
	lonNames       = []string{"longitude", "lon", "x"}
	elevationNames = []string{"elevation", "z", "orog", "h"}
	landSeaNames   = []string{"lsm", "land_sea_mask", "LSM"}
)

// Store loads the constants file once and resamples it onto regional grids.
// Constants files can be local disk files or FUSE-mounted files.
type Store struct {
	path string

	mu        sync.Mutex
	elevation *interp.RegularField
	landSea   *interp.RegularField
}

// NewStore creates a constants store for a NetCDF file holding elevation and land-sea mask.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Channels returns the elevation (scaled by its maximum) and land-sea mask on dst,
// one value per point in storage order. Points outside the file's coverage are 0.
func (s *Store) Channels(dst domain.RegularGrid) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.elevation == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("failed to load constants: %w", err)
		}
	}

	elev, err := s.elevation.ResampleOnto(dst)
	if err != nil {
		return nil, fmt.Errorf("elevation: %w", err)
	}
	lsm, err := s.landSea.ResampleOnto(dst)
	if err != nil {
		return nil, fmt.Errorf("land-sea mask: %w", err)
	}

	scale := maxFinite(s.elevation.Values)
	if scale <= 0 {
		scale = 1
	}
	return [][]float32{toChannel(elev, 1/scale), toChannel(lsm, 1)}, nil
}

func (s *Store) load() error {
	nc, err := ncio.Open(s.path)
	if err != nil {
		return err
	}
	defer func() { _ = nc.Close() }()

	latVar, _, err := ncio.VarByNames(nc, latNames...)
	if err != nil {
		return err
	}
	lonVar, _, err := ncio.VarByNames(nc, lonNames...)
	if err != nil {
		return err
	}
	lat, err := ncio.ReadFloat64s(latVar)
	if err != nil {
		return fmt.Errorf("failed to read latitude: %w", err)
	}
	lon, err := ncio.ReadFloat64s(lonVar)
	if err != nil {
		return fmt.Errorf("failed to read longitude: %w", err)
	}

	elevation, err := loadField(nc, lat, lon, elevationNames)
	if err != nil {
		return err
	}
	landSea, err := loadField(nc, lat, lon, landSeaNames)
	if err != nil {
		return err
	}
	s.elevation, s.landSea = elevation, landSea
	return nil
}

// loadField reads a 2-D variable on (lat, lon) or (lon, lat), transposing and
// flipping as needed so the result has increasing axes and lat-major values.
func loadField(nc netcdf.Dataset, lat, lon []float64, names []string) (*interp.RegularField, error) {
	v, name, err := ncio.VarByNames(nc, names...)
	if err != nil {
		return nil, err
	}
	shape, err := ncio.Shape(v)
	if err != nil {
		return nil, err
	}
	if len(shape) == 3 && shape[0] == 1 {
		shape = shape[1:]
	}
	if len(shape) != 2 {
		return nil, fmt.Errorf("%s: expected 2D data, got %dD", name, len(shape))
	}
	raw, err := ncio.ReadFloat64s(v)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	scale, offset := packing(v)
	for i := range raw {
		raw[i] = raw[i]*scale + offset
	}

	nLat, nLon := len(lat), len(lon)
	var values []float64
	switch {
	case int(shape[0]) == nLat && int(shape[1]) == nLon:
		values = raw
	case int(shape[0]) == nLon && int(shape[1]) == nLat:
		values = transpose(raw, nLon, nLat)
	default:
		return nil, fmt.Errorf("%s: dimension mismatch: data is %v, expected [%d, %d] or [%d, %d]",
			name, shape, nLat, nLon, nLon, nLat)
	}

	f := &interp.RegularField{Lat: slices.Clone(lat), Lon: slices.Clone(lon), Values: values}
	if nLat > 1 && lat[0] > lat[nLat-1] {
		f.Lat = reversed(f.Lat)
		f.Values = flipRows(f.Values, nLat, nLon)
	}
	if nLon > 1 && lon[0] > lon[nLon-1] {
		f.Lon = reversed(f.Lon)
		f.Values = flipColumns(f.Values, nLat, nLon)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}

// packing returns the scale_factor and add_offset of a packed variable.
func packing(v netcdf.Var) (scale, offset float64) {
	scale, offset = 1, 0
	buf := make([]float64, 1)
	if n, err := v.Attr("scale_factor").Len(); err == nil && n > 0 {
		if v.Attr("scale_factor").ReadFloat64s(buf) == nil {
			scale = buf[0]
		}
	}
	if n, err := v.Attr("add_offset").Len(); err == nil && n > 0 {
		if v.Attr("add_offset").ReadFloat64s(buf) == nil {
			offset = buf[0]
		}
	}
	return scale, offset
}

func transpose(values []float64, rows, cols int) []float64 {
	out := make([]float64, len(values))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[j*rows+i] = values[i*cols+j]
		}
	}
	return out
}

func reversed(axis []float64) []float64 {
	out := slices.Clone(axis)
	slices.Reverse(out)
	return out
}

func flipRows(values []float64, nLat, nLon int) []float64 {
	out := make([]float64, 0, len(values))
	for i := nLat - 1; i >= 0; i-- {
		out = append(out, values[i*nLon:(i+1)*nLon]...)
	}
	return out
}

func flipColumns(values []float64, nLat, nLon int) []float64 {
	out := make([]float64, len(values))
	for i := 0; i < nLat; i++ {
		for j := 0; j < nLon; j++ {
			out[i*nLon+j] = values[i*nLon+nLon-1-j]
		}
	}
	return out
}

func maxFinite(values []float64) float64 {
	m := math.Inf(-1)
	for _, v := range values {
		if !math.IsNaN(v) && v > m {
			m = v
		}
	}
	return m
}

func toChannel(values []float64, scale float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		out[i] = float32(v * scale)
	}
	return out
}
