package regridded

import (
	"fmt"
	"math"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/forecast-prep/internal/adapter/store/ncio"
	"go.ngs.io/forecast-prep/internal/domain"
)

// coordinateTolerance absorbs the float32 storage of the lat/lon axes.
const coordinateTolerance = 1e-4

// Reader reads fields back from an artifact.
type Reader struct {
	Header
	path string
	ds   netcdf.Dataset
}

// Open opens an artifact and reads its axes.
func Open(path string) (*Reader, error) {
	ds, err := ncio.Open(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{path: path, ds: ds}
	if err := r.readHeader(); err != nil {
		_ = ds.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func (r *Reader) readAxis(name string) ([]float64, error) {
	v, err := r.ds.Var(name)
	if err != nil {
		return nil, fmt.Errorf("%s variable not found: %w", name, err)
	}
	values, err := ncio.ReadFloat64s(v)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return values, nil
}

func (r *Reader) readHeader() error {
	lat, err := r.readAxis("latitude")
	if err != nil {
		return err
	}
	lon, err := r.readAxis("longitude")
	if err != nil {
		return err
	}
	r.Grid = domain.RegularGrid{Lat: roundAxis(lat), Lon: roundAxis(lon)}

	times, err := r.readAxis("time")
	if err != nil {
		return err
	}
	if len(times) == 0 {
		return fmt.Errorf("empty time axis")
	}
	r.Init = domain.FromHoursSinceEpoch(times[0])

	valid, err := r.readAxis("valid_time")
	if err != nil {
		return err
	}
	for _, h := range valid {
		r.ValidTimes = append(r.ValidTimes, domain.FromHoursSinceEpoch(h))
	}
	return nil
}

// roundAxis undoes float32 storage noise on 0.1 degree axes.
func roundAxis(axis []float64) []float64 {
	out := make([]float64, len(axis))
	for i, v := range axis {
		out[i] = math.Round(v*1e4) / 1e4
	}
	return out
}

// MatchesGrid reports whether the artifact lies on g.
func (r *Reader) MatchesGrid(g domain.RegularGrid) bool {
	if r.Grid.NLat() != g.NLat() || r.Grid.NLon() != g.NLon() {
		return false
	}
	for i := range g.Lat {
		if math.Abs(g.Lat[i]-r.Grid.Lat[i]) > coordinateTolerance {
			return false
		}
	}
	for j := range g.Lon {
		if math.Abs(g.Lon[j]-r.Grid.Lon[j]) > coordinateTolerance {
			return false
		}
	}
	return true
}

// Field reads the mean and std series of one field.
func (r *Reader) Field(f domain.FieldDescriptor) (domain.ReducedField, error) {
	meanV, err := r.ds.Var(f.MeanVar())
	if err != nil {
		return domain.ReducedField{}, &domain.UnknownFieldError{Name: f.Name}
	}
	stdV, err := r.ds.Var(f.StdVar())
	if err != nil {
		return domain.ReducedField{}, &domain.UnknownFieldError{Name: f.Name}
	}
	mean, err := ncio.ReadFloat64s(meanV)
	if err != nil {
		return domain.ReducedField{}, fmt.Errorf("failed to read %s: %w", f.MeanVar(), err)
	}
	std, err := ncio.ReadFloat64s(stdV)
	if err != nil {
		return domain.ReducedField{}, fmt.Errorf("failed to read %s: %w", f.StdVar(), err)
	}

	size := r.Grid.Size()
	nvt := len(r.ValidTimes)
	if len(mean) != nvt*size || len(std) != nvt*size {
		return domain.ReducedField{}, &domain.ShapeMismatchError{Field: f.Name, Axis: "point", Need: nvt * size, Have: len(mean)}
	}
	rf := domain.ReducedField{Field: f, Grid: r.Grid, ValidTimes: make([]domain.FieldPair, nvt)}
	for vt := 0; vt < nvt; vt++ {
		rf.ValidTimes[vt] = domain.FieldPair{
			Mean: mean[vt*size : (vt+1)*size],
			Std:  std[vt*size : (vt+1)*size],
		}
	}
	return rf, nil
}

// Attribute returns a string attribute of a variable.
func (r *Reader) Attribute(varName, attr string) (string, bool) {
	v, err := r.ds.Var(varName)
	if err != nil {
		return "", false
	}
	return ncio.Text(v.Attr(attr))
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.ds.Close()
}
