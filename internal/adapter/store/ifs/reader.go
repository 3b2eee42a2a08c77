// Package ifs reads and writes per-member ensemble source datasets on the native irregular grid.
//
// One file per initialization and level group, named YYYYMMDD_HHZ_<group>_54h.nc, with
// dimensions (number, step, values), 1-D latitude/longitude over values, a step axis in hours,
// a single-element time axis, and one (number, step, values) variable per field.
package ifs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/forecast-prep/internal/adapter/store/ncio"
	"go.ngs.io/forecast-prep/internal/domain"
)

const (
	memberDim = "number"
	stepDim   = "step"
	pointDim  = "values"
)

// FileTag returns the group part of a source file name.
func FileTag(g domain.LevelGroup) string {
	switch g {
	case domain.LevelPressure:
		return "pl700"
	case domain.LevelConvective:
		return "MUCAPE"
	default:
		return "sfc"
	}
}

// FileName returns the source file name of one level group.
func FileName(init time.Time, g domain.LevelGroup) string {
	return fmt.Sprintf("%s_%02dZ_%s_54h.nc", init.Format("20060102"), init.Hour(), FileTag(g))
}

// Store locates source datasets under a directory.
type Store struct {
	dir string
}

// NewStore creates a source store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the file path of one level group.
func (s *Store) Path(init time.Time, g domain.LevelGroup) string {
	return filepath.Join(s.dir, FileName(init, g))
}

// Exists reports whether every level group file of init is present.
func (s *Store) Exists(init time.Time) bool {
	for _, g := range []domain.LevelGroup{domain.LevelSurface, domain.LevelPressure, domain.LevelConvective} {
		if _, err := os.Stat(s.Path(init, g)); err != nil {
			return false
		}
	}
	return true
}

// Open opens the dataset of one level group.
func (s *Store) Open(init time.Time, g domain.LevelGroup) (*Dataset, error) {
	return OpenFile(s.Path(init, g), g)
}

// Dataset is an open source file.
type Dataset struct {
	Path    string
	Init    time.Time
	Steps   []float64 // Lead hours per sub-step.
	Members int
	Grid    domain.SourceGrid

	nc netcdf.Dataset
}

// OpenFile opens a source file and reads its coordinates.
func OpenFile(path string, g domain.LevelGroup) (*Dataset, error) {
	nc, err := ncio.Open(path)
	if err != nil {
		return nil, err
	}
	d := &Dataset{Path: path, nc: nc}
	if err := d.readAxes(g); err != nil {
		_ = nc.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func (d *Dataset) readAxes(g domain.LevelGroup) error {
	latVar, _, err := ncio.VarByNames(d.nc, "latitude", "lat")
	if err != nil {
		return err
	}
	lonVar, _, err := ncio.VarByNames(d.nc, "longitude", "lon")
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
	d.Grid = domain.SourceGrid{Group: g, Lon: lon, Lat: lat}
	if err := d.Grid.Validate(); err != nil {
		return err
	}

	stepVar, err := d.nc.Var(stepDim)
	if err != nil {
		return fmt.Errorf("step variable not found: %w", err)
	}
	if d.Steps, err = ncio.ReadFloat64s(stepVar); err != nil {
		return fmt.Errorf("failed to read steps: %w", err)
	}

	timeVar, err := d.nc.Var("time")
	if err != nil {
		return fmt.Errorf("time variable not found: %w", err)
	}
	times, err := ncio.ReadFloat64s(timeVar)
	if err != nil || len(times) == 0 {
		return fmt.Errorf("failed to read initialization time: %v", err)
	}
	d.Init = domain.FromHoursSinceEpoch(times[0])

	memberDimension, err := d.nc.Dim(memberDim)
	if err != nil {
		return fmt.Errorf("member dimension not found: %w", err)
	}
	members, err := memberDimension.Len()
	if err != nil {
		return err
	}
	d.Members = int(members)
	return nil
}

// Snapshot reads every member and sub-step of field into an EnsembleSnapshot.
func (d *Dataset) Snapshot(field domain.FieldDescriptor) (domain.EnsembleSnapshot, error) {
	v, err := d.nc.Var(field.SourceVar)
	if err != nil {
		return domain.EnsembleSnapshot{}, fmt.Errorf("%s: variable %s not found: %w", d.Path, field.SourceVar, err)
	}
	names, err := ncio.DimNames(v)
	if err != nil {
		return domain.EnsembleSnapshot{}, err
	}
	if len(names) != 3 || names[0] != memberDim || names[1] != stepDim || names[2] != pointDim {
		return domain.EnsembleSnapshot{}, fmt.Errorf("%s: expected dimensions (%s, %s, %s), got %v", field.SourceVar, memberDim, stepDim, pointDim, names)
	}
	shape, err := ncio.Shape(v)
	if err != nil {
		return domain.EnsembleSnapshot{}, err
	}
	if int(shape[2]) != d.Grid.Len() {
		return domain.EnsembleSnapshot{}, &domain.ShapeMismatchError{Field: field.Name, Axis: "point", Need: d.Grid.Len(), Have: int(shape[2])}
	}

	values, err := ncio.ReadFloat32Slab(v, []uint64{0, 0, 0}, shape)
	if err != nil {
		return domain.EnsembleSnapshot{}, fmt.Errorf("failed to read %s: %w", field.SourceVar, err)
	}
	return domain.EnsembleSnapshot{
		Field:   field.Name,
		Members: int(shape[0]),
		Steps:   int(shape[1]),
		Points:  int(shape[2]),
		Values:  values,
	}, nil
}

// Close closes the underlying file.
func (d *Dataset) Close() error {
	return d.nc.Close()
}
