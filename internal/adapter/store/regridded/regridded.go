// Package regridded writes and reads the regional ensemble mean/std dataset.
package regridded

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/forecast-prep/internal/adapter/store/ncio"
	"go.ngs.io/forecast-prep/internal/domain"
)

const (
	description = "IFS forecast mean and variance with a lead time of 30h - 54h in the ICPAC region."
	stdWarning  = "WARNING: The ensemble standard deviation was interpolated not the ensemble variance."
)

// FileName returns the artifact name for an initialization, e.g. IFS_20240305_00Z.nc.
func FileName(init time.Time) string {
	return fmt.Sprintf("IFS_%s_%02dZ.nc", init.Format("20060102"), init.Hour())
}

// Path returns the artifact path under dir.
func Path(dir string, init time.Time) string {
	return filepath.Join(dir, FileName(init))
}

// Header describes the axes of an artifact.
type Header struct {
	Init       time.Time
	ValidTimes []time.Time
	Grid       domain.RegularGrid
}

// Writer writes fields into a new artifact. Every field must be written before Close.
type Writer struct {
	path    string
	header  Header
	ds      netcdf.Dataset
	vars    map[string][2]netcdf.Var
	written map[string]bool
}

// Create defines the artifact for fields and writes its coordinates.
func Create(path string, header Header, fields []domain.FieldDescriptor) (*Writer, error) {
	if err := header.Grid.Validate(); err != nil {
		return nil, err
	}
	ds, err := ncio.Create(path)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		path:    path,
		header:  header,
		ds:      ds,
		vars:    make(map[string][2]netcdf.Var, len(fields)),
		written: make(map[string]bool, len(fields)),
	}
	if err := w.define(fields); err != nil {
		_ = ds.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

func (w *Writer) define(fields []domain.FieldDescriptor) error {
	if err := ncio.PutText(w.ds.Attr("description"), description); err != nil {
		return err
	}

	lonD, err := w.ds.AddDim("longitude", uint64(w.header.Grid.NLon()))
	if err != nil {
		return err
	}
	latD, err := w.ds.AddDim("latitude", uint64(w.header.Grid.NLat()))
	if err != nil {
		return err
	}
	timeD, err := w.ds.AddDim("time", 1)
	if err != nil {
		return err
	}
	validD, err := w.ds.AddDim("valid_time", uint64(len(w.header.ValidTimes)))
	if err != nil {
		return err
	}

	lonV, err := w.ds.AddVar("longitude", netcdf.FLOAT, []netcdf.Dim{lonD})
	if err != nil {
		return err
	}
	latV, err := w.ds.AddVar("latitude", netcdf.FLOAT, []netcdf.Dim{latD})
	if err != nil {
		return err
	}
	timeV, err := w.ds.AddVar("time", netcdf.FLOAT, []netcdf.Dim{timeD})
	if err != nil {
		return err
	}
	validV, err := w.ds.AddVar("valid_time", netcdf.FLOAT, []netcdf.Dim{validD})
	if err != nil {
		return err
	}
	if err := ncio.PutAttrs(lonV, "units", "degrees_east"); err != nil {
		return err
	}
	if err := ncio.PutAttrs(latV, "units", "degrees_north"); err != nil {
		return err
	}
	if err := ncio.PutAttrs(timeV, "units", domain.TimeUnits, "description", "Time corresponding to forecast model start"); err != nil {
		return err
	}
	if err := ncio.PutAttrs(validV, "units", domain.TimeUnits, "description", "Time corresponding to forecast prediction"); err != nil {
		return err
	}

	dims := []netcdf.Dim{validD, latD, lonD}
	for _, f := range fields {
		mean, err := w.addField(f.MeanVar(), dims,
			"units", f.Units,
			"long_name", f.LongName+" ensemble mean")
		if err != nil {
			return err
		}
		std, err := w.addField(f.StdVar(), dims,
			"units", "("+f.Units+")**2",
			"long_name", f.LongName+" ensemble standard deviation")
		if err != nil {
			return err
		}
		// A field-specific warning moves the interpolation warning onto the mean variable.
		if f.Warning != "" {
			err = ncio.PutAttrs(mean, "warning", stdWarning+"\n"+f.Warning)
		} else {
			err = ncio.PutAttrs(std, "warning", stdWarning)
		}
		if err != nil {
			return err
		}
		w.vars[f.Name] = [2]netcdf.Var{mean, std}
	}

	if err := w.ds.EndDef(); err != nil {
		return err
	}

	if err := lonV.WriteFloat32s(ncio.ToFloat32(w.header.Grid.Lon)); err != nil {
		return fmt.Errorf("failed to write longitude: %w", err)
	}
	if err := latV.WriteFloat32s(ncio.ToFloat32(w.header.Grid.Lat)); err != nil {
		return fmt.Errorf("failed to write latitude: %w", err)
	}
	if err := timeV.WriteFloat32s([]float32{float32(domain.HoursSinceEpoch(w.header.Init))}); err != nil {
		return fmt.Errorf("failed to write time: %w", err)
	}
	valid := make([]float32, len(w.header.ValidTimes))
	for i, t := range w.header.ValidTimes {
		valid[i] = float32(domain.HoursSinceEpoch(t))
	}
	if err := validV.WriteFloat32s(valid); err != nil {
		return fmt.Errorf("failed to write valid_time: %w", err)
	}
	return nil
}

func (w *Writer) addField(name string, dims []netcdf.Dim, attrs ...string) (netcdf.Var, error) {
	v, err := w.ds.AddVar(name, netcdf.FLOAT, dims)
	if err != nil {
		return netcdf.Var{}, fmt.Errorf("failed to add %s: %w", name, err)
	}
	if err := ncio.Compress(v, ncio.DeflateLevel); err != nil {
		return netcdf.Var{}, err
	}
	if err := ncio.PutAttrs(v, attrs...); err != nil {
		return netcdf.Var{}, err
	}
	return v, nil
}

// WriteField stores the mean and std series of one field.
func (w *Writer) WriteField(rf domain.ReducedField) error {
	vars, ok := w.vars[rf.Field.Name]
	if !ok {
		return &domain.UnknownFieldError{Name: rf.Field.Name}
	}
	nvt, size := len(w.header.ValidTimes), w.header.Grid.Size()
	if len(rf.ValidTimes) != nvt {
		return &domain.ShapeMismatchError{Field: rf.Field.Name, Axis: "valid_time", Need: nvt, Have: len(rf.ValidTimes)}
	}
	mean := make([]float32, 0, nvt*size)
	std := make([]float32, 0, nvt*size)
	for _, pair := range rf.ValidTimes {
		if pair.Len() != size {
			return &domain.ShapeMismatchError{Field: rf.Field.Name, Axis: "point", Need: size, Have: pair.Len()}
		}
		mean = append(mean, ncio.ToFloat32(pair.Mean)...)
		std = append(std, ncio.ToFloat32(pair.Std)...)
	}
	if err := vars[0].WriteFloat32s(mean); err != nil {
		return fmt.Errorf("failed to write %s: %w", rf.Field.MeanVar(), err)
	}
	if err := vars[1].WriteFloat32s(std); err != nil {
		return fmt.Errorf("failed to write %s: %w", rf.Field.StdVar(), err)
	}
	w.written[rf.Field.Name] = true
	return nil
}

// Close closes the file. It reports fields that were defined but never written.
func (w *Writer) Close() error {
	err := w.ds.Close()
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", w.path, err)
	}
	for name := range w.vars {
		if !w.written[name] {
			return fmt.Errorf("%s: field %s was not written", w.path, name)
		}
	}
	return nil
}
