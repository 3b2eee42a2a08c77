// Package forecast writes and reads the sampled precipitation ensemble.
//
// One file per initialization, named GAN_YYYYMMDD_HHZ.nc, holding
// precipitation[time, member, valid_time, latitude, longitude] in mm/h and a
// fcst_valid_time[time, valid_time] axis.
package forecast

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/forecast-prep/internal/adapter/store/ncio"
	"go.ngs.io/forecast-prep/internal/domain"
)

const (
	precipVar    = "precipitation"
	validTimeVar = "fcst_valid_time"
)

// FileName returns the forecast name for an initialization, e.g. GAN_20240305_00Z.nc.
func FileName(init time.Time) string {
	return fmt.Sprintf("GAN_%s_%02dZ.nc", init.Format("20060102"), init.Hour())
}

// Path returns the forecast path under dir.
func Path(dir string, init time.Time) string {
	return filepath.Join(dir, FileName(init))
}

// Header describes the axes of a forecast file.
type Header struct {
	Init       time.Time
	ValidTimes []time.Time
	Grid       domain.RegularGrid
	Members    int
}

func (h Header) memberSize() int {
	return len(h.ValidTimes) * h.Grid.Size()
}

// Writer streams members into a forecast file. The file and its axes are
// created by NewWriter; each SetMember writes one member's slab.
type Writer struct {
	path    string
	header  Header
	ds      netcdf.Dataset
	precip  netcdf.Var
	written []bool
}

// NewWriter creates a forecast file at path and writes its axes.
func NewWriter(path string, header Header) (*Writer, error) {
	if err := header.Grid.Validate(); err != nil {
		return nil, err
	}
	if header.Members < 1 || len(header.ValidTimes) == 0 {
		return nil, fmt.Errorf("forecast needs members and valid times, got %d x %d", header.Members, len(header.ValidTimes))
	}
	ds, err := ncio.Create(path)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		path:    path,
		header:  header,
		ds:      ds,
		written: make([]bool, header.Members),
	}
	if w.precip, err = w.define(); err != nil {
		_ = ds.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// SetMember writes one member's fields, laid out [valid_time, lat, lon].
// Calls must not overlap.
func (w *Writer) SetMember(m int, values []float32) error {
	h := w.header
	if m < 0 || m >= h.Members {
		return &domain.ShapeMismatchError{Field: precipVar, Axis: "member", Need: h.Members, Have: m + 1}
	}
	size := h.memberSize()
	if len(values) != size {
		return &domain.ShapeMismatchError{Field: precipVar, Axis: "point", Need: size, Have: len(values)}
	}
	start := []uint64{0, uint64(m), 0, 0, 0}
	count := []uint64{1, 1, uint64(len(h.ValidTimes)), uint64(h.Grid.NLat()), uint64(h.Grid.NLon())}
	if err := w.precip.WriteFloat32Slice(values, start, count); err != nil {
		return fmt.Errorf("%s: failed to write member %d: %w", w.path, m, err)
	}
	w.written[m] = true
	return nil
}

// Close closes the file. It fails if any member was never set; the caller
// owns removing the incomplete file.
func (w *Writer) Close() error {
	for m, ok := range w.written {
		if !ok {
			_ = w.ds.Close()
			return fmt.Errorf("%s: member %d was not set", w.path, m)
		}
	}
	return w.ds.Close()
}

func (w *Writer) define() (netcdf.Var, error) {
	ds, h := w.ds, w.header
	var none netcdf.Var
	latD, err := ds.AddDim("latitude", uint64(h.Grid.NLat()))
	if err != nil {
		return none, err
	}
	lonD, err := ds.AddDim("longitude", uint64(h.Grid.NLon()))
	if err != nil {
		return none, err
	}
	timeD, err := ds.AddDim("time", 1)
	if err != nil {
		return none, err
	}
	memberD, err := ds.AddDim("member", uint64(h.Members))
	if err != nil {
		return none, err
	}
	validD, err := ds.AddDim("valid_time", uint64(len(h.ValidTimes)))
	if err != nil {
		return none, err
	}

	latV, err := ds.AddVar("latitude", netcdf.FLOAT, []netcdf.Dim{latD})
	if err != nil {
		return none, err
	}
	lonV, err := ds.AddVar("longitude", netcdf.FLOAT, []netcdf.Dim{lonD})
	if err != nil {
		return none, err
	}
	timeV, err := ds.AddVar("time", netcdf.FLOAT, []netcdf.Dim{timeD})
	if err != nil {
		return none, err
	}
	validV, err := ds.AddVar(validTimeVar, netcdf.FLOAT, []netcdf.Dim{timeD, validD})
	if err != nil {
		return none, err
	}
	precipV, err := ds.AddVar(precipVar, netcdf.FLOAT, []netcdf.Dim{timeD, memberD, validD, latD, lonD})
	if err != nil {
		return none, err
	}
	if err := ncio.Compress(precipV, ncio.DeflateLevel); err != nil {
		return none, err
	}
	if err := ncio.PutAttrs(latV, "units", "degrees_north"); err != nil {
		return none, err
	}
	if err := ncio.PutAttrs(lonV, "units", "degrees_east"); err != nil {
		return none, err
	}
	if err := ncio.PutAttrs(timeV, "units", domain.TimeUnits, "long_name", "initialisation time"); err != nil {
		return none, err
	}
	if err := ncio.PutAttrs(validV, "units", domain.TimeUnits, "long_name", "valid time"); err != nil {
		return none, err
	}
	if err := ncio.PutAttrs(precipV, "units", "mm/h", "long_name", "Precipitation"); err != nil {
		return none, err
	}
	if err := ds.EndDef(); err != nil {
		return none, err
	}

	if err := latV.WriteFloat32s(ncio.ToFloat32(h.Grid.Lat)); err != nil {
		return none, fmt.Errorf("failed to write latitude: %w", err)
	}
	if err := lonV.WriteFloat32s(ncio.ToFloat32(h.Grid.Lon)); err != nil {
		return none, fmt.Errorf("failed to write longitude: %w", err)
	}
	if err := timeV.WriteFloat32s([]float32{float32(domain.HoursSinceEpoch(h.Init))}); err != nil {
		return none, fmt.Errorf("failed to write time: %w", err)
	}
	valid := make([]float32, len(h.ValidTimes))
	for i, t := range h.ValidTimes {
		valid[i] = float32(domain.HoursSinceEpoch(t))
	}
	if err := validV.WriteFloat32s(valid); err != nil {
		return none, fmt.Errorf("failed to write %s: %w", validTimeVar, err)
	}
	return precipV, nil
}

// Reader reads row bands of a forecast file.
type Reader struct {
	Header
	path   string
	ds     netcdf.Dataset
	precip netcdf.Var
}

// Open opens a forecast file and reads its axes.
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

func (r *Reader) readHeader() error {
	var axes [4][]float64
	for i, name := range []string{"latitude", "longitude", "time", validTimeVar} {
		v, err := r.ds.Var(name)
		if err != nil {
			return fmt.Errorf("%s variable not found: %w", name, err)
		}
		if axes[i], err = ncio.ReadFloat64s(v); err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
	}
	if len(axes[2]) == 0 {
		return fmt.Errorf("empty time axis")
	}
	r.Grid = domain.RegularGrid{Lat: axes[0], Lon: axes[1]}
	r.Init = domain.FromHoursSinceEpoch(axes[2][0])
	for _, h := range axes[3] {
		r.ValidTimes = append(r.ValidTimes, domain.FromHoursSinceEpoch(h))
	}

	precip, err := r.ds.Var(precipVar)
	if err != nil {
		return fmt.Errorf("%s variable not found: %w", precipVar, err)
	}
	shape, err := ncio.Shape(precip)
	if err != nil {
		return err
	}
	want := []uint64{1, 0, uint64(len(r.ValidTimes)), uint64(r.Grid.NLat()), uint64(r.Grid.NLon())}
	if len(shape) != len(want) {
		return fmt.Errorf("%s has rank %d, want 5", precipVar, len(shape))
	}
	for i, n := range want {
		if i != 1 && shape[i] != n {
			return fmt.Errorf("%s dimension %d has length %d, want %d", precipVar, i, shape[i], n)
		}
	}
	r.Members = int(shape[1])
	r.precip = precip
	return nil
}

// ReadRows reads every member of valid time vt over the rows of rr.
func (r *Reader) ReadRows(vt int, rr domain.RowRange) (domain.RowChunk, error) {
	if vt < 0 || vt >= len(r.ValidTimes) {
		return domain.RowChunk{}, &domain.ShapeMismatchError{Field: precipVar, Axis: "valid_time", Need: vt + 1, Have: len(r.ValidTimes)}
	}
	if rr.Start < 0 || rr.End > r.Grid.NLat() || rr.Rows() <= 0 {
		return domain.RowChunk{}, fmt.Errorf("row range [%d, %d) outside %d rows", rr.Start, rr.End, r.Grid.NLat())
	}
	start := []uint64{0, 0, uint64(vt), uint64(rr.Start), 0}
	count := []uint64{1, uint64(r.Members), 1, uint64(rr.Rows()), uint64(r.Grid.NLon())}
	values, err := ncio.ReadFloat32Slab(r.precip, start, count)
	if err != nil {
		return domain.RowChunk{}, fmt.Errorf("failed to read %s rows [%d, %d): %w", precipVar, rr.Start, rr.End, err)
	}
	return domain.RowChunk{Range: rr, Values: values}, nil
}

// Path returns the file path.
func (r *Reader) Path() string { return r.path }

// Close closes the file.
func (r *Reader) Close() error {
	return r.ds.Close()
}
