// Package counts writes and reads per-valid-time histogram count files.
//
// Files live at <dir>/<year>/counts_YYYYMMDD_HH_<lead>h.nc. Only bins 1..n-1 are
// stored; the lowest bin is recovered as num_members minus the stored counts.
// Pixels where every member was missing hold the fill value in every bin.
package counts

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/forecast-prep/internal/adapter/store/ncio"
	"go.ngs.io/forecast-prep/internal/domain"
)

// DeflateLevel is the zlib level of the counts variable.
const DeflateLevel = 9

const (
	countsVar    = "counts"
	binsVar      = "bins"
	membersAttr  = "num_members"
	excludedAttr = "num_excluded_pixels"

	// excludedFill marks every stored bin of a pixel that no member reached.
	excludedFill int16 = -1
)

var fileNameRe = regexp.MustCompile(`^counts_(\d{8})_(\d{2})_(\d{1,3})h\.nc$`)

// FileName returns the counts file name, e.g. counts_20240305_00_30h.nc.
func FileName(init time.Time, leadHours int) string {
	return fmt.Sprintf("counts_%s_%02d_%dh.nc", init.Format("20060102"), init.Hour(), leadHours)
}

// Path returns the counts path under dir, partitioned by year.
func Path(dir string, init time.Time, leadHours int) string {
	return filepath.Join(dir, strconv.Itoa(init.Year()), FileName(init, leadHours))
}

// ParseFileName extracts the initialization time and lead hours from a counts file name.
func ParseFileName(name string) (init time.Time, leadHours int, ok bool) {
	m := fileNameRe.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, 0, false
	}
	day, err := time.Parse("20060102", m[1])
	if err != nil {
		return time.Time{}, 0, false
	}
	hour, _ := strconv.Atoi(m[2])
	if hour > 23 {
		return time.Time{}, 0, false
	}
	leadHours, _ = strconv.Atoi(m[3])
	return day.Add(time.Duration(hour) * time.Hour), leadHours, true
}

// Artifact is the content of one counts file.
type Artifact struct {
	Init      time.Time
	ValidTime time.Time
	LeadHours int
	Grid      domain.RegularGrid
	Edges     []float64 // Interior edges e1..en-1 labelling the stored bins.
	Counts    domain.CountsTensor
}

// WriteFile writes a counts file.
func WriteFile(path string, a Artifact) error {
	c := a.Counts
	if c.NLat != a.Grid.NLat() || c.NLon != a.Grid.NLon() {
		return &domain.ShapeMismatchError{Field: countsVar, Axis: "point", Need: a.Grid.Size(), Have: c.NLat * c.NLon}
	}
	if len(a.Edges) != c.Bins-1 {
		return &domain.ShapeMismatchError{Field: binsVar, Axis: "series", Need: c.Bins - 1, Have: len(a.Edges)}
	}
	if c.Excluded != nil && len(c.Excluded) != c.NLat*c.NLon {
		return &domain.ShapeMismatchError{Field: countsVar, Axis: "point", Need: c.NLat * c.NLon, Have: len(c.Excluded)}
	}
	ds, err := ncio.Create(path)
	if err != nil {
		return err
	}
	if err := write(ds, a); err != nil {
		_ = ds.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return ds.Close()
}

func write(ds netcdf.Dataset, a Artifact) error {
	if err := ncio.PutText(ds.Attr("description"), "cGAN forecast histogram counts"); err != nil {
		return err
	}
	lonD, err := ds.AddDim("longitude", uint64(a.Grid.NLon()))
	if err != nil {
		return err
	}
	latD, err := ds.AddDim("latitude", uint64(a.Grid.NLat()))
	if err != nil {
		return err
	}
	timeD, err := ds.AddDim("time", 1)
	if err != nil {
		return err
	}
	validD, err := ds.AddDim("valid_time", 1)
	if err != nil {
		return err
	}
	binsD, err := ds.AddDim(binsVar, uint64(len(a.Edges)))
	if err != nil {
		return err
	}

	lonV, err := ds.AddVar("longitude", netcdf.FLOAT, []netcdf.Dim{lonD})
	if err != nil {
		return err
	}
	latV, err := ds.AddVar("latitude", netcdf.FLOAT, []netcdf.Dim{latD})
	if err != nil {
		return err
	}
	timeV, err := ds.AddVar("time", netcdf.FLOAT, []netcdf.Dim{timeD})
	if err != nil {
		return err
	}
	validV, err := ds.AddVar("valid_time", netcdf.FLOAT, []netcdf.Dim{validD})
	if err != nil {
		return err
	}
	binsV, err := ds.AddVar(binsVar, netcdf.FLOAT, []netcdf.Dim{binsD})
	if err != nil {
		return err
	}
	countsV, err := ds.AddVar(countsVar, netcdf.SHORT, []netcdf.Dim{binsD, latD, lonD})
	if err != nil {
		return err
	}
	if err := ncio.Compress(countsV, DeflateLevel); err != nil {
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
	if err := ncio.PutAttrs(binsV, "units", "mm/h", "description", "Histogram bin edges"); err != nil {
		return err
	}
	if err := ncio.PutAttrs(countsV, "description", "Histogram bin counts"); err != nil {
		return err
	}
	if err := countsV.Attr(membersAttr).WriteInt32s([]int32{int32(a.Counts.Members)}); err != nil {
		return fmt.Errorf("failed to write %s: %w", membersAttr, err)
	}
	if err := countsV.Attr("_FillValue").WriteInt16s([]int16{excludedFill}); err != nil {
		return fmt.Errorf("failed to write _FillValue: %w", err)
	}
	if err := countsV.Attr(excludedAttr).WriteInt32s([]int32{int32(a.Counts.ExcludedPixels())}); err != nil {
		return fmt.Errorf("failed to write %s: %w", excludedAttr, err)
	}
	if err := ds.EndDef(); err != nil {
		return err
	}

	if err := lonV.WriteFloat32s(ncio.ToFloat32(a.Grid.Lon)); err != nil {
		return fmt.Errorf("failed to write longitude: %w", err)
	}
	if err := latV.WriteFloat32s(ncio.ToFloat32(a.Grid.Lat)); err != nil {
		return fmt.Errorf("failed to write latitude: %w", err)
	}
	if err := timeV.WriteFloat32s([]float32{float32(domain.HoursSinceEpoch(a.Init))}); err != nil {
		return fmt.Errorf("failed to write time: %w", err)
	}
	if err := validV.WriteFloat32s([]float32{float32(domain.HoursSinceEpoch(a.ValidTime))}); err != nil {
		return fmt.Errorf("failed to write valid_time: %w", err)
	}
	if err := binsV.WriteFloat32s(ncio.ToFloat32(a.Edges)); err != nil {
		return fmt.Errorf("failed to write bins: %w", err)
	}
	if err := countsV.WriteInt16s(persisted(a.Counts)); err != nil {
		return fmt.Errorf("failed to write counts: %w", err)
	}
	return nil
}

// persisted returns the stored bins with excluded pixels set to the fill value.
func persisted(c domain.CountsTensor) []int16 {
	stored := c.Persisted()
	if c.ExcludedPixels() == 0 {
		return stored
	}
	out := slices.Clone(stored)
	plane := c.NLat * c.NLon
	for p, x := range c.Excluded {
		if !x {
			continue
		}
		for b := 0; b < c.Bins-1; b++ {
			out[b*plane+p] = excludedFill
		}
	}
	return out
}

// ReadFile reads a counts file and restores the lowest bin.
func ReadFile(path string) (Artifact, error) {
	ds, err := ncio.Open(path)
	if err != nil {
		return Artifact{}, err
	}
	defer func() { _ = ds.Close() }()

	a, err := read(ds)
	if err != nil {
		return Artifact{}, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

func read(ds netcdf.Dataset) (Artifact, error) {
	var axes [5][]float64
	for i, name := range []string{"latitude", "longitude", "time", "valid_time", binsVar} {
		v, err := ds.Var(name)
		if err != nil {
			return Artifact{}, fmt.Errorf("%s variable not found: %w", name, err)
		}
		if axes[i], err = ncio.ReadFloat64s(v); err != nil {
			return Artifact{}, fmt.Errorf("failed to read %s: %w", name, err)
		}
	}
	if len(axes[2]) != 1 || len(axes[3]) != 1 {
		return Artifact{}, fmt.Errorf("time and valid_time must hold one value")
	}
	a := Artifact{
		Init:      domain.FromHoursSinceEpoch(axes[2][0]),
		ValidTime: domain.FromHoursSinceEpoch(axes[3][0]),
		Grid:      domain.RegularGrid{Lat: axes[0], Lon: axes[1]},
		Edges:     axes[4],
	}
	a.LeadHours = int(a.ValidTime.Sub(a.Init).Hours())

	countsV, err := ds.Var(countsVar)
	if err != nil {
		return Artifact{}, fmt.Errorf("counts variable not found: %w", err)
	}
	members, ok := ncio.Int(countsV.Attr(membersAttr))
	if !ok {
		return Artifact{}, fmt.Errorf("counts variable has no %s attribute", membersAttr)
	}
	shape, err := ncio.Shape(countsV)
	if err != nil {
		return Artifact{}, err
	}
	nLat, nLon := a.Grid.NLat(), a.Grid.NLon()
	if len(shape) != 3 || int(shape[0]) != len(a.Edges) || int(shape[1]) != nLat || int(shape[2]) != nLon {
		return Artifact{}, fmt.Errorf("counts shape %v does not match axes", shape)
	}

	ct := domain.NewCountsTensor(len(a.Edges)+1, nLat, nLon, members)
	stored := ct.Persisted()
	if err := countsV.ReadInt16s(stored); err != nil {
		return Artifact{}, fmt.Errorf("failed to read counts: %w", err)
	}
	for i := 0; i < nLat; i++ {
		for j := 0; j < nLon; j++ {
			if len(stored) > 0 && stored[i*nLon+j] == excludedFill {
				ct.Exclude(i, j)
				continue
			}
			ct.Counts[i*nLon+j] = int16(ct.ZeroBin(i, j))
		}
	}
	a.Counts = ct
	return a, nil
}
