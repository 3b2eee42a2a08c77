package ifs

import (
	"fmt"
	"time"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/forecast-prep/internal/adapter/store/ncio"
	"go.ngs.io/forecast-prep/internal/domain"
)

// Source is the content of one level-group file.
type Source struct {
	Init      time.Time
	Grid      domain.SourceGrid
	Steps     []float64 // Lead hours.
	Snapshots []domain.EnsembleSnapshot
	Fields    []domain.FieldDescriptor // Parallel to Snapshots.
}

// WriteFile writes a source file in the layout OpenFile reads.
func WriteFile(path string, src Source) error {
	if len(src.Fields) != len(src.Snapshots) {
		return fmt.Errorf("%d fields for %d snapshots", len(src.Fields), len(src.Snapshots))
	}
	members := 0
	if len(src.Snapshots) > 0 {
		members = src.Snapshots[0].Members
	}
	for i, s := range src.Snapshots {
		if err := s.Validate(); err != nil {
			return err
		}
		if s.Members != members || s.Steps != len(src.Steps) || s.Points != src.Grid.Len() {
			return fmt.Errorf("snapshot %s does not match file axes", src.Fields[i].Name)
		}
	}

	ds, err := ncio.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = ds.Close() }()

	memberD, err := ds.AddDim(memberDim, uint64(members))
	if err != nil {
		return err
	}
	stepD, err := ds.AddDim(stepDim, uint64(len(src.Steps)))
	if err != nil {
		return err
	}
	pointD, err := ds.AddDim(pointDim, uint64(src.Grid.Len()))
	if err != nil {
		return err
	}
	timeD, err := ds.AddDim("time", 1)
	if err != nil {
		return err
	}

	latV, err := ds.AddVar("latitude", netcdf.DOUBLE, []netcdf.Dim{pointD})
	if err != nil {
		return err
	}
	lonV, err := ds.AddVar("longitude", netcdf.DOUBLE, []netcdf.Dim{pointD})
	if err != nil {
		return err
	}
	stepV, err := ds.AddVar(stepDim, netcdf.DOUBLE, []netcdf.Dim{stepD})
	if err != nil {
		return err
	}
	timeV, err := ds.AddVar("time", netcdf.DOUBLE, []netcdf.Dim{timeD})
	if err != nil {
		return err
	}
	if err := ncio.PutAttrs(latV, "units", "degrees_north"); err != nil {
		return err
	}
	if err := ncio.PutAttrs(lonV, "units", "degrees_east"); err != nil {
		return err
	}
	if err := ncio.PutAttrs(stepV, "units", "hours"); err != nil {
		return err
	}
	if err := ncio.PutAttrs(timeV, "units", domain.TimeUnits); err != nil {
		return err
	}

	fieldVars := make([]netcdf.Var, len(src.Fields))
	for i, f := range src.Fields {
		v, err := ds.AddVar(f.SourceVar, netcdf.FLOAT, []netcdf.Dim{memberD, stepD, pointD})
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", f.SourceVar, err)
		}
		if err := ncio.Compress(v, ncio.DeflateLevel); err != nil {
			return err
		}
		fieldVars[i] = v
	}

	if err := ds.EndDef(); err != nil {
		return err
	}

	if err := latV.WriteFloat64s(src.Grid.Lat); err != nil {
		return fmt.Errorf("failed to write latitude: %w", err)
	}
	if err := lonV.WriteFloat64s(src.Grid.Lon); err != nil {
		return fmt.Errorf("failed to write longitude: %w", err)
	}
	if err := stepV.WriteFloat64s(src.Steps); err != nil {
		return fmt.Errorf("failed to write steps: %w", err)
	}
	if err := timeV.WriteFloat64s([]float64{domain.HoursSinceEpoch(src.Init)}); err != nil {
		return fmt.Errorf("failed to write time: %w", err)
	}
	for i, v := range fieldVars {
		if err := v.WriteFloat32s(src.Snapshots[i].Values); err != nil {
			return fmt.Errorf("failed to write %s: %w", src.Fields[i].SourceVar, err)
		}
	}
	return nil
}
