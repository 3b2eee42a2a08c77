// Package ncio holds NetCDF helpers shared by the dataset stores.
package ncio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/fhs/go-netcdf/netcdf"
)

// DeflateLevel is the zlib level used for field variables.
const DeflateLevel = 4

var nan = math.NaN()

// Create creates (or truncates) a NetCDF-4 file, making parent directories.
func Create(path string) (netcdf.Dataset, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return netcdf.Dataset{}, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	ds, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		return netcdf.Dataset{}, fmt.Errorf("failed to create NetCDF file %s: %w", path, err)
	}
	return ds, nil
}

// Open opens a NetCDF file read-only.
func Open(path string) (netcdf.Dataset, error) {
	ds, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return netcdf.Dataset{}, fmt.Errorf("failed to open NetCDF file %s: %w", path, err)
	}
	return ds, nil
}

// Compress enables shuffle and zlib deflate on a variable. Call before EndDef.
func Compress(v netcdf.Var, level int) error {
	if err := v.SetCompression(true, true, level); err != nil {
		return fmt.Errorf("failed to enable compression: %w", err)
	}
	return nil
}

// PutText writes a string attribute.
func PutText(a netcdf.Attr, s string) error {
	return a.WriteBytes([]byte(s))
}

// PutAttrs writes string attributes in order.
func PutAttrs(v netcdf.Var, kv ...string) error {
	if len(kv)%2 != 0 {
		return fmt.Errorf("odd attribute list")
	}
	for i := 0; i < len(kv); i += 2 {
		if err := PutText(v.Attr(kv[i]), kv[i+1]); err != nil {
			return fmt.Errorf("failed to write attribute %s: %w", kv[i], err)
		}
	}
	return nil
}

// Text reads a string attribute. ok is false when the attribute is missing.
func Text(a netcdf.Attr) (string, bool) {
	n, err := a.Len()
	if err != nil || n == 0 {
		return "", false
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return "", false
	}
	return string(buf), true
}

// Int reads an integer attribute. ok is false when the attribute is missing.
func Int(a netcdf.Attr) (int, bool) {
	n, err := a.Len()
	if err != nil || n == 0 {
		return 0, false
	}
	buf := make([]int32, n)
	if err := a.ReadInt32s(buf); err != nil {
		return 0, false
	}
	return int(buf[0]), true
}

// FillValue returns the _FillValue or missing_value attribute if present as float64.
func FillValue(v netcdf.Var) (float64, bool) {
	for _, name := range []string{"_FillValue", "missing_value"} {
		a := v.Attr(name)
		if n, err := a.Len(); err != nil || n == 0 {
			continue
		}
		buf64 := make([]float64, 1)
		if err := a.ReadFloat64s(buf64); err == nil {
			return buf64[0], true
		}
		buf32 := make([]float32, 1)
		if err := a.ReadFloat32s(buf32); err == nil {
			return float64(buf32[0]), true
		}
	}
	return 0, false
}

// Shape returns the dimension lengths of a variable.
func Shape(v netcdf.Var) ([]uint64, error) {
	dims, err := v.Dims()
	if err != nil {
		return nil, fmt.Errorf("failed to get dimensions: %w", err)
	}
	shape := make([]uint64, len(dims))
	for i, d := range dims {
		if shape[i], err = d.Len(); err != nil {
			return nil, fmt.Errorf("failed to get dimension %d length: %w", i, err)
		}
	}
	return shape, nil
}

// DimNames returns the dimension names of a variable.
func DimNames(v netcdf.Var) ([]string, error) {
	dims, err := v.Dims()
	if err != nil {
		return nil, fmt.Errorf("failed to get dimensions: %w", err)
	}
	names := make([]string, len(dims))
	for i, d := range dims {
		if names[i], err = d.Name(); err != nil {
			return nil, err
		}
	}
	return names, nil
}

// VarByNames returns the first variable found among candidate names.
func VarByNames(ds netcdf.Dataset, names ...string) (netcdf.Var, string, error) {
	for _, name := range names {
		if v, err := ds.Var(name); err == nil {
			return v, name, nil
		}
	}
	return netcdf.Var{}, "", fmt.Errorf("variable not found (tried: %v)", names)
}

func product(shape []uint64) uint64 {
	n := uint64(1)
	for _, s := range shape {
		n *= s
	}
	return n
}

// ReadFloat64s reads a whole numeric variable of any rank, row-major, as float64.
func ReadFloat64s(v netcdf.Var) ([]float64, error) {
	shape, err := Shape(v)
	if err != nil {
		return nil, err
	}
	start := make([]uint64, len(shape))
	return ReadFloat64Slab(v, start, shape)
}

// ReadFloat64Slab reads the hyperslab [start, start+count) as float64.
// Fill values become NaN.
func ReadFloat64Slab(v netcdf.Var, start, count []uint64) ([]float64, error) {
	n := product(count)
	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get var type: %w", err)
	}

	var out []float64
	switch t {
	case netcdf.DOUBLE:
		out = make([]float64, n)
		if err := v.ReadFloat64Slice(out, start, count); err != nil {
			return nil, err
		}
	case netcdf.FLOAT:
		tmp := make([]float32, n)
		if err := v.ReadFloat32Slice(tmp, start, count); err != nil {
			return nil, err
		}
		out = make([]float64, n)
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.INT:
		tmp := make([]int32, n)
		if err := v.ReadInt32Slice(tmp, start, count); err != nil {
			return nil, err
		}
		out = make([]float64, n)
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.SHORT:
		tmp := make([]int16, n)
		if err := v.ReadInt16Slice(tmp, start, count); err != nil {
			return nil, err
		}
		out = make([]float64, n)
		for i, val := range tmp {
			out[i] = float64(val)
		}
	default:
		return nil, fmt.Errorf("unsupported var type: %v", t)
	}

	if fv, ok := FillValue(v); ok {
		for i := range out {
			if out[i] == fv {
				out[i] = nan
			}
		}
	}
	return out, nil
}

// ReadFloat32Slab reads the hyperslab [start, start+count) as float32.
// Fill values become NaN.
func ReadFloat32Slab(v netcdf.Var, start, count []uint64) ([]float32, error) {
	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get var type: %w", err)
	}
	if t != netcdf.FLOAT {
		wide, err := ReadFloat64Slab(v, start, count)
		if err != nil {
			return nil, err
		}
		out := make([]float32, len(wide))
		for i, val := range wide {
			out[i] = float32(val)
		}
		return out, nil
	}

	out := make([]float32, product(count))
	if err := v.ReadFloat32Slice(out, start, count); err != nil {
		return nil, err
	}
	if fv, ok := FillValue(v); ok {
		for i := range out {
			if float64(out[i]) == fv {
				out[i] = float32(nan)
			}
		}
	}
	return out, nil
}

// ToFloat32 narrows values for storage.
func ToFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}
