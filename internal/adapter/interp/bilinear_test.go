package interp

import (
	"math"
	"testing"

	"go.ngs.io/forecast-prep/internal/domain"
)

// TestBilinearInterpolate_CenterPoint tests interpolation at the center of a grid cell
func TestBilinearInterpolate_CenterPoint(t *testing.T) {
	cell := GridCell{
		X0: 0.0, X1: 2.0,
		Y0: 0.0, Y1: 2.0,
		V00: 1.0, V10: 3.0,
		V01: 5.0, V11: 7.0,
	}

	// 0.25 * (1 + 3 + 5 + 7)
	result := BilinearInterpolate(cell, 1.0, 1.0)
	if math.Abs(result-4.0) > 1e-9 {
		t.Errorf("Center point: expected 4.0, got %.10f", result)
	}
}

// TestBilinearInterpolate_CornerPoints tests that corners return exact values
func TestBilinearInterpolate_CornerPoints(t *testing.T) {
	cell := GridCell{
		X0: 0.0, X1: 10.0,
		Y0: 0.0, Y1: 10.0,
		V00: 1.0, V10: 2.0,
		V01: 3.0, V11: 4.0,
	}

	tests := []struct {
		x, y     float64
		expected float64
		name     string
	}{
		{0.0, 0.0, 1.0, "bottom-left"},
		{10.0, 0.0, 2.0, "bottom-right"},
		{0.0, 10.0, 3.0, "top-left"},
		{10.0, 10.0, 4.0, "top-right"},
	}

	for _, tt := range tests {
		result := BilinearInterpolate(cell, tt.x, tt.y)
		if math.Abs(result-tt.expected) > 1e-9 {
			t.Errorf("%s corner: expected %.10f, got %.10f", tt.name, tt.expected, result)
		}
	}
}

func elevationField() *RegularField {
	// Elevation rises 100 m per degree east and 10 m per degree north.
	f := &RegularField{
		Lon: []float64{18, 20, 22, 24},
		Lat: []float64{-14, -12, -10},
	}
	for _, lat := range f.Lat {
		for _, lon := range f.Lon {
			f.Values = append(f.Values, 100*(lon-18)+10*(lat+14))
		}
	}
	return f
}

// TestRegularField_AtLinearField tests that a linear field is reproduced inside the grid
func TestRegularField_AtLinearField(t *testing.T) {
	f := elevationField()
	if err := f.Validate(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	tests := []struct {
		lon, lat float64
	}{
		{18, -14}, {24, -10}, {19.15, -13.65}, {21.3, -11.05}, {22, -12},
	}
	for _, tt := range tests {
		want := 100*(tt.lon-18) + 10*(tt.lat+14)
		got := f.At(tt.lon, tt.lat)
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("At(%.2f, %.2f): expected %.6f, got %.6f", tt.lon, tt.lat, want, got)
		}
	}
}

// TestRegularField_AtOutside tests that points beyond the grid return NaN
func TestRegularField_AtOutside(t *testing.T) {
	f := elevationField()
	for _, p := range [][2]float64{{17.9, -12}, {24.1, -12}, {20, -14.5}, {20, -9}} {
		if v := f.At(p[0], p[1]); !math.IsNaN(v) {
			t.Errorf("At(%.2f, %.2f): expected NaN, got %.6f", p[0], p[1], v)
		}
	}
}

// TestRegularField_ResampleOnto tests resampling onto a regional grid
func TestRegularField_ResampleOnto(t *testing.T) {
	f := elevationField()
	dst := domain.NewRegularGrid(-13.65, 19.15, 4, 5, 0.1)

	out, err := f.ResampleOnto(dst)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(out) != dst.Size() {
		t.Fatalf("Expected %d values, got %d", dst.Size(), len(out))
	}
	for i, lat := range dst.Lat {
		for j, lon := range dst.Lon {
			want := 100*(lon-18) + 10*(lat+14)
			if got := out[dst.Index(i, j)]; math.Abs(got-want) > 1e-9 {
				t.Errorf("(%d,%d): expected %.6f, got %.6f", i, j, want, got)
			}
		}
	}
}

// TestRegularField_Validate tests rejection of malformed fields
func TestRegularField_Validate(t *testing.T) {
	tests := []struct {
		name  string
		field RegularField
	}{
		{"too few longitudes", RegularField{Lon: []float64{0}, Lat: []float64{0, 1}, Values: []float64{0, 0}}},
		{"value count", RegularField{Lon: []float64{0, 1}, Lat: []float64{0, 1}, Values: []float64{0, 0, 0}}},
		{"decreasing", RegularField{Lon: []float64{1, 0}, Lat: []float64{0, 1}, Values: []float64{0, 0, 0, 0}}},
		{"duplicate", RegularField{Lon: []float64{0, 0, 1}, Lat: []float64{0, 1}, Values: make([]float64, 6)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.field.Validate(); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}
