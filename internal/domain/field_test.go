package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFields_TableOrderAndNames(t *testing.T) {
	var names []string
	for _, f := range Fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"cape", "cp", "mcc", "sp", "ssr", "t2m", "tciw", "tclw", "tcrw", "tcw", "tcwv", "tp", "u700", "v700"}, names)
	assert.Equal(t, 28, ChannelCount(len(Fields)))
}

func TestFields_Descriptors(t *testing.T) {
	cape := mustField(t, "cape")
	assert.Equal(t, "mucape", cape.SourceVar)
	assert.Equal(t, LevelConvective, cape.Group)
	assert.NotEmpty(t, cape.Warning)

	u := mustField(t, "u700")
	assert.Equal(t, "u", u.SourceVar)
	assert.Equal(t, "u700_ensemble_mean", u.MeanVar())
	assert.Equal(t, "u700_ensemble_standard_deviation", u.StdVar())
	assert.False(t, u.NonNegative)

	for _, name := range []string{"tp", "cp", "ssr"} {
		assert.True(t, mustField(t, name).IsAccumulated(), name)
	}
	for _, f := range Fields {
		if f.Name != "u700" && f.Name != "v700" {
			assert.True(t, f.NonNegative, f.Name)
		}
	}
}

func TestFieldsInGroup(t *testing.T) {
	assert.Len(t, FieldsInGroup(LevelSurface), 11)
	assert.Len(t, FieldsInGroup(LevelPressure), 2)
	assert.Len(t, FieldsInGroup(LevelConvective), 1)
}

func TestLookupField_Unknown(t *testing.T) {
	_, err := LookupField("msl")
	var unknown *UnknownFieldError
	require.True(t, errors.As(err, &unknown))
	assert.Contains(t, err.Error(), "msl")
}

func TestEastAfricaGrid(t *testing.T) {
	g := EastAfricaGrid()
	require.NoError(t, g.Validate())
	assert.Equal(t, 384, g.NLat())
	assert.Equal(t, 352, g.NLon())
	assert.Equal(t, -13.65, g.Lat[0])
	assert.Equal(t, 24.65, g.Lat[383])
	assert.Equal(t, 19.15, g.Lon[0])
	assert.Equal(t, 54.25, g.Lon[351])
}

func TestRegularGrid_Validate(t *testing.T) {
	tests := []struct {
		name string
		grid RegularGrid
		ok   bool
	}{
		{"regular", NewRegularGrid(0, 0, 3, 4, 0.1), true},
		{"single row", RegularGrid{Lat: []float64{0}, Lon: []float64{0, 1}}, false},
		{"decreasing", RegularGrid{Lat: []float64{1, 0.9, 0.8}, Lon: []float64{0, 1}}, false},
		{"uneven", RegularGrid{Lat: []float64{0, 0.1, 0.3}, Lon: []float64{0, 1}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.grid.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRegularGrid_PointsRowMajor(t *testing.T) {
	g := NewRegularGrid(10, 20, 2, 3, 1)
	lon, lat := g.Points()
	assert.Equal(t, []float64{20, 21, 22, 20, 21, 22}, lon)
	assert.Equal(t, []float64{10, 10, 10, 11, 11, 11}, lat)
	assert.Equal(t, 4, g.Index(1, 1))
}

func TestAccumulation_LeadHours(t *testing.T) {
	assert.Equal(t, []int{30, 36, 42}, []int{
		Accumulation6h.LeadHours(5, 0), Accumulation6h.LeadHours(5, 1), Accumulation6h.LeadHours(5, 2),
	})
	assert.Equal(t, 6, Accumulation24h.LeadHours(5, 0))
	assert.Equal(t, 30, Accumulation24h.LeadHours(5, 1))

	_, err := ParseAccumulation("12h")
	assert.Error(t, err)
	a, err := ParseAccumulation("24h")
	require.NoError(t, err)
	assert.Equal(t, 24, a.Hours())
}

func TestHoursSinceEpoch(t *testing.T) {
	init := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	h := HoursSinceEpoch(init)
	assert.Equal(t, float64(1088508), h)
	assert.True(t, init.Equal(FromHoursSinceEpoch(h)))
	assert.Equal(t, init.Add(30*time.Hour), Accumulation6h.ValidTime(init, 5, 0))
}

func TestBuildModelInput(t *testing.T) {
	a := NormalizedField{Field: mustField(t, "t2m"), Pair: FieldPair{Mean: []float64{1, 2}, Std: []float64{0.1, 0.2}}}
	b := NormalizedField{Field: mustField(t, "tp"), Pair: FieldPair{Mean: []float64{3, 4}, Std: []float64{0.3, 0.4}}}

	in, err := BuildModelInput([]NormalizedField{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, in.Points)
	assert.Equal(t, 4, in.Channels)
	assert.Equal(t, []float32{1, 0.1, 3, 0.3, 2, 0.2, 4, 0.4}, in.Data)

	withConst, err := in.AppendChannels([]float32{9, 8})
	require.NoError(t, err)
	assert.Equal(t, 5, withConst.Channels)
	assert.Equal(t, float32(8), withConst.At(1, 4))
	assert.Equal(t, float32(3), withConst.At(0, 2))

	_, err = in.AppendChannels([]float32{1})
	assert.Error(t, err)

	b.Pair = FieldPair{Mean: []float64{1}, Std: []float64{1}}
	_, err = BuildModelInput([]NormalizedField{a, b})
	var shapeErr *ShapeMismatchError
	assert.True(t, errors.As(err, &shapeErr))
}
