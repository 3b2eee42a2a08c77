package domain

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TrapezoidWeights combine five 6-hourly samples into a 24 hour average.
var TrapezoidWeights = [5]float64{0.5, 1, 1, 1, 0.5}

// trapezoidIntervals is the sum of TrapezoidWeights.
const trapezoidIntervals = 4

// windowsPerDay is the number of 6 hour windows in a 24 hour block.
const windowsPerDay = 4

// Reducer turns ensemble snapshots into per-valid-time mean and std.
type Reducer struct {
	FirstStep  int // Sub-step index of the first valid time.
	ValidTimes int // Number of valid times produced.
}

// NewReducer creates a Reducer for the given valid-time window.
func NewReducer(firstStep, validTimes int) Reducer {
	return Reducer{FirstStep: firstStep, ValidTimes: validTimes}
}

// Reduce computes the ensemble mean and sample standard deviation of field at valid time vt.
//
// Instantaneous fields use sub-step FirstStep+vt directly. Accumulated fields are differenced
// per member between sub-steps FirstStep+vt+1 and FirstStep+vt before the statistics; the last
// valid time of an accumulated field has no following sub-step and is defined as zero.
func (r Reducer) Reduce(field FieldDescriptor, snap EnsembleSnapshot, vt int) (FieldPair, error) {
	if err := snap.Validate(); err != nil {
		return FieldPair{}, err
	}
	if vt < 0 || vt >= r.ValidTimes {
		return FieldPair{}, &ShapeMismatchError{Field: field.Name, Axis: "valid_time", Need: vt + 1, Have: r.ValidTimes}
	}
	if snap.Members < 2 {
		return FieldPair{}, &ShapeMismatchError{Field: field.Name, Axis: "member", Need: 2, Have: snap.Members}
	}

	step := r.FirstStep + vt
	out := NewFieldPair(snap.Points)

	if field.IsAccumulated() {
		if vt == r.ValidTimes-1 {
			return out, nil
		}
		if step+1 >= snap.Steps {
			return FieldPair{}, &ShapeMismatchError{Field: field.Name, Axis: "step", Need: step + 2, Have: snap.Steps}
		}
		reducePoints(snap, out, func(m, p int) float64 {
			return snap.At(m, step+1, p) - snap.At(m, step, p)
		})
	} else {
		if step >= snap.Steps {
			return FieldPair{}, &ShapeMismatchError{Field: field.Name, Axis: "step", Need: step + 1, Have: snap.Steps}
		}
		reducePoints(snap, out, func(m, p int) float64 {
			return snap.At(m, step, p)
		})
	}

	assertNonNegative(field.Name, out.Std)
	return out, nil
}

// ReduceAll reduces every valid time of the window.
func (r Reducer) ReduceAll(field FieldDescriptor, snap EnsembleSnapshot) ([]FieldPair, error) {
	series := make([]FieldPair, r.ValidTimes)
	for vt := range series {
		pair, err := r.Reduce(field, snap, vt)
		if err != nil {
			return nil, err
		}
		series[vt] = pair
	}
	return series, nil
}

// reducePoints folds the member axis of every point into out.
func reducePoints(snap EnsembleSnapshot, out FieldPair, value func(m, p int) float64) {
	members := make([]float64, snap.Members)
	for p := 0; p < snap.Points; p++ {
		for m := range members {
			members[m] = value(m, p)
		}
		out.Mean[p], out.Std[p] = meanStd(members)
	}
}

// meanStd returns the arithmetic mean and Bessel-corrected standard deviation.
func meanStd(x []float64) (float64, float64) {
	mean, variance := stat.MeanVariance(x, nil)
	if variance < 0 {
		// Round-off in the compensated sum.
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

// CombineDaily collapses a 6-hourly reduced series into 24 hour block day.
//
// Instantaneous fields use samples 4d+1..4d+5 under TrapezoidWeights: means are combined
// directly, stds are squared, combined with the same weights and square-rooted.
// Accumulated fields average the window means 4d+1..4d+4 and take the RMS of their stds.
func CombineDaily(field FieldDescriptor, series []FieldPair, day int) (FieldPair, error) {
	first := windowsPerDay*day + 1
	if field.IsAccumulated() {
		return combineWindows(field, series, first)
	}
	return combineTrapezoid(field, series, first)
}

func combineTrapezoid(field FieldDescriptor, series []FieldPair, first int) (FieldPair, error) {
	need := first + len(TrapezoidWeights)
	if first < 1 || len(series) < need {
		return FieldPair{}, &ShapeMismatchError{Field: field.Name, Axis: "series", Need: need, Have: len(series)}
	}
	n := series[first].Len()
	out := NewFieldPair(n)
	for p := 0; p < n; p++ {
		var mean, variance float64
		for k, w := range TrapezoidWeights {
			s := series[first+k]
			mean += w * s.Mean[p]
			variance += w * s.Std[p] * s.Std[p]
		}
		out.Mean[p] = mean / trapezoidIntervals
		out.Std[p] = math.Sqrt(variance / trapezoidIntervals)
	}
	assertNonNegative(field.Name, out.Std)
	return out, nil
}

func combineWindows(field FieldDescriptor, series []FieldPair, first int) (FieldPair, error) {
	need := first + windowsPerDay
	if first < 1 || len(series) < need {
		return FieldPair{}, &ShapeMismatchError{Field: field.Name, Axis: "series", Need: need, Have: len(series)}
	}
	n := series[first].Len()
	out := NewFieldPair(n)
	for p := 0; p < n; p++ {
		var mean, meanSquare float64
		for k := 0; k < windowsPerDay; k++ {
			s := series[first+k]
			mean += s.Mean[p]
			meanSquare += s.Std[p] * s.Std[p]
		}
		out.Mean[p] = mean / windowsPerDay
		out.Std[p] = math.Sqrt(meanSquare / windowsPerDay)
	}
	assertNonNegative(field.Name, out.Std)
	return out, nil
}

// DailyBlocks returns how many 24 hour blocks a series of n 6-hourly samples supports.
func DailyBlocks(field FieldDescriptor, n int) int {
	span := len(TrapezoidWeights)
	if field.IsAccumulated() {
		span = windowsPerDay
	}
	if n < span+1 {
		return 0
	}
	return (n-1-span)/windowsPerDay + 1
}
