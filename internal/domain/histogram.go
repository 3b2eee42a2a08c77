package domain

import (
	"fmt"
	"iter"
	"math"
	"sort"
)

// MaxMembers is the largest ensemble whose per-bin counts fit in int16.
const MaxMembers = math.MaxInt16

// DefaultBinEdges6h are the calibrated precipitation-rate edges (mm/h) of the 6 hour product.
var DefaultBinEdges6h = []float64{
	0, 0.04166667, 0.08333333, 0.20833333, 0.41666667, 0.625, 0.83333333,
	1, 1.25, 1.5, 1.8, 2.2, 2.6, 3, 3.5, 4, 4.7, 5.4, 6.1,
	7, 8, 9, 10, 11.5, 13.25, 15, 1000,
}

// BinSpec is a strictly increasing set of edges e0 < e1 < ... < en.
//
// It defines n bins: bin 0 is everything below e1, bin i covers [ei, ei+1),
// and bin n-1 is open above en-1. The outermost edges only label the range.
type BinSpec struct {
	Edges []float64
}

// NewBinSpec validates edges and returns a BinSpec.
func NewBinSpec(edges []float64) (BinSpec, error) {
	if len(edges) < 2 {
		return BinSpec{}, fmt.Errorf("bin spec needs at least 2 edges, got %d", len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if !(edges[i] > edges[i-1]) {
			return BinSpec{}, fmt.Errorf("bin edges must be strictly increasing (index %d: %g after %g)", i, edges[i], edges[i-1])
		}
	}
	return BinSpec{Edges: append([]float64(nil), edges...)}, nil
}

// Bins returns the number of bins.
func (b BinSpec) Bins() int { return len(b.Edges) - 1 }

// PersistedEdges returns the interior edges labelling the persisted bins 1..n-1.
func (b BinSpec) PersistedEdges() []float64 {
	return b.Edges[1 : len(b.Edges)-1]
}

// Bin returns the bin of v. ok is false for NaN.
func (b BinSpec) Bin(v float64) (int, bool) {
	if math.IsNaN(v) {
		return 0, false
	}
	inner := b.PersistedEdges()
	return sort.Search(len(inner), func(i int) bool { return inner[i] > v }), true
}

// CountsTensor holds per-pixel bin counts for one valid time in bin-major order:
// Counts[(bin*NLat+lat)*NLon+lon].
//
// Excluded marks pixels where no member had a value (every member NaN, e.g.
// outside the source domain). It is nil when no pixel is excluded, otherwise
// it has NLat*NLon entries. Excluded pixels hold zero counts in every bin.
type CountsTensor struct {
	Bins, NLat, NLon int
	Members          int
	Counts           []int16
	Excluded         []bool
}

// NewCountsTensor allocates a zeroed tensor.
func NewCountsTensor(bins, nLat, nLon, members int) CountsTensor {
	return CountsTensor{Bins: bins, NLat: nLat, NLon: nLon, Members: members, Counts: make([]int16, bins*nLat*nLon)}
}

func (c CountsTensor) index(bin, lat, lon int) int {
	return (bin*c.NLat+lat)*c.NLon + lon
}

// At returns the count of bin at (lat, lon).
func (c CountsTensor) At(bin, lat, lon int) int16 {
	return c.Counts[c.index(bin, lat, lon)]
}

// Persisted returns bins 1..n-1 in the same bin-major layout. It shares storage with c.
func (c CountsTensor) Persisted() []int16 {
	return c.Counts[c.NLat*c.NLon:]
}

// IsExcluded reports whether the pixel at (lat, lon) had no member values.
func (c CountsTensor) IsExcluded(lat, lon int) bool {
	return c.Excluded != nil && c.Excluded[lat*c.NLon+lon]
}

// ExcludedPixels returns the number of excluded pixels.
func (c CountsTensor) ExcludedPixels() int {
	n := 0
	for _, x := range c.Excluded {
		if x {
			n++
		}
	}
	return n
}

// Exclude marks the pixel at (lat, lon) as excluded and clears its counts.
func (c *CountsTensor) Exclude(lat, lon int) {
	if c.Excluded == nil {
		c.Excluded = make([]bool, c.NLat*c.NLon)
	}
	c.Excluded[lat*c.NLon+lon] = true
	for b := 0; b < c.Bins; b++ {
		c.Counts[c.index(b, lat, lon)] = 0
	}
}

func (c CountsTensor) total(lat, lon int) int {
	total := 0
	for b := 0; b < c.Bins; b++ {
		total += int(c.At(b, lat, lon))
	}
	return total
}

// excludeEmpty marks every pixel that counted no member and returns how many it marked.
func (c *CountsTensor) excludeEmpty() int {
	n := 0
	for i := 0; i < c.NLat; i++ {
		for j := 0; j < c.NLon; j++ {
			if !c.IsExcluded(i, j) && c.total(i, j) == 0 {
				c.Exclude(i, j)
				n++
			}
		}
	}
	return n
}

// ZeroBin recovers the unpersisted lowest-bin count from the persisted bins.
// It is 0 for excluded pixels.
func (c CountsTensor) ZeroBin(lat, lon int) int {
	if c.IsExcluded(lat, lon) {
		return 0
	}
	n := c.Members
	for b := 1; b < c.Bins; b++ {
		n -= int(c.At(b, lat, lon))
	}
	return n
}

// CheckMembers verifies that every pixel's counts add up to the member count.
// Excluded pixels are skipped; a pixel with only some members counted fails.
func (c CountsTensor) CheckMembers(validTime int) error {
	for i := 0; i < c.NLat; i++ {
		for j := 0; j < c.NLon; j++ {
			if c.IsExcluded(i, j) {
				continue
			}
			if total := c.total(i, j); total != c.Members {
				return &CountInvariantError{ValidTime: validTime, Lat: i, Lon: j, Counted: total, Members: c.Members}
			}
		}
	}
	return nil
}

// RowRange is a half-open band of latitude rows [Start, End).
type RowRange struct {
	Start, End int
}

// Rows returns the number of rows in the band.
func (r RowRange) Rows() int { return r.End - r.Start }

// RowChunks yields consecutive bands of at most chunkRows rows covering nLat.
func RowChunks(nLat, chunkRows int) iter.Seq[RowRange] {
	if chunkRows < 1 {
		chunkRows = 1
	}
	return func(yield func(RowRange) bool) {
		for start := 0; start < nLat; start += chunkRows {
			if !yield(RowRange{Start: start, End: min(start+chunkRows, nLat)}) {
				return
			}
		}
	}
}

// RowChunk is the member values of one row band: Values[(m*Rows+r)*NLon+lon].
type RowChunk struct {
	Range  RowRange
	Values []float32
}

// Accumulator folds row chunks of one valid time into a CountsTensor.
// Chunks may arrive in any order; partial accumulators combine with Merge.
type Accumulator struct {
	spec    BinSpec
	members int
	counts  CountsTensor
}

// NewAccumulator creates an empty accumulator for an nLat x nLon grid.
func NewAccumulator(spec BinSpec, members, nLat, nLon int) (*Accumulator, error) {
	if members > MaxMembers {
		return nil, fmt.Errorf("%d members: %w", members, ErrTooManyMembers)
	}
	if members < 1 {
		return nil, fmt.Errorf("histogram needs at least one member, got %d", members)
	}
	return &Accumulator{
		spec:    spec,
		members: members,
		counts:  NewCountsTensor(spec.Bins(), nLat, nLon, members),
	}, nil
}

// Add bins every member value of chunk. NaN values are not counted.
func (a *Accumulator) Add(chunk RowChunk) error {
	rows, nLon := chunk.Range.Rows(), a.counts.NLon
	if chunk.Range.Start < 0 || chunk.Range.End > a.counts.NLat || rows < 0 {
		return fmt.Errorf("row range [%d, %d) outside %d rows", chunk.Range.Start, chunk.Range.End, a.counts.NLat)
	}
	if want := a.members * rows * nLon; len(chunk.Values) != want {
		return &ShapeMismatchError{Field: "chunk", Axis: "member", Need: want, Have: len(chunk.Values)}
	}
	for m := 0; m < a.members; m++ {
		for r := 0; r < rows; r++ {
			base := (m*rows + r) * nLon
			lat := chunk.Range.Start + r
			for lon := 0; lon < nLon; lon++ {
				bin, ok := a.spec.Bin(float64(chunk.Values[base+lon]))
				if ok {
					a.counts.Counts[a.counts.index(bin, lat, lon)]++
				}
			}
		}
	}
	return nil
}

// Merge adds the counts of other into a.
func (a *Accumulator) Merge(other *Accumulator) error {
	if len(other.counts.Counts) != len(a.counts.Counts) || other.members != a.members {
		return fmt.Errorf("cannot merge accumulators of different shape")
	}
	for i, v := range other.counts.Counts {
		a.counts.Counts[i] += v
	}
	return nil
}

// Finish excludes pixels where every member was NaN, verifies the per-pixel
// member invariant on the rest and returns the counts.
func (a *Accumulator) Finish(validTime int) (CountsTensor, error) {
	a.counts.excludeEmpty()
	if err := a.counts.CheckMembers(validTime); err != nil {
		return CountsTensor{}, err
	}
	return a.counts, nil
}

// Accumulate bins an in-memory ensemble field Values[(m*nLat+lat)*nLon+lon] in bands of chunkRows rows.
// The result does not depend on chunkRows.
func Accumulate(spec BinSpec, values []float32, members, nLat, nLon, chunkRows, validTime int) (CountsTensor, error) {
	if len(values) != members*nLat*nLon {
		return CountsTensor{}, &ShapeMismatchError{Field: "ensemble", Axis: "member", Need: members * nLat * nLon, Have: len(values)}
	}
	acc, err := NewAccumulator(spec, members, nLat, nLon)
	if err != nil {
		return CountsTensor{}, err
	}
	for rr := range RowChunks(nLat, chunkRows) {
		if err := acc.Add(SliceRows(values, members, nLat, nLon, rr)); err != nil {
			return CountsTensor{}, err
		}
	}
	return acc.Finish(validTime)
}

// SliceRows copies one band of rows out of a member-major field.
func SliceRows(values []float32, members, nLat, nLon int, rr RowRange) RowChunk {
	rows := rr.Rows()
	out := make([]float32, 0, members*rows*nLon)
	for m := 0; m < members; m++ {
		start := (m*nLat + rr.Start) * nLon
		out = append(out, values[start:start+rows*nLon]...)
	}
	return RowChunk{Range: rr, Values: out}
}
