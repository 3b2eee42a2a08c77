package domain

import "fmt"

// EnsembleSnapshot holds raw values of one field for one initialization,
// laid out member-major: Values[(m*Steps+s)*Points+p].
type EnsembleSnapshot struct {
	Field   string
	Members int
	Steps   int
	Points  int
	Values  []float32
}

// NewEnsembleSnapshot allocates a zeroed snapshot.
func NewEnsembleSnapshot(field string, members, steps, points int) EnsembleSnapshot {
	return EnsembleSnapshot{
		Field:   field,
		Members: members,
		Steps:   steps,
		Points:  points,
		Values:  make([]float32, members*steps*points),
	}
}

// Validate checks that Values matches the declared axes.
func (s EnsembleSnapshot) Validate() error {
	if want := s.Members * s.Steps * s.Points; len(s.Values) != want {
		return fmt.Errorf("snapshot %s: %d values for %d x %d x %d axes", s.Field, len(s.Values), s.Members, s.Steps, s.Points)
	}
	return nil
}

// At returns the value for member m, sub-step s, point p.
func (s EnsembleSnapshot) At(m, step, p int) float64 {
	return float64(s.Values[(m*s.Steps+step)*s.Points+p])
}

// Set stores a value for member m, sub-step s, point p.
func (s EnsembleSnapshot) Set(m, step, p int, v float32) {
	s.Values[(m*s.Steps+step)*s.Points+p] = v
}

// FieldPair is an ensemble mean and standard deviation over one spatial layout.
type FieldPair struct {
	Mean []float64
	Std  []float64
}

// NewFieldPair allocates a zeroed pair of n values.
func NewFieldPair(n int) FieldPair {
	return FieldPair{Mean: make([]float64, n), Std: make([]float64, n)}
}

// Len returns the spatial size of the pair.
func (p FieldPair) Len() int { return len(p.Mean) }

// ReducedField is the valid-time series of a field on the regional grid.
type ReducedField struct {
	Field      FieldDescriptor
	Grid       RegularGrid
	ValidTimes []FieldPair
}

// NormalizedField is one valid time of a field rescaled for the model.
type NormalizedField struct {
	Field FieldDescriptor
	Pair  FieldPair
}
