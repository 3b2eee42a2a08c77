package domain

import "math"

const (
	metresToMillimetres = 1000
	secondsPerHour      = 3600
)

// NormConstants are the fixed historical statistics of one field.
type NormConstants struct {
	Mean float64 `yaml:"mean" json:"mean"`
	Std  float64 `yaml:"std" json:"std"`
	Max  float64 `yaml:"max" json:"max"`
	Min  float64 `yaml:"min" json:"min"`
}

// Normalizer converts reduced fields into model scale using the field table.
type Normalizer struct {
	constants   map[string]NormConstants
	windowHours float64
}

// NewNormalizer creates a Normalizer. windowHours is the accumulation window of the product.
func NewNormalizer(constants map[string]NormConstants, windowHours float64) *Normalizer {
	return &Normalizer{constants: constants, windowHours: windowHours}
}

// WindowHours returns the accumulation window used for unit conversion.
func (n *Normalizer) WindowHours() float64 {
	return n.windowHours
}

// Normalize converts units, clamps non-negative fields and rescales per the field's policy.
// The input pair is not modified.
func (n *Normalizer) Normalize(field FieldDescriptor, pair FieldPair) (NormalizedField, error) {
	desc, err := LookupField(field.Name)
	if err != nil {
		return NormalizedField{}, err
	}

	scale, offset, err := n.rescale(desc)
	if err != nil {
		return NormalizedField{}, err
	}
	convert := n.conversionFactor(desc)

	out := NewFieldPair(pair.Len())
	for i := range pair.Mean {
		m := pair.Mean[i] * convert
		s := pair.Std[i] * convert
		if desc.NonNegative {
			m = math.Max(m, 0)
			s = math.Max(s, 0)
		}
		if desc.Policy == NormLog {
			m = logPrecip(m)
			s = logPrecip(s)
		} else {
			m = (m - offset) / scale
			s = s / scale
		}
		out.Mean[i] = m
		out.Std[i] = s
	}
	return NormalizedField{Field: desc, Pair: out}, nil
}

// conversionFactor returns the multiplier from accumulation-window totals to rates.
func (n *Normalizer) conversionFactor(f FieldDescriptor) float64 {
	switch f.Conversion {
	case ConvertMetresToMMPerHour:
		return metresToMillimetres / n.windowHours
	case ConvertJoulesToWatts:
		return 1 / (n.windowHours * secondsPerHour)
	default:
		return 1
	}
}

// rescale returns the divisor and the mean-channel offset of a linear policy.
func (n *Normalizer) rescale(f FieldDescriptor) (scale, offset float64, err error) {
	switch f.Policy {
	case NormLog, NormIdentity:
		return 1, 0, nil
	}
	c, ok := n.constants[f.Name]
	if !ok {
		return 0, 0, &UnknownFieldError{Name: f.Name}
	}
	switch f.Policy {
	case NormMeanCentered:
		return c.Std, c.Mean, nil
	case NormMaxScaled:
		return c.Max, 0, nil
	case NormSymmetric:
		return math.Max(c.Max, -c.Min), 0, nil
	default:
		return 0, 0, &UnknownFieldError{Name: f.Name}
	}
}

// Denormalize maps a model-scale value of field back to physical units.
// Only log-transformed precipitation rates have an inverse.
func (n *Normalizer) Denormalize(field FieldDescriptor, v float64) (float64, error) {
	desc, err := LookupField(field.Name)
	if err != nil {
		return 0, err
	}
	if desc.Policy != NormLog {
		return 0, ErrNotInvertible
	}
	return expPrecip(v), nil
}

// logPrecip compresses a precipitation rate in mm/h.
func logPrecip(x float64) float64 {
	return math.Log10(1 + x)
}

// expPrecip is the exact inverse of logPrecip.
func expPrecip(y float64) float64 {
	return math.Pow(10, y) - 1
}
