package domain

import "fmt"

// ModelInput is a channel-last tensor: Data[p*Channels+c].
type ModelInput struct {
	Points   int
	Channels int
	Data     []float32
}

// At returns channel c of point p.
func (m ModelInput) At(p, c int) float32 {
	return m.Data[p*m.Channels+c]
}

// BuildModelInput concatenates each field's mean and spread channels in the given order.
func BuildModelInput(fields []NormalizedField) (ModelInput, error) {
	if len(fields) == 0 {
		return ModelInput{}, fmt.Errorf("no fields to concatenate")
	}
	points := fields[0].Pair.Len()
	for _, f := range fields[1:] {
		if f.Pair.Len() != points {
			return ModelInput{}, &ShapeMismatchError{Field: f.Field.Name, Axis: "point", Need: points, Have: f.Pair.Len()}
		}
	}

	channels := ChannelCount(len(fields))
	in := ModelInput{Points: points, Channels: channels, Data: make([]float32, points*channels)}
	for k, f := range fields {
		for p := 0; p < points; p++ {
			in.Data[p*channels+2*k] = float32(f.Pair.Mean[p])
			in.Data[p*channels+2*k+1] = float32(f.Pair.Std[p])
		}
	}
	return in, nil
}

// AppendChannels returns a copy of m with extra per-point channels appended.
// Each extra slice must hold one value per point.
func (m ModelInput) AppendChannels(extra ...[]float32) (ModelInput, error) {
	for i, ch := range extra {
		if len(ch) != m.Points {
			return ModelInput{}, &ShapeMismatchError{Field: fmt.Sprintf("constant channel %d", i), Axis: "point", Need: m.Points, Have: len(ch)}
		}
	}
	channels := m.Channels + len(extra)
	out := ModelInput{Points: m.Points, Channels: channels, Data: make([]float32, m.Points*channels)}
	for p := 0; p < m.Points; p++ {
		copy(out.Data[p*channels:], m.Data[p*m.Channels:(p+1)*m.Channels])
		for i, ch := range extra {
			out.Data[p*channels+m.Channels+i] = ch[p]
		}
	}
	return out, nil
}
