package usecase

import (
	"context"
	"fmt"
	"math"

	"go.ngs.io/forecast-prep/internal/domain"
)

// SpreadGenerator is a baseline Generator: each member is the normalized ensemble
// mean precipitation perturbed by the noise times the normalized spread.
type SpreadGenerator struct {
	meanChannel int
}

// NewSpreadGenerator creates a baseline generator over the "tp" channels of domain.Fields.
func NewSpreadGenerator() *SpreadGenerator {
	for k, f := range domain.Fields {
		if f.Name == "tp" {
			return &SpreadGenerator{meanChannel: 2 * k}
		}
	}
	panic("precipitation field missing from the field table")
}

// Generate implements Generator.
func (g *SpreadGenerator) Generate(ctx context.Context, input domain.ModelInput, noise Noise) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if input.Channels < g.meanChannel+2 {
		return nil, fmt.Errorf("model input has %d channels, need at least %d", input.Channels, g.meanChannel+2)
	}
	if len(noise.Data) == 0 {
		return nil, fmt.Errorf("empty noise")
	}
	out := make([]float32, input.Points)
	for p := range out {
		mean := float64(input.At(p, g.meanChannel))
		spread := float64(input.At(p, g.meanChannel+1))
		z := float64(noise.Data[p%len(noise.Data)])
		// Normalized zero is zero precipitation.
		out[p] = float32(math.Max(mean+z*spread, 0))
	}
	return out, nil
}
