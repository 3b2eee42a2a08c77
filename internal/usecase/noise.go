package usecase

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"
)

// Noise is one member's latent input in row-major order.
type Noise struct {
	Shape []int
	Data  []float32
}

// NoiseGenerator draws standard-normal latent inputs. It is safe for concurrent use.
type NoiseGenerator struct {
	dist distuv.Normal
}

// NewNoiseGenerator creates a generator of N(0, 1) samples.
func NewNoiseGenerator() *NoiseGenerator {
	return &NoiseGenerator{dist: distuv.Normal{Mu: 0, Sigma: 1}}
}

// Sample returns a fresh noise array of the given shape.
func (g *NoiseGenerator) Sample(shape ...int) (Noise, error) {
	if len(shape) == 0 {
		return Noise{}, fmt.Errorf("noise shape must have at least one axis")
	}
	n := 1
	for i, d := range shape {
		if d < 1 {
			return Noise{}, fmt.Errorf("noise axis %d has length %d", i, d)
		}
		n *= d
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(g.dist.Rand())
	}
	return Noise{Shape: append([]int(nil), shape...), Data: data}, nil
}
