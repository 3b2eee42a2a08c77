//go:build debug

package domain

import (
	"fmt"
	"math"
)

// assertNonNegative panics when a standard deviation is negative.
// NaN marks excluded pixels and passes.
func assertNonNegative(field string, std []float64) {
	for i, v := range std {
		if v < 0 && !math.IsNaN(v) {
			panic(fmt.Sprintf("negative standard deviation %g for %s at index %d", v, field, i))
		}
	}
}
