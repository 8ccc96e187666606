package backtest

import (
	"math"

	"github.com/seenimoa/trendbench/pkg/models"
)

// MaxGrossLeverage is the largest total weight a position-size row may carry.
const MaxGrossLeverage = 1.0

// NormalizeRows returns a copy of weights in which every row whose sum
// exceeds MaxGrossLeverage is scaled down proportionally so that it sums to
// exactly MaxGrossLeverage. Rows at or below the cap are left unmodified.
// NaN cells are ignored in the sum and stay NaN.
func NormalizeRows(weights *models.Frame) *models.Frame {
	out := weights.Clone()
	for r, sum := range GrossLeverage(weights) {
		if sum <= MaxGrossLeverage {
			continue
		}
		scale := MaxGrossLeverage / sum
		for c := range out.Values {
			out.Values[c][r] *= scale
		}
	}
	return out
}

// GrossLeverage returns the NaN-skipping row sums of weights.
func GrossLeverage(weights *models.Frame) []float64 {
	out := make([]float64, weights.Len())
	for c := range weights.Values {
		for r, v := range weights.Values[c] {
			if !math.IsNaN(v) {
				out[r] += v
			}
		}
	}
	return out
}
