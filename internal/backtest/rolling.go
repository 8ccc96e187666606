package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ════════════════════════════════════════════════════════════════════
// Trailing-window helpers
//
// A window value is NaN until `window` observations are available or when
// any observation inside the window is NaN. Windows end at, and include,
// the current row.
// ════════════════════════════════════════════════════════════════════

// rollingMean returns the trailing mean of xs over window rows.
func rollingMean(xs []float64, window int) []float64 {
	out := nanSlice(len(xs))
	for i := window - 1; i < len(xs); i++ {
		w := xs[i-window+1 : i+1]
		if hasNaN(w) {
			continue
		}
		if constant(w) {
			out[i] = w[0]
			continue
		}
		out[i] = stat.Mean(w, nil)
	}
	return out
}

// rollingStd returns the trailing sample standard deviation of xs over
// window rows. A window of identical values yields exactly 0.
func rollingStd(xs []float64, window int) []float64 {
	out := nanSlice(len(xs))
	if window < 2 {
		return out
	}
	for i := window - 1; i < len(xs); i++ {
		w := xs[i-window+1 : i+1]
		if hasNaN(w) {
			continue
		}
		out[i] = sampleStdDev(w)
	}
	return out
}

// rollingMaxBefore returns, for each row, the maximum of the window rows
// strictly before it.
func rollingMaxBefore(xs []float64, window int) []float64 {
	out := nanSlice(len(xs))
	for i := window; i < len(xs); i++ {
		w := xs[i-window : i]
		if hasNaN(w) {
			continue
		}
		m := w[0]
		for _, v := range w[1:] {
			if v > m {
				m = v
			}
		}
		out[i] = m
	}
	return out
}

// pctChange returns simple period-over-period returns; the first row is NaN.
func pctChange(xs []float64) []float64 {
	out := nanSlice(len(xs))
	for i := 1; i < len(xs); i++ {
		out[i] = xs[i]/xs[i-1] - 1
	}
	return out
}

// shift1 lags xs by one row, leaving NaN in the first row.
func shift1(xs []float64) []float64 {
	out := nanSlice(len(xs))
	if len(xs) > 1 {
		copy(out[1:], xs[:len(xs)-1])
	}
	return out
}

// sampleStdDev is the n-1 standard deviation, exactly 0 for constant input.
func sampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	if constant(xs) {
		return 0
	}
	return stat.StdDev(xs, nil)
}

func constant(xs []float64) bool {
	for _, v := range xs[1:] {
		if v != xs[0] {
			return false
		}
	}
	return true
}

func hasNaN(xs []float64) bool {
	for _, v := range xs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
