package models

import (
	"math"
	"strings"
)

// SincePrefix starts the label of the full-history column of a metric table.
const SincePrefix = "Since "

// MetricTable holds one metric evaluated for several series over several
// named horizons. Rows are series names, columns are horizon labels, and
// Cells[r][c] is NaN where the history is too short for the horizon.
type MetricTable struct {
	Metric  string      `json:"metric"`
	Rows    []string    `json:"rows"`
	Columns []string    `json:"columns"`
	Cells   [][]float64 `json:"cells"`
}

// Get returns the cell for the given row and column labels.
func (t *MetricTable) Get(row, col string) (float64, bool) {
	r, c := indexOf(t.Rows, row), indexOf(t.Columns, col)
	if r < 0 || c < 0 {
		return math.NaN(), false
	}
	return t.Cells[r][c], true
}

// SinceColumn returns the label of the full-history column, if any.
func (t *MetricTable) SinceColumn() (string, bool) {
	for _, c := range t.Columns {
		if IsSinceLabel(c) {
			return c, true
		}
	}
	return "", false
}

// IsSinceLabel reports whether a column label denotes the full-history
// window.
func IsSinceLabel(label string) bool {
	return strings.HasPrefix(label, SincePrefix)
}

func indexOf(xs []string, s string) int {
	for i, x := range xs {
		if x == s {
			return i
		}
	}
	return -1
}
