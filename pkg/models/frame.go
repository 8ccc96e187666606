package models

import (
	"fmt"
	"math"
	"time"
)

// ════════════════════════════════════════════════════════════════════
// Sentinel errors
// ════════════════════════════════════════════════════════════════════

// ErrConfig is returned for caller-supplied input that can never produce a
// meaningful result: empty panels, non-chronological indexes, window lengths
// of zero or less, invalid strategy parameters.
var ErrConfig = fmt.Errorf("configuration error")

// ErrIndexType is returned when a table index holds values that are not
// dates and a date-based operation is requested.
var ErrIndexType = fmt.Errorf("index is not date-typed")

// DateLayout is the canonical textual form of an index date.
const DateLayout = "2006-01-02"

// ════════════════════════════════════════════════════════════════════
// Frame: date-indexed table, one column per instrument or series
// ════════════════════════════════════════════════════════════════════

// Frame is a date-indexed table of float64 values. Values are stored
// column-major: Values[c][r] is column c on Index[r]. Missing cells are NaN.
//
// A Frame is used for the price panel, the signal matrix, the position-size
// matrix and the aligned strategy-vs-benchmark return table.
type Frame struct {
	Index   []time.Time
	Columns []string
	Values  [][]float64
}

// NewFrame allocates a NaN-filled frame with the given index and columns.
// The index and column slices are copied.
func NewFrame(index []time.Time, columns []string) *Frame {
	f := &Frame{
		Index:   append([]time.Time(nil), index...),
		Columns: append([]string(nil), columns...),
		Values:  make([][]float64, len(columns)),
	}
	for c := range f.Values {
		col := make([]float64, len(index))
		for r := range col {
			col[r] = math.NaN()
		}
		f.Values[c] = col
	}
	return f
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Index)
}

// Width returns the number of columns.
func (f *Frame) Width() int {
	if f == nil {
		return 0
	}
	return len(f.Columns)
}

// ColIndex returns the position of the named column, or -1.
func (f *Frame) ColIndex(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Col returns the values of the named column. The slice is shared with the
// frame; callers that mutate it must Clone first.
func (f *Frame) Col(name string) ([]float64, bool) {
	i := f.ColIndex(name)
	if i < 0 {
		return nil, false
	}
	return f.Values[i], true
}

// Row returns a copy of row r across all columns.
func (f *Frame) Row(r int) []float64 {
	out := make([]float64, len(f.Columns))
	for c := range f.Columns {
		out[c] = f.Values[c][r]
	}
	return out
}

// Series returns the named column as a standalone Series.
func (f *Frame) Series(name string) (*Series, bool) {
	vals, ok := f.Col(name)
	if !ok {
		return nil, false
	}
	return &Series{
		Name:   name,
		Index:  append([]time.Time(nil), f.Index...),
		Values: append([]float64(nil), vals...),
	}, true
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	out := &Frame{
		Index:   append([]time.Time(nil), f.Index...),
		Columns: append([]string(nil), f.Columns...),
		Values:  make([][]float64, len(f.Values)),
	}
	for c, col := range f.Values {
		out.Values[c] = append([]float64(nil), col...)
	}
	return out
}

// SliceFrom returns a copy of the frame without its first n rows. A
// negative n is treated as zero; n past the end yields an empty frame.
func (f *Frame) SliceFrom(n int) *Frame {
	if n < 0 {
		n = 0
	}
	if n > f.Len() {
		n = f.Len()
	}
	out := &Frame{
		Index:   append([]time.Time(nil), f.Index[n:]...),
		Columns: append([]string(nil), f.Columns...),
		Values:  make([][]float64, len(f.Values)),
	}
	for c, col := range f.Values {
		out.Values[c] = append([]float64(nil), col[n:]...)
	}
	return out
}

// Validate checks the panel invariants: at least one row and one column,
// a strictly increasing date index, consistent column lengths and no column
// that is entirely missing.
func (f *Frame) Validate() error {
	if f == nil || len(f.Columns) == 0 {
		return fmt.Errorf("%w: frame has no columns", ErrConfig)
	}
	if len(f.Index) == 0 {
		return fmt.Errorf("%w: frame has no rows", ErrConfig)
	}
	if len(f.Values) != len(f.Columns) {
		return fmt.Errorf("%w: %d value columns for %d column names", ErrConfig, len(f.Values), len(f.Columns))
	}
	if err := ValidateIndex(f.Index); err != nil {
		return err
	}
	for c, col := range f.Values {
		if len(col) != len(f.Index) {
			return fmt.Errorf("%w: column %q has %d rows, index has %d", ErrConfig, f.Columns[c], len(col), len(f.Index))
		}
		if allNaN(col) {
			return fmt.Errorf("%w: column %q has no data", ErrConfig, f.Columns[c])
		}
	}
	return nil
}

// ValidateIndex checks that idx holds real dates in strictly increasing
// order.
func ValidateIndex(idx []time.Time) error {
	for i, t := range idx {
		if t.IsZero() {
			return fmt.Errorf("%w: row %d has no date", ErrIndexType, i)
		}
		if i > 0 && !t.After(idx[i-1]) {
			return fmt.Errorf("%w: index not strictly increasing at %s", ErrConfig, t.Format(DateLayout))
		}
	}
	return nil
}

func allNaN(xs []float64) bool {
	for _, x := range xs {
		if !math.IsNaN(x) {
			return false
		}
	}
	return true
}

// ════════════════════════════════════════════════════════════════════
// Series: one date-indexed numeric sequence
// ════════════════════════════════════════════════════════════════════

// Series is a named date-indexed sequence, typically daily fractional
// returns.
type Series struct {
	Name   string
	Index  []time.Time
	Values []float64
}

// Len returns the number of observations.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Values)
}

// Clone returns a deep copy of the series.
func (s *Series) Clone() *Series {
	return &Series{
		Name:   s.Name,
		Index:  append([]time.Time(nil), s.Index...),
		Values: append([]float64(nil), s.Values...),
	}
}

// Last returns the final value, or NaN for an empty series.
func (s *Series) Last() float64 {
	if s.Len() == 0 {
		return math.NaN()
	}
	return s.Values[len(s.Values)-1]
}
