package models

import (
	"errors"
	"math"
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func sampleFrame() *Frame {
	f := NewFrame([]time.Time{day(2), day(3), day(4)}, []string{"AAPL", "MSFT"})
	f.Values[0] = []float64{1, 2, 3}
	f.Values[1] = []float64{10, math.NaN(), 30}
	return f
}

// ── Frame ──

func TestNewFrameIsNaNFilled(t *testing.T) {
	idx := []time.Time{day(2), day(3)}
	cols := []string{"A"}
	f := NewFrame(idx, cols)
	if f.Len() != 2 || f.Width() != 1 {
		t.Fatalf("shape: got %dx%d, want 2x1", f.Len(), f.Width())
	}
	for r, v := range f.Values[0] {
		if !math.IsNaN(v) {
			t.Errorf("Values[0][%d]: got %v, want NaN", r, v)
		}
	}
	idx[0] = day(9)
	cols[0] = "Z"
	if !f.Index[0].Equal(day(2)) || f.Columns[0] != "A" {
		t.Error("NewFrame should copy index and columns")
	}
}

func TestFrameNilSafeSizes(t *testing.T) {
	var f *Frame
	if f.Len() != 0 || f.Width() != 0 {
		t.Errorf("nil frame: got %dx%d, want 0x0", f.Len(), f.Width())
	}
	if err := f.Validate(); !errors.Is(err, ErrConfig) {
		t.Errorf("nil frame Validate: got %v, want ErrConfig", err)
	}
}

func TestFrameLookups(t *testing.T) {
	f := sampleFrame()
	if got := f.ColIndex("MSFT"); got != 1 {
		t.Errorf("ColIndex(MSFT): got %d, want 1", got)
	}
	if got := f.ColIndex("GOOG"); got != -1 {
		t.Errorf("ColIndex(GOOG): got %d, want -1", got)
	}
	if col, ok := f.Col("AAPL"); !ok || col[2] != 3 {
		t.Errorf("Col(AAPL): got %v, %v", col, ok)
	}
	row := f.Row(1)
	if row[0] != 2 || !math.IsNaN(row[1]) {
		t.Errorf("Row(1): got %v, want [2 NaN]", row)
	}
	s, ok := f.Series("MSFT")
	if !ok || s.Name != "MSFT" || s.Len() != 3 || s.Last() != 30 {
		t.Errorf("Series(MSFT): got %+v, %v", s, ok)
	}
	s.Values[0] = -1
	if f.Values[1][0] != 10 {
		t.Error("Series should copy values")
	}
	if _, ok := f.Series("GOOG"); ok {
		t.Error("Series(GOOG) should not be found")
	}
}

func TestFrameCloneIsDeep(t *testing.T) {
	f := sampleFrame()
	c := f.Clone()
	c.Values[0][0] = 99
	c.Index[0] = day(1)
	c.Columns[0] = "X"
	if f.Values[0][0] != 1 || !f.Index[0].Equal(day(2)) || f.Columns[0] != "AAPL" {
		t.Error("Clone shares storage with the original")
	}
}

func TestFrameSliceFrom(t *testing.T) {
	f := sampleFrame()
	tests := []struct {
		n, wantLen int
	}{
		{-1, 3},
		{0, 3},
		{2, 1},
		{3, 0},
		{10, 0},
	}
	for _, tc := range tests {
		got := f.SliceFrom(tc.n)
		if got.Len() != tc.wantLen || got.Width() != 2 {
			t.Errorf("SliceFrom(%d): got %dx%d, want %dx2", tc.n, got.Len(), got.Width(), tc.wantLen)
		}
		for c := range got.Values {
			if len(got.Values[c]) != tc.wantLen {
				t.Errorf("SliceFrom(%d): column %d has %d rows", tc.n, c, len(got.Values[c]))
			}
		}
	}
	s := f.SliceFrom(2)
	if !s.Index[0].Equal(day(4)) || s.Values[1][0] != 30 {
		t.Errorf("SliceFrom(2): got %v %v", s.Index, s.Values)
	}
	s.Values[0][0] = 0
	if f.Values[0][2] != 3 {
		t.Error("SliceFrom should copy values")
	}
}

func TestFrameValidate(t *testing.T) {
	if err := sampleFrame().Validate(); err != nil {
		t.Fatalf("valid frame: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Frame)
		wantErr error
	}{
		{"no columns", func(f *Frame) { f.Columns, f.Values = nil, nil }, ErrConfig},
		{"no rows", func(f *Frame) { f.Index = nil; f.Values = [][]float64{{}, {}} }, ErrConfig},
		{"value columns mismatch", func(f *Frame) { f.Values = f.Values[:1] }, ErrConfig},
		{"short column", func(f *Frame) { f.Values[1] = f.Values[1][:2] }, ErrConfig},
		{"all NaN column", func(f *Frame) { f.Values[1] = []float64{math.NaN(), math.NaN(), math.NaN()} }, ErrConfig},
		{"duplicate date", func(f *Frame) { f.Index[2] = day(3) }, ErrConfig},
		{"descending dates", func(f *Frame) { f.Index[0] = day(5) }, ErrConfig},
		{"zero date", func(f *Frame) { f.Index[1] = time.Time{} }, ErrIndexType},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := sampleFrame()
			tc.mutate(f)
			if err := f.Validate(); !errors.Is(err, tc.wantErr) {
				t.Errorf("Validate: got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

// ── Series ──

func TestSeriesCloneAndLast(t *testing.T) {
	s := &Series{Name: "r", Index: []time.Time{day(2), day(3)}, Values: []float64{0.1, 0.2}}
	c := s.Clone()
	c.Values[1] = 9
	if s.Last() != 0.2 {
		t.Errorf("Last: got %v, want 0.2", s.Last())
	}
	var empty *Series
	if empty.Len() != 0 || !math.IsNaN(empty.Last()) {
		t.Error("nil series should have length 0 and NaN Last")
	}
}

// ── MetricTable ──

func TestMetricTableGet(t *testing.T) {
	tbl := &MetricTable{
		Metric:  "Gross Returns",
		Rows:    []string{"strategy_returns", "benchmark_returns"},
		Columns: []string{"1 Mo", "Since 2024-01-02"},
		Cells:   [][]float64{{1, 2}, {3, math.NaN()}},
	}
	if v, ok := tbl.Get("benchmark_returns", "1 Mo"); !ok || v != 3 {
		t.Errorf("Get: got %v, %v; want 3, true", v, ok)
	}
	if v, ok := tbl.Get("benchmark_returns", "Since 2024-01-02"); !ok || !math.IsNaN(v) {
		t.Errorf("Get NaN cell: got %v, %v", v, ok)
	}
	if v, ok := tbl.Get("nope", "1 Mo"); ok || !math.IsNaN(v) {
		t.Errorf("Get unknown row: got %v, %v", v, ok)
	}
	since, ok := tbl.SinceColumn()
	if !ok || since != "Since 2024-01-02" {
		t.Errorf("SinceColumn: got %q, %v", since, ok)
	}
	if _, ok := (&MetricTable{Columns: []string{"1 Mo"}}).SinceColumn(); ok {
		t.Error("SinceColumn should be absent")
	}
	if IsSinceLabel("YTD") || !IsSinceLabel(SincePrefix+"2020-01-01") {
		t.Error("IsSinceLabel misclassifies labels")
	}
}

// ── Prices ──

func TestParsePriceField(t *testing.T) {
	tests := []struct {
		in   string
		want PriceField
	}{
		{"Open", FieldOpen},
		{" close ", FieldClose},
		{"adj_close", FieldAdjClose},
		{"Adj Close", FieldAdjClose},
		{"VOLUME", FieldVolume},
	}
	for _, tc := range tests {
		got, err := ParsePriceField(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParsePriceField(%q): got %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
	if _, err := ParsePriceField("vwap"); !errors.Is(err, ErrConfig) {
		t.Errorf("ParsePriceField(vwap): got %v, want ErrConfig", err)
	}
}

func TestPriceFieldValue(t *testing.T) {
	bar := OHLCV{Open: 1, High: 2, Low: 0.5, Close: 1.5, AdjClose: 1.4, Volume: 100}
	tests := []struct {
		f    PriceField
		want float64
	}{
		{FieldOpen, 1},
		{FieldHigh, 2},
		{FieldLow, 0.5},
		{FieldClose, 1.5},
		{FieldAdjClose, 1.4},
		{FieldVolume, 100},
	}
	for _, tc := range tests {
		if got := tc.f.Value(bar); got != tc.want {
			t.Errorf("%s.Value: got %v, want %v", tc.f, got, tc.want)
		}
	}
}
