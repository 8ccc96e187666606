package performance

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/seenimoa/trendbench/internal/store"
	"github.com/seenimoa/trendbench/pkg/models"
)

// Default column names and artifact location of the aligned table.
const (
	StrategyColumn     = "strategy_returns"
	BenchmarkColumn    = "benchmark_returns"
	DefaultAlignedPath = "data/csv/returns_strategy_vs_benchmark.csv"
)

// Align outer-joins two return series on their date index and fills every
// gap with 0. Columns take the series names; unnamed series fall back to
// StrategyColumn and BenchmarkColumn, and a name clash gets a "_2" suffix on
// the second column.
func Align(strategy, benchmark *models.Series) (*models.Frame, error) {
	if strategy == nil || benchmark == nil {
		return nil, fmt.Errorf("%w: nil return series", models.ErrConfig)
	}
	for _, s := range []*models.Series{strategy, benchmark} {
		if len(s.Index) != len(s.Values) {
			return nil, fmt.Errorf("%w: series %q has %d dates for %d values",
				models.ErrConfig, s.Name, len(s.Index), len(s.Values))
		}
		if err := models.ValidateIndex(s.Index); err != nil {
			return nil, fmt.Errorf("series %q: %w", s.Name, err)
		}
	}

	index := unionIndex(strategy.Index, benchmark.Index)
	if len(index) == 0 {
		return nil, fmt.Errorf("%w: both return series are empty", models.ErrConfig)
	}

	left, right := strategy.Name, benchmark.Name
	if left == "" {
		left = StrategyColumn
	}
	if right == "" {
		right = BenchmarkColumn
	}
	if right == left {
		right += "_2"
	}

	out := models.NewFrame(index, []string{left, right})
	fill(out.Values[0], index, strategy)
	fill(out.Values[1], index, benchmark)
	return out, nil
}

// AlignAndPersist aligns the two series and writes the result to path
// (CSV or Parquet by extension) before returning it.
func AlignAndPersist(strategy, benchmark *models.Series, path string) (*models.Frame, error) {
	aligned, err := Align(strategy, benchmark)
	if err != nil {
		return nil, err
	}
	if err := store.WriteFrame(path, aligned); err != nil {
		return nil, fmt.Errorf("persist aligned returns: %w", err)
	}
	return aligned, nil
}

// unionIndex merges two strictly increasing indexes.
func unionIndex(a, b []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(a)+len(b))
	out := make([]time.Time, 0, len(a)+len(b))
	for _, idx := range [][]time.Time{a, b} {
		for _, t := range idx {
			key := t.UTC()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// fill writes s onto dst positioned by index; dates absent from s and NaN
// values become 0.
func fill(dst []float64, index []time.Time, s *models.Series) {
	pos := make(map[time.Time]int, len(index))
	for i, t := range index {
		pos[t] = i
	}
	for i := range dst {
		dst[i] = 0
	}
	for i, t := range s.Index {
		if v := s.Values[i]; !math.IsNaN(v) {
			dst[pos[t.UTC()]] = v
		}
	}
}
