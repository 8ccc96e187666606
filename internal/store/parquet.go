package store

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/seenimoa/trendbench/pkg/models"
)

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// ObservationRecord is the long-format Parquet schema of a frame: one row
// per (date, series) cell. Missing cells are not written.
type ObservationRecord struct {
	Date   int64   `parquet:"date,timestamp(millisecond)"` // Unix ms, UTC midnight
	Series string  `parquet:"series,dict"`
	Order  int32   `parquet:"order"` // column position in the frame
	Value  float64 `parquet:"value"`
}

// WriteFrameParquet writes f as long-format observation records.
func WriteFrameParquet(path string, f *models.Frame) error {
	records := make([]ObservationRecord, 0, f.Len()*f.Width())
	for c, name := range f.Columns {
		for r, ts := range f.Index {
			v := f.Values[c][r]
			if math.IsNaN(v) {
				continue
			}
			records = append(records, ObservationRecord{
				Date:   ts.UnixMilli(),
				Series: name,
				Order:  int32(c),
				Value:  v,
			})
		}
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ReadFrameParquet reads a frame written by WriteFrameParquet. Dates absent
// for a series read back as NaN.
func ReadFrameParquet(path string) (*models.Frame, error) {
	records, err := parquet.ReadFile[ObservationRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s holds no observations", models.ErrConfig, path)
	}

	type column struct {
		name  string
		order int32
	}
	colSet := make(map[string]int32)
	dateSet := make(map[int64]struct{})
	for _, rec := range records {
		colSet[rec.Series] = rec.Order
		dateSet[rec.Date] = struct{}{}
	}

	cols := make([]column, 0, len(colSet))
	for name, order := range colSet {
		cols = append(cols, column{name, order})
	}
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].order != cols[j].order {
			return cols[i].order < cols[j].order
		}
		return cols[i].name < cols[j].name
	})
	dates := make([]int64, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })

	index := make([]time.Time, len(dates))
	row := make(map[int64]int, len(dates))
	for i, d := range dates {
		index[i] = time.UnixMilli(d).UTC()
		row[d] = i
	}
	names := make([]string, len(cols))
	colPos := make(map[string]int, len(cols))
	for i, c := range cols {
		names[i] = c.name
		colPos[c.name] = i
	}

	f := models.NewFrame(index, names)
	for _, rec := range records {
		f.Values[colPos[rec.Series]][row[rec.Date]] = rec.Value
	}
	return f, nil
}
