package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/seenimoa/trendbench/pkg/models"
)

// dateHeader names the leading index column.
const dateHeader = "date"

// WriteFrameCSV writes f as a comma-delimited table: a header row of
// "date" followed by the column names, then one row per index date.
// Floats use their shortest round-trip form; missing cells are written as
// an empty field.
func WriteFrameCSV(path string, f *models.Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := EncodeCSV(file, f); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return file.Close()
}

// EncodeCSV writes f to w in the WriteFrameCSV format.
func EncodeCSV(w io.Writer, f *models.Frame) error {
	cw := csv.NewWriter(w)
	header := append([]string{dateHeader}, f.Columns...)
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for r, ts := range f.Index {
		record[0] = ts.Format(models.DateLayout)
		for c := range f.Columns {
			record[c+1] = formatFloat(f.Values[c][r])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadFrameCSV reads a table written by WriteFrameCSV. The first column must
// hold dates; an unparsable date is an ErrIndexType error.
func ReadFrameCSV(path string) (*models.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	f, err := DecodeCSV(file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return f, nil
}

// DecodeCSV parses a date-led delimited table. Empty cells, "NaN" and "-"
// read as missing.
func DecodeCSV(r io.Reader) (*models.Frame, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty table", models.ErrConfig)
		}
		return nil, err
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("%w: table needs a date column and at least one value column", models.ErrConfig)
	}

	f := &models.Frame{
		Columns: append([]string(nil), header[1:]...),
		Values:  make([][]float64, len(header)-1),
	}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		ts, err := parseDate(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %q is not a date", models.ErrIndexType, line, rec[0])
		}
		f.Index = append(f.Index, ts)
		for c := range f.Columns {
			v, err := parseFloat(rec[c+1])
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, f.Columns[c], err)
			}
			f.Values[c] = append(f.Values[c], v)
		}
	}
	return f, nil
}

// parseDate accepts plain dates and the timestamp forms other tools emit
// for a daily index.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{models.DateLayout, "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", s)
}

func parseFloat(s string) (float64, error) {
	switch s = strings.TrimSpace(s); s {
	case "", "NaN", "nan", "-":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
