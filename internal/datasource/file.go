package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seenimoa/trendbench/internal/store"
	"github.com/seenimoa/trendbench/pkg/models"
	"github.com/seenimoa/trendbench/pkg/utils"
)

// FileSource serves price panels from a wide CSV or Parquet file on disk:
// a date column followed by one column per ticker. The file already holds a
// single price field, so the requested field is ignored.
type FileSource struct {
	Path string
	log  *slog.Logger
}

// NewFileSource creates a source reading path. A nil logger uses
// slog.Default().
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{Path: path, log: logger}
}

// Name returns the data source name.
func (s *FileSource) Name() string { return "file:" + s.Path }

// GetPanel returns the requested columns restricted to [from, to). An
// empty ticker list selects every column; zero bounds are open.
func (s *FileSource) GetPanel(ctx context.Context, tickers []string, from, to time.Time, _ models.PriceField) (*models.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := store.ReadFrame(s.Path)
	if err != nil {
		return nil, err
	}

	cols := all.Columns
	if len(tickers) > 0 {
		cols = utils.NormalizeTickers(tickers)
	}

	var rows []int
	for i, ts := range all.Index {
		if (!from.IsZero() && ts.Before(from)) || (!to.IsZero() && !ts.Before(to)) {
			continue
		}
		rows = append(rows, i)
	}
	index := make([]time.Time, len(rows))
	for k, r := range rows {
		index[k] = all.Index[r]
	}

	panel := models.NewFrame(index, cols)
	for c, name := range cols {
		src := all.ColIndex(name)
		if src < 0 {
			return nil, fmt.Errorf("%w: %s not in %s", ErrTickerNotFound, name, s.Path)
		}
		for k, r := range rows {
			panel.Values[c][k] = all.Values[src][r]
		}
	}
	s.log.Debug("loaded price panel", "path", s.Path, "tickers", panel.Width(), "rows", panel.Len())
	return panel, nil
}
