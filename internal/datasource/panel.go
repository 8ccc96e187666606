package datasource

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/trendbench/pkg/models"
	"github.com/seenimoa/trendbench/pkg/utils"
)

// Compile-time interface checks.
var (
	_ PriceProvider = (*YFinance)(nil)
	_ PriceProvider = (*FileSource)(nil)
)

// GetPanel fetches every ticker concurrently, at most the configured
// concurrency at a time, and outer-joins the chosen field into one panel.
// Tickers Yahoo does not know or returns no prices for are dropped with a
// warning; the call fails only when no ticker yields data.
func (y *YFinance) GetPanel(ctx context.Context, tickers []string, from, to time.Time, field models.PriceField) (*models.Frame, error) {
	tickers = utils.NormalizeTickers(tickers)
	if len(tickers) == 0 {
		return nil, fmt.Errorf("%w: no tickers requested", models.ErrConfig)
	}

	results := make([][]models.OHLCV, len(tickers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(y.concurrency)
	for i, ticker := range tickers {
		i, ticker := i, ticker
		g.Go(func() error {
			bars, err := y.GetHistoricalData(gctx, ticker, from, to, models.Timeframe1Day)
			if errors.Is(err, ErrTickerNotFound) {
				y.log.Warn("skipping ticker", "ticker", ticker, "error", err)
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s: %w", ticker, err)
			}
			results[i] = bars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	series := make(map[string][]models.OHLCV, len(tickers))
	for i, ticker := range tickers {
		if results[i] != nil {
			series[ticker] = results[i]
		}
	}
	panel, dropped := BuildPanel(tickers, series, field)
	for _, t := range dropped {
		y.log.Warn("no usable prices", "ticker", t, "field", field)
	}
	if panel.Width() == 0 {
		return nil, fmt.Errorf("%w for %v", ErrNoData, tickers)
	}
	y.log.Info("fetched price panel",
		"source", y.Name(),
		"tickers", panel.Width(),
		"rows", panel.Len(),
		"field", field,
	)
	return panel, nil
}

// BuildPanel outer-joins per-ticker bars on date. Columns follow tickers;
// a ticker with no bars, or only missing values for field, is left out and
// reported in dropped. Duplicate dates within one ticker keep the last bar.
func BuildPanel(tickers []string, bars map[string][]models.OHLCV, field models.PriceField) (panel *models.Frame, dropped []string) {
	dateSet := make(map[time.Time]struct{})
	var kept []string
	for _, t := range tickers {
		usable := false
		for _, b := range bars[t] {
			if !math.IsNaN(field.Value(b)) {
				usable = true
				dateSet[utils.DateOnly(b.Timestamp)] = struct{}{}
			}
		}
		if usable {
			kept = append(kept, t)
		} else {
			dropped = append(dropped, t)
		}
	}

	index := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		index = append(index, d)
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Before(index[j]) })
	row := make(map[time.Time]int, len(index))
	for i, d := range index {
		row[d] = i
	}

	panel = models.NewFrame(index, kept)
	for c, t := range kept {
		for _, b := range bars[t] {
			if v := field.Value(b); !math.IsNaN(v) {
				panel.Values[c][row[utils.DateOnly(b.Timestamp)]] = v
			}
		}
	}
	return panel, dropped
}

// PctChange returns the simple period-over-period return of s. The first
// value, and any value adjacent to a missing price, is NaN.
func PctChange(s *models.Series) *models.Series {
	out := &models.Series{
		Name:   s.Name,
		Index:  append([]time.Time(nil), s.Index...),
		Values: make([]float64, len(s.Values)),
	}
	for i := range out.Values {
		if i == 0 {
			out.Values[i] = math.NaN()
			continue
		}
		out.Values[i] = s.Values[i]/s.Values[i-1] - 1
	}
	return out
}
