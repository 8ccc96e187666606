// Package performance computes return and risk statistics over an aligned
// strategy-vs-benchmark return table, individually or across a catalogue of
// trailing horizons.
package performance

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/seenimoa/trendbench/pkg/models"
)

// TradingDaysPerYear is the annualization factor.
const TradingDaysPerYear = 252

// ErrUnknownSeries is returned when a selector names no column of the
// wrapped table.
var ErrUnknownSeries = fmt.Errorf("unknown series")

// ════════════════════════════════════════════════════════════════════
// Options
// ════════════════════════════════════════════════════════════════════

type options struct {
	period    int // 0 = full history
	periodSet bool
	riskFree  float64
}

// Option configures a single metric call.
type Option func(*options)

// WithPeriod restricts a metric to the trailing n rows. A period longer than
// the table uses the whole table; n <= 0 is a configuration error.
func WithPeriod(n int) Option {
	return func(o *options) {
		o.period = n
		o.periodSet = true
	}
}

// WithRiskFreeRate sets the annual risk-free rate used by Sharpe.
func WithRiskFreeRate(r float64) Option {
	return func(o *options) { o.riskFree = r }
}

// ════════════════════════════════════════════════════════════════════
// Analytics
// ════════════════════════════════════════════════════════════════════

// Analytics wraps one aligned return table. It never modifies the table and
// keeps no other state, so it is safe for concurrent use.
type Analytics struct {
	table *models.Frame
}

// New wraps table, which must have at least one row and one column and a
// strictly increasing date index.
func New(table *models.Frame) (*Analytics, error) {
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("returns table: %w", err)
	}
	return &Analytics{table: table}, nil
}

// Table returns the wrapped table.
func (a *Analytics) Table() *models.Frame { return a.table }

// Series returns the column names of the wrapped table.
func (a *Analytics) Series() []string {
	return append([]string(nil), a.table.Columns...)
}

// Len returns the number of rows of the wrapped table.
func (a *Analytics) Len() int { return a.table.Len() }

// window resolves a selector and returns the trailing slice it names.
// Selectors match a column exactly or by the "<name>_returns" convention,
// so "strategy" selects "strategy_returns".
func (a *Analytics) window(series string, opts []Option) ([]float64, options, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.periodSet && o.period <= 0 {
		return nil, o, fmt.Errorf("%w: window length must be positive, got %d", models.ErrConfig, o.period)
	}

	col, ok := a.table.Col(series)
	if !ok && !strings.HasSuffix(series, "_returns") {
		col, ok = a.table.Col(series + "_returns")
	}
	if !ok {
		return nil, o, fmt.Errorf("%w: %q (have %v)", ErrUnknownSeries, series, a.table.Columns)
	}

	if o.periodSet && o.period < len(col) {
		col = col[len(col)-o.period:]
	}
	return col, o, nil
}

// TotalReturn returns the compound return ∏(1+r) − 1 over the window.
func (a *Analytics) TotalReturn(series string, opts ...Option) (float64, error) {
	r, _, err := a.window(series, opts)
	if err != nil {
		return 0, err
	}
	return totalReturn(r), nil
}

// AnnualizedReturn returns (1+total)^(252/n) − 1, where n is the window
// length. It is NaN for an empty window.
func (a *Analytics) AnnualizedReturn(series string, opts ...Option) (float64, error) {
	r, _, err := a.window(series, opts)
	if err != nil {
		return 0, err
	}
	return annualizedReturn(r), nil
}

// Volatility returns the sample standard deviation of the window's returns
// scaled by sqrt(252). It is NaN with fewer than two observations.
func (a *Analytics) Volatility(series string, opts ...Option) (float64, error) {
	r, _, err := a.window(series, opts)
	if err != nil {
		return 0, err
	}
	return volatility(r), nil
}

// Sharpe returns the annualized mean excess return over its standard
// deviation. Excess is the raw return less the risk-free rate / 252. A
// window with zero excess-return variance yields exactly 0.
func (a *Analytics) Sharpe(series string, opts ...Option) (float64, error) {
	r, o, err := a.window(series, opts)
	if err != nil {
		return 0, err
	}
	return sharpe(r, o.riskFree), nil
}

// Drawdown returns the deepest peak-to-trough decline of the compounded
// window, as a fraction ≤ 0.
func (a *Analytics) Drawdown(series string, opts ...Option) (float64, error) {
	r, _, err := a.window(series, opts)
	if err != nil {
		return 0, err
	}
	return drawdown(r), nil
}

// ════════════════════════════════════════════════════════════════════
// Statistics over a plain return slice. NaN observations are skipped.
// ════════════════════════════════════════════════════════════════════

func totalReturn(r []float64) float64 {
	growth := 1.0
	for _, x := range r {
		if !math.IsNaN(x) {
			growth *= 1 + x
		}
	}
	return growth - 1
}

func annualizedReturn(r []float64) float64 {
	n := len(r)
	if n <= 0 {
		return math.NaN()
	}
	years := float64(n) / TradingDaysPerYear
	return math.Pow(1+totalReturn(r), 1/years) - 1
}

func volatility(r []float64) float64 {
	return stdDev(dropNaN(r)) * math.Sqrt(TradingDaysPerYear)
}

func sharpe(r []float64, riskFree float64) float64 {
	excess := dropNaN(r)
	daily := riskFree / TradingDaysPerYear
	for i := range excess {
		excess[i] -= daily
	}
	sd := stdDev(excess)
	if sd == 0 {
		return 0
	}
	return math.Sqrt(TradingDaysPerYear) * stat.Mean(excess, nil) / sd
}

func drawdown(r []float64) float64 {
	xs := dropNaN(r)
	if len(xs) == 0 {
		return math.NaN()
	}
	cum, peak, worst := 1.0, math.Inf(-1), 0.0
	for _, x := range xs {
		cum *= 1 + x
		if cum > peak {
			peak = cum
		}
		if dd := cum/peak - 1; dd < worst {
			worst = dd
		}
	}
	return worst
}

// stdDev is the sample (n−1) standard deviation: NaN below two
// observations, exactly 0 for constant input.
func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	for _, x := range xs[1:] {
		if x != xs[0] {
			return stat.StdDev(xs, nil)
		}
	}
	return 0
}

func dropNaN(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}
