package performance

import (
	"math"
	"strconv"

	"github.com/seenimoa/trendbench/pkg/models"
	"github.com/seenimoa/trendbench/pkg/utils"
)

// ════════════════════════════════════════════════════════════════════
// Horizon catalogue
// ════════════════════════════════════════════════════════════════════

// HorizonKind distinguishes how a horizon selects its rows.
type HorizonKind int

const (
	Trailing HorizonKind = iota // last Days rows
	YearToDate                  // rows in the calendar year of the last date
	SinceInception              // every row
)

// Horizon is one named column of a metric table.
type Horizon struct {
	Label string
	Kind  HorizonKind
	Days  int // Trailing only
}

// Horizon labels.
const (
	Label1Mo  = "1 Mo"
	Label3Mo  = "3 Mo"
	Label1Yr  = "1 Yr (Ann)"
	LabelYTD  = "YTD"
	Label3Yr  = "3 Yr (Ann)"
	Label5Yr  = "5 Yr (Ann)"
	Label10Yr = "10 Yr (Ann)"
)

var trailingCatalogue = []Horizon{
	{Label: Label1Mo, Kind: Trailing, Days: 21},
	{Label: Label3Mo, Kind: Trailing, Days: 63},
	{Label: Label1Yr, Kind: Trailing, Days: 252},
	{Label: LabelYTD, Kind: YearToDate},
	{Label: Label3Yr, Kind: Trailing, Days: 756},
	{Label: Label5Yr, Kind: Trailing, Days: 1260},
	{Label: Label10Yr, Kind: Trailing, Days: 2520},
}

// minYTDObservations is the fewest rows a YTD window needs to be reported.
const minYTDObservations = 2

// Horizons returns the horizon catalogue for the wrapped table. The
// since-inception horizon is labelled with the first index date and is
// always last.
func (a *Analytics) Horizons() []Horizon {
	out := append([]Horizon(nil), trailingCatalogue...)
	return append(out, Horizon{
		Label: models.SincePrefix + a.table.Index[0].Format(models.DateLayout),
		Kind:  SinceInception,
	})
}

// rows returns how many trailing rows the horizon covers, or 0 when the
// table is too short for it.
func (a *Analytics) rows(h Horizon) int {
	n := a.table.Len()
	switch h.Kind {
	case Trailing:
		if n < h.Days {
			return 0
		}
		return h.Days
	case YearToDate:
		start := utils.YearStart(a.table.Index[n-1])
		count := 0
		for i := n - 1; i >= 0 && !a.table.Index[i].Before(start); i-- {
			count++
		}
		if count < minYTDObservations {
			return 0
		}
		return count
	default:
		return n
	}
}

// ════════════════════════════════════════════════════════════════════
// Windowed tables
// ════════════════════════════════════════════════════════════════════

// Metric evaluates one statistic of one series. The Analytics metric
// methods are Metrics by method expression, e.g. (*Analytics).Sharpe.
type Metric func(a *Analytics, series string, opts ...Option) (float64, error)

// Scaled returns m multiplied by factor, e.g. 100 for percent.
func Scaled(m Metric, factor float64) Metric {
	return func(a *Analytics, series string, opts ...Option) (float64, error) {
		v, err := m(a, series, opts...)
		return v * factor, err
	}
}

// WindowTable evaluates metric for every series across the horizon
// catalogue. Horizons with insufficient history are NaN.
func WindowTable(a *Analytics, name string, metric Metric) (*models.MetricTable, error) {
	return windowTable(a, name, func(Horizon) Metric { return metric })
}

func windowTable(a *Analytics, name string, pick func(Horizon) Metric) (*models.MetricTable, error) {
	horizons := a.Horizons()
	out := &models.MetricTable{
		Metric:  name,
		Rows:    a.Series(),
		Columns: make([]string, len(horizons)),
		Cells:   make([][]float64, a.table.Width()),
	}
	for j, h := range horizons {
		out.Columns[j] = h.Label
	}
	for i, series := range out.Rows {
		out.Cells[i] = make([]float64, len(horizons))
		for j, h := range horizons {
			n := a.rows(h)
			if n == 0 {
				out.Cells[i][j] = math.NaN()
				continue
			}
			v, err := pick(h)(a, series, WithPeriod(n))
			if err != nil {
				return nil, err
			}
			out.Cells[i][j] = v
		}
	}
	return out, nil
}

// Metric table names.
const (
	MetricReturns      = "Returns"
	MetricGross        = "Gross Returns"
	MetricVolatility   = "Annualized Volatility"
	MetricSharpe       = "Sharpe Ratio"
	MetricDrawdown     = "Max Drawdown"
	MetricAnnualByYear = "Annual Returns"
)

// IsPercentMetric reports whether the named table holds percentages. Only
// Sharpe ratios are unscaled.
func IsPercentMetric(name string) bool { return name != MetricSharpe }

// GrossReturns tabulates compound return, in percent.
func GrossReturns(a *Analytics) (*models.MetricTable, error) {
	return WindowTable(a, MetricGross, Scaled((*Analytics).TotalReturn, 100))
}

// AnnualizedVolatility tabulates annualized volatility, in percent.
func AnnualizedVolatility(a *Analytics) (*models.MetricTable, error) {
	return WindowTable(a, MetricVolatility, Scaled((*Analytics).Volatility, 100))
}

// SharpeRatios tabulates Sharpe ratios at the given annual risk-free rate.
func SharpeRatios(a *Analytics, riskFree float64) (*models.MetricTable, error) {
	return WindowTable(a, MetricSharpe, func(a *Analytics, series string, opts ...Option) (float64, error) {
		return a.Sharpe(series, append(opts, WithRiskFreeRate(riskFree))...)
	})
}

// MaxDrawdowns tabulates maximum drawdown, in percent.
func MaxDrawdowns(a *Analytics) (*models.MetricTable, error) {
	return WindowTable(a, MetricDrawdown, Scaled((*Analytics).Drawdown, 100))
}

// ReturnSummary tabulates returns in percent: compound return for horizons
// shorter than a year and for YTD, annualized return from one year up. The
// since-inception column is annualized only when the table spans more than
// a year.
func ReturnSummary(a *Analytics) (*models.MetricTable, error) {
	total := Scaled((*Analytics).TotalReturn, 100)
	annual := Scaled((*Analytics).AnnualizedReturn, 100)
	return windowTable(a, MetricReturns, func(h Horizon) Metric {
		switch h.Kind {
		case YearToDate:
			return total
		case SinceInception:
			if a.Len() > TradingDaysPerYear {
				return annual
			}
			return total
		default:
			if h.Days < TradingDaysPerYear {
				return total
			}
			return annual
		}
	})
}

// MinYearObservations is the fewest rows a calendar year needs to appear in
// AnnualReturnsByYear.
const MinYearObservations = 200

// AnnualReturnsByYear tabulates the annualized return of every calendar year
// with at least MinYearObservations rows, in percent. Rows are series and
// columns are years in ascending order.
func AnnualReturnsByYear(a *Analytics) *models.MetricTable {
	type span struct{ year, from, to int }
	var years []span
	idx := a.table.Index
	for i := 0; i < len(idx); {
		j := i
		for j < len(idx) && idx[j].Year() == idx[i].Year() {
			j++
		}
		if j-i >= MinYearObservations {
			years = append(years, span{idx[i].Year(), i, j})
		}
		i = j
	}

	out := &models.MetricTable{
		Metric:  MetricAnnualByYear,
		Rows:    a.Series(),
		Columns: make([]string, len(years)),
		Cells:   make([][]float64, a.table.Width()),
	}
	for k, y := range years {
		out.Columns[k] = strconv.Itoa(y.year)
	}
	for c, col := range a.table.Values {
		out.Cells[c] = make([]float64, len(years))
		for k, y := range years {
			out.Cells[c][k] = annualizedReturn(col[y.from:y.to]) * 100
		}
	}
	return out
}

// StandardTables returns the return summary followed by the four windowed
// metric tables, in reporting order.
func StandardTables(a *Analytics, riskFree float64) ([]*models.MetricTable, error) {
	builders := []func() (*models.MetricTable, error){
		func() (*models.MetricTable, error) { return ReturnSummary(a) },
		func() (*models.MetricTable, error) { return GrossReturns(a) },
		func() (*models.MetricTable, error) { return AnnualizedVolatility(a) },
		func() (*models.MetricTable, error) { return SharpeRatios(a, riskFree) },
		func() (*models.MetricTable, error) { return MaxDrawdowns(a) },
	}
	tables := make([]*models.MetricTable, 0, len(builders)+1)
	for _, build := range builders {
		t, err := build()
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return append(tables, AnnualReturnsByYear(a)), nil
}
