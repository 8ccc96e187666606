// Package runner wires configuration, data sources, the backtest engine,
// performance analytics and the run store into one end-to-end run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/seenimoa/trendbench/internal/backtest"
	"github.com/seenimoa/trendbench/internal/config"
	"github.com/seenimoa/trendbench/internal/datasource"
	"github.com/seenimoa/trendbench/internal/performance"
	"github.com/seenimoa/trendbench/internal/report"
	"github.com/seenimoa/trendbench/internal/store"
	"github.com/seenimoa/trendbench/pkg/models"
	"github.com/seenimoa/trendbench/pkg/utils"
)

// Universe lists candidate tickers in priority order.
type Universe interface {
	Tickers(ctx context.Context) []string
}

// Runner executes configured backtests. It is safe to reuse across runs.
type Runner struct {
	cfg       *config.Config
	prices    datasource.PriceProvider
	benchmark datasource.PriceProvider
	universe  Universe
	newID     func() string
	now       func() time.Time
	log       *slog.Logger
}

// Option customises a Runner.
type Option func(*Runner)

// WithPriceProvider sets the source of the strategy price panel.
func WithPriceProvider(p datasource.PriceProvider) Option {
	return func(r *Runner) { r.prices = p }
}

// WithBenchmarkProvider sets the source of benchmark prices.
func WithBenchmarkProvider(p datasource.PriceProvider) Option {
	return func(r *Runner) { r.benchmark = p }
}

// WithUniverse sets the ticker universe used when no tickers are configured.
func WithUniverse(u Universe) Option {
	return func(r *Runner) { r.universe = u }
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(f func() string) Option {
	return func(r *Runner) { r.newID = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// New validates cfg and builds a Runner. Providers not supplied as options
// come from configuration: a file source when data.price_file or
// data.benchmark_file is set, Yahoo Finance otherwise.
func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", models.ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:   cfg,
		newID: uuid.NewString,
		now:   time.Now,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	var yf *datasource.YFinance
	yahoo := func() datasource.PriceProvider {
		if yf == nil {
			yf = datasource.NewYFinance(
				datasource.WithCacheTTL(cfg.CacheTTL()),
				datasource.WithRequestsPerSecond(cfg.Data.RequestsPerSecond),
				datasource.WithConcurrency(cfg.Data.Concurrency),
				datasource.WithLogger(r.log),
			)
		}
		return yf
	}
	if r.prices == nil {
		if cfg.Data.PriceFile != "" {
			r.prices = datasource.NewFileSource(cfg.Data.PriceFile, r.log)
		} else {
			r.prices = yahoo()
		}
	}
	if r.benchmark == nil {
		if cfg.Data.BenchmarkFile != "" {
			r.benchmark = datasource.NewFileSource(cfg.Data.BenchmarkFile, r.log)
		} else {
			r.benchmark = yahoo()
		}
	}
	if r.universe == nil {
		r.universe = datasource.NewConstituents(cfg.Data.ConstituentsURL, r.log)
	}
	return r, nil
}

// Output is everything one run produced.
type Output struct {
	RunID     string
	Tickers   []string
	Benchmark string
	Result    *backtest.Result
	Aligned   *models.Frame // strategy vs benchmark, as persisted
	Analysed  *models.Frame // Aligned after the warm-up trim
	Tables    []*models.MetricTable
	Saved     bool // recorded in the run store
}

// Summary returns the report header for the run.
func (o *Output) Summary() report.Summary {
	return report.Summary{
		RunID:       o.RunID,
		Strategy:    o.Result.StrategyName,
		Benchmark:   o.Benchmark,
		Tickers:     o.Tickers,
		From:        o.Result.From,
		To:          o.Result.To,
		InitialCash: o.Result.InitialCash,
		FinalValue:  o.Result.FinalValue,
	}
}

// Run executes the configured backtest end to end.
func (r *Runner) Run(ctx context.Context) (*Output, error) {
	cfg := r.cfg
	from, to, err := cfg.DateRange()
	if err != nil {
		return nil, err
	}
	field, err := models.ParsePriceField(cfg.Data.Field)
	if err != nil {
		return nil, err
	}
	strategy, err := backtest.NewStrategy(cfg.Strategy.Name, cfg.StrategyParams())
	if err != nil {
		return nil, err
	}

	tickers := r.resolveTickers(ctx)
	r.log.Info("starting run",
		"strategy", cfg.Strategy.Name,
		"tickers", len(tickers),
		"benchmark", cfg.Data.Benchmark,
		"from", cfg.Data.StartDate,
		"to", cfg.Data.EndDate,
	)

	prices, err := r.prices.GetPanel(ctx, tickers, from, to, field)
	if err != nil {
		return nil, fmt.Errorf("strategy prices: %w", err)
	}
	benchReturns, benchName, err := r.benchmarkReturns(ctx, from, to, field)
	if err != nil {
		return nil, err
	}

	engine := backtest.NewEngine(backtest.Config{InitialCash: cfg.Backtest.InitialCash}, r.log)
	result, err := engine.Run(strategy, prices)
	if err != nil {
		return nil, err
	}
	strategyReturns := result.Returns.Clone()
	strategyReturns.Name = cfg.Strategy.Name + "_returns"

	var aligned *models.Frame
	if path := cfg.Output.AlignedReturnsPath; path != "" {
		aligned, err = performance.AlignAndPersist(strategyReturns, benchReturns, path)
	} else {
		aligned, err = performance.Align(strategyReturns, benchReturns)
	}
	if err != nil {
		return nil, err
	}

	analysed := aligned
	if cfg.Backtest.TrimWarmup {
		n := cfg.Strategy.LookbackPeriod
		if n >= aligned.Len() {
			return nil, fmt.Errorf("%w: %d aligned rows do not cover the %d-row warm-up",
				models.ErrConfig, aligned.Len(), n)
		}
		analysed = aligned.SliceFrom(n)
	}

	a, err := performance.New(analysed)
	if err != nil {
		return nil, err
	}
	tables, err := performance.StandardTables(a, cfg.Analytics.RiskFreeRate)
	if err != nil {
		return nil, fmt.Errorf("metric tables: %w", err)
	}

	out := &Output{
		RunID:     r.newID(),
		Tickers:   prices.Columns,
		Benchmark: benchName,
		Result:    result,
		Aligned:   aligned,
		Analysed:  analysed,
		Tables:    tables,
	}
	if cfg.Output.RunDB != "" {
		if err := r.record(ctx, out); err != nil {
			return nil, err
		}
		out.Saved = true
	}
	r.log.Info("run complete", "run_id", out.RunID, "rows", analysed.Len(), "tables", len(tables))
	return out, nil
}

// resolveTickers returns data.tickers when set. Otherwise the universe is
// used, limited to data.max_tickers (0 means no limit). A file price
// source with neither uses every column of the file.
func (r *Runner) resolveTickers(ctx context.Context) []string {
	d := r.cfg.Data
	if len(d.Tickers) > 0 {
		return utils.NormalizeTickers(d.Tickers)
	}
	if d.PriceFile != "" {
		return nil
	}
	tickers := r.universe.Tickers(ctx)
	if d.MaxTickers > 0 && len(tickers) > d.MaxTickers {
		tickers = tickers[:d.MaxTickers]
	}
	return tickers
}

// benchmarkReturns fetches the benchmark price series and converts it to
// simple returns. A benchmark file without a configured ticker uses its
// first column.
func (r *Runner) benchmarkReturns(ctx context.Context, from, to time.Time, field models.PriceField) (*models.Series, string, error) {
	var tickers []string
	if b := r.cfg.Data.Benchmark; b != "" {
		tickers = []string{b}
	}
	panel, err := r.benchmark.GetPanel(ctx, tickers, from, to, field)
	if err != nil {
		return nil, "", fmt.Errorf("benchmark prices: %w", err)
	}
	if panel.Width() == 0 {
		return nil, "", fmt.Errorf("%w: benchmark panel has no columns", datasource.ErrNoData)
	}
	name := panel.Columns[0]
	prices, _ := panel.Series(name)
	returns := datasource.PctChange(prices)
	returns.Name = performance.BenchmarkColumn
	return returns, name, nil
}

func (r *Runner) record(ctx context.Context, out *Output) error {
	rs, err := store.OpenRunStore(ctx, r.cfg.Output.RunDB)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	run := store.Run{
		ID:           out.RunID,
		Strategy:     r.cfg.Strategy.Name,
		Benchmark:    out.Benchmark,
		Tickers:      out.Tickers,
		From:         out.Result.From,
		To:           out.Result.To,
		InitialCash:  out.Result.InitialCash,
		FinalValue:   out.Result.FinalValue,
		ArtifactPath: r.cfg.Output.AlignedReturnsPath,
		CreatedAt:    r.now().UTC(),
	}
	err = rs.SaveRun(ctx, run, out.Tables)
	return errors.Join(err, rs.Close())
}
