// Package backtest simulates a rules-based strategy over a daily price panel:
// signals, volatility-targeted position sizes, a gross leverage cap and the
// resulting lag-correct portfolio return series.
package backtest

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/seenimoa/trendbench/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Engine Configuration
// ════════════════════════════════════════════════════════════════════

// Config holds all parameters for a backtest run.
type Config struct {
	InitialCash float64 // starting portfolio value (default: 100,000)
}

// DefaultConfig returns the reference run configuration.
func DefaultConfig() Config {
	return Config{
		InitialCash: 100000,
	}
}

// ════════════════════════════════════════════════════════════════════
// Result
// ════════════════════════════════════════════════════════════════════

// Result is the output of one engine run. Every matrix and series is
// indexed exactly like the input price panel.
type Result struct {
	StrategyName   string
	From, To       time.Time
	InitialCash    float64
	FinalValue     float64
	Signals        *models.Frame  // 0/1 per instrument per date
	PositionSizes  *models.Frame  // leverage-capped weights
	Returns        *models.Series // daily portfolio return
	PortfolioValue *models.Series // InitialCash * cumprod(1 + return)
}

// TotalReturn returns FinalValue / InitialCash - 1.
func (r *Result) TotalReturn() float64 {
	return r.FinalValue/r.InitialCash - 1
}

// ════════════════════════════════════════════════════════════════════
// Engine
// ════════════════════════════════════════════════════════════════════

// Engine drives a Strategy over a price panel. It holds no mutable state,
// so a single Engine may run independent strategies concurrently.
type Engine struct {
	cfg Config
	log *slog.Logger
}

// NewEngine creates a new backtesting engine with the given config. A nil
// logger uses slog.Default().
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if cfg.InitialCash <= 0 {
		cfg.InitialCash = DefaultConfig().InitialCash
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, log: logger}
}

// Config returns the effective engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Run generates signals, sizes positions, caps gross leverage and computes
// portfolio returns, in that order. The price panel is never modified.
func (e *Engine) Run(strategy Strategy, prices *models.Frame) (*Result, error) {
	if strategy == nil {
		return nil, fmt.Errorf("%w: strategy is nil", models.ErrConfig)
	}
	if err := prices.Validate(); err != nil {
		return nil, fmt.Errorf("price panel: %w", err)
	}

	signals, err := strategy.GenerateSignals(prices)
	if err != nil {
		return nil, fmt.Errorf("generate signals: %w", err)
	}
	sizes, err := strategy.SizePositions(prices, signals)
	if err != nil {
		return nil, fmt.Errorf("size positions: %w", err)
	}
	sizes = NormalizeRows(sizes)

	returns, err := strategy.CalculateReturns(prices, signals, sizes)
	if err != nil {
		return nil, fmt.Errorf("calculate returns: %w", err)
	}
	if returns.Len() != prices.Len() {
		return nil, fmt.Errorf("%w: strategy returned %d returns for %d rows", models.ErrConfig, returns.Len(), prices.Len())
	}

	value := portfolioValue(e.cfg.InitialCash, returns)
	result := &Result{
		StrategyName:   strategy.Name(),
		From:           prices.Index[0],
		To:             prices.Index[prices.Len()-1],
		InitialCash:    e.cfg.InitialCash,
		FinalValue:     value.Last(),
		Signals:        signals,
		PositionSizes:  sizes,
		Returns:        returns,
		PortfolioValue: value,
	}

	e.log.Info("backtest complete",
		"strategy", result.StrategyName,
		"instruments", prices.Width(),
		"rows", prices.Len(),
		"from", result.From.Format(models.DateLayout),
		"to", result.To.Format(models.DateLayout),
		"final_value", result.FinalValue,
	)
	return result, nil
}

// portfolioValue compounds returns from initial. NaN returns leave the
// value unchanged.
func portfolioValue(initial float64, returns *models.Series) *models.Series {
	values := make([]float64, returns.Len())
	v := initial
	for i, r := range returns.Values {
		if !math.IsNaN(r) {
			v *= 1 + r
		}
		values[i] = v
	}
	return &models.Series{
		Name:   "portfolio_value",
		Index:  append([]time.Time(nil), returns.Index...),
		Values: values,
	}
}
