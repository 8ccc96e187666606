package backtest

import (
	"fmt"
	"sort"

	"github.com/seenimoa/trendbench/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Strategy Interface
// ════════════════════════════════════════════════════════════════════

// Strategy turns a price panel into signals, position sizes and portfolio
// returns. Implementations are pure: they never mutate their inputs and
// keep no state between calls beyond their configuration.
type Strategy interface {
	// Name returns the human-readable strategy name.
	Name() string

	// GenerateSignals returns a matrix shaped like prices holding 1 (long)
	// or 0 (flat). The value on date T may only depend on prices up to and
	// including T.
	GenerateSignals(prices *models.Frame) (*models.Frame, error)

	// SizePositions returns the fraction of capital allocated to each
	// instrument on each date, in [0, MaxPositionSize], zero where the
	// signal is 0.
	SizePositions(prices, signals *models.Frame) (*models.Frame, error)

	// CalculateReturns returns the daily portfolio return series. The
	// return on date T uses the signal and size decided on T-1.
	CalculateReturns(prices, signals, sizes *models.Frame) (*models.Series, error)
}

// ════════════════════════════════════════════════════════════════════
// Parameters
// ════════════════════════════════════════════════════════════════════

// Params configures the built-in strategies.
type Params struct {
	LookbackPeriod     int     `json:"lookback_period"`     // trailing window of the signal reference
	VolatilityLookback int     `json:"volatility_lookback"` // trailing window of realized volatility
	RiskPerTrade       float64 `json:"risk_per_trade"`      // target risk budget per instrument
	MaxPositionSize    float64 `json:"max_position_size"`   // per-instrument weight ceiling
}

// DefaultParams returns the parameters of the reference trend-following run.
func DefaultParams() Params {
	return Params{
		LookbackPeriod:     200,
		VolatilityLookback: 20,
		RiskPerTrade:       0.01,
		MaxPositionSize:    0.05,
	}
}

// Validate rejects parameters no strategy can work with.
func (p Params) Validate() error {
	if p.LookbackPeriod <= 0 {
		return fmt.Errorf("%w: lookback_period must be positive, got %d", models.ErrConfig, p.LookbackPeriod)
	}
	if p.VolatilityLookback <= 0 {
		return fmt.Errorf("%w: volatility_lookback must be positive, got %d", models.ErrConfig, p.VolatilityLookback)
	}
	if p.RiskPerTrade < 0 {
		return fmt.Errorf("%w: risk_per_trade must not be negative, got %g", models.ErrConfig, p.RiskPerTrade)
	}
	if p.MaxPositionSize <= 0 {
		return fmt.Errorf("%w: max_position_size must be positive, got %g", models.ErrConfig, p.MaxPositionSize)
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════
// Built-in strategy lookup
// ════════════════════════════════════════════════════════════════════

// Built-in strategy identifiers, as used in configuration.
const (
	TrendFollowingName = "trend_following"
	BreakoutName       = "breakout"
)

var builtins = map[string]func(Params) (Strategy, error){
	TrendFollowingName: func(p Params) (Strategy, error) { return NewTrendFollowing(p) },
	BreakoutName:       func(p Params) (Strategy, error) { return NewBreakout(p) },
}

// NewStrategy builds the named built-in strategy.
func NewStrategy(name string, p Params) (Strategy, error) {
	ctor, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q (available: %v)", models.ErrConfig, name, BuiltinStrategies())
	}
	return ctor(p)
}

// BuiltinStrategies returns the sorted identifiers accepted by NewStrategy.
func BuiltinStrategies() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
