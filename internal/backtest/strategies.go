package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/seenimoa/trendbench/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Built-in Strategies
// ════════════════════════════════════════════════════════════════════

// Compile-time interface checks.
var (
	_ Strategy = (*TrendFollowing)(nil)
	_ Strategy = (*Breakout)(nil)
)

// ────────────────────────────────────────────────────────────────────
// Shared volatility-targeted sizing and lagged returns
// ────────────────────────────────────────────────────────────────────

// volTargeting implements SizePositions and CalculateReturns for strategies
// that size each long position as risk / realized volatility. Strategies
// embed it and only supply GenerateSignals.
type volTargeting struct {
	Params
}

// SizePositions sizes each instrument at RiskPerTrade divided by the
// trailing VolatilityLookback standard deviation of its daily returns,
// clipped to [0, MaxPositionSize]. Zero volatility produces an unbounded
// size that clips to the ceiling; undefined volatility stays NaN. Cells
// where the signal is 0 are 0.
func (v volTargeting) SizePositions(prices, signals *models.Frame) (*models.Frame, error) {
	if err := sameShape(prices, signals); err != nil {
		return nil, err
	}
	sizes := models.NewFrame(prices.Index, prices.Columns)
	for c, px := range prices.Values {
		vol := rollingStd(pctChange(px), v.VolatilityLookback)
		sig := signals.Values[c]
		out := sizes.Values[c]
		for i := range out {
			if sig[i] == 0 {
				out[i] = 0
				continue
			}
			size := v.RiskPerTrade / vol[i]
			if !math.IsNaN(size) {
				size = math.Min(math.Max(size, 0), v.MaxPositionSize)
			}
			out[i] = size * sig[i]
		}
	}
	return sizes, nil
}

// CalculateReturns multiplies each instrument's simple return on T by the
// signal and size of T-1 and sums across instruments, skipping NaN.
func (v volTargeting) CalculateReturns(prices, signals, sizes *models.Frame) (*models.Series, error) {
	if err := sameShape(prices, signals); err != nil {
		return nil, err
	}
	if err := sameShape(prices, sizes); err != nil {
		return nil, err
	}
	portfolio := make([]float64, prices.Len())
	for c, px := range prices.Values {
		ret := pctChange(px)
		prevSig := shift1(signals.Values[c])
		prevSize := shift1(sizes.Values[c])
		for i := range portfolio {
			contrib := ret[i] * prevSig[i] * prevSize[i]
			if !math.IsNaN(contrib) {
				portfolio[i] += contrib
			}
		}
	}
	return &models.Series{
		Name:   "portfolio_returns",
		Index:  append([]time.Time(nil), prices.Index...),
		Values: portfolio,
	}, nil
}

// ────────────────────────────────────────────────────────────────────
// 1. Trend Following
// ────────────────────────────────────────────────────────────────────

// TrendFollowing goes long an instrument while its price is above the
// moving average of the trailing LookbackPeriod prices.
type TrendFollowing struct {
	volTargeting
}

// NewTrendFollowing creates a trend-following strategy.
func NewTrendFollowing(p Params) (*TrendFollowing, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &TrendFollowing{volTargeting{p}}, nil
}

func (s *TrendFollowing) Name() string { return "Trend Following" }

// GenerateSignals emits 1 where price exceeds its trailing moving average.
// During warm-up the average is undefined and the signal is 0.
func (s *TrendFollowing) GenerateSignals(prices *models.Frame) (*models.Frame, error) {
	signals := models.NewFrame(prices.Index, prices.Columns)
	for c, px := range prices.Values {
		ma := rollingMean(px, s.LookbackPeriod)
		signals.Values[c] = aboveReference(px, ma)
	}
	return signals, nil
}

// ────────────────────────────────────────────────────────────────────
// 2. Breakout
// ────────────────────────────────────────────────────────────────────

// Breakout goes long an instrument while its price is above the highest
// price of the previous LookbackPeriod observations.
type Breakout struct {
	volTargeting
}

// NewBreakout creates a channel-breakout strategy.
func NewBreakout(p Params) (*Breakout, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Breakout{volTargeting{p}}, nil
}

func (s *Breakout) Name() string { return "Breakout" }

// GenerateSignals emits 1 where price exceeds the prior channel high.
func (s *Breakout) GenerateSignals(prices *models.Frame) (*models.Frame, error) {
	signals := models.NewFrame(prices.Index, prices.Columns)
	for c, px := range prices.Values {
		high := rollingMaxBefore(px, s.LookbackPeriod)
		signals.Values[c] = aboveReference(px, high)
	}
	return signals, nil
}

// ════════════════════════════════════════════════════════════════════
// Helpers
// ════════════════════════════════════════════════════════════════════

// aboveReference is 1 where px > ref and 0 otherwise, including where
// either side is NaN.
func aboveReference(px, ref []float64) []float64 {
	out := make([]float64, len(px))
	for i := range px {
		if px[i] > ref[i] {
			out[i] = 1
		}
	}
	return out
}

func sameShape(a, b *models.Frame) error {
	if a == nil || b == nil {
		return fmt.Errorf("%w: nil matrix", models.ErrConfig)
	}
	if a.Len() != b.Len() || a.Width() != b.Width() {
		return fmt.Errorf("%w: matrix shape %dx%d does not match %dx%d",
			models.ErrConfig, b.Len(), b.Width(), a.Len(), a.Width())
	}
	return nil
}
