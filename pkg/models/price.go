// Package models defines the data structures shared by the backtest engine,
// the performance analytics and the price data sources.
package models

import (
	"fmt"
	"strings"
	"time"
)

// OHLCV represents a single candlestick bar of price data.
type OHLCV struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	AdjClose  float64   `json:"adj_close,omitempty"`
}

// Timeframe represents chart timeframe for OHLCV data.
type Timeframe string

const (
	Timeframe1Day  Timeframe = "1d"
	Timeframe1Week Timeframe = "1w"
	Timeframe1Mon  Timeframe = "1M"
)

// PriceField selects which observation of a bar populates a price panel.
type PriceField string

const (
	FieldOpen     PriceField = "Open"
	FieldHigh     PriceField = "High"
	FieldLow      PriceField = "Low"
	FieldClose    PriceField = "Close"
	FieldAdjClose PriceField = "Adj Close"
	FieldVolume   PriceField = "Volume"
)

// ParsePriceField resolves a field name case-insensitively.
func ParsePriceField(s string) (PriceField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return FieldOpen, nil
	case "high":
		return FieldHigh, nil
	case "low":
		return FieldLow, nil
	case "close":
		return FieldClose, nil
	case "adj close", "adj_close", "adjclose":
		return FieldAdjClose, nil
	case "volume":
		return FieldVolume, nil
	}
	return "", fmt.Errorf("%w: unknown price field %q", ErrConfig, s)
}

// Value extracts the field from a bar.
func (f PriceField) Value(b OHLCV) float64 {
	switch f {
	case FieldHigh:
		return b.High
	case FieldLow:
		return b.Low
	case FieldClose:
		return b.Close
	case FieldAdjClose:
		return b.AdjClose
	case FieldVolume:
		return float64(b.Volume)
	default:
		return b.Open
	}
}
