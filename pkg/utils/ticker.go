// Package utils holds small helpers for ticker symbols and calendar dates.
package utils

import (
	"strings"
)

// Common index aliases and their Yahoo Finance symbols.
var indexTickers = map[string]string{
	"SPX":    "^GSPC",
	"SP500":  "^GSPC",
	"S&P500": "^GSPC",
	"NDX":    "^NDX",
	"DJI":    "^DJI",
	"DJIA":   "^DJI",
	"RUT":    "^RUT",
	"VIX":    "^VIX",
}

// NormalizeTicker normalizes a user-input ticker to the canonical Yahoo
// Finance form: uppercase, no whitespace, no "$" prefix, and share-class
// dots written as dashes (BRK.B becomes BRK-B). Index aliases resolve to
// their caret symbols.
func NormalizeTicker(ticker string) string {
	ticker = strings.TrimSpace(strings.ToUpper(ticker))

	// Remove $ prefix if present.
	ticker = strings.TrimPrefix(ticker, "$")

	if idx, ok := indexTickers[ticker]; ok {
		return idx
	}
	return strings.ReplaceAll(ticker, ".", "-")
}

// NormalizeTickers normalizes every ticker and drops blanks and duplicates,
// keeping first-seen order.
func NormalizeTickers(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		n := NormalizeTicker(t)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
