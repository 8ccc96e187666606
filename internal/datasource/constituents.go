package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/seenimoa/trendbench/internal/infra"
	"github.com/seenimoa/trendbench/pkg/utils"
)

// SP500ConstituentsURL is the Wikipedia page listing S&P 500 members.
const SP500ConstituentsURL = "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"

// FallbackTickers is returned when the constituent list cannot be fetched.
var FallbackTickers = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "META"}

// Constituents scrapes index membership from Wikipedia.
type Constituents struct {
	url     string
	client  *http.Client
	cache   *infra.Cache[[]string]
	limiter *infra.RateLimiter
	log     *slog.Logger
}

// NewConstituents creates a scraper for pageURL (SP500ConstituentsURL when
// empty). A nil logger uses slog.Default().
func NewConstituents(pageURL string, logger *slog.Logger) *Constituents {
	if pageURL == "" {
		pageURL = SP500ConstituentsURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Constituents{
		url:     pageURL,
		client:  HTTPClient,
		cache:   infra.NewCache[[]string](6 * time.Hour),
		limiter: infra.NewRateLimiter(1, time.Second), // conservative: 1 req/s
		log:     logger,
	}
}

// Tickers returns the constituent symbols in page order, normalized for
// Yahoo Finance (BRK.B becomes BRK-B). Any failure to fetch or parse the
// page is logged and answered with FallbackTickers.
func (c *Constituents) Tickers(ctx context.Context) []string {
	tickers, err := c.Fetch(ctx)
	if err != nil {
		c.log.Warn("constituents unavailable, using fallback list",
			"error", err, "fallback", FallbackTickers)
		return append([]string(nil), FallbackTickers...)
	}
	c.log.Info("fetched constituents", "count", len(tickers))
	return tickers
}

// Fetch downloads and parses the constituents table.
func (c *Constituents) Fetch(ctx context.Context) ([]string, error) {
	if cached, ok := c.cache.Get(c.url); ok {
		return append([]string(nil), cached...), nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, _, err := doGet(ctx, c.client, c.url, map[string]string{
		"Accept": "text/html",
	})
	if err != nil {
		return nil, fmt.Errorf("constituents page: %w", err)
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse constituents HTML: %w", err)
	}

	tickers := parseConstituents(doc)
	if len(tickers) == 0 {
		return nil, fmt.Errorf("%w: no symbol column found at %s", ErrNoData, c.url)
	}
	c.cache.Set(c.url, tickers)
	return append([]string(nil), tickers...), nil
}

// parseConstituents reads the "Symbol" column of the first table that has
// one, preferring the table with id "constituents".
func parseConstituents(doc *goquery.Document) []string {
	tables := doc.Find("table#constituents")
	if tables.Length() == 0 {
		tables = doc.Find("table")
	}

	var tickers []string
	tables.EachWithBreak(func(_ int, table *goquery.Selection) bool {
		col := -1
		table.Find("tr").First().Find("th").Each(func(i int, th *goquery.Selection) {
			if col < 0 && strings.EqualFold(strings.TrimSpace(th.Text()), "Symbol") {
				col = i
			}
		})
		if col < 0 {
			return true
		}
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cell := row.Find("td").Eq(col)
			if cell.Length() == 0 {
				return
			}
			if sym := strings.TrimSpace(cell.Text()); sym != "" {
				tickers = append(tickers, sym)
			}
		})
		return false
	})
	return utils.NormalizeTickers(tickers)
}
