package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/seenimoa/trendbench/internal/infra"
	"github.com/seenimoa/trendbench/pkg/models"
	"github.com/seenimoa/trendbench/pkg/utils"
)

// DefaultYFinanceURL is the Yahoo Finance API host.
const DefaultYFinanceURL = "https://query1.finance.yahoo.com"

// YFinance implements PriceProvider using the Yahoo Finance chart API.
type YFinance struct {
	baseURL     string
	client      *http.Client
	cache       *infra.Cache[[]models.OHLCV]
	limiter     *infra.RateLimiter
	concurrency int
	log         *slog.Logger
}

// YFinanceOption configures a YFinance source.
type YFinanceOption func(*YFinance)

// WithYFinanceBaseURL points the source at another host (tests, proxies).
func WithYFinanceBaseURL(u string) YFinanceOption {
	return func(y *YFinance) { y.baseURL = u }
}

// WithYFinanceHTTPClient sets the HTTP client.
func WithYFinanceHTTPClient(c *http.Client) YFinanceOption {
	return func(y *YFinance) { y.client = c }
}

// WithCacheTTL sets how long fetched history is reused.
func WithCacheTTL(ttl time.Duration) YFinanceOption {
	return func(y *YFinance) { y.cache = infra.NewCache[[]models.OHLCV](ttl) }
}

// WithRequestsPerSecond caps the request rate; n <= 0 disables the cap.
func WithRequestsPerSecond(n int) YFinanceOption {
	return func(y *YFinance) { y.limiter = infra.PerSecond(n) }
}

// WithConcurrency bounds how many tickers GetPanel fetches at once.
func WithConcurrency(n int) YFinanceOption {
	return func(y *YFinance) {
		if n > 0 {
			y.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) YFinanceOption {
	return func(y *YFinance) {
		if l != nil {
			y.log = l
		}
	}
}

// NewYFinance creates a new Yahoo Finance data source.
func NewYFinance(opts ...YFinanceOption) *YFinance {
	y := &YFinance{
		baseURL:     DefaultYFinanceURL,
		client:      HTTPClient,
		cache:       infra.NewCache[[]models.OHLCV](15 * time.Minute),
		limiter:     infra.PerSecond(5),
		concurrency: 4,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// Name returns the data source name.
func (y *YFinance) Name() string { return "Yahoo Finance" }

// --- Yahoo Finance v8 API types ---

type yfChartResponse struct {
	Chart struct {
		Result []yfChartResult `json:"result"`
		Error  *yfError        `json:"error"`
	} `json:"chart"`
}

type yfChartResult struct {
	Meta       yfChartMeta  `json:"meta"`
	Timestamp  []int64      `json:"timestamp"`
	Indicators yfIndicators `json:"indicators"`
}

type yfChartMeta struct {
	Symbol    string `json:"symbol"`
	Currency  string `json:"currency"`
	GMTOffset int64  `json:"gmtoffset"`
}

type yfIndicators struct {
	Quote    []yfOHLCV    `json:"quote"`
	AdjClose []yfAdjClose `json:"adjclose"`
}

type yfOHLCV struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

type yfAdjClose struct {
	AdjClose []*float64 `json:"adjclose"`
}

type yfError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// --- Public methods ---

// GetHistoricalData returns bars from Yahoo Finance chart API for
// [from, to). Bar timestamps are exchange-local calendar dates at UTC
// midnight; prices Yahoo reports as null are NaN.
func (y *YFinance) GetHistoricalData(ctx context.Context, ticker string, from, to time.Time, tf models.Timeframe) ([]models.OHLCV, error) {
	yfTicker := utils.NormalizeTicker(ticker)

	cacheKey := fmt.Sprintf("hist:%s:%d:%d:%s", yfTicker, from.Unix(), to.Unix(), tf)
	if cached, ok := y.cache.Get(cacheKey); ok {
		return cached, nil
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf(
		"%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=%s&includeAdjustedClose=true",
		y.baseURL, url.PathEscape(yfTicker), from.Unix(), to.Unix(), yfInterval(tf),
	)

	body, status, err := doGet(ctx, y.client, endpoint, map[string]string{
		"Accept": "application/json",
	})
	if err != nil {
		if status == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrTickerNotFound, ticker)
		}
		return nil, fmt.Errorf("yfinance chart %s: %w", yfTicker, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp yfChartResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse yfinance chart: %w", err)
	}

	if resp.Chart.Error != nil {
		if resp.Chart.Error.Code == "Not Found" {
			return nil, fmt.Errorf("%w: %s", ErrTickerNotFound, ticker)
		}
		return nil, fmt.Errorf("yfinance chart error: %s", resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTickerNotFound, ticker)
	}

	candles := parseYFCandles(resp.Chart.Result[0])
	y.log.Debug("fetched history", "ticker", yfTicker, "bars", len(candles))

	y.cache.Set(cacheKey, candles)
	return candles, nil
}

// --- Helpers ---

func parseYFCandles(result yfChartResult) []models.OHLCV {
	if len(result.Indicators.Quote) == 0 {
		return nil
	}

	q := result.Indicators.Quote[0]
	var adjCloses []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adjCloses = result.Indicators.AdjClose[0].AdjClose
	}

	candles := make([]models.OHLCV, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		c := models.OHLCV{
			Timestamp: utils.DateOnly(time.Unix(ts+result.Meta.GMTOffset, 0).UTC()),
			Open:      price(q.Open, i),
			High:      price(q.High, i),
			Low:       price(q.Low, i),
			Close:     price(q.Close, i),
			AdjClose:  price(adjCloses, i),
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			c.Volume = *q.Volume[i]
		}
		candles = append(candles, c)
	}
	return candles
}

func price(xs []*float64, i int) float64 {
	if i < len(xs) && xs[i] != nil {
		return *xs[i]
	}
	return math.NaN()
}

func yfInterval(tf models.Timeframe) string {
	switch tf {
	case models.Timeframe1Week:
		return "1wk"
	case models.Timeframe1Mon:
		return "1mo"
	default:
		return "1d"
	}
}
