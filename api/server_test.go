package api

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/seenimoa/trendbench/internal/config"
	"github.com/seenimoa/trendbench/internal/runner"
	"github.com/seenimoa/trendbench/internal/store"
	"github.com/seenimoa/trendbench/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

func businessDays(n int) []time.Time {
	out := make([]time.Time, 0, n)
	d := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for len(out) < n {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return out
}

// fixtureConfig writes a small price panel and benchmark to CSV and returns
// a config that backtests offline against them.
func fixtureConfig(t *testing.T) *config.Config {
	t.Helper()
	const rows = 300
	dir := t.TempDir()

	prices := models.NewFrame(businessDays(rows), []string{"AAA", "BBB"})
	bench := models.NewFrame(businessDays(rows), []string{"^GSPC"})
	for i := 0; i < rows; i++ {
		x := float64(i)
		prices.Values[0][i] = 100 * math.Pow(1.001, x)
		prices.Values[1][i] = 100 + 10*math.Sin(x/15)
		bench.Values[0][i] = 3000 * (1 + 0.0004*x)
	}
	pricePath := filepath.Join(dir, "prices.csv")
	benchPath := filepath.Join(dir, "benchmark.csv")
	if err := store.WriteFrameCSV(pricePath, prices); err != nil {
		t.Fatalf("write prices: %v", err)
	}
	if err := store.WriteFrameCSV(benchPath, bench); err != nil {
		t.Fatalf("write benchmark: %v", err)
	}

	cfg := config.Default()
	cfg.Strategy.LookbackPeriod = 50
	cfg.Strategy.VolatilityLookback = 10
	cfg.Data.Universe = config.UniverseCustom
	cfg.Data.PriceFile = pricePath
	cfg.Data.BenchmarkFile = benchPath
	cfg.Data.StartDate = ""
	cfg.Data.EndDate = ""
	cfg.Output.AlignedReturnsPath = filepath.Join(dir, "aligned.csv")
	cfg.Output.RunDB = filepath.Join(dir, "runs.db")
	return cfg
}

func testServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := NewServer(cfg, nil, runner.WithIDGenerator(func() string { return "run-1" }))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

// rawResponse keeps Data undecoded so tests can unmarshal it into the
// concrete payload type.
type rawResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func do(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, rawResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	srv.Router().ServeHTTP(rec, req)

	var resp rawResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("%s %s: decode response: %v", method, path, err)
	}
	return rec, resp
}

// ════════════════════════════════════════════════════════════════════
// Construction and health
// ════════════════════════════════════════════════════════════════════

func TestNewServer_NilConfig(t *testing.T) {
	if _, err := NewServer(nil, nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestHandleHealth(t *testing.T) {
	srv := testServer(t, config.Default())
	for _, path := range []string{"/health", "/api/v1/health"} {
		rec, resp := do(t, srv, "GET", path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status: got %d, want %d", path, rec.Code, http.StatusOK)
		}
		var data map[string]string
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
		if data["status"] != "ok" {
			t.Errorf("status: got %q", data["status"])
		}
		if data["version"] != Version {
			t.Errorf("version: got %q, want %q", data["version"], Version)
		}
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := testServer(t, config.Default())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	srv.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin: got %q, want *", got)
	}
}

// ════════════════════════════════════════════════════════════════════
// Backtest handler
// ════════════════════════════════════════════════════════════════════

func TestHandleBacktest_InvalidJSON(t *testing.T) {
	srv := testServer(t, fixtureConfig(t))
	rec, resp := do(t, srv, "POST", "/api/v1/backtest", "not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if resp.Success || resp.Error == "" {
		t.Errorf("expected failure envelope, got %+v", resp)
	}
}

func TestHandleBacktest_RejectsBadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown strategy", `{"strategy":"mean_reversion"}`, "unknown strategy"},
		{"invalid from", `{"from":"2020-13-01"}`, "start_date"},
		{"inverted range", `{"from":"2021-01-01","to":"2020-01-01"}`, "not before"},
	}

	srv := testServer(t, fixtureConfig(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := do(t, srv, "POST", "/api/v1/backtest", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want %d (%s)", rec.Code, http.StatusBadRequest, resp.Error)
			}
			if !strings.Contains(resp.Error, tt.want) {
				t.Errorf("error %q should contain %q", resp.Error, tt.want)
			}
		})
	}
}

func TestHandleBacktest_WarmupLongerThanHistory(t *testing.T) {
	srv := testServer(t, fixtureConfig(t))
	rec, resp := do(t, srv, "POST", "/api/v1/backtest", `{"lookback_period":400}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d (%s)", rec.Code, http.StatusBadRequest, resp.Error)
	}
}

func TestBacktestThenBrowseHistory(t *testing.T) {
	srv := testServer(t, fixtureConfig(t))

	rec, resp := do(t, srv, "POST", "/api/v1/backtest", `{"initial_cash":50000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("backtest status: got %d (%s)", rec.Code, resp.Error)
	}
	var bt BacktestResponse
	if err := json.Unmarshal(resp.Data, &bt); err != nil {
		t.Fatalf("decode backtest: %v", err)
	}
	if bt.Run.ID != "run-1" {
		t.Errorf("run id: got %q, want run-1", bt.Run.ID)
	}
	if !bt.Saved {
		t.Error("run should be recorded")
	}
	if bt.Run.InitialCash != 50000 {
		t.Errorf("initial cash: got %v, want 50000", bt.Run.InitialCash)
	}
	if len(bt.Run.Tickers) != 2 {
		t.Errorf("tickers: got %v, want 2 from the price file", bt.Run.Tickers)
	}
	if len(bt.Tables) != 6 {
		t.Fatalf("tables: got %d, want 6", len(bt.Tables))
	}
	if bt.Tables[0].Metric != "Returns" {
		t.Errorf("first table: got %q, want Returns", bt.Tables[0].Metric)
	}

	// The run shows up in the history list.
	rec, resp = do(t, srv, "GET", "/api/v1/runs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: got %d (%s)", rec.Code, resp.Error)
	}
	var runs []RunInfo
	if err := json.Unmarshal(resp.Data, &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Fatalf("runs: got %+v", runs)
	}
	if runs[0].Strategy != "trend_following" {
		t.Errorf("strategy: got %q, want trend_following", runs[0].Strategy)
	}

	// And can be loaded with its tables.
	rec, resp = do(t, srv, "GET", "/api/v1/runs/run-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status: got %d (%s)", rec.Code, resp.Error)
	}
	var detail RunDetail
	if err := json.Unmarshal(resp.Data, &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if len(detail.Tables) != len(bt.Tables) {
		t.Errorf("stored tables: got %d, want %d", len(detail.Tables), len(bt.Tables))
	}
	if detail.Run.FinalValue != bt.Run.FinalValue {
		t.Errorf("final value: got %v, want %v", detail.Run.FinalValue, bt.Run.FinalValue)
	}
}

func TestHandleBacktest_RecordFalse(t *testing.T) {
	srv := testServer(t, fixtureConfig(t))
	rec, resp := do(t, srv, "POST", "/api/v1/backtest", `{"strategy":"breakout","record":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rec.Code, resp.Error)
	}
	var bt BacktestResponse
	if err := json.Unmarshal(resp.Data, &bt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if bt.Saved {
		t.Error("record=false should skip the run store")
	}
	if bt.Run.Strategy != "Breakout" {
		t.Errorf("strategy: got %q, want Breakout", bt.Run.Strategy)
	}
}

// ════════════════════════════════════════════════════════════════════
// Run history handlers
// ════════════════════════════════════════════════════════════════════

func TestHandleGetRun_NotFound(t *testing.T) {
	srv := testServer(t, fixtureConfig(t))
	rec, resp := do(t, srv, "GET", "/api/v1/runs/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d (%s)", rec.Code, http.StatusNotFound, resp.Error)
	}
}

func TestHandleListRuns_InvalidLimit(t *testing.T) {
	srv := testServer(t, fixtureConfig(t))
	for _, q := range []string{"abc", "0", "-3"} {
		rec, _ := do(t, srv, "GET", "/api/v1/runs?limit="+q, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: got %d, want %d", q, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestRunHistoryDisabled(t *testing.T) {
	cfg := fixtureConfig(t)
	cfg.Output.RunDB = ""
	srv := testServer(t, cfg)
	rec, resp := do(t, srv, "GET", "/api/v1/runs", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusNotFound)
	}
	if !strings.Contains(resp.Error, "disabled") {
		t.Errorf("error %q should mention disabled", resp.Error)
	}
}

// ════════════════════════════════════════════════════════════════════
// Configuration handlers
// ════════════════════════════════════════════════════════════════════

func TestHandleStrategies(t *testing.T) {
	srv := testServer(t, config.Default())
	rec, resp := do(t, srv, "GET", "/api/v1/strategies", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var infos []StrategyInfo
	if err := json.Unmarshal(resp.Data, &infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("strategies: got %d, want 2", len(infos))
	}
	for _, info := range infos {
		if (info.Name == "trend_following") != info.Default {
			t.Errorf("%s: default=%v", info.Name, info.Default)
		}
		if info.Defaults.LookbackPeriod != 200 {
			t.Errorf("%s: lookback default got %d, want 200", info.Name, info.Defaults.LookbackPeriod)
		}
	}
}

func TestHandleGetConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Data.Benchmark = "^NDX"
	srv := testServer(t, cfg)
	rec, resp := do(t, srv, "GET", "/api/v1/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var got config.Config
	if err := json.Unmarshal(resp.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Data.Benchmark != "^NDX" {
		t.Errorf("benchmark: got %q, want ^NDX", got.Data.Benchmark)
	}
	if !strings.Contains(string(resp.Data), `"lookback_period"`) {
		t.Errorf("config JSON should use snake_case keys: %s", resp.Data)
	}
}

// ════════════════════════════════════════════════════════════════════
// Helpers
// ════════════════════════════════════════════════════════════════════

func TestTablesJSON_MissingCellsAreNull(t *testing.T) {
	table := &models.MetricTable{
		Metric:  "Returns",
		Rows:    []string{"a"},
		Columns: []string{"1 Mo", "3 Mo"},
		Cells:   [][]float64{{1.5, math.NaN()}},
	}
	out := tablesJSON([]*models.MetricTable{table})
	if len(out) != 1 {
		t.Fatalf("got %d tables", len(out))
	}
	cells := out[0].Cells[0]
	if cells[0] == nil || *cells[0] != 1.5 {
		t.Errorf("cell 0: got %v, want 1.5", cells[0])
	}
	if cells[1] != nil {
		t.Errorf("cell 1: got %v, want nil", *cells[1])
	}
	if _, err := json.Marshal(out); err != nil {
		t.Errorf("marshal: %v", err)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrConfig, http.StatusBadRequest},
		{store.ErrRunNotFound, http.StatusNotFound},
		{errHistoryDisabled, http.StatusNotFound},
		{http.ErrHandlerTimeout, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
