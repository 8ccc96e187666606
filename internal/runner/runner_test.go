package runner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/seenimoa/trendbench/internal/config"
	"github.com/seenimoa/trendbench/internal/performance"
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

// pricePanel holds a rising, a falling and an oscillating instrument.
func pricePanel(n int) *models.Frame {
	f := models.NewFrame(businessDays(n), []string{"AAA", "BBB", "CCC"})
	for i := 0; i < n; i++ {
		x := float64(i)
		f.Values[0][i] = 100 * math.Pow(1.001, x)
		f.Values[1][i] = 100 * math.Pow(0.999, x)
		f.Values[2][i] = 100 + 10*math.Sin(x/15)
	}
	return f
}

func benchmarkPanel(n int) *models.Frame {
	f := models.NewFrame(businessDays(n), []string{"^GSPC"})
	for i := 0; i < n; i++ {
		f.Values[0][i] = 3000 * (1 + 0.0004*float64(i))
	}
	return f
}

// fixtureConfig writes the price and benchmark panels to CSV files and
// returns a config that runs offline against them.
func fixtureConfig(t *testing.T, rows int) *config.Config {
	t.Helper()
	dir := t.TempDir()
	prices := filepath.Join(dir, "prices.csv")
	bench := filepath.Join(dir, "benchmark.csv")
	if err := store.WriteFrameCSV(prices, pricePanel(rows)); err != nil {
		t.Fatalf("write prices: %v", err)
	}
	if err := store.WriteFrameCSV(bench, benchmarkPanel(rows)); err != nil {
		t.Fatalf("write benchmark: %v", err)
	}

	cfg := config.Default()
	cfg.Strategy.LookbackPeriod = 50
	cfg.Strategy.VolatilityLookback = 10
	cfg.Data.Universe = config.UniverseCustom
	cfg.Data.PriceFile = prices
	cfg.Data.BenchmarkFile = bench
	cfg.Data.StartDate = ""
	cfg.Data.EndDate = ""
	cfg.Output.AlignedReturnsPath = filepath.Join(dir, "out", "aligned.csv")
	cfg.Output.RunDB = filepath.Join(dir, "runs.db")
	return cfg
}

func fixedID(id string) Option {
	return WithIDGenerator(func() string { return id })
}

type fakeUniverse []string

func (u fakeUniverse) Tickers(context.Context) []string { return append([]string(nil), u...) }

// recordingProvider serves a fixed panel and remembers the tickers asked for.
type recordingProvider struct {
	panel     *models.Frame
	requested []string
}

func (p *recordingProvider) Name() string { return "recording" }

func (p *recordingProvider) GetPanel(_ context.Context, tickers []string, _, _ time.Time, _ models.PriceField) (*models.Frame, error) {
	p.requested = tickers
	return p.panel, nil
}

// ════════════════════════════════════════════════════════════════════
// New
// ════════════════════════════════════════════════════════════════════

func TestNew_RejectsBadConfig(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, models.ErrConfig) {
		t.Errorf("New(nil) error = %v, want ErrConfig", err)
	}
	cfg := config.Default()
	cfg.Strategy.Name = "momentum"
	if _, err := New(cfg); !errors.Is(err, models.ErrConfig) {
		t.Errorf("New(unknown strategy) error = %v, want ErrConfig", err)
	}
}

// ════════════════════════════════════════════════════════════════════
// Run
// ════════════════════════════════════════════════════════════════════

func TestRun_OfflineEndToEnd(t *testing.T) {
	const rows = 300
	cfg := fixtureConfig(t, rows)
	r, err := New(cfg, fixedID("run-42"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if out.RunID != "run-42" {
		t.Errorf("RunID = %q, want run-42", out.RunID)
	}
	if got := strings.Join(out.Tickers, ","); got != "AAA,BBB,CCC" {
		t.Errorf("Tickers = %q, want AAA,BBB,CCC", got)
	}
	if out.Benchmark != "^GSPC" {
		t.Errorf("Benchmark = %q, want ^GSPC", out.Benchmark)
	}
	wantCols := []string{"trend_following_returns", performance.BenchmarkColumn}
	if strings.Join(out.Aligned.Columns, ",") != strings.Join(wantCols, ",") {
		t.Errorf("aligned columns = %v, want %v", out.Aligned.Columns, wantCols)
	}
	if out.Aligned.Len() != rows {
		t.Errorf("aligned rows = %d, want %d", out.Aligned.Len(), rows)
	}
	if out.Analysed.Len() != rows-50 {
		t.Errorf("analysed rows = %d, want %d", out.Analysed.Len(), rows-50)
	}
	if !out.Analysed.Index[0].Equal(out.Aligned.Index[50]) {
		t.Errorf("analysed table starts at %v, want %v", out.Analysed.Index[0], out.Aligned.Index[50])
	}

	// Gaps are zero-filled, including the benchmark's first pct-change.
	if v := out.Aligned.Values[1][0]; v != 0 {
		t.Errorf("first benchmark return = %v, want 0", v)
	}
	if out.Result.FinalValue <= 0 {
		t.Errorf("FinalValue = %v, want > 0", out.Result.FinalValue)
	}

	if len(out.Tables) != 6 {
		t.Fatalf("got %d tables, want 6", len(out.Tables))
	}
	if out.Tables[0].Metric != performance.MetricReturns {
		t.Errorf("first table = %q, want %q", out.Tables[0].Metric, performance.MetricReturns)
	}
	since, ok := out.Tables[0].SinceColumn()
	if !ok || since != models.SincePrefix+out.Analysed.Index[0].Format(models.DateLayout) {
		t.Errorf("since column = %q, %v", since, ok)
	}

	persisted, err := store.ReadFrame(cfg.Output.AlignedReturnsPath)
	if err != nil {
		t.Fatalf("read persisted aligned table: %v", err)
	}
	if persisted.Len() != rows || persisted.Width() != 2 {
		t.Errorf("persisted shape = %dx%d, want %dx2", persisted.Len(), persisted.Width(), rows)
	}

	if !out.Saved {
		t.Fatal("run should be recorded")
	}
	rs, err := store.OpenRunStore(context.Background(), cfg.Output.RunDB)
	if err != nil {
		t.Fatalf("OpenRunStore: %v", err)
	}
	defer rs.Close()
	run, err := rs.GetRun(context.Background(), "run-42")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Strategy != "trend_following" || run.Benchmark != "^GSPC" || len(run.Tickers) != 3 {
		t.Errorf("stored run = %+v", run)
	}
	tables, err := rs.LoadTables(context.Background(), "run-42")
	if err != nil {
		t.Fatalf("LoadTables: %v", err)
	}
	if len(tables) != 6 {
		t.Errorf("stored %d tables, want 6", len(tables))
	}

	sum := out.Summary()
	if sum.Strategy != "Trend Following" || sum.InitialCash != 100000 {
		t.Errorf("Summary = %+v", sum)
	}
}

func TestRun_NoTrimNoPersistence(t *testing.T) {
	cfg := fixtureConfig(t, 120)
	cfg.Backtest.TrimWarmup = false
	cfg.Output.AlignedReturnsPath = ""
	cfg.Output.RunDB = ""
	cfg.Strategy.Name = "breakout"

	r, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Analysed.Len() != out.Aligned.Len() {
		t.Errorf("analysed %d rows, aligned %d; want equal without trim", out.Analysed.Len(), out.Aligned.Len())
	}
	if out.Saved {
		t.Error("run should not be recorded without run_db")
	}
	if out.Aligned.Columns[0] != "breakout_returns" {
		t.Errorf("strategy column = %q, want breakout_returns", out.Aligned.Columns[0])
	}
	if len(out.RunID) != 36 {
		t.Errorf("default run ID %q is not a UUID", out.RunID)
	}
}

func TestRun_WarmupLongerThanHistory(t *testing.T) {
	cfg := fixtureConfig(t, 60)
	cfg.Strategy.LookbackPeriod = 80
	r, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Run(context.Background()); !errors.Is(err, models.ErrConfig) {
		t.Errorf("Run error = %v, want ErrConfig", err)
	}
}

func TestRun_BenchmarkFileFirstColumn(t *testing.T) {
	cfg := fixtureConfig(t, 100)
	cfg.Data.Benchmark = ""
	cfg.Output.RunDB = ""
	r, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Benchmark != "^GSPC" {
		t.Errorf("Benchmark = %q, want first file column ^GSPC", out.Benchmark)
	}
}

func TestRun_UniverseLimitedToMaxTickers(t *testing.T) {
	cfg := config.Default()
	cfg.Strategy.LookbackPeriod = 20
	cfg.Strategy.VolatilityLookback = 5
	cfg.Data.MaxTickers = 2
	cfg.Output.AlignedReturnsPath = ""
	cfg.Output.RunDB = ""

	universe := make(fakeUniverse, 12)
	for i := range universe {
		universe[i] = fmt.Sprintf("T%02d", i)
	}
	prices := &recordingProvider{panel: pricePanel(60)}
	bench := &recordingProvider{panel: benchmarkPanel(60)}

	r, err := New(cfg,
		WithUniverse(universe),
		WithPriceProvider(prices),
		WithBenchmarkProvider(bench),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Join(prices.requested, ","); got != "T00,T01" {
		t.Errorf("requested tickers = %q, want T00,T01", got)
	}
	if got := strings.Join(bench.requested, ","); got != "^GSPC" {
		t.Errorf("benchmark request = %q, want ^GSPC", got)
	}
}

func TestRun_ExplicitTickersOverrideUniverse(t *testing.T) {
	cfg := config.Default()
	cfg.Strategy.LookbackPeriod = 20
	cfg.Strategy.VolatilityLookback = 5
	cfg.Data.Tickers = []string{"brk.b", "aapl", "AAPL"}
	cfg.Output.AlignedReturnsPath = ""
	cfg.Output.RunDB = ""

	prices := &recordingProvider{panel: pricePanel(60)}
	r, err := New(cfg,
		WithUniverse(fakeUniverse{"XXX"}),
		WithPriceProvider(prices),
		WithBenchmarkProvider(&recordingProvider{panel: benchmarkPanel(60)}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Join(prices.requested, ","); got != "BRK-B,AAPL" {
		t.Errorf("requested tickers = %q, want BRK-B,AAPL", got)
	}
}
