// trendbench: trend-following backtests with benchmark-relative performance
// analytics.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seenimoa/trendbench/api"
	"github.com/seenimoa/trendbench/internal/backtest"
	"github.com/seenimoa/trendbench/internal/config"
	"github.com/seenimoa/trendbench/internal/datasource"
	"github.com/seenimoa/trendbench/internal/infra"
	"github.com/seenimoa/trendbench/internal/performance"
	"github.com/seenimoa/trendbench/internal/report"
	"github.com/seenimoa/trendbench/internal/runner"
	"github.com/seenimoa/trendbench/internal/store"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, set by the root command.
var (
	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "trendbench",
	Short: "trendbench: trend-following backtests and performance analytics",
	Long: `trendbench runs a volatility-targeted trend-following strategy over a
universe of equities, compares it with a benchmark index and reports
windowed return, volatility, Sharpe and drawdown tables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		logger = infra.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(constituentsCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default: api.addr)")
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "trendbench %s\n", version)
		fmt.Fprintf(out, "  commit:  %s\n", commit)
		fmt.Fprintf(out, "  built:   %s\n", date)
	},
}

// --- Run Command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured backtest and print its metric tables",
	Long: `Run the full pipeline: resolve the ticker universe, fetch prices and the
benchmark, backtest the strategy, align and persist daily returns, and print
the return summary, gross return, volatility, Sharpe, drawdown and annual
return tables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyRunFlags(cmd); err != nil {
			return err
		}
		format, err := report.ParseFormat(cfg.Output.Format)
		if err != nil {
			return err
		}

		r, err := runner.New(cfg, runner.WithLogger(logger))
		if err != nil {
			return err
		}
		out, err := r.Run(cmd.Context())
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if format == report.FormatTable {
			if err := report.RenderSummary(w, out.Summary()); err != nil {
				return err
			}
			fmt.Fprintln(w)
		}
		if err := report.RenderTables(w, out.Tables, format); err != nil {
			return err
		}

		if path, _ := cmd.Flags().GetString("html"); path != "" {
			html, err := report.GenerateHTML(report.HTMLInput{
				Summary: out.Summary(),
				Returns: out.Analysed,
				Tables:  out.Tables,
				Chart:   report.DefaultChartConfig(),
			})
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
				return fmt.Errorf("write HTML report: %w", err)
			}
			logger.Info("wrote HTML report", "path", path)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().String("strategy", "", fmt.Sprintf("strategy override %v", backtest.BuiltinStrategies()))
	runCmd.Flags().StringSlice("tickers", nil, "explicit tickers (overrides the universe)")
	runCmd.Flags().String("benchmark", "", "benchmark ticker override")
	runCmd.Flags().String("start", "", "start date override (YYYY-MM-DD)")
	runCmd.Flags().String("end", "", "end date override, exclusive (YYYY-MM-DD)")
	runCmd.Flags().String("prices", "", "offline price panel (CSV or Parquet)")
	runCmd.Flags().String("format", "", "output format override (table, csv)")
	runCmd.Flags().String("html", "", "also write an HTML report to this path")
	runCmd.Flags().Bool("no-record", false, "do not record the run in the run database")
}

// applyRunFlags overlays command-line overrides on the loaded config and
// re-validates it.
func applyRunFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	if v, _ := f.GetString("strategy"); v != "" {
		cfg.Strategy.Name = v
	}
	if v, _ := f.GetStringSlice("tickers"); len(v) > 0 {
		cfg.Data.Tickers = v
		cfg.Data.Universe = config.UniverseCustom
	}
	if v, _ := f.GetString("benchmark"); v != "" {
		cfg.Data.Benchmark = v
	}
	if v, _ := f.GetString("start"); v != "" {
		cfg.Data.StartDate = v
	}
	if v, _ := f.GetString("end"); v != "" {
		cfg.Data.EndDate = v
	}
	if v, _ := f.GetString("prices"); v != "" {
		cfg.Data.PriceFile = v
	}
	if v, _ := f.GetString("format"); v != "" {
		cfg.Output.Format = v
	}
	if v, _ := f.GetBool("no-record"); v {
		cfg.Output.RunDB = ""
	}
	return cfg.Validate()
}

// --- Metrics Command ---

var metricsCmd = &cobra.Command{
	Use:   "metrics [aligned.csv|aligned.parquet]",
	Short: "Recompute metric tables from a persisted aligned returns table",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Output.AlignedReturnsPath
		if len(args) == 1 {
			path = args[0]
		}
		trim, _ := cmd.Flags().GetInt("trim")
		format, err := report.ParseFormat(cfg.Output.Format)
		if err != nil {
			return err
		}

		table, err := store.ReadFrame(path)
		if err != nil {
			return err
		}
		if trim > 0 {
			table = table.SliceFrom(trim)
		}
		a, err := performance.New(table)
		if err != nil {
			return err
		}
		tables, err := performance.StandardTables(a, cfg.Analytics.RiskFreeRate)
		if err != nil {
			return err
		}
		return report.RenderTables(cmd.OutOrStdout(), tables, format)
	},
}

func init() {
	metricsCmd.Flags().Int("trim", 0, "drop this many leading rows before computing metrics")
}

// --- Constituents Command ---

var constituentsCmd = &cobra.Command{
	Use:   "constituents",
	Short: "Print the S&P 500 constituent tickers",
	Long: `Print the S&P 500 constituent tickers scraped from Wikipedia, in Yahoo
Finance form. When the page cannot be fetched a short fallback list is
printed and a warning is logged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		tickers := datasource.NewConstituents(cfg.Data.ConstituentsURL, logger).Tickers(cmd.Context())
		if limit > 0 && len(tickers) > limit {
			tickers = tickers[:limit]
		}
		for _, t := range tickers {
			fmt.Fprintln(cmd.OutOrStdout(), t)
		}
		return nil
	},
}

func init() {
	constituentsCmd.Flags().Int("limit", 0, "print at most this many tickers")
}

// --- Runs Command ---

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List recorded runs, or show the metric tables of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Output.RunDB == "" {
			return fmt.Errorf("run history is disabled (output.run_db is empty)")
		}
		format, err := report.ParseFormat(cfg.Output.Format)
		if err != nil {
			return err
		}
		rs, err := store.OpenRunStore(cmd.Context(), cfg.Output.RunDB)
		if err != nil {
			return err
		}
		defer rs.Close()

		w := cmd.OutOrStdout()
		if len(args) == 1 {
			run, err := rs.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tables, err := rs.LoadTables(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if err := report.RenderRuns(w, []store.Run{run}, format); err != nil {
				return err
			}
			fmt.Fprintln(w)
			return report.RenderTables(w, tables, format)
		}

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := rs.ListRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
		return report.RenderRuns(w, runs, format)
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "show at most this many runs (0 for all)")
}

// --- Config Command ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cfg.WriteYAML(cmd.OutOrStdout())
	},
}

// --- Serve Command ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.API.Addr
		}
		api.Version = version
		srv, err := api.NewServer(cfg, logger)
		if err != nil {
			return err
		}
		return srv.ListenAndServe(cmd.Context(), addr)
	},
}
