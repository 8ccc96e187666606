// Package config handles configuration loading for trendbench.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/seenimoa/trendbench/internal/backtest"
	"github.com/seenimoa/trendbench/internal/performance"
	"github.com/seenimoa/trendbench/pkg/models"
	"github.com/seenimoa/trendbench/pkg/utils"
)

// EnvPrefix prefixes every environment override, e.g. TRENDBENCH_DATA_BENCHMARK.
const EnvPrefix = "TRENDBENCH"

// Universe names accepted by data.universe.
const (
	UniverseSP500  = "sp500"
	UniverseCustom = "custom"
)

// Config represents the complete application configuration.
type Config struct {
	Strategy  StrategyConfig  `mapstructure:"strategy"  yaml:"strategy" json:"strategy"`
	Backtest  BacktestConfig  `mapstructure:"backtest"  yaml:"backtest" json:"backtest"`
	Analytics AnalyticsConfig `mapstructure:"analytics" yaml:"analytics" json:"analytics"`
	Data      DataConfig      `mapstructure:"data"      yaml:"data" json:"data"`
	Output    OutputConfig    `mapstructure:"output"    yaml:"output" json:"output"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging" json:"logging"`
	API       APIConfig       `mapstructure:"api"       yaml:"api" json:"api"`
}

// StrategyConfig selects the strategy and its parameters.
type StrategyConfig struct {
	Name               string  `mapstructure:"name"                yaml:"name" json:"name"` // "trend_following", "breakout"
	LookbackPeriod     int     `mapstructure:"lookback_period"     yaml:"lookback_period" json:"lookback_period"`
	VolatilityLookback int     `mapstructure:"volatility_lookback" yaml:"volatility_lookback" json:"volatility_lookback"`
	RiskPerTrade       float64 `mapstructure:"risk_per_trade"      yaml:"risk_per_trade" json:"risk_per_trade"`
	MaxPositionSize    float64 `mapstructure:"max_position_size"   yaml:"max_position_size" json:"max_position_size"`
}

// BacktestConfig holds engine settings.
type BacktestConfig struct {
	InitialCash float64 `mapstructure:"initial_cash" yaml:"initial_cash" json:"initial_cash"`
	TrimWarmup  bool    `mapstructure:"trim_warmup"  yaml:"trim_warmup" json:"trim_warmup"` // drop the first lookback_period rows before analytics
}

// AnalyticsConfig holds performance analytics settings.
type AnalyticsConfig struct {
	RiskFreeRate float64 `mapstructure:"risk_free_rate" yaml:"risk_free_rate" json:"risk_free_rate"` // annual
}

// DataConfig holds market data settings.
type DataConfig struct {
	Universe          string   `mapstructure:"universe"            yaml:"universe" json:"universe"` // "sp500" or "custom"
	Tickers           []string `mapstructure:"tickers"             yaml:"tickers" json:"tickers"`
	MaxTickers        int      `mapstructure:"max_tickers"         yaml:"max_tickers" json:"max_tickers"`
	Benchmark         string   `mapstructure:"benchmark"           yaml:"benchmark" json:"benchmark"`
	StartDate         string   `mapstructure:"start_date"          yaml:"start_date" json:"start_date"`
	EndDate           string   `mapstructure:"end_date"            yaml:"end_date" json:"end_date"` // exclusive
	Field             string   `mapstructure:"field"               yaml:"field" json:"field"`
	PriceFile         string   `mapstructure:"price_file"          yaml:"price_file" json:"price_file"`
	BenchmarkFile     string   `mapstructure:"benchmark_file"      yaml:"benchmark_file" json:"benchmark_file"`
	ConstituentsURL   string   `mapstructure:"constituents_url"    yaml:"constituents_url" json:"constituents_url"`
	Concurrency       int      `mapstructure:"concurrency"         yaml:"concurrency" json:"concurrency"`
	CacheTTL          int      `mapstructure:"cache_ttl"           yaml:"cache_ttl" json:"cache_ttl"` // seconds
	RequestsPerSecond int      `mapstructure:"requests_per_second" yaml:"requests_per_second" json:"requests_per_second"`
}

// OutputConfig holds artifact locations.
type OutputConfig struct {
	AlignedReturnsPath string `mapstructure:"aligned_returns_path" yaml:"aligned_returns_path" json:"aligned_returns_path"`
	RunDB              string `mapstructure:"run_db"               yaml:"run_db" json:"run_db"` // empty disables run history
	Format             string `mapstructure:"format"               yaml:"format" json:"format"` // "table" or "csv"
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level" json:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format" json:"format"` // "text" or "json"
}

// APIConfig holds HTTP server settings for "trendbench serve".
type APIConfig struct {
	Addr        string   `mapstructure:"addr"         yaml:"addr" json:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins" json:"cors_origins"`
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.trendbench/config.yaml (home directory)
//  3. /etc/trendbench/config.yaml (system)
//
// Environment variables override config file values.
// Format: TRENDBENCH_<SECTION>_<KEY>, e.g., TRENDBENCH_DATA_BENCHMARK
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".trendbench"))
	v.AddConfigPath("/etc/trendbench")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

// Default returns the built-in configuration with no file or environment
// applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(err) // defaults always decode
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets the reference run as the default for every value.
func setDefaults(v *viper.Viper) {
	def := backtest.DefaultParams()

	// Strategy defaults
	v.SetDefault("strategy.name", backtest.TrendFollowingName)
	v.SetDefault("strategy.lookback_period", def.LookbackPeriod)
	v.SetDefault("strategy.volatility_lookback", def.VolatilityLookback)
	v.SetDefault("strategy.risk_per_trade", def.RiskPerTrade)
	v.SetDefault("strategy.max_position_size", def.MaxPositionSize)

	// Backtest defaults
	v.SetDefault("backtest.initial_cash", backtest.DefaultConfig().InitialCash)
	v.SetDefault("backtest.trim_warmup", true)

	// Analytics defaults
	v.SetDefault("analytics.risk_free_rate", 0.0)

	// Data defaults
	v.SetDefault("data.universe", UniverseSP500)
	v.SetDefault("data.tickers", []string{})
	v.SetDefault("data.max_tickers", 10)
	v.SetDefault("data.benchmark", "^GSPC")
	v.SetDefault("data.start_date", "2014-01-01")
	v.SetDefault("data.end_date", "2025-05-12")
	v.SetDefault("data.field", string(models.FieldOpen))
	v.SetDefault("data.price_file", "")
	v.SetDefault("data.benchmark_file", "")
	v.SetDefault("data.constituents_url", "")
	v.SetDefault("data.concurrency", 4)
	v.SetDefault("data.cache_ttl", 900) // 15 minutes
	v.SetDefault("data.requests_per_second", 5)

	// Output defaults
	v.SetDefault("output.aligned_returns_path", performance.DefaultAlignedPath)
	v.SetDefault("output.run_db", "data/trendbench.db")
	v.SetDefault("output.format", "table")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// API defaults
	v.SetDefault("api.addr", "127.0.0.1:8080")
	v.SetDefault("api.cors_origins", []string{})
}

// overrideFromEnv reads list values viper cannot bind from a plain
// environment string.
func overrideFromEnv(cfg *Config) {
	if raw := os.Getenv(EnvPrefix + "_DATA_TICKERS"); raw != "" {
		cfg.Data.Tickers = strings.FieldsFunc(raw, func(r rune) bool {
			return r == ',' || r == ' '
		})
	}
}

// ════════════════════════════════════════════════════════════════════
// Validation and derived values
// ════════════════════════════════════════════════════════════════════

// Validate reports the first invalid setting, wrapped in models.ErrConfig.
func (c *Config) Validate() error {
	if _, err := backtest.NewStrategy(c.Strategy.Name, c.StrategyParams()); err != nil {
		return err
	}
	if c.Backtest.InitialCash <= 0 {
		return fmt.Errorf("%w: backtest.initial_cash must be positive, got %g", models.ErrConfig, c.Backtest.InitialCash)
	}
	switch c.Data.Universe {
	case UniverseSP500:
	case UniverseCustom:
		if len(c.Data.Tickers) == 0 && c.Data.PriceFile == "" {
			return fmt.Errorf("%w: data.universe %q needs data.tickers or data.price_file", models.ErrConfig, UniverseCustom)
		}
	default:
		return fmt.Errorf("%w: unknown data.universe %q", models.ErrConfig, c.Data.Universe)
	}
	if c.Data.MaxTickers < 0 {
		return fmt.Errorf("%w: data.max_tickers must not be negative", models.ErrConfig)
	}
	if c.Data.Benchmark == "" && c.Data.BenchmarkFile == "" {
		return fmt.Errorf("%w: data.benchmark is required", models.ErrConfig)
	}
	if _, err := models.ParsePriceField(c.Data.Field); err != nil {
		return err
	}
	from, to, err := c.DateRange()
	if err != nil {
		return err
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return fmt.Errorf("%w: data.start_date %s is not before data.end_date %s",
			models.ErrConfig, c.Data.StartDate, c.Data.EndDate)
	}
	switch c.Output.Format {
	case "table", "csv":
	default:
		return fmt.Errorf("%w: unknown output.format %q", models.ErrConfig, c.Output.Format)
	}
	return nil
}

// StrategyParams returns the strategy section as backtest parameters.
func (c *Config) StrategyParams() backtest.Params {
	return backtest.Params{
		LookbackPeriod:     c.Strategy.LookbackPeriod,
		VolatilityLookback: c.Strategy.VolatilityLookback,
		RiskPerTrade:       c.Strategy.RiskPerTrade,
		MaxPositionSize:    c.Strategy.MaxPositionSize,
	}
}

// DateRange parses the start and end dates. An empty date yields the zero
// time, meaning unbounded.
func (c *Config) DateRange() (from, to time.Time, err error) {
	if c.Data.StartDate != "" {
		if from, err = utils.ParseDate(c.Data.StartDate); err != nil {
			return from, to, fmt.Errorf("%w: data.start_date: %v", models.ErrConfig, err)
		}
	}
	if c.Data.EndDate != "" {
		if to, err = utils.ParseDate(c.Data.EndDate); err != nil {
			return from, to, fmt.Errorf("%w: data.end_date: %v", models.ErrConfig, err)
		}
	}
	return from, to, nil
}

// CacheTTL returns data.cache_ttl as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Data.CacheTTL) * time.Second
}

// WriteYAML writes the effective configuration as YAML.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
