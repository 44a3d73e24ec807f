package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rustyeddy/levterm/market"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the complete terminal configuration
type Config struct {
	Account  AccountConfig  `json:"account" yaml:"account"`
	Risk     RiskConfig     `json:"risk" yaml:"risk"`
	Feed     FeedConfig     `json:"feed" yaml:"feed"`
	Terminal TerminalConfig `json:"terminal" yaml:"terminal"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	Cash float64 `json:"cash" yaml:"cash"`
}

// RiskConfig is the account-wide risk surface. Thresholds are percent of
// margin in use.
type RiskConfig struct {
	Leverage      int             `json:"leverage" yaml:"leverage"`
	StopLossPct   int             `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	TakeProfitPct int             `json:"take_profit_pct" yaml:"take_profit_pct"`
	LotSize       decimal.Decimal `json:"lot_size" yaml:"lot_size"`
}

// Lot returns the lot size as a float for the engine.
func (r RiskConfig) Lot() float64 {
	return r.LotSize.InexactFloat64()
}

// FeedConfig selects and tunes the market data source
type FeedConfig struct {
	Symbol    string  `json:"symbol" yaml:"symbol"`
	Timeframe string  `json:"timeframe" yaml:"timeframe"`
	BaseURL   string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	StreamURL string  `json:"stream_url,omitempty" yaml:"stream_url,omitempty"`
	Stream    bool    `json:"stream" yaml:"stream"`
	Timeout   string  `json:"timeout" yaml:"timeout"` // e.g. "5s"
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`
	Offline   bool    `json:"offline" yaml:"offline"`
}

// TerminalConfig contains the event loop cadences
type TerminalConfig struct {
	Autonomous     bool    `json:"autonomous" yaml:"autonomous"`
	Generator      string  `json:"generator" yaml:"generator"`
	PollInterval   string  `json:"poll_interval" yaml:"poll_interval"`
	SignalInterval string  `json:"signal_interval" yaml:"signal_interval"`
	EquityInterval string  `json:"equity_interval" yaml:"equity_interval"`
	SignalLatency  string  `json:"signal_latency" yaml:"signal_latency"`
	MinConfidence  float64 `json:"min_confidence" yaml:"min_confidence"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "memory", "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // "console" or "json"
}

type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"` // e.g. ":9090"
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

var minLot = decimal.RequireFromString("0.01")

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Cash < 0 {
		return fmt.Errorf("account.cash must not be negative")
	}
	if c.Risk.Leverage < 5 || c.Risk.Leverage > 100 {
		return fmt.Errorf("risk.leverage must be between 5 and 100")
	}
	if c.Risk.StopLossPct < 1 || c.Risk.StopLossPct > 50 {
		return fmt.Errorf("risk.stop_loss_pct must be between 1 and 50")
	}
	if c.Risk.TakeProfitPct < 5 || c.Risk.TakeProfitPct > 200 {
		return fmt.Errorf("risk.take_profit_pct must be between 5 and 200")
	}
	if c.Risk.LotSize.LessThan(minLot) {
		return fmt.Errorf("risk.lot_size must be at least %s", minLot)
	}
	if market.NormalizeSymbol(c.Feed.Symbol) == "" {
		return fmt.Errorf("feed.symbol is required")
	}
	if _, err := market.ParseTimeframe(c.Feed.Timeframe); err != nil {
		return fmt.Errorf("feed.timeframe: %w", err)
	}
	if c.Feed.RateLimit < 0 {
		return fmt.Errorf("feed.rate_limit must not be negative")
	}
	for _, d := range []struct{ name, value string }{
		{"feed.timeout", c.Feed.Timeout},
		{"terminal.poll_interval", c.Terminal.PollInterval},
		{"terminal.signal_interval", c.Terminal.SignalInterval},
		{"terminal.equity_interval", c.Terminal.EquityInterval},
	} {
		v, err := time.ParseDuration(d.value)
		if err != nil || v <= 0 {
			return fmt.Errorf("%s must be a positive duration", d.name)
		}
	}
	if v, err := parseDuration(c.Terminal.SignalLatency); err != nil || v < 0 {
		return fmt.Errorf("terminal.signal_latency must be a duration")
	}
	if c.Terminal.MinConfidence < 0 || c.Terminal.MinConfidence > 1 {
		return fmt.Errorf("terminal.min_confidence must be between 0 and 1")
	}
	switch c.Journal.Type {
	case "memory":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'memory', 'csv' or 'sqlite'")
	}
	if c.Log.Format != "" && c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be 'console' or 'json'")
	}
	return nil
}

// Timeframe returns the parsed feed timeframe.
func (c *Config) Timeframe() market.Timeframe {
	tf, err := market.ParseTimeframe(c.Feed.Timeframe)
	if err != nil {
		return market.M1
	}
	return tf
}

// FetchTimeout returns feed.timeout, defaulting to 5s.
func (c *Config) FetchTimeout() time.Duration {
	return durationOr(c.Feed.Timeout, 5*time.Second)
}

// Intervals returns the poll, signal and equity cadences and the
// simulated signal latency.
func (t TerminalConfig) Intervals() (poll, signal, equity, latency time.Duration) {
	return durationOr(t.PollInterval, 2*time.Second),
		durationOr(t.SignalInterval, 10*time.Second),
		durationOr(t.EquityInterval, 5*time.Second),
		durationOr(t.SignalLatency, 0)
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func durationOr(s string, def time.Duration) time.Duration {
	d, err := parseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			Cash: 10000,
		},
		Risk: RiskConfig{
			Leverage:      20,
			StopLossPct:   15,
			TakeProfitPct: 30,
			LotSize:       minLot,
		},
		Feed: FeedConfig{
			Symbol:    "BTCUSDT",
			Timeframe: "1m",
			Timeout:   "5s",
			RateLimit: 10,
		},
		Terminal: TerminalConfig{
			Generator:      "rules",
			PollInterval:   "2s",
			SignalInterval: "10s",
			EquityInterval: "5s",
			SignalLatency:  "1s",
			MinConfidence:  0.6,
		},
		Journal: JournalConfig{
			Type: "memory",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
