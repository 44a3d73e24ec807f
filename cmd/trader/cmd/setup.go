package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rustyeddy/levterm/config"
	"github.com/rustyeddy/levterm/feed"
	"github.com/rustyeddy/levterm/internal/logging"
	"github.com/rustyeddy/levterm/journal"
	"github.com/rustyeddy/levterm/metrics"
	"github.com/rustyeddy/levterm/sim"
	"github.com/rustyeddy/levterm/strategies"
	"github.com/rustyeddy/levterm/terminal"
	"go.uber.org/zap"
)

// app bundles what every command needs.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	journal  journal.Journal
	source   *feed.Fallback
	engine   *sim.Engine
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if offline {
		cfg.Feed.Offline = true
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	j, err := openJournal(cfg.Journal)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("create journal: %w", err)
	}

	// A nil primary makes the fallback serve synthetic data only.
	var primary feed.Source
	if !cfg.Feed.Offline {
		primary = feed.NewHTTP(cfg.Feed.BaseURL, cfg.FetchTimeout(), cfg.Feed.RateLimit)
	}
	src := feed.NewFallback(primary, feed.NewSynthetic(), logger, m)

	engine := sim.NewEngine(sim.NewAccount(cfg.Account.Cash), j,
		sim.WithLogger(logger),
		sim.WithMetrics(m),
		sim.WithLimits(sim.Limits{
			StopLossPct:   float64(cfg.Risk.StopLossPct),
			TakeProfitPct: float64(cfg.Risk.TakeProfitPct),
		}))

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  m,
		journal:  j,
		source:   src,
		engine:   engine,
	}, nil
}

// terminal builds the event loop for the configured symbol.
func (a *app) terminal(autonomous bool) (*terminal.Terminal, error) {
	gen, err := strategies.ByName(a.cfg.Terminal.Generator)
	if err != nil {
		return nil, err
	}
	poll, signal, equity, latency := a.cfg.Terminal.Intervals()

	opts := []terminal.Option{
		terminal.WithLogger(a.logger),
		terminal.WithMetrics(a.metrics),
	}
	if a.cfg.Feed.Stream && !a.cfg.Feed.Offline {
		opts = append(opts, terminal.WithStream(feed.NewStream(a.cfg.Feed.StreamURL, a.logger)))
	}

	return terminal.New(terminal.Config{
		Symbol:         a.cfg.Feed.Symbol,
		Timeframe:      a.cfg.Timeframe(),
		PollInterval:   poll,
		SignalInterval: signal,
		EquityInterval: equity,
		FetchTimeout:   a.cfg.FetchTimeout(),
		SignalLatency:  latency,
		Autonomous:     autonomous || a.cfg.Terminal.Autonomous,
		MinConfidence:  a.cfg.Terminal.MinConfidence,
		Leverage:       a.cfg.Risk.Leverage,
		LotSize:        a.cfg.Risk.Lot(),
	}, a.source, gen, a.engine, opts...), nil
}

func (a *app) close() {
	if err := a.journal.Close(); err != nil {
		a.logger.Warn("close journal", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func openJournal(c config.JournalConfig) (journal.Journal, error) {
	switch c.Type {
	case "csv":
		return journal.NewCSV(c.TradesFile, c.EquityFile)
	case "sqlite":
		return journal.NewSQLite(c.DBPath)
	default:
		return journal.NewMemory(), nil
	}
}

func printState(s sim.State) {
	if s.Position.Flat() {
		fmt.Printf("  Position:    flat\n")
	} else {
		fmt.Printf("  Position:    %s\n", s.Position)
		fmt.Printf("  Mark:        %.4f\n", s.Price)
		fmt.Printf("  Liquidation: %.4f\n", s.LiquidationPrice)
		fmt.Printf("  Margin:      $%.2f\n", s.MarginInUse)
		fmt.Printf("  Unrealized:  $%.2f (ROI %.2f%%)\n", s.UnrealizedPnL, s.ROI)
	}
	fmt.Printf("  Cash:        $%.2f\n", s.Cash)
	fmt.Printf("  Equity:      $%.2f\n", s.Equity)
	fmt.Printf("  P/L:         $%.2f\n", s.PnL())
}
