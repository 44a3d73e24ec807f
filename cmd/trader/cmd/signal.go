package cmd

import (
	"context"
	"fmt"

	"github.com/rustyeddy/levterm/indicators"
	"github.com/rustyeddy/levterm/market"
	"github.com/rustyeddy/levterm/strategies"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var signalCmd = &cobra.Command{
	Use:   "signal [SYMBOL]",
	Short: "Evaluate the signal rules for a symbol",
	Long: `Fetch the price series for SYMBOL (feed.symbol when omitted), compute
the indicators and print the generator's recommendation for the latest
bar. No trade is placed.

Example:
  trader signal ETHUSDT --timeframe 5m`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSignal,
}

var signalTimeframe string

func init() {
	rootCmd.AddCommand(signalCmd)

	signalCmd.Flags().StringVarP(&signalTimeframe, "timeframe", "t", "", "bar timeframe (1m, 5m, 15m, 1h, 4h, 1d)")
}

func runSignal(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	symbol := market.NormalizeSymbol(a.cfg.Feed.Symbol)
	if len(args) == 1 {
		symbol = market.NormalizeSymbol(args[0])
	}
	tf := a.cfg.Timeframe()
	if signalTimeframe != "" {
		if tf, err = market.ParseTimeframe(signalTimeframe); err != nil {
			return err
		}
	}
	gen, err := strategies.ByName(a.cfg.Terminal.Generator)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.FetchTimeout())
	defer cancel()
	pts, err := a.source.FetchSeries(ctx, symbol, tf, indicators.MaxPoints)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", symbol, err)
	}

	series := indicators.NewSeries(tf)
	if err := series.Reset(pts); err != nil {
		a.logger.Warn("series reset", zap.Error(err))
	}
	p, ok := series.Latest()
	if !ok {
		return fmt.Errorf("no data for %s", symbol)
	}
	rec := gen.Evaluate(p, symbol)

	fmt.Printf("%s %s @ %s\n", symbol, tf, p.Timestamp().Local().Format("2006-01-02 15:04"))
	if a.source.Stale() {
		fmt.Println("  (synthetic data, upstream unavailable)")
	}
	fmt.Printf("  Close: %.4f  Bars: %d\n", p.Close, series.Len())
	fmt.Printf("  RSI14: %s  SMA10: %s  SMA20: %s  EMA9: %s  EMA20: %s\n",
		opt(p.RSI14), opt(p.SMA10), opt(p.SMA20), opt(p.EMA9), opt(p.EMA20))
	fmt.Printf("  Signal: %s\n", rec)
	return nil
}
