package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/levterm/sim"
	"github.com/rustyeddy/levterm/terminal"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var tradeCmd = &cobra.Command{
	Use:   "trade <buy|sell|close>...",
	Short: "Execute manual orders against the simulated account",
	Long: `Start the terminal, wait for market data, then execute each action in
order at the latest close. Orders use the configured lot size and
leverage. The resulting account state is printed at the end.

Actions:
  buy, long    - open or add to a long (flips a short)
  sell, short  - open or add to a short (flips a long)
  close        - flatten the position

Example:
  trader trade buy buy close --wait 5s`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTrade,
}

var (
	tradeSymbol   string
	tradeWait     time.Duration
	tradeLeverage int
	tradeLot      float64
)

func init() {
	rootCmd.AddCommand(tradeCmd)

	tradeCmd.Flags().StringVarP(&tradeSymbol, "symbol", "s", "", "override feed.symbol")
	tradeCmd.Flags().DurationVarP(&tradeWait, "wait", "w", 0, "pause between actions")
	tradeCmd.Flags().IntVarP(&tradeLeverage, "leverage", "l", 0, "override risk.leverage")
	tradeCmd.Flags().Float64Var(&tradeLot, "lot", 0, "override risk.lot_size")
}

func runTrade(cmd *cobra.Command, args []string) error {
	for _, action := range args {
		if !strings.EqualFold(action, "close") {
			if _, err := sim.ParseSide(action); err != nil {
				return err
			}
		}
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	a.cfg.Terminal.Autonomous = false
	if tradeSymbol != "" {
		a.cfg.Feed.Symbol = tradeSymbol
	}
	if tradeLeverage > 0 {
		a.cfg.Risk.Leverage = tradeLeverage
	}
	if tradeLot > 0 {
		a.cfg.Risk.LotSize = decimal.NewFromFloat(tradeLot)
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	term, err := a.terminal(false)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = term.Run(ctx)
	}()
	// The loop must be done with the journal before a.close runs.
	defer func() {
		cancel()
		<-stopped
	}()

	if err := waitForData(ctx, term, a.cfg.FetchTimeout()*2); err != nil {
		return err
	}

	for i, action := range args {
		if i > 0 && tradeWait > 0 {
			time.Sleep(tradeWait)
		}
		if err := applyAction(ctx, term, action); err != nil {
			fmt.Printf("✗ %s: %v\n", action, err)
		}
	}

	snap, err := term.State(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n%s %s @ %.4f\n", snap.Symbol, snap.Timeframe, snap.Latest.Close)
	printState(snap.State)
	return nil
}

func applyAction(ctx context.Context, term *terminal.Terminal, action string) error {
	if strings.EqualFold(action, "close") {
		rec, closed, err := term.Close(ctx)
		if err != nil {
			return err
		}
		if !closed {
			fmt.Println("- close: no open position")
			return nil
		}
		fmt.Printf("✓ CLOSE %s %.4f @ %.4f pnl $%.2f\n", rec.Symbol, rec.Amount, rec.Price, rec.RealizedPnL)
		return nil
	}

	side, err := sim.ParseSide(action)
	if err != nil {
		return err
	}
	rec, err := term.Trade(ctx, side)
	if err != nil {
		return err
	}
	fmt.Printf("✓ %s %s %s %.4f @ %.4f x%d (%s)\n", rec.Kind, rec.Side, rec.Symbol, rec.Amount, rec.Price, rec.Leverage, rec.ID)
	return nil
}

func waitForData(ctx context.Context, term *terminal.Terminal, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		snap, err := term.State(ctx)
		if err != nil {
			return err
		}
		if snap.HasData {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("timed out waiting for market data")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
