package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rustyeddy/levterm/metrics"
	"github.com/rustyeddy/levterm/terminal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the terminal event loop",
	Long: `Run the terminal: load the price series, poll for updates, monitor the
position for liquidation, stop loss and take profit, and sample equity.

With --autonomous, signals at or above terminal.min_confidence are
executed with the configured lot size and leverage.

Example:
  trader run -f levterm.yaml --autonomous --duration 10m`,
	RunE: runRun,
}

var (
	runAutonomous bool
	runSymbol     string
	runDuration   time.Duration
	runQuiet      bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runAutonomous, "autonomous", false, "execute actionable signals")
	runCmd.Flags().StringVarP(&runSymbol, "symbol", "s", "", "override feed.symbol")
	runCmd.Flags().DurationVar(&runDuration, "duration", 0, "stop after this long (0 runs until interrupted)")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "only print trades and forced exits")
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	if runSymbol != "" {
		a.cfg.Feed.Symbol = runSymbol
	}

	term, err := a.terminal(runAutonomous)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runDuration)
		defer cancel()
	}

	if addr := a.cfg.Metrics.Addr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: metrics.Handler(a.registry), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		a.logger.Info("metrics listening", zap.String("addr", addr))
	}

	fmt.Printf("Running %s %s (cash $%.2f, %dx, lot %s)\n",
		a.cfg.Feed.Symbol, a.cfg.Feed.Timeframe, a.cfg.Account.Cash, a.cfg.Risk.Leverage, a.cfg.Risk.LotSize)

	events, unsubscribe := term.Subscribe(256)
	defer unsubscribe()

	var mark float64
	done := make(chan struct{})
	go func() {
		defer close(done)
		mark = printEvents(events, runQuiet)
	}()

	if err := term.Run(ctx); err != nil {
		return fmt.Errorf("run terminal: %w", err)
	}
	<-done

	if mark == 0 {
		mark = a.engine.Position().AvgEntryPrice
	}
	fmt.Printf("\nFinal Results:\n")
	printState(a.engine.Snapshot(mark))
	fmt.Printf("  Trades:      %d\n", len(a.engine.Trades()))
	return nil
}

// printEvents writes events until the channel closes and returns the
// last mark price seen.
func printEvents(events <-chan terminal.Event, quiet bool) float64 {
	var mark float64
	for ev := range events {
		ts := ev.Time.Format("15:04:05")
		switch ev.Kind {
		case terminal.EventTrade:
			t := ev.Trade
			mark = t.Price
			fmt.Printf("%s TRADE   %-11s %s %s %.4f @ %.4f x%d (%s)\n", ts, t.Kind, t.Side, t.Symbol, t.Amount, t.Price, t.Leverage, t.Reason)
		case terminal.EventForcedExit:
			t := ev.Trade
			mark = t.Price
			fmt.Printf("%s EXIT    %-11s %s @ %.4f pnl %.2f roi %.1f%%\n", ts, ev.Exit.Kind, t.Symbol, t.Price, t.RealizedPnL, ev.Exit.ROI)
		case terminal.EventRejected:
			fmt.Printf("%s REJECT  %v\n", ts, ev.Err)
		case terminal.EventSignal:
			if !quiet {
				fmt.Printf("%s SIGNAL  %s\n", ts, ev.Signal)
			}
		case terminal.EventTick:
			p := ev.Point
			mark = p.Close
			if !quiet {
				fmt.Printf("%s TICK    %s %.4f rsi %s sma10 %s sma20 %s\n", ts, ev.Symbol, p.Close, opt(p.RSI14), opt(p.SMA10), opt(p.SMA20))
			}
		case terminal.EventEquity:
			if !quiet {
				e := ev.Equity
				fmt.Printf("%s EQUITY  %.2f (cash %.2f, margin %.2f, upnl %.2f)\n", ts, e.Equity, e.Cash, e.MarginInUse, e.UnrealizedPnL)
			}
		case terminal.EventStale:
			if ev.Stale {
				fmt.Printf("%s STALE   upstream unavailable, using synthetic data\n", ts)
			} else {
				fmt.Printf("%s LIVE    upstream recovered\n", ts)
			}
		}
	}
	return mark
}

func opt(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
