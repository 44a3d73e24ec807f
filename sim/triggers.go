package sim

import (
	"fmt"

	"github.com/rustyeddy/levterm/journal"
)

// Limits are the account-wide ROI thresholds, in percent of margin.
type Limits struct {
	StopLossPct   float64
	TakeProfitPct float64
}

func DefaultLimits() Limits {
	return Limits{StopLossPct: 15, TakeProfitPct: 30}
}

func (l Limits) Validate() error {
	if l.StopLossPct <= 0 {
		return fmt.Errorf("%w: stop loss must be positive", ErrValidation)
	}
	if l.TakeProfitPct <= 0 {
		return fmt.Errorf("%w: take profit must be positive", ErrValidation)
	}
	return nil
}

// checkExit returns the forced exit kind for s, if any. Liquidation is
// checked before the ROI thresholds.
func checkExit(s State, l Limits) (journal.Kind, bool) {
	if s.Position.Flat() {
		return "", false
	}
	switch {
	case s.Equity < s.MarginInUse*MaintenanceMarginPct:
		return journal.KindLiquidation, true
	case s.ROI <= -l.StopLossPct:
		return journal.KindStopLoss, true
	case s.ROI >= l.TakeProfitPct:
		return journal.KindTakeProfit, true
	}
	return "", false
}

func exitReason(k journal.Kind) string {
	switch k {
	case journal.KindLiquidation:
		return "Liquidation"
	case journal.KindStopLoss:
		return "Stop Loss"
	case journal.KindTakeProfit:
		return "Take Profit"
	}
	return string(k)
}
