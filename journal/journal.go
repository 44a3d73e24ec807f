// Package journal records every executed trade and equity sample. The
// engine writes to a Journal; Memory keeps the in-process history while
// CSV and SQLite persist it.
package journal

import "time"

// Kind classifies a trade record.
type Kind string

const (
	KindOpen        Kind = "OPEN"
	KindAdd         Kind = "ADD"
	KindClose       Kind = "CLOSE"
	KindLiquidation Kind = "LIQUIDATION"
	KindStopLoss    Kind = "STOP_LOSS"
	KindTakeProfit  Kind = "TAKE_PROFIT"
)

// Forced reports whether the trade was triggered by the risk monitor.
func (k Kind) Forced() bool {
	return k == KindLiquidation || k == KindStopLoss || k == KindTakeProfit
}

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// TradeRecord is an immutable audit entry for one execution.
type TradeRecord struct {
	ID          string
	Symbol      string
	Side        string
	Kind        Kind
	Price       float64
	Amount      float64
	Leverage    int
	RealizedPnL float64
	Reason      string
	Time        time.Time
}

// EquitySample is one point of the equity curve.
type EquitySample struct {
	Time          time.Time
	Equity        float64
	Cash          float64
	MarginInUse   float64
	UnrealizedPnL float64
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySample) error
	Close() error
}

// Resetter is implemented by journals that can drop their history.
type Resetter interface {
	Reset() error
}
