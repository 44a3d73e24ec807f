package sim

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rustyeddy/levterm/internal/logging"
	"github.com/rustyeddy/levterm/journal"
	"github.com/rustyeddy/levterm/market"
	"github.com/rustyeddy/levterm/metrics"
	"github.com/rustyeddy/levterm/pkg/id"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrValidation        = errors.New("invalid order")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// MinLot is the smallest order amount accepted.
var MinLot = decimal.RequireFromString("0.01")

// ExitEvent describes a position closed by the risk monitor.
type ExitEvent struct {
	Kind   journal.Kind
	Trade  journal.TradeRecord
	ROI    float64
	Equity float64
}

// Engine is the position and risk engine. It owns one account and at
// most one position; every mutation goes through its mutex.
type Engine struct {
	mu      sync.Mutex
	acct    Account
	pos     Position
	limits  Limits
	history *journal.Memory
	sinks   journal.Multi

	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = logging.OrNop(l) } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithLimits(l Limits) Option { return func(e *Engine) { e.limits = l } }

// NewEngine creates an engine for acct. Trades and equity samples always
// go to an in-memory history and, when j is not nil, to j as well.
func NewEngine(acct Account, j journal.Journal, opts ...Option) *Engine {
	history := journal.NewMemory()
	sinks := journal.Multi{history}
	if j != nil {
		sinks = append(sinks, j)
	}
	e := &Engine{
		acct:    acct,
		limits:  DefaultLimits(),
		history: history,
		sinks:   sinks,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "engine"))
	return e
}

func (e *Engine) Account() Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct
}

func (e *Engine) Position() Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos
}

func (e *Engine) Limits() Limits {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.limits
}

func (e *Engine) SetLimits(l Limits) error {
	if err := l.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limits = l
	return nil
}

// Trades returns the executed trades, newest first.
func (e *Engine) Trades() []journal.TradeRecord { return e.history.Trades() }

// EquityHistory returns the recent equity samples, oldest first.
func (e *Engine) EquityHistory() []journal.EquitySample { return e.history.Equity() }

// Snapshot values the account at price. Nothing is cached.
func (e *Engine) Snapshot(price float64) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return valuate(e.acct, e.pos, price)
}

// ExecuteTrade is the entry point for trade intents. It validates the
// order, executes it and returns the entry record. Rejections leave the
// account untouched.
func (e *Engine) ExecuteTrade(symbol string, side Side, price, amount float64, leverage int, reason string) (journal.TradeRecord, error) {
	rec, err := e.OpenOrAdd(symbol, side, price, amount, leverage, reason)
	if err != nil {
		e.metrics.Rejected(rejectReason(err))
		e.logger.Info("order rejected",
			zap.String("symbol", symbol),
			zap.Stringer("side", side),
			zap.Float64("price", price),
			zap.Float64("amount", amount),
			zap.Int("leverage", leverage),
			zap.Error(err))
		return journal.TradeRecord{}, err
	}
	return rec, nil
}

// OpenOrAdd opens a position when flat, adds to it on the same side and
// flips it on the opposite side. A flip closes the existing position at
// price first; its funds check uses the cash that close would release.
// On re-entry the average entry price is overwritten with price.
func (e *Engine) OpenOrAdd(symbol string, side Side, price, amount float64, leverage int, reason string) (journal.TradeRecord, error) {
	if err := validateOrder(side, price, amount, leverage); err != nil {
		return journal.TradeRecord{}, err
	}
	symbol = market.NormalizeSymbol(symbol)
	required := RequiredMargin(price, amount, leverage)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.pos.Flat() && e.pos.Symbol != symbol {
		return journal.TradeRecord{}, fmt.Errorf("%w: position open on %s", ErrValidation, e.pos.Symbol)
	}
	flip := !e.pos.Flat() && e.pos.Side() != side

	available := e.acct.Cash
	if flip {
		available, _ = settle(e.acct.Cash, e.pos, price)
	}
	if available < required {
		return journal.TradeRecord{}, fmt.Errorf("%w: need %.4f margin, have %.4f", ErrInsufficientFunds, required, available)
	}

	at := e.now()
	if flip {
		e.closeLocked(price, reason, journal.KindClose, at)
	}

	kind := journal.KindAdd
	if e.pos.Flat() {
		kind = journal.KindOpen
		e.pos = Position{Symbol: symbol}
	}
	e.acct.Cash -= required
	e.pos.Size += float64(side) * amount
	e.pos.AvgEntryPrice = price
	e.pos.Leverage = leverage

	rec := journal.TradeRecord{
		ID:       id.NewAt(at),
		Symbol:   symbol,
		Side:     side.String(),
		Kind:     kind,
		Price:    price,
		Amount:   amount,
		Leverage: leverage,
		Reason:   reason,
		Time:     at,
	}
	e.recordLocked(rec, price)

	e.logger.Info("position updated",
		zap.String("kind", string(kind)),
		zap.String("symbol", symbol),
		zap.Stringer("side", side),
		zap.Float64("price", price),
		zap.Float64("amount", amount),
		zap.Int("leverage", leverage),
		zap.Float64("cash", e.acct.Cash))
	return rec, nil
}

// CloseAll closes the whole position at price, which must be a quote
// for symbol. It is a no-op when flat and returns false in that case.
func (e *Engine) CloseAll(symbol string, price float64, reason string) (journal.TradeRecord, bool, error) {
	if !positive(price) {
		return journal.TradeRecord{}, false, fmt.Errorf("%w: price %v", ErrValidation, price)
	}
	if reason == "" {
		reason = "Manual Close"
	}
	symbol = market.NormalizeSymbol(symbol)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pos.Flat() {
		return journal.TradeRecord{}, false, nil
	}
	if e.pos.Symbol != symbol {
		return journal.TradeRecord{}, false, fmt.Errorf("%w: position open on %s, price is for %s", ErrValidation, e.pos.Symbol, symbol)
	}
	return e.closeLocked(price, reason, journal.KindClose, e.now()), true, nil
}

// UpdatePrice runs the forced-exit monitor for a new mark price. Prices
// for another symbol than the open position are ignored.
func (e *Engine) UpdatePrice(symbol string, price float64, at time.Time) *ExitEvent {
	if !positive(price) {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pos.Flat() || e.pos.Symbol != market.NormalizeSymbol(symbol) {
		return nil
	}

	s := valuate(e.acct, e.pos, price)
	e.metrics.ObserveAccount(s.Cash, s.MarginInUse, s.UnrealizedPnL, s.Equity)

	kind, hit := checkExit(s, e.limits)
	if !hit {
		return nil
	}
	if at.IsZero() {
		at = e.now()
	}
	rec := e.closeLocked(price, exitReason(kind), kind, at)
	e.metrics.ForcedExit(string(kind))

	e.logger.Warn("forced exit",
		zap.String("kind", string(kind)),
		zap.String("symbol", rec.Symbol),
		zap.Float64("price", price),
		zap.Float64("roi", s.ROI),
		zap.Float64("equity", s.Equity),
		zap.Float64("realized_pnl", rec.RealizedPnL))

	return &ExitEvent{Kind: kind, Trade: rec, ROI: s.ROI, Equity: s.Equity}
}

// SampleEquity appends an equity sample at price to the journals.
func (e *Engine) SampleEquity(price float64) journal.EquitySample {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sampleLocked(price)
}

func (e *Engine) Deposit(amount float64) error {
	if !positive(amount) {
		return fmt.Errorf("%w: deposit %v", ErrValidation, amount)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.acct.Cash += amount
	e.acct.InitialValue += amount
	e.logger.Info("deposit", zap.Float64("amount", amount), zap.Float64("cash", e.acct.Cash))
	return nil
}

func (e *Engine) Withdraw(amount float64) error {
	if !positive(amount) {
		return fmt.Errorf("%w: withdraw %v", ErrValidation, amount)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if amount > e.acct.Cash {
		return fmt.Errorf("%w: withdraw %.4f, cash %.4f", ErrInsufficientFunds, amount, e.acct.Cash)
	}
	e.acct.Cash -= amount
	e.acct.InitialValue -= amount
	e.logger.Info("withdraw", zap.Float64("amount", amount), zap.Float64("cash", e.acct.Cash))
	return nil
}

// Reset flattens the position, replaces the account with cash and drops
// the trade history, including the journal's when it supports that.
func (e *Engine) Reset(cash float64) error {
	if cash < 0 || math.IsNaN(cash) || math.IsInf(cash, 0) {
		return fmt.Errorf("%w: cash %v", ErrValidation, cash)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.acct = NewAccount(cash)
	e.pos = Position{}
	if err := e.sinks.Reset(); err != nil {
		e.journalFailed("reset", err)
	}
	e.logger.Info("account reset", zap.Float64("cash", cash))
	return nil
}

// closeLocked settles the position at price and records the close.
func (e *Engine) closeLocked(price float64, reason string, kind journal.Kind, at time.Time) journal.TradeRecord {
	cash, pnl := settle(e.acct.Cash, e.pos, price)
	rec := journal.TradeRecord{
		ID:          id.NewAt(at),
		Symbol:      e.pos.Symbol,
		Side:        e.pos.Side().Opposite().String(),
		Kind:        kind,
		Price:       price,
		Amount:      math.Abs(e.pos.Size),
		Leverage:    e.pos.Leverage,
		RealizedPnL: pnl,
		Reason:      reason,
		Time:        at,
	}
	e.acct.Cash = cash
	e.pos = Position{}
	e.recordLocked(rec, price)
	return rec
}

// settle returns the cash after closing p at price and the realized PnL.
// A gap loss larger than the released margin floors cash at zero.
func settle(cash float64, p Position, price float64) (float64, float64) {
	pnl := UnrealizedPnL(p, price)
	return math.Max(cash+MarginInUse(p)+pnl, 0), pnl
}

func (e *Engine) recordLocked(rec journal.TradeRecord, price float64) {
	e.metrics.Trade(string(rec.Kind))
	if err := e.sinks.RecordTrade(rec); err != nil {
		e.journalFailed("trade", err)
	}
	e.sampleLocked(price)
}

func (e *Engine) sampleLocked(price float64) journal.EquitySample {
	s := valuate(e.acct, e.pos, price)
	sample := journal.EquitySample{
		Time:          e.now(),
		Equity:        s.Equity,
		Cash:          s.Cash,
		MarginInUse:   s.MarginInUse,
		UnrealizedPnL: s.UnrealizedPnL,
	}
	e.metrics.ObserveAccount(s.Cash, s.MarginInUse, s.UnrealizedPnL, s.Equity)
	if err := e.sinks.RecordEquity(sample); err != nil {
		e.journalFailed("equity", err)
	}
	return sample
}

func (e *Engine) journalFailed(op string, err error) {
	e.metrics.JournalError()
	e.logger.Error("journal write failed", zap.String("op", op), zap.Error(err))
}

func validateOrder(side Side, price, amount float64, leverage int) error {
	if side != Buy && side != Sell {
		return fmt.Errorf("%w: side %d", ErrValidation, side)
	}
	if !positive(price) {
		return fmt.Errorf("%w: price %v", ErrValidation, price)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || decimal.NewFromFloat(amount).LessThan(MinLot) {
		return fmt.Errorf("%w: amount %v below minimum lot %s", ErrValidation, amount, MinLot)
	}
	if leverage < 1 {
		return fmt.Errorf("%w: leverage %d", ErrValidation, leverage)
	}
	return nil
}

func positive(x float64) bool {
	return x > 0 && !math.IsInf(x, 0)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrValidation):
		return "validation"
	}
	return "other"
}
