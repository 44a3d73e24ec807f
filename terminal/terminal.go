// Package terminal runs the trading terminal as a single event loop. The
// loop goroutine owns the price series and is the only caller that
// mutates the engine; fetches and signal generation run off-loop and
// report back through channels, tagged so that results for a symbol that
// is no longer active are dropped.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/levterm/feed"
	"github.com/rustyeddy/levterm/indicators"
	"github.com/rustyeddy/levterm/internal/logging"
	"github.com/rustyeddy/levterm/journal"
	"github.com/rustyeddy/levterm/market"
	"github.com/rustyeddy/levterm/metrics"
	"github.com/rustyeddy/levterm/sim"
	"github.com/rustyeddy/levterm/strategies"
	"go.uber.org/zap"
)

var (
	// ErrNoData is returned when a request needs a price before the
	// series has loaded.
	ErrNoData = errors.New("no price data yet")
	// ErrStopped is returned by requests made after Run has returned.
	ErrStopped = errors.New("terminal stopped")
)

// Config holds the loop cadences and the order parameters used for
// manual and autonomous trades.
type Config struct {
	Symbol    string
	Timeframe market.Timeframe

	PollInterval   time.Duration
	SignalInterval time.Duration
	EquityInterval time.Duration
	FetchTimeout   time.Duration
	SignalLatency  time.Duration

	Autonomous    bool
	MinConfidence float64
	Leverage      int
	LotSize       float64
}

func (c Config) withDefaults() Config {
	if c.Symbol == "" {
		c.Symbol = "BTCUSDT"
	}
	c.Symbol = market.NormalizeSymbol(c.Symbol)
	if c.Timeframe == "" {
		c.Timeframe = market.M1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.SignalInterval <= 0 {
		c.SignalInterval = 10 * time.Second
	}
	if c.EquityInterval <= 0 {
		c.EquityInterval = 5 * time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = feed.DefaultTimeout
	}
	if c.Leverage <= 0 {
		c.Leverage = 20
	}
	if c.LotSize <= 0 {
		c.LotSize = 0.01
	}
	return c
}

// Streamer pushes live points for one symbol until ctx is done.
// feed.Stream satisfies it.
type Streamer interface {
	Run(ctx context.Context, symbol string, tf market.Timeframe, fn func(market.PricePoint)) error
}

type staleReporter interface {
	Stale() bool
}

// Snapshot is a consistent view of the terminal taken on the loop.
type Snapshot struct {
	Symbol    string
	Timeframe market.Timeframe
	Latest    market.PricePoint
	HasData   bool
	Points    int
	Stale     bool
	State     sim.State
}

type fetchKind int

const (
	fetchSeries fetchKind = iota
	fetchLatest
	// fetchMark polls the open position's symbol while another symbol
	// is active. It is not tied to a generation.
	fetchMark
)

type fetchResult struct {
	generation uint64
	kind       fetchKind
	symbol     string
	points     []market.PricePoint
	stale      bool
	err        error
}

type signalResult struct {
	generation uint64
	rec        strategies.Recommendation
	price      float64
}

// ingestMsg carries a pushed point. Points from the terminal's own
// stream are tagged with the generation they were subscribed under.
type ingestMsg struct {
	symbol     string
	point      market.PricePoint
	generation uint64
	tagged     bool
}

type Option func(*Terminal)

func WithLogger(l *zap.Logger) Option { return func(t *Terminal) { t.logger = logging.OrNop(l) } }

func WithMetrics(m *metrics.Metrics) Option { return func(t *Terminal) { t.metrics = m } }

func WithClock(now func() time.Time) Option { return func(t *Terminal) { t.now = now } }

func WithStream(s Streamer) Option { return func(t *Terminal) { t.streamer = s } }

type Terminal struct {
	cfg      Config
	source   feed.Source
	gen      strategies.Generator
	engine   *sim.Engine
	streamer Streamer
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	hub      *hub

	reqs    chan func()
	fetched chan fetchResult
	signals chan signalResult
	ingest  chan ingestMsg
	done    chan struct{}

	// Owned by the loop goroutine.
	ctx            context.Context
	symbol         string
	tf             market.Timeframe
	series         *indicators.Series
	generation     uint64
	stale          bool
	latestInFlight bool
	markInFlight   bool
	signalInFlight bool
	stopStream     context.CancelFunc
	// marks holds the last close seen per symbol, used to value and
	// close a position after the active symbol has changed.
	marks map[string]float64
}

// New creates a terminal. Nothing happens until Run is called.
func New(cfg Config, src feed.Source, gen strategies.Generator, eng *sim.Engine, opts ...Option) *Terminal {
	cfg = cfg.withDefaults()
	if gen == nil {
		gen = strategies.Rules{}
	}
	t := &Terminal{
		cfg:     cfg,
		source:  src,
		gen:     gen,
		engine:  eng,
		logger:  zap.NewNop(),
		now:     time.Now,
		reqs:    make(chan func()),
		fetched: make(chan fetchResult, 4),
		signals: make(chan signalResult, 1),
		ingest:  make(chan ingestMsg, 64),
		done:    make(chan struct{}),
		symbol:  cfg.Symbol,
		tf:      cfg.Timeframe,
		series:  indicators.NewSeries(cfg.Timeframe),
		marks:   make(map[string]float64),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(zap.String("component", "terminal"))
	t.hub = newHub(t.logger)
	return t
}

// Engine returns the risk engine driven by the terminal.
func (t *Terminal) Engine() *sim.Engine { return t.engine }

// Subscribe registers for events. Call the returned function to
// unsubscribe. Events are dropped for a subscriber whose buffer is full.
func (t *Terminal) Subscribe(buffer int) (<-chan Event, func()) {
	return t.hub.subscribe(buffer)
}

// Run is the event loop. It returns when ctx is done.
func (t *Terminal) Run(ctx context.Context) error {
	defer close(t.done)
	defer t.hub.closeAll()

	t.ctx = ctx
	t.logger.Info("terminal started",
		zap.String("symbol", t.symbol),
		zap.Stringer("timeframe", t.tf),
		zap.Bool("autonomous", t.cfg.Autonomous))

	t.startSeriesFetch()
	t.startStream()
	defer func() {
		if t.stopStream != nil {
			t.stopStream()
		}
	}()

	poll := time.NewTicker(t.cfg.PollInterval)
	defer poll.Stop()
	equity := time.NewTicker(t.cfg.EquityInterval)
	defer equity.Stop()

	var signalC <-chan time.Time
	if t.cfg.Autonomous {
		signal := time.NewTicker(t.cfg.SignalInterval)
		defer signal.Stop()
		signalC = signal.C
	}

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("terminal stopped")
			return nil
		case fn := <-t.reqs:
			fn()
		case r := <-t.fetched:
			t.handleFetch(r)
		case r := <-t.signals:
			t.handleSignal(r)
		case m := <-t.ingest:
			t.handleIngest(m)
		case <-poll.C:
			t.startLatestFetch()
			t.startMarkFetch()
		case <-signalC:
			t.startSignal()
		case <-equity.C:
			t.sampleEquity()
		}
	}
}

// do runs fn on the loop goroutine and waits for it.
func (t *Terminal) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	req := func() {
		defer close(finished)
		fn()
	}
	select {
	case t.reqs <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SwitchSymbol makes symbol/tf the active market. In-flight results for
// the previous market are discarded when they arrive.
func (t *Terminal) SwitchSymbol(ctx context.Context, symbol string, tf market.Timeframe) error {
	symbol = market.NormalizeSymbol(symbol)
	if symbol == "" {
		return fmt.Errorf("switch symbol: empty symbol")
	}
	if tf == "" {
		tf = t.cfg.Timeframe
	}
	if tf.Seconds() == 0 {
		return fmt.Errorf("switch symbol: unknown timeframe %q", tf)
	}
	return t.do(ctx, func() {
		t.generation++
		t.symbol = symbol
		t.tf = tf
		t.series = indicators.NewSeries(tf)
		t.logger.Info("symbol switched",
			zap.String("symbol", symbol),
			zap.Stringer("timeframe", tf),
			zap.Uint64("generation", t.generation))
		t.startSeriesFetch()
		t.startStream()
	})
}

// Ingest merges a point pushed by an external stream. Points for another
// symbol than the active one are discarded.
func (t *Terminal) Ingest(symbol string, p market.PricePoint) {
	t.push(ingestMsg{symbol: market.NormalizeSymbol(symbol), point: p})
}

func (t *Terminal) push(m ingestMsg) {
	select {
	case t.ingest <- m:
	case <-t.done:
	}
}

// Trade opens or adds to a position at the latest close.
func (t *Terminal) Trade(ctx context.Context, side sim.Side) (journal.TradeRecord, error) {
	var (
		rec journal.TradeRecord
		err error
	)
	if derr := t.do(ctx, func() {
		rec, err = t.execute(side, "Manual Order")
	}); derr != nil {
		return journal.TradeRecord{}, derr
	}
	return rec, err
}

// Close flattens the position at the last known close of the position's
// symbol, which need not be the active one. It reports false when there
// was nothing to close.
func (t *Terminal) Close(ctx context.Context) (journal.TradeRecord, bool, error) {
	var (
		rec    journal.TradeRecord
		closed bool
		err    error
	)
	if derr := t.do(ctx, func() {
		pos := t.engine.Position()
		if pos.Flat() {
			return
		}
		mark, ok := t.marks[pos.Symbol]
		if !ok {
			err = ErrNoData
			return
		}
		rec, closed, err = t.engine.CloseAll(pos.Symbol, mark, "Manual Close")
		if closed {
			t.publish(Event{Kind: EventTrade, Symbol: rec.Symbol, Trade: rec})
		}
	}); derr != nil {
		return journal.TradeRecord{}, false, derr
	}
	return rec, closed, err
}

// Signal evaluates the generator on the latest point without acting on
// the result.
func (t *Terminal) Signal(ctx context.Context) (strategies.Recommendation, error) {
	var (
		p      market.PricePoint
		ok     bool
		symbol string
	)
	if err := t.do(ctx, func() {
		p, ok = t.series.Latest()
		symbol = t.symbol
	}); err != nil {
		return strategies.Recommendation{}, err
	}
	if !ok {
		return strategies.Recommendation{}, ErrNoData
	}
	if err := sleep(ctx, t.cfg.SignalLatency); err != nil {
		return strategies.Recommendation{}, err
	}
	return t.gen.Evaluate(p, symbol), nil
}

// State returns a snapshot of the series head and the account.
func (t *Terminal) State(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := t.do(ctx, func() {
		s = t.snapshot()
	})
	return s, err
}

// Points returns a copy of the active series.
func (t *Terminal) Points(ctx context.Context) ([]market.PricePoint, error) {
	var pts []market.PricePoint
	err := t.do(ctx, func() {
		pts = t.series.Points()
	})
	return pts, err
}

func (t *Terminal) snapshot() Snapshot {
	p, ok := t.series.Latest()
	return Snapshot{
		Symbol:    t.symbol,
		Timeframe: t.tf,
		Latest:    p,
		HasData:   ok,
		Points:    t.series.Len(),
		Stale:     t.stale,
		State:     t.engine.Snapshot(t.valuationPrice()),
	}
}

// valuationPrice is the price the account is marked at: the last close
// of the open position's symbol, or the active close when flat. A
// position with no mark yet is valued at its entry.
func (t *Terminal) valuationPrice() float64 {
	pos := t.engine.Position()
	if pos.Flat() {
		p, _ := t.series.Latest()
		return p.Close
	}
	if mark, ok := t.marks[pos.Symbol]; ok {
		return mark
	}
	return pos.AvgEntryPrice
}

func (t *Terminal) startSeriesFetch() {
	gen, symbol, tf := t.generation, t.symbol, t.tf
	t.goFetch(func(ctx context.Context) fetchResult {
		pts, err := t.source.FetchSeries(ctx, symbol, tf, indicators.MaxPoints)
		return fetchResult{generation: gen, kind: fetchSeries, symbol: symbol, points: pts, err: err}
	})
}

func (t *Terminal) startLatestFetch() {
	if t.latestInFlight {
		return
	}
	t.latestInFlight = true
	gen, symbol, tf := t.generation, t.symbol, t.tf
	t.goFetch(func(ctx context.Context) fetchResult {
		p, err := t.source.FetchLatest(ctx, symbol, tf)
		return fetchResult{generation: gen, kind: fetchLatest, symbol: symbol, points: []market.PricePoint{p}, err: err}
	})
}

// startMarkFetch keeps the forced-exit monitor fed for a position left
// open on a symbol that is no longer active.
func (t *Terminal) startMarkFetch() {
	pos := t.engine.Position()
	if pos.Flat() || pos.Symbol == t.symbol || t.markInFlight {
		return
	}
	t.markInFlight = true
	symbol, tf := pos.Symbol, t.tf
	t.goFetch(func(ctx context.Context) fetchResult {
		p, err := t.source.FetchLatest(ctx, symbol, tf)
		return fetchResult{kind: fetchMark, symbol: symbol, points: []market.PricePoint{p}, err: err}
	})
}

func (t *Terminal) goFetch(fetch func(ctx context.Context) fetchResult) {
	parent := t.ctx
	go func() {
		ctx, cancel := context.WithTimeout(parent, t.cfg.FetchTimeout)
		defer cancel()
		r := fetch(ctx)
		if sr, ok := t.source.(staleReporter); ok {
			r.stale = sr.Stale()
		}
		select {
		case t.fetched <- r:
		case <-parent.Done():
		}
	}()
}

func (t *Terminal) handleFetch(r fetchResult) {
	switch r.kind {
	case fetchLatest:
		t.latestInFlight = false
	case fetchMark:
		t.markInFlight = false
		t.handleMark(r)
		return
	}
	if r.generation != t.generation {
		t.metrics.StaleDiscard()
		t.logger.Debug("stale fetch discarded",
			zap.String("symbol", r.symbol),
			zap.Uint64("generation", r.generation))
		return
	}
	if r.err != nil {
		t.logger.Warn("fetch failed", zap.String("symbol", r.symbol), zap.Error(r.err))
		t.setStale(true)
		return
	}
	t.setStale(r.stale)

	switch r.kind {
	case fetchSeries:
		if err := t.series.Reset(r.points); err != nil {
			t.logger.Warn("series loaded with gaps", zap.String("symbol", r.symbol), zap.Error(err))
		}
		t.logger.Info("series loaded", zap.String("symbol", r.symbol), zap.Int("points", t.series.Len()))
		if p, ok := t.series.Latest(); ok {
			t.afterMerge(p)
		}
	case fetchLatest:
		for _, p := range r.points {
			t.merge(p)
		}
	}
}

// handleMark runs the forced-exit monitor for the position's symbol
// without touching the active series.
func (t *Terminal) handleMark(r fetchResult) {
	if r.err != nil {
		t.logger.Warn("mark fetch failed", zap.String("symbol", r.symbol), zap.Error(r.err))
		return
	}
	for _, p := range r.points {
		if err := p.Validate(); err != nil {
			t.logger.Debug("mark rejected", zap.String("symbol", r.symbol), zap.Error(err))
			continue
		}
		t.observe(r.symbol, p.Close)
	}
}

func (t *Terminal) handleIngest(m ingestMsg) {
	if m.symbol != t.symbol || (m.tagged && m.generation != t.generation) {
		t.metrics.StaleDiscard()
		return
	}
	t.merge(m.point)
}

func (t *Terminal) merge(p market.PricePoint) {
	start := time.Now()
	_, err := t.series.Merge(p)
	t.metrics.ObserveMerge(time.Since(start))
	if err != nil {
		t.logger.Debug("point rejected", zap.String("symbol", t.symbol), zap.Int64("time", p.Time), zap.Error(err))
		return
	}
	latest, _ := t.series.Latest()
	t.afterMerge(latest)
}

// afterMerge publishes the new head and runs the forced-exit monitor.
func (t *Terminal) afterMerge(p market.PricePoint) {
	t.metrics.Tick()
	t.publish(Event{Kind: EventTick, Point: p})
	t.observe(t.symbol, p.Close)
}

// observe records price as the mark for symbol and runs the forced-exit
// monitor on it.
func (t *Terminal) observe(symbol string, price float64) {
	t.marks[symbol] = price
	if ev := t.engine.UpdatePrice(symbol, price, t.now()); ev != nil {
		t.publish(Event{Kind: EventForcedExit, Symbol: symbol, Exit: ev, Trade: ev.Trade})
	}
}

func (t *Terminal) setStale(stale bool) {
	if stale == t.stale {
		return
	}
	t.stale = stale
	t.publish(Event{Kind: EventStale, Stale: stale})
}

func (t *Terminal) startSignal() {
	if t.signalInFlight {
		return
	}
	p, ok := t.series.Latest()
	if !ok {
		return
	}
	t.signalInFlight = true
	ctx, symbol, gen, latency := t.ctx, t.symbol, t.gen, t.cfg.SignalLatency
	generation := t.generation
	go func() {
		if err := sleep(ctx, latency); err != nil {
			return
		}
		r := signalResult{generation: generation, rec: gen.Evaluate(p, symbol), price: p.Close}
		select {
		case t.signals <- r:
		case <-ctx.Done():
		}
	}()
}

func (t *Terminal) handleSignal(r signalResult) {
	t.signalInFlight = false
	if r.generation != t.generation || r.rec.Symbol != t.symbol {
		t.metrics.StaleDiscard()
		t.logger.Debug("stale signal discarded",
			zap.String("signal_symbol", r.rec.Symbol),
			zap.String("symbol", t.symbol),
			zap.Uint64("generation", r.generation))
		return
	}
	t.publish(Event{Kind: EventSignal, Signal: r.rec})
	t.logger.Info("signal",
		zap.String("symbol", r.rec.Symbol),
		zap.Stringer("action", r.rec.Action),
		zap.Float64("confidence", r.rec.Confidence),
		zap.String("reason", r.rec.Reason))

	if !t.cfg.Autonomous || !r.rec.Actionable(t.cfg.MinConfidence) {
		return
	}
	side := sim.Buy
	if r.rec.Action == strategies.Sell {
		side = sim.Sell
	}
	_, _ = t.execute(side, "Signal: "+r.rec.Reason)
}

// execute places an order at the latest close and publishes the outcome.
func (t *Terminal) execute(side sim.Side, reason string) (journal.TradeRecord, error) {
	p, ok := t.series.Latest()
	if !ok {
		return journal.TradeRecord{}, ErrNoData
	}
	rec, err := t.engine.ExecuteTrade(t.symbol, side, p.Close, t.cfg.LotSize, t.cfg.Leverage, reason)
	if err != nil {
		t.publish(Event{Kind: EventRejected, Err: err})
		return journal.TradeRecord{}, err
	}
	t.publish(Event{Kind: EventTrade, Trade: rec})
	return rec, nil
}

func (t *Terminal) sampleEquity() {
	sample := t.engine.SampleEquity(t.valuationPrice())
	t.publish(Event{Kind: EventEquity, Equity: sample})
}

func (t *Terminal) startStream() {
	if t.streamer == nil {
		return
	}
	if t.stopStream != nil {
		t.stopStream()
	}
	ctx, cancel := context.WithCancel(t.ctx)
	t.stopStream = cancel
	symbol, tf, generation := t.symbol, t.tf, t.generation
	go func() {
		err := t.streamer.Run(ctx, symbol, tf, func(p market.PricePoint) {
			t.push(ingestMsg{symbol: symbol, point: p, generation: generation, tagged: true})
		})
		if err != nil {
			t.logger.Warn("stream ended", zap.String("symbol", symbol), zap.Error(err))
		}
	}()
}

func (t *Terminal) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = t.now()
	}
	if ev.Symbol == "" {
		ev.Symbol = t.symbol
	}
	t.hub.publish(ev)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
