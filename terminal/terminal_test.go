package terminal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rustyeddy/levterm/feed"
	"github.com/rustyeddy/levterm/journal"
	"github.com/rustyeddy/levterm/market"
	"github.com/rustyeddy/levterm/metrics"
	"github.com/rustyeddy/levterm/sim"
	"github.com/rustyeddy/levterm/strategies"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = int64(1714564800)

// fakeSource serves flat series per symbol. FetchSeries for a gated
// symbol blocks until the gate is closed.
type fakeSource struct {
	mu     sync.Mutex
	prices map[string]float64
	gates  map[string]chan struct{}
}

func newFakeSource(prices map[string]float64) *fakeSource {
	return &fakeSource{prices: prices, gates: map[string]chan struct{}{}}
}

func (f *fakeSource) gate(symbol string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := make(chan struct{})
	f.gates[symbol] = g
	return g
}

func (f *fakeSource) setPrice(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

func (f *fakeSource) price(symbol string) (float64, chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prices[symbol], f.gates[symbol]
}

func (f *fakeSource) FetchSeries(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.PricePoint, error) {
	price, gate := f.price(symbol)
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if price == 0 {
		return nil, errors.New("unknown symbol")
	}
	pts := make([]market.PricePoint, 30)
	for i := range pts {
		pts[i] = market.Quote(base+int64(i)*60, price)
	}
	return pts, nil
}

// FetchLatest replaces the tail bar with the current price.
func (f *fakeSource) FetchLatest(ctx context.Context, symbol string, tf market.Timeframe) (market.PricePoint, error) {
	price, _ := f.price(symbol)
	if price == 0 {
		return market.PricePoint{}, errors.New("unknown symbol")
	}
	return market.Quote(base+29*60, price), nil
}

type fixedGen struct {
	action     strategies.Action
	confidence float64
}

func (fixedGen) Name() string { return "fixed" }

func (g fixedGen) Evaluate(p market.PricePoint, symbol string) strategies.Recommendation {
	return strategies.Recommendation{
		Action:     g.action,
		Confidence: g.confidence,
		Reason:     "test",
		Symbol:     market.NormalizeSymbol(symbol),
		Time:       p.Time,
	}
}

// gatedGen blocks its first evaluation until released and answers Buy;
// later evaluations answer Hold.
type gatedGen struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (*gatedGen) Name() string { return "gated" }

func (g *gatedGen) Evaluate(p market.PricePoint, symbol string) strategies.Recommendation {
	first := false
	g.once.Do(func() { first = true })
	if !first {
		return fixedGen{strategies.Hold, 0.5}.Evaluate(p, symbol)
	}
	close(g.entered)
	<-g.release
	return fixedGen{strategies.Buy, 0.99}.Evaluate(p, symbol)
}

func quietConfig() Config {
	return Config{
		Symbol:         "AAAUSDT",
		Timeframe:      market.M1,
		PollInterval:   time.Hour,
		SignalInterval: time.Hour,
		EquityInterval: time.Hour,
		FetchTimeout:   5 * time.Second,
		Leverage:       10,
		LotSize:        1,
	}
}

func start(t *testing.T, term *Terminal) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- term.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-stopped:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("terminal did not stop")
		}
	})
	return cancel
}

func waitFor(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event channel closed while waiting for %s", kind)
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func waitLoaded(t *testing.T, term *Terminal, symbol string) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		s, err := term.State(context.Background())
		if err != nil {
			return false
		}
		snap = s
		return s.Symbol == symbol && s.HasData
	}, 3*time.Second, 5*time.Millisecond)
	return snap
}

func newEngine() *sim.Engine {
	return sim.NewEngine(sim.NewAccount(1000), nil)
}

func TestSeriesLoadPublishesTick(t *testing.T) {
	src := newFakeSource(map[string]float64{"AAAUSDT": 100})
	term := New(quietConfig(), src, fixedGen{strategies.Hold, 0.5}, newEngine())
	events, unsubscribe := term.Subscribe(16)
	defer unsubscribe()
	start(t, term)

	ev := waitFor(t, events, EventTick)
	assert.Equal(t, "AAAUSDT", ev.Symbol)
	assert.Equal(t, 100.0, ev.Point.Close)

	snap := waitLoaded(t, term, "AAAUSDT")
	assert.Equal(t, 30, snap.Points)
	assert.False(t, snap.Stale)
	assert.Equal(t, 1000.0, snap.State.Equity)

	pts, err := term.Points(context.Background())
	require.NoError(t, err)
	assert.Len(t, pts, 30)
	require.NotNil(t, pts[29].SMA20)
	assert.InDelta(t, 100, *pts[29].SMA20, 1e-9)
}

func TestStaleSeriesFetchDiscarded(t *testing.T) {
	m := metrics.New(nil)
	src := newFakeSource(map[string]float64{"AAAUSDT": 100, "BBBUSDT": 200})
	gate := src.gate("AAAUSDT")

	term := New(quietConfig(), src, nil, newEngine(), WithMetrics(m))
	start(t, term)

	require.NoError(t, term.SwitchSymbol(context.Background(), "bbb/usdt", market.M5))
	snap := waitLoaded(t, term, "BBBUSDT")
	assert.Equal(t, market.M5, snap.Timeframe)

	close(gate)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.StaleDiscarded) == 1
	}, 3*time.Second, 5*time.Millisecond)

	snap, err := term.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BBBUSDT", snap.Symbol)
	assert.Equal(t, 200.0, snap.Latest.Close, "late AAA result never merged")
}

func TestSwitchSymbolValidation(t *testing.T) {
	term := New(quietConfig(), newFakeSource(map[string]float64{"AAAUSDT": 1}), nil, newEngine())
	assert.Error(t, term.SwitchSymbol(context.Background(), " ", market.M1))
	assert.Error(t, term.SwitchSymbol(context.Background(), "BTCUSDT", market.Timeframe("7m")))
}

func TestManualTradeAndClose(t *testing.T) {
	src := newFakeSource(map[string]float64{"AAAUSDT": 100})
	eng := newEngine()
	term := New(quietConfig(), src, nil, eng)
	events, unsubscribe := term.Subscribe(32)
	defer unsubscribe()
	start(t, term)
	waitLoaded(t, term, "AAAUSDT")

	ctx := context.Background()
	rec, err := term.Trade(ctx, sim.Buy)
	require.NoError(t, err)
	assert.Equal(t, journal.KindOpen, rec.Kind)
	assert.Equal(t, "Manual Order", rec.Reason)
	assert.Equal(t, 100.0, rec.Price)
	assert.Equal(t, 1.0, rec.Amount)
	assert.Equal(t, 10, rec.Leverage)

	ev := waitFor(t, events, EventTrade)
	assert.Equal(t, rec.ID, ev.Trade.ID)

	snap, err := term.State(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 990, snap.State.Cash, 1e-9)
	assert.InDelta(t, 1000, snap.State.Equity, 1e-9)

	closeRec, closed, err := term.Close(ctx)
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, journal.KindClose, closeRec.Kind)
	assert.InDelta(t, 1000, eng.Account().Cash, 1e-9)

	_, closed, err = term.Close(ctx)
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestRejectedTradePublishes(t *testing.T) {
	src := newFakeSource(map[string]float64{"AAAUSDT": 100})
	cfg := quietConfig()
	cfg.LotSize = 1000
	term := New(cfg, src, nil, newEngine())
	events, unsubscribe := term.Subscribe(32)
	defer unsubscribe()
	start(t, term)
	waitLoaded(t, term, "AAAUSDT")

	_, err := term.Trade(context.Background(), sim.Sell)
	require.ErrorIs(t, err, sim.ErrInsufficientFunds)
	ev := waitFor(t, events, EventRejected)
	assert.ErrorIs(t, ev.Err, sim.ErrInsufficientFunds)
}

func TestTradeBeforeDataLoaded(t *testing.T) {
	src := newFakeSource(map[string]float64{"AAAUSDT": 100})
	gate := src.gate("AAAUSDT")
	defer close(gate)

	term := New(quietConfig(), src, nil, newEngine())
	start(t, term)

	_, err := term.Trade(context.Background(), sim.Buy)
	assert.ErrorIs(t, err, ErrNoData)
	_, err = term.Signal(context.Background())
	assert.ErrorIs(t, err, ErrNoData)
}

func TestSignalRequest(t *testing.T) {
	src := newFakeSource(map[string]float64{"AAAUSDT": 100})
	term := New(quietConfig(), src, fixedGen{strategies.Sell, 0.85}, newEngine())
	start(t, term)
	waitLoaded(t, term, "AAAUSDT")

	rec, err := term.Signal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, strategies.Sell, rec.Action)
	assert.Equal(t, "AAAUSDT", rec.Symbol)
	assert.True(t, term.Engine().Position().Flat(), "Signal never trades")
}

func TestAutonomousExecutesSignals(t *testing.T) {
	src := newFakeSource(map[string]float64{"AAAUSDT": 100})
	cfg := quietConfig()
	cfg.Autonomous = true
	cfg.SignalInterval = 10 * time.Millisecond
	cfg.MinConfidence = 0.8
	eng := newEngine()

	term := New(cfg, src, fixedGen{strategies.Buy, 0.85}, eng)
	events, unsubscribe := term.Subscribe(64)
	defer unsubscribe()
	start(t, term)

	waitFor(t, events, EventSignal)
	ev := waitFor(t, events, EventTrade)
	assert.Equal(t, "Signal: test", ev.Trade.Reason)
	assert.False(t, eng.Position().Flat())
}

func TestLowConfidenceSignalsIgnored(t *testing.T) {
	src := newFakeSource(map[string]float64{"AAAUSDT": 100})
	cfg := quietConfig()
	cfg.Autonomous = true
	cfg.SignalInterval = 10 * time.Millisecond
	cfg.MinConfidence = 0.9
	eng := newEngine()

	term := New(cfg, src, fixedGen{strategies.Buy, 0.68}, eng)
	events, unsubscribe := term.Subscribe(64)
	defer unsubscribe()
	start(t, term)

	waitFor(t, events, EventSignal)
	waitFor(t, events, EventSignal)
	assert.True(t, eng.Position().Flat())
	assert.Empty(t, eng.Trades())
}

func TestStaleSignalDiscarded(t *testing.T) {
	m := metrics.New(nil)
	src := newFakeSource(map[string]float64{"AAAUSDT": 100, "BBBUSDT": 200})
	cfg := quietConfig()
	cfg.Autonomous = true
	cfg.SignalInterval = 10 * time.Millisecond
	gen := &gatedGen{entered: make(chan struct{}), release: make(chan struct{})}
	eng := newEngine()

	term := New(cfg, src, gen, eng, WithMetrics(m))
	start(t, term)

	select {
	case <-gen.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("signal never started")
	}
	require.NoError(t, term.SwitchSymbol(context.Background(), "BBBUSDT", market.M1))
	waitLoaded(t, term, "BBBUSDT")
	close(gen.release)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.StaleDiscarded) >= 1
	}, 3*time.Second, 5*time.Millisecond)
	assert.True(t, eng.Position().Flat())
	assert.Empty(t, eng.Trades())
}

func TestIngestDiscardsOtherSymbols(t *testing.T) {
	m := metrics.New(nil)
	src := newFakeSource(map[string]float64{"AAAUSDT": 100})
	term := New(quietConfig(), src, nil, newEngine(), WithMetrics(m))
	start(t, term)
	waitLoaded(t, term, "AAAUSDT")

	term.Ingest("ZZZUSDT", market.Quote(base+30*60, 1))
	term.Ingest("aaa-usdt", market.Quote(base+30*60, 101))

	require.Eventually(t, func() bool {
		s, err := term.State(context.Background())
		return err == nil && s.Points == 31
	}, 3*time.Second, 5*time.Millisecond)

	s, err := term.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 101.0, s.Latest.Close)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StaleDiscarded))
}

func TestForcedExitOnPoll(t *testing.T) {
	src := newFakeSource(map[string]float64{"AAAUSDT": 100})
	cfg := quietConfig()
	cfg.PollInterval = 10 * time.Millisecond
	eng := newEngine()
	term := New(cfg, src, nil, eng)
	events, unsubscribe := term.Subscribe(256)
	defer unsubscribe()
	start(t, term)
	waitLoaded(t, term, "AAAUSDT")

	_, err := term.Trade(context.Background(), sim.Buy)
	require.NoError(t, err)

	// 10x long: -15% ROI at 98.5
	src.setPrice("AAAUSDT", 95)
	ev := waitFor(t, events, EventForcedExit)
	require.NotNil(t, ev.Exit)
	assert.Equal(t, journal.KindStopLoss, ev.Exit.Kind)
	assert.True(t, eng.Position().Flat())
}

func TestEquitySampling(t *testing.T) {
	src := newFakeSource(map[string]float64{"AAAUSDT": 100})
	cfg := quietConfig()
	cfg.EquityInterval = 10 * time.Millisecond
	eng := newEngine()
	term := New(cfg, src, nil, eng)
	events, unsubscribe := term.Subscribe(64)
	defer unsubscribe()
	start(t, term)

	ev := waitFor(t, events, EventEquity)
	assert.Equal(t, 1000.0, ev.Equity.Equity)
	assert.NotEmpty(t, eng.EquityHistory())
}

func TestFallbackMarksStale(t *testing.T) {
	src := feed.NewFallback(failingSource{}, feed.NewSynthetic(), nil, nil)
	cfg := quietConfig()
	cfg.Symbol = "BTCUSDT"
	term := New(cfg, src, nil, newEngine())
	events, unsubscribe := term.Subscribe(16)
	defer unsubscribe()
	start(t, term)

	ev := waitFor(t, events, EventStale)
	assert.True(t, ev.Stale)
	snap := waitLoaded(t, term, "BTCUSDT")
	assert.True(t, snap.Stale)
	assert.Equal(t, 200, snap.Points)
}

type failingSource struct{}

func (failingSource) FetchSeries(context.Context, string, market.Timeframe, int) ([]market.PricePoint, error) {
	return nil, errors.New("offline")
}

func (failingSource) FetchLatest(context.Context, string, market.Timeframe) (market.PricePoint, error) {
	return market.PricePoint{}, errors.New("offline")
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	src := newFakeSource(map[string]float64{"AAAUSDT": 100})
	cfg := quietConfig()
	cfg.PollInterval = time.Millisecond
	term := New(cfg, src, nil, newEngine())
	slow, unsubscribeSlow := term.Subscribe(1)
	defer unsubscribeSlow()
	start(t, term)
	waitLoaded(t, term, "AAAUSDT")

	// the loop keeps serving requests while the slow subscriber is full
	for i := 0; i < 20; i++ {
		_, err := term.State(context.Background())
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}
	assert.Len(t, slow, 1)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	term := New(quietConfig(), newFakeSource(nil), nil, newEngine())
	events, unsubscribe := term.Subscribe(1)
	unsubscribe()
	unsubscribe()
	_, ok := <-events
	assert.False(t, ok)
}

func TestRequestsAfterStop(t *testing.T) {
	src := newFakeSource(map[string]float64{"AAAUSDT": 100})
	term := New(quietConfig(), src, nil, newEngine())
	events, _ := term.Subscribe(8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = term.Run(ctx)
		close(done)
	}()
	waitLoaded(t, term, "AAAUSDT")
	cancel()
	<-done

	_, err := term.State(context.Background())
	assert.ErrorIs(t, err, ErrStopped)

	for range events {
	}
}

type fakeStreamer struct {
	mu      sync.Mutex
	symbols []string
}

func (s *fakeStreamer) Run(ctx context.Context, symbol string, tf market.Timeframe, fn func(market.PricePoint)) error {
	s.mu.Lock()
	s.symbols = append(s.symbols, symbol)
	s.mu.Unlock()
	fn(market.Quote(base+40*60, 123))
	<-ctx.Done()
	return nil
}

func (s *fakeStreamer) started() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.symbols...)
}

func TestStreamFollowsSymbol(t *testing.T) {
	src := newFakeSource(map[string]float64{"AAAUSDT": 100, "BBBUSDT": 200})
	streamer := &fakeStreamer{}
	term := New(quietConfig(), src, nil, newEngine(), WithStream(streamer))
	start(t, term)

	require.Eventually(t, func() bool { return len(streamer.started()) == 1 }, 3*time.Second, 5*time.Millisecond)
	require.NoError(t, term.SwitchSymbol(context.Background(), "BBBUSDT", ""))
	require.Eventually(t, func() bool { return len(streamer.started()) == 2 }, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"AAAUSDT", "BBBUSDT"}, streamer.started())
}

func TestCloseAfterSwitchUsesPositionMark(t *testing.T) {
	src := newFakeSource(map[string]float64{"AAAUSDT": 100, "BBBUSDT": 5})
	eng := newEngine()
	term := New(quietConfig(), src, nil, eng)
	start(t, term)
	waitLoaded(t, term, "AAAUSDT")

	ctx := context.Background()
	_, err := term.Trade(ctx, sim.Buy)
	require.NoError(t, err)

	require.NoError(t, term.SwitchSymbol(ctx, "BBBUSDT", ""))
	snap := waitLoaded(t, term, "BBBUSDT")
	assert.Equal(t, 5.0, snap.Latest.Close)
	assert.Equal(t, "AAAUSDT", snap.State.Position.Symbol)
	assert.Equal(t, 100.0, snap.State.Price)
	assert.InDelta(t, 0, snap.State.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 1000, snap.State.Equity, 1e-9)

	rec, closed, err := term.Close(ctx)
	require.NoError(t, err)
	require.True(t, closed)
	assert.Equal(t, "AAAUSDT", rec.Symbol)
	assert.Equal(t, 100.0, rec.Price)
	assert.InDelta(t, 0, rec.RealizedPnL, 1e-9)
	assert.InDelta(t, 1000, eng.Account().Cash, 1e-9)
}

func TestEquitySampledAtPositionMarkAfterSwitch(t *testing.T) {
	src := newFakeSource(map[string]float64{"AAAUSDT": 100, "BBBUSDT": 5})
	cfg := quietConfig()
	cfg.EquityInterval = 10 * time.Millisecond
	eng := newEngine()
	term := New(cfg, src, nil, eng)
	events, unsubscribe := term.Subscribe(256)
	defer unsubscribe()
	start(t, term)
	waitLoaded(t, term, "AAAUSDT")

	ctx := context.Background()
	_, err := term.Trade(ctx, sim.Buy)
	require.NoError(t, err)
	require.NoError(t, term.SwitchSymbol(ctx, "BBBUSDT", ""))
	waitLoaded(t, term, "BBBUSDT")

	// drop samples queued before the switch
	for drained := false; !drained; {
		select {
		case <-events:
		default:
			drained = true
		}
	}
	for i := 0; i < 2; i++ {
		ev := waitFor(t, events, EventEquity)
		assert.InDelta(t, 1000, ev.Equity.Equity, 1e-9)
		assert.InDelta(t, 0, ev.Equity.UnrealizedPnL, 1e-9)
	}
}

func TestPositionMonitoredAfterSwitch(t *testing.T) {
	src := newFakeSource(map[string]float64{"AAAUSDT": 100, "BBBUSDT": 5})
	cfg := quietConfig()
	cfg.PollInterval = 10 * time.Millisecond
	eng := newEngine()
	term := New(cfg, src, nil, eng)
	events, unsubscribe := term.Subscribe(256)
	defer unsubscribe()
	start(t, term)
	waitLoaded(t, term, "AAAUSDT")

	ctx := context.Background()
	_, err := term.Trade(ctx, sim.Buy)
	require.NoError(t, err)
	require.NoError(t, term.SwitchSymbol(ctx, "BBBUSDT", ""))
	waitLoaded(t, term, "BBBUSDT")

	src.setPrice("AAAUSDT", 95)
	ev := waitFor(t, events, EventForcedExit)
	require.NotNil(t, ev.Exit)
	assert.Equal(t, "AAAUSDT", ev.Symbol)
	assert.Equal(t, journal.KindStopLoss, ev.Exit.Kind)
	assert.Equal(t, 95.0, ev.Trade.Price)
	assert.True(t, eng.Position().Flat())

	snap, err := term.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "BBBUSDT", snap.Symbol)
	assert.Equal(t, 5.0, snap.Latest.Close, "active series untouched")
}

// captureStreamer hands out the callback of every subscription and
// holds it open until cancelled.
type captureStreamer struct {
	mu  sync.Mutex
	fns []func(market.PricePoint)
}

func (s *captureStreamer) Run(ctx context.Context, symbol string, tf market.Timeframe, fn func(market.PricePoint)) error {
	s.mu.Lock()
	s.fns = append(s.fns, fn)
	s.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (s *captureStreamer) callbacks() []func(market.PricePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(([]func(market.PricePoint))(nil), s.fns...)
}

func TestTimeframeSwitchDiscardsOldStreamPoints(t *testing.T) {
	m := metrics.New(nil)
	src := newFakeSource(map[string]float64{"AAAUSDT": 100})
	streamer := &captureStreamer{}
	term := New(quietConfig(), src, nil, newEngine(), WithMetrics(m), WithStream(streamer))
	start(t, term)
	waitLoaded(t, term, "AAAUSDT")
	require.Eventually(t, func() bool { return len(streamer.callbacks()) == 1 }, 3*time.Second, 5*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, term.SwitchSymbol(ctx, "AAAUSDT", market.M5))
	waitLoaded(t, term, "AAAUSDT")
	require.Eventually(t, func() bool { return len(streamer.callbacks()) == 2 }, 3*time.Second, 5*time.Millisecond)

	fns := streamer.callbacks()
	fns[0](market.Quote(base+60*60, 7))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.StaleDiscarded) == 1
	}, 3*time.Second, 5*time.Millisecond)

	snap, err := term.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, snap.Latest.Close, "M1 point never merged into the M5 series")

	fns[1](market.Quote(base+60*60, 101))
	require.Eventually(t, func() bool {
		s, err := term.State(ctx)
		return err == nil && s.Latest.Close == 101
	}, 3*time.Second, 5*time.Millisecond)
}

func TestTimeframeSwitchDiscardsPendingSignal(t *testing.T) {
	m := metrics.New(nil)
	src := newFakeSource(map[string]float64{"AAAUSDT": 100})
	cfg := quietConfig()
	cfg.Autonomous = true
	cfg.SignalInterval = 10 * time.Millisecond
	gen := &gatedGen{entered: make(chan struct{}), release: make(chan struct{})}
	eng := newEngine()

	term := New(cfg, src, gen, eng, WithMetrics(m))
	start(t, term)

	select {
	case <-gen.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("signal never started")
	}
	require.NoError(t, term.SwitchSymbol(context.Background(), "AAAUSDT", market.M5))
	waitLoaded(t, term, "AAAUSDT")
	close(gen.release)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.StaleDiscarded) >= 1
	}, 3*time.Second, 5*time.Millisecond)
	assert.True(t, eng.Position().Flat())
	assert.Empty(t, eng.Trades())
}
