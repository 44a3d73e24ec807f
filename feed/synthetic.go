package feed

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rustyeddy/levterm/market"
)

// Volatility is the per-bar standard deviation of the synthetic log
// return.
const Volatility = 0.002

// Synthetic generates a geometric random walk seeded from
// market.BasePrice. For a given symbol, timeframe and clock the output is
// deterministic.
type Synthetic struct {
	mu    sync.Mutex
	now   func() time.Time
	walks map[walkKey]*walk
}

type walkKey struct {
	symbol string
	tf     market.Timeframe
}

type walk struct {
	rng  *rand.Rand
	last market.PricePoint
}

// NewSynthetic returns a generator using the wall clock.
func NewSynthetic() *Synthetic {
	return &Synthetic{
		now:   time.Now,
		walks: make(map[walkKey]*walk),
	}
}

// WithClock replaces the clock, for deterministic tests.
func (s *Synthetic) WithClock(now func() time.Time) *Synthetic {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// FetchSeries regenerates limit bars ending at the current bar.
func (s *Synthetic) FetchSeries(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pts, w := s.generate(symbol, tf, limit)
	s.walks[walkKey{market.NormalizeSymbol(symbol), tf}] = w
	return pts, nil
}

// FetchLatest advances the walk by one step. Within the same bar the
// still-forming bar is updated; a new bar opens at the previous close.
func (s *Synthetic) FetchLatest(ctx context.Context, symbol string, tf market.Timeframe) (market.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return market.PricePoint{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := walkKey{market.NormalizeSymbol(symbol), tf}
	w, ok := s.walks[key]
	if !ok {
		_, w = s.generate(symbol, tf, DefaultLimit)
		s.walks[key] = w
	}

	ts := tf.Floor(s.now().Unix())
	if ts <= w.last.Time {
		p := w.last
		c := p.Close * math.Exp(w.rng.NormFloat64()*Volatility/4)
		p.Close = c
		p.High = max(p.High, c)
		p.Low = min(p.Low, c)
		p.Volume += w.rng.Float64() * 5
		w.last = p
		return p, nil
	}

	w.last = bar(w.rng, ts, w.last.Close)
	return w.last, nil
}

func (s *Synthetic) generate(symbol string, tf market.Timeframe, limit int) ([]market.PricePoint, *walk) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	step := tf.Seconds()
	if step <= 0 {
		step = 60
	}

	rng := rand.New(rand.NewSource(seed(symbol, tf)))
	end := tf.Floor(s.now().Unix())
	start := end - int64(limit-1)*step

	pts := make([]market.PricePoint, 0, limit)
	price := market.BasePrice(symbol)
	for i := 0; i < limit; i++ {
		p := bar(rng, start+int64(i)*step, price)
		pts = append(pts, p)
		price = p.Close
	}
	return pts, &walk{rng: rng, last: pts[len(pts)-1]}
}

func bar(rng *rand.Rand, ts int64, open float64) market.PricePoint {
	c := open * math.Exp(rng.NormFloat64()*Volatility)
	hi := max(open, c) * (1 + rng.Float64()*Volatility/2)
	lo := min(open, c) * (1 - rng.Float64()*Volatility/2)
	return market.PricePoint{
		Time:   ts,
		Open:   open,
		High:   hi,
		Low:    lo,
		Close:  c,
		Volume: 10 + rng.Float64()*90,
	}
}

func seed(symbol string, tf market.Timeframe) int64 {
	return int64(market.Hash(symbol) ^ uint64(tf.Seconds()))
}
