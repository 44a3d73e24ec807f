package feed

import (
	"context"
	"sync/atomic"

	"github.com/rustyeddy/levterm/internal/logging"
	"github.com/rustyeddy/levterm/market"
	"github.com/rustyeddy/levterm/metrics"
	"go.uber.org/zap"
)

// Fallback answers from the primary source and substitutes the
// synthetic generator when the primary fails. It never returns an
// upstream error; a failure only flips Stale.
type Fallback struct {
	primary   Source
	synthetic Source
	logger    *zap.Logger
	metrics   *metrics.Metrics
	stale     atomic.Bool
}

// NewFallback wraps primary. A nil synthetic gets a fresh NewSynthetic.
func NewFallback(primary, synthetic Source, logger *zap.Logger, m *metrics.Metrics) *Fallback {
	if synthetic == nil {
		synthetic = NewSynthetic()
	}
	return &Fallback{
		primary:   primary,
		synthetic: synthetic,
		logger:    logging.OrNop(logger).With(zap.String("component", "feed")),
		metrics:   m,
	}
}

// Stale reports whether the last answer came from the synthetic
// generator.
func (f *Fallback) Stale() bool { return f.stale.Load() }

func (f *Fallback) FetchSeries(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.PricePoint, error) {
	if f.primary != nil {
		pts, err := f.primary.FetchSeries(ctx, symbol, tf, limit)
		if err == nil {
			f.stale.Store(false)
			return pts, nil
		}
		f.fellBack("series", symbol, err)
	}
	f.stale.Store(true)
	return f.synthetic.FetchSeries(context.WithoutCancel(ctx), symbol, tf, limit)
}

func (f *Fallback) FetchLatest(ctx context.Context, symbol string, tf market.Timeframe) (market.PricePoint, error) {
	if f.primary != nil {
		p, err := f.primary.FetchLatest(ctx, symbol, tf)
		if err == nil {
			f.stale.Store(false)
			return p, nil
		}
		f.fellBack("latest", symbol, err)
	}
	f.stale.Store(true)
	return f.synthetic.FetchLatest(context.WithoutCancel(ctx), symbol, tf)
}

func (f *Fallback) fellBack(op, symbol string, err error) {
	f.metrics.Fallback(op)
	f.logger.Warn("upstream unavailable, using synthetic data",
		zap.String("op", op),
		zap.String("symbol", symbol),
		zap.Error(err))
}
