package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rustyeddy/levterm/market"
	"github.com/rustyeddy/levterm/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	err error
	pts []market.PricePoint
}

func (s stubSource) FetchSeries(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.PricePoint, error) {
	return s.pts, s.err
}

func (s stubSource) FetchLatest(ctx context.Context, symbol string, tf market.Timeframe) (market.PricePoint, error) {
	if s.err != nil {
		return market.PricePoint{}, s.err
	}
	return s.pts[len(s.pts)-1], nil
}

func TestFallbackUsesPrimary(t *testing.T) {
	primary := stubSource{pts: []market.PricePoint{market.Quote(60, 1), market.Quote(120, 2)}}
	f := NewFallback(primary, nil, nil, nil)

	pts, err := f.FetchSeries(context.Background(), "X", market.M1, 2)
	require.NoError(t, err)
	assert.Equal(t, primary.pts, pts)
	assert.False(t, f.Stale())
}

func TestFallbackSubstitutesSynthetic(t *testing.T) {
	m := metrics.New(nil)
	syn := NewSynthetic().WithClock(fixedClock(t0))
	f := NewFallback(stubSource{err: errors.New("connection refused")}, syn, nil, m)

	pts, err := f.FetchSeries(context.Background(), "BTCUSDT", market.M1, 10)
	require.NoError(t, err)
	assert.Len(t, pts, 10)
	assert.True(t, f.Stale())

	p, err := f.FetchLatest(context.Background(), "BTCUSDT", market.M1)
	require.NoError(t, err)
	assert.NoError(t, p.Validate())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedFallbacks.WithLabelValues("series")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedFallbacks.WithLabelValues("latest")))
}

func TestFallbackRecoversFromStale(t *testing.T) {
	primary := &toggleSource{stubSource: stubSource{pts: []market.PricePoint{market.Quote(60, 1)}}, fail: true}
	f := NewFallback(primary, NewSynthetic().WithClock(fixedClock(t0)), nil, nil)

	_, _ = f.FetchLatest(context.Background(), "BTCUSDT", market.M1)
	assert.True(t, f.Stale())

	primary.fail = false
	_, _ = f.FetchLatest(context.Background(), "BTCUSDT", market.M1)
	assert.False(t, f.Stale())
}

func TestFallbackWithoutPrimaryIsSynthetic(t *testing.T) {
	f := NewFallback(nil, NewSynthetic().WithClock(fixedClock(t0)), nil, nil)
	pts, err := f.FetchSeries(context.Background(), "BTCUSDT", market.M1, 5)
	require.NoError(t, err)
	assert.Len(t, pts, 5)
	assert.True(t, f.Stale())
}

type toggleSource struct {
	stubSource
	fail bool
}

func (s *toggleSource) FetchLatest(ctx context.Context, symbol string, tf market.Timeframe) (market.PricePoint, error) {
	if s.fail {
		return market.PricePoint{}, errors.New("down")
	}
	return s.stubSource.FetchLatest(ctx, symbol, tf)
}
