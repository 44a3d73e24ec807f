// Package feed supplies price series to the terminal: an HTTP REST
// source, a websocket stream, a deterministic synthetic generator and a
// fallback wrapper that substitutes the generator when upstream fails.
package feed

import (
	"context"

	"github.com/rustyeddy/levterm/market"
)

// DefaultLimit is the series length requested when a caller passes 0.
const DefaultLimit = 200

// Source is the inbound tick feed. Both calls may fail; callers recover
// through Fallback.
type Source interface {
	FetchSeries(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.PricePoint, error)
	FetchLatest(ctx context.Context, symbol string, tf market.Timeframe) (market.PricePoint, error)
}
