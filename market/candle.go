package market

import (
	"fmt"
	"math"
	"time"
)

// PricePoint is one bar of a series. Close is the authoritative trade
// price. The indicator fields are nil until the series holds enough
// history to compute them.
type PricePoint struct {
	Time   int64 // unix seconds
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64

	SMA10 *float64
	SMA20 *float64
	EMA9  *float64
	EMA20 *float64
	RSI14 *float64
}

// Timestamp returns Time as a UTC time.Time.
func (p PricePoint) Timestamp() time.Time {
	return time.Unix(p.Time, 0).UTC()
}

// Bare returns a copy of p with all derived indicator fields cleared.
func (p PricePoint) Bare() PricePoint {
	return PricePoint{
		Time:   p.Time,
		Open:   p.Open,
		High:   p.High,
		Low:    p.Low,
		Close:  p.Close,
		Volume: p.Volume,
	}
}

// Validate checks that OHLC are positive and finite and volume is
// finite and non-negative.
func (p PricePoint) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"open", p.Open},
		{"high", p.High},
		{"low", p.Low},
		{"close", p.Close},
	} {
		if !positive(f.v) {
			return fmt.Errorf("price point %d: %s must be positive, got %v", p.Time, f.name, f.v)
		}
	}
	if math.IsNaN(p.Volume) || math.IsInf(p.Volume, 0) || p.Volume < 0 {
		return fmt.Errorf("price point %d: volume must be non-negative, got %v", p.Time, p.Volume)
	}
	return nil
}

// Quote builds a single-price point where open == high == low == close.
func Quote(ts int64, price float64) PricePoint {
	return PricePoint{Time: ts, Open: price, High: price, Low: price, Close: price}
}

// Float returns a pointer to x, for filling optional indicator fields.
func Float(x float64) *float64 {
	return &x
}

// Or returns *v, or def when v is nil.
func Or(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func positive(x float64) bool {
	return x > 0 && !math.IsInf(x, 0) && !math.IsNaN(x)
}
