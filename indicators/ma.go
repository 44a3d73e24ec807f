package indicators

import (
	"fmt"
)

// SMA calculates the Simple Moving Average of the trailing period closes.
// It always sums the literal window so replacing the last close yields an
// exact result.
func SMA(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(closes) < period {
		return 0, fmt.Errorf("not enough closes: need %d, got %d", period, len(closes))
	}

	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(period), nil
}

// EMA calculates the Exponential Moving Average for the given period.
//
// The recurrence is seeded with the first close and runs from index 0;
// the value is only reported once more than period closes exist.
func EMA(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(closes) <= period {
		return 0, fmt.Errorf("not enough closes: need %d, got %d", period+1, len(closes))
	}
	series := emaSeries(closes, period)
	return series[len(series)-1], nil
}

// emaSeries returns the raw recurrence value at every index.
func emaSeries(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}
	k := 2.0 / float64(period+1)

	ema := closes[0]
	out[0] = ema
	for i := 1; i < len(closes); i++ {
		ema = closes[i]*k + ema*(1-k)
		out[i] = ema
	}
	return out
}
