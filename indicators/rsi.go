package indicators

import "fmt"

// RSI computes the Relative Strength Index over the trailing period
// one-step differences. Gains and losses are plain sums (no Wilder
// smoothing). When the window has no losses the divisor is 1, which
// biases the result towards 100 instead of leaving it undefined; a flat
// window therefore yields 0.
func RSI(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(closes) < period+1 {
		return 0, fmt.Errorf("not enough closes: need %d, got %d", period+1, len(closes))
	}

	var gains, losses float64
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		avgLoss = 1
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}
