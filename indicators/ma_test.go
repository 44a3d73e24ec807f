package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func TestSMA(t *testing.T) {
	closes := ramp(20)

	v, err := SMA(closes[:10], 10)
	require.NoError(t, err)
	assert.InDelta(t, 5.5, v, 1e-12)

	v, err = SMA(closes, 10)
	require.NoError(t, err)
	// 11..20
	assert.InDelta(t, 15.5, v, 1e-12)

	v, err = SMA(closes, 20)
	require.NoError(t, err)
	assert.InDelta(t, 10.5, v, 1e-12)

	_, err = SMA(closes[:9], 10)
	assert.Error(t, err)
	_, err = SMA(closes, 0)
	assert.Error(t, err)
}

func TestEMASeededAtFirstClose(t *testing.T) {
	closes := make([]float64, 10)
	for i := range closes {
		closes[i] = 10
	}
	closes = append(closes, 20)

	v, err := EMA(closes, 9)
	require.NoError(t, err)
	// k = 0.2: 20*0.2 + 10*0.8
	assert.InDelta(t, 12.0, v, 1e-12)
}

func TestEMAWarmup(t *testing.T) {
	_, err := EMA(ramp(9), 9)
	assert.Error(t, err, "EMA(9) needs more than 9 closes")

	_, err = EMA(ramp(10), 9)
	assert.NoError(t, err)
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		want   float64
	}{
		{
			name:   "flat window divides by one",
			closes: []float64{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5},
			want:   0,
		},
		{
			name:   "steady rise of one per bar",
			closes: ramp(15),
			want:   50,
		},
		{
			name:   "two to one gains",
			closes: []float64{10, 12, 11, 13, 12, 14, 13, 15, 14, 16, 15, 17, 16, 18, 17},
			want:   100 - 100/3.0,
		},
		{
			name:   "only losses",
			closes: []float64{30, 29, 28, 27, 26, 25, 24, 23, 22, 21, 20, 19, 18, 17, 16},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := RSI(tt.closes, 14)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, v, 1e-9)
		})
	}

	_, err := RSI(ramp(14), 14)
	assert.Error(t, err)
}

func TestRSIBounded(t *testing.T) {
	closes := []float64{100}
	for i := 1; i < 200; i++ {
		step := float64((i*7919)%23) - 11
		closes = append(closes, closes[i-1]+step*0.37)
	}
	for end := 15; end <= len(closes); end++ {
		v, err := RSI(closes[:end], 14)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}
