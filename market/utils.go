package market

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is a bar interval such as "1m" or "1h".
type Timeframe string

const (
	M1  Timeframe = "1m"
	M5  Timeframe = "5m"
	M15 Timeframe = "15m"
	H1  Timeframe = "1h"
	H4  Timeframe = "4h"
	D1  Timeframe = "1d"
)

var timeframes = map[Timeframe]int64{
	M1:  60,
	M5:  5 * 60,
	M15: 15 * 60,
	H1:  60 * 60,
	H4:  4 * 60 * 60,
	D1:  24 * 60 * 60,
}

// ParseTimeframe accepts the canonical spellings, case-insensitive.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := timeframes[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q (supported: 1m, 5m, 15m, 1h, 4h, 1d)", s)
	}
	return tf, nil
}

// Seconds returns the bar length, or 0 for an unknown timeframe.
func (tf Timeframe) Seconds() int64 {
	return timeframes[tf]
}

// Duration returns the bar length as a time.Duration.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf.Seconds()) * time.Second
}

// Floor truncates ts (unix seconds) to the start of its bar. Unknown
// timeframes leave ts unchanged.
func (tf Timeframe) Floor(ts int64) int64 {
	n := tf.Seconds()
	if n <= 0 {
		return ts
	}
	return ts - mod(ts, n)
}

func (tf Timeframe) String() string { return string(tf) }

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
