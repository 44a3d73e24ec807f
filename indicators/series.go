package indicators

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rustyeddy/levterm/market"
)

// MaxPoints is the sliding window kept by a Series.
const MaxPoints = 200

// ErrOutOfOrder is returned when a merged point is older than the last
// point of the series.
var ErrOutOfOrder = errors.New("indicators: point is older than the series tail")

// MergeResult reports what Merge did with a point.
type MergeResult int

const (
	Appended MergeResult = iota
	Replaced
)

func (r MergeResult) String() string {
	if r == Replaced {
		return "replaced"
	}
	return "appended"
}

// Series is a capped, time-ordered sequence of price points decorated
// with indicators. Every merge recomputes the indicators over the whole
// retained window.
//
// A Series is not safe for concurrent use; it is owned by a single
// writer (the terminal loop).
type Series struct {
	tf     market.Timeframe
	limit  int
	points []market.PricePoint
}

// NewSeries creates an empty series whose timestamps are floored to tf
// bars. An empty tf keeps second resolution.
func NewSeries(tf market.Timeframe) *Series {
	return &Series{
		tf:     tf,
		limit:  MaxPoints,
		points: make([]market.PricePoint, 0, MaxPoints),
	}
}

func (s *Series) Timeframe() market.Timeframe { return s.tf }

func (s *Series) Len() int { return len(s.points) }

// Latest returns the most recent decorated point.
func (s *Series) Latest() (market.PricePoint, bool) {
	if len(s.points) == 0 {
		return market.PricePoint{}, false
	}
	return s.points[len(s.points)-1], true
}

// Points returns a copy of the retained window, oldest first.
func (s *Series) Points() []market.PricePoint {
	out := make([]market.PricePoint, len(s.points))
	copy(out, s.points)
	return out
}

// Merge folds p into the series. A point in the same bar as the last
// stored point replaces it (a still-forming bar); a later point is
// appended and the oldest point is evicted past MaxPoints.
func (s *Series) Merge(p market.PricePoint) (MergeResult, error) {
	if err := p.Validate(); err != nil {
		return Appended, fmt.Errorf("merge: %w", err)
	}
	p = p.Bare()
	p.Time = s.tf.Floor(p.Time)

	res := Appended
	n := len(s.points)
	switch {
	case n > 0 && p.Time == s.points[n-1].Time:
		s.points[n-1] = p
		res = Replaced
	case n > 0 && p.Time < s.points[n-1].Time:
		return Appended, fmt.Errorf("merge %d after %d: %w", p.Time, s.points[n-1].Time, ErrOutOfOrder)
	default:
		s.points = append(s.points, p)
		if len(s.points) > s.limit {
			s.points = append(s.points[:0], s.points[len(s.points)-s.limit:]...)
		}
	}

	s.recompute()
	return res, nil
}

// Reset replaces the series with points, sorted by time. Points sharing
// a bar collapse to the last one given. Invalid points are skipped and
// counted in the returned error.
func (s *Series) Reset(points []market.PricePoint) error {
	clean := make([]market.PricePoint, 0, len(points))
	bad := 0
	for _, p := range points {
		if err := p.Validate(); err != nil {
			bad++
			continue
		}
		p = p.Bare()
		p.Time = s.tf.Floor(p.Time)
		clean = append(clean, p)
	}
	sort.SliceStable(clean, func(i, j int) bool { return clean[i].Time < clean[j].Time })

	dedup := clean[:0]
	for _, p := range clean {
		if n := len(dedup); n > 0 && dedup[n-1].Time == p.Time {
			dedup[n-1] = p
			continue
		}
		dedup = append(dedup, p)
	}
	if len(dedup) > s.limit {
		dedup = dedup[len(dedup)-s.limit:]
	}

	s.points = append(s.points[:0], dedup...)
	s.recompute()

	if bad > 0 {
		return fmt.Errorf("reset: skipped %d invalid points", bad)
	}
	return nil
}

func (s *Series) recompute() {
	closes := Closes(s.points)
	ema9 := emaSeries(closes, EMAFast)
	ema20 := emaSeries(closes, EMASlow)

	for i := range s.points {
		p := &s.points[i]
		window := closes[:i+1]

		p.SMA10, p.SMA20, p.EMA9, p.EMA20, p.RSI14 = nil, nil, nil, nil, nil

		if v, err := SMA(window, SMAFast); err == nil {
			p.SMA10 = market.Float(v)
		}
		if v, err := SMA(window, SMASlow); err == nil {
			p.SMA20 = market.Float(v)
		}
		if i >= EMAFast {
			p.EMA9 = market.Float(ema9[i])
		}
		if i >= EMASlow {
			p.EMA20 = market.Float(ema20[i])
		}
		if v, err := RSI(window, RSIBars); err == nil {
			p.RSI14 = market.Float(v)
		}
	}
}
