package strategies

import "github.com/rustyeddy/levterm/market"

const (
	Oversold   = 30.0
	Overbought = 70.0

	ExtremeConfidence = 0.85
	TrendConfidence   = 0.68
	NeutralConfidence = 0.50
)

// Rules is the built-in RSI and SMA trend rule set. RSI extremes win over
// the trend rule.
type Rules struct{}

func (Rules) Name() string { return "rules" }

// Evaluate applies the rules to p. A missing RSI counts as 50 and missing
// SMAs as the close.
func (Rules) Evaluate(p market.PricePoint, symbol string) Recommendation {
	rsi := market.Or(p.RSI14, 50)
	sma10 := market.Or(p.SMA10, p.Close)
	sma20 := market.Or(p.SMA20, p.Close)

	var r Recommendation
	switch {
	case rsi < Oversold:
		r = Recommendation{Action: Buy, Confidence: ExtremeConfidence, Reason: "oversold exhaustion"}
	case rsi > Overbought:
		r = Recommendation{Action: Sell, Confidence: ExtremeConfidence, Reason: "overbought climax"}
	default:
		uptrend := sma10 > sma20
		above := p.Close > sma10
		switch {
		case uptrend && above:
			r = Recommendation{Action: Buy, Confidence: TrendConfidence, Reason: "uptrend continuation"}
		case !uptrend && !above:
			r = Recommendation{Action: Sell, Confidence: TrendConfidence, Reason: "downtrend continuation"}
		default:
			r = Recommendation{Action: Hold, Confidence: NeutralConfidence, Reason: "compression/no bias"}
		}
	}
	return stamp(r, p, symbol)
}
