package strategies

import "github.com/rustyeddy/levterm/market"

// HoldGenerator never recommends a trade.
type HoldGenerator struct{}

func (HoldGenerator) Name() string { return "hold" }

func (HoldGenerator) Evaluate(p market.PricePoint, symbol string) Recommendation {
	return stamp(Recommendation{Action: Hold, Confidence: NeutralConfidence, Reason: "disabled"}, p, symbol)
}
