package sim

import "math"

// MaintenanceMarginPct is the fraction of margin in use below which
// equity triggers a liquidation.
const MaintenanceMarginPct = 0.05

// MarginInUse is the collateral locked by p.
func MarginInUse(p Position) float64 {
	if p.Flat() || p.Leverage <= 0 {
		return 0
	}
	return math.Abs(p.Size*p.AvgEntryPrice) / float64(p.Leverage)
}

// RequiredMargin is what opening amount at price with leverage debits.
func RequiredMargin(price, amount float64, leverage int) float64 {
	return price * amount / float64(leverage)
}

// LiquidationPrice is the mark at which equity falls to the maintenance
// margin. It is clamped to zero and is zero while flat.
func LiquidationPrice(p Position, cash float64) float64 {
	if p.Flat() {
		return 0
	}
	liq := p.AvgEntryPrice + (MarginInUse(p)*(MaintenanceMarginPct-1)-cash)/p.Size
	return math.Max(liq, 0)
}
