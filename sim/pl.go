package sim

// UnrealizedPnL marks p to price. Size is signed so the same expression
// serves longs and shorts.
func UnrealizedPnL(p Position, price float64) float64 {
	if p.Flat() {
		return 0
	}
	return (price - p.AvgEntryPrice) * p.Size
}

// ROI is unrealized PnL as a percentage of margin in use.
func ROI(p Position, price float64) float64 {
	m := MarginInUse(p)
	if m == 0 {
		return 0
	}
	return UnrealizedPnL(p, price) / m * 100
}
