// Package indicators provides the technical indicators used to decorate
// a price series: simple and exponential moving averages and RSI.
package indicators

import "github.com/rustyeddy/levterm/market"

// Periods of the indicators attached to every market.PricePoint.
const (
	SMAFast = 10
	SMASlow = 20
	EMAFast = 9
	EMASlow = 20
	RSIBars = 14
)

// Closes extracts the close prices of points.
func Closes(points []market.PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Close
	}
	return out
}
