package market

import (
	"hash/fnv"
	"strings"
)

// basePrices seed the synthetic feed for well known symbols.
var basePrices = map[string]float64{
	"BTCUSDT":  65000,
	"ETHUSDT":  3500,
	"SOLUSDT":  150,
	"BNBUSDT":  580,
	"XRPUSDT":  0.6,
	"DOGEUSDT": 0.15,
	"AAPL":     190,
	"MSFT":     420,
	"NVDA":     120,
	"TSLA":     180,
	"EURUSD":   1.085,
}

// NormalizeSymbol upper-cases the symbol and strips separators so
// "btc/usdt", "BTC-USDT" and "BTC_USDT" all map to "BTCUSDT".
func NormalizeSymbol(s string) string {
	r := strings.NewReplacer("/", "", "-", "", "_", "", " ", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(s)))
}

// BasePrice returns the reference price for symbol. Unknown symbols get
// a deterministic price in [50, 1000) derived from an FNV-1a hash.
func BasePrice(symbol string) float64 {
	sym := NormalizeSymbol(symbol)
	if p, ok := basePrices[sym]; ok {
		return p
	}
	return 50 + float64(Hash(sym)%95000)/100
}

// Hash is the FNV-1a hash of the normalized symbol.
func Hash(symbol string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(NormalizeSymbol(symbol)))
	return h.Sum64()
}
