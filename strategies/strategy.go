package strategies

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/levterm/market"
)

// Action is what a generator recommends doing with the position.
type Action int

const (
	Hold Action = iota
	Buy
	Sell
)

func (a Action) String() string {
	switch a {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// ParseAction accepts buy, sell, hold and long/short aliases.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return Buy, nil
	case "sell", "short":
		return Sell, nil
	case "hold", "":
		return Hold, nil
	default:
		return Hold, fmt.Errorf("unknown action %q (supported: buy, sell, hold)", s)
	}
}

// Recommendation is the output of a Generator for one price point.
type Recommendation struct {
	Action     Action
	Confidence float64
	Reason     string

	// Symbol and Time identify the point the recommendation was computed
	// from.
	Symbol string
	Time   int64
}

func (r Recommendation) String() string {
	return fmt.Sprintf("%s %.0f%% %s", r.Action, r.Confidence*100, r.Reason)
}

// Actionable reports whether r asks for a trade at or above minConfidence.
func (r Recommendation) Actionable(minConfidence float64) bool {
	return r.Action != Hold && r.Confidence >= minConfidence
}

// Generator turns the latest enriched price point into a recommendation.
// Implementations must be pure; the caller decides whether to act.
type Generator interface {
	Name() string
	Evaluate(p market.PricePoint, symbol string) Recommendation
}

var registry = map[string]Generator{
	"rules": Rules{},
	"hold":  HoldGenerator{},
}

// Register adds or replaces a named generator.
func Register(name string, g Generator) {
	registry[strings.ToLower(name)] = g
}

// ByName looks up a registered generator.
func ByName(name string) (Generator, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = "rules"
	}
	g, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("unknown generator %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return g, nil
}

// Names lists the registered generators in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func stamp(r Recommendation, p market.PricePoint, symbol string) Recommendation {
	r.Symbol = market.NormalizeSymbol(symbol)
	r.Time = p.Time
	if r.Time == 0 {
		r.Time = time.Now().Unix()
	}
	return r
}
