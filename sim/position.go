package sim

import (
	"fmt"
	"math"
	"strings"

	"github.com/rustyeddy/levterm/journal"
)

// epsilon is the size below which a position counts as flat.
const epsilon = 1e-6

// Side is the direction of an order.
type Side int

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	if s == Sell {
		return journal.SideSell
	}
	return journal.SideBuy
}

// Opposite returns the side that closes a position opened on s.
func (s Side) Opposite() Side { return -s }

// ParseSide accepts buy/sell and long/short.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return Buy, nil
	case "sell", "short":
		return Sell, nil
	}
	return 0, fmt.Errorf("%w: unknown side %q", ErrValidation, s)
}

// Position is the single open position. Size is signed: positive long,
// negative short, zero flat.
type Position struct {
	Symbol        string
	Size          float64
	AvgEntryPrice float64
	Leverage      int
}

func (p Position) Flat() bool { return math.Abs(p.Size) < epsilon }

// Side is the direction of the open position. Only meaningful when not
// flat.
func (p Position) Side() Side {
	if p.Size < 0 {
		return Sell
	}
	return Buy
}

func (p Position) String() string {
	if p.Flat() {
		return "FLAT"
	}
	dir := "LONG"
	if p.Size < 0 {
		dir = "SHORT"
	}
	return fmt.Sprintf("%s %s %.4f @ %.4f x%d", dir, p.Symbol, math.Abs(p.Size), p.AvgEntryPrice, p.Leverage)
}
