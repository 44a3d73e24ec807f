package sim

// Account is the cash side of the simulated exchange account.
type Account struct {
	// Cash is the uncommitted balance. It never goes negative.
	Cash float64
	// InitialValue is the deposit basis used for performance reporting.
	InitialValue float64
}

func NewAccount(cash float64) Account {
	return Account{Cash: cash, InitialValue: cash}
}

// State is a point-in-time valuation of the account at a mark price.
type State struct {
	Account
	Position Position

	Price            float64
	MarginInUse      float64
	UnrealizedPnL    float64
	Equity           float64
	ROI              float64
	LiquidationPrice float64
}

// PnL is equity relative to the deposit basis.
func (s State) PnL() float64 {
	return s.Equity - s.InitialValue
}

func valuate(a Account, p Position, price float64) State {
	s := State{
		Account:          a,
		Position:         p,
		Price:            price,
		MarginInUse:      MarginInUse(p),
		UnrealizedPnL:    UnrealizedPnL(p, price),
		ROI:              ROI(p, price),
		LiquidationPrice: LiquidationPrice(p, a.Cash),
	}
	s.Equity = a.Cash + s.MarginInUse + s.UnrealizedPnL
	return s
}
