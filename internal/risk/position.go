package risk

import "time"

// Exit reasons recorded on closed trades.
const (
	ExitStopLoss    = "stop_loss"
	ExitTarget      = "target_reached"
	ExitTimeLimit   = "time_limit"
	ExitBacktestEnd = "backtest_end"
	ExitManual      = "manual"
)

// Position is an open long holding. Quantity is whole shares; marks are
// updated via UpdatePrice which also tracks the best and worst excursions
// seen since entry.
type Position struct {
	Symbol     string    `json:"symbol"`
	Strategy   string    `json:"strategy"`
	EntryDate  time.Time `json:"entry_date"`
	EntryPrice float64   `json:"entry_price"`
	Quantity   int       `json:"quantity"`
	StopLoss   float64   `json:"stop_loss"`
	Target     float64   `json:"target"`

	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	MaxFavorable  float64 `json:"max_favorable_excursion"`
	MaxAdverse    float64 `json:"max_adverse_excursion"`
}

func (p *Position) UpdatePrice(price float64) {
	p.CurrentPrice = price
	p.UnrealizedPnL = (price - p.EntryPrice) * float64(p.Quantity)

	if favorable := price - p.EntryPrice; favorable > p.MaxFavorable {
		p.MaxFavorable = favorable
	}
	if adverse := p.EntryPrice - price; adverse > p.MaxAdverse {
		p.MaxAdverse = adverse
	}
}

func (p *Position) MarketValue() float64 {
	return p.CurrentPrice * float64(p.Quantity)
}

func (p *Position) HoldingDays(asOf time.Time) int {
	return int(asOf.Sub(p.EntryDate).Hours() / 24)
}

// ShouldExit checks stop, then target, then the hard holding-time limit, in
// that order of precedence.
func (p *Position) ShouldExit(asOf time.Time, maxHoldingDays int) (bool, string) {
	if p.CurrentPrice <= p.StopLoss {
		return true, ExitStopLoss
	}
	if p.CurrentPrice >= p.Target {
		return true, ExitTarget
	}
	if maxHoldingDays > 0 && p.HoldingDays(asOf) >= maxHoldingDays {
		return true, ExitTimeLimit
	}
	return false, ""
}
