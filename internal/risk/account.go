package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the mutable trading ledger. Money that accumulates over many
// fills (cash, realized P&L) is kept in decimals so pennies never drift;
// per-bar marks stay float64. Account is not safe for concurrent use: the
// Manager owns it behind its mutex, and the backtest engine builds an
// isolated one per run.
type Account struct {
	Cash        decimal.Decimal
	RealizedPnL decimal.Decimal
	DailyPnL    decimal.Decimal

	Positions map[string]*Position

	DayTrades         []time.Time
	ConsecutiveLosses int
	Suspended         bool
	SuspensionReason  string

	EquityCurve []EquityPoint
}

// EquityPoint is one daily snapshot of the account's value decomposition.
type EquityPoint struct {
	Date           time.Time `json:"date"`
	Equity         float64   `json:"equity"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
	UnrealizedPnL  float64   `json:"unrealized_pnl"`
	RealizedPnL    float64   `json:"realized_pnl"`
}

func NewAccount(initialBalance float64) *Account {
	return &Account{
		Cash:      decimal.NewFromFloat(initialBalance),
		Positions: make(map[string]*Position),
	}
}

func (a *Account) PositionsValue() float64 {
	total := 0.0
	for _, p := range a.Positions {
		total += p.MarketValue()
	}
	return total
}

func (a *Account) UnrealizedPnL() float64 {
	total := 0.0
	for _, p := range a.Positions {
		total += p.UnrealizedPnL
	}
	return total
}

// PortfolioValue is cash plus the mark-to-market value of open positions.
func (a *Account) PortfolioValue() float64 {
	cash, _ := a.Cash.Float64()
	return cash + a.PositionsValue()
}

// pruneDayTrades drops day-trade records older than the rolling window.
func (a *Account) pruneDayTrades(asOf time.Time, window time.Duration) {
	cutoff := asOf.Add(-window)
	kept := a.DayTrades[:0]
	for _, t := range a.DayTrades {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	a.DayTrades = kept
}
