package risk

import (
	"math"
	"sort"
)

// Metrics is the portfolio risk snapshot produced by Manager.PortfolioRisk.
type Metrics struct {
	TotalExposure         float64            `json:"total_exposure"`
	CashAvailable         float64            `json:"cash_available"`
	PortfolioValue        float64            `json:"portfolio_value"`
	UnrealizedPnL         float64            `json:"unrealized_pnl"`
	DailyPnL              float64            `json:"daily_pnl"`
	MaxDrawdownPct        float64            `json:"max_drawdown_pct"`
	VaR95                 float64            `json:"var_95"`
	PositionConcentration map[string]float64 `json:"position_concentration"`
	SectorConcentration   map[string]float64 `json:"sector_concentration"`
	LeverageRatio         float64            `json:"leverage_ratio"`
}

// MaxDrawdownPct is the largest peak-to-trough decline in the equity series,
// as a percentage. Fewer than two points, or a non-decreasing curve, gives 0.
func MaxDrawdownPct(equity []float64) float64 {
	if len(equity) < 2 {
		return 0
	}
	peak := equity[0]
	maxDD := 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			if dd := (peak - e) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD * 100
}

// Percentile returns the p-th percentile (0-100) of values using linear
// interpolation between order statistics.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
