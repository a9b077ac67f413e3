package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"papertrader/internal/risk"
)

// Result aggregates a backtest run. A run with zero trades yields a Result
// with the window dates set and every numeric field at zero.
type Result struct {
	RunID     string    `json:"run_id"`
	Strategy  string    `json:"strategy"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	InitialBalance float64 `json:"initial_balance"`
	FinalEquity    float64 `json:"final_equity"`

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`

	TotalReturnPct  float64 `json:"total_return_pct"`
	AnnualReturnPct float64 `json:"annual_return_pct"`
	MaxDrawdownPct  float64 `json:"max_drawdown_pct"`
	VolatilityPct   float64 `json:"volatility_pct"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	SortinoRatio    float64 `json:"sortino_ratio"`
	CalmarRatio     float64 `json:"calmar_ratio"`
	ProfitFactor    float64 `json:"profit_factor"`
	AvgWin          float64 `json:"avg_win"`
	AvgLoss         float64 `json:"avg_loss"`
	AvgTrade        float64 `json:"avg_trade"`
	MaxWinStreak    int     `json:"max_consecutive_wins"`
	MaxLossStreak   int     `json:"max_consecutive_losses"`
	VaR95Pct        float64 `json:"var_95_pct"`

	MonthlyReturns []MonthlyReturn    `json:"monthly_returns"`
	Trades         []risk.Trade       `json:"trades"`
	EquityCurve    []risk.EquityPoint `json:"equity_curve"`
}

// MonthlyReturn is the summed daily return of one calendar month, in percent.
type MonthlyReturn struct {
	Month     string  `json:"month"` // YYYY-MM
	ReturnPct float64 `json:"return_pct"`
}

// Metric resolves a named optimization metric. Unknown names are a
// configuration error and fail fast.
func (r Result) Metric(name string) (float64, error) {
	switch name {
	case "sharpe_ratio":
		return r.SharpeRatio, nil
	case "total_return":
		return r.TotalReturnPct, nil
	case "profit_factor":
		return r.ProfitFactor, nil
	case "calmar_ratio":
		return r.CalmarRatio, nil
	case "win_rate":
		return r.WinRate, nil
	default:
		return 0, fmt.Errorf("unknown optimization metric %q", name)
	}
}

// computeResult derives all statistics from the trade log and equity curve.
func computeResult(runID, strategy string, start, end time.Time, initialBalance float64,
	trades []risk.Trade, curve []risk.EquityPoint) Result {

	res := Result{
		RunID:          runID,
		Strategy:       strategy,
		StartDate:      start,
		EndDate:        end,
		InitialBalance: initialBalance,
		Trades:         trades,
		EquityCurve:    curve,
	}
	if len(curve) > 0 {
		res.FinalEquity = curve[len(curve)-1].Equity
	}
	if len(trades) == 0 {
		return res
	}

	totalPnL := 0.0
	var winPnLs, lossPnLs []float64
	winStreak, lossStreak := 0, 0
	for _, t := range trades {
		totalPnL += t.PnL
		if t.PnL > 0 {
			winPnLs = append(winPnLs, t.PnL)
			winStreak++
			lossStreak = 0
			if winStreak > res.MaxWinStreak {
				res.MaxWinStreak = winStreak
			}
		} else {
			if t.PnL < 0 {
				lossPnLs = append(lossPnLs, t.PnL)
			}
			lossStreak++
			winStreak = 0
			if lossStreak > res.MaxLossStreak {
				res.MaxLossStreak = lossStreak
			}
		}
	}

	res.TotalTrades = len(trades)
	res.WinningTrades = len(winPnLs)
	res.LosingTrades = len(lossPnLs)
	res.WinRate = float64(res.WinningTrades) / float64(res.TotalTrades) * 100
	res.TotalReturnPct = totalPnL / initialBalance * 100

	years := end.Sub(start).Hours() / 24 / 365.25
	if years > 0 {
		res.AnnualReturnPct = (math.Pow(1+res.TotalReturnPct/100, 1/years) - 1) * 100
	}

	returns := dailyReturns(curve)
	res.MaxDrawdownPct = risk.MaxDrawdownPct(equitySeries(curve))
	if len(returns) > 1 {
		res.VolatilityPct = sampleStdev(returns) * math.Sqrt(252) * 100
		if res.VolatilityPct > 0 {
			res.SharpeRatio = res.AnnualReturnPct / res.VolatilityPct
		}
		var downside []float64
		for _, r := range returns {
			if r < 0 {
				downside = append(downside, r)
			}
		}
		if dd := sampleStdev(downside) * math.Sqrt(252); dd > 0 {
			res.SortinoRatio = res.AnnualReturnPct / 100 / dd
		}
		res.VaR95Pct = risk.Percentile(returns, 5) * 100
	}
	if res.MaxDrawdownPct != 0 {
		res.CalmarRatio = res.AnnualReturnPct / res.MaxDrawdownPct
	}

	grossProfit := sum(winPnLs)
	grossLoss := -sum(lossPnLs)
	switch {
	case grossLoss > 0:
		res.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		res.ProfitFactor = math.Inf(1)
	}

	if len(winPnLs) > 0 {
		res.AvgWin = grossProfit / float64(len(winPnLs))
	}
	if len(lossPnLs) > 0 {
		res.AvgLoss = sum(lossPnLs) / float64(len(lossPnLs))
	}
	res.AvgTrade = totalPnL / float64(res.TotalTrades)

	res.MonthlyReturns = monthlyReturns(curve)
	return res
}

func dailyReturns(curve []risk.EquityPoint) []float64 {
	var out []float64
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev != 0 {
			out = append(out, curve[i].Equity/prev-1)
		}
	}
	return out
}

func monthlyReturns(curve []risk.EquityPoint) []MonthlyReturn {
	if len(curve) < 2 {
		return nil
	}
	byMonth := make(map[string]float64)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		key := curve[i].Date.Format("2006-01")
		byMonth[key] += (curve[i].Equity/prev - 1) * 100
	}
	out := make([]MonthlyReturn, 0, len(byMonth))
	for month, ret := range byMonth {
		out = append(out, MonthlyReturn{Month: month, ReturnPct: ret})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

func equitySeries(curve []risk.EquityPoint) []float64 {
	out := make([]float64, len(curve))
	for i, p := range curve {
		out[i] = p.Equity
	}
	return out
}

func sampleStdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := sum(values) / float64(len(values))
	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
