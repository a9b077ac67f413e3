package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"papertrader/internal/logger"
	"papertrader/internal/market"
	"papertrader/internal/risk"
	"papertrader/internal/scanner"
)

// Request describes one backtest run: dated signals to replay against
// per-symbol price series over a window. Series are read-only and may be
// shared across concurrent runs.
type Request struct {
	Strategy string
	Signals  []scanner.Signal
	Series   map[string]market.Series
	Start    time.Time
	End      time.Time
}

// Engine replays signals day by day against an isolated risk.Manager, so
// concurrent runs never share account state. Entries fill at the next bar's
// open after the signal date; exits follow stop, target, then holding-time
// precedence; whatever remains open is force-closed on the final bar.
type Engine struct {
	riskCfg  risk.Config
	sectors  market.SectorMap
	recorder Recorder
}

func NewEngine(riskCfg risk.Config, sectors market.SectorMap, recorder Recorder) *Engine {
	return &Engine{riskCfg: riskCfg.Normalized(), sectors: sectors, recorder: recorder}
}

type pendingSignal struct {
	signal scanner.Signal
	sized  bool
}

func (e *Engine) Run(ctx context.Context, req Request) (Result, error) {
	if !req.Start.Before(req.End) {
		return Result{}, fmt.Errorf("backtest window start %s not before end %s",
			req.Start.Format("2006-01-02"), req.End.Format("2006-01-02"))
	}

	runID := uuid.NewString()
	logger.Infof("[backtest] run %s: %s, %d signals, %s..%s", runID, req.Strategy,
		len(req.Signals), req.Start.Format("2006-01-02"), req.End.Format("2006-01-02"))

	mgr := risk.NewManager(e.riskCfg, e.sectors)
	var simDay time.Time
	mgr.SetClock(func() time.Time { return simDay })

	barsByDay := indexBars(req.Series)
	lastBar := lastBars(req.Series, req.End)

	pending := make([]*pendingSignal, 0, len(req.Signals))
	for i := range req.Signals {
		pending = append(pending, &pendingSignal{signal: req.Signals[i]})
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].signal.GeneratedAt.Before(pending[j].signal.GeneratedAt)
	})

	var trades []risk.Trade
	entryDay := make(map[string]time.Time)

	for day := req.Start; !day.After(req.End); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("backtest run %s: %w", runID, err)
		}
		simDay = day
		mgr.ResetDaily()
		todayBars := barsByDay[dayKey(day)]

		// Fill signals dated before today at today's open.
		for _, p := range pending {
			if p.sized || !p.signal.GeneratedAt.Before(day) {
				continue
			}
			bar, ok := todayBars[p.signal.Symbol]
			if !ok {
				continue
			}
			p.sized = true
			sizing := mgr.SizePosition(p.signal, false)
			if !sizing.Approved() {
				logger.Debugf("[backtest] %s %s rejected: %v", day.Format("2006-01-02"), p.signal.Symbol, sizing.Constraints)
				continue
			}
			if err := mgr.AddPosition(p.signal, sizing.Shares, bar.Open, day); err != nil {
				logger.Warnf("[backtest] fill %s failed: %v", p.signal.Symbol, err)
				continue
			}
			entryDay[p.signal.Symbol] = day
		}

		// Mark open positions to today's close.
		quotes := make(map[string]float64, len(todayBars))
		for symbol, bar := range todayBars {
			quotes[symbol] = bar.Close
		}
		mgr.UpdatePrices(quotes)

		// Exit checks run only on bars after the entry day.
		for _, pos := range mgr.Positions() {
			if sameDate(entryDay[pos.Symbol], day) {
				continue
			}
			bar, ok := todayBars[pos.Symbol]
			if !ok {
				continue
			}
			exitPrice, reason := 0.0, ""
			switch {
			case bar.Low <= pos.StopLoss:
				exitPrice, reason = pos.StopLoss, risk.ExitStopLoss
			case bar.High >= pos.Target:
				exitPrice, reason = pos.Target, risk.ExitTarget
			case pos.HoldingDays(day) >= e.riskCfg.MaxHoldingDays && e.riskCfg.MaxHoldingDays > 0:
				exitPrice, reason = bar.Close, risk.ExitTimeLimit
			default:
				continue
			}
			trade, err := mgr.ClosePosition(pos.Symbol, exitPrice, reason, day)
			if err != nil {
				return Result{}, fmt.Errorf("backtest close %s: %w", pos.Symbol, err)
			}
			trades = append(trades, trade)
			delete(entryDay, pos.Symbol)
		}

		point := mgr.RecordDailyEquity(day)
		if e.recorder != nil {
			if err := e.recorder.SaveSnapshot(runID, point); err != nil {
				logger.Warnf("[backtest] snapshot save failed: %v", err)
			}
		}
	}

	// Force-close whatever is still open at the final available bar.
	simDay = req.End
	for _, pos := range mgr.Positions() {
		bar, ok := lastBar[pos.Symbol]
		if !ok {
			bar = market.Bar{Close: pos.CurrentPrice}
		}
		trade, err := mgr.ClosePosition(pos.Symbol, bar.Close, risk.ExitBacktestEnd, req.End)
		if err != nil {
			return Result{}, fmt.Errorf("backtest final close %s: %w", pos.Symbol, err)
		}
		trades = append(trades, trade)
	}

	result := computeResult(runID, req.Strategy, req.Start, req.End,
		e.riskCfg.InitialBalance, trades, mgr.EquityCurve())
	if e.recorder != nil {
		for _, t := range trades {
			if err := e.recorder.SaveTrade(runID, t); err != nil {
				logger.Warnf("[backtest] trade save failed: %v", err)
			}
		}
		if err := e.recorder.SaveRun(result); err != nil {
			logger.Warnf("[backtest] run save failed: %v", err)
		}
	}
	logger.Infof("[backtest] run %s done: %d trades, return %.2f%%, sharpe %.2f",
		runID, result.TotalTrades, result.TotalReturnPct, result.SharpeRatio)
	return result, nil
}

func indexBars(series map[string]market.Series) map[string]map[string]market.Bar {
	out := make(map[string]map[string]market.Bar)
	for symbol, s := range series {
		for _, bar := range s.Bars {
			key := dayKey(bar.Date)
			if out[key] == nil {
				out[key] = make(map[string]market.Bar)
			}
			out[key][symbol] = bar
		}
	}
	return out
}

func lastBars(series map[string]market.Series, end time.Time) map[string]market.Bar {
	out := make(map[string]market.Bar, len(series))
	for symbol, s := range series {
		for _, bar := range s.Bars {
			if bar.Date.After(end) {
				break
			}
			out[symbol] = bar
		}
	}
	return out
}

func dayKey(t time.Time) string { return t.Format("2006-01-02") }

func sameDate(a, b time.Time) bool {
	return !a.IsZero() && dayKey(a) == dayKey(b)
}
