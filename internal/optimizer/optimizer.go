package optimizer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"papertrader/internal/backtest"
	"papertrader/internal/logger"
	"papertrader/internal/market"
	"papertrader/internal/scanner"
)

// SignalGenerator produces signals for one parameter combination over a
// window. The optimizer never inspects the parameters; it only sweeps them.
type SignalGenerator func(ctx context.Context, params map[string]float64, start, end time.Time) ([]scanner.Signal, error)

// WindowResult records one walk-forward step: the in-sample winner and its
// untouched out-of-sample evaluation.
type WindowResult struct {
	InSampleStart  time.Time          `json:"in_sample_start"`
	InSampleEnd    time.Time          `json:"in_sample_end"`
	OutSampleStart time.Time          `json:"out_sample_start"`
	OutSampleEnd   time.Time          `json:"out_sample_end"`
	BestParams     map[string]float64 `json:"best_params"`
	InSampleScore  float64            `json:"in_sample_score"`
	OutSampleScore float64            `json:"out_sample_score"`
	OutSample      backtest.Result    `json:"out_sample_result"`
}

// Summary flags overfitting: a large gap between in-sample and out-of-sample
// means the in-sample winners do not generalize.
type Summary struct {
	Periods           int     `json:"num_periods"`
	AvgInSampleScore  float64 `json:"avg_in_sample_score"`
	AvgOutSampleScore float64 `json:"avg_out_sample_score"`
	OutSampleStdev    float64 `json:"out_sample_std"`
	OutSampleSharpe   float64 `json:"out_sample_sharpe"`
	CorrelationInOut  float64 `json:"correlation_in_out"`
	BestPeriod        int     `json:"best_period"` // index into Windows
}

// Report is the full walk-forward output.
type Report struct {
	Metric  string         `json:"metric"`
	Windows []WindowResult `json:"windows"`
	Summary Summary        `json:"summary"`
}

// Optimizer runs walk-forward parameter searches against a backtest engine.
type Optimizer struct {
	engine *backtest.Engine
	grid   Grid
}

func New(engine *backtest.Engine, grid Grid) (*Optimizer, error) {
	grid.applyDefaults()
	if _, err := (backtest.Result{}).Metric(grid.Metric); err != nil {
		return nil, err
	}
	if len(grid.Parameters) == 0 {
		return nil, fmt.Errorf("grid has no parameters")
	}
	return &Optimizer{engine: engine, grid: grid}, nil
}

// WalkForward slides an in-sample/out-of-sample window pair across the data:
// every parameter combination is scored in-sample, the winner is applied
// unchanged out-of-sample, then both windows advance by the out-of-sample
// length until the dates run out.
func (o *Optimizer) WalkForward(ctx context.Context, strategy string, gen SignalGenerator,
	series map[string]market.Series) (Report, error) {

	dates := tradingDates(series)
	if len(dates) <= o.grid.InSampleDays+o.grid.OutSampleDays {
		return Report{}, fmt.Errorf("walk-forward needs more than %d trading days, have %d",
			o.grid.InSampleDays+o.grid.OutSampleDays, len(dates))
	}

	combos := o.grid.Combinations()
	logger.Infof("[optimizer] %s: %d combinations, metric %s, windows %d/%d",
		strategy, len(combos), o.grid.Metric, o.grid.InSampleDays, o.grid.OutSampleDays)

	report := Report{Metric: o.grid.Metric}
	for cur := 0; cur+o.grid.InSampleDays+o.grid.OutSampleDays < len(dates); cur += o.grid.OutSampleDays {
		win := WindowResult{
			InSampleStart:  dates[cur],
			InSampleEnd:    dates[cur+o.grid.InSampleDays],
			OutSampleStart: dates[cur+o.grid.InSampleDays+1],
			OutSampleEnd:   dates[cur+o.grid.InSampleDays+o.grid.OutSampleDays],
		}

		bestScore := math.Inf(-1)
		for _, params := range combos {
			if err := ctx.Err(); err != nil {
				return Report{}, err
			}
			score, err := o.evaluate(ctx, strategy, gen, params, series, win.InSampleStart, win.InSampleEnd)
			if err != nil {
				return Report{}, fmt.Errorf("in-sample %s..%s: %w",
					win.InSampleStart.Format("2006-01-02"), win.InSampleEnd.Format("2006-01-02"), err)
			}
			if score > bestScore {
				bestScore = score
				win.BestParams = params
			}
		}
		win.InSampleScore = bestScore

		signals, err := gen(ctx, win.BestParams, win.OutSampleStart, win.OutSampleEnd)
		if err != nil {
			return Report{}, fmt.Errorf("out-of-sample signals: %w", err)
		}
		out, err := o.engine.Run(ctx, backtest.Request{
			Strategy: strategy,
			Signals:  signals,
			Series:   series,
			Start:    win.OutSampleStart,
			End:      win.OutSampleEnd,
		})
		if err != nil {
			return Report{}, fmt.Errorf("out-of-sample run: %w", err)
		}
		win.OutSample = out
		win.OutSampleScore, _ = out.Metric(o.grid.Metric)

		logger.Infof("[optimizer] window %s..%s: best %v in=%.3f out=%.3f",
			win.InSampleStart.Format("2006-01-02"), win.OutSampleEnd.Format("2006-01-02"),
			win.BestParams, win.InSampleScore, win.OutSampleScore)
		report.Windows = append(report.Windows, win)
	}

	report.Summary = summarize(report.Windows)
	return report, nil
}

func (o *Optimizer) evaluate(ctx context.Context, strategy string, gen SignalGenerator,
	params map[string]float64, series map[string]market.Series, start, end time.Time) (float64, error) {

	signals, err := gen(ctx, params, start, end)
	if err != nil {
		return 0, err
	}
	result, err := o.engine.Run(ctx, backtest.Request{
		Strategy: strategy,
		Signals:  signals,
		Series:   series,
		Start:    start,
		End:      end,
	})
	if err != nil {
		return 0, err
	}
	return result.Metric(o.grid.Metric)
}

func summarize(windows []WindowResult) Summary {
	s := Summary{Periods: len(windows)}
	if len(windows) == 0 {
		return s
	}
	inScores := make([]float64, len(windows))
	outScores := make([]float64, len(windows))
	best := 0
	for i, w := range windows {
		inScores[i] = w.InSampleScore
		outScores[i] = w.OutSampleScore
		if w.OutSampleScore > outScores[best] {
			best = i
		}
	}
	s.BestPeriod = best
	s.AvgInSampleScore = mean(inScores)
	s.AvgOutSampleScore = mean(outScores)
	s.OutSampleStdev = popStdev(outScores)
	if s.OutSampleStdev > 0 {
		s.OutSampleSharpe = s.AvgOutSampleScore / s.OutSampleStdev
	}
	s.CorrelationInOut = correlation(inScores, outScores)
	return s
}

// tradingDates is the sorted union of all bar dates across the series set.
func tradingDates(series map[string]market.Series) []time.Time {
	seen := make(map[string]time.Time)
	for _, s := range series {
		for _, bar := range s.Bars {
			seen[bar.Date.Format("2006-01-02")] = bar.Date
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func popStdev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	ss := 0.0
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}

func correlation(xs, ys []float64) float64 {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0
	}
	mx, my := mean(xs), mean(ys)
	var cov, vx, vy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}
