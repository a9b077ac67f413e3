package backtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrader/internal/market"
	"papertrader/internal/risk"
	"papertrader/internal/scanner"
)

// memRecorder captures everything the engine persists.
type memRecorder struct {
	mu        sync.Mutex
	runs      []Result
	trades    []risk.Trade
	snapshots []risk.EquityPoint
}

func (r *memRecorder) SaveRun(res Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, res)
	return nil
}

func (r *memRecorder) SaveTrade(_ string, t risk.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, t)
	return nil
}

func (r *memRecorder) SaveSnapshot(_ string, p risk.EquityPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, p)
	return nil
}

// mkSeries builds a series starting Monday 2024-01-08 from OHLC tuples.
func mkSeries(symbol string, ohlc [][4]float64) market.Series {
	start := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, 0, len(ohlc))
	day := start
	for _, v := range ohlc {
		for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, 1)
		}
		bars = append(bars, market.Bar{
			Date: day, Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: 1e6,
		})
		day = day.AddDate(0, 0, 1)
	}
	return market.Series{Symbol: symbol, Bars: bars}
}

func backtestSignal(symbol string, generatedAt time.Time) scanner.Signal {
	return scanner.Signal{
		Symbol:      symbol,
		Strategy:    scanner.StrategyMomentum,
		Strength:    75,
		EntryPrice:  100,
		StopLoss:    90,
		TargetPrice: 110,
		GeneratedAt: generatedAt,
	}
}

var testWindow = struct{ start, end time.Time }{
	start: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
	end:   time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC),
}

func TestEngineNoSignals(t *testing.T) {
	engine := NewEngine(risk.Config{InitialBalance: 10000}, nil, nil)
	series := map[string]market.Series{
		"TEST": mkSeries("TEST", [][4]float64{
			{100, 101, 99, 100}, {100, 101, 99, 100}, {100, 101, 99, 100},
			{100, 101, 99, 100}, {100, 101, 99, 100},
		}),
	}
	res, err := engine.Run(context.Background(), Request{
		Strategy: "momentum", Series: series,
		Start: testWindow.start, End: testWindow.end,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalTrades)
	assert.Equal(t, 0.0, res.TotalReturnPct)
	assert.InDelta(t, 10000.0, res.FinalEquity, 1e-9)
	assert.Len(t, res.EquityCurve, 5)
}

func TestEngineNextOpenEntryAndTargetExit(t *testing.T) {
	rec := &memRecorder{}
	engine := NewEngine(risk.Config{InitialBalance: 10000}, nil, rec)
	series := map[string]market.Series{
		"TEST": mkSeries("TEST", [][4]float64{
			{100, 101, 99, 100},  // Mon: signal day
			{102, 103, 101, 102}, // Tue: fill at the open
			{102, 105, 101, 103}, // Wed
			{104, 111, 103, 108}, // Thu: high pierces the 110 target
			{108, 109, 107, 108}, // Fri
		}),
	}
	res, err := engine.Run(context.Background(), Request{
		Strategy: "momentum",
		Signals:  []scanner.Signal{backtestSignal("TEST", testWindow.start)},
		Series:   series,
		Start:    testWindow.start, End: testWindow.end,
	})
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.InDelta(t, 102.0, trade.EntryPrice, 1e-9) // next day's open, not the signal price
	assert.InDelta(t, 110.0, trade.ExitPrice, 1e-9)
	assert.Equal(t, risk.ExitTarget, trade.ExitReason)
	assert.Equal(t, time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC), trade.EntryDate)
	assert.Equal(t, time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC), trade.ExitDate)
	assert.Greater(t, trade.PnL, 0.0)

	assert.Len(t, rec.runs, 1)
	assert.Len(t, rec.trades, 1)
	assert.Len(t, rec.snapshots, 5)
	assert.Equal(t, res.RunID, rec.runs[0].RunID)
}

func TestEngineStopBeatsTarget(t *testing.T) {
	engine := NewEngine(risk.Config{InitialBalance: 10000}, nil, nil)
	series := map[string]market.Series{
		"TEST": mkSeries("TEST", [][4]float64{
			{100, 101, 99, 100},
			{100, 101, 99, 100},  // Tue: fill
			{100, 115, 85, 100},  // Wed: both stop and target inside the range
			{100, 101, 99, 100},
			{100, 101, 99, 100},
		}),
	}
	res, err := engine.Run(context.Background(), Request{
		Strategy: "momentum",
		Signals:  []scanner.Signal{backtestSignal("TEST", testWindow.start)},
		Series:   series,
		Start:    testWindow.start, End: testWindow.end,
	})
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, risk.ExitStopLoss, res.Trades[0].ExitReason)
	assert.InDelta(t, 90.0, res.Trades[0].ExitPrice, 1e-9)
}

func TestEngineNoSameDayExit(t *testing.T) {
	engine := NewEngine(risk.Config{InitialBalance: 10000}, nil, nil)
	series := map[string]market.Series{
		"TEST": mkSeries("TEST", [][4]float64{
			{100, 101, 99, 100},
			{100, 112, 99, 105},  // Tue: fill day touches the target; ignored
			{105, 111, 104, 107}, // Wed: exit here instead
			{107, 108, 106, 107},
			{107, 108, 106, 107},
		}),
	}
	res, err := engine.Run(context.Background(), Request{
		Strategy: "momentum",
		Signals:  []scanner.Signal{backtestSignal("TEST", testWindow.start)},
		Series:   series,
		Start:    testWindow.start, End: testWindow.end,
	})
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, risk.ExitTarget, res.Trades[0].ExitReason)
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), res.Trades[0].ExitDate)
}

func TestEngineForceCloseAtEnd(t *testing.T) {
	engine := NewEngine(risk.Config{InitialBalance: 10000}, nil, nil)
	series := map[string]market.Series{
		"TEST": mkSeries("TEST", [][4]float64{
			{100, 101, 99, 100},
			{100, 102, 99, 101}, // Tue: fill
			{101, 103, 100, 102},
			{102, 104, 101, 103},
			{103, 105, 102, 104}, // Fri: still open, force-closed at 104
		}),
	}
	res, err := engine.Run(context.Background(), Request{
		Strategy: "momentum",
		Signals:  []scanner.Signal{backtestSignal("TEST", testWindow.start)},
		Series:   series,
		Start:    testWindow.start, End: testWindow.end,
	})
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, risk.ExitBacktestEnd, res.Trades[0].ExitReason)
	assert.InDelta(t, 104.0, res.Trades[0].ExitPrice, 1e-9)
}

func TestEngineTimeLimitExit(t *testing.T) {
	engine := NewEngine(risk.Config{InitialBalance: 10000, MaxHoldingDays: 2}, nil, nil)
	series := map[string]market.Series{
		"TEST": mkSeries("TEST", [][4]float64{
			{100, 101, 99, 100},
			{100, 102, 99, 101}, // Tue: fill
			{101, 103, 100, 102},
			{102, 104, 101, 103}, // Thu: 2 days held, closed at 103
			{103, 105, 102, 104},
		}),
	}
	res, err := engine.Run(context.Background(), Request{
		Strategy: "momentum",
		Signals:  []scanner.Signal{backtestSignal("TEST", testWindow.start)},
		Series:   series,
		Start:    testWindow.start, End: testWindow.end,
	})
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, risk.ExitTimeLimit, res.Trades[0].ExitReason)
	assert.InDelta(t, 103.0, res.Trades[0].ExitPrice, 1e-9)
}

func TestEngineDeterministicReplay(t *testing.T) {
	series := map[string]market.Series{
		"TEST": mkSeries("TEST", [][4]float64{
			{100, 101, 99, 100},
			{102, 103, 101, 102},
			{102, 105, 101, 103},
			{104, 111, 103, 108},
			{108, 109, 107, 108},
		}),
	}
	req := Request{
		Strategy: "momentum",
		Signals:  []scanner.Signal{backtestSignal("TEST", testWindow.start)},
		Series:   series,
		Start:    testWindow.start, End: testWindow.end,
	}

	engine := NewEngine(risk.Config{InitialBalance: 10000}, nil, nil)
	first, err := engine.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), req)
	require.NoError(t, err)

	// Run and trade IDs are freshly minted each run; every other field of the
	// result must replay identically.
	first.RunID, second.RunID = "", ""
	for i := range first.Trades {
		first.Trades[i].ID = ""
	}
	for i := range second.Trades {
		second.Trades[i].ID = ""
	}
	assert.Equal(t, first, second)
}

func TestEngineRejectsBadWindow(t *testing.T) {
	engine := NewEngine(risk.Config{}, nil, nil)
	_, err := engine.Run(context.Background(), Request{
		Start: testWindow.end, End: testWindow.start,
	})
	assert.Error(t, err)
}

type lengthGatedScanner struct {
	provider market.Provider
	minBars  int
}

func (s *lengthGatedScanner) Name() string { return "gated" }

func (s *lengthGatedScanner) Analyze(ctx context.Context, symbol string) (*scanner.Signal, error) {
	series, err := s.provider.GetPriceSeries(ctx, symbol, 0)
	if err != nil {
		return nil, err
	}
	if series.Len() < s.minBars {
		return nil, nil
	}
	sig := backtestSignal(symbol, time.Time{})
	return &sig, nil
}

func TestGenerateSignals(t *testing.T) {
	series := map[string]market.Series{
		"TEST": mkSeries("TEST", [][4]float64{
			{100, 101, 99, 100}, {100, 101, 99, 100}, {100, 101, 99, 100},
			{100, 101, 99, 100}, {100, 101, 99, 100},
		}),
	}
	factory := func(p market.Provider) scanner.Scanner {
		return &lengthGatedScanner{provider: p, minBars: 3}
	}
	signals, err := GenerateSignals(context.Background(), factory, series, []string{"TEST"},
		testWindow.start, testWindow.end, 1)
	require.NoError(t, err)

	// Only Wed through Fri have three bars of history; each signal carries its
	// simulated day.
	require.Len(t, signals, 3)
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), signals[0].GeneratedAt)
	assert.Equal(t, time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC), signals[1].GeneratedAt)
	assert.Equal(t, time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC), signals[2].GeneratedAt)
}
