package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrader/internal/backtest"
	"papertrader/internal/risk"
	"papertrader/internal/scanner"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSignals(t *testing.T) {
	st := openStore(t)
	base := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	for i, symbol := range []string{"AAPL", "MSFT", "AAPL"} {
		sig := scanner.Signal{
			Symbol:      symbol,
			Strategy:    scanner.StrategyMomentum,
			Strength:    70 + float64(i),
			EntryPrice:  100,
			StopLoss:    95,
			TargetPrice: 110,
			GeneratedAt: base.AddDate(0, 0, i),
			Aux:         map[string]float64{"rsi": 65},
		}
		require.NoError(t, st.SaveSignal(sig))
	}

	all, err := st.ListSignals("", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "AAPL", all[0].Symbol) // newest first

	aapl, err := st.ListSignals("aapl", 10)
	require.NoError(t, err)
	assert.Len(t, aapl, 2)
	assert.Contains(t, string(aapl[0].AuxJSON), "rsi")
}

func TestRunsRoundTrip(t *testing.T) {
	st := openStore(t)

	result := backtest.Result{
		RunID:          "run-1",
		Strategy:       "momentum",
		StartDate:      time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC),
		InitialBalance: 10000,
		FinalEquity:    10850,
		TotalTrades:    12,
		WinRate:        58.3,
		TotalReturnPct: 8.5,
		SharpeRatio:    1.4,
	}
	require.NoError(t, st.SaveRun(result))

	got, err := st.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, result.RunID, got.RunID)
	assert.Equal(t, result.TotalTrades, got.TotalTrades)
	assert.InDelta(t, result.SharpeRatio, got.SharpeRatio, 1e-9)
	assert.InDelta(t, result.FinalEquity, got.FinalEquity, 1e-9)

	runs, err := st.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)

	_, err = st.GetRun("no-such-run")
	assert.Error(t, err)
}

func TestTradesAndSnapshots(t *testing.T) {
	st := openStore(t)
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	trade := risk.Trade{
		ID:         "trade-1",
		Symbol:     "AAPL",
		Strategy:   "momentum",
		EntryDate:  day,
		ExitDate:   day.AddDate(0, 0, 4),
		EntryPrice: 100,
		ExitPrice:  110,
		Quantity:   10,
		PnL:        100,
		PnLPct:     10,
		ExitReason: risk.ExitTarget,
	}
	require.NoError(t, st.SaveTrade("run-1", trade))

	point := risk.EquityPoint{Date: day, Equity: 10100, Cash: 9000, PositionsValue: 1100}
	require.NoError(t, st.SaveSnapshot("run-1", point))

	// Duplicate trade IDs violate the unique index.
	assert.Error(t, st.SaveTrade("run-2", trade))
}
