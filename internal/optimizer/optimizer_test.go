package optimizer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrader/internal/backtest"
	"papertrader/internal/market"
	"papertrader/internal/risk"
	"papertrader/internal/scanner"
)

func TestParseGrid(t *testing.T) {
	t.Run("valid grid with defaults", func(t *testing.T) {
		g, err := ParseGrid([]byte(`{"parameters": {"rsi_low": [45, 50]}}`))
		require.NoError(t, err)
		assert.Equal(t, "sharpe_ratio", g.Metric)
		assert.Equal(t, 252, g.InSampleDays)
		assert.Equal(t, 63, g.OutSampleDays)
		assert.Equal(t, []float64{45, 50}, g.Parameters["rsi_low"])
	})

	t.Run("explicit fields", func(t *testing.T) {
		g, err := ParseGrid([]byte(`{
			"metric": "win_rate",
			"in_sample_days": 100,
			"out_sample_days": 25,
			"parameters": {"volume_multiplier": [1.5]}
		}`))
		require.NoError(t, err)
		assert.Equal(t, "win_rate", g.Metric)
		assert.Equal(t, 100, g.InSampleDays)
	})

	cases := []struct {
		name string
		doc  string
	}{
		{"unknown metric", `{"metric": "alpha", "parameters": {"x": [1]}}`},
		{"missing parameters", `{"metric": "sharpe_ratio"}`},
		{"empty parameters", `{"parameters": {}}`},
		{"empty value list", `{"parameters": {"x": []}}`},
		{"non-numeric values", `{"parameters": {"x": ["a"]}}`},
		{"extra field", `{"parameters": {"x": [1]}, "surprise": true}`},
		{"not json", `metric: sharpe`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseGrid([]byte(tc.doc))
			assert.Error(t, err)
		})
	}
}

func TestGridCombinations(t *testing.T) {
	g := Grid{Parameters: map[string][]float64{
		"a": {1, 2},
		"b": {10, 20, 30},
	}}
	combos := g.Combinations()
	require.Len(t, combos, 6)

	// Deterministic order: names sorted, values in declaration order.
	assert.Equal(t, map[string]float64{"a": 1, "b": 10}, combos[0])
	assert.Equal(t, map[string]float64{"a": 1, "b": 20}, combos[1])
	assert.Equal(t, map[string]float64{"a": 2, "b": 30}, combos[5])
}

func TestNewValidatesGrid(t *testing.T) {
	engine := backtest.NewEngine(risk.Config{}, nil, nil)

	_, err := New(engine, Grid{Metric: "nonsense", Parameters: map[string][]float64{"x": {1}}})
	assert.Error(t, err)

	_, err = New(engine, Grid{Metric: "sharpe_ratio"})
	assert.Error(t, err)

	opt, err := New(engine, Grid{Metric: "sharpe_ratio", Parameters: map[string][]float64{"x": {1}}})
	require.NoError(t, err)
	assert.NotNil(t, opt)
}

func TestTradingDates(t *testing.T) {
	day := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	series := map[string]market.Series{
		"A": {Symbol: "A", Bars: []market.Bar{
			{Date: day}, {Date: day.AddDate(0, 0, 1)},
		}},
		"B": {Symbol: "B", Bars: []market.Bar{
			{Date: day.AddDate(0, 0, 1)}, {Date: day.AddDate(0, 0, 2)},
		}},
	}
	dates := tradingDates(series)
	require.Len(t, dates, 3) // union, deduplicated
	assert.True(t, dates[0].Before(dates[1]) && dates[1].Before(dates[2]))
}

func TestSummarize(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		s := summarize(nil)
		assert.Equal(t, 0, s.Periods)
	})

	t.Run("scores aggregated", func(t *testing.T) {
		windows := []WindowResult{
			{InSampleScore: 2.0, OutSampleScore: 1.0},
			{InSampleScore: 3.0, OutSampleScore: 1.5},
			{InSampleScore: 4.0, OutSampleScore: 2.0},
		}
		s := summarize(windows)
		assert.Equal(t, 3, s.Periods)
		assert.InDelta(t, 3.0, s.AvgInSampleScore, 1e-9)
		assert.InDelta(t, 1.5, s.AvgOutSampleScore, 1e-9)
		assert.Equal(t, 2, s.BestPeriod)
		// Perfectly linear relationship between the score sets.
		assert.InDelta(t, 1.0, s.CorrelationInOut, 1e-9)
		assert.Greater(t, s.OutSampleStdev, 0.0)
	})

	t.Run("flat out-of-sample has zero correlation", func(t *testing.T) {
		windows := []WindowResult{
			{InSampleScore: 2.0, OutSampleScore: 1.0},
			{InSampleScore: 3.0, OutSampleScore: 1.0},
		}
		s := summarize(windows)
		assert.Equal(t, 0.0, s.CorrelationInOut)
		assert.Equal(t, 0.0, s.OutSampleStdev)
		assert.Equal(t, 0.0, s.OutSampleSharpe)
	})
}

func TestWalkForwardWindowArithmetic(t *testing.T) {
	// 15 trading days with in-sample 5 and out-of-sample 3 fit exactly three
	// windows, advancing by the out-of-sample length each step.
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, 15)
	for i := range bars {
		bars[i] = market.Bar{Date: day.AddDate(0, 0, i), Open: 100, High: 101, Low: 99, Close: 100, Volume: 1e6}
	}
	series := map[string]market.Series{"A": {Symbol: "A", Bars: bars}}

	engine := backtest.NewEngine(risk.Config{InitialBalance: 10000}, nil, nil)
	opt, err := New(engine, Grid{
		Metric:        "total_return",
		InSampleDays:  5,
		OutSampleDays: 3,
		Parameters:    map[string][]float64{"x": {1, 2}},
	})
	require.NoError(t, err)

	gen := func(_ context.Context, _ map[string]float64, _, _ time.Time) ([]scanner.Signal, error) {
		return nil, nil
	}
	report, err := opt.WalkForward(context.Background(), "momentum", gen, series)
	require.NoError(t, err)
	assert.Len(t, report.Windows, 3)
	assert.Equal(t, 3, report.Summary.Periods)

	first := report.Windows[0]
	assert.Equal(t, day, first.InSampleStart)
	assert.Equal(t, day.AddDate(0, 0, 5), first.InSampleEnd)
	assert.Equal(t, day.AddDate(0, 0, 6), first.OutSampleStart)
	assert.Equal(t, day.AddDate(0, 0, 8), first.OutSampleEnd)

	t.Run("too little data", func(t *testing.T) {
		short := map[string]market.Series{"A": {Symbol: "A", Bars: bars[:6]}}
		_, err := opt.WalkForward(context.Background(), "momentum", gen, short)
		assert.Error(t, err)
	})
}
