package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("minimal file gets defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "app:\n  log_level: debug\n"))
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.App.LogLevel)
		assert.Equal(t, ":8087", cfg.App.HTTPAddr)
		assert.Equal(t, "data/bars", cfg.App.DataDir)
		assert.Equal(t, 2, cfg.Backtest.Parallelism)
		assert.Equal(t, "configs/optimizer_grid.json", cfg.Optimizer.GridPath)
	})

	t.Run("full file decodes into sections", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, `
app:
  http_addr: ":9000"
risk:
  initial_balance: 25000
  max_daily_loss: 250
strategies:
  momentum:
    rsi_low: 55
    rsi_high: 75
  mean_reversion:
    zscore_threshold: -2.5
backtest:
  start: "2024-01-02"
  end: "2024-06-28"
universe:
  symbols: [aapl, " msft "]
`))
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.App.HTTPAddr)
		assert.Equal(t, 25000.0, cfg.Risk.InitialBalance)
		assert.Equal(t, 55.0, cfg.Strategies.Momentum.RSILow)
		assert.Equal(t, -2.5, cfg.Strategies.MeanReversion.ZScoreThreshold)
		assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Universe.Symbols)

		start, end, err := cfg.BacktestWindow()
		require.NoError(t, err)
		assert.True(t, start.Before(end))
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("empty path errors", func(t *testing.T) {
		_, err := Load("")
		assert.Error(t, err)
	})
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			"bad log level",
			"app:\n  log_level: verbose\n",
			"log_level",
		},
		{
			"rsi band inverted",
			"strategies:\n  momentum:\n    rsi_low: 80\n    rsi_high: 50\n",
			"rsi_low",
		},
		{
			"positive zscore threshold",
			"strategies:\n  mean_reversion:\n    zscore_threshold: 2.0\n",
			"zscore_threshold",
		},
		{
			"reserve cash out of range",
			"risk:\n  reserve_cash_pct: 100\n",
			"reserve_cash_pct",
		},
		{
			"backtest window inverted",
			"backtest:\n  start: \"2024-06-01\"\n  end: \"2024-01-01\"\n",
			"backtest.start",
		},
		{
			"unparseable backtest date",
			"backtest:\n  start: \"June 1st\"\n",
			"backtest.start",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestWatcher(t *testing.T) {
	path := writeConfig(t, "app:\n  log_level: info\n")
	w, err := NewWatcher(path)
	require.NoError(t, err)

	snap := w.Snapshot()
	assert.Equal(t, "info", snap.App.LogLevel)
	assert.Equal(t, ":8087", snap.App.HTTPAddr)

	t.Run("invalid watcher path", func(t *testing.T) {
		_, err := NewWatcher("")
		assert.Error(t, err)
	})

	t.Run("invalid initial content rejected", func(t *testing.T) {
		bad := writeConfig(t, "app:\n  log_level: loud\n")
		_, err := NewWatcher(bad)
		assert.Error(t, err)
	})
}
