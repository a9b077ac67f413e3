package notify

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"papertrader/internal/backtest"
	"papertrader/internal/scanner"
)

func TestBuildSignalMessage(t *testing.T) {
	msg := BuildSignalMessage(scanner.Signal{
		Symbol:      "AAPL",
		Strategy:    scanner.StrategyMomentum,
		Strength:    82.5,
		Confidence:  75,
		EntryPrice:  100,
		StopLoss:    95,
		TargetPrice: 110,
		RiskReward:  2,
		Conditions:  "Bullish",
		Notes:       "High volume surge (2.1x)",
	})
	assert.Contains(t, msg, "[AAPL] momentum signal")
	assert.Contains(t, msg, "strength: 82.5")
	assert.Contains(t, msg, "entry: 100.00  stop: 95.00  target: 110.00 (2.0:1)")
	assert.Contains(t, msg, "conditions: Bullish")
	assert.False(t, strings.HasSuffix(msg, "\n"))
}

func TestBuildScanMessageTruncates(t *testing.T) {
	signals := make([]scanner.Signal, 13)
	for i := range signals {
		signals[i] = scanner.Signal{Symbol: fmt.Sprintf("SYM%02d", i), Strength: 70, EntryPrice: 100}
	}
	msg := BuildScanMessage("momentum", signals, 4)
	assert.Contains(t, msg, "momentum scan: 13 signals, 4 skipped")
	assert.Contains(t, msg, "... and 3 more")
	assert.NotContains(t, msg, "SYM12")
}

func TestBuildBacktestMessage(t *testing.T) {
	msg := BuildBacktestMessage(backtest.Result{
		Strategy:        "momentum",
		StartDate:       time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC),
		TotalTrades:     12,
		WinRate:         58.3,
		TotalReturnPct:  8.5,
		AnnualReturnPct: 17.9,
		MaxDrawdownPct:  4.2,
		SharpeRatio:     1.4,
		ProfitFactor:    2.1,
	})
	assert.Contains(t, msg, "backtest momentum (2024-01-02..2024-06-28)")
	assert.Contains(t, msg, "trades: 12  win rate: 58.3%")
	assert.Contains(t, msg, "sharpe: 1.40")
}

func TestNopNotifier(t *testing.T) {
	assert.NoError(t, NopNotifier{}.SendText("anything"))
}
