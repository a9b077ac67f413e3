// Package notify defines the outbound alert surface. The core builds plain
// text messages; dispatchers own formatting beyond that, delivery, and
// retries.
package notify

import (
	"fmt"
	"strings"

	"papertrader/internal/backtest"
	"papertrader/internal/scanner"
)

// TextNotifier defines a minimal text notification interface.
// It is intentionally small so different components can depend on it without
// importing concrete implementations.
type TextNotifier interface {
	SendText(text string) error
}

// NopNotifier discards all messages.
type NopNotifier struct{}

func (NopNotifier) SendText(string) error { return nil }

// BuildSignalMessage renders one scan signal as an alert block.
func BuildSignalMessage(sig scanner.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s signal\n", sig.Symbol, sig.Strategy)
	fmt.Fprintf(&b, "strength: %.1f  confidence: %.1f\n", sig.Strength, sig.Confidence)
	fmt.Fprintf(&b, "entry: %.2f  stop: %.2f  target: %.2f (%.1f:1)\n",
		sig.EntryPrice, sig.StopLoss, sig.TargetPrice, sig.RiskReward)
	if sig.Conditions != "" {
		fmt.Fprintf(&b, "conditions: %s\n", sig.Conditions)
	}
	if sig.Notes != "" {
		fmt.Fprintf(&b, "notes: %s\n", sig.Notes)
	}
	return strings.TrimRight(b.String(), "\n")
}

// BuildScanMessage summarizes a batch scan.
func BuildScanMessage(strategy string, signals []scanner.Signal, skipped int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s scan: %d signals, %d skipped\n", strategy, len(signals), skipped)
	for i, sig := range signals {
		if i >= 10 {
			fmt.Fprintf(&b, "... and %d more\n", len(signals)-i)
			break
		}
		fmt.Fprintf(&b, "  %-6s %.1f  entry %.2f\n", sig.Symbol, sig.Strength, sig.EntryPrice)
	}
	return strings.TrimRight(b.String(), "\n")
}

// BuildBacktestMessage renders the headline numbers of a finished run.
func BuildBacktestMessage(res backtest.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "backtest %s (%s..%s)\n", res.Strategy,
		res.StartDate.Format("2006-01-02"), res.EndDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "trades: %d  win rate: %.1f%%\n", res.TotalTrades, res.WinRate)
	fmt.Fprintf(&b, "return: %.2f%% (%.2f%% annualized)\n", res.TotalReturnPct, res.AnnualReturnPct)
	fmt.Fprintf(&b, "max drawdown: %.2f%%  sharpe: %.2f  profit factor: %.2f",
		res.MaxDrawdownPct, res.SharpeRatio, res.ProfitFactor)
	return b.String()
}
