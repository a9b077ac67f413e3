package config

import (
	"fmt"
	"time"
)

// validate performs basic sanity checks; anything wrong here should stop the
// process at startup rather than surface mid-run.
func validate(c *Config) error {
	switch c.App.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app.log_level %q must be one of debug, info, warn, error", c.App.LogLevel)
	}
	if c.Strategies.Momentum.RSILow > 0 && c.Strategies.Momentum.RSIHigh > 0 &&
		c.Strategies.Momentum.RSILow >= c.Strategies.Momentum.RSIHigh {
		return fmt.Errorf("strategies.momentum: rsi_low %.1f must be below rsi_high %.1f",
			c.Strategies.Momentum.RSILow, c.Strategies.Momentum.RSIHigh)
	}
	if c.Strategies.MeanReversion.ZScoreThreshold > 0 {
		return fmt.Errorf("strategies.mean_reversion.zscore_threshold %.2f must be negative",
			c.Strategies.MeanReversion.ZScoreThreshold)
	}
	if c.Risk.MaxPositionPct < 0 || c.Risk.MaxPositionPct > 100 {
		return fmt.Errorf("risk.max_position_size_pct %.1f out of range", c.Risk.MaxPositionPct)
	}
	if c.Risk.ReserveCashPct < 0 || c.Risk.ReserveCashPct >= 100 {
		return fmt.Errorf("risk.reserve_cash_pct %.1f out of range", c.Risk.ReserveCashPct)
	}
	start, end, err := c.BacktestWindow()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return fmt.Errorf("backtest.start %s must be before backtest.end %s",
			c.Backtest.Start, c.Backtest.End)
	}
	return nil
}

// BacktestWindow parses the configured backtest dates. Empty strings give
// zero times, which callers treat as "not configured".
func (c *Config) BacktestWindow() (start, end time.Time, err error) {
	if c.Backtest.Start != "" {
		start, err = time.Parse("2006-01-02", c.Backtest.Start)
		if err != nil {
			return start, end, fmt.Errorf("backtest.start: %w", err)
		}
	}
	if c.Backtest.End != "" {
		end, err = time.Parse("2006-01-02", c.Backtest.End)
		if err != nil {
			return start, end, fmt.Errorf("backtest.end: %w", err)
		}
	}
	return start, end, nil
}
