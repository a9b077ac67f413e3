package config

import "strings"

// applyDefaults fills operational defaults. Strategy and risk sections carry
// their own defaulting in their constructors; only app-level plumbing is
// defaulted here.
func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.App.LogLevel) == "" {
		c.App.LogLevel = "info"
	}
	if strings.TrimSpace(c.App.HTTPAddr) == "" {
		c.App.HTTPAddr = ":8087"
	}
	if strings.TrimSpace(c.App.DataDir) == "" {
		c.App.DataDir = "data/bars"
	}
	if strings.TrimSpace(c.App.StoreDB) == "" {
		c.App.StoreDB = "data/papertrader.db"
	}
	if c.Backtest.Parallelism <= 0 {
		c.Backtest.Parallelism = 2
	}
	if strings.TrimSpace(c.Optimizer.GridPath) == "" {
		c.Optimizer.GridPath = "configs/optimizer_grid.json"
	}
	for i, s := range c.Universe.Symbols {
		c.Universe.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
}
