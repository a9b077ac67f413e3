package config

import (
	"papertrader/internal/risk"
	"papertrader/internal/scanner"
)

// Config is the full application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Risk       risk.Config      `mapstructure:"risk"`
	Strategies StrategiesConfig `mapstructure:"strategies"`
	Backtest   BacktestConfig   `mapstructure:"backtest"`
	Optimizer  OptimizerConfig  `mapstructure:"optimizer"`
	Universe   UniverseConfig   `mapstructure:"universe"`
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
	HTTPAddr string `mapstructure:"http_addr"`
	DataDir  string `mapstructure:"data_dir"`
	StoreDB  string `mapstructure:"store_db"`
}

type StrategiesConfig struct {
	Momentum      scanner.MomentumConfig      `mapstructure:"momentum"`
	MeanReversion scanner.MeanReversionConfig `mapstructure:"mean_reversion"`
}

type BacktestConfig struct {
	Start       string `mapstructure:"start"` // YYYY-MM-DD
	End         string `mapstructure:"end"`
	ReportPath  string `mapstructure:"report_path"`
	Parallelism int    `mapstructure:"parallelism"` // concurrent runs via the API
}

type OptimizerConfig struct {
	GridPath string `mapstructure:"grid_path"`
}

type UniverseConfig struct {
	Symbols    []string `mapstructure:"symbols"`
	SectorFile string   `mapstructure:"sector_file"`
	// ProviderRPS throttles live price fetches; 0 disables throttling.
	ProviderRPS float64 `mapstructure:"provider_rps"`
}
