package store

import (
	"gorm.io/datatypes"
)

// SignalModel persists one emitted scan signal. Aux indicator readings are
// kept as JSON so the schema survives strategy changes.
type SignalModel struct {
	ID          int64          `gorm:"column:id;primaryKey"`
	Symbol      string         `gorm:"column:symbol;index:idx_signal_symbol_ts,priority:1"`
	Timestamp   int64          `gorm:"column:timestamp;index:idx_signal_symbol_ts,priority:2"`
	Strategy    string         `gorm:"column:strategy"`
	Strength    float64        `gorm:"column:signal_strength"`
	EntryPrice  float64        `gorm:"column:entry_price"`
	StopLoss    float64        `gorm:"column:stop_loss"`
	TargetPrice float64        `gorm:"column:target_price"`
	RiskReward  float64        `gorm:"column:risk_reward_ratio"`
	Confidence  float64        `gorm:"column:confidence_score"`
	HoldingDays int            `gorm:"column:holding_period_days"`
	Conditions  string         `gorm:"column:market_conditions"`
	Notes       string         `gorm:"column:notes"`
	AuxJSON     datatypes.JSON `gorm:"column:aux_json;type:TEXT"`
	CreatedAt   int64          `gorm:"column:created_at"`
}

func (SignalModel) TableName() string { return "signals" }

// TradeModel persists one closed round trip, tied to a backtest run when it
// came from the engine (empty RunID for live closes).
type TradeModel struct {
	ID           int64   `gorm:"column:id;primaryKey"`
	TradeID      string  `gorm:"column:trade_id;uniqueIndex"`
	RunID        string  `gorm:"column:run_id;index"`
	Symbol       string  `gorm:"column:symbol;index:idx_trade_symbol_ts,priority:1"`
	Timestamp    int64   `gorm:"column:timestamp;index:idx_trade_symbol_ts,priority:2"`
	Strategy     string  `gorm:"column:strategy"`
	EntryDate    int64   `gorm:"column:entry_date"`
	ExitDate     int64   `gorm:"column:exit_date"`
	EntryPrice   float64 `gorm:"column:entry_price"`
	ExitPrice    float64 `gorm:"column:exit_price"`
	Quantity     int     `gorm:"column:quantity"`
	PnL          float64 `gorm:"column:pnl"`
	PnLPct       float64 `gorm:"column:pnl_pct"`
	Commission   float64 `gorm:"column:commission"`
	ExitReason   string  `gorm:"column:exit_reason"`
	HoldingDays  int     `gorm:"column:holding_days"`
	DayTrade     bool    `gorm:"column:day_trade"`
	MaxFavorable float64 `gorm:"column:max_favorable_excursion"`
	MaxAdverse   float64 `gorm:"column:max_adverse_excursion"`
	CreatedAt    int64   `gorm:"column:created_at"`
}

func (TradeModel) TableName() string { return "trades" }

// RiskSnapshotModel persists one daily equity snapshot.
type RiskSnapshotModel struct {
	ID             int64   `gorm:"column:id;primaryKey"`
	RunID          string  `gorm:"column:run_id;index:idx_snapshot_run_date,priority:1"`
	Date           int64   `gorm:"column:date;index:idx_snapshot_run_date,priority:2"`
	Equity         float64 `gorm:"column:equity"`
	Cash           float64 `gorm:"column:cash"`
	PositionsValue float64 `gorm:"column:positions_value"`
	UnrealizedPnL  float64 `gorm:"column:unrealized_pnl"`
	RealizedPnL    float64 `gorm:"column:realized_pnl"`
	CreatedAt      int64   `gorm:"column:created_at"`
}

func (RiskSnapshotModel) TableName() string { return "risk_snapshots" }

// BacktestRunModel persists one completed run with its full result as JSON.
type BacktestRunModel struct {
	ID             int64          `gorm:"column:id;primaryKey"`
	RunID          string         `gorm:"column:run_id;uniqueIndex"`
	Strategy       string         `gorm:"column:strategy;index"`
	StartDate      int64          `gorm:"column:start_date"`
	EndDate        int64          `gorm:"column:end_date"`
	TotalTrades    int            `gorm:"column:total_trades"`
	WinRate        float64        `gorm:"column:win_rate"`
	TotalReturnPct float64        `gorm:"column:total_return_pct"`
	MaxDrawdownPct float64        `gorm:"column:max_drawdown_pct"`
	SharpeRatio    float64        `gorm:"column:sharpe_ratio"`
	ResultJSON     datatypes.JSON `gorm:"column:result_json;type:TEXT"`
	CreatedAt      int64          `gorm:"column:created_at"`
}

func (BacktestRunModel) TableName() string { return "backtest_runs" }
