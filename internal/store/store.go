// Package store persists signals, trades, risk snapshots, and backtest runs
// to a single SQLite file via GORM. The core packages never import it; they
// hand records to the backtest.Recorder interface this package satisfies.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"papertrader/internal/backtest"
	"papertrader/internal/risk"
	"papertrader/internal/scanner"
)

type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir %s: %w", dir, err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(
		&SignalModel{},
		&TradeModel{},
		&RiskSnapshotModel{},
		&BacktestRunModel{},
	); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a little read parallelism for the HTTP handlers
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) SaveSignal(sig scanner.Signal) error {
	aux, err := json.Marshal(sig.Aux)
	if err != nil {
		return fmt.Errorf("store: marshal aux for %s: %w", sig.Symbol, err)
	}
	rec := SignalModel{
		Symbol:      sig.Symbol,
		Timestamp:   sig.GeneratedAt.Unix(),
		Strategy:    sig.Strategy,
		Strength:    sig.Strength,
		EntryPrice:  sig.EntryPrice,
		StopLoss:    sig.StopLoss,
		TargetPrice: sig.TargetPrice,
		RiskReward:  sig.RiskReward,
		Confidence:  sig.Confidence,
		HoldingDays: sig.HoldingDays,
		Conditions:  sig.Conditions,
		Notes:       sig.Notes,
		AuxJSON:     datatypes.JSON(aux),
		CreatedAt:   time.Now().Unix(),
	}
	return s.db.Create(&rec).Error
}

func (s *Store) SaveTrade(runID string, trade risk.Trade) error {
	rec := TradeModel{
		TradeID:      trade.ID,
		RunID:        runID,
		Symbol:       trade.Symbol,
		Timestamp:    trade.ExitDate.Unix(),
		Strategy:     trade.Strategy,
		EntryDate:    trade.EntryDate.Unix(),
		ExitDate:     trade.ExitDate.Unix(),
		EntryPrice:   trade.EntryPrice,
		ExitPrice:    trade.ExitPrice,
		Quantity:     trade.Quantity,
		PnL:          trade.PnL,
		PnLPct:       trade.PnLPct,
		Commission:   trade.Commission,
		ExitReason:   trade.ExitReason,
		HoldingDays:  trade.HoldingDays,
		DayTrade:     trade.DayTrade,
		MaxFavorable: trade.MaxFavorable,
		MaxAdverse:   trade.MaxAdverse,
		CreatedAt:    time.Now().Unix(),
	}
	return s.db.Create(&rec).Error
}

func (s *Store) SaveSnapshot(runID string, point risk.EquityPoint) error {
	rec := RiskSnapshotModel{
		RunID:          runID,
		Date:           point.Date.Unix(),
		Equity:         point.Equity,
		Cash:           point.Cash,
		PositionsValue: point.PositionsValue,
		UnrealizedPnL:  point.UnrealizedPnL,
		RealizedPnL:    point.RealizedPnL,
		CreatedAt:      time.Now().Unix(),
	}
	return s.db.Create(&rec).Error
}

func (s *Store) SaveRun(result backtest.Result) error {
	full, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("store: marshal run %s: %w", result.RunID, err)
	}
	rec := BacktestRunModel{
		RunID:          result.RunID,
		Strategy:       result.Strategy,
		StartDate:      result.StartDate.Unix(),
		EndDate:        result.EndDate.Unix(),
		TotalTrades:    result.TotalTrades,
		WinRate:        result.WinRate,
		TotalReturnPct: result.TotalReturnPct,
		MaxDrawdownPct: result.MaxDrawdownPct,
		SharpeRatio:    result.SharpeRatio,
		ResultJSON:     datatypes.JSON(full),
		CreatedAt:      time.Now().Unix(),
	}
	return s.db.Create(&rec).Error
}

// ListRuns returns run summaries, newest first.
func (s *Store) ListRuns(limit int) ([]BacktestRunModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []BacktestRunModel
	err := s.db.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// GetRun loads a full run result by its ID.
func (s *Store) GetRun(runID string) (backtest.Result, error) {
	var rec BacktestRunModel
	if err := s.db.Where("run_id = ?", runID).First(&rec).Error; err != nil {
		return backtest.Result{}, fmt.Errorf("store: run %s: %w", runID, err)
	}
	var result backtest.Result
	if err := json.Unmarshal(rec.ResultJSON, &result); err != nil {
		return backtest.Result{}, fmt.Errorf("store: decode run %s: %w", runID, err)
	}
	return result, nil
}

// ListSignals returns recent signals for a symbol, newest first. An empty
// symbol lists across all symbols.
func (s *Store) ListSignals(symbol string, limit int) ([]SignalModel, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.db.Order("timestamp DESC").Limit(limit)
	if symbol != "" {
		q = q.Where("symbol = ?", strings.ToUpper(symbol))
	}
	var out []SignalModel
	err := q.Find(&out).Error
	return out, err
}

var _ backtest.Recorder = (*Store)(nil)
