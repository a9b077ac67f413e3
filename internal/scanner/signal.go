package scanner

import (
	"fmt"
	"math"
	"time"
)

const (
	StrategyMomentum      = "momentum"
	StrategyMeanReversion = "mean_reversion"
)

// Signal is a scored, priced trading opportunity emitted by a scanner.
// Strategy-specific indicator readings ride along in Aux so the sizing and
// backtest paths stay strategy-agnostic.
type Signal struct {
	Symbol      string    `json:"symbol"`
	Strategy    string    `json:"strategy"`
	Strength    float64   `json:"signal_strength"`
	EntryPrice  float64   `json:"entry_price"`
	StopLoss    float64   `json:"stop_loss"`
	TargetPrice float64   `json:"target_price"`
	RiskReward  float64   `json:"risk_reward_ratio"`
	Confidence  float64   `json:"confidence_score"`
	HoldingDays int       `json:"holding_period_days"`
	Conditions  string    `json:"market_conditions,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`

	Aux map[string]float64 `json:"aux,omitempty"`
}

// Validate enforces the long-signal price invariant: stop < entry < target
// with a finite positive reward:risk. Invalid signals never reach sizing.
func (s Signal) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("signal missing symbol")
	}
	if s.EntryPrice <= 0 {
		return fmt.Errorf("signal %s: entry price %.4f not positive", s.Symbol, s.EntryPrice)
	}
	if !(s.StopLoss < s.EntryPrice) {
		return fmt.Errorf("signal %s: stop %.4f not below entry %.4f", s.Symbol, s.StopLoss, s.EntryPrice)
	}
	if !(s.EntryPrice < s.TargetPrice) {
		return fmt.Errorf("signal %s: target %.4f not above entry %.4f", s.Symbol, s.TargetPrice, s.EntryPrice)
	}
	rr := RiskReward(s.EntryPrice, s.StopLoss, s.TargetPrice)
	if math.IsNaN(rr) || math.IsInf(rr, 0) || rr <= 0 {
		return fmt.Errorf("signal %s: reward:risk %.4f not finite positive", s.Symbol, rr)
	}
	return nil
}

// RiskReward is (target-entry)/(entry-stop) for a long setup.
func RiskReward(entry, stop, target float64) float64 {
	risk := entry - stop
	if risk <= 0 {
		return 0
	}
	return (target - entry) / risk
}
