package scanner

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"papertrader/internal/indicator"
	"papertrader/internal/logger"
	"papertrader/internal/market"
)

// MomentumConfig holds the tunable thresholds for the momentum scanner.
// Zero values are filled with defaults by NewMomentum.
type MomentumConfig struct {
	MinStrength      float64 `mapstructure:"min_signal_strength"`
	RSILow           float64 `mapstructure:"rsi_low"`
	RSIHigh          float64 `mapstructure:"rsi_high"`
	VolumeMultiplier float64 `mapstructure:"volume_multiplier"`
	PriceChangeMin   float64 `mapstructure:"price_change_min"` // percent
	Lookback         int     `mapstructure:"lookback_days"`
	VolumeLookback   int     `mapstructure:"volume_lookback"`
	MinHistory       int     `mapstructure:"min_history"`
	Benchmark        string  `mapstructure:"benchmark"`
}

func (c *MomentumConfig) applyDefaults() {
	if c.MinStrength <= 0 {
		c.MinStrength = 60
	}
	if c.RSILow <= 0 {
		c.RSILow = 50
	}
	if c.RSIHigh <= 0 {
		c.RSIHigh = 80
	}
	if c.VolumeMultiplier <= 0 {
		c.VolumeMultiplier = 1.5
	}
	if c.PriceChangeMin <= 0 {
		c.PriceChangeMin = 2.0
	}
	if c.Lookback <= 0 {
		c.Lookback = 20
	}
	if c.VolumeLookback <= 0 {
		c.VolumeLookback = 10
	}
	if c.MinHistory <= 0 {
		c.MinHistory = 50
	}
	if c.Benchmark == "" {
		c.Benchmark = "SPY"
	}
}

// Momentum scans for volume-confirmed breakouts: price pushing its recent
// high with a volume surge and the trend indicators stacked bullishly.
type Momentum struct {
	provider market.Provider
	cfg      MomentumConfig

	mu              sync.Mutex
	benchmarkReturn float64 // trailing lookback-day return of the benchmark
}

func NewMomentum(provider market.Provider, cfg MomentumConfig) *Momentum {
	cfg.applyDefaults()
	return &Momentum{provider: provider, cfg: cfg}
}

func (m *Momentum) Name() string { return StrategyMomentum }

// Prepare fetches the benchmark's trailing return once per batch so every
// symbol's relative strength is measured against the same baseline. A failed
// fetch degrades to zero rather than blocking the scan.
func (m *Momentum) Prepare(ctx context.Context) {
	ret := 0.0
	series, err := m.provider.GetPriceSeries(ctx, m.cfg.Benchmark, 3*m.cfg.MinHistory)
	if err != nil {
		logger.Warnf("[momentum] benchmark %s unavailable, relative strength disabled: %v", m.cfg.Benchmark, err)
	} else if r, ok := trailingReturn(series.Closes(), m.cfg.Lookback); ok {
		ret = r
	}
	m.mu.Lock()
	m.benchmarkReturn = ret
	m.mu.Unlock()
}

func (m *Momentum) Analyze(ctx context.Context, symbol string) (*Signal, error) {
	series, err := m.provider.GetPriceSeries(ctx, symbol, 3*m.cfg.MinHistory)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", symbol, err)
	}
	if series.Len() < m.cfg.MinHistory {
		return nil, fmt.Errorf("%s: %d bars, need %d: %w", symbol, series.Len(), m.cfg.MinHistory, indicator.ErrInsufficientData)
	}

	bundle, err := m.computeBundle(series)
	if err != nil {
		return nil, fmt.Errorf("indicators %s: %w", symbol, err)
	}
	if !m.meetsCriteria(bundle) {
		return nil, nil
	}

	strength := m.score(bundle)
	if strength < m.cfg.MinStrength {
		return nil, nil
	}

	stop, target := m.levels(series, bundle)

	m.mu.Lock()
	benchReturn := m.benchmarkReturn
	m.mu.Unlock()
	relStrength := 0.0
	if r, ok := trailingReturn(series.Closes(), m.cfg.Lookback); ok {
		relStrength = (r - benchReturn) * 100
	}

	sig := &Signal{
		Symbol:      symbol,
		Strategy:    StrategyMomentum,
		Strength:    strength,
		EntryPrice:  bundle.price,
		StopLoss:    stop,
		TargetPrice: target,
		RiskReward:  RiskReward(bundle.price, stop, target),
		Confidence:  m.confidence(bundle),
		HoldingDays: m.holdingPeriod(bundle),
		Conditions:  m.assessConditions(bundle),
		Notes:       m.notes(bundle),
		GeneratedAt: time.Now(),
		Aux: map[string]float64{
			"rsi":               bundle.rsi,
			"macd":              bundle.macd,
			"macd_hist":         bundle.macdHist,
			"volume_ratio":      bundle.volumeRatio,
			"price_change_pct":  bundle.priceChangePct,
			"breakout_level":    bundle.breakoutLevel,
			"atr":               bundle.atr,
			"relative_strength": relStrength,
		},
	}
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	return sig, nil
}

// momentumBundle carries the indicator snapshot for one symbol.
type momentumBundle struct {
	price          float64
	rsi            float64
	macd           float64
	macdSignal     float64
	macdHist       float64
	sma20          float64
	sma50          float64
	ema12          float64
	volumeRatio    float64
	priceChangePct float64
	breakoutLevel  float64
	momentum       float64
	atr            float64
}

func (m *Momentum) computeBundle(series market.Series) (momentumBundle, error) {
	closes := series.Closes()
	highs := series.Highs()
	lows := series.Lows()
	volumes := series.Volumes()

	var b momentumBundle
	var err error

	b.price = closes[len(closes)-1]
	b.priceChangePct = (b.price - closes[len(closes)-2]) / closes[len(closes)-2] * 100

	if b.rsi, err = indicator.RSI(closes, 14); err != nil {
		return b, err
	}
	if b.macd, b.macdSignal, b.macdHist, err = indicator.MACD(closes); err != nil {
		return b, err
	}
	if b.sma20, err = indicator.SMA(closes, 20); err != nil {
		return b, err
	}
	if b.sma50, err = indicator.SMA(closes, 50); err != nil {
		return b, err
	}
	if b.ema12, err = indicator.EMA(closes, 12); err != nil {
		return b, err
	}
	if b.momentum, err = indicator.Momentum(closes, 10); err != nil {
		return b, err
	}
	if b.atr, err = indicator.ATR(highs, lows, closes, 14); err != nil {
		return b, err
	}

	avgVolume, err := indicator.SMA(volumes, m.cfg.VolumeLookback)
	if err != nil {
		return b, err
	}
	b.volumeRatio = 1
	if avgVolume > 0 {
		b.volumeRatio = volumes[len(volumes)-1] / avgVolume
	}

	recentHighs := highs[len(highs)-m.cfg.Lookback:]
	b.breakoutLevel = recentHighs[0]
	for _, h := range recentHighs[1:] {
		if h > b.breakoutLevel {
			b.breakoutLevel = h
		}
	}
	return b, nil
}

// meetsCriteria is the all-or-nothing gate: RSI band, volume surge, minimum
// daily move, close above SMA20, bullish MACD, positive 10-bar momentum.
func (m *Momentum) meetsCriteria(b momentumBundle) bool {
	if b.rsi < m.cfg.RSILow || b.rsi > m.cfg.RSIHigh {
		return false
	}
	if b.volumeRatio < m.cfg.VolumeMultiplier {
		return false
	}
	if math.Abs(b.priceChangePct) < m.cfg.PriceChangeMin {
		return false
	}
	if b.price < b.sma20 {
		return false
	}
	if b.macd < b.macdSignal {
		return false
	}
	if b.momentum <= 0 {
		return false
	}
	return true
}

// score sums the weighted sub-scores, capped at 100:
// RSI 20, volume 25, price move 20, MACD histogram 15, breakout proximity 10,
// moving-average stacking 10.
func (m *Momentum) score(b momentumBundle) float64 {
	strength := clamp(20*(b.rsi-50)/30, 0, 20)
	strength += math.Min(25, (b.volumeRatio-1)*25)
	strength += math.Min(20, math.Abs(b.priceChangePct)*4)
	strength += clamp(b.macdHist*1000, 0, 15)

	breakoutDistance := (b.breakoutLevel - b.price) / b.price
	strength += math.Max(0, 10*(1-breakoutDistance*100))

	if b.price > b.ema12 {
		strength += 3
	}
	if b.ema12 > b.sma20 {
		strength += 3
	}
	if b.sma20 > b.sma50 {
		strength += 4
	}
	return clamp(strength, 0, 100)
}

// levels picks the tighter of the ATR stop and the swing-low stop, then the
// wider of the 2R target and 5% above the breakout level, so reward:risk is
// at least 2:1 by construction.
func (m *Momentum) levels(series market.Series, b momentumBundle) (stop, target float64) {
	lows := series.Lows()
	recentLows := lows[len(lows)-m.cfg.Lookback:]
	swingLow := recentLows[0]
	for _, l := range recentLows[1:] {
		if l < swingLow {
			swingLow = l
		}
	}

	atrStop := b.price - 2*b.atr
	swingStop := swingLow * 0.98
	stop = math.Max(atrStop, swingStop)

	risk := b.price - stop
	minTarget := b.price + 2*risk
	resistanceTarget := b.breakoutLevel * 1.05
	target = math.Max(minTarget, resistanceTarget)
	return stop, target
}

func (m *Momentum) assessConditions(b momentumBundle) string {
	switch {
	case b.rsi > 70 && b.volumeRatio > 2:
		return "Strong Bullish"
	case b.rsi > 60 && b.macdHist > 0:
		return "Bullish"
	case b.rsi > 50:
		return "Neutral Bullish"
	default:
		return "Neutral"
	}
}

func (m *Momentum) confidence(b momentumBundle) float64 {
	confidence := 50.0
	switch {
	case b.volumeRatio > 2:
		confidence += 20
	case b.volumeRatio > 1.5:
		confidence += 10
	}
	switch {
	case b.priceChangePct > 5:
		confidence += 15
	case b.priceChangePct > 3:
		confidence += 10
	}
	if b.macdHist > 0 {
		confidence += 10
	}
	if b.rsi >= 55 && b.rsi <= 75 {
		confidence += 10
	}
	return math.Min(100, confidence)
}

func (m *Momentum) holdingPeriod(b momentumBundle) int {
	const base = 15
	if b.rsi > 70 {
		return base - 5
	}
	if b.volumeRatio > 2 {
		return base + 10
	}
	return base
}

func (m *Momentum) notes(b momentumBundle) string {
	var notes []string
	if b.volumeRatio > 2 {
		notes = append(notes, fmt.Sprintf("High volume surge (%.1fx)", b.volumeRatio))
	}
	if b.priceChangePct > 5 {
		notes = append(notes, fmt.Sprintf("Strong price move (+%.1f%%)", b.priceChangePct))
	}
	if b.price > b.breakoutLevel {
		notes = append(notes, "Breaking above resistance")
	}
	if b.macdHist > 0 {
		notes = append(notes, "MACD bullish crossover")
	}
	if b.rsi >= 60 && b.rsi <= 75 {
		notes = append(notes, "RSI in momentum zone")
	}
	if len(notes) == 0 {
		return "Standard momentum setup"
	}
	return strings.Join(notes, "; ")
}

// trailingReturn is the fractional n-bar close-over-close return.
func trailingReturn(closes []float64, n int) (float64, bool) {
	if len(closes) < n+1 {
		return 0, false
	}
	base := closes[len(closes)-1-n]
	if base == 0 {
		return 0, false
	}
	return closes[len(closes)-1]/base - 1, true
}
