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

// MeanReversionConfig holds the tunable thresholds for the mean-reversion
// scanner. Zero values are filled with defaults by NewMeanReversion.
type MeanReversionConfig struct {
	MinStrength       float64 `mapstructure:"min_signal_strength"`
	RSIOversold       float64 `mapstructure:"rsi_oversold"`
	ZScoreThreshold   float64 `mapstructure:"zscore_threshold"`
	BollingerPosition float64 `mapstructure:"bollinger_position"`
	Lookback          int     `mapstructure:"lookback_days"`
	VolumeLookback    int     `mapstructure:"volume_lookback"`
	MinHistory        int     `mapstructure:"min_history"`
	Benchmark         string  `mapstructure:"benchmark"`
}

func (c *MeanReversionConfig) applyDefaults() {
	if c.MinStrength <= 0 {
		c.MinStrength = 60
	}
	if c.RSIOversold <= 0 {
		c.RSIOversold = 30
	}
	if c.ZScoreThreshold >= 0 {
		c.ZScoreThreshold = -2.0
	}
	if c.BollingerPosition <= 0 {
		c.BollingerPosition = 0.1
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

// MeanReversion scans for oversold bounce setups: deeply oversold oscillators
// with price pinned to the lower Bollinger Band near detected support.
type MeanReversion struct {
	provider market.Provider
	cfg      MeanReversionConfig

	mu             sync.Mutex
	marketOversold bool
}

func NewMeanReversion(provider market.Provider, cfg MeanReversionConfig) *MeanReversion {
	cfg.applyDefaults()
	return &MeanReversion{provider: provider, cfg: cfg}
}

func (m *MeanReversion) Name() string { return StrategyMeanReversion }

// Prepare samples the benchmark's 20-bar z-score once per batch; a reading
// below -1.5 marks the whole market oversold, which feeds the score bonus.
func (m *MeanReversion) Prepare(ctx context.Context) {
	oversold := false
	series, err := m.provider.GetPriceSeries(ctx, m.cfg.Benchmark, 3*m.cfg.MinHistory)
	if err != nil {
		logger.Warnf("[meanrev] benchmark %s unavailable, market-oversold bonus disabled: %v", m.cfg.Benchmark, err)
	} else {
		oversold = indicator.ZScore(series.Closes(), m.cfg.Lookback) < -1.5
	}
	m.mu.Lock()
	m.marketOversold = oversold
	m.mu.Unlock()
}

func (m *MeanReversion) Analyze(ctx context.Context, symbol string) (*Signal, error) {
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

	m.mu.Lock()
	marketOversold := m.marketOversold
	m.mu.Unlock()

	strength := m.score(bundle, marketOversold)
	if strength < m.cfg.MinStrength {
		return nil, nil
	}

	stop, target, err := m.levels(series, bundle)
	if err != nil {
		return nil, err
	}

	oversoldDays := oversoldDuration(series.Closes(), m.cfg.RSIOversold)

	sig := &Signal{
		Symbol:      symbol,
		Strategy:    StrategyMeanReversion,
		Strength:    strength,
		EntryPrice:  bundle.price,
		StopLoss:    stop,
		TargetPrice: target,
		RiskReward:  RiskReward(bundle.price, stop, target),
		Confidence:  m.confidence(bundle),
		HoldingDays: m.holdingPeriod(bundle),
		Conditions:  m.assessSentiment(bundle, marketOversold),
		Notes:       m.notes(bundle),
		GeneratedAt: time.Now(),
		Aux: map[string]float64{
			"rsi":                bundle.rsi,
			"zscore":             bundle.zscore,
			"bollinger_position": bundle.bbPosition,
			"support_level":      bundle.support,
			"resistance_level":   bundle.resistance,
			"distance_from_mean": bundle.distanceFromMean,
			"oversold_duration":  float64(oversoldDays),
			"bounce_probability": m.bounceProbability(bundle),
			"volume_ratio":       bundle.volumeRatio,
		},
	}
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	return sig, nil
}

type meanReversionBundle struct {
	price            float64
	rsi              float64
	zscore           float64
	sma20            float64
	bbPosition       float64
	support          float64
	resistance       float64
	volumeRatio      float64
	distanceFromMean float64 // percent
	slowK            float64
	volumeConfirm    bool
}

func (m *MeanReversion) computeBundle(series market.Series) (meanReversionBundle, error) {
	closes := series.Closes()
	highs := series.Highs()
	lows := series.Lows()
	volumes := series.Volumes()

	var b meanReversionBundle
	var err error

	b.price = closes[len(closes)-1]
	if b.rsi, err = indicator.RSI(closes, 14); err != nil {
		return b, err
	}
	b.zscore = indicator.ZScore(closes, m.cfg.Lookback)
	if b.sma20, err = indicator.SMA(closes, 20); err != nil {
		return b, err
	}
	upper, _, lower, err := indicator.BBands(closes, 20)
	if err != nil {
		return b, err
	}
	b.bbPosition = indicator.BollingerPosition(b.price, upper, lower)

	levels := indicator.SupportResistance(highs, lows, m.cfg.Lookback)
	b.support = levels.Support
	b.resistance = levels.Resistance

	avgVolume, err := indicator.SMA(volumes, m.cfg.VolumeLookback)
	if err != nil {
		return b, err
	}
	b.volumeRatio = 1
	if avgVolume > 0 {
		b.volumeRatio = volumes[len(volumes)-1] / avgVolume
	}

	b.distanceFromMean = (b.price - b.sma20) / b.sma20 * 100
	if b.slowK, _, err = indicator.Stoch(highs, lows, closes); err != nil {
		return b, err
	}
	b.volumeConfirm = b.volumeRatio > 1.2 && b.price < b.sma20
	return b, nil
}

// meetsCriteria is the all-or-nothing gate: RSI oversold, extreme negative
// z-score, pinned to the lower Bollinger Band, close below SMA20, slow %K
// oversold.
func (m *MeanReversion) meetsCriteria(b meanReversionBundle) bool {
	if b.rsi > m.cfg.RSIOversold {
		return false
	}
	if b.zscore > m.cfg.ZScoreThreshold {
		return false
	}
	if b.bbPosition > m.cfg.BollingerPosition {
		return false
	}
	if b.price >= b.sma20 {
		return false
	}
	if b.slowK > 20 {
		return false
	}
	return true
}

// score sums the weighted sub-scores, capped at 100: RSI depth 25, z-score 20,
// Bollinger position 15, distance from mean 15, support proximity 10,
// stochastic depth 10, +5 volume confirmation, +5 market oversold.
func (m *MeanReversion) score(b meanReversionBundle, marketOversold bool) float64 {
	strength := math.Max(0, (30-b.rsi)/30*25)
	strength += clamp(math.Abs(b.zscore)*5, 0, 20)
	strength += math.Max(0, (0.2-b.bbPosition)/0.2*15)
	strength += clamp(math.Abs(b.distanceFromMean)*0.5, 0, 15)

	priceToSupport := (b.price - b.support) / b.price
	strength += math.Max(0, 10*(1-priceToSupport*20))

	strength += math.Max(0, (20-b.slowK)/20*10)

	if b.volumeConfirm {
		strength += 5
	}
	if marketOversold {
		strength += 5
	}
	return clamp(strength, 0, 100)
}

// levels stops below the tighter of the 10-bar low and 2% under support, and
// targets the nearer of SMA20 and 2% under resistance, floored at 1.5R. A
// deeply depressed SMA can invert the geometry; such setups are rejected
// rather than fixed up.
func (m *MeanReversion) levels(series market.Series, b meanReversionBundle) (stop, target float64, err error) {
	lows := series.Lows()
	tail := lows[len(lows)-10:]
	recentLow := tail[0]
	for _, l := range tail[1:] {
		if l < recentLow {
			recentLow = l
		}
	}

	stop = math.Min(recentLow, b.support*0.98)
	target = math.Min(b.sma20, b.resistance*0.98)

	risk := b.price - stop
	if minTarget := b.price + 1.5*risk; target < minTarget {
		target = minTarget
	}
	if !(stop < b.price && b.price < target) {
		return 0, 0, fmt.Errorf("%s: degenerate levels stop=%.4f entry=%.4f target=%.4f", series.Symbol, stop, b.price, target)
	}
	return stop, target, nil
}

func (m *MeanReversion) bounceProbability(b meanReversionBundle) float64 {
	probability := 50.0
	switch {
	case b.rsi < 20:
		probability += 20
	case b.rsi < 25:
		probability += 15
	}
	if math.Abs(b.price-b.support)/b.price < 0.02 {
		probability += 15
	}
	if b.bbPosition < 0.05 {
		probability += 10
	}
	if b.volumeConfirm {
		probability += 10
	}
	if b.slowK < 10 {
		probability += 5
	}
	return math.Min(100, probability)
}

// oversoldDuration counts consecutive trailing days with RSI below the
// threshold. The first period slots of the RSI series are warm-up zeros, not
// readings, so the walk stops before them.
func oversoldDuration(closes []float64, threshold float64) int {
	const period = 14
	rsi := indicator.RSISeries(closes, period)
	duration := 0
	for i := len(rsi) - 1; i >= period; i-- {
		if math.IsNaN(rsi[i]) || rsi[i] >= threshold {
			break
		}
		duration++
	}
	return duration
}

func (m *MeanReversion) assessSentiment(b meanReversionBundle, marketOversold bool) string {
	switch {
	case marketOversold && b.rsi < 25:
		return "Extreme Oversold"
	case b.rsi < 20:
		return "Severely Oversold"
	case b.rsi < 25:
		return "Oversold"
	case b.bbPosition < 0.1:
		return "Near Support"
	default:
		return "Mean Reversion Setup"
	}
}

func (m *MeanReversion) confidence(b meanReversionBundle) float64 {
	confidence := 50.0
	oversoldCount := 0
	if b.rsi < 30 {
		oversoldCount++
	}
	if b.zscore < -1.5 {
		oversoldCount++
	}
	if b.bbPosition < 0.2 {
		oversoldCount++
	}
	if b.slowK < 20 {
		oversoldCount++
	}
	confidence += float64(oversoldCount) * 8

	if math.Abs(b.price-b.support)/b.price < 0.03 {
		confidence += 15
	}
	if b.volumeConfirm {
		confidence += 10
	}
	return math.Min(100, confidence)
}

func (m *MeanReversion) holdingPeriod(b meanReversionBundle) int {
	const base = 10
	if b.rsi < 20 {
		return base + 5
	}
	if b.zscore < -2.5 {
		return base + 3
	}
	return base
}

func (m *MeanReversion) notes(b meanReversionBundle) string {
	var notes []string
	switch {
	case b.rsi < 20:
		notes = append(notes, fmt.Sprintf("Extremely oversold (RSI: %.1f)", b.rsi))
	case b.rsi < 25:
		notes = append(notes, fmt.Sprintf("Severely oversold (RSI: %.1f)", b.rsi))
	}
	if b.zscore < -2 {
		notes = append(notes, fmt.Sprintf("Z-score: %.1f (extreme)", b.zscore))
	}
	if b.bbPosition < 0.1 {
		notes = append(notes, "Near lower Bollinger Band")
	}
	if math.Abs(b.price-b.support)/b.price < 0.02 {
		notes = append(notes, "At key support level")
	}
	if b.volumeConfirm {
		notes = append(notes, "Volume confirmation")
	}
	if len(notes) == 0 {
		return "Standard mean reversion setup"
	}
	return strings.Join(notes, "; ")
}
