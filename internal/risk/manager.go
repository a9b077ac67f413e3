package risk

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"papertrader/internal/logger"
	"papertrader/internal/market"
	"papertrader/internal/scanner"
)

const pdtWindow = 7 * 24 * time.Hour // rolling calendar window for day trades

// Config holds the account and risk limits. Zero values are filled with
// defaults by NewManager.
type Config struct {
	InitialBalance       float64 `mapstructure:"initial_balance"`
	MaxPositionPct       float64 `mapstructure:"max_position_size_pct"`
	ReserveCashPct       float64 `mapstructure:"reserve_cash_pct"`
	MaxPositionRiskPct   float64 `mapstructure:"max_position_risk_pct"`
	MaxDailyLoss         float64 `mapstructure:"max_daily_loss"`
	MaxConsecutiveLosses int     `mapstructure:"max_consecutive_losses"`
	MaxDrawdownPct       float64 `mapstructure:"max_drawdown_pct"`
	StrengthFloor        float64 `mapstructure:"signal_strength_floor"`
	MinTradeValue        float64 `mapstructure:"min_trade_value"`
	MaxHoldingDays       int     `mapstructure:"max_holding_days"`
	Commission           float64 `mapstructure:"commission_per_trade"`
	PDTLimit             int     `mapstructure:"pdt_limit"`
	PDTExemptEquity      float64 `mapstructure:"pdt_exempt_equity"`
}

func (c *Config) applyDefaults() {
	if c.InitialBalance <= 0 {
		c.InitialBalance = 10000
	}
	if c.MaxPositionPct <= 0 {
		c.MaxPositionPct = 10
	}
	if c.ReserveCashPct <= 0 {
		c.ReserveCashPct = 20
	}
	if c.MaxPositionRiskPct <= 0 {
		c.MaxPositionRiskPct = 2
	}
	if c.MaxDailyLoss <= 0 {
		c.MaxDailyLoss = 100
	}
	if c.MaxConsecutiveLosses <= 0 {
		c.MaxConsecutiveLosses = 3
	}
	if c.MaxDrawdownPct <= 0 {
		c.MaxDrawdownPct = 20
	}
	if c.StrengthFloor <= 0 {
		c.StrengthFloor = 60
	}
	if c.MinTradeValue <= 0 {
		c.MinTradeValue = 100
	}
	if c.MaxHoldingDays <= 0 {
		c.MaxHoldingDays = 30
	}
	if c.PDTLimit <= 0 {
		c.PDTLimit = 3
	}
	if c.PDTExemptEquity <= 0 {
		c.PDTExemptEquity = 25000
	}
}

// Normalized returns a copy with defaults applied, for callers that read
// limit fields directly instead of going through a Manager.
func (c Config) Normalized() Config {
	c.applyDefaults()
	return c
}

// Sizing is the outcome of a size request. A zero Shares with a non-empty
// Constraints list is a rejection, never an error.
type Sizing struct {
	Shares             int      `json:"shares"`
	Notional           float64  `json:"notional"`
	RiskPerShare       float64  `json:"risk_per_share"`
	SharesByRisk       int      `json:"shares_by_risk"`
	SharesBySize       int      `json:"shares_by_size"`
	SharesByCash       int      `json:"shares_by_cash"`
	StrengthMultiplier float64  `json:"strength_multiplier"`
	Constraints        []string `json:"constraints,omitempty"`
}

func (s Sizing) Approved() bool { return s.Shares > 0 }

// Trade is a closed round trip.
type Trade struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Strategy    string    `json:"strategy"`
	EntryDate   time.Time `json:"entry_date"`
	ExitDate    time.Time `json:"exit_date"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	Quantity    int       `json:"quantity"`
	PnL         float64   `json:"pnl"`
	PnLPct      float64   `json:"pnl_pct"`
	Commission  float64   `json:"commission"`
	ExitReason  string    `json:"exit_reason"`
	HoldingDays int       `json:"holding_days"`
	DayTrade    bool      `json:"day_trade"`

	MaxFavorable float64 `json:"max_favorable_excursion"`
	MaxAdverse   float64 `json:"max_adverse_excursion"`
}

// PDTStatus reports the pattern-day-trading budget.
type PDTStatus struct {
	Exempt      bool   `json:"exempt"`
	CanDayTrade bool   `json:"can_day_trade"`
	Remaining   int    `json:"remaining"`
	Status      string `json:"status"`
}

// ExitCandidate names an open position whose exit rule has triggered.
type ExitCandidate struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// Manager owns the live Account behind a mutex: sizing, fills, closes, and
// the suspension state machine all run single-writer. Backtests construct
// their own Manager per run so concurrent runs never share state.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	acct    *Account
	sectors market.SectorMap
	now     func() time.Time
}

func NewManager(cfg Config, sectors market.SectorMap) *Manager {
	cfg.applyDefaults()
	if sectors == nil {
		sectors = market.DefaultSectorMap()
	}
	return &Manager{
		cfg:     cfg,
		acct:    NewAccount(cfg.InitialBalance),
		sectors: sectors,
		now:     time.Now,
	}
}

// SetClock overrides the wall clock; the backtest engine pins it to the
// simulated day.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SizePosition computes the share count for a signal, or rejects it with a
// constraint list. intraday declares intent to close the position the same
// day, which consumes PDT budget and is refused when none remains.
func (m *Manager) SizePosition(sig scanner.Signal, intraday bool) Sizing {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Sizing{RiskPerShare: sig.EntryPrice - sig.StopLoss}

	if m.acct.Suspended {
		out.Constraints = append(out.Constraints, fmt.Sprintf("TradingSuspended: %s", m.acct.SuspensionReason))
		return out
	}
	if err := sig.Validate(); err != nil {
		out.Constraints = append(out.Constraints, fmt.Sprintf("invalid signal: %v", err))
		return out
	}
	if out.RiskPerShare <= 0 {
		out.Constraints = append(out.Constraints, "invalid stop loss: no risk defined")
		return out
	}
	if sig.Strength < m.cfg.StrengthFloor {
		out.Constraints = append(out.Constraints, fmt.Sprintf("signal strength %.1f below floor %.1f", sig.Strength, m.cfg.StrengthFloor))
		return out
	}
	if _, exists := m.acct.Positions[sig.Symbol]; exists {
		out.Constraints = append(out.Constraints, fmt.Sprintf("existing open position in %s", sig.Symbol))
		return out
	}

	if intraday {
		if pdt := m.pdtStatusLocked(); !pdt.CanDayTrade {
			out.Constraints = append(out.Constraints, fmt.Sprintf("day-trade limit reached: %s", pdt.Status))
			return out
		}
	}

	accountValue := m.acct.PortfolioValue()
	cash, _ := m.acct.Cash.Float64()
	availableCash := cash - accountValue*m.cfg.ReserveCashPct/100
	if availableCash <= 0 {
		out.Constraints = append(out.Constraints, "insufficient cash after reserve")
		return out
	}

	out.SharesByRisk = int(accountValue * m.cfg.MaxPositionRiskPct / 100 / out.RiskPerShare)
	out.SharesBySize = int(accountValue * m.cfg.MaxPositionPct / 100 / sig.EntryPrice)
	out.SharesByCash = int(availableCash / sig.EntryPrice)

	base := out.SharesByRisk
	if out.SharesBySize < base {
		base = out.SharesBySize
	}
	if out.SharesByCash < base {
		base = out.SharesByCash
	}

	mult := 0.5 + (sig.Strength-m.cfg.StrengthFloor)/(100-m.cfg.StrengthFloor)
	out.StrengthMultiplier = math.Max(0.5, math.Min(1.5, mult))

	// The multiplier scales weak signals down; it never lifts shares above
	// the binding cap.
	shares := int(float64(base) * out.StrengthMultiplier)
	if shares > base {
		shares = base
	}

	notional := float64(shares) * sig.EntryPrice
	if notional < m.cfg.MinTradeValue {
		out.Constraints = append(out.Constraints, fmt.Sprintf("position too small: $%.2f below $%.2f minimum", notional, m.cfg.MinTradeValue))
		return out
	}

	out.Shares = shares
	out.Notional = notional
	return out
}

// AddPosition records a fill. The fill price may differ from the signal's
// entry price (next-day opens in backtests).
func (m *Manager) AddPosition(sig scanner.Signal, shares int, fillPrice float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if shares <= 0 || fillPrice <= 0 {
		return fmt.Errorf("add %s: invalid fill %d shares @ %.4f", sig.Symbol, shares, fillPrice)
	}
	if _, exists := m.acct.Positions[sig.Symbol]; exists {
		return fmt.Errorf("add %s: position already open", sig.Symbol)
	}
	cost := decimal.NewFromFloat(fillPrice).Mul(decimal.NewFromInt(int64(shares))).
		Add(decimal.NewFromFloat(m.cfg.Commission))
	if cost.GreaterThan(m.acct.Cash) {
		return fmt.Errorf("add %s: cost %s exceeds cash %s", sig.Symbol, cost.StringFixed(2), m.acct.Cash.StringFixed(2))
	}

	pos := &Position{
		Symbol:     sig.Symbol,
		Strategy:   sig.Strategy,
		EntryDate:  at,
		EntryPrice: fillPrice,
		Quantity:   shares,
		StopLoss:   sig.StopLoss,
		Target:     sig.TargetPrice,
	}
	pos.UpdatePrice(fillPrice)

	m.acct.Positions[sig.Symbol] = pos
	m.acct.Cash = m.acct.Cash.Sub(cost)
	logger.Infof("[risk] opened %s: %d shares @ %.2f (%s)", sig.Symbol, shares, fillPrice, sig.Strategy)
	return nil
}

// ClosePosition always succeeds when the position exists: closing is how
// suspended accounts reduce risk. Same-calendar-day round trips are logged
// against the PDT budget, losses feed the streak counter, and the suspension
// conditions are re-evaluated afterwards.
func (m *Manager) ClosePosition(symbol string, exitPrice float64, reason string, at time.Time) (Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.acct.Positions[symbol]
	if !ok {
		return Trade{}, fmt.Errorf("close %s: no open position", symbol)
	}

	commission := 2 * m.cfg.Commission // entry side + exit side
	gross := (exitPrice - pos.EntryPrice) * float64(pos.Quantity)
	pnl := gross - commission

	proceeds := decimal.NewFromFloat(exitPrice).Mul(decimal.NewFromInt(int64(pos.Quantity))).
		Sub(decimal.NewFromFloat(m.cfg.Commission))
	m.acct.Cash = m.acct.Cash.Add(proceeds)

	d := decimal.NewFromFloat(pnl)
	m.acct.DailyPnL = m.acct.DailyPnL.Add(d)
	m.acct.RealizedPnL = m.acct.RealizedPnL.Add(d)

	dayTrade := sameDay(pos.EntryDate, at)
	if dayTrade {
		m.acct.DayTrades = append(m.acct.DayTrades, at)
	}
	if pnl < 0 {
		m.acct.ConsecutiveLosses++
	} else {
		m.acct.ConsecutiveLosses = 0
	}

	trade := Trade{
		ID:           uuid.NewString(),
		Symbol:       symbol,
		Strategy:     pos.Strategy,
		EntryDate:    pos.EntryDate,
		ExitDate:     at,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    exitPrice,
		Quantity:     pos.Quantity,
		PnL:          pnl,
		PnLPct:       pnl / (pos.EntryPrice * float64(pos.Quantity)) * 100,
		Commission:   commission,
		ExitReason:   reason,
		HoldingDays:  pos.HoldingDays(at),
		DayTrade:     dayTrade,
		MaxFavorable: pos.MaxFavorable,
		MaxAdverse:   pos.MaxAdverse,
	}
	delete(m.acct.Positions, symbol)

	m.evaluateSuspensionLocked()
	logger.Infof("[risk] closed %s @ %.2f (%s): pnl %.2f", symbol, exitPrice, reason, pnl)
	return trade, nil
}

// UpdatePrices marks open positions to the latest quotes.
func (m *Manager) UpdatePrices(quotes map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for symbol, pos := range m.acct.Positions {
		if price, ok := quotes[symbol]; ok && price > 0 {
			pos.UpdatePrice(price)
		}
	}
}

// PositionsToExit lists open positions whose stop, target, or holding-time
// rule has triggered at current marks.
func (m *Manager) PositionsToExit() []ExitCandidate {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ExitCandidate
	for symbol, pos := range m.acct.Positions {
		if hit, reason := pos.ShouldExit(m.now(), m.cfg.MaxHoldingDays); hit {
			out = append(out, ExitCandidate{Symbol: symbol, Reason: reason})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (m *Manager) PDTStatus() PDTStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pdtStatusLocked()
}

func (m *Manager) pdtStatusLocked() PDTStatus {
	m.acct.pruneDayTrades(m.now(), pdtWindow)

	value := m.acct.PortfolioValue()
	if value >= m.cfg.PDTExemptEquity {
		return PDTStatus{
			Exempt:      true,
			CanDayTrade: true,
			Remaining:   math.MaxInt32,
			Status:      fmt.Sprintf("exempt: portfolio $%.0f >= $%.0f", value, m.cfg.PDTExemptEquity),
		}
	}
	remaining := m.cfg.PDTLimit - len(m.acct.DayTrades)
	if remaining < 0 {
		remaining = 0
	}
	status := fmt.Sprintf("%d of %d day trades remaining in rolling window", remaining, m.cfg.PDTLimit)
	return PDTStatus{
		CanDayTrade: remaining > 0,
		Remaining:   remaining,
		Status:      status,
	}
}

// PortfolioRisk computes exposure, leverage, concentration, 95% VaR of
// per-position unrealized P&L, and max drawdown from the equity curve.
func (m *Manager) PortfolioRisk() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.portfolioRiskLocked()
}

func (m *Manager) portfolioRiskLocked() Metrics {
	value := m.acct.PortfolioValue()
	cash, _ := m.acct.Cash.Float64()
	daily, _ := m.acct.DailyPnL.Float64()

	metrics := Metrics{
		CashAvailable:         cash,
		PortfolioValue:        value,
		UnrealizedPnL:         m.acct.UnrealizedPnL(),
		DailyPnL:              daily,
		PositionConcentration: make(map[string]float64),
		SectorConcentration:   make(map[string]float64),
	}

	var pnls []float64
	for symbol, pos := range m.acct.Positions {
		mv := pos.MarketValue()
		metrics.TotalExposure += math.Abs(mv)
		pnls = append(pnls, pos.UnrealizedPnL)
		if value > 0 {
			metrics.PositionConcentration[symbol] = mv / value
			metrics.SectorConcentration[m.sectors.SectorOf(symbol)] += mv / value
		}
	}
	if value > 0 {
		metrics.LeverageRatio = metrics.TotalExposure / value
	}
	metrics.VaR95 = Percentile(pnls, 5)
	metrics.MaxDrawdownPct = MaxDrawdownPct(equityValues(m.acct.EquityCurve))
	return metrics
}

// RecordDailyEquity appends today's valuation to the equity curve. Call once
// per trading day after marks are updated.
func (m *Manager) RecordDailyEquity(date time.Time) EquityPoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	cash, _ := m.acct.Cash.Float64()
	realized, _ := m.acct.RealizedPnL.Float64()
	point := EquityPoint{
		Date:           date,
		Equity:         m.acct.PortfolioValue(),
		Cash:           cash,
		PositionsValue: m.acct.PositionsValue(),
		UnrealizedPnL:  m.acct.UnrealizedPnL(),
		RealizedPnL:    realized,
	}
	m.acct.EquityCurve = append(m.acct.EquityCurve, point)
	return point
}

// ResetDaily zeroes the daily P&L at the start of a trading day. Losing
// streaks persist across days.
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acct.DailyPnL = decimal.Zero
	m.evaluateSuspensionLocked()
}

func (m *Manager) PortfolioValue() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acct.PortfolioValue()
}

func (m *Manager) EquityCurve() []EquityPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EquityPoint, len(m.acct.EquityCurve))
	copy(out, m.acct.EquityCurve)
	return out
}

// Positions returns a snapshot of open positions.
func (m *Manager) Positions() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Position, 0, len(m.acct.Positions))
	for _, pos := range m.acct.Positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (m *Manager) Suspended() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acct.Suspended, m.acct.SuspensionReason
}

// Report is the aggregate risk report served by the API.
type Report struct {
	Timestamp time.Time `json:"timestamp"`

	Account struct {
		PortfolioValue float64 `json:"portfolio_value"`
		CashAvailable  float64 `json:"cash_available"`
		RealizedPnL    float64 `json:"realized_pnl"`
		UnrealizedPnL  float64 `json:"unrealized_pnl"`
		DailyPnL       float64 `json:"daily_pnl"`
	} `json:"account_summary"`

	Metrics Metrics   `json:"risk_metrics"`
	PDT     PDTStatus `json:"pdt_status"`

	Limits struct {
		Suspended            bool    `json:"trading_suspended"`
		SuspensionReason     string  `json:"suspension_reason,omitempty"`
		ConsecutiveLosses    int     `json:"consecutive_losses"`
		MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
		MaxDailyLoss         float64 `json:"max_daily_loss"`
	} `json:"risk_limits"`

	Positions struct {
		Count   int             `json:"count"`
		Symbols []string        `json:"symbols"`
		ToExit  []ExitCandidate `json:"positions_to_exit,omitempty"`
	} `json:"positions"`
}

func (m *Manager) Report() Report {
	m.mu.Lock()
	metrics := m.portfolioRiskLocked()
	pdt := m.pdtStatusLocked()

	var r Report
	r.Timestamp = m.now()
	cash, _ := m.acct.Cash.Float64()
	realized, _ := m.acct.RealizedPnL.Float64()
	daily, _ := m.acct.DailyPnL.Float64()
	r.Account.PortfolioValue = metrics.PortfolioValue
	r.Account.CashAvailable = cash
	r.Account.RealizedPnL = realized
	r.Account.UnrealizedPnL = metrics.UnrealizedPnL
	r.Account.DailyPnL = daily
	r.Metrics = metrics
	r.PDT = pdt
	r.Limits.Suspended = m.acct.Suspended
	r.Limits.SuspensionReason = m.acct.SuspensionReason
	r.Limits.ConsecutiveLosses = m.acct.ConsecutiveLosses
	r.Limits.MaxConsecutiveLosses = m.cfg.MaxConsecutiveLosses
	r.Limits.MaxDailyLoss = m.cfg.MaxDailyLoss
	for symbol := range m.acct.Positions {
		r.Positions.Symbols = append(r.Positions.Symbols, symbol)
	}
	sort.Strings(r.Positions.Symbols)
	r.Positions.Count = len(m.acct.Positions)
	m.mu.Unlock()

	r.Positions.ToExit = m.PositionsToExit()
	return r
}

// evaluateSuspensionLocked applies the three suspension triggers and lifts
// the flag automatically once none hold.
func (m *Manager) evaluateSuspensionLocked() {
	daily, _ := m.acct.DailyPnL.Float64()
	dayTotal := daily + m.acct.UnrealizedPnL()

	switch {
	case dayTotal <= -m.cfg.MaxDailyLoss:
		m.suspendLocked(fmt.Sprintf("daily loss limit exceeded: $%.2f", dayTotal))
	case m.acct.ConsecutiveLosses >= m.cfg.MaxConsecutiveLosses:
		m.suspendLocked(fmt.Sprintf("consecutive losses: %d", m.acct.ConsecutiveLosses))
	case MaxDrawdownPct(equityValues(m.acct.EquityCurve)) > m.cfg.MaxDrawdownPct:
		m.suspendLocked(fmt.Sprintf("portfolio drawdown above %.0f%%", m.cfg.MaxDrawdownPct))
	default:
		if m.acct.Suspended {
			m.acct.Suspended = false
			m.acct.SuspensionReason = ""
			logger.Infof("[risk] trading suspension lifted")
		}
	}
}

func (m *Manager) suspendLocked(reason string) {
	if !m.acct.Suspended {
		logger.Warnf("[risk] trading suspended: %s", reason)
	}
	m.acct.Suspended = true
	m.acct.SuspensionReason = reason
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func equityValues(curve []EquityPoint) []float64 {
	out := make([]float64, len(curve))
	for i, p := range curve {
		out[i] = p.Equity
	}
	return out
}
