package market

import (
	"context"
	"fmt"
	"time"
)

// HistoricalProvider serves pre-loaded series truncated to an as-of date, so
// scanners replayed over past days never see future bars.
type HistoricalProvider struct {
	series map[string]Series
	asOf   time.Time
}

func NewHistoricalProvider(series map[string]Series, asOf time.Time) HistoricalProvider {
	return HistoricalProvider{series: series, asOf: asOf}
}

func (p HistoricalProvider) GetPriceSeries(_ context.Context, symbol string, lookback int) (Series, error) {
	s, ok := p.series[symbol]
	if !ok {
		return Series{}, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}
	s = s.Through(p.asOf)
	if s.Len() == 0 {
		return Series{}, fmt.Errorf("%s through %s: %w", symbol, p.asOf.Format("2006-01-02"), ErrNoData)
	}
	if lookback > 0 && s.Len() > lookback {
		s = Series{Symbol: s.Symbol, Bars: s.Tail(lookback)}
	}
	return s, nil
}
