package market

import (
	"fmt"
	"time"
)

// Bar is one daily OHLCV record for a single symbol. Immutable once stored.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series is a time-ordered price history for one symbol, ascending by date
// with no duplicate dates. Treated as read-only after construction and safe
// to share across concurrent scanner evaluations.
type Series struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// NewSeries validates ordering before wrapping the bars.
func NewSeries(symbol string, bars []Bar) (Series, error) {
	s := Series{Symbol: symbol, Bars: bars}
	if err := s.Validate(); err != nil {
		return Series{}, err
	}
	return s, nil
}

func (s Series) Validate() error {
	for i := 1; i < len(s.Bars); i++ {
		prev, cur := s.Bars[i-1].Date, s.Bars[i].Date
		if !cur.After(prev) {
			return fmt.Errorf("series %s: bar %d (%s) not after %s", s.Symbol, i, cur.Format("2006-01-02"), prev.Format("2006-01-02"))
		}
	}
	return nil
}

func (s Series) Len() int { return len(s.Bars) }

// Latest returns the most recent bar. The bool is false on an empty series.
func (s Series) Latest() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Previous returns the bar n steps before the latest one (Previous(0) ==
// Latest). Named accessors replace raw negative indexing so lookbacks stay
// explicit.
func (s Series) Previous(n int) (Bar, bool) {
	idx := len(s.Bars) - 1 - n
	if n < 0 || idx < 0 {
		return Bar{}, false
	}
	return s.Bars[idx], true
}

// Tail returns the last n bars (all bars when fewer exist). The returned
// slice aliases the series and must not be mutated.
func (s Series) Tail(n int) []Bar {
	if n <= 0 {
		return nil
	}
	if n >= len(s.Bars) {
		return s.Bars
	}
	return s.Bars[len(s.Bars)-n:]
}

// Through returns the sub-series of bars dated on or before t.
func (s Series) Through(t time.Time) Series {
	i := len(s.Bars)
	for i > 0 && s.Bars[i-1].Date.After(t) {
		i--
	}
	return Series{Symbol: s.Symbol, Bars: s.Bars[:i]}
}

func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

func (s Series) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

func (s Series) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}

func (s Series) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Volume
	}
	return out
}
