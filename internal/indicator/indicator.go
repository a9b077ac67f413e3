package indicator

import (
	"errors"
	"math"

	"github.com/markcheno/go-talib"
)

// ErrInsufficientData reports that a series is too short for the requested
// computation. Callers skip the symbol; it never aborts a batch.
var ErrInsufficientData = errors.New("indicator: insufficient data")

// RSI computes Wilder's relative strength index for the latest bar: the seed
// averages are simple means over the first period, then smoothed with
// (prev*(period-1)+cur)/period. When the average loss is zero RSI is defined
// as 100.
func RSI(closes []float64, period int) (float64, error) {
	if period <= 0 || len(closes) < period+1 {
		return 0, ErrInsufficientData
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}
	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}

// RSISeries returns the full RSI series (leading values are NaN-free but
// zero-seeded per TALib); used for oversold-duration counting.
func RSISeries(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period+1 {
		return nil
	}
	return talib.Rsi(closes, period)
}

func SMA(values []float64, period int) (float64, error) {
	if period <= 0 || len(values) < period {
		return 0, ErrInsufficientData
	}
	return lastValid(talib.Sma(values, period))
}

func EMA(values []float64, period int) (float64, error) {
	if period <= 0 || len(values) < period {
		return 0, ErrInsufficientData
	}
	return lastValid(talib.Ema(values, period))
}

// MACD returns the latest MACD line, signal line, and histogram using the
// conventional 12/26/9 parameterization.
func MACD(closes []float64) (line, signal, hist float64, err error) {
	if len(closes) < 35 {
		return 0, 0, 0, ErrInsufficientData
	}
	m, s, h := talib.Macd(closes, 12, 26, 9)
	line, err = lastValid(m)
	if err != nil {
		return 0, 0, 0, err
	}
	signal, err = lastValid(s)
	if err != nil {
		return 0, 0, 0, err
	}
	hist, err = lastValid(h)
	if err != nil {
		return 0, 0, 0, err
	}
	return line, signal, hist, nil
}

// BBands returns the latest Bollinger Bands (2 standard deviations).
func BBands(closes []float64, period int) (upper, middle, lower float64, err error) {
	if period <= 0 || len(closes) < period {
		return 0, 0, 0, ErrInsufficientData
	}
	u, m, l := talib.BBands(closes, period, 2, 2, talib.SMA)
	upper, err = lastValid(u)
	if err != nil {
		return 0, 0, 0, err
	}
	middle, err = lastValid(m)
	if err != nil {
		return 0, 0, 0, err
	}
	lower, err = lastValid(l)
	if err != nil {
		return 0, 0, 0, err
	}
	return upper, middle, lower, nil
}

// BollingerPosition maps a price into [0,1] between the lower and upper band
// (0.5 when the bands have collapsed).
func BollingerPosition(price, upper, lower float64) float64 {
	if upper == lower {
		return 0.5
	}
	return (price - lower) / (upper - lower)
}

// Stoch returns the latest slow %K / %D (14,3,3).
func Stoch(highs, lows, closes []float64) (k, d float64, err error) {
	if len(closes) < 20 || len(highs) != len(closes) || len(lows) != len(closes) {
		return 0, 0, ErrInsufficientData
	}
	ks, ds := talib.Stoch(highs, lows, closes, 14, 3, talib.SMA, 3, talib.SMA)
	k, err = lastValid(ks)
	if err != nil {
		return 0, 0, err
	}
	d, err = lastValid(ds)
	if err != nil {
		return 0, 0, err
	}
	return k, d, nil
}

func WilliamsR(highs, lows, closes []float64, period int) (float64, error) {
	if period <= 0 || len(closes) < period || len(highs) != len(closes) || len(lows) != len(closes) {
		return 0, ErrInsufficientData
	}
	return lastValid(talib.WillR(highs, lows, closes, period))
}

func ATR(highs, lows, closes []float64, period int) (float64, error) {
	if period <= 0 || len(closes) < period+1 || len(highs) != len(closes) || len(lows) != len(closes) {
		return 0, ErrInsufficientData
	}
	return lastValid(talib.Atr(highs, lows, closes, period))
}

// Momentum is the n-bar price difference (talib MOM).
func Momentum(closes []float64, period int) (float64, error) {
	if period <= 0 || len(closes) < period+1 {
		return 0, ErrInsufficientData
	}
	return lastValid(talib.Mom(closes, period))
}

// ZScore measures the latest value against the trailing window mean in
// standard deviations; 0 when the window is flat or too short.
func ZScore(values []float64, window int) float64 {
	if window <= 0 || len(values) < window {
		return 0
	}
	recent := values[len(values)-window:]
	mean := meanOf(recent)
	sd := stdevOf(recent, mean)
	if sd == 0 {
		return 0
	}
	return (values[len(values)-1] - mean) / sd
}

func lastValid(series []float64) (float64, error) {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i], nil
		}
	}
	return 0, ErrInsufficientData
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdevOf is the population standard deviation, matching how the z-score
// window is normalized.
func stdevOf(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}
