package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSI(t *testing.T) {
	t.Run("monotonic rise saturates at 100", func(t *testing.T) {
		closes := make([]float64, 30)
		for i := range closes {
			closes[i] = 100 + float64(i)
		}
		rsi, err := RSI(closes, 14)
		require.NoError(t, err)
		assert.Equal(t, 100.0, rsi)
	})

	t.Run("monotonic fall approaches 0", func(t *testing.T) {
		closes := make([]float64, 30)
		for i := range closes {
			closes[i] = 200 - float64(i)
		}
		rsi, err := RSI(closes, 14)
		require.NoError(t, err)
		assert.InDelta(t, 0, rsi, 1e-9)
	})

	t.Run("mixed moves stay inside the band", func(t *testing.T) {
		closes := []float64{
			44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42,
			45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28, 46.00,
			46.03, 46.41, 46.22, 45.64,
		}
		rsi, err := RSI(closes, 14)
		require.NoError(t, err)
		assert.Greater(t, rsi, 0.0)
		assert.Less(t, rsi, 100.0)
	})

	t.Run("short series is rejected", func(t *testing.T) {
		_, err := RSI([]float64{1, 2, 3}, 14)
		assert.ErrorIs(t, err, ErrInsufficientData)
	})
}

func TestSMAAndEMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	sma, err := SMA(closes, 5)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, sma, 1e-9) // mean of 6..10

	_, err = SMA(closes, 11)
	assert.ErrorIs(t, err, ErrInsufficientData)

	ema, err := EMA(closes, 5)
	require.NoError(t, err)
	assert.Greater(t, ema, sma-2)
}

func TestMACD(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.5
	}
	line, signal, hist, err := MACD(closes)
	require.NoError(t, err)
	assert.Greater(t, line, 0.0) // steady uptrend
	assert.InDelta(t, line-signal, hist, 1e-9)

	_, _, _, err = MACD(closes[:20])
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestZScore(t *testing.T) {
	t.Run("flat window is zero", func(t *testing.T) {
		flat := []float64{5, 5, 5, 5, 5, 5}
		assert.Equal(t, 0.0, ZScore(flat, 5))
	})

	t.Run("last value below mean is negative", func(t *testing.T) {
		values := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 7}
		z := ZScore(values, 10)
		assert.Less(t, z, -1.0)
	})

	t.Run("short window is zero", func(t *testing.T) {
		assert.Equal(t, 0.0, ZScore([]float64{1, 2}, 10))
	})
}

func TestBollingerPosition(t *testing.T) {
	assert.InDelta(t, 0.5, BollingerPosition(10, 12, 8), 1e-9)
	assert.InDelta(t, 0.0, BollingerPosition(8, 12, 8), 1e-9)
	assert.InDelta(t, 1.0, BollingerPosition(12, 12, 8), 1e-9)
	assert.InDelta(t, 0.5, BollingerPosition(10, 10, 10), 1e-9) // collapsed bands
}

func TestATRAndMomentum(t *testing.T) {
	n := 30
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		closes[i] = 100 + float64(i)
		highs[i] = closes[i] + 1
		lows[i] = closes[i] - 1
	}

	atr, err := ATR(highs, lows, closes, 14)
	require.NoError(t, err)
	assert.Greater(t, atr, 0.0)

	mom, err := Momentum(closes, 10)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, mom, 1e-9)
}

func TestSupportResistance(t *testing.T) {
	t.Run("swing points averaged", func(t *testing.T) {
		lows := []float64{10, 8, 10, 10, 6, 10, 10, 10, 10, 10}
		highs := []float64{20, 20, 24, 20, 20, 26, 20, 20, 20, 20}
		lv := SupportResistance(highs, lows, 5)
		assert.InDelta(t, 7.0, lv.Support, 1e-9)     // mean(8, 6)
		assert.InDelta(t, 25.0, lv.Resistance, 1e-9) // mean(24, 26)
	})

	t.Run("no swings falls back to min and max", func(t *testing.T) {
		lows := []float64{5, 4, 3, 2, 1}
		highs := []float64{10, 11, 12, 13, 14}
		lv := SupportResistance(highs, lows, 5)
		assert.Equal(t, 1.0, lv.Support)
		assert.Equal(t, 14.0, lv.Resistance)
	})
}
