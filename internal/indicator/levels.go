package indicator

// Levels holds detected support and resistance for a window of price action.
type Levels struct {
	Support    float64
	Resistance float64
}

// SupportResistance scans the last 2*lookback bars for swing points. A bar is
// a swing low when its low is strictly below both neighbors (swing highs
// mirrored); detected swings are averaged. With no swings the window's
// absolute min/max is used instead.
func SupportResistance(highs, lows []float64, lookback int) Levels {
	window := 2 * lookback
	if window > len(lows) {
		window = len(lows)
	}
	hs := highs[len(highs)-window:]
	ls := lows[len(lows)-window:]

	var swingLows, swingHighs []float64
	for i := 1; i < window-1; i++ {
		if ls[i] < ls[i-1] && ls[i] < ls[i+1] {
			swingLows = append(swingLows, ls[i])
		}
		if hs[i] > hs[i-1] && hs[i] > hs[i+1] {
			swingHighs = append(swingHighs, hs[i])
		}
	}

	lv := Levels{}
	if len(swingLows) > 0 {
		lv.Support = meanOf(swingLows)
	} else {
		lv.Support = minOf(ls)
	}
	if len(swingHighs) > 0 {
		lv.Resistance = meanOf(swingHighs)
	} else {
		lv.Resistance = maxOf(hs)
	}
	return lv
}

func minOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
