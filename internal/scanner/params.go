package scanner

// WithParams overlays optimizer parameter values onto a config copy. Unknown
// names are ignored so grids can mix strategy-specific keys.
func (c MomentumConfig) WithParams(params map[string]float64) MomentumConfig {
	for name, v := range params {
		switch name {
		case "min_signal_strength":
			c.MinStrength = v
		case "rsi_low":
			c.RSILow = v
		case "rsi_high":
			c.RSIHigh = v
		case "volume_multiplier":
			c.VolumeMultiplier = v
		case "price_change_min":
			c.PriceChangeMin = v
		}
	}
	return c
}

func (c MeanReversionConfig) WithParams(params map[string]float64) MeanReversionConfig {
	for name, v := range params {
		switch name {
		case "min_signal_strength":
			c.MinStrength = v
		case "rsi_oversold":
			c.RSIOversold = v
		case "zscore_threshold":
			c.ZScoreThreshold = v
		case "bollinger_position":
			c.BollingerPosition = v
		}
	}
	return c
}
