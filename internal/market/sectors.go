package market

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SectorMap maps tickers to sector names for concentration accounting.
// Unknown symbols fall back to "Other".
type SectorMap map[string]string

const sectorOther = "Other"

// DefaultSectorMap covers the common large-cap universe; operators extend it
// from YAML via LoadSectorMap.
func DefaultSectorMap() SectorMap {
	return SectorMap{
		"AAPL": "Technology", "MSFT": "Technology", "GOOGL": "Technology",
		"META": "Technology", "NVDA": "Technology", "ADBE": "Technology",
		"CRM": "Technology", "ORCL": "Technology", "INTC": "Technology",

		"JPM": "Financial", "BAC": "Financial", "WFC": "Financial",
		"GS": "Financial", "MS": "Financial", "V": "Financial", "MA": "Financial",

		"JNJ": "Healthcare", "PFE": "Healthcare", "UNH": "Healthcare",
		"ABBV": "Healthcare", "TMO": "Healthcare", "ABT": "Healthcare",

		"AMZN": "Consumer", "TSLA": "Consumer", "HD": "Consumer",
		"WMT": "Consumer", "DIS": "Consumer", "NKE": "Consumer",
		"MCD": "Consumer", "SBUX": "Consumer",

		"XOM": "Energy", "CVX": "Energy", "SLB": "Energy",

		"NEE": "Utilities", "DUK": "Utilities", "SO": "Utilities",
	}
}

// LoadSectorMap reads a symbol->sector YAML file and merges it over the
// built-in map so partial files only need to list overrides.
func LoadSectorMap(path string) (SectorMap, error) {
	out := DefaultSectorMap()
	if strings.TrimSpace(path) == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sector map %s: %w", path, err)
	}
	var extra map[string]string
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("parse sector map %s: %w", path, err)
	}
	for sym, sector := range extra {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		sector = strings.TrimSpace(sector)
		if sym == "" || sector == "" {
			continue
		}
		out[sym] = sector
	}
	return out, nil
}

func (m SectorMap) SectorOf(symbol string) string {
	if sector, ok := m[strings.ToUpper(strings.TrimSpace(symbol))]; ok {
		return sector
	}
	return sectorOther
}
