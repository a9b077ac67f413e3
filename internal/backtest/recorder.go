package backtest

import (
	"papertrader/internal/risk"
)

// Recorder receives run artifacts as they are produced. Implementations must
// tolerate being called from a single goroutine per run; the engine never
// fans out writes. A nil Recorder disables persistence.
type Recorder interface {
	SaveRun(result Result) error
	SaveTrade(runID string, trade risk.Trade) error
	SaveSnapshot(runID string, point risk.EquityPoint) error
}
