package backtest

import (
	"context"
	"time"

	"papertrader/internal/market"
	"papertrader/internal/scanner"
)

// ScannerFactory builds a scanner bound to a provider. Historical signal
// generation constructs a fresh scanner per simulated day so per-batch state
// (benchmark readings) is recomputed against that day's data.
type ScannerFactory func(provider market.Provider) scanner.Scanner

// GenerateSignals replays a scanner across every weekday in the window,
// feeding it only bars up to each day, and stamps emitted signals with the
// day they were generated on. Weekends and days where nothing sets up simply
// contribute no signals.
func GenerateSignals(ctx context.Context, factory ScannerFactory, series map[string]market.Series,
	symbols []string, start, end time.Time, parallelism int) ([]scanner.Signal, error) {

	batch := scanner.Batch{Parallelism: parallelism}
	var out []scanner.Signal
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sc := factory(market.NewHistoricalProvider(series, day))
		signals, _ := batch.Run(ctx, sc, symbols)
		for i := range signals {
			signals[i].GeneratedAt = day
		}
		out = append(out, signals...)
	}
	return out, nil
}
