package scanner

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"papertrader/internal/logger"
)

// Scanner analyzes one symbol and either produces a signal or declines.
// A nil signal with a nil error means the symbol simply did not set up;
// an error means the symbol could not be analyzed (bad data, short history).
// Neither outcome may abort a batch.
type Scanner interface {
	Name() string
	Analyze(ctx context.Context, symbol string) (*Signal, error)
}

// Preparer lets a scanner do one-time per-batch work (benchmark fetch)
// before symbols fan out.
type Preparer interface {
	Prepare(ctx context.Context)
}

// Skip records why a symbol produced no signal, for scan diagnostics.
type Skip struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// Batch fans a symbol universe across workers. Symbol analyses are
// independent and share no mutable state, so the only coordination is the
// result collection.
type Batch struct {
	Parallelism int
}

// Run scans every symbol, returning signals sorted by strength descending
// (ties broken by symbol for deterministic output) plus the skip list.
func (b Batch) Run(ctx context.Context, sc Scanner, symbols []string) ([]Signal, []Skip) {
	if p, ok := sc.(Preparer); ok {
		p.Prepare(ctx)
	}

	limit := b.Parallelism
	if limit <= 0 {
		limit = 1
	}
	var (
		mu      sync.Mutex
		signals []Signal
		skips   []Skip
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			sig, err := sc.Analyze(ctx, symbol)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				logger.Debugf("[scan] %s skip %s: %v", sc.Name(), symbol, err)
				skips = append(skips, Skip{Symbol: symbol, Reason: err.Error()})
			case sig == nil:
				skips = append(skips, Skip{Symbol: symbol, Reason: "criteria not met"})
			default:
				signals = append(signals, *sig)
			}
			return nil
		})
	}
	// Workers never return errors; Wait only observes context cancellation.
	_ = g.Wait()

	sort.Slice(signals, func(i, j int) bool {
		if signals[i].Strength != signals[j].Strength {
			return signals[i].Strength > signals[j].Strength
		}
		return signals[i].Symbol < signals[j].Symbol
	})
	sort.Slice(skips, func(i, j int) bool { return skips[i].Symbol < skips[j].Symbol })
	logger.Infof("[scan] %s: %d signals, %d skipped of %d symbols", sc.Name(), len(signals), len(skips), len(symbols))
	return signals, skips
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
