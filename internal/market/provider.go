package market

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// ErrNoData marks a fetch that produced no usable history. Callers treat it
// as "insufficient data" and skip the symbol rather than aborting a batch.
var ErrNoData = errors.New("market: no data")

// Provider supplies daily price history. Implementations must return bars in
// ascending date order; lookback is the number of most-recent bars wanted
// (0 means everything available).
type Provider interface {
	GetPriceSeries(ctx context.Context, symbol string, lookback int) (Series, error)
}

// RateLimitedProvider throttles an upstream provider so scanning a large
// universe in parallel cannot hammer a remote feed.
type RateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

func NewRateLimitedProvider(inner Provider, perSecond float64, burst int) *RateLimitedProvider {
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedProvider{inner: inner, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (p *RateLimitedProvider) GetPriceSeries(ctx context.Context, symbol string, lookback int) (Series, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return Series{}, err
	}
	return p.inner.GetPriceSeries(ctx, symbol, lookback)
}
