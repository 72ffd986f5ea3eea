// Package marketdata fetches ordered daily price series for benchmark
// tickers. The Alpaca implementation covers both exchange-traded tickers and
// continuously-traded crypto pairs; a caching wrapper keeps a day-scoped
// Parquet copy on disk.
package marketdata

import (
	"context"
	"log/slog"
	"time"

	"factorlab/internal/domain"
	"factorlab/internal/store"
)

// Provider fetches the daily close series for a concrete ticker over the
// trailing lookback window. Implementations fail with ErrDataUnavailable
// when the window contains zero usable points.
type Provider interface {
	Fetch(ctx context.Context, ticker string, class domain.AssetClass, lookbackDays int) ([]domain.PricePoint, error)
}

// CachingProvider wraps a Provider with a read-through Parquet cache. A
// cached series written today is served directly; anything older is
// refetched. Cache write failures are logged, never fatal, and the fetched
// series is still returned.
type CachingProvider struct {
	inner Provider
	cache *store.ParquetCache
	log   *slog.Logger
}

// NewCachingProvider wraps inner with the given cache.
func NewCachingProvider(inner Provider, cache *store.ParquetCache, log *slog.Logger) *CachingProvider {
	return &CachingProvider{
		inner: inner,
		cache: cache,
		log:   log.With("component", "price_cache"),
	}
}

// Fetch serves from cache when today's copy exists, otherwise delegates to
// the inner provider and refreshes the cache.
func (p *CachingProvider) Fetch(ctx context.Context, ticker string, class domain.AssetClass, lookbackDays int) ([]domain.PricePoint, error) {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if p.cache.FreshSince(class, ticker, midnight) {
		points, err := p.cache.Read(class, ticker)
		if err == nil && len(points) > 0 {
			p.log.Debug("cache hit", "ticker", ticker, "points", len(points))
			return points, nil
		}
		if err != nil {
			p.log.Warn("reading cache", "ticker", ticker, "error", err)
		}
	}

	points, err := p.inner.Fetch(ctx, ticker, class, lookbackDays)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Write(class, ticker, points); err != nil {
		p.log.Warn("writing cache", "ticker", ticker, "error", err)
	}
	return points, nil
}
