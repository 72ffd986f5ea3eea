package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"factorlab/internal/domain"
	"factorlab/internal/store"
	"factorlab/internal/util"
)

func TestStockBarsToPoints(t *testing.T) {
	ts := time.Date(2024, 6, 14, 4, 0, 0, 0, time.UTC)
	bars := []marketdata.Bar{
		{Timestamp: ts, Open: 99, High: 102, Low: 98, Close: 101, Volume: 1000},
		{Timestamp: ts.AddDate(0, 0, 1), Close: 0}, // dropped: no usable close
		{Timestamp: ts.AddDate(0, 0, 3), Open: 101, High: 104, Low: 100, Close: 103, Volume: 1200},
	}

	points := stockBarsToPoints(bars)
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if points[0].Date != "2024-06-14" || points[0].Close != 101 {
		t.Errorf("points[0] = %+v", points[0])
	}
	if points[0].Open == nil || *points[0].Open != 99 {
		t.Errorf("open not carried: %+v", points[0])
	}
	if points[0].Volume == nil || *points[0].Volume != 1000 {
		t.Errorf("volume not carried: %+v", points[0])
	}
	if points[1].Date != "2024-06-17" {
		t.Errorf("gap day should simply be absent, got %+v", points[1])
	}
}

func TestCryptoBarsToPoints(t *testing.T) {
	ts := time.Date(2024, 6, 14, 5, 0, 0, 0, time.UTC)
	bars := []marketdata.CryptoBar{
		{Timestamp: ts, Open: 67000, High: 68000, Low: 66500, Close: 67500, Volume: 12.5},
	}
	points := cryptoBarsToPoints(bars)
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1", len(points))
	}
	if points[0].Close != 67500 || *points[0].Volume != 12.5 {
		t.Errorf("points[0] = %+v", points[0])
	}
}

type countingProvider struct {
	points []domain.PricePoint
	calls  int
}

func (c *countingProvider) Fetch(_ context.Context, _ string, _ domain.AssetClass, _ int) ([]domain.PricePoint, error) {
	c.calls++
	return c.points, nil
}

func TestCachingProvider(t *testing.T) {
	inner := &countingProvider{points: []domain.PricePoint{
		{Date: "2024-06-13", Close: 100},
		{Date: "2024-06-14", Close: 101},
	}}
	cache := store.NewParquetCache(t.TempDir())
	p := NewCachingProvider(inner, cache, util.NewLogger("error"))
	ctx := context.Background()

	first, err := p.Fetch(ctx, "BTC/USD", domain.AssetClassCrypto, 365)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("inner called %d times, want 1", inner.calls)
	}

	second, err := p.Fetch(ctx, "BTC/USD", domain.AssetClassCrypto, 365)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("second fetch hit the provider; cache miss")
	}
	if len(second) != len(first) || second[0].Date != first[0].Date {
		t.Errorf("cache round-trip mismatch: %+v vs %+v", second, first)
	}

	// A different ticker misses the cache.
	if _, err := p.Fetch(ctx, "ETH/USD", domain.AssetClassCrypto, 365); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner called %d times, want 2", inner.calls)
	}
}
