package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/time/rate"

	"factorlab/internal/domain"
	"factorlab/internal/util"
)

// Compile-time interface check.
var _ Provider = (*AlpacaProvider)(nil)

// AlpacaProvider fetches daily bars from the Alpaca market-data API:
// GetBars for exchange-traded tickers, GetCryptoBars for crypto pairs.
type AlpacaProvider struct {
	client  *marketdata.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewAlpacaProvider creates an AlpacaProvider with the given credentials.
// dataURL may be empty to use the SDK default. Requests are paced to stay
// inside the free-tier rate limit.
func NewAlpacaProvider(apiKey, apiSecret, dataURL string, log *slog.Logger) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	return &AlpacaProvider{
		client:  marketdata.NewClient(opts),
		limiter: rate.NewLimiter(rate.Every(time.Second/3), 1),
		log:     log.With("component", "alpaca"),
	}
}

// Fetch returns the trailing daily series for a ticker, oldest first. It
// fails with ErrDataUnavailable when the window holds zero usable points.
func (p *AlpacaProvider) Fetch(ctx context.Context, ticker string, class domain.AssetClass, lookbackDays int) ([]domain.PricePoint, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -lookbackDays)
	p.log.Debug("fetching bars", "ticker", ticker, "class", class, "start", start.Format(domain.DateLayout))

	// The free data tier drops the occasional request; a couple of retries
	// cover transient failures without masking bad credentials for long.
	var points []domain.PricePoint
	err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		if class == domain.AssetClassCrypto {
			bars, err := p.client.GetCryptoBars(ticker, marketdata.GetCryptoBarsRequest{
				TimeFrame: marketdata.OneDay,
				Start:     start,
				End:       end,
			})
			if err != nil {
				return fmt.Errorf("alpaca crypto bars for %s: %w", ticker, err)
			}
			points = cryptoBarsToPoints(bars)
			return nil
		}
		bars, err := p.client.GetBars(ticker, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
			Feed:      marketdata.IEX,
		})
		if err != nil {
			return fmt.Errorf("alpaca bars for %s: %w", ticker, err)
		}
		points = stockBarsToPoints(bars)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s over %d days", domain.ErrDataUnavailable, ticker, lookbackDays)
	}
	return points, nil
}

// stockBarsToPoints converts equity bars, dropping bars with a non-positive
// close. Bars arrive oldest first; one bar per trading day.
func stockBarsToPoints(bars []marketdata.Bar) []domain.PricePoint {
	points := make([]domain.PricePoint, 0, len(bars))
	for i := range bars {
		b := &bars[i]
		if b.Close <= 0 {
			continue
		}
		open, high, low := b.Open, b.High, b.Low
		volume := float64(b.Volume)
		points = append(points, domain.PricePoint{
			Date:   b.Timestamp.UTC().Format(domain.DateLayout),
			Close:  b.Close,
			Open:   &open,
			High:   &high,
			Low:    &low,
			Volume: &volume,
		})
	}
	return points
}

// cryptoBarsToPoints converts crypto bars the same way.
func cryptoBarsToPoints(bars []marketdata.CryptoBar) []domain.PricePoint {
	points := make([]domain.PricePoint, 0, len(bars))
	for i := range bars {
		b := &bars[i]
		if b.Close <= 0 {
			continue
		}
		open, high, low := b.Open, b.High, b.Low
		volume := b.Volume
		points = append(points, domain.PricePoint{
			Date:   b.Timestamp.UTC().Format(domain.DateLayout),
			Close:  b.Close,
			Open:   &open,
			High:   &high,
			Low:    &low,
			Volume: &volume,
		})
	}
	return points
}
