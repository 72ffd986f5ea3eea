package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"factorlab/internal/backtest"
	"factorlab/internal/config"
	"factorlab/internal/domain"
	"factorlab/internal/marketdata"
	"factorlab/internal/store"
	"factorlab/internal/util"
)

// factorlab-gather warms the Parquet price cache for every supported
// benchmark so the first backtest of the day does not pay the fetch.
func main() {
	_ = godotenv.Load()

	cfgPath := "config/factorlab.yaml"
	if p := os.Getenv("FACTORLAB_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	cache := store.NewParquetCache(cfg.Storage.DataDir)
	alpaca := marketdata.NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, logger)
	provider := marketdata.NewCachingProvider(alpaca, cache, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, symbol := range domain.Benchmarks() {
		bench, err := domain.ResolveBenchmark(symbol)
		if err != nil {
			log.Fatalf("benchmark table inconsistent: %v", err)
		}
		g.Go(func() error {
			points, err := provider.Fetch(ctx, bench.Ticker, bench.Class, backtest.DefaultLookbackDays)
			if err != nil {
				logger.Error("prefetch failed", "benchmark", bench.Name, "error", err)
				return err
			}
			logger.Info("prefetched", "benchmark", bench.Name, "ticker", bench.Ticker, "points", len(points))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("gather error: %v", err)
	}
	logger.Info("cache warm", "benchmarks", len(domain.Benchmarks()))
}
