package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"factorlab/internal/backtest"
	"factorlab/internal/config"
	"factorlab/internal/domain"
	"factorlab/internal/executor"
	"factorlab/internal/gemini"
	"factorlab/internal/marketdata"
	"factorlab/internal/store"
	"factorlab/internal/util"
)

func main() {
	formula := flag.String("formula", "", "alpha factor formula (required)")
	benchmark := flag.String("benchmark", "BTC-USD", "benchmark symbol: BTC-USD, ETH-USD, \"S&P 500\", \"CSI 300\"")
	buyThreshold := flag.String("buy", "", "explicit buy threshold on the z-scored factor")
	sellThreshold := flag.String("sell", "", "explicit sell threshold on the z-scored factor")
	asJSON := flag.Bool("json", false, "print the full result as JSON")
	flag.Parse()

	if *formula == "" {
		fmt.Fprintln(os.Stderr, "usage: factorlab-backtest -formula <expr> [-benchmark BTC-USD] [-buy X] [-sell Y] [-json]")
		os.Exit(1)
	}

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

	cache := store.NewParquetCache(cfg.Storage.DataDir)
	alpaca := marketdata.NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, logger)
	provider := marketdata.NewCachingProvider(alpaca, cache, logger)

	var codegen backtest.CodeGenerator
	if len(cfg.Gemini.APIKeys) > 0 {
		g, err := gemini.NewClient(cfg.Gemini.APIKeys, cfg.Gemini.Model, logger)
		if err != nil {
			log.Fatalf("failed to create gemini client: %v", err)
		}
		codegen = g
	}
	var factorExec backtest.FactorExecutor
	if cfg.Executor.URL != "" {
		factorExec = executor.NewClient(cfg.Executor.URL, cfg.Executor.Timeout(), logger)
	}

	runner := backtest.NewRunner(provider, codegen, factorExec, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := runner.Run(ctx, domain.BacktestRequest{
		Formula:         *formula,
		BenchmarkSymbol: *benchmark,
		BuyThreshold:    *buyThreshold,
		SellThreshold:   *sellThreshold,
	})
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			log.Fatalf("encoding result: %v", err)
		}
		return
	}

	m := result.Metrics
	fmt.Printf("benchmark:          %s\n", m.BenchmarkName)
	fmt.Printf("days:               %d\n", len(result.Data))
	fmt.Printf("sharpe ratio:       %.4f\n", m.SharpeRatio)
	fmt.Printf("annualized return:  %.2f%%\n", m.AnnualizedReturn*100)
	fmt.Printf("max drawdown:       %.2f%%\n", m.MaxDrawdown*100)
	fmt.Printf("volatility:         %.2f%%\n", m.Volatility*100)
	fmt.Printf("win rate:           %.2f%%\n", m.WinRate*100)
	if m.IC != nil {
		fmt.Printf("information coeff:  %.4f\n", *m.IC)
	}

	fmt.Printf("\ntrades (%d):\n", len(result.Trades))
	for _, tr := range result.Trades {
		fmt.Printf("  %s  %-4s  price %.4f  qty %.6f  amount %.4f\n",
			tr.Date, tr.Type, tr.Price, tr.Quantity, tr.Amount)
	}
}
