package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"factorlab/internal/auth"
	"factorlab/internal/backtest"
	"factorlab/internal/config"
	"factorlab/internal/executor"
	"factorlab/internal/gemini"
	"factorlab/internal/httpapi"
	"factorlab/internal/marketdata"
	"factorlab/internal/store"
	"factorlab/internal/util"
)

func main() {
	// .env is optional; real deployments set env vars directly.
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

	sqlStore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open sqlite store: %v", err)
	}
	defer sqlStore.Close()

	cache := store.NewParquetCache(cfg.Storage.DataDir)
	alpaca := marketdata.NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, logger)
	provider := marketdata.NewCachingProvider(alpaca, cache, logger)

	var generator *gemini.Client
	if len(cfg.Gemini.APIKeys) > 0 {
		generator, err = gemini.NewClient(cfg.Gemini.APIKeys, cfg.Gemini.Model, logger)
		if err != nil {
			log.Fatalf("failed to create gemini client: %v", err)
		}
	} else {
		logger.Warn("no Gemini API keys configured; generation disabled, backtests use the scripted signal source")
	}

	var sandbox *executor.Client
	if cfg.Executor.URL != "" {
		sandbox = executor.NewClient(cfg.Executor.URL, cfg.Executor.Timeout(), logger)
	} else {
		logger.Warn("no executor URL configured; backtests use the scripted signal source")
	}

	var github *auth.GitHubClient
	if cfg.GitHub.ClientID != "" {
		github = auth.NewGitHubClient(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, logger)
	}

	// Assigning a nil concrete client to an interface would make the
	// interface non-nil, so assign only when configured.
	var codegen backtest.CodeGenerator
	if generator != nil {
		codegen = generator
	}
	var factorExec backtest.FactorExecutor
	if sandbox != nil {
		factorExec = sandbox
	}
	runner := backtest.NewRunner(provider, codegen, factorExec, logger)

	var factorGen httpapi.FactorGenerator
	if generator != nil {
		factorGen = generator
	}
	var authn httpapi.Authenticator
	if github != nil {
		authn = github
	}
	api := httpapi.NewServer(runner, provider, factorGen, authn, sqlStore, sqlStore, sqlStore, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("factorlab-server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
