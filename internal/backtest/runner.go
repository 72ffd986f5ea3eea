package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"factorlab/internal/domain"
	"factorlab/internal/factor"
)

// DefaultLookbackDays is the historical window fetched per run: one year of
// daily bars.
const DefaultLookbackDays = 365

// PriceProvider fetches an ordered daily price series for a concrete ticker.
type PriceProvider interface {
	Fetch(ctx context.Context, ticker string, class domain.AssetClass, lookbackDays int) ([]domain.PricePoint, error)
}

// CodeGenerator turns a formula into an executable factor-code snippet.
type CodeGenerator interface {
	GenerateFactorCode(ctx context.Context, formula string) (string, error)
}

// FactorExecutor runs factor code against a price frame in an isolated
// sandbox and returns one numeric factor value per day.
type FactorExecutor interface {
	Execute(ctx context.Context, code string, prices []domain.PricePoint, formula string) ([]float64, error)
}

// Runner wires the collaborators of one backtest run. Each run is a pure,
// synchronous computation over its own copy of inputs; a Runner is safe for
// concurrent use.
type Runner struct {
	provider     PriceProvider
	codegen      CodeGenerator  // nil disables code generation
	executor     FactorExecutor // nil forces the scripted fallback
	lookbackDays int
	log          *slog.Logger
}

// NewRunner creates a Runner. codegen and executor may be nil; without an
// executor every run uses the scripted fallback signal source.
func NewRunner(provider PriceProvider, codegen CodeGenerator, executor FactorExecutor, log *slog.Logger) *Runner {
	return &Runner{
		provider:     provider,
		codegen:      codegen,
		executor:     executor,
		lookbackDays: DefaultLookbackDays,
		log:          log.With("component", "backtest"),
	}
}

// Run executes one backtest. Fatal failures (unresolvable benchmark, no
// price data, factor evaluation failure, external service failure) abort the
// run with no partial result.
func (r *Runner) Run(ctx context.Context, req domain.BacktestRequest) (*domain.BacktestResult, error) {
	runID := uuid.NewString()[:8]
	log := r.log.With("run", runID)

	if strings.TrimSpace(req.Formula) == "" {
		return nil, fmt.Errorf("formula is required")
	}

	bench, err := domain.ResolveBenchmark(req.BenchmarkSymbol)
	if err != nil {
		return nil, err
	}

	prices, err := r.provider.Fetch(ctx, bench.Ticker, bench.Class, r.lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", bench.Ticker, err)
	}
	log.Info("price data loaded", "benchmark", bench.Name, "points", len(prices))

	code := req.FactorCode
	if code == "" && r.codegen != nil && r.executor != nil {
		code, err = r.codegen.GenerateFactorCode(ctx, req.Formula)
		if err != nil {
			return nil, err
		}
		log.Info("factor code generated", "bytes", len(code))
	}

	var points []domain.SignalPoint
	var ic *float64

	if code != "" && r.executor != nil {
		raw, err := r.executor.Execute(ctx, code, prices, req.Formula)
		if err != nil {
			return nil, err
		}
		if len(raw) != len(prices) {
			return nil, &domain.FactorEvaluationError{
				Formula: req.Formula,
				Reason:  fmt.Sprintf("factor column has %d values for %d days", len(raw), len(prices)),
			}
		}

		values := factor.Sanitize(raw)
		z := factor.ZScore(values)
		levels := factor.ResolveLevels(z, req.BuyThreshold, req.SellThreshold)
		points = Simulate(prices, z, levels)
		ic = InformationCoefficient(values, prices)
	} else {
		// Scripted fallback: the signal is a pure function of
		// (formula, date), so overlapping windows reproduce identically.
		dates := make([]string, len(prices))
		for i, p := range prices {
			dates[i] = p.Date
		}
		scores := factor.ScriptedScores(req.Formula, dates)
		levels := factor.Levels{Buy: factor.ScriptedBuyCutoff, Sell: factor.ScriptedSellCutoff}
		points = Simulate(prices, scores, levels)
		log.Info("scripted fallback mode", "formula_len", len(req.Formula))
	}

	metrics := ComputeMetrics(points, bench)
	metrics.IC = ic
	trades := BuildTrades(points, prices)

	log.Info("backtest completed",
		"points", len(points),
		"trades", len(trades),
		"sharpe", metrics.SharpeRatio,
		"maxDrawdown", metrics.MaxDrawdown,
	)

	return &domain.BacktestResult{
		Data:          points,
		Metrics:       metrics,
		Trades:        trades,
		GeneratedCode: code,
	}, nil
}
