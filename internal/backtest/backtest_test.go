package backtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"factorlab/internal/domain"
	"factorlab/internal/factor"
	"factorlab/internal/util"
)

func pricePoints(closes ...float64) []domain.PricePoint {
	days := []string{
		"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05", "2024-01-08",
		"2024-01-09", "2024-01-10", "2024-01-11", "2024-01-12", "2024-01-15",
	}
	pts := make([]domain.PricePoint, len(closes))
	for i, c := range closes {
		pts[i] = domain.PricePoint{Date: days[i], Close: c}
	}
	return pts
}

func TestSimulatePointCount(t *testing.T) {
	prices := pricePoints(100, 101, 102, 103, 104)
	points := Simulate(prices, make([]float64, 5), factor.Levels{Buy: 1, Sell: -1})
	if len(points) != len(prices)-1 {
		t.Fatalf("got %d points, want %d", len(points), len(prices)-1)
	}

	if got := Simulate(pricePoints(100), []float64{0}, factor.Levels{}); len(got) != 0 {
		t.Errorf("single price point should yield no SignalPoints, got %d", len(got))
	}
}

func TestSimulateScenario(t *testing.T) {
	// Three days [100, 110, 99]; the signal crosses the buy level on day 2
	// and the sell level on day 3.
	prices := pricePoints(100, 110, 99)
	signal := []float64{0, 1, -1}
	levels := factor.Levels{Buy: 0.5, Sell: -0.5}

	points := Simulate(prices, signal, levels)
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}

	// Day 2: benchmark +10%, strategy still flat, BUY fires at the close.
	p := points[0]
	if math.Abs(p.BenchmarkReturn-0.1) > 1e-12 || p.StrategyReturn != 0 {
		t.Errorf("day 2 returns = %+v", p)
	}
	if p.Signal == nil || *p.Signal != domain.SignalBuy {
		t.Fatalf("day 2 signal = %v, want BUY", p.Signal)
	}
	if math.Abs(p.CumulativeStrategy-100) > 1e-9 {
		t.Errorf("day 2 cumulativeStrategy = %v, want 100", p.CumulativeStrategy)
	}

	// Day 3: position rides the -10% move, SELL fires at the close.
	p = points[1]
	if math.Abs(p.StrategyReturn-(-0.1)) > 1e-12 {
		t.Errorf("day 3 strategyReturn = %v, want -0.1", p.StrategyReturn)
	}
	if p.Signal == nil || *p.Signal != domain.SignalSell {
		t.Fatalf("day 3 signal = %v, want SELL", p.Signal)
	}
	if math.Abs(p.CumulativeStrategy-90) > 1e-9 {
		t.Errorf("day 3 cumulativeStrategy = %v, want 90", p.CumulativeStrategy)
	}

	trades := BuildTrades(points, prices)
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}
	if trades[0].Type != domain.SignalBuy || trades[0].Price != 110 {
		t.Errorf("trade 0 = %+v", trades[0])
	}
	if math.Abs(trades[0].Quantity-100.0/110.0) > 1e-9 {
		t.Errorf("buy quantity = %v, want %v", trades[0].Quantity, 100.0/110.0)
	}
	if trades[1].Type != domain.SignalSell || trades[1].Price != 99 {
		t.Errorf("trade 1 = %+v", trades[1])
	}
	if math.Abs(trades[1].Amount-90) > 1e-6 {
		t.Errorf("final cash = %v, want ~90", trades[1].Amount)
	}
}

func TestSimulateZeroDenominator(t *testing.T) {
	prices := pricePoints(0, 100, 110)
	points := Simulate(prices, make([]float64, 3), factor.Levels{Buy: 1, Sell: -1})
	if points[0].BenchmarkReturn != 0 {
		t.Errorf("benchmark return over zero prior close = %v, want 0", points[0].BenchmarkReturn)
	}
	for _, p := range points {
		if math.IsNaN(p.StrategyReturn) || math.IsInf(p.StrategyReturn, 0) {
			t.Errorf("non-finite strategy return: %+v", p)
		}
	}
}

func TestFlatSeriesMetrics(t *testing.T) {
	prices := pricePoints(50, 50, 50, 50, 50, 50)
	points := Simulate(prices, make([]float64, 6), factor.Levels{Buy: 1, Sell: -1})
	bench, _ := domain.ResolveBenchmark("BTC-USD")

	m := ComputeMetrics(points, bench)
	if m.Volatility != 0 {
		t.Errorf("volatility = %v, want 0", m.Volatility)
	}
	if math.IsNaN(m.SharpeRatio) || math.IsInf(m.SharpeRatio, 0) {
		t.Errorf("sharpe must be finite under the epsilon floor, got %v", m.SharpeRatio)
	}
	if m.MaxDrawdown != 0 {
		t.Errorf("maxDrawdown = %v, want 0", m.MaxDrawdown)
	}
	if m.WinRate != 0 {
		t.Errorf("winRate = %v, want 0", m.WinRate)
	}
}

func TestMetricsKnownValues(t *testing.T) {
	returns := []float64{0.01, 0.02, -0.01, 0.03, 0.005}
	points := make([]domain.SignalPoint, len(returns))
	cum := 100.0
	for i, r := range returns {
		cum *= 1 + r
		points[i] = domain.SignalPoint{StrategyReturn: r, CumulativeStrategy: cum}
	}
	bench, _ := domain.ResolveBenchmark("S&P 500")

	m := ComputeMetrics(points, bench)

	mean := 0.011
	var sq float64
	for _, r := range returns {
		sq += (r - mean) * (r - mean)
	}
	std := math.Sqrt(sq / float64(len(returns)))

	wantVol := std * math.Sqrt(252)
	if math.Abs(m.Volatility-wantVol) > 1e-12 {
		t.Errorf("volatility = %v, want %v", m.Volatility, wantVol)
	}
	wantSharpe := mean * 252 / wantVol
	if math.Abs(m.SharpeRatio-wantSharpe) > 1e-9 {
		t.Errorf("sharpe = %v, want %v", m.SharpeRatio, wantSharpe)
	}
	wantAnn := math.Pow(cum/100, 252.0/5.0) - 1
	if math.Abs(m.AnnualizedReturn-wantAnn) > 1e-12 {
		t.Errorf("annualizedReturn = %v, want %v", m.AnnualizedReturn, wantAnn)
	}
	if m.WinRate != 0.8 {
		t.Errorf("winRate = %v, want 0.8", m.WinRate)
	}
}

func TestMaxDrawdown(t *testing.T) {
	curve := []float64{100, 120, 90, 110, 80}
	points := make([]domain.SignalPoint, len(curve))
	for i, v := range curve {
		points[i] = domain.SignalPoint{CumulativeStrategy: v}
	}
	bench, _ := domain.ResolveBenchmark("BTC-USD")

	m := ComputeMetrics(points, bench)
	want := (120.0 - 80.0) / 120.0
	if math.Abs(m.MaxDrawdown-want) > 1e-12 {
		t.Errorf("maxDrawdown = %v, want %v", m.MaxDrawdown, want)
	}

	// Non-decreasing curve drawns down by exactly zero.
	for i := range points {
		points[i].CumulativeStrategy = 100 + float64(i)
	}
	if m := ComputeMetrics(points, bench); m.MaxDrawdown != 0 {
		t.Errorf("maxDrawdown on rising curve = %v, want 0", m.MaxDrawdown)
	}
}

func TestInformationCoefficient(t *testing.T) {
	// Forward returns strictly increase with the factor: perfect rank
	// correlation.
	prices := pricePoints(100, 101, 103, 106, 110)
	fac := []float64{1, 2, 3, 4, 0}
	ic := InformationCoefficient(fac, prices)
	if ic == nil {
		t.Fatal("IC should be computable")
	}
	if math.Abs(*ic-1) > 1e-12 {
		t.Errorf("IC = %v, want 1", *ic)
	}

	// Constant factor has no rank variance.
	if got := InformationCoefficient([]float64{5, 5, 5, 5, 5}, prices); got != nil {
		t.Errorf("IC on constant factor = %v, want nil", *got)
	}
	if got := InformationCoefficient([]float64{1}, pricePoints(100)); got != nil {
		t.Error("IC on single point should be nil")
	}
}

func TestBuildTradesDefensive(t *testing.T) {
	buy, sell := domain.SignalBuy, domain.SignalSell
	prices := pricePoints(100, 110, 120, 130)
	points := []domain.SignalPoint{
		{Date: "2024-01-03", Signal: &buy},
		{Date: "2024-01-04", Signal: &buy}, // duplicate BUY: must be ignored
		{Date: "2024-01-05", Signal: &sell},
	}

	trades := BuildTrades(points, prices)
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}
	if trades[0].Type != domain.SignalBuy || trades[1].Type != domain.SignalSell {
		t.Errorf("trades do not alternate BUY, SELL: %+v", trades)
	}

	// SELL while flat is a no-op.
	trades = BuildTrades([]domain.SignalPoint{{Date: "2024-01-03", Signal: &sell}}, prices)
	if len(trades) != 0 {
		t.Errorf("SELL while flat produced %d trades", len(trades))
	}
}

func TestBuildTradesForceClose(t *testing.T) {
	buy := domain.SignalBuy
	prices := pricePoints(100, 110, 120)
	points := []domain.SignalPoint{
		{Date: "2024-01-03", Signal: &buy},
		{Date: "2024-01-04"},
	}

	trades := BuildTrades(points, prices)
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2 (BUY + synthetic SELL)", len(trades))
	}
	last := trades[1]
	if last.Type != domain.SignalSell || last.Date != "2024-01-04" || last.Price != 120 {
		t.Errorf("synthetic close = %+v", last)
	}
	if last.Quantity != trades[0].Quantity {
		t.Errorf("synthetic SELL quantity %v differs from BUY quantity %v", last.Quantity, trades[0].Quantity)
	}
}

// --- Runner ---

type stubProvider struct {
	prices []domain.PricePoint
	err    error
}

func (s *stubProvider) Fetch(_ context.Context, _ string, _ domain.AssetClass, _ int) ([]domain.PricePoint, error) {
	return s.prices, s.err
}

type stubExecutor struct {
	factor []float64
	err    error
}

func (s *stubExecutor) Execute(_ context.Context, _ string, _ []domain.PricePoint, _ string) ([]float64, error) {
	return s.factor, s.err
}

type stubCodegen struct{ code string }

func (s *stubCodegen) GenerateFactorCode(_ context.Context, _ string) (string, error) {
	return s.code, nil
}

func TestRunnerScriptedIdempotent(t *testing.T) {
	provider := &stubProvider{prices: pricePoints(100, 105, 103, 108, 104, 109, 111, 107, 112, 115)}
	r := NewRunner(provider, nil, nil, util.NewLogger("error"))

	req := domain.BacktestRequest{Formula: "momentum(close, 5)", BenchmarkSymbol: "BTC-USD"}

	first, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Error("identical scripted runs must be byte-identical")
	}

	if first.Metrics.IC != nil {
		t.Error("scripted path must not report an IC")
	}
	if len(first.Data) != len(provider.prices)-1 {
		t.Errorf("got %d points, want %d", len(first.Data), len(provider.prices)-1)
	}
}

func TestRunnerExecutorPath(t *testing.T) {
	prices := pricePoints(100, 102, 101, 105, 104, 108)
	provider := &stubProvider{prices: prices}
	exec := &stubExecutor{factor: []float64{0.1, 0.4, 0.2, 0.9, 0.3, 0.8}}
	gen := &stubCodegen{code: "df['factor'] = df['close'].pct_change()"}
	r := NewRunner(provider, gen, exec, util.NewLogger("error"))

	res, err := r.Run(context.Background(), domain.BacktestRequest{
		Formula:         "close momentum",
		BenchmarkSymbol: "S&P 500",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.GeneratedCode != gen.code {
		t.Errorf("generated code not attached: %q", res.GeneratedCode)
	}
	if res.Metrics.IC == nil {
		t.Error("executor path should compute an IC")
	}
	if res.Metrics.BenchmarkName != "S&P 500" {
		t.Errorf("benchmarkName = %q", res.Metrics.BenchmarkName)
	}
}

func TestRunnerFactorLengthMismatch(t *testing.T) {
	provider := &stubProvider{prices: pricePoints(100, 102, 101)}
	exec := &stubExecutor{factor: []float64{1, 2}}
	r := NewRunner(provider, nil, exec, util.NewLogger("error"))

	_, err := r.Run(context.Background(), domain.BacktestRequest{
		Formula:         "x",
		FactorCode:      "df['factor'] = 1",
		BenchmarkSymbol: "BTC-USD",
	})
	var fe *domain.FactorEvaluationError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want FactorEvaluationError", err)
	}
}

func TestRunnerUnsupportedBenchmark(t *testing.T) {
	r := NewRunner(&stubProvider{}, nil, nil, util.NewLogger("error"))
	_, err := r.Run(context.Background(), domain.BacktestRequest{Formula: "x", BenchmarkSymbol: "FTSE 100"})
	if !errors.Is(err, domain.ErrUnsupportedBenchmark) {
		t.Fatalf("error = %v, want ErrUnsupportedBenchmark", err)
	}
}

func TestRunnerDataUnavailable(t *testing.T) {
	r := NewRunner(&stubProvider{err: domain.ErrDataUnavailable}, nil, nil, util.NewLogger("error"))
	_, err := r.Run(context.Background(), domain.BacktestRequest{Formula: "x", BenchmarkSymbol: "BTC-USD"})
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Fatalf("error = %v, want ErrDataUnavailable", err)
	}
}
