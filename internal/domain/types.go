// Package domain defines the core value objects shared across factorlab:
// price series, signal points, trades, metrics, alpha factors, and users.
// Every type here is created fresh per backtest run and never mutated after
// construction.
package domain

// DateLayout is the wire format for all calendar dates.
const DateLayout = "2006-01-02"

// Signal direction constants.
const (
	SignalBuy  = "BUY"
	SignalSell = "SELL"
)

// PricePoint is a single daily OHLCV bar. Only Date and Close are required;
// the remaining fields may be absent depending on the provider. The sequence
// is ordered by ascending date with one entry per trading day. Gaps
// (non-trading days) are simply absent, never interpolated.
type PricePoint struct {
	Date   string   `json:"date"`
	Close  float64  `json:"close"`
	Open   *float64 `json:"open,omitempty"`
	High   *float64 `json:"high,omitempty"`
	Low    *float64 `json:"low,omitempty"`
	Volume *float64 `json:"volume,omitempty"`
}

// SignalPoint is one day of backtest output. The first day of the price
// series produces no SignalPoint (returns require a prior close), so a run
// over N price points yields N-1 of these. CumulativeStrategy and
// CumulativeBenchmark are both indexed to 100 before the first point.
type SignalPoint struct {
	Date                string  `json:"date"`
	StrategyReturn      float64 `json:"strategyReturn"`
	BenchmarkReturn     float64 `json:"benchmarkReturn"`
	CumulativeStrategy  float64 `json:"cumulativeStrategy"`
	CumulativeBenchmark float64 `json:"cumulativeBenchmark"`
	Signal              *string `json:"signal,omitempty"`
}

// Trade is one executed leg of the long-only ledger. Trades strictly
// alternate BUY, SELL, BUY, ... starting with BUY; an open position at the
// end of the series is force-closed with a synthetic SELL at the last
// available close.
type Trade struct {
	Date     string  `json:"date"`
	Type     string  `json:"type"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Amount   float64 `json:"amount"`
}

// BacktestMetrics summarizes a run. All percentage-scale values are
// fractions (0.12 means 12%). IC is nil when the run could not compute it
// (e.g. the scripted fallback path).
type BacktestMetrics struct {
	SharpeRatio      float64  `json:"sharpeRatio"`
	AnnualizedReturn float64  `json:"annualizedReturn"`
	MaxDrawdown      float64  `json:"maxDrawdown"`
	Volatility       float64  `json:"volatility"`
	WinRate          float64  `json:"winRate"`
	BenchmarkName    string   `json:"benchmarkName"`
	IC               *float64 `json:"ic,omitempty"`
}

// BacktestResult is the unit of output and of persistence.
type BacktestResult struct {
	Data          []SignalPoint   `json:"data"`
	Metrics       BacktestMetrics `json:"metrics"`
	Trades        []Trade         `json:"trades"`
	GeneratedCode string          `json:"generatedCode,omitempty"`
}

// Source is a grounding reference attached to a generated factor.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// AlphaFactor is a user-owned factor definition, either hand-written or
// produced by the generation service.
type AlphaFactor struct {
	ID            string   `json:"id"`
	UserID        string   `json:"userId,omitempty"`
	Name          string   `json:"name"`
	Formula       string   `json:"formula"`
	Description   string   `json:"description"`
	Intuition     string   `json:"intuition"`
	Category      string   `json:"category"`
	CreatedAt     int64    `json:"createdAt"` // Unix ms
	Sources       []Source `json:"sources,omitempty"`
	LastBenchmark string   `json:"lastBenchmark,omitempty"`
	BuyThreshold  string   `json:"buyThreshold,omitempty"`
	SellThreshold string   `json:"sellThreshold,omitempty"`
	FactorCode    string   `json:"factorCode,omitempty"`
}

// User is a verified identity returned by the auth provider.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
	Provider string `json:"provider"`
}

// GenerationConfig steers factor generation.
type GenerationConfig struct {
	InvestmentUniverse string   `json:"investmentUniverse"`
	TimeHorizon        string   `json:"timeHorizon"`
	RiskTolerance      string   `json:"riskTolerance"`
	TargetMetrics      []string `json:"targetMetrics"`
}

// BacktestRequest is the input contract for one backtest run.
type BacktestRequest struct {
	Formula         string `json:"formula"`
	FactorCode      string `json:"factorCode,omitempty"`
	BenchmarkSymbol string `json:"benchmarkSymbol"`
	BuyThreshold    string `json:"buyThreshold,omitempty"`
	SellThreshold   string `json:"sellThreshold,omitempty"`
}
