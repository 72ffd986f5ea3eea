package domain

import "fmt"

// AssetClass selects the trading-day convention for annualization.
type AssetClass string

const (
	// AssetClassCrypto trades continuously: 365 days per year.
	AssetClassCrypto AssetClass = "crypto"
	// AssetClassEquity trades on exchange sessions: 252 days per year.
	AssetClassEquity AssetClass = "equity"
)

// Benchmark is a resolved passive buy-and-hold reference series.
type Benchmark struct {
	Name   string     // display name, e.g. "S&P 500"
	Ticker string     // concrete market ticker for the data provider
	Class  AssetClass // drives the annualization factor
}

// TradingDaysPerYear returns the annualization factor for the benchmark's
// asset class.
func (b Benchmark) TradingDaysPerYear() float64 {
	if b.Class == AssetClassCrypto {
		return 365
	}
	return 252
}

// benchmarkTable maps the benchmark symbols accepted on the wire to their
// concrete tickers. Equity indices map to liquid US-listed proxies so a
// single stocks+crypto provider can serve every entry.
var benchmarkTable = map[string]Benchmark{
	"BTC-USD": {Name: "BTC-USD", Ticker: "BTC/USD", Class: AssetClassCrypto},
	"ETH-USD": {Name: "ETH-USD", Ticker: "ETH/USD", Class: AssetClassCrypto},
	"S&P 500": {Name: "S&P 500", Ticker: "SPY", Class: AssetClassEquity},
	"CSI 300": {Name: "CSI 300", Ticker: "ASHR", Class: AssetClassEquity},
}

// ResolveBenchmark maps a wire benchmark symbol to a concrete Benchmark.
// Unknown symbols fail with ErrUnsupportedBenchmark.
func ResolveBenchmark(symbol string) (Benchmark, error) {
	b, ok := benchmarkTable[symbol]
	if !ok {
		return Benchmark{}, fmt.Errorf("%w: %q", ErrUnsupportedBenchmark, symbol)
	}
	return b, nil
}

// Benchmarks returns the accepted wire symbols, for validation messages.
func Benchmarks() []string {
	return []string{"BTC-USD", "ETH-USD", "S&P 500", "CSI 300"}
}
