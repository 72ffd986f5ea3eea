package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestResolveBenchmark(t *testing.T) {
	tests := []struct {
		symbol  string
		ticker  string
		days    float64
		wantErr bool
	}{
		{"BTC-USD", "BTC/USD", 365, false},
		{"ETH-USD", "ETH/USD", 365, false},
		{"S&P 500", "SPY", 252, false},
		{"CSI 300", "ASHR", 252, false},
		{"DOGE-USD", "", 0, true},
		{"", "", 0, true},
	}

	for _, tt := range tests {
		b, err := ResolveBenchmark(tt.symbol)
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedBenchmark) {
				t.Errorf("ResolveBenchmark(%q) error = %v, want ErrUnsupportedBenchmark", tt.symbol, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ResolveBenchmark(%q) unexpected error: %v", tt.symbol, err)
			continue
		}
		if b.Ticker != tt.ticker {
			t.Errorf("ResolveBenchmark(%q).Ticker = %q, want %q", tt.symbol, b.Ticker, tt.ticker)
		}
		if b.TradingDaysPerYear() != tt.days {
			t.Errorf("ResolveBenchmark(%q).TradingDaysPerYear() = %v, want %v", tt.symbol, b.TradingDaysPerYear(), tt.days)
		}
	}
}

func TestSignalPointJSONShape(t *testing.T) {
	// Signal must be omitted entirely on days without a transition.
	sp := SignalPoint{
		Date:                "2024-06-03",
		StrategyReturn:      0.01,
		BenchmarkReturn:     0.02,
		CumulativeStrategy:  101,
		CumulativeBenchmark: 102,
	}
	raw, err := json.Marshal(sp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), "signal") {
		t.Errorf("nil signal should be omitted from JSON: %s", raw)
	}

	buy := SignalBuy
	sp.Signal = &buy
	raw, _ = json.Marshal(sp)
	if !strings.Contains(string(raw), `"signal":"BUY"`) {
		t.Errorf("signal not serialized: %s", raw)
	}
}

func TestMetricsICOmitted(t *testing.T) {
	m := BacktestMetrics{BenchmarkName: "BTC-USD"}
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), `"ic"`) {
		t.Errorf("nil IC should be omitted from JSON: %s", raw)
	}
}

func TestExternalServiceError(t *testing.T) {
	err := &ExternalServiceError{Service: "executor", Message: "boom: stack trace"}
	if got := err.Error(); got != "executor: boom: stack trace" {
		t.Errorf("Error() = %q", got)
	}

	var target *ExternalServiceError
	wrapped := errors.New("outer")
	if errors.As(wrapped, &target) {
		t.Error("errors.As matched a plain error")
	}
}
