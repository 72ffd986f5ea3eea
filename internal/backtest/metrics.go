package backtest

import (
	"math"
	"sort"

	"factorlab/internal/domain"
)

// sharpeEpsilon floors the Sharpe denominator when the return series has
// exactly zero variance. Explicit policy: a backtest always completes with
// well-formed numbers, so a flat strategy reports a finite Sharpe instead of
// dividing by zero.
const sharpeEpsilon = 1e-9

// ComputeMetrics reduces the SignalPoint sequence into summary statistics.
// The benchmark's asset class selects the trading-day convention: 365/yr for
// continuously-traded instruments, 252/yr for exchange-traded ones. All
// percentage-scale values are fractions.
func ComputeMetrics(points []domain.SignalPoint, bench domain.Benchmark) domain.BacktestMetrics {
	m := domain.BacktestMetrics{BenchmarkName: bench.Name}
	n := len(points)
	if n == 0 {
		return m
	}

	annFactor := bench.TradingDaysPerYear()

	var sum float64
	for _, p := range points {
		sum += p.StrategyReturn
	}
	mean := sum / float64(n)

	var sq float64
	for _, p := range points {
		d := p.StrategyReturn - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(n))

	m.Volatility = std * math.Sqrt(annFactor)

	denom := std * math.Sqrt(annFactor)
	if denom == 0 {
		denom = sharpeEpsilon
	}
	m.SharpeRatio = mean * annFactor / denom

	final := points[n-1].CumulativeStrategy
	m.AnnualizedReturn = math.Pow(final/baseIndex, annFactor/float64(n)) - 1

	// Running peak starts at -Inf so the first observation always sets it.
	peak := math.Inf(-1)
	maxDD := 0.0
	for _, p := range points {
		if p.CumulativeStrategy > peak {
			peak = p.CumulativeStrategy
		}
		if peak > 0 {
			if dd := (peak - p.CumulativeStrategy) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	m.MaxDrawdown = maxDD

	wins := 0
	for _, p := range points {
		if p.StrategyReturn > 0 {
			wins++
		}
	}
	m.WinRate = float64(wins) / float64(n)

	m.SharpeRatio = cleanNum(m.SharpeRatio)
	m.AnnualizedReturn = cleanNum(m.AnnualizedReturn)
	m.MaxDrawdown = cleanNum(m.MaxDrawdown)
	m.Volatility = cleanNum(m.Volatility)
	m.WinRate = cleanNum(m.WinRate)

	return m
}

// InformationCoefficient computes the Spearman rank correlation between the
// factor value on day t and the forward close-to-close return from t to t+1.
// It returns nil when fewer than two valid pairs exist or when either series
// has zero rank variance; callers treat IC as optional.
func InformationCoefficient(factorValues []float64, prices []domain.PricePoint) *float64 {
	var fs, rs []float64
	for t := 0; t+1 < len(prices) && t < len(factorValues); t++ {
		if prices[t].Close == 0 {
			continue
		}
		fwd := prices[t+1].Close/prices[t].Close - 1
		if math.IsNaN(fwd) || math.IsInf(fwd, 0) {
			continue
		}
		fs = append(fs, factorValues[t])
		rs = append(rs, fwd)
	}
	if len(fs) < 2 {
		return nil
	}

	ic := pearson(ranks(fs), ranks(rs))
	if math.IsNaN(ic) || math.IsInf(ic, 0) {
		return nil
	}
	return &ic
}

// ranks assigns average ranks to tied values (fractional ranking).
func ranks(values []float64) []float64 {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	out := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		// Ranks are 1-based; ties share the average of their positions.
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

func pearson(x, y []float64) float64 {
	n := float64(len(x))
	var sx, sy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
	}
	mx, my := sx/n, sy/n

	var cov, vx, vy float64
	for i := range x {
		dx := x[i] - mx
		dy := y[i] - my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(vx*vy)
}

// cleanNum clamps non-finite values to 0 so every metric serializes as a
// finite IEEE-754 double.
func cleanNum(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
