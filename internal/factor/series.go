// Package factor turns a raw per-day factor column into the normalized
// series and buy/sell levels the simulator consumes.
package factor

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Sanitize returns a copy of values with every non-finite entry (NaN, ±Inf)
// replaced by 0. This is deliberate policy, not silent failure: missing
// factor history (a 14-day indicator on day 5) must not abort the run.
func Sanitize(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = 0
			continue
		}
		out[i] = v
	}
	return out
}

// ZScore standardizes the series using the population standard deviation.
// A zero-variance series maps to all zeros rather than dividing by zero.
func ZScore(values []float64) []float64 {
	n := len(values)
	z := make([]float64, n)
	if n == 0 {
		return z
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(n))
	if std == 0 {
		return z
	}

	for i, v := range values {
		z[i] = (v - mean) / std
	}
	return z
}

// Quantile returns the q-th quantile of values using linear interpolation
// between closest ranks. q is clamped to [0, 1].
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Default quantiles used when the caller supplies no thresholds.
const (
	defaultBuyQuantile  = 0.8
	defaultSellQuantile = 0.2
)

// Levels holds the resolved buy/sell crossing levels on the z-scored series.
type Levels struct {
	Buy  float64
	Sell float64
}

// ResolveLevels picks the signal levels for a z-scored series. Both
// thresholds must be present and parse as numbers to be honored; otherwise
// both fall back to the 0.8/0.2 quantiles of the series.
func ResolveLevels(z []float64, buyThreshold, sellThreshold string) Levels {
	buyStr := strings.TrimSpace(buyThreshold)
	sellStr := strings.TrimSpace(sellThreshold)
	if buyStr != "" && sellStr != "" {
		buy, errB := strconv.ParseFloat(buyStr, 64)
		sell, errS := strconv.ParseFloat(sellStr, 64)
		if errB == nil && errS == nil {
			return Levels{Buy: buy, Sell: sell}
		}
	}
	return Levels{
		Buy:  Quantile(z, defaultBuyQuantile),
		Sell: Quantile(z, defaultSellQuantile),
	}
}
