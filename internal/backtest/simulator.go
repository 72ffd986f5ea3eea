// Package backtest implements the simulation and performance-metrics engine:
// signal generation over a factor series, a long-only position state machine,
// summary statistics, and the discrete trade ledger.
package backtest

import (
	"factorlab/internal/domain"
	"factorlab/internal/factor"
)

// baseIndex is the cumulative-curve base: both equity curves are indexed to
// 100 before the first SignalPoint, and the simulated account starts with
// 100 units of cash.
const baseIndex = 100.0

// Simulate replays the price series through the FLAT/LONG state machine.
//
// signal holds one value per price point (a z-scored factor or a scripted
// score); a crossing above levels.Buy while flat converts all cash to units
// at that day's close, a crossing below levels.Sell while long converts all
// units back to cash. At most one transition fires per day. The first price
// point only establishes the base, so N price points yield N-1 SignalPoints.
//
// Per-day strategy return is the fractional change of total account value
// (cash + units x close); benchmark return is the close-to-close change of
// the raw series. A zero denominator yields a return of 0, never NaN or Inf.
func Simulate(prices []domain.PricePoint, signal []float64, levels factor.Levels) []domain.SignalPoint {
	points := make([]domain.SignalPoint, 0, max(len(prices)-1, 0))
	if len(prices) < 2 {
		return points
	}

	cash := baseIndex
	units := 0.0
	cumStrategy := baseIndex
	cumBenchmark := baseIndex

	for t := 1; t < len(prices); t++ {
		prevClose := prices[t-1].Close
		close := prices[t].Close

		benchReturn := 0.0
		if prevClose != 0 {
			benchReturn = close/prevClose - 1
		}

		prevValue := cash + units*prevClose
		stratReturn := 0.0
		if prevValue != 0 {
			stratReturn = (cash + units*close - prevValue) / prevValue
		}

		cumStrategy *= 1 + stratReturn
		cumBenchmark *= 1 + benchReturn

		var sig *string
		if close > 0 {
			switch {
			case units == 0 && signal[t] > levels.Buy:
				units = cash / close
				cash = 0
				s := domain.SignalBuy
				sig = &s
			case units > 0 && signal[t] < levels.Sell:
				cash = units * close
				units = 0
				s := domain.SignalSell
				sig = &s
			}
		}

		points = append(points, domain.SignalPoint{
			Date:                prices[t].Date,
			StrategyReturn:      stratReturn,
			BenchmarkReturn:     benchReturn,
			CumulativeStrategy:  cumStrategy,
			CumulativeBenchmark: cumBenchmark,
			Signal:              sig,
		})
	}

	return points
}
