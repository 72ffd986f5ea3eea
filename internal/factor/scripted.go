package factor

import "hash/fnv"

// Scripted fallback cutoffs. A day while flat with score above the buy
// cutoff emits BUY; a day while long with score below the sell cutoff emits
// SELL. These are tuning parameters, not business rules.
const (
	ScriptedBuyCutoff  = 0.7
	ScriptedSellCutoff = 0.3
)

// ScriptedScore derives a pseudo-random score in [0, 1) purely from the
// formula text and the calendar day. The same (formula, date) pair always
// produces the same score, so repeated runs over overlapping windows are
// reproducible rather than arbitrary.
func ScriptedScore(formula, date string) float64 {
	h := fnv.New64a()
	h.Write([]byte(formula))
	h.Write([]byte{'|'})
	h.Write([]byte(date))

	// One LCG step over the hash spreads thin input differences (a single
	// date digit) across the high bits.
	state := h.Sum64()*6364136223846793005 + 1442695040888963407
	return float64(state>>11) / float64(uint64(1)<<53)
}

// ScriptedScores evaluates ScriptedScore for each date in order.
func ScriptedScores(formula string, dates []string) []float64 {
	scores := make([]float64, len(dates))
	for i, d := range dates {
		scores[i] = ScriptedScore(formula, d)
	}
	return scores
}
