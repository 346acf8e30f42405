package backtest

import "math"

// Shares computes the position size for an entry/stop pair: the fixed
// reference capital's risk budget divided by the per-share risk, floored.
// Sizing never compounds with simulated equity, so every trade risks the same
// dollar amount and R-multiples stay comparable across the whole run.
//
// A zero stop distance or non-positive reference capital returns 0 and the
// caller skips the candidate. Any positive stop distance yields at least one
// share.
func Shares(entry, stop, refCapital, riskPct float64) int {
	riskPerShare := math.Abs(entry - stop)
	if riskPerShare == 0 || refCapital <= 0 {
		return 0
	}
	riskDollars := refCapital * riskPct / 100
	shares := int(math.Floor(riskDollars / riskPerShare))
	if shares < 1 {
		shares = 1
	}
	return shares
}
