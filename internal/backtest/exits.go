package backtest

import (
	"fmt"
	"math"

	"marlin/internal/domain"
	"marlin/internal/indicators"
	"marlin/internal/market"
	"marlin/internal/strategy"
)

const (
	// trailMinBars is the minimum as-of history before any trailing-stop
	// average is trusted; shorter histories hold.
	trailMinBars = 50

	// pyramidLookback bounds the window used for the pullback EMA and ATR.
	pyramidLookback = 50

	atrPeriod = 14
)

// RuleEngine advances open positions through the daily exit rules. Rules run
// in a fixed order: hard stop, pyramid add, partial profit, trailing stop,
// time stop. The hard stop is terminal and checked first; pyramid and partial
// mutate the position and fall through to the later rules.
type RuleEngine struct {
	table   *strategy.Table
	globals strategy.Globals
}

// NewRuleEngine creates a RuleEngine over a parameter table and global
// risk settings.
func NewRuleEngine(table *strategy.Table, globals strategy.Globals) *RuleEngine {
	return &RuleEngine{table: table, globals: globals}
}

// Decision is the outcome of advancing one position through one date.
// At most one terminal exit per date; Partial and Pyramided report
// non-terminal mutations already applied to the position.
type Decision struct {
	Partial    *domain.ClosedTrade
	Pyramided  bool
	Exited     bool
	ExitPrice  float64
	ExitReason string
}

// Evaluate runs the exit rules for one position on one date. bar is the
// ticker's bar for the date and history the as-of series ending at that bar.
// The caller has already incremented DaysHeld for the date.
func (e *RuleEngine) Evaluate(pos *domain.Position, bar domain.Bar, history market.Series) Decision {
	var d Decision

	if bar.High > pos.HighestPrice {
		pos.HighestPrice = bar.High
	}

	// 1. Hard stop. An intraday touch exits at the stop price itself.
	if stopHit(pos, bar) {
		d.Exited = true
		d.ExitPrice = pos.StopPrice
		d.ExitReason = "StopLoss"
		return d
	}

	rNow := pos.UnrealizedR(bar.Close)

	// 2. Pyramid into the winner on a pullback to the fast EMA. Never after
	// a partial: a position already harvesting is done accumulating.
	py := e.globals.Pyramid
	if py.Enabled && !pos.PartialExited && len(pos.PyramidAdds) < py.MaxAdds && rNow >= py.RTrigger {
		shares := int(math.Floor(float64(pos.InitialShares) * py.Size))
		if shares > 0 && e.nearPullbackEMA(pos, bar, history) {
			pos.PyramidAdds = append(pos.PyramidAdds, domain.PyramidAdd{
				Date:   bar.Timestamp,
				Price:  bar.Close,
				Shares: shares,
				RAtAdd: domain.Round2(rNow),
			})
			pos.CurrentShares += shares
			d.Pyramided = true
		}
	}

	params, known := e.table.Get(pos.Strategy)

	// 3. Partial profit, once per position. The runner keeps the rest with
	// the stop ratcheted to breakeven.
	if e.globals.PartialEnabled && known && !pos.PartialExited && params.PartialR > 0 && rNow >= params.PartialR {
		shares := int(math.Floor(float64(pos.CurrentShares) * params.PartialSize))
		if shares > 0 && shares < pos.CurrentShares {
			row := closedRow(pos, bar.Timestamp, bar.Close, shares, domain.PositionPartial,
				fmt.Sprintf("Partial_%.1fR", params.PartialR), pos.DaysHeld)
			pos.CurrentShares -= shares
			pos.PartialExited = true
			pos.StopPrice = pos.EntryPrice
			d.Partial = &row
		}
	}

	// 4. Trailing stop.
	if known && history.Len() >= trailMinBars {
		if price, reason, exit := trailExit(pos, bar, history, params.Trail); exit {
			d.Exited = true
			d.ExitPrice = price
			d.ExitReason = reason
			return d
		}
	}

	// 5. Time stop. A position that has pyramided is exempt: adds mark a
	// proven trend, and the trail manages it from there.
	if pos.MaxHoldingDays > 0 && pos.DaysHeld >= pos.MaxHoldingDays && len(pos.PyramidAdds) == 0 {
		d.Exited = true
		d.ExitPrice = bar.Close
		d.ExitReason = fmt.Sprintf("TimeStop_%dd", pos.MaxHoldingDays)
	}
	return d
}

func stopHit(pos *domain.Position, bar domain.Bar) bool {
	if pos.StopPrice <= 0 {
		return false
	}
	if pos.Direction == domain.DirectionShort {
		return bar.High >= pos.StopPrice
	}
	return bar.Low <= pos.StopPrice
}

// nearPullbackEMA reports whether the close sits within the configured ATR
// multiple of the pullback EMA. With no usable ATR the fallback is 2% of the
// entry price.
func (e *RuleEngine) nearPullbackEMA(pos *domain.Position, bar domain.Bar, history market.Series) bool {
	py := e.globals.Pyramid
	recent := history.Tail(pyramidLookback)
	closes := recent.Closes()
	if len(closes) < py.PullbackEMA {
		return false
	}
	ema := indicators.Last(indicators.EMA(closes, py.PullbackEMA))
	if math.IsNaN(ema) {
		return false
	}
	atr := indicators.Last(indicators.ATR(recent.Highs(), recent.Lows(), closes, atrPeriod))
	if math.IsNaN(atr) || atr <= 0 {
		atr = pos.EntryPrice * 0.02
	}
	return math.Abs(bar.Close-ema) <= py.PullbackATRMult*atr
}

// trailExit advances the consecutive-close counter for the active trail phase
// and reports a terminal exit at the close once the counter reaches the
// phase's threshold. A close back on the right side of the average resets the
// counter.
func trailExit(pos *domain.Position, bar domain.Bar, history market.Series, policy strategy.TrailPolicy) (float64, string, bool) {
	closes := history.Closes()

	var avg float64
	var need int
	var reason string
	switch policy.Kind {
	case strategy.TrailHybrid:
		if pos.DaysHeld <= policy.SwitchAfterDays {
			avg = indicators.Last(indicators.EMA(closes, policy.EarlyEMA))
			need = policy.EarlyCloses
			reason = fmt.Sprintf("EMA%d_Trail_Early", policy.EarlyEMA)
		} else {
			avg = indicators.Last(indicators.SMA(closes, policy.LateMA))
			need = policy.LateCloses
			reason = fmt.Sprintf("MA%d_Trail_Late", policy.LateMA)
		}
	default:
		avg = indicators.Last(indicators.SMA(closes, policy.MA))
		need = policy.Closes
		reason = fmt.Sprintf("MA%d_Trail", policy.MA)
	}
	if math.IsNaN(avg) || need <= 0 {
		return 0, "", false
	}

	below := bar.Close < avg
	if pos.Direction == domain.DirectionShort {
		below = bar.Close > avg
	}
	if !below {
		pos.TrailCloses = 0
		return 0, "", false
	}
	pos.TrailCloses++
	if pos.TrailCloses < need {
		return 0, "", false
	}
	return bar.Close, reason, true
}
