package backtest

import (
	"sort"

	"marlin/internal/domain"
)

// Summary aggregates a ledger into the headline numbers and the per-year,
// per-strategy, and per-exit-reason breakdowns. Evaluate is pure; it never
// modifies the ledger.
type Summary struct {
	Trades         int
	Wins           int
	Losses         int
	WinRate        float64 // percent
	TotalPnL       float64
	AvgR           float64
	AvgHoldingDays float64

	ByYear   []YearStats
	ByGroup  []GroupStats // per strategy, sorted by PnL descending
	ByReason []GroupStats // per exit reason, sorted by count descending
}

// YearStats is the aggregate for one calendar year of exits.
type YearStats struct {
	Year    int
	Trades  int
	Wins    int
	PnL     float64
	WinRate float64
}

// GroupStats is the aggregate for one strategy or exit reason.
type GroupStats struct {
	Key    string
	Trades int
	Wins   int
	PnL    float64
	AvgR   float64
}

// Evaluate computes summary statistics over closed trades.
func Evaluate(trades []domain.ClosedTrade) Summary {
	s := Summary{Trades: len(trades)}
	if len(trades) == 0 {
		return s
	}

	var sumR, sumHold float64
	years := make(map[int]*YearStats)
	strategies := make(map[string]*GroupStats)
	reasons := make(map[string]*GroupStats)

	for _, t := range trades {
		win := t.Outcome == domain.OutcomeWin
		if win {
			s.Wins++
		} else {
			s.Losses++
		}
		s.TotalPnL += t.PnL
		sumR += t.RMultiple
		sumHold += float64(t.HoldingDays)

		y := years[t.Year]
		if y == nil {
			y = &YearStats{Year: t.Year}
			years[t.Year] = y
		}
		y.Trades++
		y.PnL += t.PnL
		if win {
			y.Wins++
		}

		bump(strategies, t.Strategy, t, win)
		bump(reasons, t.ExitReason, t, win)
	}

	n := float64(s.Trades)
	s.WinRate = domain.Round2(100 * float64(s.Wins) / n)
	s.TotalPnL = domain.Round2(s.TotalPnL)
	s.AvgR = domain.Round2(sumR / n)
	s.AvgHoldingDays = domain.Round2(sumHold / n)

	for _, y := range years {
		y.PnL = domain.Round2(y.PnL)
		y.WinRate = domain.Round2(100 * float64(y.Wins) / float64(y.Trades))
		s.ByYear = append(s.ByYear, *y)
	}
	sort.Slice(s.ByYear, func(i, j int) bool { return s.ByYear[i].Year < s.ByYear[j].Year })

	s.ByGroup = finishGroups(strategies, func(a, b GroupStats) bool {
		if a.PnL != b.PnL {
			return a.PnL > b.PnL
		}
		return a.Key < b.Key
	})
	s.ByReason = finishGroups(reasons, func(a, b GroupStats) bool {
		if a.Trades != b.Trades {
			return a.Trades > b.Trades
		}
		return a.Key < b.Key
	})
	return s
}

func bump(m map[string]*GroupStats, key string, t domain.ClosedTrade, win bool) {
	g := m[key]
	if g == nil {
		g = &GroupStats{Key: key}
		m[key] = g
	}
	g.Trades++
	g.PnL += t.PnL
	g.AvgR += t.RMultiple
	if win {
		g.Wins++
	}
}

func finishGroups(m map[string]*GroupStats, less func(a, b GroupStats) bool) []GroupStats {
	out := make([]GroupStats, 0, len(m))
	for _, g := range m {
		g.PnL = domain.Round2(g.PnL)
		g.AvgR = domain.Round2(g.AvgR / float64(g.Trades))
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
