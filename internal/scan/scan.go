// Package scan defines the scanner and validator collaborators of the
// walk-forward loop. The engine treats both as opaque: scanners propose
// Signals for a date, validators dedup and rank them into TradeSpecs.
package scan

import (
	"context"
	"sort"
	"time"

	"marlin/internal/domain"
	"marlin/internal/strategy"
)

// Scanner produces candidate signals for an as-of date over a ticker
// universe. Implementations must only consult data dated at or before asOf.
type Scanner interface {
	Scan(ctx context.Context, asOf time.Time, tickers []string) ([]domain.Signal, error)
}

// Validator turns raw signals into ranked, ready-to-enter trade specs.
// External implementations may add liquidity, regime, or earnings filters;
// the engine treats the result as opaque.
type Validator interface {
	ValidateAndRank(ctx context.Context, signals []domain.Signal, asOf time.Time) ([]domain.TradeSpec, error)
}

// PriorityValidator is the built-in validator: it keeps one signal per ticker
// (the lowest strategy priority number wins, first seen wins ties), attaches
// holding limits and a risk/reward target from the parameter table, and ranks
// the result by priority, then score.
type PriorityValidator struct {
	table   *strategy.Table
	rrRatio float64 // target distance as a multiple of the stop distance
}

// NewPriorityValidator creates a PriorityValidator over the given parameter
// table. rrRatio sets targets at entry + rrRatio*risk (long side).
func NewPriorityValidator(table *strategy.Table, rrRatio float64) *PriorityValidator {
	return &PriorityValidator{table: table, rrRatio: rrRatio}
}

var _ Validator = (*PriorityValidator)(nil)

// ValidateAndRank dedups same-ticker signals by strategy priority and ranks
// the survivors by priority (ascending), then score (descending), breaking
// remaining ties by ticker so the order is reproducible run to run. Rarer
// setups are admitted first when the capacity caps bite.
func (v *PriorityValidator) ValidateAndRank(_ context.Context, signals []domain.Signal, _ time.Time) ([]domain.TradeSpec, error) {
	best := make(map[string]domain.Signal)
	var order []string
	for _, s := range signals {
		cur, seen := best[s.Ticker]
		if !seen {
			best[s.Ticker] = s
			order = append(order, s.Ticker)
			continue
		}
		if v.table.Priority(s.Strategy) < v.table.Priority(cur.Strategy) {
			best[s.Ticker] = s
		}
	}

	specs := make([]domain.TradeSpec, 0, len(order))
	for _, ticker := range order {
		s := best[ticker]

		// Zero stop distance cannot be sized; drop here rather than at entry.
		risk := s.Entry - s.Stop
		if s.Direction == domain.DirectionShort {
			risk = s.Stop - s.Entry
		}
		if risk <= 0 {
			continue
		}

		params, ok := v.table.Get(s.Strategy)
		if !ok {
			continue
		}

		target := s.Entry + v.rrRatio*risk
		if s.Direction == domain.DirectionShort {
			target = s.Entry - v.rrRatio*risk
		}

		specs = append(specs, domain.TradeSpec{
			Ticker:         s.Ticker,
			Strategy:       s.Strategy,
			Direction:      s.Direction,
			Entry:          s.Entry,
			Stop:           s.Stop,
			Target:         target,
			MaxHoldingDays: params.MaxHoldingDays,
		})
	}

	scores := make(map[string]float64, len(order))
	for ticker, s := range best {
		scores[ticker] = s.Score
	}
	sort.SliceStable(specs, func(i, j int) bool {
		pi, pj := v.table.Priority(specs[i].Strategy), v.table.Priority(specs[j].Strategy)
		if pi != pj {
			return pi < pj
		}
		if scores[specs[i].Ticker] != scores[specs[j].Ticker] {
			return scores[specs[i].Ticker] > scores[specs[j].Ticker]
		}
		return specs[i].Ticker < specs[j].Ticker
	})
	return specs, nil
}
