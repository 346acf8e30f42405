// Package strategy defines the per-strategy parameter table that governs
// partial exits, trailing stops, pyramiding eligibility, and capacity for the
// backtester. Parameters live in an explicit table passed into the exit rule
// engine, so parameter sweeps can run side by side without shared mutable
// state.
package strategy

import (
	"fmt"
	"math"
	"sort"
)

// Strategy identifiers for the built-in position strategies.
const (
	EMACrossover    = "EMA_Crossover_Position"
	MeanReversion   = "MeanReversion_Position"
	PercentB        = "%B_MeanReversion_Position"
	High52          = "High52_Position"
	BigBaseBreakout = "BigBase_Breakout_Position"
	TrendCont       = "TrendContinuation_Position"
	RelStrengthRank = "RelativeStrength_Ranker_Position"
)

// TrailKind selects the trailing-stop policy variant.
type TrailKind int

const (
	// TrailSingle trails one simple moving average for the whole hold.
	TrailSingle TrailKind = iota

	// TrailHybrid trails a tight EMA early in the hold and switches to a
	// looser SMA after a day threshold, letting proven winners run.
	TrailHybrid
)

// TrailPolicy is the tagged-variant trailing-stop description for one
// strategy. Each phase requires N consecutive closes below its average before
// triggering; the counter resets on any close back above.
type TrailPolicy struct {
	Kind TrailKind

	// Single-phase fields.
	MA     int // SMA period
	Closes int // consecutive closes below MA required to exit

	// Hybrid fields.
	EarlyEMA        int // EMA period for the early phase
	EarlyCloses     int
	SwitchAfterDays int // DaysHeld threshold separating the phases
	LateMA          int // SMA period for the late phase
	LateCloses      int
}

// Params is one strategy's exit and capacity configuration.
type Params struct {
	ID             string
	Priority       int // same-ticker same-day dedup rank; lower wins
	MaxPositions   int // per-strategy open-position cap (0 disables entries)
	MaxHoldingDays int // time stop; pyramided positions are exempt
	PartialR       float64
	PartialSize    float64 // fraction of current shares closed at the partial
	Trail          TrailPolicy
}

// Pyramiding holds the add-to-winner rules shared by all strategies.
type Pyramiding struct {
	Enabled         bool
	RTrigger        float64 // unrealized R required before an add
	Size            float64 // add size as a fraction of initial shares
	MaxAdds         int
	PullbackEMA     int     // the add must happen on a pullback to this EMA
	PullbackATRMult float64 // ...within this many ATR(14) of it
}

// Globals holds the run-wide risk and capacity settings.
type Globals struct {
	ReferenceCapital  float64 // fixed sizing base; never compounds with equity
	RiskPerTradePct   float64
	MaxTotalPositions int
	PartialEnabled    bool
	Pyramid           Pyramiding
}

// DefaultGlobals returns the production risk settings.
func DefaultGlobals() Globals {
	return Globals{
		ReferenceCapital:  100_000,
		RiskPerTradePct:   2.0,
		MaxTotalPositions: 20,
		PartialEnabled:    true,
		Pyramid: Pyramiding{
			Enabled:         true,
			RTrigger:        1.5,
			Size:            0.5,
			MaxAdds:         3,
			PullbackEMA:     21,
			PullbackATRMult: 1.0,
		},
	}
}

// Table maps strategy IDs to their parameters.
type Table struct {
	params map[string]Params
}

// NewTable builds a table from explicit parameter rows. Duplicate IDs are an
// error.
func NewTable(rows []Params) (*Table, error) {
	t := &Table{params: make(map[string]Params, len(rows))}
	for _, row := range rows {
		if _, dup := t.params[row.ID]; dup {
			return nil, fmt.Errorf("duplicate strategy params for %q", row.ID)
		}
		t.params[row.ID] = row
	}
	return t, nil
}

// DefaultTable returns the built-in seven-strategy parameter set. Priority 1
// goes to the rarest setup with the biggest expected move; mean-reversion
// entries rank last.
func DefaultTable() *Table {
	t, _ := NewTable([]Params{
		{
			ID: EMACrossover, Priority: 4, MaxPositions: 0, MaxHoldingDays: 120,
			PartialR: 2.0, PartialSize: 0.3,
			Trail: TrailPolicy{Kind: TrailSingle, MA: 100, Closes: 5},
		},
		{
			ID: MeanReversion, Priority: 6, MaxPositions: 0, MaxHoldingDays: 90,
			PartialR: 2.0, PartialSize: 0.3,
			Trail: TrailPolicy{Kind: TrailSingle, MA: 50, Closes: 5},
		},
		{
			ID: PercentB, Priority: 7, MaxPositions: 0, MaxHoldingDays: 90,
			PartialR: 2.0, PartialSize: 0.3,
			Trail: TrailPolicy{Kind: TrailSingle, MA: 50, Closes: 5},
		},
		{
			ID: High52, Priority: 5, MaxPositions: 6, MaxHoldingDays: 150,
			PartialR: 2.5, PartialSize: 0.3,
			Trail: TrailPolicy{
				Kind:     TrailHybrid,
				EarlyEMA: 21, EarlyCloses: 5,
				SwitchAfterDays: 60,
				LateMA:          100, LateCloses: 8,
			},
		},
		{
			ID: BigBaseBreakout, Priority: 1, MaxPositions: 0, MaxHoldingDays: 180,
			PartialR: 4.0, PartialSize: 0.3,
			Trail: TrailPolicy{
				Kind:     TrailHybrid,
				EarlyEMA: 21, EarlyCloses: 5,
				SwitchAfterDays: 45,
				LateMA:          200, LateCloses: 10,
			},
		},
		{
			ID: TrendCont, Priority: 3, MaxPositions: 0, MaxHoldingDays: 90,
			PartialR: 2.0, PartialSize: 0.3,
			Trail: TrailPolicy{Kind: TrailSingle, MA: 50, Closes: 5},
		},
		{
			ID: RelStrengthRank, Priority: 2, MaxPositions: 10, MaxHoldingDays: 150,
			PartialR: 3.0, PartialSize: 0.3,
			Trail: TrailPolicy{
				Kind:     TrailHybrid,
				EarlyEMA: 21, EarlyCloses: 5,
				SwitchAfterDays: 60,
				LateMA:          100, LateCloses: 8,
			},
		},
	})
	return t
}

// Get retrieves parameters by strategy ID. The second return value indicates
// whether the strategy is known.
func (t *Table) Get(id string) (Params, bool) {
	p, ok := t.params[id]
	return p, ok
}

// Priority returns the dedup rank for a strategy; lower outranks higher.
// Unknown IDs rank after every configured strategy.
func (t *Table) Priority(id string) int {
	if p, ok := t.params[id]; ok {
		return p.Priority
	}
	return math.MaxInt
}

// MaxPositions returns the per-strategy cap, 0 for unknown IDs.
func (t *Table) MaxPositions(id string) int {
	if p, ok := t.params[id]; ok {
		return p.MaxPositions
	}
	return 0
}

// List returns a sorted slice of all configured strategy IDs.
func (t *Table) List() []string {
	ids := make([]string, 0, len(t.params))
	for id := range t.params {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
