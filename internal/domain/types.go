// Package domain defines the core data types shared across the marlin
// backtester: price bars, scan signals, trade specs, open positions, and
// closed-trade ledger rows.
package domain

import (
	"math"
	"time"
)

// Market identifies a trading venue grouping for stored bar data.
type Market string

const (
	MarketUS Market = "us"
)

// Direction is the side of a position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Outcome classifies a closed trade by realized PnL sign.
type Outcome string

const (
	OutcomeWin  Outcome = "Win"
	OutcomeLoss Outcome = "Loss"
)

// PositionType tags a ledger row by which part of a position it closed.
// A position that never takes a partial produces a single Full row; one that
// does produces a Partial row followed later by a Runner row.
type PositionType string

const (
	PositionFull    PositionType = "Full"
	PositionPartial PositionType = "Partial"
	PositionRunner  PositionType = "Runner"
)

// Bar is one immutable daily OHLCV bar for a single symbol.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Signal is an ephemeral scan candidate: a ticker a strategy wants to enter
// as of a given date, with suggested entry and stop levels.
type Signal struct {
	Ticker    string
	Strategy  string
	Direction Direction
	Entry     float64
	Stop      float64
	AsOf      time.Time
	Score     float64
	Metadata  map[string]string
}

// TradeSpec is a validated, ranked, ready-to-enter order produced from one or
// more Signals. At most one TradeSpec exists per ticker per scan date.
type TradeSpec struct {
	Ticker         string
	Strategy       string
	Direction      Direction
	Entry          float64
	Stop           float64
	Target         float64
	MaxHoldingDays int
}

// PyramidAdd records one add-on purchase made into a winning position.
type PyramidAdd struct {
	Date   time.Time
	Price  float64
	Shares int
	RAtAdd float64
}

// Position is the mutable aggregate for one open position. It is created on
// entry, advanced once per simulated date by the exit rule engine, and
// destroyed on full exit.
//
// Invariants: CurrentShares = InitialShares + pyramid shares minus partial
// shares ≥ 0; DaysHeld increases by exactly one per simulated date while the
// position is open. RiskPerShare is fixed at entry and never follows the
// ratcheted stop, so R-multiples stay comparable across the trade's life.
type Position struct {
	Ticker         string
	Strategy       string
	Direction      Direction
	EntryDate      time.Time
	EntryPrice     float64
	StopPrice      float64 // mutable: ratchets to breakeven after a partial
	Target         float64 // informational; exits are rule-driven, not target-driven
	InitialShares  int
	CurrentShares  int
	RiskPerShare   float64 // |entry - initial stop|, fixed
	MaxHoldingDays int
	DaysHeld       int
	HighestPrice   float64
	PartialExited  bool
	PyramidAdds    []PyramidAdd
	TrailCloses    int // consecutive closes below the active trail average
}

// TotalEnteredShares is the sum of all shares ever bought into the position:
// the initial entry plus every pyramid add. Partial exits do not reduce it.
func (p *Position) TotalEnteredShares() int {
	total := p.InitialShares
	for _, add := range p.PyramidAdds {
		total += add.Shares
	}
	return total
}

// CostBasis is the total dollars paid across the initial entry and all
// pyramid adds.
func (p *Position) CostBasis() float64 {
	basis := float64(p.InitialShares) * p.EntryPrice
	for _, add := range p.PyramidAdds {
		basis += float64(add.Shares) * add.Price
	}
	return basis
}

// AvgEntryPrice is the weighted-average cost per share over every share ever
// entered. PnL on any closing step is computed against this price.
func (p *Position) AvgEntryPrice() float64 {
	total := p.TotalEnteredShares()
	if total == 0 {
		return p.EntryPrice
	}
	return p.CostBasis() / float64(total)
}

// UnrealizedR is the position's open R-multiple at the given price, measured
// against the ORIGINAL per-share risk. The denominator is clamped to a penny
// so a degenerate zero-risk entry cannot divide by zero.
func (p *Position) UnrealizedR(price float64) float64 {
	risk := math.Max(p.RiskPerShare, 0.01)
	if p.Direction == DirectionShort {
		return (p.EntryPrice - price) / risk
	}
	return (price - p.EntryPrice) / risk
}

// ClosedTrade is one immutable, append-only ledger row. A position emits one
// row per closing step: zero or one Partial row, then exactly one Full or
// Runner row.
type ClosedTrade struct {
	EntryDate    time.Time
	ExitDate     time.Time
	Year         int
	Ticker       string
	Strategy     string
	Direction    Direction
	PositionType PositionType
	Entry        float64
	Exit         float64
	Outcome      Outcome
	ExitReason   string
	RMultiple    float64
	Shares       int
	PnL          float64
	HoldingDays  int
	PyramidAdds  int
}

// TrackerEntry is the lightweight per-ticker record held by the position
// tracker. In live mode it is the persisted schema; in backtest mode it only
// lives in memory for the duration of one run.
type TrackerEntry struct {
	Ticker        string
	EntryDate     time.Time
	EntryPrice    float64
	Strategy      string
	StopLoss      float64
	Target        float64
	PartialExited bool
	PyramidAdds   int
	TrailCloses   int
	ExitDate      *time.Time // set only for historical as-of queries
}

// Round2 rounds to two decimal places, the precision used for all monetary
// and R-multiple fields on ledger rows.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
