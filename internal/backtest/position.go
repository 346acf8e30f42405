package backtest

import (
	"math"
	"time"

	"marlin/internal/domain"
)

// NewPosition opens a position from a validated trade spec. The per-share
// risk is frozen here; later stop ratchets never change it.
func NewPosition(spec domain.TradeSpec, date time.Time, shares int) *domain.Position {
	return &domain.Position{
		Ticker:         spec.Ticker,
		Strategy:       spec.Strategy,
		Direction:      spec.Direction,
		EntryDate:      date,
		EntryPrice:     spec.Entry,
		StopPrice:      spec.Stop,
		Target:         spec.Target,
		InitialShares:  shares,
		CurrentShares:  shares,
		RiskPerShare:   math.Abs(spec.Entry - spec.Stop),
		MaxHoldingDays: spec.MaxHoldingDays,
		HighestPrice:   spec.Entry,
	}
}

// fullExitType tags the terminal ledger row: Runner when a partial was taken
// earlier in the hold, Full otherwise.
func fullExitType(pos *domain.Position) domain.PositionType {
	if pos.PartialExited {
		return domain.PositionRunner
	}
	return domain.PositionFull
}

// closedRow builds one immutable ledger row for closing shares of a position.
// PnL is measured against the weighted-average cost over the initial entry
// and every pyramid add; the R-multiple is measured against the original
// entry price and per-share risk, so a breakeven-ratcheted stop exit reads as
// 0R, not -1R.
func closedRow(pos *domain.Position, exitDate time.Time, price float64, shares int, ptype domain.PositionType, reason string, holdingDays int) domain.ClosedTrade {
	avg := pos.AvgEntryPrice()
	pnl := (price - avg) * float64(shares)
	if pos.Direction == domain.DirectionShort {
		pnl = (avg - price) * float64(shares)
	}
	outcome := domain.OutcomeLoss
	if pnl > 0 {
		outcome = domain.OutcomeWin
	}
	// The add count belongs to the terminal row; partial rows report 0 so
	// summing the column over a ledger counts each add once.
	adds := len(pos.PyramidAdds)
	if ptype == domain.PositionPartial {
		adds = 0
	}
	return domain.ClosedTrade{
		EntryDate:    pos.EntryDate,
		ExitDate:     exitDate,
		Year:         exitDate.Year(),
		Ticker:       pos.Ticker,
		Strategy:     pos.Strategy,
		Direction:    pos.Direction,
		PositionType: ptype,
		Entry:        domain.Round2(avg),
		Exit:         domain.Round2(price),
		Outcome:      outcome,
		ExitReason:   reason,
		RMultiple:    domain.Round2(pos.UnrealizedR(price)),
		Shares:       shares,
		PnL:          domain.Round2(pnl),
		HoldingDays:  holdingDays,
		PyramidAdds:  adds,
	}
}
