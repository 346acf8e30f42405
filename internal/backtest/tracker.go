package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"marlin/internal/domain"
	"marlin/internal/store"
)

// ErrDuplicatePosition reports an attempt to open a second position in a
// ticker that already has one.
var ErrDuplicatePosition = errors.New("position already open for ticker")

// Tracker is the registry of open positions, keyed by ticker, and the single
// source of truth for "is this ticker open". During a simulation IsOpen
// answers from live state; the closed-interval check exists only for
// out-of-order historical queries.
//
// With a non-nil TrackerStore every mutation is written through, so a live
// process restart recovers identical state. Backtests pass nil.
type Tracker struct {
	open   map[string]*domain.Position
	closed []closedInterval
	store  store.TrackerStore
}

type closedInterval struct {
	ticker string
	entry  time.Time
	exit   time.Time
}

// NewTracker creates an empty tracker. ts may be nil for in-memory use.
func NewTracker(ts store.TrackerStore) *Tracker {
	return &Tracker{open: make(map[string]*domain.Position), store: ts}
}

// Add registers a newly opened position. A ticker with an open position is
// rejected with ErrDuplicatePosition.
func (t *Tracker) Add(ctx context.Context, pos *domain.Position) error {
	if _, dup := t.open[pos.Ticker]; dup {
		return fmt.Errorf("%s: %w", pos.Ticker, ErrDuplicatePosition)
	}
	t.open[pos.Ticker] = pos
	return t.persist(ctx, pos)
}

// Update writes through the position's current state after a mutation
// (pyramid add, partial exit, stop ratchet).
func (t *Tracker) Update(ctx context.Context, pos *domain.Position) error {
	return t.persist(ctx, pos)
}

// Remove deregisters a ticker on full exit and records its holding interval.
// Partial exits never call Remove. Removing an absent ticker is a no-op.
func (t *Tracker) Remove(ctx context.Context, ticker string, exitDate time.Time) error {
	pos, ok := t.open[ticker]
	if !ok {
		return nil
	}
	delete(t.open, ticker)
	t.closed = append(t.closed, closedInterval{ticker: ticker, entry: pos.EntryDate, exit: exitDate})
	if t.store != nil {
		return t.store.DeleteEntry(ctx, ticker)
	}
	return nil
}

// Get returns the open position for a ticker, if any.
func (t *Tracker) Get(ticker string) (*domain.Position, bool) {
	pos, ok := t.open[ticker]
	return pos, ok
}

// IsOpen reports whether a ticker currently has an open position.
func (t *Tracker) IsOpen(ticker string) bool {
	_, ok := t.open[ticker]
	return ok
}

// IsOpenAsOf reports whether a ticker was held on the given date, checking
// live state first and then closed holding intervals (entry ≤ date < exit).
func (t *Tracker) IsOpenAsOf(ticker string, date time.Time) bool {
	if pos, ok := t.open[ticker]; ok && !pos.EntryDate.After(date) {
		return true
	}
	for _, iv := range t.closed {
		if iv.ticker == ticker && !iv.entry.After(date) && iv.exit.After(date) {
			return true
		}
	}
	return false
}

// Count returns the number of open positions.
func (t *Tracker) Count() int { return len(t.open) }

// CountByStrategy returns the number of open positions for one strategy.
func (t *Tracker) CountByStrategy(id string) int {
	n := 0
	for _, pos := range t.open {
		if pos.Strategy == id {
			n++
		}
	}
	return n
}

// Open returns the open positions sorted by ticker, so callers iterate in a
// reproducible order.
func (t *Tracker) Open() []*domain.Position {
	out := make([]*domain.Position, 0, len(t.open))
	for _, pos := range t.open {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

func (t *Tracker) persist(ctx context.Context, pos *domain.Position) error {
	if t.store == nil {
		return nil
	}
	entry := &domain.TrackerEntry{
		Ticker:        pos.Ticker,
		EntryDate:     pos.EntryDate,
		EntryPrice:    pos.EntryPrice,
		Strategy:      pos.Strategy,
		StopLoss:      pos.StopPrice,
		Target:        pos.Target,
		PartialExited: pos.PartialExited,
		PyramidAdds:   len(pos.PyramidAdds),
		TrailCloses:   pos.TrailCloses,
	}
	if err := t.store.SaveEntry(ctx, entry); err != nil {
		return fmt.Errorf("persisting tracker entry for %s: %w", pos.Ticker, err)
	}
	return nil
}
