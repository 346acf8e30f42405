// Package market provides read-side access to historical daily bars for the
// backtester. Series.AsOf is the single enforcement point of the
// no-look-ahead boundary: every consumer slices a ticker's history to the
// current simulated date before computing anything from it.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"marlin/internal/domain"
	"marlin/internal/store"
	"marlin/internal/util"
)

// ErrDataUnavailable reports that no usable price history exists for a ticker.
// Callers recover locally by skipping the ticker for the current date.
var ErrDataUnavailable = errors.New("price history unavailable")

// Series is an immutable, ascending-by-date view over one ticker's daily bars.
type Series struct {
	bars []domain.Bar
}

// NewSeries wraps bars already sorted ascending by timestamp.
func NewSeries(bars []domain.Bar) Series {
	return Series{bars: bars}
}

// Len returns the number of bars in the view.
func (s Series) Len() int { return len(s.bars) }

// AsOf returns the sub-series containing only bars dated at or before the
// given date. Decisions made from the result cannot observe later bars.
func (s Series) AsOf(date time.Time) Series {
	// Bars are ascending, so find the first bar after the cutoff.
	hi := len(s.bars)
	for hi > 0 && s.bars[hi-1].Timestamp.After(date) {
		hi--
	}
	return Series{bars: s.bars[:hi]}
}

// Tail returns a view of at most the last n bars.
func (s Series) Tail(n int) Series {
	if n >= len(s.bars) {
		return s
	}
	return Series{bars: s.bars[len(s.bars)-n:]}
}

// Bar returns the bar for an exact calendar date, if one exists.
func (s Series) Bar(date time.Time) (domain.Bar, bool) {
	for i := len(s.bars) - 1; i >= 0; i-- {
		if s.bars[i].Timestamp.Equal(date) {
			return s.bars[i], true
		}
		if s.bars[i].Timestamp.Before(date) {
			break
		}
	}
	return domain.Bar{}, false
}

// Last returns the most recent bar in the view.
func (s Series) Last() (domain.Bar, bool) {
	if len(s.bars) == 0 {
		return domain.Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

// Closes returns the close column.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Close
	}
	return out
}

// Highs returns the high column.
func (s Series) Highs() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.High
	}
	return out
}

// Lows returns the low column.
func (s Series) Lows() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Low
	}
	return out
}

// Provider loads full ticker histories from a BarStore once per run and
// serves cached Series. It is not safe for concurrent use; the walk-forward
// loop is single-threaded by design.
type Provider struct {
	store  store.BarStore
	market domain.Market
	start  time.Time
	end    time.Time
	cache  map[string]Series
	log    *slog.Logger
}

// NewProvider creates a Provider reading bars for [start, end] from the given
// store.
func NewProvider(barStore store.BarStore, market domain.Market, start, end time.Time, log *slog.Logger) *Provider {
	return &Provider{
		store:  barStore,
		market: market,
		start:  start,
		end:    end,
		cache:  make(map[string]Series),
		log:    log,
	}
}

// History returns the full cached series for a ticker, loading it on first
// use. An empty history yields ErrDataUnavailable.
func (p *Provider) History(ctx context.Context, ticker string) (Series, error) {
	if s, ok := p.cache[ticker]; ok {
		if s.Len() == 0 {
			return Series{}, fmt.Errorf("%s: %w", ticker, ErrDataUnavailable)
		}
		return s, nil
	}

	bars, err := p.store.ReadBars(ctx, ticker, p.market, p.start, p.end)
	if err != nil {
		return Series{}, fmt.Errorf("reading bars for %s: %w", ticker, err)
	}

	// Vendor feeds stamp daily bars at the session open (04:00/05:00 UTC);
	// the simulation keys everything by calendar day.
	for i := range bars {
		bars[i].Timestamp = util.Midnight(bars[i].Timestamp.UTC())
	}

	s := NewSeries(bars)
	p.cache[ticker] = s
	if s.Len() == 0 {
		p.log.Debug("no price history", "ticker", ticker)
		return Series{}, fmt.Errorf("%s: %w", ticker, ErrDataUnavailable)
	}
	return s, nil
}
