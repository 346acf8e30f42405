package scan

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"marlin/internal/domain"
	"marlin/internal/indicators"
	"marlin/internal/market"
	"marlin/internal/strategy"
)

const (
	high52Lookback = 252 // trading days in the 52-week window
	high52MinBars  = 60
	high52StopATR  = 2.0
	scoreLookback  = 63 // ~3 months, used to rank breakouts by momentum
)

var _ Scanner = (*High52Scanner)(nil)

// High52Scanner is the built-in momentum scanner: it signals a long entry
// when a ticker closes at a new 52-week closing high while holding above its
// 50-day average, with an ATR-based initial stop. Tickers with missing or
// short history are skipped, never fatal.
type High52Scanner struct {
	provider *market.Provider
	log      *slog.Logger
}

// NewHigh52Scanner creates a High52Scanner reading history from the provider.
func NewHigh52Scanner(provider *market.Provider, log *slog.Logger) *High52Scanner {
	return &High52Scanner{provider: provider, log: log.With("scanner", "high52")}
}

// Scan evaluates every ticker using only bars dated at or before asOf.
func (sc *High52Scanner) Scan(ctx context.Context, asOf time.Time, tickers []string) ([]domain.Signal, error) {
	var signals []domain.Signal
	for _, ticker := range tickers {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		history, err := sc.provider.History(ctx, ticker)
		if err != nil {
			if errors.Is(err, market.ErrDataUnavailable) {
				continue
			}
			sc.log.Warn("skipping ticker", "ticker", ticker, "err", err)
			continue
		}

		s := history.AsOf(asOf)
		if s.Len() < high52MinBars {
			continue
		}
		bar, ok := s.Last()
		if !ok || !bar.Timestamp.Equal(asOf) {
			// No bar on the scan date, holiday or delisted.
			continue
		}

		closes := s.Closes()
		if bar.Close < indicators.Highest(closes, high52Lookback) {
			continue
		}
		ma50 := indicators.Last(indicators.SMA(closes, 50))
		if math.IsNaN(ma50) || bar.Close <= ma50 {
			continue
		}

		atr := indicators.Last(indicators.ATR(s.Highs(), s.Lows(), closes, 14))
		if math.IsNaN(atr) || atr <= 0 {
			atr = bar.Close * 0.02
		}

		score := 0.0
		if s.Len() > scoreLookback {
			prev := closes[len(closes)-1-scoreLookback]
			if prev > 0 {
				score = (bar.Close - prev) / prev
			}
		}

		signals = append(signals, domain.Signal{
			Ticker:    ticker,
			Strategy:  strategy.High52,
			Direction: domain.DirectionLong,
			Entry:     bar.Close,
			Stop:      bar.Close - high52StopATR*atr,
			AsOf:      asOf,
			Score:     score,
		})
	}
	return signals, nil
}
