// Package gather downloads historical daily bars from the Alpaca market-data
// API into the local bar store.
package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"marlin/internal/domain"
	"marlin/internal/store"
	"marlin/internal/util"
)

const (
	defaultBatchSize   = 200
	defaultRatePerMin  = 200
	fetchRetryAttempts = 3
	fetchRetryDelay    = 2 * time.Second
)

// AlpacaConfig holds credentials and throttling parameters for the fetcher.
type AlpacaConfig struct {
	APIKey          string
	APISecret       string
	DataURL         string
	BatchSize       int
	RateLimitPerMin int
}

// DailyBarFetcher fetches daily OHLCV bars for an explicit ticker list via
// the Alpaca market-data API and writes them to the bar store. Batches are
// rate limited and retried with backoff; a batch that still fails is logged
// and skipped so one bad symbol group cannot sink a long download.
type DailyBarFetcher struct {
	client    *marketdata.Client
	store     store.BarStore
	batchSize int
	limiter   *util.RateLimiter
	log       *slog.Logger
}

// NewDailyBarFetcher creates a fetcher writing into the given bar store.
func NewDailyBarFetcher(cfg AlpacaConfig, s store.BarStore, log *slog.Logger) *DailyBarFetcher {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	ratePerMin := cfg.RateLimitPerMin
	if ratePerMin <= 0 {
		ratePerMin = defaultRatePerMin
	}

	return &DailyBarFetcher{
		client:    marketdata.NewClient(opts),
		store:     s,
		batchSize: batchSize,
		limiter:   util.NewRateLimiter(ratePerMin),
		log:       log.With("fetcher", "alpaca-daily"),
	}
}

// Fetch downloads [start, end] daily bars for every ticker and persists them.
// Existing bars for the same dates are overwritten in place, so re-running a
// fetch is idempotent.
func (f *DailyBarFetcher) Fetch(ctx context.Context, tickers []string, start, end time.Time) error {
	if len(tickers) == 0 {
		return fmt.Errorf("no tickers to fetch")
	}

	total := (len(tickers) + f.batchSize - 1) / f.batchSize
	f.log.Info("fetching daily bars",
		"tickers", len(tickers), "batches", total,
		"start", start.Format("2006-01-02"), "end", end.Format("2006-01-02"))

	for i := 0; i < len(tickers); i += f.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		hi := i + f.batchSize
		if hi > len(tickers) {
			hi = len(tickers)
		}
		batch := tickers[i:hi]

		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}

		var bars []domain.Bar
		err := util.Retry(ctx, fetchRetryAttempts, fetchRetryDelay, func() error {
			var ferr error
			bars, ferr = f.fetchMultiBars(batch, start, end)
			return ferr
		})
		if err != nil {
			f.log.Error("batch fetch failed", "batch", i/f.batchSize+1, "err", err)
			continue
		}
		if len(bars) == 0 {
			f.log.Warn("batch returned no bars", "batch", i/f.batchSize+1, "symbols", batch)
			continue
		}

		if err := f.store.WriteBars(ctx, bars); err != nil {
			return fmt.Errorf("writing bars: %w", err)
		}
		f.log.Info("batch done", "batch", fmt.Sprintf("%d/%d", i/f.batchSize+1, total), "bars", len(bars))
	}
	return nil
}

// fetchMultiBars fetches daily bars for multiple symbols in a single API call.
func (f *DailyBarFetcher) fetchMultiBars(symbols []string, start, end time.Time) ([]domain.Bar, error) {
	multiBars, err := f.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      "sip",
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}
	return convertBars(multiBars), nil
}

// convertBars flattens the Alpaca multi-bar response into domain bars with
// upper-case symbols and timestamps truncated to midnight UTC. Alpaca stamps
// daily bars at the session open; the rest of the system keys bars by
// calendar day.
func convertBars(multiBars map[string][]marketdata.Bar) []domain.Bar {
	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  util.Midnight(ab.Timestamp.UTC()),
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars
}
