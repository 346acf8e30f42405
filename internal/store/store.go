// Package store defines storage interfaces for persisting and retrieving
// daily bar data and live position-tracker state.
package store

import (
	"context"
	"time"

	"marlin/internal/domain"
)

// BarStore persists and retrieves daily OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end],
	// sorted ascending by timestamp.
	ReadBars(ctx context.Context, symbol string, market domain.Market, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market domain.Market) ([]string, error)
}

// TrackerStore persists live-mode position-tracker state. The tracker saves
// after every mutation and reloads at startup so a restart recovers
// identical state. Backtest runs never touch a TrackerStore.
type TrackerStore interface {
	// SaveEntry inserts or replaces the tracker entry for a ticker.
	SaveEntry(ctx context.Context, entry *domain.TrackerEntry) error

	// GetEntry retrieves the tracker entry for a ticker, or nil when absent.
	GetEntry(ctx context.Context, ticker string) (*domain.TrackerEntry, error)

	// ListEntries returns all persisted entries sorted by ticker.
	ListEntries(ctx context.Context) ([]domain.TrackerEntry, error)

	// DeleteEntry removes the entry for a ticker. Deleting an absent ticker
	// is not an error.
	DeleteEntry(ctx context.Context, ticker string) error
}
