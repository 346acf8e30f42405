package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marlin/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ TrackerStore = (*SQLiteStore)(nil)

// SQLiteStore implements TrackerStore backed by a SQLite database. It holds
// the durable copy of live-mode tracker state: one row per open ticker.
type SQLiteStore struct {
	db *sql.DB
}

const trackerSchema = `
CREATE TABLE IF NOT EXISTS tracker_entries (
	ticker         TEXT PRIMARY KEY,
	entry_date     TEXT NOT NULL,
	entry_price    REAL NOT NULL,
	strategy       TEXT NOT NULL,
	stop_loss      REAL NOT NULL,
	target         REAL NOT NULL,
	partial_exited INTEGER NOT NULL DEFAULT 0,
	pyramid_adds   INTEGER NOT NULL DEFAULT 0,
	trail_closes   INTEGER NOT NULL DEFAULT 0,
	exit_date      TEXT
);`

const dateLayout = "2006-01-02"

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(trackerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying tracker schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveEntry inserts or replaces the tracker entry for a ticker.
func (s *SQLiteStore) SaveEntry(ctx context.Context, entry *domain.TrackerEntry) error {
	var exitDate any
	if entry.ExitDate != nil {
		exitDate = entry.ExitDate.Format(dateLayout)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tracker_entries
			(ticker, entry_date, entry_price, strategy, stop_loss, target,
			 partial_exited, pyramid_adds, trail_closes, exit_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Ticker,
		entry.EntryDate.Format(dateLayout),
		entry.EntryPrice,
		entry.Strategy,
		entry.StopLoss,
		entry.Target,
		boolToInt(entry.PartialExited),
		entry.PyramidAdds,
		entry.TrailCloses,
		exitDate,
	)
	if err != nil {
		return fmt.Errorf("saving tracker entry %s: %w", entry.Ticker, err)
	}
	return nil
}

// GetEntry retrieves the tracker entry for a ticker, or nil when absent.
func (s *SQLiteStore) GetEntry(ctx context.Context, ticker string) (*domain.TrackerEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ticker, entry_date, entry_price, strategy, stop_loss, target,
		       partial_exited, pyramid_adds, trail_closes, exit_date
		FROM tracker_entries WHERE ticker = ?`, ticker)

	entry, err := scanTrackerEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading tracker entry %s: %w", ticker, err)
	}
	return entry, nil
}

// ListEntries returns all persisted entries sorted by ticker.
func (s *SQLiteStore) ListEntries(ctx context.Context) ([]domain.TrackerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, entry_date, entry_price, strategy, stop_loss, target,
		       partial_exited, pyramid_adds, trail_closes, exit_date
		FROM tracker_entries ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("listing tracker entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.TrackerEntry
	for rows.Next() {
		entry, err := scanTrackerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tracker entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// DeleteEntry removes the entry for a ticker.
func (s *SQLiteStore) DeleteEntry(ctx context.Context, ticker string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tracker_entries WHERE ticker = ?`, ticker); err != nil {
		return fmt.Errorf("deleting tracker entry %s: %w", ticker, err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanTrackerEntry.
type scanner interface {
	Scan(dest ...any) error
}

func scanTrackerEntry(row scanner) (*domain.TrackerEntry, error) {
	var (
		entry         domain.TrackerEntry
		entryDate     string
		partialExited int
		exitDate      sql.NullString
	)
	err := row.Scan(
		&entry.Ticker,
		&entryDate,
		&entry.EntryPrice,
		&entry.Strategy,
		&entry.StopLoss,
		&entry.Target,
		&partialExited,
		&entry.PyramidAdds,
		&entry.TrailCloses,
		&exitDate,
	)
	if err != nil {
		return nil, err
	}

	entry.EntryDate, err = time.Parse(dateLayout, entryDate)
	if err != nil {
		return nil, fmt.Errorf("parsing entry_date %q: %w", entryDate, err)
	}
	entry.PartialExited = partialExited != 0
	if exitDate.Valid {
		d, err := time.Parse(dateLayout, exitDate.String)
		if err != nil {
			return nil, fmt.Errorf("parsing exit_date %q: %w", exitDate.String, err)
		}
		entry.ExitDate = &d
	}
	return &entry, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
