package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"

	"marlin/internal/domain"
)

const dateLayout = "2006-01-02"

var csvHeader = []string{
	"entry_date", "exit_date", "year", "ticker", "strategy", "direction",
	"position_type", "entry", "exit", "outcome", "exit_reason",
	"r_multiple", "shares", "pnl", "holding_days", "pyramid_adds",
}

// Ledger is the append-only record of closed trades for one run. Rows are
// appended in event order by the single-threaded engine, so identical inputs
// produce an identical ledger. The run ID labels the run; it is not part of
// the CSV payload.
type Ledger struct {
	RunID  string
	trades []domain.ClosedTrade
}

// NewLedger creates an empty ledger with a fresh run ID.
func NewLedger() *Ledger {
	return &Ledger{RunID: uuid.NewString()}
}

// Append adds one closed-trade row.
func (l *Ledger) Append(t domain.ClosedTrade) {
	l.trades = append(l.trades, t)
}

// Len returns the number of rows.
func (l *Ledger) Len() int { return len(l.trades) }

// Trades returns the rows in event order. Callers must not modify the slice.
func (l *Ledger) Trades() []domain.ClosedTrade { return l.trades }

// WriteCSV writes the ledger as CSV with a header row. The formatting is
// fixed so byte-identical inputs yield byte-identical output.
func (l *Ledger) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing ledger header: %w", err)
	}
	for _, t := range l.trades {
		rec := []string{
			t.EntryDate.Format(dateLayout),
			t.ExitDate.Format(dateLayout),
			strconv.Itoa(t.Year),
			t.Ticker,
			t.Strategy,
			string(t.Direction),
			string(t.PositionType),
			strconv.FormatFloat(t.Entry, 'f', 2, 64),
			strconv.FormatFloat(t.Exit, 'f', 2, 64),
			string(t.Outcome),
			t.ExitReason,
			strconv.FormatFloat(t.RMultiple, 'f', 2, 64),
			strconv.Itoa(t.Shares),
			strconv.FormatFloat(t.PnL, 'f', 2, 64),
			strconv.Itoa(t.HoldingDays),
			strconv.Itoa(t.PyramidAdds),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing ledger row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
