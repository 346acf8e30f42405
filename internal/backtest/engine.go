// Package backtest implements the walk-forward simulation core: position
// sizing, the daily exit rule engine, the open-position tracker, the
// date-stepped engine, the closed-trade ledger, and summary statistics.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"marlin/internal/market"
	"marlin/internal/scan"
	"marlin/internal/strategy"
	"marlin/internal/util"
)

// Params configures one walk-forward run.
type Params struct {
	Start         time.Time
	End           time.Time
	ScanFrequency util.ScanFrequency
	Tickers       []string
}

// Engine drives the walk-forward loop: for each scan date it advances every
// open position through the exit rules, then scans, validates, and admits new
// entries under the capacity limits. The loop is single-threaded; within a
// date all exits resolve before any entry, so capacity freed by a morning
// exit is available the same day.
type Engine struct {
	scanner   scan.Scanner
	validator scan.Validator
	provider  *market.Provider
	table     *strategy.Table
	globals   strategy.Globals
	rules     *RuleEngine
	tracker   *Tracker
	log       *slog.Logger
}

// NewEngine wires an engine from its collaborators. The tracker should be
// empty; backtests use an in-memory tracker (nil TrackerStore).
func NewEngine(scanner scan.Scanner, validator scan.Validator, provider *market.Provider,
	table *strategy.Table, globals strategy.Globals, tracker *Tracker, log *slog.Logger) *Engine {
	return &Engine{
		scanner:   scanner,
		validator: validator,
		provider:  provider,
		table:     table,
		globals:   globals,
		rules:     NewRuleEngine(table, globals),
		tracker:   tracker,
		log:       log,
	}
}

// Run executes the walk-forward loop over [Start, End] and returns the trade
// ledger. An empty ledger is a valid result, not an error.
func (e *Engine) Run(ctx context.Context, p Params) (*Ledger, error) {
	dates, err := util.ScanDates(p.Start, p.End, p.ScanFrequency)
	if err != nil {
		return nil, err
	}

	ledger := NewLedger()
	e.log.Info("backtest starting", "run_id", ledger.RunID,
		"start", p.Start.Format(dateLayout), "end", p.End.Format(dateLayout),
		"scan_dates", len(dates), "tickers", len(p.Tickers))

	for _, d := range dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.processExits(ctx, d, ledger); err != nil {
			return nil, err
		}
		if err := e.processEntries(ctx, d, p.Tickers); err != nil {
			return nil, err
		}
	}

	if err := e.closeRemaining(ctx, p.End, ledger); err != nil {
		return nil, err
	}

	if ledger.Len() == 0 {
		e.log.Info("backtest produced no trades", "run_id", ledger.RunID)
	} else {
		e.log.Info("backtest finished", "run_id", ledger.RunID, "trades", ledger.Len())
	}
	return ledger, nil
}

// processExits advances every open position through the exit rules for one
// date. A ticker with no bar for the date simply holds.
func (e *Engine) processExits(ctx context.Context, d time.Time, ledger *Ledger) error {
	for _, pos := range e.tracker.Open() {
		pos.DaysHeld++

		history, err := e.provider.History(ctx, pos.Ticker)
		if err != nil {
			if errors.Is(err, market.ErrDataUnavailable) {
				continue
			}
			return err
		}
		asOf := history.AsOf(d)
		bar, ok := asOf.Bar(d)
		if !ok {
			continue
		}

		decision := e.rules.Evaluate(pos, bar, asOf)
		if decision.Partial != nil {
			ledger.Append(*decision.Partial)
			e.log.Debug("partial exit", "ticker", pos.Ticker, "date", d.Format(dateLayout),
				"reason", decision.Partial.ExitReason, "shares", decision.Partial.Shares)
		}
		if decision.Pyramided {
			add := pos.PyramidAdds[len(pos.PyramidAdds)-1]
			e.log.Debug("pyramid add", "ticker", pos.Ticker, "date", d.Format(dateLayout),
				"shares", add.Shares, "r_at_add", add.RAtAdd)
		}

		if decision.Exited {
			row := closedRow(pos, d, decision.ExitPrice, pos.CurrentShares,
				fullExitType(pos), decision.ExitReason, pos.DaysHeld)
			ledger.Append(row)
			if err := e.tracker.Remove(ctx, pos.Ticker, d); err != nil {
				return err
			}
			e.log.Debug("position closed", "ticker", pos.Ticker, "date", d.Format(dateLayout),
				"reason", decision.ExitReason, "pnl", row.PnL)
			continue
		}
		if decision.Partial != nil || decision.Pyramided {
			if err := e.tracker.Update(ctx, pos); err != nil {
				return err
			}
		}
	}
	return nil
}

// processEntries scans for candidates on one date and admits them in rank
// order: tracked tickers are dropped, the global cap stops admission for the
// day, and a full per-strategy cap skips just that spec.
func (e *Engine) processEntries(ctx context.Context, d time.Time, tickers []string) error {
	signals, err := e.scanner.Scan(ctx, d, tickers)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", d.Format(dateLayout), err)
	}
	if len(signals) == 0 {
		return nil
	}
	specs, err := e.validator.ValidateAndRank(ctx, signals, d)
	if err != nil {
		return fmt.Errorf("validating %s: %w", d.Format(dateLayout), err)
	}

	for _, spec := range specs {
		if e.tracker.IsOpen(spec.Ticker) {
			continue
		}
		if e.tracker.Count() >= e.globals.MaxTotalPositions {
			e.log.Debug("global position cap reached", "date", d.Format(dateLayout))
			break
		}
		if e.tracker.CountByStrategy(spec.Strategy) >= e.table.MaxPositions(spec.Strategy) {
			continue
		}

		shares := Shares(spec.Entry, spec.Stop, e.globals.ReferenceCapital, e.globals.RiskPerTradePct)
		if shares == 0 {
			continue
		}
		pos := NewPosition(spec, d, shares)
		if err := e.tracker.Add(ctx, pos); err != nil {
			if errors.Is(err, ErrDuplicatePosition) {
				continue
			}
			return err
		}
		e.log.Debug("position opened", "ticker", spec.Ticker, "strategy", spec.Strategy,
			"date", d.Format(dateLayout), "entry", spec.Entry, "stop", spec.Stop, "shares", shares)
	}
	return nil
}

// closeRemaining force-closes every position still open after the last scan
// date at its last available close. These rows report calendar holding days,
// not simulated scan steps, because the hold was cut short by the window.
func (e *Engine) closeRemaining(ctx context.Context, end time.Time, ledger *Ledger) error {
	for _, pos := range e.tracker.Open() {
		exitDate := end
		price := pos.EntryPrice

		history, err := e.provider.History(ctx, pos.Ticker)
		if err == nil {
			if bar, ok := history.AsOf(end).Last(); ok {
				exitDate = bar.Timestamp
				price = bar.Close
			}
		} else if !errors.Is(err, market.ErrDataUnavailable) {
			return err
		}

		holdingDays := int(exitDate.Sub(pos.EntryDate).Hours() / 24)
		row := closedRow(pos, exitDate, price, pos.CurrentShares,
			fullExitType(pos), "EndOfBacktest", holdingDays)
		ledger.Append(row)
		if err := e.tracker.Remove(ctx, pos.Ticker, exitDate); err != nil {
			return err
		}
	}
	return nil
}
