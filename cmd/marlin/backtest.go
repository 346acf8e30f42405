package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"marlin/internal/backtest"
	"marlin/internal/domain"
	"marlin/internal/market"
	"marlin/internal/scan"
	"marlin/internal/store"
	"marlin/internal/strategy"
)

// historyWarmupYears is how far before the backtest start bars are loaded, so
// the 252-day lookbacks have data on the first scan dates.
const historyWarmupYears = 2

func backtestCmd(cfgPath *string) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run the walk-forward backtest and write the trade ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}

			start, end, err := cfg.Backtest.Range()
			if err != nil {
				return err
			}
			tickers, err := cfg.Backtest.LoadTickers()
			if err != nil {
				return err
			}
			if len(tickers) == 0 {
				return fmt.Errorf("no tickers configured")
			}

			table := strategy.DefaultTable()
			globals := cfg.Risk.Apply(strategy.DefaultGlobals())

			ps := store.NewParquetStore(cfg.Storage.DataDir)
			dataStart := start.AddDate(-historyWarmupYears, 0, 0)
			provider := market.NewProvider(ps, domain.MarketUS, dataStart, end, log)

			engine := backtest.NewEngine(
				scan.NewHigh52Scanner(provider, log),
				scan.NewPriorityValidator(table, cfg.Risk.RewardRatio),
				provider, table, globals,
				backtest.NewTracker(nil),
				log,
			)

			ledger, err := engine.Run(cmd.Context(), backtest.Params{
				Start:         start,
				End:           end,
				ScanFrequency: cfg.Backtest.Frequency(),
				Tickers:       tickers,
			})
			if err != nil {
				return err
			}

			printSummary(cmd.OutOrStdout(), backtest.Evaluate(ledger.Trades()))

			if outPath == "" {
				outPath = cfg.Backtest.OutputCSV
			}
			if outPath != "" && ledger.Len() > 0 {
				if err := writeLedger(ledger, outPath); err != nil {
					return err
				}
				log.Info("ledger written", "path", outPath, "trades", ledger.Len())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write the trade ledger CSV to this file")
	return cmd
}

func writeLedger(ledger *backtest.Ledger, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating ledger file: %w", err)
	}
	defer f.Close()
	if err := ledger.WriteCSV(f); err != nil {
		return err
	}
	return f.Close()
}

func printSummary(w io.Writer, s backtest.Summary) {
	if s.Trades == 0 {
		fmt.Fprintln(w, "No trades.")
		return
	}

	fmt.Fprintf(w, "Trades: %d  Wins: %d  Losses: %d  Win rate: %.2f%%\n",
		s.Trades, s.Wins, s.Losses, s.WinRate)
	fmt.Fprintf(w, "Total PnL: %.2f  Avg R: %.2f  Avg holding days: %.1f\n",
		s.TotalPnL, s.AvgR, s.AvgHoldingDays)

	fmt.Fprintln(w, "\nBy year:")
	for _, y := range s.ByYear {
		fmt.Fprintf(w, "  %d  trades %-4d win rate %6.2f%%  PnL %12.2f\n",
			y.Year, y.Trades, y.WinRate, y.PnL)
	}

	fmt.Fprintln(w, "\nBy strategy:")
	for _, g := range s.ByGroup {
		fmt.Fprintf(w, "  %-34s trades %-4d avg R %6.2f  PnL %12.2f\n",
			g.Key, g.Trades, g.AvgR, g.PnL)
	}

	fmt.Fprintln(w, "\nBy exit reason:")
	for _, g := range s.ByReason {
		fmt.Fprintf(w, "  %-24s trades %-4d avg R %6.2f  PnL %12.2f\n",
			g.Key, g.Trades, g.AvgR, g.PnL)
	}
}
