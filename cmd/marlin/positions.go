package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"marlin/internal/store"
)

func positionsCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "Print the live position tracker state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}

			ts, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
			if err != nil {
				return err
			}
			defer ts.Close()

			entries, err := ts.ListEntries(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No open positions.")
				return nil
			}

			fmt.Fprintf(out, "%-8s %-34s %-12s %10s %10s %10s %8s %6s\n",
				"TICKER", "STRATEGY", "ENTRY DATE", "ENTRY", "STOP", "TARGET", "PARTIAL", "ADDS")
			for _, e := range entries {
				partial := "-"
				if e.PartialExited {
					partial = "yes"
				}
				fmt.Fprintf(out, "%-8s %-34s %-12s %10.2f %10.2f %10.2f %8s %6d\n",
					e.Ticker, e.Strategy, e.EntryDate.Format("2006-01-02"),
					e.EntryPrice, e.StopLoss, e.Target, partial, e.PyramidAdds)
			}
			return nil
		},
	}
}
