package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"marlin/internal/gather"
	"marlin/internal/store"
	"marlin/internal/util"
)

func fetchCmd(cfgPath *string) *cobra.Command {
	var startDate string

	cmd := &cobra.Command{
		Use:   "fetch [tickers...]",
		Short: "Download daily bars from Alpaca into the local store",
		Long: `Download daily OHLCV bars for the configured ticker universe (or the
tickers given as arguments) from the Alpaca market-data API into the
parquet bar store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
				return fmt.Errorf("alpaca credentials not configured (set APCA_API_KEY_ID / APCA_API_SECRET_KEY)")
			}

			tickers := args
			if len(tickers) == 0 {
				tickers, err = cfg.Backtest.LoadTickers()
				if err != nil {
					return err
				}
			}

			if startDate == "" {
				startDate = cfg.Gather.StartDate
			}
			start, err := time.Parse("2006-01-02", startDate)
			if err != nil {
				return fmt.Errorf("parsing start date %q: %w", startDate, err)
			}
			end := util.Midnight(time.Now().UTC())

			fetcher := gather.NewDailyBarFetcher(gather.AlpacaConfig{
				APIKey:          cfg.Alpaca.APIKey,
				APISecret:       cfg.Alpaca.APISecret,
				DataURL:         cfg.Alpaca.DataURL,
				BatchSize:       cfg.Gather.BatchSize,
				RateLimitPerMin: cfg.Gather.RateLimitPerMin,
			}, store.NewParquetStore(cfg.Storage.DataDir), log)

			return fetcher.Fetch(cmd.Context(), tickers, start, end)
		},
	}
	cmd.Flags().StringVar(&startDate, "start", "", "fetch bars from this date (default: gather.start_date)")
	return cmd
}
