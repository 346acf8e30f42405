// Command marlin is the CLI for the walk-forward position-trading
// backtester: it downloads daily bars, runs backtests, and prints live
// tracker state.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"marlin/internal/config"
	"marlin/internal/util"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:           "marlin",
		Short:         "Walk-forward backtester for equity position strategies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config/marlin.yaml", "path to the YAML config file")

	cmd.AddCommand(
		backtestCmd(&cfgPath),
		fetchCmd(&cfgPath),
		positionsCmd(&cfgPath),
	)
	return cmd
}

// loadConfig reads .env, the YAML config, and installs the logger.
func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	log := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(log)
	return cfg, log, nil
}
