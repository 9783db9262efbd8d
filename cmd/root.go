package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/resellkit/pricescope/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pricescope",
	Short: "Cross-marketplace price aggregation for JP e-commerce arbitrage",
	Long:  "Aggregates product prices across Amazon.co.jp, Rakuten Ichiba and Yahoo! Shopping, with API, scrape and placeholder fallbacks per source.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
