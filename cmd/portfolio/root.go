package main

import (
	"fmt"
	"os"

	"balance-checker/internal/config"

	"github.com/spf13/cobra"
)

var (
	configPath string
	storeFlag  string
	reportFlag string
)

var rootCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Reconciles on-chain balances with the ledger and values the portfolio",
	Long: `portfolio keeps a ledger of asset movements in line with wallet balances
observed on EVM networks, polls market and exchange prices and reports the
current value of every holding.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./portfolio.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&storeFlag, "store", "", "store location: SQLite path or postgres:// URL")
	rootCmd.AddCommand(runCmd, serveCmd, importCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if storeFlag != "" {
		cfg.Store = storeFlag
	}
	if reportFlag != "" {
		cfg.ReportFile = reportFlag
	}
	return cfg, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
