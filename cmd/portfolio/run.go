package main

import (
	"os"
	"os/signal"
	"syscall"

	"balance-checker/internal/report"

	"github.com/spf13/cobra"
)

var importFlag string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation and valuation cycle",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if importFlag != "" {
			cfg.ImportFile = importFlag
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := a.cycle.Run(ctx)
		if werr := report.WriteSummary(cmd.OutOrStdout(), sum, cfg.Currency); werr != nil {
			a.log.Warnf("print summary: %v", werr)
		}
		return err
	},
}

func init() {
	runCmd.Flags().StringVarP(&reportFlag, "report", "o", "", "write the valuation to this .xlsx or .csv file")
	runCmd.Flags().StringVar(&importFlag, "import", "", "book this CSV file before reconciling")
}
