package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/deal-radar/internal/monitoring"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check store invariants and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		backend, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer backend.Close()

		checker := monitoring.NewChecker(
			backend.Health(),
			cfg.Health.EvidenceCeiling,
			time.Duration(cfg.Health.StaleAfterHours)*time.Hour,
		)
		report, err := checker.Check(ctx)
		if err != nil {
			return err
		}

		if err := json.NewEncoder(os.Stdout).Encode(report); err != nil {
			return eris.Wrap(err, "encode health report")
		}
		if !report.Healthy() {
			return eris.New("health check found violations")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
