package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/deal-radar/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the weekly digest for the current week",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		backend, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer backend.Close()

		gen := report.NewGenerator(backend.Ingest(), cfg.Report.TopN)
		r, err := gen.Generate(ctx, time.Now().UTC())
		if err != nil {
			return err
		}

		fmt.Println(r.Markdown)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
