package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/deal-radar/internal/config"
	"github.com/sells-group/deal-radar/internal/ingest"
	"github.com/sells-group/deal-radar/internal/monitoring"
	"github.com/sells-group/deal-radar/internal/store"
	"github.com/sells-group/deal-radar/pkg/serper"
)

var scanTopicsPath string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan over all configured topics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		backend, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer backend.Close()

		summary, err := runScan(ctx, backend)
		// The summary goes to stdout no matter how the run ended.
		if encErr := json.NewEncoder(os.Stdout).Encode(summary); encErr != nil {
			zap.L().Error("encode run summary", zap.Error(encErr))
		}
		return err
	},
}

// runScan wires the pipeline and executes one run under the configured
// wall-clock ceiling. Shared by the scan command and the serve loop.
func runScan(ctx context.Context, backend store.Backend) (monitoring.RunSummary, error) {
	topicsPath := scanTopicsPath
	if topicsPath == "" {
		topicsPath = cfg.Topics.Path
	}
	topics, err := config.LoadTopics(topicsPath)
	if err != nil {
		return monitoring.RunSummary{}, err
	}

	runTimeout := time.Duration(cfg.Scan.RunTimeoutMins) * time.Minute
	if runTimeout <= 0 {
		runTimeout = 30 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	client := serper.NewClient(cfg.Serper.Key, serper.WithBaseURL(cfg.Serper.BaseURL))
	fetcher := ingest.NewFetcher(client, ingest.FetcherConfig{
		Concurrency:     cfg.Scan.Concurrency,
		QueryTimeout:    time.Duration(cfg.Scan.QueryTimeoutSecs) * time.Second,
		MaxRetries:      cfg.Scan.SearchRetries,
		RatePerSec:      cfg.Scan.RatePerSec,
		Country:         cfg.Serper.Country,
		Language:        cfg.Serper.Language,
		ResultsPerQuery: cfg.Serper.ResultsPerQuery,
	})
	checker := monitoring.NewChecker(
		backend.Health(),
		cfg.Health.EvidenceCeiling,
		time.Duration(cfg.Health.StaleAfterHours)*time.Hour,
	)
	runner := ingest.NewRunner(fetcher, ingest.NewEngine(backend.Ingest()), checker)

	return runner.Run(runCtx, topics)
}

func init() {
	scanCmd.Flags().StringVar(&scanTopicsPath, "topics", "", "topics file (default from config)")
	rootCmd.AddCommand(scanCmd)
}
