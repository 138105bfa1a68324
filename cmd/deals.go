package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/deal-radar/internal/model"
	"github.com/sells-group/deal-radar/internal/store"
)

var (
	dealsListStatus string
	dealsListTopic  string
	dealsListLimit  int
	dismissReason   string
)

var dealsCmd = &cobra.Command{
	Use:   "deals",
	Short: "Inspect and triage deals",
}

var dealsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deals, optionally filtered by status and topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		filter := store.DealFilter{
			Topic: dealsListTopic,
			Limit: dealsListLimit,
		}
		if dealsListStatus != "" {
			status := model.DealStatus(dealsListStatus)
			if !status.Valid() {
				return eris.Errorf("unknown status: %s", dealsListStatus)
			}
			filter.Status = status
		}

		backend, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer backend.Close()

		deals, err := backend.Operator().ListDeals(ctx, filter)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(deals)
	},
}

var dealsDismissCmd = &cobra.Command{
	Use:   "dismiss <deal-id>",
	Short: "Dismiss a deal, optionally recording a reason",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionDeal(cmd, args[0], "dismissed", func(ctx context.Context, op store.OperatorStore) error {
			return op.DismissDeal(ctx, args[0], dismissReason)
		})
	},
}

var dealsShortlistCmd = &cobra.Command{
	Use:   "shortlist <deal-id>",
	Short: "Shortlist a deal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionDeal(cmd, args[0], "shortlisted", func(ctx context.Context, op store.OperatorStore) error {
			return op.ShortlistDeal(ctx, args[0])
		})
	},
}

var dealsArchiveCmd = &cobra.Command{
	Use:   "archive <deal-id>",
	Short: "Archive a deal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionDeal(cmd, args[0], "archived", func(ctx context.Context, op store.OperatorStore) error {
			return op.ArchiveDeal(ctx, args[0])
		})
	},
}

func transitionDeal(cmd *cobra.Command, dealID, target string, fn func(context.Context, store.OperatorStore) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := fn(ctx, backend.Operator()); err != nil {
		return err
	}
	zap.L().Info("deal status changed",
		zap.String("deal_id", dealID),
		zap.String("status", target),
	)
	return nil
}

func init() {
	dealsListCmd.Flags().StringVar(&dealsListStatus, "status", "", "filter by status (new, shortlisted, dismissed, archived)")
	dealsListCmd.Flags().StringVar(&dealsListTopic, "topic", "", "filter by topic")
	dealsListCmd.Flags().IntVar(&dealsListLimit, "limit", 50, "maximum deals to list")
	dealsDismissCmd.Flags().StringVar(&dismissReason, "reason", "", "why the deal was dismissed")

	dealsCmd.AddCommand(dealsListCmd, dealsDismissCmd, dealsShortlistCmd, dealsArchiveCmd)
	rootCmd.AddCommand(dealsCmd)
}
