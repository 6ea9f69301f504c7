package cmd

import (
	"context"
	"time"

	"github.com/STTM-NSU/paper-trader/internal/config"
	"github.com/STTM-NSU/paper-trader/internal/ledger"
	"github.com/STTM-NSU/paper-trader/internal/store"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the ledger schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(ctx context.Context, _ config.TradingBotConfig, _ *ledger.Ledger) (any, error) {
			return map[string]string{"status": "migrated"}, nil
		})
	},
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Get the trading account, creating it when there is none",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := cmd.Flags().GetString("balance")
		if err != nil {
			return err
		}
		return withLedger(cmd, func(ctx context.Context, cfg config.TradingBotConfig, l *ledger.Ledger) (any, error) {
			balance := cfg.InitialBalance
			if raw != "" {
				if balance, err = decimal.NewFromString(raw); err != nil {
					return nil, err
				}
			}
			return l.GetOrCreateAccount(ctx, balance)
		})
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics <account-id>",
	Short: "Recompute and print the account metrics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(ctx context.Context, _ config.TradingBotConfig, l *ledger.Ledger) (any, error) {
			return l.GetAccountMetrics(ctx, args[0])
		})
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <account-id>",
	Short: "Append a snapshot of the account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(ctx context.Context, _ config.TradingBotConfig, l *ledger.Ledger) (any, error) {
			return l.CreateSnapshot(ctx, args[0])
		})
	},
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots <account-id>",
	Short: "List account snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := timeRange(cmd)
		if err != nil {
			return err
		}
		return withLedger(cmd, func(ctx context.Context, _ config.TradingBotConfig, l *ledger.Ledger) (any, error) {
			return l.ListSnapshots(ctx, args[0], from, to)
		})
	},
}

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Print the account value timeline of every account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := timeRange(cmd)
		if err != nil {
			return err
		}
		return withLedger(cmd, func(ctx context.Context, _ config.TradingBotConfig, l *ledger.Ledger) (any, error) {
			return l.Timeline(ctx, from, to)
		})
	},
}

var positionsCmd = &cobra.Command{
	Use:   "positions <account-id>",
	Short: "List positions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := cmd.Flags().GetString("status")
		if err != nil {
			return err
		}
		status, err := store.ParsePositionStatus(raw)
		if err != nil {
			return err
		}
		return withLedger(cmd, func(ctx context.Context, _ config.TradingBotConfig, l *ledger.Ledger) (any, error) {
			return l.ListPositions(ctx, args[0], status)
		})
	},
}

var tradesCmd = &cobra.Command{
	Use:   "trades <account-id>",
	Short: "List completed trades",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(ctx context.Context, _ config.TradingBotConfig, l *ledger.Ledger) (any, error) {
			return l.CompletedTrades(ctx, args[0])
		})
	},
}

var invocationsCmd = &cobra.Command{
	Use:   "invocations <account-id>",
	Short: "List the latest agent invocations, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return err
		}
		return withLedger(cmd, func(ctx context.Context, _ config.TradingBotConfig, l *ledger.Ledger) (any, error) {
			return l.ListInvocations(ctx, args[0], limit)
		})
	},
}

func timeRange(cmd *cobra.Command) (from, to *time.Time, err error) {
	if from, err = timeFlag(cmd, "from"); err != nil {
		return nil, nil, err
	}
	if to, err = timeFlag(cmd, "to"); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func init() {
	accountCmd.Flags().String("balance", "", "initial balance of a new account (default from config)")
	positionsCmd.Flags().String("status", string(store.Open), "open, closed or all")
	invocationsCmd.Flags().Int("limit", ledger.DefaultInvocationsLimit, "number of invocations to print")
	for _, c := range []*cobra.Command{snapshotsCmd, timelineCmd} {
		c.Flags().String("from", "", "RFC 3339 lower bound")
		c.Flags().String("to", "", "RFC 3339 upper bound")
	}

	rootCmd.AddCommand(migrateCmd, accountCmd, metricsCmd, snapshotCmd, snapshotsCmd, timelineCmd, positionsCmd, tradesCmd, invocationsCmd)
}
