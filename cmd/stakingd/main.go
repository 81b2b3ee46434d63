package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "stakingd",
		Short:        "Staking contract sync and command tool",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("rpc", "", "chain RPC URL")
	root.PersistentFlags().String("contract", "", "staking contract address")
	root.PersistentFlags().Uint64("genesis-block", 19191172, "first block to sync from")
	root.PersistentFlags().Uint64("batch-size", 2000, "blocks per log query")
	root.PersistentFlags().Int("max-retries", 5, "maximum retry attempts")
	root.PersistentFlags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the read model from chain logs",
		RunE:  runSync,
	}
	syncCmd.Flags().String("pg-dsn", "", "Postgres DSN to persist views (optional)")
	syncCmd.Flags().String("archive", "", "JSONL path to archive decoded events (optional)")
	root.AddCommand(syncCmd)

	poolsCmd := &cobra.Command{
		Use:   "pools",
		Short: "List staking pools",
		RunE:  runPools,
	}
	root.AddCommand(poolsCmd)

	stakingsCmd := &cobra.Command{
		Use:   "stakings",
		Short: "List staking entries",
		RunE:  runStakings,
	}
	stakingsCmd.Flags().String("staker", "", "filter by staker address")
	root.AddCommand(stakingsCmd)

	withdrawalsCmd := &cobra.Command{
		Use:   "withdrawals",
		Short: "List withdrawal records",
		RunE:  runWithdrawals,
	}
	root.AddCommand(withdrawalsCmd)

	approveCmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve the staking contract to spend tokens",
		RunE:  runApprove,
	}
	addTxFlags(approveCmd)
	approveCmd.Flags().String("amount", "", "token amount to approve")
	root.AddCommand(approveCmd)

	createPoolCmd := &cobra.Command{
		Use:   "create-pool",
		Short: "Create a staking pool",
		RunE:  runCreatePool,
	}
	addTxFlags(createPoolCmd)
	createPoolCmd.Flags().String("total-pool", "", "total pool size")
	createPoolCmd.Flags().Uint32("interest-rate", 0, "interest rate percent")
	createPoolCmd.Flags().Uint32("staking-days", 0, "staking duration in days")
	createPoolCmd.Flags().String("min-staking", "", "minimum stake per entry")
	createPoolCmd.Flags().String("max-staking", "", "maximum stake per entry")
	root.AddCommand(createPoolCmd)

	enterCmd := &cobra.Command{
		Use:   "enter",
		Short: "Enter a staking pool",
		RunE:  runEnter,
	}
	addTxFlags(enterCmd)
	enterCmd.Flags().Uint64("pool", 0, "pool id")
	enterCmd.Flags().String("amount", "", "stake amount")
	enterCmd.Flags().String("referrer", "", "referrer address")
	root.AddCommand(enterCmd)

	withdrawCmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw a stake from a pool",
		RunE:  runWithdraw,
	}
	addTxFlags(withdrawCmd)
	withdrawCmd.Flags().Uint64("pool", 0, "pool id")
	root.AddCommand(withdrawCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addTxFlags(cmd *cobra.Command) {
	cmd.Flags().String("private-key", "", "hex-encoded signing key")
	cmd.Flags().Uint64("confirmations", 1, "required confirmation depth")
	cmd.Flags().Duration("confirm-poll", 2*time.Second, "receipt poll interval")
	cmd.Flags().Duration("confirm-timeout", 2*time.Minute, "confirmation wait deadline")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
