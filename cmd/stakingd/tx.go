package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stakescope/internal/staking"
)

type txStack struct {
	*readStack
	service *staking.Service
}

func buildTxStack(ctx context.Context, cmd *cobra.Command) (*txStack, error) {
	stack, err := buildReadStack(ctx, cmd)
	if err != nil {
		return nil, err
	}

	if stack.cfg.PrivateKey == "" {
		stack.close()
		return nil, fmt.Errorf("private key is required for write operations")
	}
	signer, err := staking.NewPrivateKeySigner(stack.cfg.PrivateKey)
	if err != nil {
		stack.close()
		return nil, err
	}

	// Best-effort sync so bound warnings see current pool parameters.
	if err := stack.projector.Refresh(ctx); err != nil {
		stack.logger.Warn("pre-submit sync failed, bound warnings unavailable", zap.Error(err))
	}

	service, err := staking.NewService(staking.ServiceConfig{
		Contract:       common.HexToAddress(stack.cfg.Contract),
		Confirmations:  stack.cfg.Confirmations,
		ConfirmPoll:    stack.cfg.ConfirmPoll,
		ConfirmTimeout: stack.cfg.ConfirmTimeout,
	}, stack.client, signer, stack.projector, stack.logger)
	if err != nil {
		stack.close()
		return nil, err
	}

	return &txStack{readStack: stack, service: service}, nil
}

func decimalFlag(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("--%s is required", name)
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("--%s: %w", name, err)
	}
	return value, nil
}

func runApprove(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	amount, err := decimalFlag(cmd, "amount")
	if err != nil {
		return err
	}

	stack, err := buildTxStack(ctx, cmd)
	if err != nil {
		return err
	}
	defer stack.close()

	receipt, err := stack.service.ApproveAllowance(ctx, amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "approved in tx %s (block %d)\n", receipt.TxHash.Hex(), receipt.BlockNumber.Uint64())
	return nil
}

func runCreatePool(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	totalPool, err := decimalFlag(cmd, "total-pool")
	if err != nil {
		return err
	}
	minStaking, err := decimalFlag(cmd, "min-staking")
	if err != nil {
		return err
	}
	maxStaking, err := decimalFlag(cmd, "max-staking")
	if err != nil {
		return err
	}
	rate, _ := cmd.Flags().GetUint32("interest-rate")
	days, _ := cmd.Flags().GetUint32("staking-days")

	stack, err := buildTxStack(ctx, cmd)
	if err != nil {
		return err
	}
	defer stack.close()

	receipt, err := stack.service.CreatePool(ctx, totalPool, rate, days, minStaking, maxStaking)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pool created in tx %s (block %d)\n", receipt.TxHash.Hex(), receipt.BlockNumber.Uint64())
	return nil
}

func runEnter(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	amount, err := decimalFlag(cmd, "amount")
	if err != nil {
		return err
	}
	poolID, _ := cmd.Flags().GetUint64("pool")
	referrer, _ := cmd.Flags().GetString("referrer")

	stack, err := buildTxStack(ctx, cmd)
	if err != nil {
		return err
	}
	defer stack.close()

	receipt, err := stack.service.EnterPool(ctx, poolID, amount, referrer)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "entered pool %d in tx %s (block %d)\n", poolID, receipt.TxHash.Hex(), receipt.BlockNumber.Uint64())
	return nil
}

func runWithdraw(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	poolID, _ := cmd.Flags().GetUint64("pool")

	stack, err := buildTxStack(ctx, cmd)
	if err != nil {
		return err
	}
	defer stack.close()

	receipt, err := stack.service.Withdraw(ctx, poolID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "withdrew from pool %d in tx %s (block %d)\n", poolID, receipt.TxHash.Hex(), receipt.BlockNumber.Uint64())
	return nil
}
