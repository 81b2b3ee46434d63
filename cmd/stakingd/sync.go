package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stakescope/internal/chain"
	"stakescope/internal/config"
	"stakescope/internal/projector"
	"stakescope/internal/staking"
	"stakescope/internal/storage"
	"stakescope/internal/storage/postgres"
)

const cursorName = "staking_projector"

type readStack struct {
	cfg       config.Config
	logger    *zap.Logger
	client    *chain.Client
	projector *projector.Projector
}

func (s *readStack) close() {
	if s.client != nil {
		s.client.Close()
	}
	if s.logger != nil {
		s.logger.Sync()
	}
}

func buildReadStack(ctx context.Context, cmd *cobra.Command) (*readStack, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("valid contract address is required, got %q", cfg.Contract)
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL, chain.Options{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	decoder, err := staking.NewDecoder()
	if err != nil {
		client.Close()
		return nil, err
	}

	var sink projector.EventSink
	if cfg.Archive != "" {
		sink = storage.NewJsonlArchive(cfg.Archive)
	}

	proj, err := projector.New(projector.Config{
		Contract:     common.HexToAddress(cfg.Contract),
		GenesisBlock: cfg.GenesisBlock,
		BatchSize:    cfg.BatchSize,
	}, client, decoder, sink, logger)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &readStack{cfg: cfg, logger: logger, client: client, projector: proj}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	stack, err := buildReadStack(ctx, cmd)
	if err != nil {
		return err
	}
	defer stack.close()

	if err := stack.projector.Refresh(ctx); err != nil {
		return err
	}

	snap := stack.projector.Snapshot()
	stack.logger.Info("sync complete",
		zap.Uint64("last_processed_block", snap.LastProcessedBlock),
		zap.Int("pools", len(snap.Pools)),
		zap.Int("entries", len(snap.Entries)),
		zap.Int("withdrawals", len(snap.Withdrawals)),
	)

	if stack.cfg.PGDSN == "" {
		return nil
	}

	store, err := postgres.NewStore(ctx, stack.cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer store.Close()

	if err := persistSnapshot(ctx, store, snap); err != nil {
		return err
	}
	stack.logger.Info("views persisted", zap.String("cursor", cursorName))
	return nil
}

func persistSnapshot(ctx context.Context, store storage.Storage, snap *projector.Snapshot) error {
	if prev, ok, err := store.LoadCursor(ctx, cursorName); err != nil {
		return fmt.Errorf("load cursor: %w", err)
	} else if ok && prev > snap.LastProcessedBlock {
		return fmt.Errorf("refusing to move cursor %s backwards: %d -> %d", cursorName, prev, snap.LastProcessedBlock)
	}

	if err := store.SaveViews(ctx, snap.Pools, snap.Entries, snap.Withdrawals); err != nil {
		return fmt.Errorf("persist views: %w", err)
	}
	if err := store.SaveCursor(ctx, cursorName, snap.LastProcessedBlock); err != nil {
		return fmt.Errorf("persist cursor: %w", err)
	}
	return nil
}

func runPools(cmd *cobra.Command, _ []string) error {
	return runView(cmd, func(p *projector.Projector) interface{} {
		return p.Pools()
	})
}

func runStakings(cmd *cobra.Command, _ []string) error {
	staker, _ := cmd.Flags().GetString("staker")
	return runView(cmd, func(p *projector.Projector) interface{} {
		return p.Entries(staker)
	})
}

func runWithdrawals(cmd *cobra.Command, _ []string) error {
	return runView(cmd, func(p *projector.Projector) interface{} {
		return p.Withdrawals()
	})
}

func runView(cmd *cobra.Command, view func(*projector.Projector) interface{}) error {
	ctx, stop := signalContext()
	defer stop()

	stack, err := buildReadStack(ctx, cmd)
	if err != nil {
		return err
	}
	defer stack.close()

	if err := stack.projector.Refresh(ctx); err != nil {
		return err
	}

	out, err := json.MarshalIndent(view(stack.projector), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal view: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
