package staking

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stakescope/internal/model"
	"stakescope/internal/units"
)

// Gateway is the ledger surface the command service submits through.
// Implemented by chain.Client.
type Gateway interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	WaitConfirmed(ctx context.Context, txHash common.Hash, confirmations uint64, poll time.Duration) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// PoolLookup exposes locally synced pool parameters for pre-submission
// warnings. Implemented by projector.Projector; optional.
type PoolLookup interface {
	Pool(id uint64) (model.StakingPool, bool)
}

// ServiceConfig holds the submission policy for the command service.
type ServiceConfig struct {
	Contract       common.Address
	Confirmations  uint64
	ConfirmPoll    time.Duration
	ConfirmTimeout time.Duration
}

// Service validates and submits the four write operations, mapping ledger
// failures to the typed errors in internal/model.
type Service struct {
	cfg         ServiceConfig
	gateway     Gateway
	signer      Signer
	pools       PoolLookup
	contractABI abi.ABI
	logger      *zap.Logger
}

// NewService builds a command service. signer may be nil for a read-only
// service (contract views still work); pools may be nil to skip bound
// warnings.
func NewService(cfg ServiceConfig, gateway Gateway, signer Signer, pools PoolLookup, logger *zap.Logger) (*Service, error) {
	if gateway == nil {
		return nil, fmt.Errorf("gateway is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	contractABI, err := ContractABI()
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:         cfg,
		gateway:     gateway,
		signer:      signer,
		pools:       pools,
		contractABI: contractABI,
		logger:      logger,
	}, nil
}

// ApproveAllowance approves the staking contract to spend amount of the
// staker's tokens and awaits confirmation.
func (s *Service) ApproveAllowance(ctx context.Context, amount decimal.Decimal) (*types.Receipt, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: approval amount must be positive, got %s", model.ErrInvalidAmount, amount)
	}
	wire, err := units.ToLedgerUnits(amount, units.WireScale)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, "approve", s.cfg.Contract, wire)
}

// CreatePool submits a pool creation and awaits confirmation. All five
// parameters must be positive; the first offending field is named.
func (s *Service) CreatePool(
	ctx context.Context,
	totalPool decimal.Decimal,
	interestRatePercent uint32,
	stakingDurationDays uint32,
	minStaking decimal.Decimal,
	maxStaking decimal.Decimal,
) (*types.Receipt, error) {
	switch {
	case !totalPool.IsPositive():
		return nil, &model.InvalidParametersError{Field: "total_pool", Reason: "must be positive"}
	case interestRatePercent == 0:
		return nil, &model.InvalidParametersError{Field: "interest_rate_percent", Reason: "must be positive"}
	case stakingDurationDays == 0:
		return nil, &model.InvalidParametersError{Field: "staking_duration_days", Reason: "must be positive"}
	case !minStaking.IsPositive():
		return nil, &model.InvalidParametersError{Field: "min_staking", Reason: "must be positive"}
	case !maxStaking.IsPositive():
		return nil, &model.InvalidParametersError{Field: "max_staking", Reason: "must be positive"}
	case maxStaking.LessThan(minStaking):
		return nil, &model.InvalidParametersError{Field: "max_staking", Reason: "must not be below min_staking"}
	}

	totalWire, err := units.ToLedgerUnits(totalPool, units.WireScale)
	if err != nil {
		return nil, err
	}
	minWire, err := units.ToLedgerUnits(minStaking, units.WireScale)
	if err != nil {
		return nil, err
	}
	maxWire, err := units.ToLedgerUnits(maxStaking, units.WireScale)
	if err != nil {
		return nil, err
	}

	return s.submit(ctx, "createStakingPool",
		totalWire,
		new(big.Int).SetUint64(uint64(interestRatePercent)),
		new(big.Int).SetUint64(uint64(stakingDurationDays)),
		minWire,
		maxWire,
	)
}

// EnterPool stakes amount into a pool and awaits confirmation. Min/max
// bounds are not enforced locally (the ledger is authoritative) but a
// violation of locally known bounds is logged.
func (s *Service) EnterPool(ctx context.Context, poolID uint64, amount decimal.Decimal, referrer string) (*types.Receipt, error) {
	if !amount.IsPositive() {
		return nil, &model.InvalidParametersError{Field: "amount", Reason: "must be positive"}
	}
	if !common.IsHexAddress(referrer) {
		return nil, &model.InvalidParametersError{Field: "referrer", Reason: fmt.Sprintf("not a well-formed address: %s", referrer)}
	}

	s.warnPoolBounds(poolID, amount)

	wire, err := units.ToLedgerUnits(amount, units.WireScale)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, "enterStaking",
		new(big.Int).SetUint64(poolID),
		wire,
		common.HexToAddress(referrer),
	)
}

// Withdraw withdraws the caller's stake from a pool and awaits confirmation.
func (s *Service) Withdraw(ctx context.Context, poolID uint64) (*types.Receipt, error) {
	if poolID == 0 {
		return nil, &model.InvalidParametersError{Field: "pool_id", Reason: "is required"}
	}
	if s.pools != nil {
		if _, ok := s.pools.Pool(poolID); !ok {
			s.logger.Warn("withdraw from pool unknown to local sync", zap.Uint64("pool_id", poolID))
		}
	}
	return s.submit(ctx, "withdrawAmount", new(big.Int).SetUint64(poolID))
}

func (s *Service) warnPoolBounds(poolID uint64, amount decimal.Decimal) {
	if s.pools == nil {
		return
	}
	pool, ok := s.pools.Pool(poolID)
	if !ok {
		s.logger.Warn("entering pool unknown to local sync", zap.Uint64("pool_id", poolID))
		return
	}
	if amount.LessThan(pool.MinStaking) || amount.GreaterThan(pool.MaxStaking) {
		s.logger.Warn("stake amount outside locally known pool bounds",
			zap.Uint64("pool_id", poolID),
			zap.String("amount", amount.String()),
			zap.String("min_staking", pool.MinStaking.String()),
			zap.String("max_staking", pool.MaxStaking.String()),
		)
	}
}

// submit packs the call, signs, broadcasts, and waits for confirmation.
// Pre-broadcast failures return synchronously; a post-broadcast revert
// surfaces as *RevertedError from the confirmation wait.
func (s *Service) submit(ctx context.Context, method string, args ...interface{}) (*types.Receipt, error) {
	if s.signer == nil {
		return nil, fmt.Errorf("no signer configured for %s", method)
	}

	input, err := s.contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	chainID, err := s.gateway.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	from := s.signer.Address()
	nonce, err := s.gateway.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, err
	}
	gasPrice, err := s.gateway.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	contract := s.cfg.Contract
	gas, err := s.gateway.EstimateGas(ctx, ethereum.CallMsg{
		From:     from,
		To:       &contract,
		GasPrice: gasPrice,
		Data:     input,
	})
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &contract,
		Value:    new(big.Int),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     input,
	})
	signed, err := s.signer.SignTx(tx, chainID)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", method, err)
	}

	if err := s.gateway.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}

	s.logger.Info("operation broadcast",
		zap.String("method", method),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
	)

	waitCtx := ctx
	if s.cfg.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
		defer cancel()
	}

	receipt, err := s.gateway.WaitConfirmed(waitCtx, signed.Hash(), s.cfg.Confirmations, s.cfg.ConfirmPoll)
	if err != nil {
		return nil, err
	}

	s.logger.Info("operation confirmed",
		zap.String("method", method),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("block_number", receipt.BlockNumber.Uint64()),
	)
	return receipt, nil
}
