package staking

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"stakescope/internal/model"
)

// Owner returns the contract owner address.
func (s *Service) Owner(ctx context.Context) (common.Address, error) {
	out, err := s.call(ctx, "owner")
	if err != nil {
		return common.Address{}, err
	}
	addr, err := asAddress(out[0])
	if err != nil {
		return common.Address{}, fmt.Errorf("owner: %w", err)
	}
	return addr, nil
}

// PoolCounter returns the number of pools ever created.
func (s *Service) PoolCounter(ctx context.Context) (uint64, error) {
	out, err := s.call(ctx, "stakingPoolCounter")
	if err != nil {
		return 0, err
	}
	raw, err := asBigInt(out[0])
	if err != nil {
		return 0, fmt.Errorf("pool counter: %w", err)
	}
	return asUint64(raw)
}

// PoolData reads the live pool view from the contract. Unlike the creation
// event it includes the running total collection.
func (s *Service) PoolData(ctx context.Context, poolID uint64) (model.PoolDetail, error) {
	out, err := s.call(ctx, "getStakingPoolData", new(big.Int).SetUint64(poolID))
	if err != nil {
		return model.PoolDetail{}, err
	}
	if len(out) != 7 {
		return model.PoolDetail{}, fmt.Errorf("pool data: unexpected value count %d", len(out))
	}

	idRaw, err := asBigInt(out[0])
	if err != nil {
		return model.PoolDetail{}, fmt.Errorf("pool data id: %w", err)
	}
	id, err := asUint64(idRaw)
	if err != nil {
		return model.PoolDetail{}, fmt.Errorf("pool data id: %w", err)
	}
	rate, err := asUint32(out[1])
	if err != nil {
		return model.PoolDetail{}, fmt.Errorf("pool data interest rate: %w", err)
	}
	totalPool, err := asWireAmount(out[2])
	if err != nil {
		return model.PoolDetail{}, fmt.Errorf("pool data total pool: %w", err)
	}
	totalCollection, err := asWireAmount(out[3])
	if err != nil {
		return model.PoolDetail{}, fmt.Errorf("pool data total collection: %w", err)
	}
	days, err := asUint32(out[4])
	if err != nil {
		return model.PoolDetail{}, fmt.Errorf("pool data staking days: %w", err)
	}
	minStaking, err := asWireAmount(out[5])
	if err != nil {
		return model.PoolDetail{}, fmt.Errorf("pool data min staking: %w", err)
	}
	maxStaking, err := asWireAmount(out[6])
	if err != nil {
		return model.PoolDetail{}, fmt.Errorf("pool data max staking: %w", err)
	}

	return model.PoolDetail{
		ID:                  id,
		InterestRatePercent: rate,
		TotalPool:           totalPool,
		TotalCollection:     totalCollection,
		StakingDurationDays: days,
		MinStaking:          minStaking,
		MaxStaking:          maxStaking,
	}, nil
}

func (s *Service) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	input, err := s.contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	contract := s.cfg.Contract
	data, err := s.gateway.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		return nil, err
	}
	out, err := s.contractABI.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}
