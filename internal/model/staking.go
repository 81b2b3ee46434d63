package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EventID identifies a physical log entry. Unique per the ledger: the same
// transaction hash and log index never occur twice.
type EventID struct {
	TxHash   string `json:"tx_hash"`
	LogIndex uint64 `json:"log_index"`
}

func (id EventID) String() string {
	return fmt.Sprintf("%s:%d", id.TxHash, id.LogIndex)
}

// StakingPool is a pool as announced by its creation event. Pool parameters
// are fixed at creation; no mutation events exist for this contract.
type StakingPool struct {
	ID                  uint64          `json:"id"`
	TotalPool           decimal.Decimal `json:"total_pool"`
	InterestRatePercent uint32          `json:"interest_rate_percent"`
	StakingDurationDays uint32          `json:"staking_duration_days"`
	MinStaking          decimal.Decimal `json:"min_staking"`
	MaxStaking          decimal.Decimal `json:"max_staking"`
	FirstSeenBlock      uint64          `json:"first_seen_block"`
}

// StakingEntry is one staker's position in a pool. The contract reuses the
// pool id as the staking id, so PoolID is not unique across entries; ID is.
// Entries are never removed: a withdrawal only sets the Withdrawn flag.
type StakingEntry struct {
	ID                  EventID         `json:"id"`
	PoolID              uint64          `json:"pool_id"`
	Staker              string          `json:"staker"`
	Amount              decimal.Decimal `json:"amount"`
	InterestRatePercent uint32          `json:"interest_rate_percent"`
	EnteredAt           time.Time       `json:"entered_at"`
	Referrer            string          `json:"referrer"`
	Withdrawn           bool            `json:"withdrawn"`
	// ReferentialPending flags an entry whose pool id has not been seen in
	// any creation event yet. Cleared once the pool appears.
	ReferentialPending bool `json:"referential_pending,omitempty"`
}

// WithdrawalRecord is a terminal withdrawal event.
type WithdrawalRecord struct {
	ID           EventID         `json:"id"`
	PoolID       uint64          `json:"pool_id"`
	Staker       string          `json:"staker"`
	StakedAmount decimal.Decimal `json:"staked_amount"`
	InterestPaid decimal.Decimal `json:"interest_paid"`
}

// PoolDetail is the live contract view of a pool from getStakingPoolData.
// TotalCollection is only available here, not in the creation event.
type PoolDetail struct {
	ID                  uint64          `json:"id"`
	InterestRatePercent uint32          `json:"interest_rate_percent"`
	TotalPool           decimal.Decimal `json:"total_pool"`
	TotalCollection     decimal.Decimal `json:"total_collection"`
	StakingDurationDays uint32          `json:"staking_duration_days"`
	MinStaking          decimal.Decimal `json:"min_staking"`
	MaxStaking          decimal.Decimal `json:"max_staking"`
}
