package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is the closed union of decoded staking contract events. The three
// variants below are the only implementations.
type Event interface {
	EventID() EventID
	EventBlock() uint64
	EventName() string
}

// EventMeta carries the log identity shared by every event variant.
type EventMeta struct {
	ID          EventID `json:"id"`
	BlockNumber uint64  `json:"block_number"`
}

func (m EventMeta) EventID() EventID   { return m.ID }
func (m EventMeta) EventBlock() uint64 { return m.BlockNumber }

// PoolCreated is the decoded StakingPoolCreated event payload.
type PoolCreated struct {
	EventMeta
	PoolID              uint64          `json:"pool_id"`
	TotalPool           decimal.Decimal `json:"total_pool"`
	InterestRatePercent uint32          `json:"interest_rate_percent"`
	StakingDurationDays uint32          `json:"staking_duration_days"`
	MinStaking          decimal.Decimal `json:"min_staking"`
	MaxStaking          decimal.Decimal `json:"max_staking"`
}

func (PoolCreated) EventName() string { return "StakingPoolCreated" }

// StakingEntered is the decoded Staked event payload.
type StakingEntered struct {
	EventMeta
	PoolID              uint64          `json:"pool_id"`
	Staker              string          `json:"staker"`
	Amount              decimal.Decimal `json:"amount"`
	InterestRatePercent uint32          `json:"interest_rate_percent"`
	EnteredAt           time.Time       `json:"entered_at"`
	Referrer            string          `json:"referrer"`
}

func (StakingEntered) EventName() string { return "Staked" }

// Withdrawn is the decoded Withdrawn event payload.
type Withdrawn struct {
	EventMeta
	PoolID       uint64          `json:"pool_id"`
	Staker       string          `json:"staker"`
	StakedAmount decimal.Decimal `json:"staked_amount"`
	InterestPaid decimal.Decimal `json:"interest_paid"`
}

func (Withdrawn) EventName() string { return "Withdrawn" }
