// Package projector maintains the event-sourced read model: it folds the
// contract's log events into pool, entry, and withdrawal views.
package projector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"stakescope/internal/model"
	"stakescope/internal/staking"
)

// Gateway is the ledger surface the projector reads through. Implemented by
// chain.Client.
type Gateway interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// EventSink optionally receives every newly folded event, e.g. for a JSONL
// archive. Sink failures are logged, never fail a refresh.
type EventSink interface {
	AppendEvents(events []model.Event) error
}

// Config holds the sync policy for the projector.
type Config struct {
	Contract     common.Address
	GenesisBlock uint64
	BatchSize    uint64
}

// Snapshot is one consistent, immutable state of the three views. Readers
// always observe a fully folded snapshot, never an intermediate one.
type Snapshot struct {
	Pools              []model.StakingPool
	Entries            []model.StakingEntry
	Withdrawals        []model.WithdrawalRecord
	LastProcessedBlock uint64
}

func (s *Snapshot) clone() *Snapshot {
	return &Snapshot{
		Pools:              append([]model.StakingPool(nil), s.Pools...),
		Entries:            append([]model.StakingEntry(nil), s.Entries...),
		Withdrawals:        append([]model.WithdrawalRecord(nil), s.Withdrawals...),
		LastProcessedBlock: s.LastProcessedBlock,
	}
}

// Projector folds decoded events into derived views with a monotonically
// advancing block cursor. Views are fully reconstructible by replaying all
// events from the genesis block.
type Projector struct {
	cfg     Config
	gateway Gateway
	decoder *staking.Decoder
	sink    EventSink
	logger  *zap.Logger

	group singleflight.Group

	mu      sync.RWMutex
	snap    *Snapshot
	seen    map[model.EventID]struct{}
	poolIDs map[uint64]struct{}
}

// New builds a projector starting at the configured genesis block.
func New(cfg Config, gateway Gateway, decoder *staking.Decoder, sink EventSink, logger *zap.Logger) (*Projector, error) {
	if gateway == nil {
		return nil, fmt.Errorf("gateway is nil")
	}
	if decoder == nil {
		return nil, fmt.Errorf("decoder is nil")
	}
	if cfg.BatchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{
		cfg:     cfg,
		gateway: gateway,
		decoder: decoder,
		sink:    sink,
		logger:  logger,
		snap:    &Snapshot{LastProcessedBlock: cfg.GenesisBlock},
		seen:    make(map[model.EventID]struct{}),
		poolIDs: make(map[uint64]struct{}),
	}, nil
}

// Refresh scans from the cursor to the current height and folds new events
// into the views. Concurrent calls share a single in-flight fold. The cursor
// only advances after every event kind was fetched successfully; a partial
// failure leaves it unchanged so the next refresh retries the same range.
func (p *Projector) Refresh(ctx context.Context) error {
	_, err, _ := p.group.Do("refresh", func() (interface{}, error) {
		return nil, p.refresh(ctx)
	})
	return err
}

func (p *Projector) refresh(ctx context.Context) error {
	height, err := p.gateway.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get current height: %w", err)
	}

	from := p.LastProcessedBlock()
	if height < from {
		p.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("height", height))
		return nil
	}

	ranges, err := SplitRange(from, height, p.cfg.BatchSize)
	if err != nil {
		return err
	}

	// All queries complete before any state changes: a failed kind must not
	// advance the cursor or leave a half-folded view behind.
	var raw []types.Log
	for _, topic := range p.decoder.EventTopics() {
		for _, blockRange := range ranges {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			logs, err := p.gateway.FilterLogs(ctx, blockRange.From, blockRange.To, p.cfg.Contract, []common.Hash{topic})
			if err != nil {
				return fmt.Errorf("query logs %d-%d: %w", blockRange.From, blockRange.To, err)
			}
			raw = append(raw, logs...)
		}
	}

	sort.Slice(raw, func(i, j int) bool {
		if raw[i].BlockNumber != raw[j].BlockNumber {
			return raw[i].BlockNumber < raw[j].BlockNumber
		}
		return raw[i].Index < raw[j].Index
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	staging := p.snap.clone()
	events := make([]model.Event, 0, len(raw))
	var folded, duplicates, failed int
	for _, entry := range raw {
		if entry.Removed {
			continue
		}
		record := buildLogRecord(entry)
		id := record.ID()
		if _, ok := p.seen[id]; ok {
			duplicates++
			continue
		}
		p.seen[id] = struct{}{}

		event, err := p.decoder.Decode(record)
		if err != nil {
			failed++
			p.logger.Warn("skipping undecodable event",
				zap.Uint64("block_number", record.BlockNumber),
				zap.String("event_id", id.String()),
				zap.Error(err),
			)
			continue
		}

		p.apply(staging, event)
		events = append(events, event)
		folded++
	}
	staging.LastProcessedBlock = height
	p.snap = staging

	p.logger.Info("refresh complete",
		zap.Uint64("from", from),
		zap.Uint64("to", height),
		zap.Int("folded", folded),
		zap.Int("duplicates", duplicates),
		zap.Int("failed", failed),
	)

	if p.sink != nil && len(events) > 0 {
		if err := p.sink.AppendEvents(events); err != nil {
			p.logger.Warn("event sink append failed", zap.Error(err))
		}
	}
	return nil
}

func (p *Projector) apply(staging *Snapshot, event model.Event) {
	switch ev := event.(type) {
	case model.PoolCreated:
		if _, ok := p.poolIDs[ev.PoolID]; ok {
			// Duplicate replay of a creation event for a known id.
			return
		}
		p.poolIDs[ev.PoolID] = struct{}{}
		pool := model.StakingPool{
			ID:                  ev.PoolID,
			TotalPool:           ev.TotalPool,
			InterestRatePercent: ev.InterestRatePercent,
			StakingDurationDays: ev.StakingDurationDays,
			MinStaking:          ev.MinStaking,
			MaxStaking:          ev.MaxStaking,
			FirstSeenBlock:      ev.BlockNumber,
		}
		at := sort.Search(len(staging.Pools), func(i int) bool {
			return staging.Pools[i].ID >= pool.ID
		})
		staging.Pools = append(staging.Pools, model.StakingPool{})
		copy(staging.Pools[at+1:], staging.Pools[at:])
		staging.Pools[at] = pool

		for i := range staging.Entries {
			if staging.Entries[i].PoolID == ev.PoolID {
				staging.Entries[i].ReferentialPending = false
			}
		}

	case model.StakingEntered:
		_, known := p.poolIDs[ev.PoolID]
		staging.Entries = append(staging.Entries, model.StakingEntry{
			ID:                  ev.ID,
			PoolID:              ev.PoolID,
			Staker:              ev.Staker,
			Amount:              ev.Amount,
			InterestRatePercent: ev.InterestRatePercent,
			EnteredAt:           ev.EnteredAt,
			Referrer:            ev.Referrer,
			ReferentialPending:  !known,
		})

	case model.Withdrawn:
		staging.Withdrawals = append(staging.Withdrawals, model.WithdrawalRecord{
			ID:           ev.ID,
			PoolID:       ev.PoolID,
			Staker:       ev.Staker,
			StakedAmount: ev.StakedAmount,
			InterestPaid: ev.InterestPaid,
		})
		for i := range staging.Entries {
			if staging.Entries[i].PoolID == ev.PoolID && staging.Entries[i].Staker == ev.Staker {
				staging.Entries[i].Withdrawn = true
			}
		}
	}
}

// Snapshot returns the current immutable view state.
func (p *Projector) Snapshot() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// Pools lists all known pools ordered by id ascending.
func (p *Projector) Pools() []model.StakingPool {
	return p.Snapshot().Pools
}

// Pool returns a single pool by id. Implements staking.PoolLookup.
func (p *Projector) Pool(id uint64) (model.StakingPool, bool) {
	pools := p.Snapshot().Pools
	at := sort.Search(len(pools), func(i int) bool { return pools[i].ID >= id })
	if at < len(pools) && pools[at].ID == id {
		return pools[at], true
	}
	return model.StakingPool{}, false
}

// Entries lists staking entries, optionally filtered by staker address
// (case-insensitive hex comparison). An empty staker returns everything.
func (p *Projector) Entries(staker string) []model.StakingEntry {
	entries := p.Snapshot().Entries
	if staker == "" {
		return entries
	}
	want := common.HexToAddress(staker)
	out := make([]model.StakingEntry, 0, len(entries))
	for _, entry := range entries {
		if common.HexToAddress(entry.Staker) == want {
			out = append(out, entry)
		}
	}
	return out
}

// Withdrawals lists all withdrawal records.
func (p *Projector) Withdrawals() []model.WithdrawalRecord {
	return p.Snapshot().Withdrawals
}

// LastProcessedBlock returns the current sync cursor.
func (p *Projector) LastProcessedBlock() uint64 {
	return p.Snapshot().LastProcessedBlock
}

var (
	hundred       = decimal.NewFromInt(100)
	secondsPerDay = decimal.NewFromInt(86400)
)

// AccruedInterest computes simple interest for an entry at the given time:
// amount * rate% * elapsedDays / 100, with fractional days, rounded
// half-even at the sixth decimal place. Times before entry yield zero.
func AccruedInterest(entry model.StakingEntry, now time.Time) decimal.Decimal {
	elapsed := now.Unix() - entry.EnteredAt.Unix()
	if elapsed <= 0 {
		return decimal.Zero
	}
	days := decimal.NewFromInt(elapsed).Div(secondsPerDay)
	rate := decimal.NewFromInt(int64(entry.InterestRatePercent))
	return entry.Amount.Mul(rate).Mul(days).Div(hundred).RoundBank(6)
}
