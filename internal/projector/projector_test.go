package projector

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stakescope/internal/model"
	"stakescope/internal/staking"
	"stakescope/internal/units"
)

var testContract = common.HexToAddress("0x1111111111111111111111111111111111111111")

type scriptedGateway struct {
	height   uint64
	logs     []types.Log
	failures map[common.Hash]error
	queries  int
}

func (g *scriptedGateway) BlockNumber(context.Context) (uint64, error) {
	return g.height, nil
}

func (g *scriptedGateway) FilterLogs(_ context.Context, from, to uint64, _ common.Address, topic0 []common.Hash) ([]types.Log, error) {
	g.queries++
	if err, ok := g.failures[topic0[0]]; ok {
		return nil, err
	}
	var out []types.Log
	for _, log := range g.logs {
		if log.BlockNumber < from || log.BlockNumber > to {
			continue
		}
		if len(log.Topics) == 0 || log.Topics[0] != topic0[0] {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

type memorySink struct {
	events []model.Event
}

func (s *memorySink) AppendEvents(events []model.Event) error {
	s.events = append(s.events, events...)
	return nil
}

func amountWire(t *testing.T, value string) *big.Int {
	t.Helper()
	out, err := units.ToLedgerUnits(decimal.RequireFromString(value), units.WireScale)
	if err != nil {
		t.Fatalf("wire amount %s: %v", value, err)
	}
	return out
}

func idTopic(v uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(v))
}

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(a.Bytes(), 32))
}

func newTestDecoder(t *testing.T) *staking.Decoder {
	t.Helper()
	decoder, err := staking.NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	return decoder
}

func poolCreatedLog(t *testing.T, decoder *staking.Decoder, block uint64, index uint, poolID uint64, totalPool, minStaking, maxStaking string, rate, days int64) types.Log {
	t.Helper()
	contractABI, err := staking.ContractABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	data, err := contractABI.Events["StakingPoolCreated"].Inputs.NonIndexed().Pack(
		amountWire(t, totalPool),
		big.NewInt(rate),
		big.NewInt(days),
		amountWire(t, minStaking),
		amountWire(t, maxStaking),
	)
	if err != nil {
		t.Fatalf("pack pool created: %v", err)
	}
	return types.Log{
		Address:     testContract,
		Topics:      []common.Hash{decoder.TopicFor("StakingPoolCreated"), idTopic(poolID)},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block*1000 + uint64(index)))),
		Index:       index,
	}
}

func stakedLog(t *testing.T, decoder *staking.Decoder, block uint64, index uint, poolID uint64, staker common.Address, amount string, rate int64, enteredAt int64) types.Log {
	t.Helper()
	contractABI, err := staking.ContractABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	data, err := contractABI.Events["Staked"].Inputs.NonIndexed().Pack(
		amountWire(t, amount),
		big.NewInt(rate),
		big.NewInt(enteredAt),
		common.Address{},
	)
	if err != nil {
		t.Fatalf("pack staked: %v", err)
	}
	return types.Log{
		Address:     testContract,
		Topics:      []common.Hash{decoder.TopicFor("Staked"), idTopic(poolID), addrTopic(staker)},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block*1000 + uint64(index)))),
		Index:       index,
	}
}

func withdrawnLog(t *testing.T, decoder *staking.Decoder, block uint64, index uint, poolID uint64, staker common.Address, stakedAmount, interestPaid string) types.Log {
	t.Helper()
	contractABI, err := staking.ContractABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	data, err := contractABI.Events["Withdrawn"].Inputs.NonIndexed().Pack(
		amountWire(t, stakedAmount),
		amountWire(t, interestPaid),
	)
	if err != nil {
		t.Fatalf("pack withdrawn: %v", err)
	}
	return types.Log{
		Address:     testContract,
		Topics:      []common.Hash{decoder.TopicFor("Withdrawn"), idTopic(poolID), addrTopic(staker)},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block*1000 + uint64(index)))),
		Index:       index,
	}
}

func newTestProjector(t *testing.T, gateway *scriptedGateway, sink EventSink) *Projector {
	t.Helper()
	proj, err := New(Config{
		Contract:     testContract,
		GenesisBlock: 1,
		BatchSize:    100,
	}, gateway, newTestDecoder(t), sink, zap.NewNop())
	if err != nil {
		t.Fatalf("projector: %v", err)
	}
	return proj
}

func TestRefreshFoldsViews(t *testing.T) {
	decoder := newTestDecoder(t)
	staker := common.HexToAddress("0xAAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa")
	other := common.HexToAddress("0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB")

	gateway := &scriptedGateway{
		height: 20,
		logs: []types.Log{
			poolCreatedLog(t, decoder, 10, 0, 1, "10000", "10", "500", 5, 30),
			stakedLog(t, decoder, 11, 0, 1, staker, "100", 5, 1700000000),
			stakedLog(t, decoder, 12, 0, 1, other, "250", 5, 1700001000),
		},
	}
	sink := &memorySink{}
	proj := newTestProjector(t, gateway, sink)

	if err := proj.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	pools := proj.Pools()
	if len(pools) != 1 || pools[0].ID != 1 {
		t.Fatalf("pools mismatch: %+v", pools)
	}
	if !pools[0].TotalPool.Equal(decimal.RequireFromString("10000")) {
		t.Fatalf("total pool mismatch: %s", pools[0].TotalPool)
	}
	if pools[0].FirstSeenBlock != 10 {
		t.Fatalf("first seen block mismatch: %d", pools[0].FirstSeenBlock)
	}

	pool, ok := proj.Pool(1)
	if !ok || pool.InterestRatePercent != 5 || pool.StakingDurationDays != 30 {
		t.Fatalf("pool lookup mismatch: %+v ok=%v", pool, ok)
	}
	if _, ok := proj.Pool(2); ok {
		t.Fatalf("unexpected pool 2")
	}

	all := proj.Entries("")
	if len(all) != 2 {
		t.Fatalf("entries mismatch: %+v", all)
	}
	mine := proj.Entries(staker.Hex())
	if len(mine) != 1 || !mine[0].Amount.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("filtered entries mismatch: %+v", mine)
	}
	if mine[0].ReferentialPending || mine[0].Withdrawn {
		t.Fatalf("entry flags mismatch: %+v", mine[0])
	}

	if proj.LastProcessedBlock() != 20 {
		t.Fatalf("cursor mismatch: %d", proj.LastProcessedBlock())
	}
	if len(sink.events) != 3 {
		t.Fatalf("sink events mismatch: %d", len(sink.events))
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	decoder := newTestDecoder(t)
	staker := common.HexToAddress("0xAAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa")

	gateway := &scriptedGateway{
		height: 12,
		logs: []types.Log{
			poolCreatedLog(t, decoder, 10, 0, 1, "10000", "10", "500", 5, 30),
			// Log at the scan boundary: the next refresh re-reads this block.
			stakedLog(t, decoder, 12, 0, 1, staker, "100", 5, 1700000000),
		},
	}
	proj := newTestProjector(t, gateway, nil)

	if err := proj.Refresh(context.Background()); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if err := proj.Refresh(context.Background()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	if got := len(proj.Pools()); got != 1 {
		t.Fatalf("pools duplicated: %d", got)
	}
	if got := len(proj.Entries("")); got != 1 {
		t.Fatalf("entries duplicated: %d", got)
	}
}

func TestRefreshPartialFailureLeavesStateUntouched(t *testing.T) {
	decoder := newTestDecoder(t)
	staker := common.HexToAddress("0xAAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa")

	gateway := &scriptedGateway{
		height: 20,
		logs: []types.Log{
			poolCreatedLog(t, decoder, 10, 0, 1, "10000", "10", "500", 5, 30),
			stakedLog(t, decoder, 11, 0, 1, staker, "100", 5, 1700000000),
		},
		failures: map[common.Hash]error{
			decoder.TopicFor("Staked"): errors.New("rpc unavailable"),
		},
	}
	proj := newTestProjector(t, gateway, nil)

	if err := proj.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	if proj.LastProcessedBlock() != 1 {
		t.Fatalf("cursor advanced on failure: %d", proj.LastProcessedBlock())
	}
	if len(proj.Pools()) != 0 || len(proj.Entries("")) != 0 {
		t.Fatalf("partial fold observed: %+v", proj.Snapshot())
	}

	gateway.failures = nil
	if err := proj.Refresh(context.Background()); err != nil {
		t.Fatalf("retry refresh: %v", err)
	}
	if len(proj.Pools()) != 1 || len(proj.Entries("")) != 1 {
		t.Fatalf("retry fold mismatch: %+v", proj.Snapshot())
	}
	if proj.LastProcessedBlock() != 20 {
		t.Fatalf("cursor mismatch after retry: %d", proj.LastProcessedBlock())
	}
}

func TestEntryForUnknownPoolIsPending(t *testing.T) {
	decoder := newTestDecoder(t)
	staker := common.HexToAddress("0xAAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa")

	gateway := &scriptedGateway{
		height: 20,
		logs: []types.Log{
			stakedLog(t, decoder, 10, 0, 7, staker, "100", 5, 1700000000),
			stakedLog(t, decoder, 10, 1, 9, staker, "50", 3, 1700000000),
		},
	}
	proj := newTestProjector(t, gateway, nil)

	if err := proj.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	for _, entry := range proj.Entries("") {
		if !entry.ReferentialPending {
			t.Fatalf("entry should be pending: %+v", entry)
		}
	}

	// Pool 7 shows up later; its entries settle, pool 9's stay pending.
	gateway.logs = append(gateway.logs, poolCreatedLog(t, decoder, 25, 0, 7, "10000", "10", "500", 5, 30))
	gateway.height = 30
	if err := proj.Refresh(context.Background()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	for _, entry := range proj.Entries("") {
		switch entry.PoolID {
		case 7:
			if entry.ReferentialPending {
				t.Fatalf("pool 7 entry still pending: %+v", entry)
			}
		case 9:
			if !entry.ReferentialPending {
				t.Fatalf("pool 9 entry settled without a pool: %+v", entry)
			}
		default:
			t.Fatalf("unexpected pool id %d", entry.PoolID)
		}
	}
}

func TestWithdrawnMarksMatchingEntries(t *testing.T) {
	decoder := newTestDecoder(t)
	staker := common.HexToAddress("0xAAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa")
	other := common.HexToAddress("0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB")

	gateway := &scriptedGateway{
		height: 20,
		logs: []types.Log{
			poolCreatedLog(t, decoder, 10, 0, 1, "10000", "10", "500", 5, 30),
			stakedLog(t, decoder, 11, 0, 1, staker, "100", 5, 1700000000),
			stakedLog(t, decoder, 11, 1, 1, other, "250", 5, 1700000000),
			withdrawnLog(t, decoder, 15, 0, 1, staker, "100", "12.5"),
		},
	}
	proj := newTestProjector(t, gateway, nil)

	if err := proj.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	withdrawals := proj.Withdrawals()
	if len(withdrawals) != 1 {
		t.Fatalf("withdrawals mismatch: %+v", withdrawals)
	}
	if !withdrawals[0].InterestPaid.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("interest mismatch: %s", withdrawals[0].InterestPaid)
	}

	for _, entry := range proj.Entries("") {
		withdrew := entry.Staker == staker.Hex()
		if entry.Withdrawn != withdrew {
			t.Fatalf("withdrawn flag mismatch: %+v", entry)
		}
	}
}

func TestRefreshSkipsRemovedLogs(t *testing.T) {
	decoder := newTestDecoder(t)

	removed := poolCreatedLog(t, decoder, 10, 0, 1, "10000", "10", "500", 5, 30)
	removed.Removed = true

	gateway := &scriptedGateway{height: 20, logs: []types.Log{removed}}
	proj := newTestProjector(t, gateway, nil)

	if err := proj.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(proj.Pools()) != 0 {
		t.Fatalf("removed log was folded: %+v", proj.Pools())
	}
	if proj.LastProcessedBlock() != 20 {
		t.Fatalf("cursor mismatch: %d", proj.LastProcessedBlock())
	}
}

func TestAccruedInterest(t *testing.T) {
	entry := model.StakingEntry{
		Amount:              decimal.RequireFromString("1000"),
		InterestRatePercent: 5,
		EnteredAt:           time.Unix(1700000000, 0),
	}

	tenDays := entry.EnteredAt.Add(10 * 24 * time.Hour)
	if got := AccruedInterest(entry, tenDays); !got.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("ten day interest mismatch: %s", got)
	}

	halfDay := entry.EnteredAt.Add(12 * time.Hour)
	if got := AccruedInterest(entry, halfDay); !got.Equal(decimal.RequireFromString("25")) {
		t.Fatalf("half day interest mismatch: %s", got)
	}

	before := entry.EnteredAt.Add(-time.Hour)
	if got := AccruedInterest(entry, before); !got.Equal(decimal.Zero) {
		t.Fatalf("pre-entry interest mismatch: %s", got)
	}
}
