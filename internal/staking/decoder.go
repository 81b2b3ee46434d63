// Package staking holds the contract-facing core: the event decoder that
// feeds the read model and the command service that submits writes.
package staking

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"stakescope/internal/model"
	"stakescope/internal/units"
)

// Decoder maps raw log entries to typed domain events. Pure: the same input
// always yields the same output, safe to re-decode on retry.
type Decoder struct {
	contractABI abi.ABI
	topicToName map[string]string
}

// NewDecoder builds a decoder for the staking contract events.
func NewDecoder() (*Decoder, error) {
	contractABI, err := ContractABI()
	if err != nil {
		return nil, err
	}

	topicToName := map[string]string{
		strings.ToLower(contractABI.Events["StakingPoolCreated"].ID.Hex()): "StakingPoolCreated",
		strings.ToLower(contractABI.Events["Staked"].ID.Hex()):             "Staked",
		strings.ToLower(contractABI.Events["Withdrawn"].ID.Hex()):          "Withdrawn",
	}

	return &Decoder{
		contractABI: contractABI,
		topicToName: topicToName,
	}, nil
}

// EventTopics returns the topic0 hashes of the three staking events, in a
// stable order: pool creation, entry, withdrawal.
func (d *Decoder) EventTopics() []common.Hash {
	return []common.Hash{
		d.contractABI.Events["StakingPoolCreated"].ID,
		d.contractABI.Events["Staked"].ID,
		d.contractABI.Events["Withdrawn"].ID,
	}
}

// TopicFor returns the topic0 hash for an event name.
func (d *Decoder) TopicFor(name string) common.Hash {
	return d.contractABI.Events[name].ID
}

// CanDecode checks if the topic0 is one of the staking events.
func (d *Decoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a domain event. A missing data payload is
// ErrMalformedEvent; any shape mismatch is a *DecodeError.
func (d *Decoder) Decode(log model.LogRecord) (model.Event, error) {
	if len(log.Topics) == 0 {
		return nil, d.decodeError(log, "missing topic0")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, d.decodeError(log, fmt.Sprintf("unsupported topic0: %s", log.Topics[0]))
	}
	if log.Data == "" || log.Data == "0x" {
		return nil, fmt.Errorf("%w: %s", model.ErrMalformedEvent, log.ID())
	}

	switch name {
	case "StakingPoolCreated":
		return d.decodePoolCreated(log)
	case "Staked":
		return d.decodeStaked(log)
	case "Withdrawn":
		return d.decodeWithdrawn(log)
	default:
		return nil, d.decodeError(log, fmt.Sprintf("unsupported event name: %s", name))
	}
}

func (d *Decoder) decodePoolCreated(log model.LogRecord) (model.Event, error) {
	event := d.contractABI.Events["StakingPoolCreated"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, d.decodeError(log, err.Error())
	}

	var indexed struct {
		StakingId *big.Int
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return nil, d.decodeError(log, fmt.Sprintf("parse topics: %v", err))
	}
	poolID, err := asUint64(indexed.StakingId)
	if err != nil {
		return nil, d.decodeError(log, fmt.Sprintf("staking id: %v", err))
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, d.decodeError(log, err.Error())
	}
	if len(values) != 5 {
		return nil, d.decodeError(log, fmt.Sprintf("unexpected pool creation values: %d", len(values)))
	}

	totalPool, err := asWireAmount(values[0])
	if err != nil {
		return nil, d.decodeError(log, fmt.Sprintf("total pool: %v", err))
	}
	rate, err := asUint32(values[1])
	if err != nil {
		return nil, d.decodeError(log, fmt.Sprintf("interest rate: %v", err))
	}
	days, err := asUint32(values[2])
	if err != nil {
		return nil, d.decodeError(log, fmt.Sprintf("staking days: %v", err))
	}
	minStaking, err := asWireAmount(values[3])
	if err != nil {
		return nil, d.decodeError(log, fmt.Sprintf("min staking: %v", err))
	}
	maxStaking, err := asWireAmount(values[4])
	if err != nil {
		return nil, d.decodeError(log, fmt.Sprintf("max staking: %v", err))
	}

	return model.PoolCreated{
		EventMeta:           eventMeta(log),
		PoolID:              poolID,
		TotalPool:           totalPool,
		InterestRatePercent: rate,
		StakingDurationDays: days,
		MinStaking:          minStaking,
		MaxStaking:          maxStaking,
	}, nil
}

func (d *Decoder) decodeStaked(log model.LogRecord) (model.Event, error) {
	event := d.contractABI.Events["Staked"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, d.decodeError(log, err.Error())
	}

	var indexed struct {
		StakingId *big.Int
		Staker    common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return nil, d.decodeError(log, fmt.Sprintf("parse topics: %v", err))
	}
	poolID, err := asUint64(indexed.StakingId)
	if err != nil {
		return nil, d.decodeError(log, fmt.Sprintf("staking id: %v", err))
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, d.decodeError(log, err.Error())
	}
	if len(values) != 4 {
		return nil, d.decodeError(log, fmt.Sprintf("unexpected staking values: %d", len(values)))
	}

	amount, err := asWireAmount(values[0])
	if err != nil {
		return nil, d.decodeError(log, fmt.Sprintf("amount: %v", err))
	}
	rate, err := asUint32(values[1])
	if err != nil {
		return nil, d.decodeError(log, fmt.Sprintf("interest rate: %v", err))
	}
	timestamp, err := asBigInt(values[2])
	if err != nil {
		return nil, d.decodeError(log, fmt.Sprintf("timestamp: %v", err))
	}
	enteredAt, err := asUint64(timestamp)
	if err != nil {
		return nil, d.decodeError(log, fmt.Sprintf("timestamp: %v", err))
	}
	referrer, err := asAddress(values[3])
	if err != nil {
		return nil, d.decodeError(log, fmt.Sprintf("referrer: %v", err))
	}

	return model.StakingEntered{
		EventMeta:           eventMeta(log),
		PoolID:              poolID,
		Staker:              indexed.Staker.Hex(),
		Amount:              amount,
		InterestRatePercent: rate,
		EnteredAt:           time.Unix(int64(enteredAt), 0).UTC(),
		Referrer:            referrer.Hex(),
	}, nil
}

func (d *Decoder) decodeWithdrawn(log model.LogRecord) (model.Event, error) {
	event := d.contractABI.Events["Withdrawn"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, d.decodeError(log, err.Error())
	}

	var indexed struct {
		StakingId *big.Int
		Staker    common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return nil, d.decodeError(log, fmt.Sprintf("parse topics: %v", err))
	}
	poolID, err := asUint64(indexed.StakingId)
	if err != nil {
		return nil, d.decodeError(log, fmt.Sprintf("staking id: %v", err))
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, d.decodeError(log, err.Error())
	}
	if len(values) != 2 {
		return nil, d.decodeError(log, fmt.Sprintf("unexpected withdrawal values: %d", len(values)))
	}

	stakedAmount, err := asWireAmount(values[0])
	if err != nil {
		return nil, d.decodeError(log, fmt.Sprintf("staked amount: %v", err))
	}
	interest, err := asWireAmount(values[1])
	if err != nil {
		return nil, d.decodeError(log, fmt.Sprintf("interest: %v", err))
	}

	return model.Withdrawn{
		EventMeta:    eventMeta(log),
		PoolID:       poolID,
		Staker:       indexed.Staker.Hex(),
		StakedAmount: stakedAmount,
		InterestPaid: interest,
	}, nil
}

func (d *Decoder) decodeError(log model.LogRecord, reason string) *model.DecodeError {
	topic0 := ""
	if len(log.Topics) > 0 {
		topic0 = log.Topics[0]
	}
	return &model.DecodeError{
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		Topic0:      topic0,
		Reason:      reason,
	}
}

func eventMeta(log model.LogRecord) model.EventMeta {
	return model.EventMeta{ID: log.ID(), BlockNumber: log.BlockNumber}
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	out, ok := value.(*big.Int)
	if !ok || out == nil {
		return nil, fmt.Errorf("expected big int, got %T", value)
	}
	return out, nil
}

func asAddress(value interface{}) (common.Address, error) {
	out, ok := value.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("expected address, got %T", value)
	}
	return out, nil
}

func asUint64(value *big.Int) (uint64, error) {
	if value == nil || !value.IsUint64() {
		return 0, fmt.Errorf("value does not fit in uint64: %s", value)
	}
	return value.Uint64(), nil
}

func asUint32(value interface{}) (uint32, error) {
	raw, err := asBigInt(value)
	if err != nil {
		return 0, err
	}
	if !raw.IsUint64() || raw.Uint64() > math.MaxUint32 {
		return 0, fmt.Errorf("value does not fit in uint32: %s", raw)
	}
	return uint32(raw.Uint64()), nil
}

func asWireAmount(value interface{}) (decimal.Decimal, error) {
	raw, err := asBigInt(value)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return units.FromLedgerUnits(raw, units.WireScale)
}
