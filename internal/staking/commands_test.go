package staking

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"stakescope/internal/model"
)

// Well-known throwaway test key.
const testKeyHex = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

type fakeGateway struct {
	calls     int
	sent      *types.Transaction
	sendErr   error
	waitErr   error
	receipt   *types.Receipt
	callOut   []byte
	callErr   error
	estimated uint64
}

func (g *fakeGateway) ChainID(context.Context) (*big.Int, error) {
	g.calls++
	return big.NewInt(80002), nil
}

func (g *fakeGateway) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	g.calls++
	return 7, nil
}

func (g *fakeGateway) SuggestGasPrice(context.Context) (*big.Int, error) {
	g.calls++
	return big.NewInt(1_000_000_000), nil
}

func (g *fakeGateway) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	g.calls++
	if g.estimated == 0 {
		g.estimated = 90_000
	}
	return g.estimated, nil
}

func (g *fakeGateway) SendTransaction(_ context.Context, tx *types.Transaction) error {
	g.calls++
	if g.sendErr != nil {
		return g.sendErr
	}
	g.sent = tx
	return nil
}

func (g *fakeGateway) WaitConfirmed(_ context.Context, txHash common.Hash, _ uint64, _ time.Duration) (*types.Receipt, error) {
	g.calls++
	if g.waitErr != nil {
		return nil, g.waitErr
	}
	if g.receipt == nil {
		g.receipt = &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			TxHash:      txHash,
			BlockNumber: big.NewInt(42),
		}
	}
	return g.receipt, nil
}

func (g *fakeGateway) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	g.calls++
	return g.callOut, g.callErr
}

type fixedPools map[uint64]model.StakingPool

func (p fixedPools) Pool(id uint64) (model.StakingPool, bool) {
	pool, ok := p[id]
	return pool, ok
}

func newTestService(t *testing.T, gateway *fakeGateway, pools PoolLookup) *Service {
	t.Helper()
	signer, err := NewPrivateKeySigner(testKeyHex)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Contract:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Confirmations: 1,
		ConfirmPoll:   time.Millisecond,
	}, gateway, signer, pools, nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return service
}

func TestCreatePoolValidatesBeforeNetwork(t *testing.T) {
	gateway := &fakeGateway{}
	service := newTestService(t, gateway, nil)

	_, err := service.CreatePool(context.Background(),
		decimal.Zero, 5, 30,
		decimal.RequireFromString("10"), decimal.RequireFromString("500"))

	var invalid *model.InvalidParametersError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidParametersError, got %v", err)
	}
	if invalid.Field != "total_pool" {
		t.Fatalf("field mismatch: %s", invalid.Field)
	}
	if gateway.calls != 0 {
		t.Fatalf("expected no gateway calls, got %d", gateway.calls)
	}
}

func TestCreatePoolNamesFirstOffendingField(t *testing.T) {
	gateway := &fakeGateway{}
	service := newTestService(t, gateway, nil)

	cases := []struct {
		name  string
		run   func() error
		field string
	}{
		{"rate", func() error {
			_, err := service.CreatePool(context.Background(),
				decimal.RequireFromString("1"), 0, 30,
				decimal.RequireFromString("1"), decimal.RequireFromString("2"))
			return err
		}, "interest_rate_percent"},
		{"days", func() error {
			_, err := service.CreatePool(context.Background(),
				decimal.RequireFromString("1"), 5, 0,
				decimal.RequireFromString("1"), decimal.RequireFromString("2"))
			return err
		}, "staking_duration_days"},
		{"min", func() error {
			_, err := service.CreatePool(context.Background(),
				decimal.RequireFromString("1"), 5, 30,
				decimal.RequireFromString("-1"), decimal.RequireFromString("2"))
			return err
		}, "min_staking"},
		{"inverted bounds", func() error {
			_, err := service.CreatePool(context.Background(),
				decimal.RequireFromString("1"), 5, 30,
				decimal.RequireFromString("3"), decimal.RequireFromString("2"))
			return err
		}, "max_staking"},
	}

	for _, tc := range cases {
		var invalid *model.InvalidParametersError
		if err := tc.run(); !errors.As(err, &invalid) || invalid.Field != tc.field {
			t.Fatalf("%s: expected field %s, got %v", tc.name, tc.field, err)
		}
	}
	if gateway.calls != 0 {
		t.Fatalf("expected no gateway calls, got %d", gateway.calls)
	}
}

func TestApproveRejectsNonPositiveAmount(t *testing.T) {
	gateway := &fakeGateway{}
	service := newTestService(t, gateway, nil)

	if _, err := service.ApproveAllowance(context.Background(), decimal.Zero); !errors.Is(err, model.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if gateway.calls != 0 {
		t.Fatalf("expected no gateway calls, got %d", gateway.calls)
	}
}

func TestApproveSubmitsAndConfirms(t *testing.T) {
	gateway := &fakeGateway{}
	service := newTestService(t, gateway, nil)

	receipt, err := service.ApproveAllowance(context.Background(), decimal.RequireFromString("100"))
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if receipt == nil || receipt.BlockNumber.Uint64() != 42 {
		t.Fatalf("receipt mismatch: %+v", receipt)
	}
	if gateway.sent == nil {
		t.Fatalf("no transaction broadcast")
	}
	if gateway.sent.Nonce() != 7 {
		t.Fatalf("nonce mismatch: %d", gateway.sent.Nonce())
	}

	contractABI, err := ContractABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	if !bytes.Equal(gateway.sent.Data()[:4], contractABI.Methods["approve"].ID) {
		t.Fatalf("calldata selector mismatch")
	}
}

func TestEnterPoolRejectsBadReferrer(t *testing.T) {
	gateway := &fakeGateway{}
	service := newTestService(t, gateway, nil)

	_, err := service.EnterPool(context.Background(), 1, decimal.RequireFromString("100"), "not-an-address")
	var invalid *model.InvalidParametersError
	if !errors.As(err, &invalid) || invalid.Field != "referrer" {
		t.Fatalf("expected referrer error, got %v", err)
	}
	if gateway.calls != 0 {
		t.Fatalf("expected no gateway calls, got %d", gateway.calls)
	}
}

func TestEnterPoolSubmitsDespiteBoundViolation(t *testing.T) {
	gateway := &fakeGateway{}
	pools := fixedPools{1: {
		ID:         1,
		MinStaking: decimal.RequireFromString("10"),
		MaxStaking: decimal.RequireFromString("500"),
	}}
	service := newTestService(t, gateway, pools)

	// Outside locally known bounds: warn only, the ledger is authoritative.
	receipt, err := service.EnterPool(context.Background(), 1,
		decimal.RequireFromString("9999"), "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB")
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if receipt == nil {
		t.Fatalf("missing receipt")
	}
}

func TestEnterPoolSurfacesRevert(t *testing.T) {
	gateway := &fakeGateway{waitErr: &model.RevertedError{TxHash: "0xdead", Reason: "pool full"}}
	service := newTestService(t, gateway, nil)

	_, err := service.EnterPool(context.Background(), 1,
		decimal.RequireFromString("100"), "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB")
	var reverted *model.RevertedError
	if !errors.As(err, &reverted) {
		t.Fatalf("expected RevertedError, got %v", err)
	}
	if gateway.sent == nil {
		t.Fatalf("revert must follow a broadcast")
	}
}

func TestWithdrawRequiresPoolID(t *testing.T) {
	gateway := &fakeGateway{}
	service := newTestService(t, gateway, nil)

	_, err := service.Withdraw(context.Background(), 0)
	var invalid *model.InvalidParametersError
	if !errors.As(err, &invalid) || invalid.Field != "pool_id" {
		t.Fatalf("expected pool_id error, got %v", err)
	}
	if gateway.calls != 0 {
		t.Fatalf("expected no gateway calls, got %d", gateway.calls)
	}
}

func TestSubmitFailureIsSynchronous(t *testing.T) {
	gateway := &fakeGateway{sendErr: &model.TransportError{Op: "send transaction", Err: errors.New("connection refused")}}
	service := newTestService(t, gateway, nil)

	_, err := service.Withdraw(context.Background(), 1)
	var transport *model.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestPoolCounterView(t *testing.T) {
	contractABI, err := ContractABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	out, err := contractABI.Methods["stakingPoolCounter"].Outputs.Pack(big.NewInt(5))
	if err != nil {
		t.Fatalf("pack outputs: %v", err)
	}

	gateway := &fakeGateway{callOut: out}
	service := newTestService(t, gateway, nil)

	counter, err := service.PoolCounter(context.Background())
	if err != nil {
		t.Fatalf("pool counter: %v", err)
	}
	if counter != 5 {
		t.Fatalf("counter mismatch: %d", counter)
	}
}

func TestPoolDataView(t *testing.T) {
	contractABI, err := ContractABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	out, err := contractABI.Methods["getStakingPoolData"].Outputs.Pack(
		big.NewInt(3),
		big.NewInt(5),
		wireAmount(t, "10000"),
		wireAmount(t, "1200"),
		big.NewInt(30),
		wireAmount(t, "10"),
		wireAmount(t, "500"),
	)
	if err != nil {
		t.Fatalf("pack outputs: %v", err)
	}

	gateway := &fakeGateway{callOut: out}
	service := newTestService(t, gateway, nil)

	detail, err := service.PoolData(context.Background(), 3)
	if err != nil {
		t.Fatalf("pool data: %v", err)
	}
	if detail.ID != 3 || detail.InterestRatePercent != 5 || detail.StakingDurationDays != 30 {
		t.Fatalf("detail mismatch: %+v", detail)
	}
	if !detail.TotalCollection.Equal(decimal.RequireFromString("1200")) {
		t.Fatalf("total collection mismatch: %s", detail.TotalCollection)
	}
}
