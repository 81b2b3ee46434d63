// Package chain wraps go-ethereum RPC access behind the narrow surface the
// read and write paths need: ordered log queries, block height, broadcast,
// and confirmation waiting.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"stakescope/internal/model"
)

// Client wraps go-ethereum RPC and provides helper methods.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	logger    *zap.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// Options tune transport retry behavior.
type Options struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string, opts Options, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, &model.TransportError{Op: "dial", Err: err}
	}

	return &Client{
		rpcClient:    rpcClient,
		ethClient:    ethclient.NewClient(rpcClient),
		logger:       logger,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return nil, &model.TransportError{Op: "chain id", Err: err}
	}
	return id, nil
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	height, err := c.ethClient.BlockNumber(ctx)
	if err != nil {
		return 0, &model.TransportError{Op: "block number", Err: err}
	}
	return height, nil
}

// FilterLogs returns logs emitted by address in the inclusive block range,
// filtered by topic0 and sorted ascending by (block, log index).
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	address common.Address,
	topic0 []common.Hash,
) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{address},
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}

	logs, err := c.ethClient.FilterLogs(ctx, query)
	if err != nil {
		return nil, &model.TransportError{Op: "filter logs", Err: err}
	}

	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
	return logs, nil
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	out, err := c.ethClient.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, &model.TransportError{Op: "call contract", Err: err}
	}
	return out, nil
}

// PendingNonceAt returns the next nonce for the account.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	nonce, err := c.ethClient.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, &model.TransportError{Op: "pending nonce", Err: err}
	}
	return nonce, nil
}

// SuggestGasPrice returns the node's gas price suggestion.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.ethClient.SuggestGasPrice(ctx)
	if err != nil {
		return nil, &model.TransportError{Op: "suggest gas price", Err: err}
	}
	return price, nil
}

// EstimateGas estimates the gas cost of msg.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	gas, err := c.ethClient.EstimateGas(ctx, msg)
	if err != nil {
		return 0, &model.TransportError{Op: "estimate gas", Err: err}
	}
	return gas, nil
}

// SendTransaction broadcasts a signed transaction. Broadcast does not imply
// confirmation; callers follow up with WaitConfirmed.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.ethClient.SendTransaction(ctx, tx); err != nil {
		return &model.TransportError{Op: "send transaction", Err: err}
	}
	return nil
}

// WaitConfirmed polls for the transaction receipt until it is mined and has
// reached the requested confirmation depth. Transport failures are retried
// with bounded exponential backoff; exhausting the budget surfaces
// ErrConfirmTimeout. Canceling ctx stops local waiting only, never the
// already-broadcast transaction.
func (c *Client) WaitConfirmed(ctx context.Context, txHash common.Hash, confirmations uint64, poll time.Duration) (*types.Receipt, error) {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	if confirmations == 0 {
		confirmations = 1
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		receipt, err := c.receiptWithRetry(ctx, txHash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return nil, &model.RevertedError{TxHash: txHash.Hex(), Reason: "execution reverted"}
			}
			depth, err := c.confirmationDepth(ctx, receipt.BlockNumber.Uint64())
			if err != nil {
				return nil, err
			}
			if depth >= confirmations {
				return receipt, nil
			}
		case errors.Is(err, ethereum.NotFound):
			// Not mined yet, keep polling.
		default:
			return nil, fmt.Errorf("%w: %v", model.ErrConfirmTimeout, err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s not confirmed before deadline", model.ErrConfirmTimeout, txHash.Hex())
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) receiptWithRetry(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := withRetry(ctx, c.maxRetries, c.retryBackoff, func(ctx context.Context) error {
		var err error
		receipt, err = c.ethClient.TransactionReceipt(ctx, txHash)
		if errors.Is(err, ethereum.NotFound) {
			// Pending, not a transport failure: the outer ticker keeps polling.
			receipt = nil
			return nil
		}
		if err != nil {
			c.logger.Warn("receipt fetch failed", zap.Error(err), zap.String("tx_hash", txHash.Hex()))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (c *Client) confirmationDepth(ctx context.Context, minedAt uint64) (uint64, error) {
	var head uint64
	err := withRetry(ctx, c.maxRetries, c.retryBackoff, func(ctx context.Context) error {
		var err error
		head, err = c.ethClient.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrConfirmTimeout, err)
	}
	if head < minedAt {
		return 0, nil
	}
	return head - minedAt + 1, nil
}
