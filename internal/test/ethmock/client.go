// Package ethmock provides a configurable in-memory RPC client for tests.
package ethmock

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// Client implements provider.Client. Each method delegates to the matching
// function field when set and falls back to a benign default otherwise.
// Every invocation is counted, so tests can assert which RPC surface a code
// path touched.
type Client struct {
	ChainIDFn            func(ctx context.Context) (*big.Int, error)
	PendingNonceAtFn     func(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCapFn   func(ctx context.Context) (*big.Int, error)
	FeeHistoryFn         func(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error)
	HeaderByNumberFn     func(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGasFn        func(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContractFn       func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAtFn             func(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	SendTransactionFn    func(ctx context.Context, tx *types.Transaction) error
	TransactionReceiptFn func(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHashFn  func(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
	BlockNumberFn        func(ctx context.Context) (uint64, error)

	mu    sync.Mutex
	calls map[string]int
}

func (c *Client) record(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[method]++
}

// Calls returns how often the given method was invoked.
func (c *Client) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// TotalCalls returns the number of RPC invocations across all methods.
func (c *Client) TotalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.record("ChainID")
	if c.ChainIDFn != nil {
		return c.ChainIDFn(ctx)
	}
	return big.NewInt(1), nil
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c.record("PendingNonceAt")
	if c.PendingNonceAtFn != nil {
		return c.PendingNonceAtFn(ctx, account)
	}
	return 0, nil
}

func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	c.record("SuggestGasTipCap")
	if c.SuggestGasTipCapFn != nil {
		return c.SuggestGasTipCapFn(ctx)
	}
	return big.NewInt(1_000_000_000), nil
}

func (c *Client) FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error) {
	c.record("FeeHistory")
	if c.FeeHistoryFn != nil {
		return c.FeeHistoryFn(ctx, blockCount, lastBlock, rewardPercentiles)
	}
	return nil, errors.New("fee history unavailable")
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c.record("HeaderByNumber")
	if c.HeaderByNumberFn != nil {
		return c.HeaderByNumberFn(ctx, number)
	}
	return &types.Header{Number: big.NewInt(100), BaseFee: big.NewInt(10_000_000_000)}, nil
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	c.record("EstimateGas")
	if c.EstimateGasFn != nil {
		return c.EstimateGasFn(ctx, msg)
	}
	return 21000, nil
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.record("CallContract")
	if c.CallContractFn != nil {
		return c.CallContractFn(ctx, msg, blockNumber)
	}
	return make([]byte, 32), nil
}

func (c *Client) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	c.record("CodeAt")
	if c.CodeAtFn != nil {
		return c.CodeAtFn(ctx, account, blockNumber)
	}
	return nil, nil
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.record("SendTransaction")
	if c.SendTransactionFn != nil {
		return c.SendTransactionFn(ctx, tx)
	}
	return nil
}

func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.record("TransactionReceipt")
	if c.TransactionReceiptFn != nil {
		return c.TransactionReceiptFn(ctx, txHash)
	}
	return nil, ethereum.NotFound
}

func (c *Client) TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error) {
	c.record("TransactionByHash")
	if c.TransactionByHashFn != nil {
		return c.TransactionByHashFn(ctx, txHash)
	}
	return nil, false, ethereum.NotFound
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	c.record("BlockNumber")
	if c.BlockNumberFn != nil {
		return c.BlockNumberFn(ctx)
	}
	return 100, nil
}
