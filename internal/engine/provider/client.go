package provider

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Client is the narrow RPC surface the engine consumes. *RPCClient is the
// production implementation; tests substitute fakes.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// RPCClient wraps one or more ethclient endpoints for a single chain and
// fails over between them. Safe for concurrent use.
type RPCClient struct {
	urls    []string
	clients []*ethclient.Client
	mu      sync.RWMutex
	current int
}

// NewRPCClient dials the given URLs. Endpoints that fail to connect are kept
// and re-dialed lazily; only a fully unreachable set is an error.
func NewRPCClient(urls []string) (*RPCClient, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one RPC URL is required")
	}

	clients := make([]*ethclient.Client, 0, len(urls))
	connected := 0
	for _, url := range urls {
		client, err := ethclient.Dial(url)
		if err != nil {
			log.Warn().
				Str("url", url).
				Err(err).
				Msg("Failed to connect to RPC node, will retry on use")
			clients = append(clients, nil)
			continue
		}
		clients = append(clients, client)
		connected++
	}

	if connected == 0 {
		return nil, errors.New("failed to connect to any RPC node")
	}

	return &RPCClient{
		urls:    urls,
		clients: clients,
	}, nil
}

// Close closes all underlying connections.
func (c *RPCClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, client := range c.clients {
		if client != nil {
			client.Close()
		}
	}
}

// getClient returns the current endpoint, rotating past dead entries and
// re-dialing ones that never connected.
func (c *RPCClient) getClient(_ context.Context) (*ethclient.Client, error) {
	c.mu.RLock()
	client := c.clients[c.current]
	c.mu.RUnlock()

	if client != nil {
		return client, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.clients {
		idx := (c.current + i) % len(c.clients)
		if c.clients[idx] != nil {
			c.current = idx
			return c.clients[idx], nil
		}
		redialed, err := ethclient.Dial(c.urls[idx])
		if err != nil {
			continue
		}
		c.clients[idx] = redialed
		c.current = idx
		return redialed, nil
	}

	return nil, errors.New("no reachable RPC endpoint")
}

// rotate advances to the next endpoint after a failed call.
func (c *RPCClient) rotate() {
	c.mu.Lock()
	c.current = (c.current + 1) % len(c.clients)
	c.mu.Unlock()
}

// ChainID returns the chain ID reported by the node.
func (c *RPCClient) ChainID(ctx context.Context) (*big.Int, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get RPC client")
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		c.rotate()
		return nil, errors.Wrap(err, "failed to get chain ID")
	}

	return chainID, nil
}

// PendingNonceAt returns the pending nonce for the given address.
func (c *RPCClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get RPC client")
	}

	nonce, err := client.PendingNonceAt(ctx, account)
	if err != nil {
		c.rotate()
		return 0, errors.Wrap(err, "failed to get pending nonce")
	}

	return nonce, nil
}

// SuggestGasTipCap suggests a priority fee (EIP-1559).
func (c *RPCClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get RPC client")
	}

	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		c.rotate()
		return nil, errors.Wrap(err, "failed to suggest gas tip cap")
	}

	return tipCap, nil
}

// FeeHistory returns recent base fee and reward percentiles.
func (c *RPCClient) FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get RPC client")
	}

	history, err := client.FeeHistory(ctx, blockCount, lastBlock, rewardPercentiles)
	if err != nil {
		c.rotate()
		return nil, errors.Wrap(err, "failed to get fee history")
	}

	return history, nil
}

// HeaderByNumber returns the header for the given block, latest when nil.
func (c *RPCClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get RPC client")
	}

	header, err := client.HeaderByNumber(ctx, number)
	if err != nil {
		c.rotate()
		return nil, errors.Wrap(err, "failed to get block header")
	}

	return header, nil
}

// EstimateGas simulates the call and returns the gas estimate.
func (c *RPCClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get RPC client")
	}

	gas, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, errors.Wrap(err, "failed to estimate gas")
	}

	return gas, nil
}

// CallContract executes a read-only call at the given block.
func (c *RPCClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get RPC client")
	}

	data, err := client.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, errors.Wrap(err, "failed to call contract")
	}

	return data, nil
}

// CodeAt returns the contract code at the given account.
func (c *RPCClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get RPC client")
	}

	code, err := client.CodeAt(ctx, account, blockNumber)
	if err != nil {
		c.rotate()
		return nil, errors.Wrap(err, "failed to get code")
	}

	return code, nil
}

// SendTransaction broadcasts a signed transaction.
func (c *RPCClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	client, err := c.getClient(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get RPC client")
	}

	if err := client.SendTransaction(ctx, tx); err != nil {
		return errors.Wrap(err, "failed to send transaction")
	}

	return nil
}

// TransactionReceipt returns the receipt for the given hash, or
// ethereum.NotFound while the transaction is still pending.
func (c *RPCClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get RPC client")
	}

	receipt, err := client.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		c.rotate()
		return nil, errors.Wrap(err, "failed to get transaction receipt")
	}

	return receipt, nil
}

// TransactionByHash returns the transaction and whether it is still pending.
func (c *RPCClient) TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to get RPC client")
	}

	tx, pending, err := client.TransactionByHash(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, false, err
		}
		c.rotate()
		return nil, false, errors.Wrap(err, "failed to get transaction by hash")
	}

	return tx, pending, nil
}

// BlockNumber returns the latest block number.
func (c *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get RPC client")
	}

	number, err := client.BlockNumber(ctx)
	if err != nil {
		c.rotate()
		return 0, errors.Wrap(err, "failed to get latest block number")
	}

	return number, nil
}
