package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"transferWatch/internal/model"
)

// Options configures the chain client.
type Options struct {
	Retry RetryPolicy
	// RequestsPerSecond throttles attempts client side; zero disables it.
	RequestsPerSecond float64
	Burst             int
	Logger            *zap.Logger
}

// Client wraps go-ethereum RPC with bounded retries. It is safe for
// concurrent use; attempts on the transport are serialized.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	retry     *retrier
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		retry:     newRetrier(opts.Retry, limiter, opts.Logger),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.retry.do(ctx, "eth_chainId", func(ctx context.Context) error {
		var err error
		id, err = c.ethClient.ChainID(ctx)
		return err
	})
	return id, err
}

// LatestHeight returns the latest block number.
func (c *Client) LatestHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := c.retry.do(ctx, "eth_blockNumber", func(ctx context.Context) error {
		var err error
		height, err = c.ethClient.BlockNumber(ctx)
		return err
	})
	return height, err
}

// BlockByNumber returns the block with full transaction objects.
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (model.Block, error) {
	var block model.Block
	err := c.retry.do(ctx, "eth_getBlockByNumber", func(ctx context.Context) error {
		var raw *rpcBlock
		if err := c.rpcClient.CallContext(ctx, &raw, "eth_getBlockByNumber", hexutil.EncodeUint64(number), true); err != nil {
			return err
		}
		if raw == nil {
			return fmt.Errorf("%w: %d", ErrBlockNotFound, number)
		}
		block = raw.toModel()
		return nil
	})
	return block, err
}

// TransactionByHash returns a mined transaction and its block number.
func (c *Client) TransactionByHash(ctx context.Context, txHash common.Hash) (model.Transaction, uint64, error) {
	var (
		tx          model.Transaction
		blockNumber uint64
	)
	err := c.retry.do(ctx, "eth_getTransactionByHash", func(ctx context.Context) error {
		var raw *rpcTransaction
		if err := c.rpcClient.CallContext(ctx, &raw, "eth_getTransactionByHash", txHash); err != nil {
			return err
		}
		if raw == nil || raw.BlockNumber == nil {
			return fmt.Errorf("%w: %s", ErrTransactionNotFound, txHash.Hex())
		}
		tx = raw.toModel()
		blockNumber = uint64(*raw.BlockNumber)
		return nil
	})
	return tx, blockNumber, err
}

// ReceiptByHash returns the receipt logs for a transaction.
func (c *Client) ReceiptByHash(ctx context.Context, txHash common.Hash) (model.Receipt, error) {
	var receipt model.Receipt
	err := c.retry.do(ctx, "eth_getTransactionReceipt", func(ctx context.Context) error {
		var raw *rpcReceipt
		if err := c.rpcClient.CallContext(ctx, &raw, "eth_getTransactionReceipt", txHash); err != nil {
			return err
		}
		if raw == nil {
			return fmt.Errorf("%w: %s", ErrReceiptNotFound, txHash.Hex())
		}
		receipt = raw.toModel()
		return nil
	})
	return receipt, err
}

// CallContract performs an eth_call against the latest block.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var out []byte
	err := c.retry.do(ctx, "eth_call", func(ctx context.Context) error {
		var err error
		out, err = c.ethClient.CallContract(ctx, msg, nil)
		return err
	})
	return out, err
}
