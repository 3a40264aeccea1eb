package token

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"transferWatch/internal/metrics"
	"transferWatch/internal/model"
)

const (
	// UnknownSymbol is used when symbol() cannot be read.
	UnknownSymbol = "UNKNOWN"
	// DefaultDecimals is used when decimals() cannot be read.
	DefaultDecimals uint8 = 18
)

// Caller performs read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// Cache memoizes token metadata by contract address for the process lifetime.
// Failed lookups are cached with fallback values.
type Cache struct {
	caller Caller
	logger *zap.Logger

	mu    sync.RWMutex
	data  map[common.Address]model.TokenMeta
	group singleflight.Group
}

func NewCache(caller Caller, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		caller: caller,
		logger: logger,
		data:   make(map[common.Address]model.TokenMeta),
	}
}

// Get returns cached metadata, fetching it on first use.
func (c *Cache) Get(ctx context.Context, address common.Address) model.TokenMeta {
	if meta, ok := c.lookup(address); ok {
		metrics.TokenMetaLookups.WithLabelValues("hit").Inc()
		return meta
	}

	v, _, _ := c.group.Do(address.Hex(), func() (interface{}, error) {
		if meta, ok := c.lookup(address); ok {
			return meta, nil
		}
		metrics.TokenMetaLookups.WithLabelValues("miss").Inc()
		meta := FetchTokenMeta(ctx, c.caller, address, c.logger)
		if ctx.Err() == nil {
			c.Set(address, meta)
		}
		return meta, nil
	})
	return v.(model.TokenMeta)
}

func (c *Cache) lookup(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

// Set stores metadata for an address.
func (c *Cache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// Len returns the number of cached contracts.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// FetchTokenMeta loads symbol and decimals with independent calls; each
// falls back to its default on failure.
func FetchTokenMeta(ctx context.Context, caller Caller, token common.Address, logger *zap.Logger) model.TokenMeta {
	if logger == nil {
		logger = zap.NewNop()
	}
	meta := model.TokenMeta{
		Address:  token.Hex(),
		Symbol:   UnknownSymbol,
		Decimals: DefaultDecimals,
	}
	if caller == nil {
		return meta
	}

	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		logger.Error("parse erc20 string abi", zap.Error(err))
		return meta
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		logger.Error("parse erc20 bytes32 abi", zap.Error(err))
		return meta
	}

	call := func(method string) ([]byte, error) {
		data, err := stringABI.Pack(method)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		msg := ethereum.CallMsg{To: &token, Data: data}
		resp, err := caller.CallContract(ctx, msg)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		return resp, nil
	}
	unpack := func(parsed abi.ABI, method string, resp []byte) (interface{}, error) {
		values, err := parsed.Unpack(method, resp)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", method, err)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("unpack %s: empty result", method)
		}
		return values[0], nil
	}

	// symbol() is tried as string first, then as bytes32 on the same response.
	symbolOK := false
	if resp, err := call("symbol"); err != nil {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	} else if value, err := unpack(stringABI, "symbol", resp); err == nil {
		if symbol, ok := value.(string); ok && cleanSymbol(symbol) != "" {
			meta.Symbol = cleanSymbol(symbol)
			symbolOK = true
		}
	} else if value, err := unpack(bytes32ABI, "symbol", resp); err == nil {
		if symbol, ok := bytes32ToString(value); ok && symbol != "" {
			meta.Symbol = symbol
			symbolOK = true
		}
	} else {
		logger.Debug("symbol undecodable", zap.String("token", token.Hex()), zap.Error(err))
	}

	decimalsOK := false
	if resp, err := call("decimals"); err != nil {
		logger.Debug("decimals call failed", zap.String("token", token.Hex()), zap.Error(err))
	} else if value, err := unpack(stringABI, "decimals", resp); err == nil {
		if decimals, err := asUint8(value); err == nil {
			meta.Decimals = decimals
			decimalsOK = true
		}
	} else {
		logger.Debug("decimals undecodable", zap.String("token", token.Hex()), zap.Error(err))
	}

	meta.Resolved = symbolOK && decimalsOK
	if !meta.Resolved {
		logger.Warn("token metadata incomplete, using fallback",
			zap.String("token", token.Hex()),
			zap.String("symbol", meta.Symbol),
			zap.Uint8("decimals", meta.Decimals),
		)
	}
	return meta
}

func cleanSymbol(symbol string) string {
	return strings.TrimSpace(strings.TrimRight(symbol, "\x00"))
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return cleanSymbol(string(bytes.TrimRight(v[:], "\x00"))), true
	case []byte:
		return cleanSymbol(string(bytes.TrimRight(v, "\x00"))), true
	default:
		return "", false
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		if !v.IsUint64() || v.Uint64() > 255 {
			return 0, fmt.Errorf("decimals out of range: %s", v)
		}
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
