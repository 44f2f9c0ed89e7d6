package tokens

import (
	"context"
	"fmt"
	"sync"

	"github.com/michaelpento.lv/flasharb/chain"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ERC20ABI holds the subset of the ERC-20 interface the bot reads
var ERC20ABI = chain.MustParseABI(`[{
	"constant": true,
	"inputs": [],
	"name": "decimals",
	"outputs": [{"name": "", "type": "uint8"}],
	"stateMutability": "view",
	"type": "function"
}]`)

// Source resolves token decimal precision
type Source interface {
	DecimalsOf(ctx context.Context, token common.Address) (uint8, error)
}

// DecimalsCache memoizes ERC-20 decimals for the process lifetime. Entries are
// never evicted or overwritten, and concurrent first lookups for one token
// share a single remote read.
type DecimalsCache struct {
	caller   chain.Caller
	logger   *zap.Logger
	mu       sync.RWMutex
	decimals map[common.Address]uint8
	group    singleflight.Group
}

// NewDecimalsCache creates an empty cache reading through caller
func NewDecimalsCache(caller chain.Caller, logger *zap.Logger) *DecimalsCache {
	return &DecimalsCache{
		caller:   caller,
		logger:   logger,
		decimals: make(map[common.Address]uint8),
	}
}

// DecimalsOf returns the decimals of token, fetching them on first use
func (c *DecimalsCache) DecimalsOf(ctx context.Context, token common.Address) (uint8, error) {
	if d, ok := c.lookup(token); ok {
		return d, nil
	}

	v, err, _ := c.group.Do(token.Hex(), func() (interface{}, error) {
		// A flight that finished between our lookup and Do already stored it.
		if d, ok := c.lookup(token); ok {
			return d, nil
		}

		d, err := c.fetch(ctx, token)
		if err != nil {
			return uint8(0), err
		}

		c.mu.Lock()
		if existing, ok := c.decimals[token]; ok {
			d = existing
		} else {
			c.decimals[token] = d
		}
		c.mu.Unlock()

		c.logger.Debug("Cached token decimals",
			zap.String("token", token.Hex()),
			zap.Uint8("decimals", d))
		return d, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(uint8), nil
}

// Len returns the number of cached tokens
func (c *DecimalsCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.decimals)
}

func (c *DecimalsCache) lookup(token common.Address) (uint8, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.decimals[token]
	return d, ok
}

func (c *DecimalsCache) fetch(ctx context.Context, token common.Address) (uint8, error) {
	out, err := chain.NewContract(token, ERC20ABI, c.caller).Call(ctx, "decimals")
	if err != nil {
		return 0, fmt.Errorf("decimals of %s: %w", token.Hex(), err)
	}

	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals of %s: unexpected type %T", token.Hex(), out[0])
	}
	return d, nil
}
