package curve

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/michaelpento.lv/flasharb/chain"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// MaxCoins bounds the underlying coin probe
const MaxCoins = 8

// PoolABI holds the StableSwap methods used for pricing
var PoolABI = chain.MustParseABI(`[
	{"name":"underlying_coins","outputs":[{"type":"address","name":""}],"inputs":[{"type":"int128","name":"arg0"}],"stateMutability":"view","type":"function"},
	{"name":"get_dy_underlying","outputs":[{"type":"uint256","name":""}],"inputs":[{"type":"int128","name":"i"},{"type":"int128","name":"j"},{"type":"uint256","name":"dx"}],"stateMutability":"view","type":"function"}
]`)

type probeResult int

const (
	probeFound probeResult = iota
	probeEnd
)

// Pool is a StableSwap pool with its underlying coin registry
type Pool struct {
	contract *chain.Contract
	logger   *zap.Logger

	mu       sync.Mutex
	resolved bool
	coins    map[common.Address]int64
}

// NewPool binds the pool at address
func NewPool(address common.Address, caller chain.Caller, logger *zap.Logger) *Pool {
	return &Pool{
		contract: chain.NewContract(address, PoolABI, caller),
		logger:   logger,
	}
}

// Coins returns the underlying coin indices, probing the registry on first use.
// A failed resolution is not remembered and is retried on the next call.
func (p *Pool) Coins(ctx context.Context) (map[common.Address]int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return p.coins, nil
	}

	coins := make(map[common.Address]int64)
	for i := int64(0); i < MaxCoins; i++ {
		coin, result, err := p.probe(ctx, i)
		if err != nil {
			return nil, err
		}
		if result == probeEnd {
			break
		}
		coins[coin] = i
	}

	p.logger.Debug("Resolved curve underlying coins",
		zap.String("pool", p.contract.Address().Hex()),
		zap.Int("count", len(coins)))

	p.coins = coins
	p.resolved = true
	return coins, nil
}

// probe reads underlying_coins(i). An out-of-range index reverts on chain;
// that, an empty return, or the zero address all mark the end of the list.
func (p *Pool) probe(ctx context.Context, i int64) (common.Address, probeResult, error) {
	out, err := p.contract.Call(ctx, "underlying_coins", big.NewInt(i))
	if err != nil {
		if errors.Is(err, chain.ErrEmptyResult) || chain.IsRevert(err) {
			return common.Address{}, probeEnd, nil
		}
		return common.Address{}, probeEnd, fmt.Errorf("underlying_coins(%d): %w", i, err)
	}

	coin, ok := out[0].(common.Address)
	if !ok || coin == (common.Address{}) {
		return common.Address{}, probeEnd, nil
	}
	return coin, probeFound, nil
}

// GetDy returns get_dy_underlying(i, j, dx)
func (p *Pool) GetDy(ctx context.Context, i, j int64, dx *big.Int) (*big.Int, error) {
	out, err := p.contract.Call(ctx, "get_dy_underlying", big.NewInt(i), big.NewInt(j), dx)
	if err != nil {
		return nil, err
	}
	dy, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to parse get_dy_underlying result")
	}
	return dy, nil
}
