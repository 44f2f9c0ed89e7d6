package uniswap

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru"
	"github.com/holiman/uint256"
)

// Mainnet defaults
var (
	MainnetFactory      = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	MainnetInitCodeHash = common.HexToHash("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")
	SushiFactory        = common.HexToAddress("0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac")
	SushiInitCodeHash   = common.HexToHash("0xe18a34eb0e04b04f7a0ac29a6e80748dca96319b42c54d679cb821dca90c6303")
)

// DefaultFeeBps is the 0.3% swap fee of Uniswap V2 forks
const DefaultFeeBps = 30

const pairCacheSize = 4096

// Config describes one constant-product deployment
type Config struct {
	Name         string
	Factory      common.Address
	InitCodeHash common.Hash
	FeeBps       uint64
}

type pairKey struct {
	token0, token1 common.Address
}

// Venue prices trades against Uniswap V2 style pairs resolved by CREATE2
type Venue struct {
	cfg    Config
	caller chain.Caller
	pairs  *lru.Cache
}

// NewVenue creates a constant-product venue
func NewVenue(cfg Config, caller chain.Caller) (*Venue, error) {
	if cfg.FeeBps >= FeeDenominator {
		return nil, fmt.Errorf("fee %d bps out of range", cfg.FeeBps)
	}
	if cfg.Factory == (common.Address{}) {
		return nil, fmt.Errorf("factory address required for %s", cfg.Name)
	}

	pairs, err := lru.New(pairCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create pair cache: %w", err)
	}

	return &Venue{
		cfg:    cfg,
		caller: caller,
		pairs:  pairs,
	}, nil
}

// Name returns the venue name
func (v *Venue) Name() string {
	return v.cfg.Name
}

// Kind returns dex.ConstantProduct
func (v *Venue) Kind() dex.Kind {
	return dex.ConstantProduct
}

// Quote prices req against the pair's current reserves
func (v *Venue) Quote(ctx context.Context, req dex.QuoteRequest) (*big.Int, error) {
	reserveIn, reserveOut, err := v.reserves(ctx, req.TokenIn.Address, req.TokenOut.Address)
	if err != nil {
		return nil, err
	}

	amount, overflow := uint256.FromBig(req.Amount)
	if overflow {
		return nil, fmt.Errorf("amount %s: %w", req.Amount, errOverflow)
	}

	var result *uint256.Int
	switch req.Direction {
	case types.ExactInput:
		result, err = GetAmountOut(amount, reserveIn, reserveOut, v.cfg.FeeBps)
	case types.ExactOutput:
		result, err = GetAmountIn(amount, reserveIn, reserveOut, v.cfg.FeeBps)
	default:
		return nil, fmt.Errorf("%s: %w", req.Direction, dex.ErrInvalidTradeType)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", v.cfg.Name, req.Direction, err)
	}

	return result.ToBig(), nil
}

// PairFor returns the pair address for two tokens, memoized per venue
func (v *Venue) PairFor(tokenA, tokenB common.Address) (common.Address, error) {
	if tokenA == tokenB {
		return common.Address{}, fmt.Errorf("identical tokens %s: %w", tokenA.Hex(), dex.ErrPairNotFound)
	}
	token0, token1 := SortTokens(tokenA, tokenB)
	key := pairKey{token0, token1}
	if cached, ok := v.pairs.Get(key); ok {
		return cached.(common.Address), nil
	}

	addr := PairAddress(v.cfg.Factory, v.cfg.InitCodeHash, token0, token1)
	v.pairs.Add(key, addr)
	return addr, nil
}

func (v *Venue) reserves(ctx context.Context, tokenIn, tokenOut common.Address) (*uint256.Int, *uint256.Int, error) {
	pairAddr, err := v.PairFor(tokenIn, tokenOut)
	if err != nil {
		return nil, nil, err
	}

	reserve0, reserve1, err := NewPair(pairAddr, v.caller).Reserves(ctx)
	if err != nil {
		return nil, nil, err
	}
	if reserve0.Sign() == 0 || reserve1.Sign() == 0 {
		return nil, nil, fmt.Errorf("pair %s has no liquidity: %w", pairAddr.Hex(), dex.ErrPairNotFound)
	}

	// uint112 reserves always fit
	r0, _ := uint256.FromBig(reserve0)
	r1, _ := uint256.FromBig(reserve1)
	if token0, _ := SortTokens(tokenIn, tokenOut); token0 == tokenIn {
		return r0, r1, nil
	}
	return r1, r0, nil
}

// SortTokens orders two token addresses the way the factory does
func SortTokens(tokenA, tokenB common.Address) (common.Address, common.Address) {
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		return tokenB, tokenA
	}
	return tokenA, tokenB
}

// PairAddress computes the CREATE2 address of the pair for sorted tokens
func PairAddress(factory common.Address, initCodeHash common.Hash, token0, token1 common.Address) common.Address {
	salt := crypto.Keccak256(token0.Bytes(), token1.Bytes())
	return common.BytesToAddress(crypto.Keccak256(
		[]byte{0xff},
		factory.Bytes(),
		salt,
		initCodeHash.Bytes(),
	)[12:])
}
