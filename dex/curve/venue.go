package curve

import (
	"context"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/types"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const (
	maxDoublings   = 16
	maxBisectSteps = 64
)

// tolerance of the exact-output search, relative to the result
var toleranceDenominator = big.NewInt(1e9)

// Config describes a single StableSwap pool venue
type Config struct {
	Name string
	Pool common.Address
}

// Venue prices trades on one StableSwap pool using underlying coins
type Venue struct {
	cfg  Config
	pool *Pool
}

// NewVenue creates a stableswap venue
func NewVenue(cfg Config, caller chain.Caller, logger *zap.Logger) (*Venue, error) {
	if cfg.Pool == (common.Address{}) {
		return nil, fmt.Errorf("pool address required for %s", cfg.Name)
	}
	return &Venue{
		cfg:  cfg,
		pool: NewPool(cfg.Pool, caller, logger),
	}, nil
}

// Name returns the venue name
func (v *Venue) Name() string {
	return v.cfg.Name
}

// Kind returns dex.Stableswap
func (v *Venue) Kind() dex.Kind {
	return dex.Stableswap
}

// Quote prices req with get_dy_underlying. Exact output is found by searching
// for the smallest input whose output covers the requested amount.
func (v *Venue) Quote(ctx context.Context, req dex.QuoteRequest) (*big.Int, error) {
	if !req.Direction.Valid() {
		return nil, fmt.Errorf("%s: %w", req.Direction, dex.ErrInvalidTradeType)
	}

	coins, err := v.pool.Coins(ctx)
	if err != nil {
		return nil, err
	}
	i, okIn := coins[req.TokenIn.Address]
	j, okOut := coins[req.TokenOut.Address]
	if !okIn || !okOut || i == j {
		return nil, fmt.Errorf("%s %s -> %s: %w", v.cfg.Name,
			req.TokenIn.Address.Hex(), req.TokenOut.Address.Hex(), dex.ErrPairNotFound)
	}

	if req.Direction == types.ExactInput {
		dy, err := v.pool.GetDy(ctx, i, j, req.Amount)
		if chain.IsRevert(err) {
			return nil, fmt.Errorf("%s get_dy_underlying reverted: %w", v.cfg.Name, dex.ErrInsufficientLiquidity)
		}
		return dy, err
	}
	return v.inputFor(ctx, i, j, req)
}

func (v *Venue) inputFor(ctx context.Context, i, j int64, req dex.QuoteRequest) (*big.Int, error) {
	target := req.Amount
	covers := func(dx *big.Int) (bool, error) {
		dy, err := v.pool.GetDy(ctx, i, j, dx)
		if err != nil {
			if chain.IsRevert(err) {
				return false, fmt.Errorf("get_dy_underlying reverted: %w", dex.ErrInsufficientLiquidity)
			}
			return false, err
		}
		return dy.Cmp(target) >= 0, nil
	}

	lo := new(big.Int)
	hi := rescale(target, req.TokenOut.Decimals, req.TokenIn.Decimals)
	for n := 0; ; n++ {
		ok, err := covers(hi)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if n == maxDoublings {
			return nil, fmt.Errorf("%s cannot fill %s: %w", v.cfg.Name, target, dex.ErrInsufficientLiquidity)
		}
		lo.Set(hi)
		hi = new(big.Int).Lsh(hi, 1)
	}

	gap := new(big.Int)
	for step := 0; step < maxBisectSteps; step++ {
		gap.Sub(hi, lo)
		if gap.Cmp(big.NewInt(1)) <= 0 {
			break
		}
		if new(big.Int).Mul(gap, toleranceDenominator).Cmp(hi) <= 0 {
			break
		}

		mid := new(big.Int).Add(lo, hi)
		mid.Rsh(mid, 1)
		ok, err := covers(mid)
		if err != nil {
			return nil, err
		}
		if ok {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}

// rescale converts amount between decimal precisions, never below 1
func rescale(amount *big.Int, from, to uint8) *big.Int {
	out := new(big.Int).Set(amount)
	switch {
	case to > from:
		out.Mul(out, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(to-from)), nil))
	case from > to:
		out.Div(out, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(from-to)), nil))
	}
	if out.Sign() == 0 {
		out.SetInt64(1)
	}
	return out
}
