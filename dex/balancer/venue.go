package balancer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/dex"

	"github.com/ethereum/go-ethereum/common"
)

// Config describes a set of Balancer V1 weighted pools
type Config struct {
	Name   string
	Pools  []common.Address
	Slices int
}

// Venue prices trades across the configured weighted pools
type Venue struct {
	cfg    Config
	caller chain.Caller
}

// NewVenue creates a weighted-pool venue
func NewVenue(cfg Config, caller chain.Caller) (*Venue, error) {
	if len(cfg.Pools) == 0 {
		return nil, fmt.Errorf("no pools configured for %s", cfg.Name)
	}
	if cfg.Slices <= 0 {
		cfg.Slices = DefaultSlices
	}
	return &Venue{cfg: cfg, caller: caller}, nil
}

// Name returns the venue name
func (v *Venue) Name() string {
	return v.cfg.Name
}

// Kind returns dex.WeightedPool
func (v *Venue) Kind() dex.Kind {
	return dex.WeightedPool
}

// Quote loads every pool holding both tokens and routes the amount across them.
// Results are estimates; on-chain execution may differ by slippage.
func (v *Venue) Quote(ctx context.Context, req dex.QuoteRequest) (*big.Int, error) {
	if !req.Direction.Valid() {
		return nil, fmt.Errorf("%s: %w", req.Direction, dex.ErrInvalidTradeType)
	}

	pools, err := v.Pools(ctx, req.TokenIn.Address, req.TokenOut.Address)
	if err != nil {
		return nil, err
	}
	if len(pools) == 0 {
		return nil, fmt.Errorf("%s %s -> %s: %w", v.cfg.Name,
			req.TokenIn.Address.Hex(), req.TokenOut.Address.Hex(), dex.ErrPairNotFound)
	}

	amount, err := route(pools, req.Amount, req.Direction, v.cfg.Slices)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", v.cfg.Name, req.Direction, err)
	}
	return amount, nil
}

// Pools returns the state of every configured pool bound to both tokens
func (v *Venue) Pools(ctx context.Context, tokenIn, tokenOut common.Address) ([]*PoolState, error) {
	if tokenIn == tokenOut {
		return nil, nil
	}

	var pools []*PoolState
	for _, address := range v.cfg.Pools {
		state, err := loadPool(ctx, v.caller, address, tokenIn, tokenOut)
		if err != nil {
			return nil, err
		}
		if state != nil {
			pools = append(pools, state)
		}
	}
	return pools, nil
}
