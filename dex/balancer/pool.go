package balancer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/flasharb/chain"

	"github.com/ethereum/go-ethereum/common"
)

// PoolABI holds the BPool methods needed to price a swap
var PoolABI = chain.MustParseABI(`[
	{"constant":true,"inputs":[{"name":"t","type":"address"}],"name":"isBound","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"token","type":"address"}],"name":"getBalance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"token","type":"address"}],"name":"getDenormalizedWeight","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"getSwapFee","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`)

// PoolState is a snapshot of one pool's pricing inputs for a token pair
type PoolState struct {
	Address    common.Address
	BalanceIn  *big.Int
	WeightIn   *big.Int
	BalanceOut *big.Int
	WeightOut  *big.Int
	SwapFee    *big.Int
}

func (p *PoolState) outGivenIn(amountIn *big.Int) (*big.Int, error) {
	return calcOutGivenIn(p.BalanceIn, p.WeightIn, p.BalanceOut, p.WeightOut, amountIn, p.SwapFee)
}

func (p *PoolState) inGivenOut(amountOut *big.Int) (*big.Int, error) {
	return calcInGivenOut(p.BalanceIn, p.WeightIn, p.BalanceOut, p.WeightOut, amountOut, p.SwapFee)
}

// loadPool reads the pool state for tokenIn/tokenOut. It returns nil without
// error when the pool does not hold both tokens or cannot be priced.
func loadPool(ctx context.Context, caller chain.Caller, address, tokenIn, tokenOut common.Address) (*PoolState, error) {
	pool := chain.NewContract(address, PoolABI, caller)

	for _, token := range []common.Address{tokenIn, tokenOut} {
		out, err := pool.Call(ctx, "isBound", token)
		if errors.Is(err, chain.ErrEmptyResult) || chain.IsRevert(err) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("isBound on %s: %w", address.Hex(), err)
		}
		if bound, _ := out[0].(bool); !bound {
			return nil, nil
		}
	}

	state := &PoolState{Address: address}
	reads := []struct {
		method string
		token  *common.Address
		dst    **big.Int
	}{
		{"getBalance", &tokenIn, &state.BalanceIn},
		{"getDenormalizedWeight", &tokenIn, &state.WeightIn},
		{"getBalance", &tokenOut, &state.BalanceOut},
		{"getDenormalizedWeight", &tokenOut, &state.WeightOut},
		{"getSwapFee", nil, &state.SwapFee},
	}
	for _, r := range reads {
		var args []interface{}
		if r.token != nil {
			args = append(args, *r.token)
		}
		out, err := pool.Call(ctx, r.method, args...)
		if err != nil {
			return nil, fmt.Errorf("%s on %s: %w", r.method, address.Hex(), err)
		}
		value, ok := out[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("failed to parse %s", r.method)
		}
		*r.dst = value
	}

	if state.BalanceIn.Sign() == 0 || state.BalanceOut.Sign() == 0 ||
		state.WeightIn.Sign() == 0 || state.WeightOut.Sign() == 0 ||
		state.SwapFee.Cmp(bone) >= 0 {
		return nil, nil
	}
	return state, nil
}
