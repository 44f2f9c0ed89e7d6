package balancer

import (
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/types"
)

// DefaultSlices is the number of equal parts an amount is split into
const DefaultSlices = 10

// route splits amount across pools in equal slices, assigning each slice to the
// pool with the best marginal price given what it already holds. For exact
// input it returns the total output; for exact output the total input.
func route(pools []*PoolState, amount *big.Int, direction types.Direction, slices int) (*big.Int, error) {
	if len(pools) == 0 {
		return nil, dex.ErrPairNotFound
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("non-positive amount %s", amount)
	}

	var price func(p *PoolState, amount *big.Int) (*big.Int, error)
	switch direction {
	case types.ExactInput:
		price = (*PoolState).outGivenIn
	case types.ExactOutput:
		price = (*PoolState).inGivenOut
	default:
		return nil, fmt.Errorf("%s: %w", direction, dex.ErrInvalidTradeType)
	}

	k := big.NewInt(int64(slices))
	if slices < 1 {
		k.SetInt64(1)
	}
	if amount.Cmp(k) < 0 {
		k.Set(amount)
	}
	slice, rem := new(big.Int).QuoRem(amount, k, new(big.Int))

	assigned := make([]*big.Int, len(pools))
	priced := make([]*big.Int, len(pools))
	for i := range pools {
		assigned[i] = new(big.Int)
		priced[i] = new(big.Int)
	}

	n := k.Int64()
	for s := int64(0); s < n; s++ {
		part := slice
		if s == n-1 {
			part = new(big.Int).Add(slice, rem)
		}

		best := -1
		var bestTotal, bestDelta *big.Int
		for i, pool := range pools {
			total, err := price(pool, new(big.Int).Add(assigned[i], part))
			if err != nil {
				// ratio limit or math range: the pool cannot take this slice
				continue
			}
			delta := new(big.Int).Sub(total, priced[i])
			if best < 0 || better(direction, delta, bestDelta) {
				best, bestTotal, bestDelta = i, total, delta
			}
		}
		if best < 0 {
			return nil, fmt.Errorf("no pool can fill %s: %w", amount, dex.ErrInsufficientLiquidity)
		}
		assigned[best].Add(assigned[best], part)
		priced[best] = bestTotal
	}

	sum := new(big.Int)
	for _, p := range priced {
		sum.Add(sum, p)
	}
	return sum, nil
}

// better reports whether candidate beats current: more output for exact
// input, less input for exact output. Ties keep the earlier pool.
func better(direction types.Direction, candidate, current *big.Int) bool {
	if direction == types.ExactInput {
		return candidate.Cmp(current) > 0
	}
	return candidate.Cmp(current) < 0
}
