package uniswap

import (
	"errors"
	"fmt"

	"github.com/michaelpento.lv/flasharb/dex"

	"github.com/holiman/uint256"
)

// FeeDenominator is the basis-point scale fees are expressed in
const FeeDenominator = 10000

var errOverflow = errors.New("uint256 overflow")

// GetAmountOut returns the output for amountIn against the given reserves, the
// way UniswapV2Library.getAmountOut computes it. The result is rounded down.
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if amountIn.IsZero() {
		return nil, fmt.Errorf("zero input amount: %w", dex.ErrInsufficientLiquidity)
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, dex.ErrInsufficientLiquidity
	}

	amountInWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, uint256.NewInt(FeeDenominator-feeBps))
	if overflow {
		return nil, errOverflow
	}
	numerator, overflow := new(uint256.Int).MulOverflow(amountInWithFee, reserveOut)
	if overflow {
		return nil, errOverflow
	}
	denominator, overflow := new(uint256.Int).MulOverflow(reserveIn, uint256.NewInt(FeeDenominator))
	if overflow {
		return nil, errOverflow
	}
	if _, overflow = denominator.AddOverflow(denominator, amountInWithFee); overflow {
		return nil, errOverflow
	}

	return new(uint256.Int).Div(numerator, denominator), nil
}

// GetAmountIn returns the input required to receive amountOut, the way
// UniswapV2Library.getAmountIn computes it. The +1 rounds in favour of the pool.
func GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if amountOut.IsZero() {
		return nil, fmt.Errorf("zero output amount: %w", dex.ErrInsufficientLiquidity)
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, dex.ErrInsufficientLiquidity
	}
	if !amountOut.Lt(reserveOut) {
		return nil, fmt.Errorf("output %s exceeds reserve %s: %w", amountOut.Dec(), reserveOut.Dec(), dex.ErrInsufficientLiquidity)
	}

	numerator, overflow := new(uint256.Int).MulOverflow(reserveIn, amountOut)
	if overflow {
		return nil, errOverflow
	}
	if _, overflow = numerator.MulOverflow(numerator, uint256.NewInt(FeeDenominator)); overflow {
		return nil, errOverflow
	}
	remaining := new(uint256.Int).Sub(reserveOut, amountOut)
	denominator, overflow := new(uint256.Int).MulOverflow(remaining, uint256.NewInt(FeeDenominator-feeBps))
	if overflow {
		return nil, errOverflow
	}

	amountIn := new(uint256.Int).Div(numerator, denominator)
	return amountIn.AddUint64(amountIn, 1), nil
}
