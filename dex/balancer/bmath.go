package balancer

import (
	"errors"
	"math/big"
)

// Fixed point helpers mirroring BNum.sol of Balancer V1. All values are
// 18-decimal fixed point integers; rounding is half-up as on chain.

var (
	bone          = big.NewInt(1e18)
	halfBone      = big.NewInt(5e17)
	minBpowBase   = big.NewInt(1)
	maxBpowBase   = new(big.Int).Sub(new(big.Int).Mul(big.NewInt(2), bone), big.NewInt(1))
	bpowPrecision = big.NewInt(1e8)

	// maxInRatio is BONE / 2
	maxInRatio = big.NewInt(5e17)
	// maxOutRatio is BONE / 3 + 1
	maxOutRatio = new(big.Int).Add(new(big.Int).Div(bone, big.NewInt(3)), big.NewInt(1))
)

var (
	errMath         = errors.New("balancer math out of range")
	errRatioTooHigh = errors.New("trade exceeds pool ratio limit")
)

func badd(a, b *big.Int) *big.Int {
	return new(big.Int).Add(a, b)
}

func bsub(a, b *big.Int) *big.Int {
	return new(big.Int).Sub(a, b)
}

func bsubSign(a, b *big.Int) (*big.Int, bool) {
	if a.Cmp(b) >= 0 {
		return bsub(a, b), false
	}
	return bsub(b, a), true
}

func bmul(a, b *big.Int) *big.Int {
	c := new(big.Int).Mul(a, b)
	c.Add(c, halfBone)
	return c.Div(c, bone)
}

func bdiv(a, b *big.Int) *big.Int {
	c := new(big.Int).Mul(a, bone)
	c.Add(c, new(big.Int).Rsh(b, 1))
	return c.Div(c, b)
}

func bfloor(a *big.Int) *big.Int {
	return new(big.Int).Mul(new(big.Int).Div(a, bone), bone)
}

// bpowi raises a to an integer power n by squaring
func bpowi(a *big.Int, n uint64) *big.Int {
	z := new(big.Int).Set(bone)
	if n%2 != 0 {
		z.Set(a)
	}
	for n /= 2; n != 0; n /= 2 {
		a = bmul(a, a)
		if n%2 != 0 {
			z = bmul(z, a)
		}
	}
	return z
}

// bpow computes base^exp for a fractional exp, splitting it into an integer
// power and a binomial series approximation for the remainder.
func bpow(base, exp *big.Int) (*big.Int, error) {
	if base.Cmp(minBpowBase) < 0 || base.Cmp(maxBpowBase) > 0 {
		return nil, errMath
	}

	whole := bfloor(exp)
	remain := bsub(exp, whole)
	wholePow := bpowi(base, new(big.Int).Div(whole, bone).Uint64())
	if remain.Sign() == 0 {
		return wholePow, nil
	}

	partial := bpowApprox(base, remain, bpowPrecision)
	return bmul(wholePow, partial), nil
}

func bpowApprox(base, exp, precision *big.Int) *big.Int {
	a := exp
	x, xneg := bsubSign(base, bone)
	term := new(big.Int).Set(bone)
	sum := new(big.Int).Set(term)
	negative := false

	for i := int64(1); term.Cmp(precision) >= 0; i++ {
		bigK := new(big.Int).Mul(big.NewInt(i), bone)
		c, cneg := bsubSign(a, bsub(bigK, bone))
		term = bmul(term, bmul(c, x))
		term = bdiv(term, bigK)
		if term.Sign() == 0 {
			break
		}

		if xneg {
			negative = !negative
		}
		if cneg {
			negative = !negative
		}
		if negative {
			sum = bsub(sum, term)
		} else {
			sum = badd(sum, term)
		}
	}
	return sum
}

// calcOutGivenIn returns the amount of tokenOut received for amountIn of tokenIn
func calcOutGivenIn(balanceIn, weightIn, balanceOut, weightOut, amountIn, swapFee *big.Int) (*big.Int, error) {
	if amountIn.Cmp(bmul(balanceIn, maxInRatio)) > 0 {
		return nil, errRatioTooHigh
	}

	weightRatio := bdiv(weightIn, weightOut)
	adjustedIn := bmul(amountIn, bsub(bone, swapFee))
	y := bdiv(balanceIn, badd(balanceIn, adjustedIn))
	foo, err := bpow(y, weightRatio)
	if err != nil {
		return nil, err
	}
	return bmul(balanceOut, bsub(bone, foo)), nil
}

// calcInGivenOut returns the amount of tokenIn required to receive amountOut of tokenOut
func calcInGivenOut(balanceIn, weightIn, balanceOut, weightOut, amountOut, swapFee *big.Int) (*big.Int, error) {
	if amountOut.Cmp(bmul(balanceOut, maxOutRatio)) > 0 {
		return nil, errRatioTooHigh
	}

	weightRatio := bdiv(weightOut, weightIn)
	y := bdiv(balanceOut, bsub(balanceOut, amountOut))
	foo, err := bpow(y, weightRatio)
	if err != nil {
		return nil, err
	}
	amountIn := bmul(balanceIn, bsub(foo, bone))
	return bdiv(amountIn, bsub(bone, swapFee)), nil
}
