package uniswap

import (
	"context"
	"math/big"
	"math/rand"
	"testing"

	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/testutils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAmountOut(t *testing.T) {
	amountIn := uint256.NewInt(1e18)         // 1 ETH
	reserveIn := uint256.NewInt(10e18)       // 10 ETH
	reserveOut := uint256.NewInt(5000000000) // 5000 USDC (6 decimals)

	amountOut, err := GetAmountOut(amountIn, reserveIn, reserveOut, DefaultFeeBps)
	require.NoError(t, err)

	// 997e18*5e9 / (10e18*1000 + 997e18) floored
	assert.Equal(t, uint64(453305446), amountOut.Uint64())
}

func TestConstantProductWithoutFee(t *testing.T) {
	in, err := GetAmountIn(uint256.NewInt(1000), uint256.NewInt(1000000), uint256.NewInt(500000), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2005), in.Uint64())

	out, err := GetAmountOut(uint256.NewInt(1000), uint256.NewInt(500000), uint256.NewInt(1050000), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2095), out.Uint64())
}

func TestGetAmountInExceedsReserve(t *testing.T) {
	_, err := GetAmountIn(uint256.NewInt(500), uint256.NewInt(1000), uint256.NewInt(500), DefaultFeeBps)
	assert.ErrorIs(t, err, dex.ErrInsufficientLiquidity)

	_, err = GetAmountIn(uint256.NewInt(10), uint256.NewInt(0), uint256.NewInt(500), DefaultFeeBps)
	assert.ErrorIs(t, err, dex.ErrInsufficientLiquidity)
}

func TestRoundTripFavoursPool(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		reserveIn := uint256.NewInt(uint64(rng.Int63n(1e15)) + 1)
		reserveOut := uint256.NewInt(uint64(rng.Int63n(1e15)) + 2)
		out := uint256.NewInt(uint64(rng.Int63n(int64(reserveOut.Uint64()-1))) + 1)
		fee := uint64(rng.Intn(100))

		in, err := GetAmountIn(out, reserveIn, reserveOut, fee)
		require.NoError(t, err)

		got, err := GetAmountOut(in, reserveIn, reserveOut, fee)
		require.NoError(t, err)
		assert.False(t, got.Lt(out), "reserves %s/%s fee %d: asked %s, got %s",
			reserveIn.Dec(), reserveOut.Dec(), fee, out.Dec(), got.Dec())
	}
}

func TestPairAddress(t *testing.T) {
	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	venue, err := NewVenue(Config{Name: "uniswap", Factory: MainnetFactory, InitCodeHash: MainnetInitCodeHash, FeeBps: DefaultFeeBps}, nil)
	require.NoError(t, err)

	want := common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	for _, order := range [][2]common.Address{{usdc, weth}, {weth, usdc}} {
		got, err := venue.PairFor(order[0], order[1])
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err = venue.PairFor(usdc, usdc)
	assert.ErrorIs(t, err, dex.ErrPairNotFound)
}

func TestNewVenueRejectsFee(t *testing.T) {
	_, err := NewVenue(Config{Name: "bad", Factory: MainnetFactory, FeeBps: FeeDenominator}, nil)
	assert.Error(t, err)

	_, err = NewVenue(Config{Name: "bad"}, nil)
	assert.Error(t, err)
}

func TestVenueQuote(t *testing.T) {
	fake := testutils.NewFakeChain()
	venue, err := NewVenue(Config{Name: "router1", Factory: MainnetFactory, InitCodeHash: MainnetInitCodeHash}, fake)
	require.NoError(t, err)

	tokenLow := types.Token{Address: testutils.Address(1), Decimals: 18}
	tokenHigh := types.Token{Address: testutils.Address(2), Decimals: 18}

	pair, err := venue.PairFor(tokenLow.Address, tokenHigh.Address)
	require.NoError(t, err)
	// token0 is the lower address
	fake.Returns(pair, PairABI, "getReserves", big.NewInt(1000000), big.NewInt(500000), uint32(0))

	ctx := context.Background()

	in, err := venue.Quote(ctx, dex.QuoteRequest{
		TokenIn:   tokenLow,
		TokenOut:  tokenHigh,
		Amount:    big.NewInt(1000),
		Direction: types.ExactOutput,
	})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2005), in)

	out, err := venue.Quote(ctx, dex.QuoteRequest{
		TokenIn:   tokenHigh,
		TokenOut:  tokenLow,
		Amount:    big.NewInt(1000),
		Direction: types.ExactInput,
	})
	require.NoError(t, err)
	// 1000*1e6 / (500000+1000)
	assert.Equal(t, big.NewInt(1996), out)

	_, err = venue.Quote(ctx, dex.QuoteRequest{
		TokenIn:   tokenLow,
		TokenOut:  tokenHigh,
		Amount:    big.NewInt(1000),
		Direction: types.Direction(9),
	})
	assert.ErrorIs(t, err, dex.ErrInvalidTradeType)
}

func TestVenueQuoteMissingPair(t *testing.T) {
	venue, err := NewVenue(Config{Name: "router2", Factory: SushiFactory, InitCodeHash: SushiInitCodeHash}, testutils.NewFakeChain())
	require.NoError(t, err)

	_, err = venue.Quote(context.Background(), dex.QuoteRequest{
		TokenIn:   types.Token{Address: testutils.Address(10)},
		TokenOut:  types.Token{Address: testutils.Address(11)},
		Amount:    big.NewInt(1),
		Direction: types.ExactInput,
	})
	assert.ErrorIs(t, err, dex.ErrPairNotFound)
	assert.Equal(t, "pair_not_found", dex.FailureReason(err))
}
