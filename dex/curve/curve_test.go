package curve

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/testutils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	dai  = types.Token{Address: testutils.Address(0xda1), Decimals: 18}
	usdc = types.Token{Address: testutils.Address(0xc0), Decimals: 6}
	usdt = types.Token{Address: testutils.Address(0x7e), Decimals: 6}
)

// scriptPool registers a three coin pool trading at a flat 0.1% fee
func scriptPool(fake *testutils.FakeChain, pool common.Address) {
	coins := []types.Token{dai, usdc, usdt}
	fake.Handle(pool, PoolABI, "underlying_coins", func(args []interface{}) ([]interface{}, error) {
		i := args[0].(*big.Int).Int64()
		if i >= int64(len(coins)) {
			return nil, testutils.ErrReverted
		}
		return []interface{}{coins[i].Address}, nil
	})
	fake.Handle(pool, PoolABI, "get_dy_underlying", func(args []interface{}) ([]interface{}, error) {
		in := coins[args[0].(*big.Int).Int64()]
		out := coins[args[1].(*big.Int).Int64()]
		dx := args[2].(*big.Int)
		if dx.Cmp(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(in.Decimals)+9), nil)) > 0 {
			return nil, testutils.ErrReverted
		}
		dy := rescale(dx, in.Decimals, out.Decimals)
		dy.Mul(dy, big.NewInt(999))
		dy.Div(dy, big.NewInt(1000))
		return []interface{}{dy}, nil
	})
}

func newTestVenue(t *testing.T) (*Venue, *testutils.FakeChain, common.Address) {
	fake := testutils.NewFakeChain()
	pool := testutils.Address(0xc4f)
	scriptPool(fake, pool)

	venue, err := NewVenue(Config{Name: "curve", Pool: pool}, fake, zaptest.NewLogger(t))
	require.NoError(t, err)
	return venue, fake, pool
}

func TestQuoteExactInput(t *testing.T) {
	venue, fake, pool := newTestVenue(t)

	out, err := venue.Quote(context.Background(), dex.QuoteRequest{
		TokenIn:   dai,
		TokenOut:  usdc,
		Amount:    new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18)),
		Direction: types.ExactInput,
	})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(999000000), out)

	// three coins plus the reverting fourth index
	assert.Equal(t, 4, fake.Calls(pool, PoolABI, "underlying_coins"))

	_, err = venue.Quote(context.Background(), dex.QuoteRequest{
		TokenIn:   usdc,
		TokenOut:  usdt,
		Amount:    big.NewInt(1e6),
		Direction: types.ExactInput,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, fake.Calls(pool, PoolABI, "underlying_coins"))
}

func TestQuoteExactOutput(t *testing.T) {
	venue, _, _ := newTestVenue(t)
	ctx := context.Background()

	target := big.NewInt(1000e6)
	in, err := venue.Quote(ctx, dex.QuoteRequest{
		TokenIn:   dai,
		TokenOut:  usdc,
		Amount:    target,
		Direction: types.ExactOutput,
	})
	require.NoError(t, err)

	out, err := venue.Quote(ctx, dex.QuoteRequest{
		TokenIn:   dai,
		TokenOut:  usdc,
		Amount:    in,
		Direction: types.ExactInput,
	})
	require.NoError(t, err)
	assert.True(t, out.Cmp(target) >= 0, "input %s yields %s", in, out)

	// 1000 / 0.999 DAI, within the search tolerance
	ideal, _ := new(big.Int).SetString("1001001001001001001002", 10)
	diff := new(big.Int).Abs(new(big.Int).Sub(in, ideal))
	assert.True(t, diff.Cmp(big.NewInt(3e12)) <= 0, "input %s", in)
}

func TestQuoteExactOutputBeyondLiquidity(t *testing.T) {
	venue, _, _ := newTestVenue(t)

	_, err := venue.Quote(context.Background(), dex.QuoteRequest{
		TokenIn:   usdc,
		TokenOut:  usdt,
		Amount:    new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil),
		Direction: types.ExactOutput,
	})
	assert.ErrorIs(t, err, dex.ErrInsufficientLiquidity)
}

func TestQuoteExactInputBeyondLiquidity(t *testing.T) {
	venue, _, _ := newTestVenue(t)

	_, err := venue.Quote(context.Background(), dex.QuoteRequest{
		TokenIn:   usdc,
		TokenOut:  usdt,
		Amount:    new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil),
		Direction: types.ExactInput,
	})
	require.ErrorIs(t, err, dex.ErrInsufficientLiquidity)
	assert.Equal(t, "insufficient_liquidity", dex.FailureReason(err))
}

func TestQuoteUnknownCoin(t *testing.T) {
	venue, _, _ := newTestVenue(t)

	_, err := venue.Quote(context.Background(), dex.QuoteRequest{
		TokenIn:   dai,
		TokenOut:  types.Token{Address: testutils.Address(0xbeef)},
		Amount:    big.NewInt(1),
		Direction: types.ExactInput,
	})
	assert.ErrorIs(t, err, dex.ErrPairNotFound)

	_, err = venue.Quote(context.Background(), dex.QuoteRequest{
		TokenIn:   dai,
		TokenOut:  usdc,
		Amount:    big.NewInt(1),
		Direction: types.Direction(-1),
	})
	assert.ErrorIs(t, err, dex.ErrInvalidTradeType)
}

func TestCoinsProbeIsBounded(t *testing.T) {
	fake := testutils.NewFakeChain()
	pool := testutils.Address(0xc5f)
	fake.Handle(pool, PoolABI, "underlying_coins", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{testutils.Address(0x1000 + args[0].(*big.Int).Int64())}, nil
	})

	coins, err := NewPool(pool, fake, zaptest.NewLogger(t)).Coins(context.Background())
	require.NoError(t, err)
	assert.Len(t, coins, MaxCoins)
	assert.Equal(t, MaxCoins, fake.Calls(pool, PoolABI, "underlying_coins"))
}

func TestCoinsTransportFailureIsRetried(t *testing.T) {
	fake := testutils.NewFakeChain()
	pool := testutils.Address(0xc6f)

	down := true
	fake.Handle(pool, PoolABI, "underlying_coins", func(args []interface{}) ([]interface{}, error) {
		if down {
			return nil, errors.New("dial tcp: connection refused")
		}
		if args[0].(*big.Int).Int64() > 1 {
			return nil, testutils.ErrReverted
		}
		return []interface{}{testutils.Address(0x2000 + args[0].(*big.Int).Int64())}, nil
	})

	p := NewPool(pool, fake, zaptest.NewLogger(t))
	_, err := p.Coins(context.Background())
	var rpcErr *chain.RPCError
	require.ErrorAs(t, err, &rpcErr)

	down = false
	coins, err := p.Coins(context.Background())
	require.NoError(t, err)
	assert.Len(t, coins, 2)
}
