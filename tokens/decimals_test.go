package tokens

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/utils/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDecimalsOfCachesFirstRead(t *testing.T) {
	fake := testutils.NewFakeChain()
	usdc := testutils.Address(0xa0b8)
	fake.Returns(usdc, ERC20ABI, "decimals", uint8(6))

	cache := NewDecimalsCache(fake, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := cache.DecimalsOf(ctx, usdc)
		require.NoError(t, err)
		assert.Equal(t, uint8(6), d)
	}

	assert.Equal(t, 1, fake.Calls(usdc, ERC20ABI, "decimals"))
	assert.Equal(t, 1, cache.Len())
}

func TestDecimalsOfConcurrentFirstLookup(t *testing.T) {
	fake := testutils.NewFakeChain()
	weth := testutils.Address(0xc02a)
	dai := testutils.Address(0x6b17)

	release := make(chan struct{})
	fake.Handle(weth, ERC20ABI, "decimals", func([]interface{}) ([]interface{}, error) {
		<-release
		return []interface{}{uint8(18)}, nil
	})
	fake.Returns(dai, ERC20ABI, "decimals", uint8(18))

	cache := NewDecimalsCache(fake, zaptest.NewLogger(t))

	const callers = 32
	var wg sync.WaitGroup
	results := make([]uint8, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token := weth
			if i%2 == 1 {
				token = dai
			}
			results[i], errs[i] = cache.DecimalsOf(context.Background(), token)
		}(i)
	}

	// Let the callers pile up behind the in-flight read.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, uint8(18), results[i])
	}
	assert.Equal(t, 1, fake.Calls(weth, ERC20ABI, "decimals"))
	assert.Equal(t, 1, fake.Calls(dai, ERC20ABI, "decimals"))
}

func TestDecimalsOfRPCFailureIsNotCached(t *testing.T) {
	fake := testutils.NewFakeChain()
	token := testutils.Address(0x1234)

	fail := true
	fake.Handle(token, ERC20ABI, "decimals", func([]interface{}) ([]interface{}, error) {
		if fail {
			return nil, errors.New("connection reset")
		}
		return []interface{}{uint8(8)}, nil
	})

	cache := NewDecimalsCache(fake, zaptest.NewLogger(t))

	_, err := cache.DecimalsOf(context.Background(), token)
	require.Error(t, err)
	var rpcErr *chain.RPCError
	assert.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, 0, cache.Len())

	fail = false
	d, err := cache.DecimalsOf(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, uint8(8), d)
}

func TestDecimalsOfNoCode(t *testing.T) {
	cache := NewDecimalsCache(testutils.NewFakeChain(), zaptest.NewLogger(t))

	_, err := cache.DecimalsOf(context.Background(), testutils.Address(0xdead))
	assert.ErrorIs(t, err, chain.ErrEmptyResult)
}
