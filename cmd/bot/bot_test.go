package bot

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/dex/uniswap"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/gas"
	"github.com/michaelpento.lv/flasharb/quote"
	"github.com/michaelpento.lv/flasharb/strategies/arbitrage"
	"github.com/michaelpento.lv/flasharb/tokens"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"github.com/michaelpento.lv/flasharb/utils/testutils"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	tokenA = testutils.Address(0xa)
	tokenB = testutils.Address(0xb)
	tokenC = testutils.Address(0xc)
)

type fakeHeaders struct {
	ch  chan *ethtypes.Header
	err error
}

func newFakeHeaders() *fakeHeaders {
	return &fakeHeaders{ch: make(chan *ethtypes.Header, 1)}
}

func (f *fakeHeaders) Run(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return nil
}

func (f *fakeHeaders) Headers() <-chan *ethtypes.Header {
	return f.ch
}

func header(n int64) *ethtypes.Header {
	return &ethtypes.Header{Number: big.NewInt(n)}
}

type scanFunc func(ctx context.Context, block uint64, s *arbitrage.Strategy, pair types.Pair) (*arbitrage.ScanResult, error)

type fakeScanner struct {
	fn scanFunc
}

func (f *fakeScanner) Scan(ctx context.Context, block uint64, s *arbitrage.Strategy, pair types.Pair) (*arbitrage.ScanResult, error) {
	return f.fn(ctx, block, s, pair)
}

type fakeExecutor struct {
	mu       sync.Mutex
	err      error
	executed []*types.Opportunity
}

func (f *fakeExecutor) Execute(ctx context.Context, opp *types.Opportunity) (*ethtypes.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, opp)
	if f.err != nil {
		return nil, f.err
	}
	return ethtypes.NewTransaction(0, common.Address{}, big.NewInt(0), 0, big.NewInt(1), nil), nil
}

func (f *fakeExecutor) Executed() []*types.Opportunity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.Opportunity(nil), f.executed...)
}

func opportunity(strategy string, pair types.Pair, block uint64, tier int, profit int64) *types.Opportunity {
	return &types.Opportunity{
		Strategy:       strategy,
		Pair:           pair,
		Tier:           tier,
		BlockNumber:    block,
		InputAmount:    big.NewInt(1000),
		OutputTarget:   big.NewInt(1000),
		OutputReceived: big.NewInt(1000 + profit),
		Profit:         big.NewInt(profit),
	}
}

func newTestBot(t *testing.T, headers HeaderSource, scanner Scanner, executor Executor, policy config.Policy, strategies ...*arbitrage.Strategy) (*Bot, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry(), "test")
	return New(Deps{
		Headers:    headers,
		Scanner:    scanner,
		Executor:   executor,
		Strategies: strategies,
		Policy:     policy,
		Workers:    4,
		Metrics:    m,
		Logger:     zaptest.NewLogger(t),
	}), m
}

func TestRunCycleExecutesOnePerPair(t *testing.T) {
	uniSushi := &arbitrage.Strategy{
		Kind:  config.UniSushi,
		Pairs: []types.Pair{{TokenA: tokenA, TokenB: tokenB}, {TokenA: tokenA, TokenB: tokenC}},
	}
	crvLP := &arbitrage.Strategy{
		Kind:  config.CrvLP,
		Pairs: []types.Pair{{TokenA: tokenB, TokenB: tokenC}},
	}

	scanner := &fakeScanner{fn: func(ctx context.Context, block uint64, s *arbitrage.Strategy, pair types.Pair) (*arbitrage.ScanResult, error) {
		assert.Equal(t, big.NewInt(42), chain.BlockFrom(ctx))
		if pair.TokenB == tokenC && s.Kind == config.UniSushi {
			return &arbitrage.ScanResult{}, nil
		}
		return &arbitrage.ScanResult{Profitable: []*types.Opportunity{
			opportunity(s.Name(), pair, block, 0, 10),
			opportunity(s.Name(), pair, block, 1, 30),
			opportunity(s.Name(), pair, block, 2, 20),
		}}, nil
	}}
	executor := &fakeExecutor{}
	b, m := newTestBot(t, newFakeHeaders(), scanner, executor, config.PolicyBest, uniSushi, crvLP)

	result := b.RunCycle(context.Background(), header(42))

	assert.Equal(t, uint64(42), result.Block)
	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 2, result.Submitted)
	assert.Len(t, result.Selected, 2)

	executed := executor.Executed()
	require.Len(t, executed, 2)
	for _, opp := range executed {
		assert.Equal(t, 1, opp.Tier)
		assert.Equal(t, uint64(42), opp.BlockNumber)
	}
	assert.Equal(t, float64(42), testutil.ToFloat64(m.Network.LatestBlock))
}

func TestRunCycleFailedPairDoesNotStopOthers(t *testing.T) {
	pairs := []types.Pair{{TokenA: tokenA, TokenB: tokenB}, {TokenA: tokenA, TokenB: tokenC}}
	strategy := &arbitrage.Strategy{Kind: config.UniSushi, Pairs: pairs}

	scanner := &fakeScanner{fn: func(ctx context.Context, block uint64, s *arbitrage.Strategy, pair types.Pair) (*arbitrage.ScanResult, error) {
		if pair.TokenB == tokenB {
			return nil, &chain.RPCError{Op: "getReserves", Err: errors.New("connection reset")}
		}
		return &arbitrage.ScanResult{Profitable: []*types.Opportunity{opportunity(s.Name(), pair, block, 0, 5)}}, nil
	}}
	executor := &fakeExecutor{}
	b, _ := newTestBot(t, newFakeHeaders(), scanner, executor, config.PolicyFirst, strategy)

	result := b.RunCycle(context.Background(), header(7))

	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, executor.Executed(), 1)
	assert.Equal(t, tokenC, executor.Executed()[0].Pair.TokenB)
}

func TestRunCycleExecutionFailureIsContained(t *testing.T) {
	strategy := &arbitrage.Strategy{Kind: config.UniSushi, Pairs: []types.Pair{{TokenA: tokenA, TokenB: tokenB}}}
	scanner := &fakeScanner{fn: func(ctx context.Context, block uint64, s *arbitrage.Strategy, pair types.Pair) (*arbitrage.ScanResult, error) {
		return &arbitrage.ScanResult{Profitable: []*types.Opportunity{opportunity(s.Name(), pair, block, 0, 5)}}, nil
	}}
	executor := &fakeExecutor{err: errors.New("nonce too low")}
	b, _ := newTestBot(t, newFakeHeaders(), scanner, executor, config.PolicyFirst, strategy)

	result := b.RunCycle(context.Background(), header(8))

	assert.Equal(t, 0, result.Failed)
	// a failed submission is still the pair's selection, but not a submission
	assert.Len(t, result.Selected, 1)
	assert.Equal(t, 0, result.Submitted)
}

func TestNewBlockSupersedesRunningCycle(t *testing.T) {
	strategy := &arbitrage.Strategy{Kind: config.UniSushi, Pairs: []types.Pair{{TokenA: tokenA, TokenB: tokenB}}}

	started := make(chan struct{})
	cancelled := make(chan struct{})
	scanner := &fakeScanner{fn: func(ctx context.Context, block uint64, s *arbitrage.Strategy, pair types.Pair) (*arbitrage.ScanResult, error) {
		if block == 1 {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		}
		return &arbitrage.ScanResult{Profitable: []*types.Opportunity{opportunity(s.Name(), pair, block, 0, 5)}}, nil
	}}
	executor := &fakeExecutor{}
	headers := newFakeHeaders()
	b, m := newTestBot(t, headers, scanner, executor, config.PolicyFirst, strategy)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	headers.ch <- header(1)
	<-started
	headers.ch <- header(2)

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("stale cycle was not cancelled")
	}

	require.Eventually(t, func() bool {
		return len(executor.Executed()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(2), executor.Executed()[0].BlockNumber)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Network.CyclesSuperseded))

	cancel()
	require.NoError(t, <-done)
}

func TestRunStopsWhenHeaderSourceFails(t *testing.T) {
	headers := newFakeHeaders()
	headers.err = errors.New("reconnect attempts exhausted")
	scanner := &fakeScanner{fn: func(context.Context, uint64, *arbitrage.Strategy, types.Pair) (*arbitrage.ScanResult, error) {
		return &arbitrage.ScanResult{}, nil
	}}
	b, _ := newTestBot(t, headers, scanner, &fakeExecutor{}, config.PolicyFirst)

	err := b.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconnect attempts exhausted")
}

func TestRunCycleSubmitsFlashLoan(t *testing.T) {
	logger := zaptest.NewLogger(t)
	m := metrics.New(prometheus.NewRegistry(), "test")

	fake := testutils.NewFakeChain()
	fake.Returns(tokenA, tokens.ERC20ABI, "decimals", uint8(0))
	fake.Returns(tokenB, tokens.ERC20ABI, "decimals", uint8(0))

	venue := func(name string, factory int64, reserveA, reserveB int64) *uniswap.Venue {
		v, err := uniswap.NewVenue(uniswap.Config{
			Name:         name,
			Factory:      testutils.Address(factory),
			InitCodeHash: common.HexToHash("0x01"),
		}, fake)
		require.NoError(t, err)
		pair, err := v.PairFor(tokenA, tokenB)
		require.NoError(t, err)
		fake.Returns(pair, uniswap.PairABI, "getReserves", big.NewInt(reserveA), big.NewInt(reserveB), uint32(0))
		return v
	}
	from := venue("uniswap", 0xf1, 1000000, 500000)
	to := venue("sushiswap", 0xf2, 1050000, 500000)

	cache := tokens.NewDecimalsCache(fake, logger)
	scanner := arbitrage.NewScanner(arbitrage.Config{
		BaseCapital:     decimal.NewFromInt(1000),
		Tiers:           1,
		ProfitThreshold: decimal.Zero,
	}, quote.NewEngine(cache, m.Quote, logger), cache, m.Strategy, logger)

	contract := testutils.Address(0xc0)
	executorAddr := testutils.Address(0xe0)
	signer, err := bind.NewKeyedTransactorWithChainID(testutils.CreateTestKey(t), big.NewInt(1))
	require.NoError(t, err)
	transactor := &testutils.FakeTransactor{}
	trigger, err := flashloan.NewTrigger(flashloan.TriggerConfig{
		Executor:   executorAddr,
		Strategies: map[string]common.Address{config.UniSushi.String(): contract},
	}, transactor, signer, gas.NewPricer(nil, big.NewInt(30e9), nil, logger), m, logger)
	require.NoError(t, err)

	strategy := &arbitrage.Strategy{
		Kind:     config.UniSushi,
		Legs:     []arbitrage.Leg{{From: from, To: to}, {From: to, To: from}},
		Pairs:    []types.Pair{{TokenA: tokenA, TokenB: tokenB}},
		Contract: contract,
	}
	b := New(Deps{
		Headers:    newFakeHeaders(),
		Scanner:    scanner,
		Executor:   trigger,
		Strategies: []*arbitrage.Strategy{strategy},
		Policy:     config.PolicyFirst,
		Workers:    2,
		Metrics:    m,
		Logger:     logger,
	})

	result := b.RunCycle(context.Background(), header(100))
	require.Equal(t, 1, result.Submitted)

	sent := transactor.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "initFlashloan", sent[0].Method)
	assert.Equal(t, tokenB, sent[0].Params[0])
	assert.Equal(t, big.NewInt(1000), sent[0].Params[1])
	assert.Equal(t, contract, sent[0].Params[2])
	assert.Equal(t, big.NewInt(30e9), sent[0].GasPrice)

	params, err := flashloan.DecodeParams(sent[0].Params[3].([]byte))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2005), params.InputAmount)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Strategy.Executions.WithLabelValues("uni_sushi", "submitted")))
}
