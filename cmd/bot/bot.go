package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/strategies/arbitrage"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HeaderSource delivers the latest block header
type HeaderSource interface {
	Run(ctx context.Context) error
	Headers() <-chan *ethtypes.Header
}

// Scanner evaluates one pair of a strategy
type Scanner interface {
	Scan(ctx context.Context, blockNumber uint64, strategy *arbitrage.Strategy, pair types.Pair) (*arbitrage.ScanResult, error)
}

// Executor submits a profitable opportunity
type Executor interface {
	Execute(ctx context.Context, opp *types.Opportunity) (*ethtypes.Transaction, error)
}

// Deps are the collaborators of a Bot
type Deps struct {
	Headers    HeaderSource
	Scanner    Scanner
	Executor   Executor
	Strategies []*arbitrage.Strategy
	Policy     config.Policy
	Workers    int
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// Bot runs one scan cycle per new block. A newer block cancels the cycle still
// running for an older one; submitted transactions are never cancelled.
type Bot struct {
	deps   Deps
	logger *zap.Logger
}

// CycleResult summarizes one scan cycle
type CycleResult struct {
	Block     uint64
	Scanned   int
	Failed    int
	// Selected holds the opportunity chosen for each pair, submitted or not
	Selected  []*types.Opportunity
	Submitted int
}

// New creates a new bot instance
func New(deps Deps) *Bot {
	if deps.Workers <= 0 {
		deps.Workers = 1
	}
	return &Bot{
		deps:   deps,
		logger: deps.Logger,
	}
}

// Run follows new blocks until ctx is done or the header source fails
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting arbitrage bot",
		zap.Int("strategies", len(b.deps.Strategies)),
		zap.String("policy", string(b.deps.Policy)),
		zap.Int("workers", b.deps.Workers))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := b.deps.Headers.Run(gctx); err != nil {
			return err
		}
		// the source only stops cleanly on cancellation
		return gctx.Err()
	})
	g.Go(func() error {
		b.loop(gctx)
		return nil
	})

	err := g.Wait()
	b.logger.Info("Stopping arbitrage bot")
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (b *Bot) loop(ctx context.Context) {
	var (
		cancelCycle context.CancelFunc
		cycleDone   chan struct{}
	)
	stopCycle := func() {
		if cycleDone == nil {
			return
		}
		select {
		case <-cycleDone:
		default:
			b.deps.Metrics.Network.CyclesSuperseded.Inc()
			b.logger.Debug("Superseding scan cycle")
		}
		cancelCycle()
		<-cycleDone
	}

	for {
		select {
		case <-ctx.Done():
			stopCycle()
			return
		case header := <-b.deps.Headers.Headers():
			stopCycle()

			cycleCtx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			cancelCycle, cycleDone = cancel, done
			go func() {
				defer close(done)
				b.RunCycle(cycleCtx, header)
			}()
		}
	}
}

// RunCycle scans every strategy and pair against the state at header and
// executes the selected opportunity of each pair
func (b *Bot) RunCycle(ctx context.Context, header *ethtypes.Header) *CycleResult {
	start := time.Now()
	block := header.Number.Uint64()
	result := &CycleResult{Block: block}

	b.deps.Metrics.Network.LatestBlock.Set(float64(block))
	b.logger.Debug("Scanning block", zap.Uint64("block", block))

	ctx = chain.WithBlock(ctx, header.Number)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(b.deps.Workers)

	for _, strategy := range b.deps.Strategies {
		for _, pair := range strategy.Pairs {
			if ctx.Err() != nil {
				break
			}
			strategy, pair := strategy, pair
			g.Go(func() error {
				opp, submitted, err := b.scanPair(ctx, block, strategy, pair)

				mu.Lock()
				defer mu.Unlock()
				result.Scanned++
				if err != nil {
					result.Failed++
				}
				if opp != nil {
					result.Selected = append(result.Selected, opp)
					if submitted {
						result.Submitted++
					}
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	b.deps.Metrics.Network.CycleTime.Observe(time.Since(start).Seconds())
	b.logger.Debug("Scanned block",
		zap.Uint64("block", block),
		zap.Int("pairs", result.Scanned),
		zap.Int("failed", result.Failed),
		zap.Int("selected", len(result.Selected)),
		zap.Int("submitted", result.Submitted),
		zap.Duration("elapsed", time.Since(start)))
	return result
}

func (b *Bot) scanPair(ctx context.Context, block uint64, strategy *arbitrage.Strategy, pair types.Pair) (*types.Opportunity, bool, error) {
	scan, err := b.deps.Scanner.Scan(ctx, block, strategy, pair)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, err
		}
		b.logger.Warn("Failed to scan pair",
			zap.String("strategy", strategy.Name()),
			zap.String("pair", pair.String()),
			zap.Error(err))
		return nil, false, err
	}

	opp := arbitrage.Select(b.deps.Policy, scan.Profitable)
	if opp == nil || ctx.Err() != nil {
		return nil, false, nil
	}

	tx, err := b.deps.Executor.Execute(ctx, opp)
	if err != nil {
		// already logged by the executor; other pairs carry on
		return opp, false, nil
	}
	return opp, tx != nil, nil
}
