package arbitrage

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/tokens"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Quoter prices a trade on a venue
type Quoter interface {
	Quote(ctx context.Context, venue dex.Venue, tokenIn, tokenOut common.Address, amount *big.Int, direction types.Direction) (*big.Int, error)
}

// Leg is one venue ordering: buy the intermediate token on From, sell it on To
type Leg struct {
	From dex.Venue
	To   dex.Venue
}

// Strategy is a resolved strategy with live venues
type Strategy struct {
	Kind     config.Strategy
	Legs     []Leg
	Pairs    []types.Pair
	Contract common.Address
}

// Name returns the configured strategy name
func (s *Strategy) Name() string {
	return s.Kind.String()
}

// Config holds the scanner parameters
type Config struct {
	// BaseCapital is the tier 0 size in whole units of the pair's second token
	BaseCapital decimal.Decimal
	Tiers       int
	// ProfitThreshold is the minimum profit in whole units of the pair's first token
	ProfitThreshold decimal.Decimal
}

// TierSkip records a tier abandoned after a quote failure
type TierSkip struct {
	Leg    int
	Tier   int
	Reason string
	Err    error
}

// ScanResult holds every tier outcome of one pair scan
type ScanResult struct {
	// Evaluated lists every tier that produced both quotes, in evaluation order
	Evaluated []*types.Opportunity
	// Profitable is the subset of Evaluated above the threshold
	Profitable []*types.Opportunity
	Skipped    []TierSkip
}

// Scanner walks the capital ladder of a pair across a strategy's venues
type Scanner struct {
	cfg      Config
	quoter   Quoter
	decimals tokens.Source
	metrics  *metrics.StrategyMetrics
	logger   *zap.Logger
}

// NewScanner creates a new opportunity scanner
func NewScanner(cfg Config, quoter Quoter, decimals tokens.Source, m *metrics.StrategyMetrics, logger *zap.Logger) *Scanner {
	return &Scanner{
		cfg:      cfg,
		quoter:   quoter,
		decimals: decimals,
		metrics:  m,
		logger:   logger,
	}
}

// Scan evaluates every leg and every capital tier of pair. A quote failure
// skips only the tier it happened on. The returned error is set when the pair
// itself cannot be scanned or ctx is done; the partial result is still returned.
func (s *Scanner) Scan(ctx context.Context, blockNumber uint64, strategy *Strategy, pair types.Pair) (*ScanResult, error) {
	start := time.Now()
	defer func() {
		s.metrics.ScanTime.Observe(time.Since(start).Seconds())
	}()

	result := &ScanResult{}

	decA, err := s.decimals.DecimalsOf(ctx, pair.TokenA)
	if err != nil {
		return result, fmt.Errorf("pair %s: %w", pair, err)
	}
	decB, err := s.decimals.DecimalsOf(ctx, pair.TokenB)
	if err != nil {
		return result, fmt.Errorf("pair %s: %w", pair, err)
	}
	threshold := ScaleToUnits(s.cfg.ProfitThreshold, decA)

	for legIndex, leg := range strategy.Legs {
		for tier := 0; tier < s.cfg.Tiers; tier++ {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			opp, err := s.evaluate(ctx, strategy, pair, leg, tier, TierAmount(s.cfg.BaseCapital, tier, decB))
			if err != nil {
				s.skip(result, strategy, pair, leg, legIndex, tier, err)
				continue
			}
			opp.BlockNumber = blockNumber

			s.metrics.TiersEvaluated.WithLabelValues(strategy.Name()).Inc()
			result.Evaluated = append(result.Evaluated, opp)
			if opp.Profit.Cmp(threshold) > 0 {
				s.metrics.Opportunities.WithLabelValues(strategy.Name()).Inc()
				result.Profitable = append(result.Profitable, opp)
				s.logger.Info("Found profitable tier",
					zap.String("strategy", strategy.Name()),
					zap.String("pair", pair.String()),
					zap.String("from", opp.VenueFrom),
					zap.String("to", opp.VenueTo),
					zap.Int("tier", tier),
					zap.String("profit", opp.Profit.String()),
					zap.String("threshold", threshold.String()))
			}
		}
	}

	return result, nil
}

func (s *Scanner) evaluate(ctx context.Context, strategy *Strategy, pair types.Pair, leg Leg, tier int, outputTarget *big.Int) (*types.Opportunity, error) {
	inputNeeded, err := s.quoter.Quote(ctx, leg.From, pair.TokenA, pair.TokenB, outputTarget, types.ExactOutput)
	if err != nil {
		return nil, fmt.Errorf("buy on %s: %w", leg.From.Name(), err)
	}

	outputReceived, err := s.quoter.Quote(ctx, leg.To, pair.TokenB, pair.TokenA, outputTarget, types.ExactInput)
	if err != nil {
		return nil, fmt.Errorf("sell on %s: %w", leg.To.Name(), err)
	}

	return &types.Opportunity{
		Strategy:       strategy.Name(),
		Pair:           pair,
		Tier:           tier,
		InputAmount:    inputNeeded,
		OutputTarget:   outputTarget,
		OutputReceived: outputReceived,
		Profit:         new(big.Int).Sub(outputReceived, inputNeeded),
		VenueFrom:      leg.From.Name(),
		VenueTo:        leg.To.Name(),
	}, nil
}

func (s *Scanner) skip(result *ScanResult, strategy *Strategy, pair types.Pair, leg Leg, legIndex, tier int, err error) {
	reason := dex.FailureReason(err)
	result.Skipped = append(result.Skipped, TierSkip{Leg: legIndex, Tier: tier, Reason: reason, Err: err})
	s.metrics.TiersSkipped.WithLabelValues(strategy.Name(), reason).Inc()

	fields := []zap.Field{
		zap.String("strategy", strategy.Name()),
		zap.String("pair", pair.String()),
		zap.String("from", leg.From.Name()),
		zap.String("to", leg.To.Name()),
		zap.Int("tier", tier),
		zap.String("reason", reason),
		zap.Error(err),
	}
	if reason == "rpc_error" {
		s.logger.Warn("Tier skipped", fields...)
		return
	}
	s.logger.Debug("Tier skipped", fields...)
}

// TierAmount returns base × 10^tier in the smallest unit of a token with the
// given decimals
func TierAmount(base decimal.Decimal, tier int, decimals uint8) *big.Int {
	return base.Shift(int32(tier)).Shift(int32(decimals)).BigInt()
}

// ScaleToUnits converts a whole-unit amount to the token's integer units.
// Fractions below one unit are truncated, which keeps a strict greater-than
// comparison against integer amounts exact.
func ScaleToUnits(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).BigInt()
}

// Select picks the opportunity to execute from profitable tiers in evaluation
// order. PolicyFirst takes the earliest; PolicyBest the largest profit, with
// ties going to the earliest.
func Select(policy config.Policy, profitable []*types.Opportunity) *types.Opportunity {
	if len(profitable) == 0 {
		return nil
	}
	if policy != config.PolicyBest {
		return profitable[0]
	}

	best := profitable[0]
	for _, opp := range profitable[1:] {
		if opp.Profit.Cmp(best.Profit) > 0 {
			best = opp
		}
	}
	return best
}
