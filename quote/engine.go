package quote

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/tokens"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Engine is the single entry point for venue quotes. It validates requests,
// attaches token precision and records per-venue metrics.
type Engine struct {
	decimals tokens.Source
	metrics  *metrics.QuoteMetrics
	logger   *zap.Logger
}

// NewEngine creates a quote engine resolving decimals through source
func NewEngine(source tokens.Source, m *metrics.QuoteMetrics, logger *zap.Logger) *Engine {
	return &Engine{
		decimals: source,
		metrics:  m,
		logger:   logger,
	}
}

// Quote returns the counter-amount of trading amount between tokenIn and
// tokenOut on venue. For ExactOutput amount is the desired output of tokenOut
// and the result is the tokenIn required; for ExactInput the reverse.
func (e *Engine) Quote(ctx context.Context, venue dex.Venue, tokenIn, tokenOut common.Address, amount *big.Int, direction types.Direction) (*big.Int, error) {
	if !direction.Valid() {
		e.fail(venue, dex.ErrInvalidTradeType)
		return nil, fmt.Errorf("%s: %w", direction, dex.ErrInvalidTradeType)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("quote amount must be positive, got %v", amount)
	}

	decIn, err := e.decimals.DecimalsOf(ctx, tokenIn)
	if err != nil {
		e.fail(venue, err)
		return nil, err
	}
	decOut, err := e.decimals.DecimalsOf(ctx, tokenOut)
	if err != nil {
		e.fail(venue, err)
		return nil, err
	}

	e.metrics.Requests.WithLabelValues(venue.Name(), direction.String()).Inc()
	start := time.Now()
	result, err := venue.Quote(ctx, dex.QuoteRequest{
		TokenIn:   types.Token{Address: tokenIn, Decimals: decIn},
		TokenOut:  types.Token{Address: tokenOut, Decimals: decOut},
		Amount:    amount,
		Direction: direction,
	})
	e.metrics.Latency.WithLabelValues(venue.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		e.fail(venue, err)
		return nil, err
	}

	e.logger.Debug("Quoted",
		zap.String("venue", venue.Name()),
		zap.Stringer("kind", venue.Kind()),
		zap.String("direction", direction.String()),
		zap.String("token_in", tokenIn.Hex()),
		zap.String("token_out", tokenOut.Hex()),
		zap.String("amount", amount.String()),
		zap.String("result", result.String()))
	return result, nil
}

func (e *Engine) fail(venue dex.Venue, err error) {
	e.metrics.Failures.WithLabelValues(venue.Name(), dex.FailureReason(err)).Inc()
}
