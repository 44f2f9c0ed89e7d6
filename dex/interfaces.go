package dex

import (
	"context"
	"errors"
	"math/big"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/types"
)

var (
	// ErrPairNotFound is returned when a venue has no pool for the requested tokens
	ErrPairNotFound = errors.New("pair not found")
	// ErrInvalidTradeType is returned for a direction other than exact input or exact output
	ErrInvalidTradeType = errors.New("invalid trade type")
	// ErrInsufficientLiquidity is returned when the pool cannot fill the requested amount
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
)

// Kind identifies a venue pricing model
type Kind int

const (
	ConstantProduct Kind = iota
	WeightedPool
	Stableswap
)

func (k Kind) String() string {
	switch k {
	case ConstantProduct:
		return "constant_product"
	case WeightedPool:
		return "weighted_pool"
	case Stableswap:
		return "stableswap"
	default:
		return "unknown"
	}
}

// QuoteRequest asks a venue for the counter-amount of a trade
type QuoteRequest struct {
	TokenIn   types.Token
	TokenOut  types.Token
	Amount    *big.Int
	Direction types.Direction
}

// Venue represents a liquidity source that can price trades
type Venue interface {
	// Name returns the configured venue name, used in logs and metrics
	Name() string

	// Kind returns the pricing model of the venue
	Kind() Kind

	// Quote returns the output amount for ExactInput requests and the required
	// input amount for ExactOutput requests, in smallest token units.
	Quote(ctx context.Context, req QuoteRequest) (*big.Int, error)
}

// FailureReason maps a quote error to a short label for logs and metrics
func FailureReason(err error) string {
	var rpcErr *chain.RPCError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPairNotFound):
		return "pair_not_found"
	case errors.Is(err, ErrInvalidTradeType):
		return "invalid_trade_type"
	case errors.Is(err, ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &rpcErr):
		return "rpc_error"
	default:
		return "other"
	}
}
