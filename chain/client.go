package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

// Caller performs read-only contract calls
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// HeadSubscriber delivers new block headers
type HeadSubscriber interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// ErrEmptyResult is returned when a call comes back with no data, which is what
// a node answers for an address without code.
var ErrEmptyResult = errors.New("empty call result")

// RPCError wraps a chain client transport failure
type RPCError struct {
	Op  string
	Err error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc %s: %v", e.Op, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// IsRevert reports whether err carries an execution revert from eth_call
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "invalid opcode")
}

type blockKey struct{}

// WithBlock pins contract calls made with ctx to the given block number
func WithBlock(ctx context.Context, number *big.Int) context.Context {
	if number == nil {
		return ctx
	}
	return context.WithValue(ctx, blockKey{}, new(big.Int).Set(number))
}

// BlockFrom returns the block pinned by WithBlock, or nil for latest
func BlockFrom(ctx context.Context) *big.Int {
	number, _ := ctx.Value(blockKey{}).(*big.Int)
	return number
}

// MustParseABI parses a JSON ABI definition and panics on malformed input
func MustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}

// LimitedCaller throttles contract calls with a token bucket
type LimitedCaller struct {
	caller  Caller
	limiter *rate.Limiter
}

// NewLimitedCaller creates a caller allowing rps calls per second with the given burst
func NewLimitedCaller(caller Caller, rps float64, burst int) *LimitedCaller {
	return &LimitedCaller{
		caller:  caller,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// CallContract waits for a token and forwards the call
func (l *LimitedCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return l.caller.CallContract(ctx, msg, blockNumber)
}
