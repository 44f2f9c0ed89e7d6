package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"go.uber.org/zap"
)

// Suggester returns the node's suggested legacy gas price
type Suggester interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Pricer supplies the gas price used for flash loan submissions. A configured
// fixed price always wins; otherwise the node suggestion is used, capped at max.
type Pricer struct {
	client Suggester
	logger *zap.Logger
	fixed  *big.Int
	max    *big.Int

	mu   sync.RWMutex
	last *big.Int
}

// NewPricer creates a pricer. fixed and max may be nil.
func NewPricer(client Suggester, fixed, max *big.Int, logger *zap.Logger) *Pricer {
	return &Pricer{
		client: client,
		logger: logger,
		fixed:  fixed,
		max:    max,
	}
}

// GasPrice returns the price to submit with
func (p *Pricer) GasPrice(ctx context.Context) (*big.Int, error) {
	if p.fixed != nil {
		return new(big.Int).Set(p.fixed), nil
	}
	if p.client == nil {
		return nil, fmt.Errorf("no gas price configured and no node to ask")
	}

	price, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	if p.max != nil && price.Cmp(p.max) > 0 {
		p.logger.Warn("Suggested gas price above cap",
			zap.String("suggested", price.String()),
			zap.String("cap", p.max.String()))
		price = new(big.Int).Set(p.max)
	}

	if prev := p.Last(); prev == nil || prev.Cmp(price) != 0 {
		fields := []zap.Field{zap.String("gas_price", price.String())}
		if prev != nil {
			fields = append(fields, zap.String("previous", prev.String()))
		}
		p.logger.Debug("Gas price changed", fields...)
	}

	p.mu.Lock()
	p.last = price
	p.mu.Unlock()
	return price, nil
}

// Last returns the most recent node-suggested price, or nil
func (p *Pricer) Last() *big.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return nil
	}
	return new(big.Int).Set(p.last)
}
