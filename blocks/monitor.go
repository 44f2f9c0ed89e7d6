package blocks

import (
	"context"
	"fmt"
	"time"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/utils/metrics"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Config controls resubscription after a lost head subscription
type Config struct {
	ReconnectBackoff time.Duration
	MaxReconnects    int
}

// Monitor follows new block headers and keeps only the latest undelivered one.
// Slow consumers never block the subscription; a newer header replaces an
// older header nobody has picked up yet.
type Monitor struct {
	cfg     Config
	client  chain.HeadSubscriber
	headers chan *types.Header
	metrics *metrics.NetworkMetrics
	logger  *zap.Logger
}

// NewMonitor creates a new block header monitor
func NewMonitor(cfg Config, client chain.HeadSubscriber, m *metrics.NetworkMetrics, logger *zap.Logger) *Monitor {
	return &Monitor{
		cfg:     cfg,
		client:  client,
		headers: make(chan *types.Header, 1),
		metrics: m,
		logger:  logger,
	}
}

// Headers returns the latest-header channel
func (m *Monitor) Headers() <-chan *types.Header {
	return m.headers
}

// Run subscribes to new heads until ctx is done. A failed subscription is
// retried with a linear backoff; after MaxReconnects consecutive failures Run
// returns an error.
func (m *Monitor) Run(ctx context.Context) error {
	failures := 0
	for {
		delivered, err := m.follow(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if delivered {
			failures = 0
		}
		failures++
		if failures > m.cfg.MaxReconnects {
			return fmt.Errorf("head subscription lost after %d reconnects: %w", m.cfg.MaxReconnects, err)
		}

		backoff := m.cfg.ReconnectBackoff * time.Duration(failures)
		m.logger.Warn("Resubscribing to block headers",
			zap.Int("attempt", failures),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		m.metrics.Reconnects.Inc()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}

// follow runs one subscription and reports whether it delivered any header
func (m *Monitor) follow(ctx context.Context) (bool, error) {
	ch := make(chan *types.Header, 16)
	sub, err := m.client.SubscribeNewHead(ctx, ch)
	if err != nil {
		m.metrics.SubscriptionErrors.Inc()
		return false, &chain.RPCError{Op: "eth_subscribe", Err: err}
	}
	defer sub.Unsubscribe()

	m.logger.Info("Listening to block headers")

	delivered := false
	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()
		case err := <-sub.Err():
			m.metrics.SubscriptionErrors.Inc()
			m.logger.Error("Subscription error", zap.Error(err))
			if err == nil {
				err = fmt.Errorf("subscription closed")
			}
			return delivered, &chain.RPCError{Op: "eth_subscribe", Err: err}
		case header := <-ch:
			delivered = true
			m.publish(header)
			m.metrics.Blocks.Inc()
		}
	}
}

func (m *Monitor) publish(header *types.Header) {
	for {
		select {
		case m.headers <- header:
			return
		default:
		}
		// drop the stale header
		select {
		case <-m.headers:
		default:
		}
	}
}
