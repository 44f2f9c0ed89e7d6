package flashloan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ExecutorABI is the arbitrage executor entry point
var ExecutorABI = chain.MustParseABI(`[{
	"inputs": [
		{"internalType": "address", "name": "token", "type": "address"},
		{"internalType": "uint256", "name": "amount", "type": "uint256"},
		{"internalType": "address", "name": "strategy", "type": "address"},
		{"internalType": "bytes", "name": "params", "type": "bytes"}
	],
	"name": "initFlashloan",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`)

// ExecutionError reports a rejected submission for one opportunity
type ExecutionError struct {
	Fingerprint uint64
	Strategy    string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s opportunity %016x: %v", e.Strategy, e.Fingerprint, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// TriggerConfig holds the static execution settings
type TriggerConfig struct {
	Executor common.Address
	// Strategies maps a strategy name to its on-chain strategy contract
	Strategies map[string]common.Address
	DryRun     bool
	// Timeout bounds gas pricing, estimation and sending of one submission
	Timeout time.Duration
}

// Trigger submits initFlashloan transactions for profitable opportunities.
// Submissions are fire and forget: no receipt wait and no retry.
type Trigger struct {
	cfg     TriggerConfig
	backend Transactor
	signer  *bind.TransactOpts
	pricer  GasPricer
	metrics *metrics.Metrics
	logger  *zap.Logger

	// serializes nonce use across concurrent pair scans
	mu sync.Mutex
}

// NewTrigger creates an execution trigger. signer may be nil in dry-run mode.
func NewTrigger(cfg TriggerConfig, backend Transactor, signer *bind.TransactOpts, pricer GasPricer, m *metrics.Metrics, logger *zap.Logger) (*Trigger, error) {
	if !cfg.DryRun && (signer == nil || backend == nil) {
		return nil, errors.New("a signer and backend are required unless running dry")
	}
	return &Trigger{
		cfg:     cfg,
		backend: backend,
		signer:  signer,
		pricer:  pricer,
		metrics: m,
		logger:  logger,
	}, nil
}

// NewExecutorContract binds the executor for transaction submission
func NewExecutorContract(address common.Address, backend bind.ContractBackend) *bind.BoundContract {
	return bind.NewBoundContract(address, ExecutorABI, backend, backend, backend)
}

// Execute encodes opp and calls initFlashloan on the executor, borrowing the
// opportunity's output target of the second token. The submission ignores
// cancellation of ctx but not the configured timeout; a sent transaction
// cannot be recalled. In dry-run mode
// nothing is sent and the returned transaction is nil.
func (t *Trigger) Execute(ctx context.Context, opp *types.Opportunity) (*ethtypes.Transaction, error) {
	ctx = context.WithoutCancel(ctx)
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}
	fingerprint := opp.Fingerprint()
	fail := func(err error) (*ethtypes.Transaction, error) {
		t.metrics.Strategy.Executions.WithLabelValues(opp.Strategy, "failed").Inc()
		execErr := &ExecutionError{Fingerprint: fingerprint, Strategy: opp.Strategy, Err: err}
		t.logger.Error("Failed to execute flash loan", zap.Error(execErr))
		return nil, execErr
	}

	strategy, ok := t.cfg.Strategies[opp.Strategy]
	if !ok {
		return fail(fmt.Errorf("no strategy contract for %s", opp.Strategy))
	}

	params, err := ParamsFor(opp).Encode()
	if err != nil {
		return fail(err)
	}

	logFields := []zap.Field{
		zap.String("id", fmt.Sprintf("%016x", fingerprint)),
		zap.String("strategy", opp.Strategy),
		zap.String("executor", t.cfg.Executor.Hex()),
		zap.Uint64("block", opp.BlockNumber),
		zap.Int("tier", opp.Tier),
		zap.String("token", opp.Pair.TokenB.Hex()),
		zap.String("amount", opp.OutputTarget.String()),
		zap.String("profit", opp.Profit.String()),
	}

	if t.cfg.DryRun {
		t.metrics.Strategy.Executions.WithLabelValues(opp.Strategy, "dry_run").Inc()
		t.logger.Info("Dry run, not submitting flash loan", logFields...)
		return nil, nil
	}

	gasPrice, err := t.pricer.GasPrice(ctx)
	if err != nil {
		return fail(err)
	}
	t.metrics.Network.GasPrice.Observe(float64(gasPrice.Uint64()))

	t.mu.Lock()
	defer t.mu.Unlock()

	opts := *t.signer
	opts.Context = ctx
	opts.GasPrice = gasPrice

	tx, err := t.backend.Transact(&opts, "initFlashloan", opp.Pair.TokenB, opp.OutputTarget, strategy, params)
	if err != nil {
		return fail(err)
	}

	t.metrics.Strategy.Executions.WithLabelValues(opp.Strategy, "submitted").Inc()
	t.logger.Info("Flash loan submitted", append(logFields, zap.String("tx_hash", tx.Hash().Hex()))...)
	return tx, nil
}
