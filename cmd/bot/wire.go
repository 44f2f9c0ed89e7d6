package bot

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/michaelpento.lv/flasharb/blocks"
	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/dex/balancer"
	"github.com/michaelpento.lv/flasharb/dex/curve"
	"github.com/michaelpento.lv/flasharb/dex/uniswap"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/gas"
	"github.com/michaelpento.lv/flasharb/quote"
	"github.com/michaelpento.lv/flasharb/strategies/arbitrage"
	"github.com/michaelpento.lv/flasharb/tokens"
	"github.com/michaelpento.lv/flasharb/utils/metrics"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Backend is everything the bot needs from a node connection.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	chain.HeadSubscriber
}

// Build validates cfg and assembles a bot over backend. Nothing touches the
// backend before the configuration has been accepted.
func Build(cfg *config.Config, backend Backend, m *metrics.Metrics, logger *zap.Logger) (*Bot, error) {
	if err := cfg.ValidateConfig(); err != nil {
		return nil, err
	}

	policy, err := config.ParsePolicy(cfg.Execution.Policy)
	if err != nil {
		return nil, err
	}

	caller := chain.NewLimitedCaller(backend, cfg.RPCRateLimit.RequestsPerSecond, cfg.RPCRateLimit.BurstSize)
	decimals := tokens.NewDecimalsCache(caller, logger)
	engine := quote.NewEngine(decimals, m.Quote, logger)

	strategies, err := BuildStrategies(cfg, caller, logger)
	if err != nil {
		return nil, err
	}

	scanner, err := newScanner(cfg, engine, decimals, m, logger)
	if err != nil {
		return nil, err
	}

	trigger, err := newTrigger(cfg, backend, strategies, m, logger)
	if err != nil {
		return nil, err
	}

	monitor := blocks.NewMonitor(blocks.Config{
		ReconnectBackoff: cfg.Network.ReconnectBackoff,
		MaxReconnects:    cfg.Network.MaxReconnects,
	}, backend, m.Network, logger)

	return New(Deps{
		Headers:    monitor,
		Scanner:    scanner,
		Executor:   trigger,
		Strategies: strategies,
		Policy:     policy,
		Workers:    cfg.Scanner.Workers,
		Metrics:    m,
		Logger:     logger,
	}), nil
}

// BuildStrategies resolves the configured strategies into venue legs. Venues
// are shared between strategies that use the same one.
func BuildStrategies(cfg *config.Config, caller chain.Caller, logger *zap.Logger) ([]*arbitrage.Strategy, error) {
	resolved, err := cfg.ResolveStrategies()
	if err != nil {
		return nil, err
	}

	venues := make(map[config.VenueID]dex.Venue)
	venueFor := func(id config.VenueID) (dex.Venue, error) {
		if v, ok := venues[id]; ok {
			return v, nil
		}
		v, err := buildVenue(cfg, id, caller, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create venue %s: %w", id, err)
		}
		venues[id] = v
		return v, nil
	}

	strategies := make([]*arbitrage.Strategy, 0, len(resolved))
	for _, rs := range resolved {
		fromID, toID := rs.Strategy.Venues()
		from, err := venueFor(fromID)
		if err != nil {
			return nil, err
		}
		to, err := venueFor(toID)
		if err != nil {
			return nil, err
		}

		legs := []arbitrage.Leg{{From: from, To: to}}
		if rs.Bidirectional {
			legs = append(legs, arbitrage.Leg{From: to, To: from})
		}

		strategies = append(strategies, &arbitrage.Strategy{
			Kind:     rs.Strategy,
			Legs:     legs,
			Pairs:    rs.Pairs,
			Contract: rs.Contract,
		})

		logger.Info("Loaded strategy",
			zap.String("strategy", rs.Strategy.String()),
			zap.String("from", from.Name()),
			zap.Stringer("from_kind", from.Kind()),
			zap.String("to", to.Name()),
			zap.Stringer("to_kind", to.Kind()),
			zap.Int("pairs", len(rs.Pairs)),
			zap.Bool("bidirectional", rs.Bidirectional))
	}
	return strategies, nil
}

func buildVenue(cfg *config.Config, id config.VenueID, caller chain.Caller, logger *zap.Logger) (dex.Venue, error) {
	switch id {
	case config.VenueRouter1, config.VenueRouter2:
		rc := cfg.Venues.Router1
		if id == config.VenueRouter2 {
			rc = cfg.Venues.Router2
		}
		return uniswap.NewVenue(uniswap.Config{
			Name:         rc.Name,
			Factory:      common.HexToAddress(rc.Factory),
			InitCodeHash: common.HexToHash(rc.InitCodeHash),
			FeeBps:       rc.FeeBps,
		}, caller)
	case config.VenueBalancer:
		pools := make([]common.Address, 0, len(cfg.Venues.Balancer.Pools))
		for _, p := range cfg.Venues.Balancer.Pools {
			pools = append(pools, common.HexToAddress(p))
		}
		return balancer.NewVenue(balancer.Config{
			Name:   cfg.Venues.Balancer.Name,
			Pools:  pools,
			Slices: cfg.Venues.Balancer.Slices,
		}, caller)
	case config.VenueCurve:
		return curve.NewVenue(curve.Config{
			Name: cfg.Venues.Curve.Name,
			Pool: common.HexToAddress(cfg.Venues.Curve.Pool),
		}, caller, logger)
	default:
		return nil, fmt.Errorf("unknown venue %q", id)
	}
}

func newScanner(cfg *config.Config, engine *quote.Engine, decimals tokens.Source, m *metrics.Metrics, logger *zap.Logger) (*arbitrage.Scanner, error) {
	capital, err := cfg.BaseCapital()
	if err != nil {
		return nil, err
	}
	threshold, err := cfg.Threshold()
	if err != nil {
		return nil, err
	}
	return arbitrage.NewScanner(arbitrage.Config{
		BaseCapital:     capital,
		Tiers:           cfg.Scanner.Tiers,
		ProfitThreshold: threshold,
	}, engine, decimals, m.Strategy, logger), nil
}

func newTrigger(cfg *config.Config, backend bind.ContractBackend, strategies []*arbitrage.Strategy, m *metrics.Metrics, logger *zap.Logger) (*flashloan.Trigger, error) {
	executor, err := cfg.ExecutorAddress()
	if err != nil {
		return nil, err
	}

	contracts := make(map[string]common.Address, len(strategies))
	for _, s := range strategies {
		contracts[s.Name()] = s.Contract
	}

	fixed, err := cfg.GasPrice()
	if err != nil {
		return nil, err
	}
	maxPrice, err := cfg.MaxGasPrice()
	if err != nil {
		return nil, err
	}
	pricer := gas.NewPricer(backend, fixed, maxPrice, logger)

	var signer *bind.TransactOpts
	if cfg.PrivateKey != "" {
		signer, err = NewSigner(cfg.PrivateKey, new(big.Int).SetUint64(cfg.Network.ChainID))
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded signer", zap.String("address", signer.From.Hex()))
	}

	return flashloan.NewTrigger(flashloan.TriggerConfig{
		Executor:   executor,
		Strategies: contracts,
		DryRun:     cfg.Execution.DryRun,
		Timeout:    cfg.Network.NetworkTimeout,
	}, flashloan.NewExecutorContract(executor, backend), signer, pricer, m, logger)
}

// NewSigner creates transaction options from a hex private key
func NewSigner(privateKey string, chainID *big.Int) (*bind.TransactOpts, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return nil, &config.Error{Field: "PRIVATE_KEY", Reason: "invalid private key"}
	}
	signer, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	return signer, nil
}
