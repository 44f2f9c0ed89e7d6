package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Environment variables
const (
	EnvPrivateKey        = "PRIVATE_KEY"
	EnvWeb3URL           = "WEB3_URL"
	EnvChainID           = "CHAIN_ID"
	EnvStratList         = "STRAT_LIST"
	EnvProfitThreshold   = "PROFIT_THRESHOLD"
	EnvGasPrice          = "GAS_PRICE" // wei
	EnvRouter1Factory    = "ROUTER_1_FACTORY_ADDRESS"
	EnvRouter1InitCode   = "ROUTER_1_INIT_CODE_HASH"
	EnvRouter2Factory    = "ROUTER_2_FACTORY_ADDRESS"
	EnvRouter2InitCode   = "ROUTER_2_INIT_CODE_HASH"
	EnvUniArbPairs       = "UNI_ARB_PAIRS"
	EnvUniBalPairs       = "UNI_BAL_PAIRS"
	EnvCrvLPPairs        = "CRV_LP_PAIRS"
	EnvBalancerPools     = "BAL_POOLS"
	EnvCurvePool         = "CRV_POOL"
	EnvExecutorAddress   = "EXECUTOR_ADDRESS"
	EnvStrategyContracts = "STRATEGY_CONTRACT_"
)

var pairEnv = map[Strategy]string{
	UniSushi: EnvUniArbPairs,
	UniBal:   EnvUniBalPairs,
	CrvLP:    EnvCrvLPPairs,
}

// LoadEnv loads environment variables from the given .env files. Missing
// files are ignored.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// ApplyEnv overlays environment variables on cfg. STRAT_LIST replaces the
// configured strategy list; pair lists and contract addresses are attached to
// the strategy they belong to.
func (c *Config) ApplyEnv() error {
	c.PrivateKey = GetEnvWithDefault(EnvPrivateKey, c.PrivateKey)
	c.Network.WSEndpoint = GetEnvWithDefault(EnvWeb3URL, c.Network.WSEndpoint)
	c.ProfitThreshold = GetEnvWithDefault(EnvProfitThreshold, c.ProfitThreshold)

	if v := os.Getenv(EnvChainID); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return &Error{Field: EnvChainID, Reason: err.Error()}
		}
		c.Network.ChainID = id
	}

	if v := os.Getenv(EnvGasPrice); v != "" {
		wei, err := decimal.NewFromString(v)
		if err != nil {
			return &Error{Field: EnvGasPrice, Reason: err.Error()}
		}
		c.GasPriceGwei = wei.Shift(-9).String()
	}

	c.Venues.Router1.Factory = GetEnvWithDefault(EnvRouter1Factory, c.Venues.Router1.Factory)
	c.Venues.Router1.InitCodeHash = GetEnvWithDefault(EnvRouter1InitCode, c.Venues.Router1.InitCodeHash)
	c.Venues.Router2.Factory = GetEnvWithDefault(EnvRouter2Factory, c.Venues.Router2.Factory)
	c.Venues.Router2.InitCodeHash = GetEnvWithDefault(EnvRouter2InitCode, c.Venues.Router2.InitCodeHash)
	if v := os.Getenv(EnvBalancerPools); v != "" {
		c.Venues.Balancer.Pools = splitList(v)
	}
	c.Venues.Curve.Pool = GetEnvWithDefault(EnvCurvePool, c.Venues.Curve.Pool)

	if v := os.Getenv(EnvExecutorAddress); v != "" {
		if c.Execution.ExecutorAddresses == nil {
			c.Execution.ExecutorAddresses = make(map[uint64]string)
		}
		c.Execution.ExecutorAddresses[c.Network.ChainID] = v
	}

	if v := os.Getenv(EnvStratList); v != "" {
		existing := make(map[string]StrategyConfig, len(c.Strategies))
		for _, sc := range c.Strategies {
			existing[sc.Name] = sc
		}
		c.Strategies = c.Strategies[:0]
		for _, name := range splitList(v) {
			sc, ok := existing[name]
			if !ok {
				sc = StrategyConfig{Name: name}
			}
			c.Strategies = append(c.Strategies, sc)
		}
	}

	for i := range c.Strategies {
		sc := &c.Strategies[i]
		s, err := ParseStrategy(sc.Name)
		if err != nil {
			// reported by ValidateConfig
			continue
		}
		if v := os.Getenv(pairEnv[s]); v != "" {
			sc.Pairs = splitList(v)
		}
		if v := os.Getenv(EnvStrategyContracts + s.envSuffix()); v != "" {
			if sc.Contracts == nil {
				sc.Contracts = make(map[uint64]string)
			}
			sc.Contracts[c.Network.ChainID] = v
		}
	}
	return nil
}

func (s Strategy) envSuffix() string {
	switch s {
	case UniSushi:
		return "UNI_SUSHI"
	case UniBal:
		return "UNI_BAL"
	case CrvLP:
		return "CRV_LP"
	default:
		return ""
	}
}
