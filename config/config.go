package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Network      NetworkConfig   `yaml:"network"`
	RPCRateLimit RateLimitConfig `yaml:"rpc_rate_limit"`

	// ProfitThreshold is a decimal amount in whole units of the pair's first token
	ProfitThreshold string `yaml:"profit_threshold"`
	// GasPriceGwei fixes the gas price; empty uses the node suggestion
	GasPriceGwei    string `yaml:"gas_price_gwei"`
	MaxGasPriceGwei string `yaml:"max_gas_price_gwei"`

	Scanner    ScannerConfig    `yaml:"scanner"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Venues     VenuesConfig     `yaml:"venues"`
	Strategies []StrategyConfig `yaml:"strategies"`
	Metrics    MetricsConfig    `yaml:"metrics"`

	// PrivateKey is only ever read from the environment
	PrivateKey string `yaml:"-"`
}

type NetworkConfig struct {
	WSEndpoint       string        `yaml:"ws_endpoint"`
	ChainID          uint64        `yaml:"chain_id"`
	NetworkTimeout   time.Duration `yaml:"network_timeout"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`
	MaxReconnects    int           `yaml:"max_reconnects"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type ScannerConfig struct {
	// BaseCapital is the first tier size in whole units of the pair's second token
	BaseCapital string `yaml:"base_capital"`
	Tiers       int    `yaml:"tiers"`
	Workers     int    `yaml:"workers"`
}

type ExecutionConfig struct {
	Policy            string            `yaml:"policy"`
	DryRun            bool              `yaml:"dry_run"`
	ExecutorAddresses map[uint64]string `yaml:"executor_addresses"`
}

type VenuesConfig struct {
	Router1  RouterConfig   `yaml:"router1"`
	Router2  RouterConfig   `yaml:"router2"`
	Balancer BalancerConfig `yaml:"balancer"`
	Curve    CurveConfig    `yaml:"curve"`
}

type RouterConfig struct {
	Name         string `yaml:"name"`
	Factory      string `yaml:"factory"`
	InitCodeHash string `yaml:"init_code_hash"`
	FeeBps       uint64 `yaml:"fee_bps"`
}

type BalancerConfig struct {
	Name   string   `yaml:"name"`
	Pools  []string `yaml:"pools"`
	Slices int      `yaml:"slices"`
}

type CurveConfig struct {
	Name string `yaml:"name"`
	Pool string `yaml:"pool"`
}

type StrategyConfig struct {
	Name          string            `yaml:"name"`
	Pairs         []string          `yaml:"pairs"`
	Bidirectional bool              `yaml:"bidirectional"`
	Contracts     map[uint64]string `yaml:"contracts"`
}

type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
	Namespace     string `yaml:"namespace"`
}

// DefaultConfig returns mainnet defaults. Strategies, pairs and contract
// addresses have no defaults.
func DefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			WSEndpoint:       "ws://localhost:8546",
			ChainID:          1,
			NetworkTimeout:   10 * time.Second,
			ReconnectBackoff: 2 * time.Second,
			MaxReconnects:    5,
		},
		RPCRateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			BurstSize:         100,
		},
		ProfitThreshold: "0",
		MaxGasPriceGwei: "500",
		Scanner: ScannerConfig{
			BaseCapital: "1000",
			Tiers:       4,
			Workers:     8,
		},
		Execution: ExecutionConfig{
			Policy:            string(PolicyFirst),
			ExecutorAddresses: map[uint64]string{},
		},
		Venues: VenuesConfig{
			Router1: RouterConfig{
				Name:         "uniswap",
				Factory:      "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f",
				InitCodeHash: "0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f",
				FeeBps:       30,
			},
			Router2: RouterConfig{
				Name:         "sushiswap",
				Factory:      "0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac",
				InitCodeHash: "0xe18a34eb0e04b04f7a0ac29a6e80748dca96319b42c54d679cb821dca90c6303",
				FeeBps:       30,
			},
			Balancer: BalancerConfig{
				Name:   "balancer",
				Slices: 10,
			},
			Curve: CurveConfig{
				Name: "curve",
			},
		},
		Metrics: MetricsConfig{
			Enabled:       false,
			ListenAddress: ":9090",
			Namespace:     "flasharb",
		},
	}
}

// LoadConfig reads the YAML file at cfgFile over the defaults. A missing file
// at the default location is not an error; environment overrides are applied
// separately by ApplyEnv.
func LoadConfig(cfgFile string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := cfgFile != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".flasharb.yaml")
	}

	data, err := os.ReadFile(cfgFile)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	return cfg, nil
}

// ValidateConfig reports every invalid field at once
func (c *Config) ValidateConfig() error {
	var errs []error
	add := func(field, reason string) {
		errs = append(errs, &Error{Field: field, Reason: reason})
	}

	if c.Network.WSEndpoint == "" {
		add("network.ws_endpoint", "must be specified")
	}
	if c.Network.ChainID == 0 {
		add("network.chain_id", "must be specified")
	}
	if c.Network.NetworkTimeout <= 0 {
		add("network.network_timeout", "must be positive")
	}
	if c.Network.MaxReconnects < 0 {
		add("network.max_reconnects", "must not be negative")
	}
	if c.RPCRateLimit.RequestsPerSecond <= 0 {
		add("rpc_rate_limit.requests_per_second", "must be positive")
	}
	if c.RPCRateLimit.BurstSize <= 0 {
		add("rpc_rate_limit.burst_size", "must be positive")
	}

	if threshold, err := c.Threshold(); err != nil {
		add("profit_threshold", err.Error())
	} else if threshold.IsNegative() {
		add("profit_threshold", "must not be negative")
	}
	if _, err := c.GasPrice(); err != nil {
		add("gas_price_gwei", err.Error())
	}
	if _, err := c.MaxGasPrice(); err != nil {
		add("max_gas_price_gwei", err.Error())
	}

	if capital, err := c.BaseCapital(); err != nil {
		add("scanner.base_capital", err.Error())
	} else if !capital.IsPositive() {
		add("scanner.base_capital", "must be positive")
	}
	if c.Scanner.Tiers <= 0 {
		add("scanner.tiers", "must be positive")
	}
	if c.Scanner.Workers <= 0 {
		add("scanner.workers", "must be positive")
	}

	if _, err := ParsePolicy(c.Execution.Policy); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ExecutorAddress(); err != nil {
		errs = append(errs, err)
	}
	if !c.Execution.DryRun && c.PrivateKey == "" {
		add("PRIVATE_KEY", "must be set unless execution.dry_run is enabled")
	}

	if len(c.Strategies) == 0 {
		add("strategies", "at least one strategy must be configured")
	}
	if _, err := c.ResolveStrategies(); err != nil {
		errs = append(errs, err)
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		add("metrics.listen_address", "must be specified when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// Threshold returns the profit threshold in whole units
func (c *Config) Threshold() (decimal.Decimal, error) {
	return decimal.NewFromString(c.ProfitThreshold)
}

// BaseCapital returns the first capital tier in whole units
func (c *Config) BaseCapital() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Scanner.BaseCapital)
}

// GasPrice returns the fixed gas price in wei, or nil when unset
func (c *Config) GasPrice() (*big.Int, error) {
	return gweiToWei(c.GasPriceGwei)
}

// MaxGasPrice returns the gas price cap in wei, or nil when unset
func (c *Config) MaxGasPrice() (*big.Int, error) {
	return gweiToWei(c.MaxGasPriceGwei)
}

// ExecutorAddress returns the arbitrage executor for the configured chain
func (c *Config) ExecutorAddress() (common.Address, error) {
	return addressFor(c.Execution.ExecutorAddresses, c.Network.ChainID, "execution.executor_addresses")
}

func gweiToWei(gwei string) (*big.Int, error) {
	if gwei == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(gwei)
	if err != nil {
		return nil, err
	}
	if !d.IsPositive() {
		return nil, errors.New("must be positive")
	}
	return d.Shift(9).BigInt(), nil
}

func addressFor(table map[uint64]string, chainID uint64, field string) (common.Address, error) {
	raw, ok := table[chainID]
	if !ok {
		return common.Address{}, &Error{Field: field, Reason: fmt.Sprintf("no address for chain %d", chainID)}
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, &Error{Field: field, Reason: fmt.Sprintf("invalid address %q", raw)}
	}
	return common.HexToAddress(raw), nil
}
