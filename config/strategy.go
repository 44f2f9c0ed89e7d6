package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/michaelpento.lv/flasharb/types"

	"github.com/ethereum/go-ethereum/common"
)

// Error reports an invalid configuration value. It is always fatal.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// VenueID names one of the configured venues
type VenueID string

const (
	VenueRouter1  VenueID = "router1"
	VenueRouter2  VenueID = "router2"
	VenueBalancer VenueID = "balancer"
	VenueCurve    VenueID = "curve"
)

// Strategy is one of the known venue pairings
type Strategy int

const (
	// UniSushi scans two constant-product routers against each other
	UniSushi Strategy = iota + 1
	// UniBal scans a constant-product router against weighted pools
	UniBal
	// CrvLP scans a constant-product router against a stableswap pool
	CrvLP
)

var strategyNames = map[Strategy]string{
	UniSushi: "uni_sushi",
	UniBal:   "uni_bal",
	CrvLP:    "crv_lp",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// Venues returns the venue bought from and the venue sold to
func (s Strategy) Venues() (from, to VenueID) {
	switch s {
	case UniSushi:
		return VenueRouter1, VenueRouter2
	case UniBal:
		return VenueRouter1, VenueBalancer
	case CrvLP:
		return VenueRouter1, VenueCurve
	default:
		return "", ""
	}
}

// ParseStrategy resolves a strategy name. Unknown names are a config error.
func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if n == strings.TrimSpace(name) {
			return s, nil
		}
	}
	return 0, &Error{Field: "strategies", Reason: fmt.Sprintf("unknown strategy %q", name)}
}

// Policy selects which profitable tier of a scan gets executed
type Policy string

const (
	// PolicyFirst executes the earliest profitable tier
	PolicyFirst Policy = "first"
	// PolicyBest executes the most profitable tier
	PolicyBest Policy = "best"
)

// ParsePolicy validates an execution policy name
func ParsePolicy(name string) (Policy, error) {
	switch p := Policy(name); p {
	case PolicyFirst, PolicyBest:
		return p, nil
	default:
		return "", &Error{Field: "execution.policy", Reason: fmt.Sprintf("unknown policy %q", name)}
	}
}

// ParsePair parses a "token1:token2" string
func ParsePair(s string) (types.Pair, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return types.Pair{}, fmt.Errorf("pair %q must be token1:token2", s)
	}
	for _, part := range parts {
		if !common.IsHexAddress(part) {
			return types.Pair{}, fmt.Errorf("pair %q: invalid address %q", s, part)
		}
	}

	pair := types.Pair{
		TokenA: common.HexToAddress(parts[0]),
		TokenB: common.HexToAddress(parts[1]),
	}
	if pair.TokenA == pair.TokenB {
		return types.Pair{}, fmt.Errorf("pair %q: tokens must differ", s)
	}
	return pair, nil
}

// ParsePairs parses a comma separated list of pairs
func ParsePairs(list string) ([]types.Pair, error) {
	var pairs []types.Pair
	for _, s := range splitList(list) {
		pair, err := ParsePair(s)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

func splitList(list string) []string {
	var out []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ResolvedStrategy is a validated strategy ready to be scanned
type ResolvedStrategy struct {
	Strategy      Strategy
	Pairs         []types.Pair
	Bidirectional bool
	// Contract is the on-chain strategy the executor hands the loan to
	Contract common.Address
}

// ResolveStrategies validates every configured strategy against the known set
// and returns them in configuration order.
func (c *Config) ResolveStrategies() ([]ResolvedStrategy, error) {
	var (
		resolved []ResolvedStrategy
		errs     []error
		seen     = make(map[Strategy]bool)
	)

	for i, sc := range c.Strategies {
		field := fmt.Sprintf("strategies[%d]", i)

		s, err := ParseStrategy(sc.Name)
		if err != nil {
			errs = append(errs, &Error{Field: field + ".name", Reason: err.(*Error).Reason})
			continue
		}
		if seen[s] {
			errs = append(errs, &Error{Field: field + ".name", Reason: fmt.Sprintf("duplicate strategy %s", s)})
			continue
		}
		seen[s] = true

		rs := ResolvedStrategy{Strategy: s, Bidirectional: sc.Bidirectional}
		if len(sc.Pairs) == 0 {
			errs = append(errs, &Error{Field: field + ".pairs", Reason: "at least one pair is required"})
		}
		for j, raw := range sc.Pairs {
			pair, err := ParsePair(raw)
			if err != nil {
				errs = append(errs, &Error{Field: fmt.Sprintf("%s.pairs[%d]", field, j), Reason: err.Error()})
				continue
			}
			rs.Pairs = append(rs.Pairs, pair)
		}

		contract, err := addressFor(sc.Contracts, c.Network.ChainID, field+".contracts")
		if err != nil {
			errs = append(errs, err)
		}
		rs.Contract = contract

		from, to := s.Venues()
		for _, id := range []VenueID{from, to} {
			if err := c.validateVenue(id); err != nil {
				errs = append(errs, err)
			}
		}

		resolved = append(resolved, rs)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return resolved, nil
}

func (c *Config) validateVenue(id VenueID) error {
	field := "venues." + string(id)
	switch id {
	case VenueRouter1, VenueRouter2:
		rc := c.Venues.Router1
		if id == VenueRouter2 {
			rc = c.Venues.Router2
		}
		if !common.IsHexAddress(rc.Factory) {
			return &Error{Field: field + ".factory", Reason: fmt.Sprintf("invalid address %q", rc.Factory)}
		}
		if len(common.FromHex(rc.InitCodeHash)) != common.HashLength {
			return &Error{Field: field + ".init_code_hash", Reason: "must be a 32 byte hex string"}
		}
		if rc.FeeBps >= 10000 {
			return &Error{Field: field + ".fee_bps", Reason: "must be below 10000"}
		}
	case VenueBalancer:
		if len(c.Venues.Balancer.Pools) == 0 {
			return &Error{Field: field + ".pools", Reason: "at least one pool is required"}
		}
		for _, p := range c.Venues.Balancer.Pools {
			if !common.IsHexAddress(p) {
				return &Error{Field: field + ".pools", Reason: fmt.Sprintf("invalid address %q", p)}
			}
		}
	case VenueCurve:
		if !common.IsHexAddress(c.Venues.Curve.Pool) {
			return &Error{Field: field + ".pool", Reason: fmt.Sprintf("invalid address %q", c.Venues.Curve.Pool)}
		}
	}
	return nil
}
