package types

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
)

// Direction selects which side of a trade is fixed when quoting
type Direction int

const (
	// ExactInput fixes the input amount and asks for the output
	ExactInput Direction = iota
	// ExactOutput fixes the output amount and asks for the required input
	ExactOutput
)

// Valid reports whether d is one of the two recognized trade types
func (d Direction) Valid() bool {
	return d == ExactInput || d == ExactOutput
}

func (d Direction) String() string {
	switch d {
	case ExactInput:
		return "exact_input"
	case ExactOutput:
		return "exact_output"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Token is an ERC-20 token with its on-chain decimal precision
type Token struct {
	Address  common.Address
	Decimals uint8
}

// Pair is an ordered token pair. Quoting direction follows the order.
type Pair struct {
	TokenA common.Address
	TokenB common.Address
}

func (p Pair) String() string {
	return p.TokenA.Hex() + ":" + p.TokenB.Hex()
}

// Opportunity is the result of evaluating one capital tier on one venue ordering
type Opportunity struct {
	Strategy    string
	Pair        Pair
	Tier        int
	BlockNumber uint64

	// InputAmount of TokenA needed on VenueFrom to buy OutputTarget of TokenB
	InputAmount *big.Int
	// OutputTarget of TokenB bought on VenueFrom and sold on VenueTo
	OutputTarget *big.Int
	// OutputReceived of TokenA from selling OutputTarget on VenueTo
	OutputReceived *big.Int
	Profit         *big.Int

	VenueFrom string
	VenueTo   string
}

// Fingerprint returns a stable 64-bit identifier for log correlation
func (o *Opportunity) Fingerprint() uint64 {
	d := xxhash.New()
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], o.BlockNumber)
	_, _ = d.Write(num[:])
	binary.BigEndian.PutUint64(num[:], uint64(o.Tier))
	_, _ = d.Write(num[:])
	_, _ = d.WriteString(o.Strategy)
	_, _ = d.Write(o.Pair.TokenA.Bytes())
	_, _ = d.Write(o.Pair.TokenB.Bytes())
	_, _ = d.WriteString(o.VenueFrom)
	_, _ = d.WriteString(o.VenueTo)
	for _, amount := range []*big.Int{o.InputAmount, o.OutputTarget, o.OutputReceived} {
		if amount != nil {
			_, _ = d.Write(amount.Bytes())
		}
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}
