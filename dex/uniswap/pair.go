package uniswap

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/dex"

	"github.com/ethereum/go-ethereum/common"
)

// PairABI holds the pair contract methods read by the venue
var PairABI = chain.MustParseABI(`[{
	"constant": true,
	"inputs": [],
	"name": "getReserves",
	"outputs": [
		{"name": "reserve0", "type": "uint112"},
		{"name": "reserve1", "type": "uint112"},
		{"name": "blockTimestampLast", "type": "uint32"}
	],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token0",
	"outputs": [{"name": "", "type": "address"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token1",
	"outputs": [{"name": "", "type": "address"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`)

// Pair represents a Uniswap V2 style pair contract
type Pair struct {
	contract *chain.Contract
}

// NewPair binds the pair at address
func NewPair(address common.Address, caller chain.Caller) *Pair {
	return &Pair{contract: chain.NewContract(address, PairABI, caller)}
}

// Address returns the pair contract address
func (p *Pair) Address() common.Address {
	return p.contract.Address()
}

// Reserves returns the current reserves of the pair, ordered by token0/token1.
// A pair that was never created has no code, which surfaces as ErrPairNotFound.
func (p *Pair) Reserves(ctx context.Context) (reserve0, reserve1 *big.Int, err error) {
	out, err := p.contract.Call(ctx, "getReserves")
	if err != nil {
		if errors.Is(err, chain.ErrEmptyResult) {
			return nil, nil, fmt.Errorf("pair %s: %w", p.Address().Hex(), dex.ErrPairNotFound)
		}
		return nil, nil, fmt.Errorf("failed to get reserves: %w", err)
	}

	reserve0, ok := out[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("failed to parse reserve0")
	}
	reserve1, ok = out[1].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("failed to parse reserve1")
	}

	return reserve0, reserve1, nil
}
