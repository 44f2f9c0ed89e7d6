package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contract binds an ABI to an address for read-only calls
type Contract struct {
	address common.Address
	abi     abi.ABI
	caller  Caller
}

// NewContract creates a new read-only contract binding
func NewContract(address common.Address, contractABI abi.ABI, caller Caller) *Contract {
	return &Contract{
		address: address,
		abi:     contractABI,
		caller:  caller,
	}
}

// Address returns the bound contract address
func (c *Contract) Address() common.Address {
	return c.address
}

// Call packs method with args, performs eth_call at the block pinned in ctx and
// unpacks the outputs. Transport failures and reverts come back as *RPCError;
// use IsRevert to tell them apart. An empty result is ErrEmptyResult.
func (c *Contract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	to := c.address
	result, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, BlockFrom(ctx))
	if err != nil {
		return nil, &RPCError{Op: method, Err: err}
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%s on %s: %w", method, c.address.Hex(), ErrEmptyResult)
	}

	out, err := c.abi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}
