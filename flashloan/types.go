package flashloan

import (
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/flasharb/types"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ABI types
var (
	abiUint256, _ = abi.NewType("uint256", "", nil)
	abiAddress, _ = abi.NewType("address", "", nil)
)

// paramsArguments is the tuple the on-chain strategy decodes:
// (inputAmount, tokenA, tokenB, outputTarget, outputReceived)
var paramsArguments = abi.Arguments{
	{Type: abiUint256},
	{Type: abiAddress},
	{Type: abiAddress},
	{Type: abiUint256},
	{Type: abiUint256},
}

// Params are the trade parameters handed to the strategy contract
type Params struct {
	InputAmount    *big.Int
	TokenA         common.Address
	TokenB         common.Address
	OutputTarget   *big.Int
	OutputReceived *big.Int
}

// ParamsFor extracts the executor parameters of an opportunity
func ParamsFor(opp *types.Opportunity) Params {
	return Params{
		InputAmount:    opp.InputAmount,
		TokenA:         opp.Pair.TokenA,
		TokenB:         opp.Pair.TokenB,
		OutputTarget:   opp.OutputTarget,
		OutputReceived: opp.OutputReceived,
	}
}

// Encode ABI-encodes the parameters in their fixed order
func (p Params) Encode() ([]byte, error) {
	packed, err := paramsArguments.Pack(p.InputAmount, p.TokenA, p.TokenB, p.OutputTarget, p.OutputReceived)
	if err != nil {
		return nil, fmt.Errorf("failed to pack parameters: %w", err)
	}
	return packed, nil
}

// DecodeParams reverses Encode
func DecodeParams(data []byte) (Params, error) {
	values, err := paramsArguments.Unpack(data)
	if err != nil {
		return Params{}, fmt.Errorf("failed to unpack parameters: %w", err)
	}
	return Params{
		InputAmount:    values[0].(*big.Int),
		TokenA:         values[1].(common.Address),
		TokenB:         values[2].(common.Address),
		OutputTarget:   values[3].(*big.Int),
		OutputReceived: values[4].(*big.Int),
	}, nil
}
