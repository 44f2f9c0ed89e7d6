package flashloan

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
)

// Transactor submits a contract method call. *bind.BoundContract satisfies it.
type Transactor interface {
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error)
}

// GasPricer supplies the gas price for a submission
type GasPricer interface {
	GasPrice(ctx context.Context) (*big.Int, error)
}
