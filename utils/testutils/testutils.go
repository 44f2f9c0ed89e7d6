package testutils

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// ErrReverted mimics the error a node returns for a reverted eth_call
var ErrReverted = errors.New("execution reverted")

// CallHandler answers one contract method. It receives the unpacked inputs and
// returns the values to pack as outputs.
type CallHandler func(args []interface{}) ([]interface{}, error)

type handlerEntry struct {
	method  abi.Method
	handler CallHandler
	calls   atomic.Int64
}

// FakeChain is a scripted chain.Caller. Unknown addresses answer with empty
// data (no code); unknown methods on a known address revert.
type FakeChain struct {
	mu       sync.RWMutex
	handlers map[common.Address]map[[4]byte]*handlerEntry
	total    atomic.Int64
}

// NewFakeChain creates an empty FakeChain
func NewFakeChain() *FakeChain {
	return &FakeChain{
		handlers: make(map[common.Address]map[[4]byte]*handlerEntry),
	}
}

// Handle registers handler for method of contractABI at address
func (f *FakeChain) Handle(address common.Address, contractABI abi.ABI, method string, handler CallHandler) {
	m, ok := contractABI.Methods[method]
	if !ok {
		panic(fmt.Sprintf("method %s not in ABI", method))
	}

	var selector [4]byte
	copy(selector[:], m.ID)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers[address] == nil {
		f.handlers[address] = make(map[[4]byte]*handlerEntry)
	}
	f.handlers[address][selector] = &handlerEntry{method: m, handler: handler}
}

// Returns registers a handler that always answers with values
func (f *FakeChain) Returns(address common.Address, contractABI abi.ABI, method string, values ...interface{}) {
	f.Handle(address, contractABI, method, func([]interface{}) ([]interface{}, error) {
		return values, nil
	})
}

// CallContract implements chain.Caller
func (f *FakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.total.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("malformed call")
	}

	var selector [4]byte
	copy(selector[:], msg.Data[:4])

	f.mu.RLock()
	methods, known := f.handlers[*msg.To]
	entry := methods[selector]
	f.mu.RUnlock()

	if !known {
		return nil, nil
	}
	if entry == nil {
		return nil, ErrReverted
	}
	entry.calls.Add(1)

	args, err := entry.method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("unpack inputs: %w", err)
	}
	out, err := entry.handler(args)
	if err != nil {
		return nil, err
	}
	return entry.method.Outputs.Pack(out...)
}

// Calls returns how many times method was answered at address
func (f *FakeChain) Calls(address common.Address, contractABI abi.ABI, method string) int {
	m := contractABI.Methods[method]
	var selector [4]byte
	copy(selector[:], m.ID)

	f.mu.RLock()
	defer f.mu.RUnlock()
	if entry := f.handlers[address][selector]; entry != nil {
		return int(entry.calls.Load())
	}
	return 0
}

// TotalCalls returns the number of calls received, answered or not
func (f *FakeChain) TotalCalls() int {
	return int(f.total.Load())
}

// Transaction records one call made through FakeTransactor
type Transaction struct {
	Method   string
	Params   []interface{}
	GasPrice *big.Int
}

// FakeTransactor records Transact calls instead of sending them
type FakeTransactor struct {
	mu   sync.Mutex
	Err  error
	sent []Transaction
}

// Transact implements the bound-contract transact method
func (f *FakeTransactor) Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var gasPrice *big.Int
	if opts != nil && opts.GasPrice != nil {
		gasPrice = new(big.Int).Set(opts.GasPrice)
	}
	f.sent = append(f.sent, Transaction{Method: method, Params: params, GasPrice: gasPrice})
	nonce := uint64(len(f.sent) - 1)
	return types.NewTransaction(nonce, common.Address{}, big.NewInt(0), 0, gasPrice, nil), nil
}

// Sent returns a copy of the recorded calls
func (f *FakeTransactor) Sent() []Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Transaction(nil), f.sent...)
}

// Address returns a deterministic address derived from n
func Address(n int64) common.Address {
	return common.BigToAddress(big.NewInt(n))
}

// CreateTestKey creates a fresh signing key
func CreateTestKey(t testing.TB) *ecdsa.PrivateKey {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}
