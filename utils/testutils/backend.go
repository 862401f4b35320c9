package testutils

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CallHandler answers a read-only contract call with the method's outputs.
type CallHandler func(args []interface{}) ([]interface{}, error)

// TxHandler reacts to a mined transaction and returns its receipt status.
type TxHandler func(from common.Address, args []interface{}) (uint64, error)

// SentCall is a transaction accepted by the Backend, decoded against its contract ABI.
type SentCall struct {
	Tx       *types.Transaction
	From     common.Address
	Contract common.Address
	Method   string
	Args     []interface{}
}

// Backend is an in-memory chain that satisfies bind.ContractBackend and
// bind.DeployBackend. Contracts are modelled by per-method handlers.
type Backend struct {
	mu       sync.Mutex
	abis     map[common.Address]abi.ABI
	calls    map[string]CallHandler
	txs      map[string]TxHandler
	receipts map[common.Hash]*types.Receipt
	nonces   map[common.Address]uint64
	sent     []SentCall

	GasPrice    *big.Int
	GasPriceErr error
	Native      map[common.Address]*big.Int
}

func NewBackend() *Backend {
	return &Backend{
		abis:     make(map[common.Address]abi.ABI),
		calls:    make(map[string]CallHandler),
		txs:      make(map[string]TxHandler),
		receipts: make(map[common.Hash]*types.Receipt),
		nonces:   make(map[common.Address]uint64),
		GasPrice: big.NewInt(3_000_000_000),
		Native:   make(map[common.Address]*big.Int),
	}
}

func handlerKey(addr common.Address, method string) string {
	return addr.Hex() + "." + method
}

// Register declares the ABI of the contract deployed at addr.
func (b *Backend) Register(addr common.Address, contractABI abi.ABI) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.abis[addr] = contractABI
}

// OnCall installs the handler for eth_call of method on addr.
func (b *Backend) OnCall(addr common.Address, method string, h CallHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[handlerKey(addr, method)] = h
}

// OnTx installs the handler run when a transaction calling method on addr is sent.
func (b *Backend) OnTx(addr common.Address, method string, h TxHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txs[handlerKey(addr, method)] = h
}

// Sent returns every transaction accepted so far, in order.
func (b *Backend) Sent() []SentCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]SentCall, len(b.sent))
	copy(out, b.sent)
	return out
}

// SentMethods returns the method names of the accepted transactions.
func (b *Backend) SentMethods() []string {
	var methods []string
	for _, s := range b.Sent() {
		methods = append(methods, s.Method)
	}
	return methods
}

func (b *Backend) decode(to *common.Address, data []byte) (*abi.Method, []interface{}, error) {
	if to == nil {
		return nil, nil, errors.New("contract creation not supported")
	}
	contractABI, ok := b.abis[*to]
	if !ok {
		return nil, nil, fmt.Errorf("no contract at %s", to.Hex())
	}
	if len(data) < 4 {
		return nil, nil, errors.New("calldata too short")
	}
	method, err := contractABI.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, err
	}
	return method, args, nil
}

func (b *Backend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.abis[contract]; ok {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

func (b *Backend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	method, args, err := b.decode(call.To, call.Data)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	h, ok := b.calls[handlerKey(*call.To, method.Name)]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("execution reverted: no handler for %s", method.Name)
	}

	out, err := h(args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}

func (b *Backend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 150000, nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if b.GasPriceErr != nil {
		return nil, b.GasPriceErr
	}
	return new(big.Int).Set(b.GasPrice), nil
}

func (b *Backend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (b *Backend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, nil
}

func (b *Backend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return b.CodeAt(ctx, account, nil)
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	method, args, err := b.decode(tx.To(), tx.Data())
	if err != nil {
		b.mu.Unlock()
		return err
	}
	h := b.txs[handlerKey(*tx.To(), method.Name)]
	b.mu.Unlock()

	status := types.ReceiptStatusSuccessful
	if h != nil {
		if status, err = h(from, args); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nonces[from]++
	b.sent = append(b.sent, SentCall{Tx: tx, From: from, Contract: *tx.To(), Method: method.Name, Args: args})
	b.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		GasUsed:     120000,
		BlockNumber: big.NewInt(int64(len(b.sent))),
	}
	return nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (b *Backend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.Native[account]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(TestChainID), nil
}

func (b *Backend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (b *Backend) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions not supported")
}
