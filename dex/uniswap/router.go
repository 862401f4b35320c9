package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/michaelpento.lv/dexarb/dex"
	arbtypes "github.com/michaelpento.lv/dexarb/types"
)

// RouterABI covers the two router methods the bot uses.
const RouterABI = `[{
	"inputs": [
		{"name": "amountIn", "type": "uint256"},
		{"name": "path", "type": "address[]"}
	],
	"name": "getAmountsOut",
	"outputs": [{"name": "amounts", "type": "uint256[]"}],
	"stateMutability": "view",
	"type": "function"
}, {
	"inputs": [
		{"name": "amountIn", "type": "uint256"},
		{"name": "amountOutMin", "type": "uint256"},
		{"name": "path", "type": "address[]"},
		{"name": "to", "type": "address"},
		{"name": "deadline", "type": "uint256"}
	],
	"name": "swapExactTokensForTokens",
	"outputs": [{"name": "amounts", "type": "uint256[]"}],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

var parsedRouterABI = mustParse(RouterABI)

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}

// V2Router binds a Uniswap V2 compatible router (PancakeSwap and forks).
type V2Router struct {
	name     string
	address  common.Address
	contract *bind.BoundContract
}

var _ dex.Router = (*V2Router)(nil)

// NewV2Router binds the router deployed at address for venue name.
func NewV2Router(name string, address common.Address, backend bind.ContractBackend) *V2Router {
	return &V2Router{
		name:     name,
		address:  address,
		contract: bind.NewBoundContract(address, parsedRouterABI, backend, backend, backend),
	}
}

// NewRegistry binds one router per configured venue.
func NewRegistry(venues []arbtypes.Venue, backend bind.ContractBackend) *dex.Registry {
	registry := dex.NewRegistry()
	for _, v := range venues {
		registry.Add(NewV2Router(v.ID, v.Router, backend))
	}
	return registry
}

func (r *V2Router) Name() string {
	return r.name
}

func (r *V2Router) Address() common.Address {
	return r.address
}

// GetAmountsOut calls getAmountsOut on the router
func (r *V2Router) GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("invalid path length")
	}

	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAmountsOut", amountIn, path); err != nil {
		return nil, fmt.Errorf("getAmountsOut on %s: %w", r.name, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("getAmountsOut on %s: empty result", r.name)
	}

	amounts, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getAmountsOut on %s: unexpected result type %T", r.name, out[0])
	}
	if len(amounts) != len(path) {
		return nil, fmt.Errorf("getAmountsOut on %s: got %d amounts for %d hops", r.name, len(amounts), len(path))
	}
	return amounts, nil
}

// SwapExactTokensForTokens sends a swapExactTokensForTokens transaction
func (r *V2Router) SwapExactTokensForTokens(opts *bind.TransactOpts, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*types.Transaction, error) {
	tx, err := r.contract.Transact(opts, "swapExactTokensForTokens", amountIn, amountOutMin, path, to, deadline)
	if err != nil {
		return nil, fmt.Errorf("swap on %s: %w", r.name, err)
	}
	return tx, nil
}

// PackSwap encodes swapExactTokensForTokens calldata
func (r *V2Router) PackSwap(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return parsedRouterABI.Pack("swapExactTokensForTokens", amountIn, amountOutMin, path, to, deadline)
}
