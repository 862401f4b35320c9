package uniswap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/dexarb/dex"
)

// PairABI is the read-only subset of the pair contract
const PairABI = `[{
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
}]`

var parsedPairABI = mustParse(PairABI)

// V2Pair represents a Uniswap V2 pair contract
type V2Pair struct {
	contract *bind.BoundContract
	address  common.Address
}

var _ dex.Pair = (*V2Pair)(nil)

// NewV2Pair binds the pair deployed at address
func NewV2Pair(address common.Address, caller bind.ContractCaller) *V2Pair {
	return &V2Pair{
		contract: bind.NewBoundContract(address, parsedPairABI, caller, nil, nil),
		address:  address,
	}
}

func (p *V2Pair) Address() common.Address {
	return p.address
}

// GetReserves returns the current reserves of the pair
func (p *V2Pair) GetReserves(ctx context.Context) (*dex.Reserves, error) {
	var out []interface{}
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getReserves"); err != nil {
		return nil, fmt.Errorf("failed to get reserves: %w", err)
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("failed to parse reserves")
	}

	reserve0, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to parse reserve0")
	}
	reserve1, ok := out[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to parse reserve1")
	}
	ts, _ := out[2].(uint32)

	return &dex.Reserves{Reserve0: reserve0, Reserve1: reserve1, BlockTimestampLast: ts}, nil
}

// Token0 returns the address of token0
func (p *V2Pair) Token0(ctx context.Context) (common.Address, error) {
	return p.token(ctx, "token0")
}

// Token1 returns the address of token1
func (p *V2Pair) Token1(ctx context.Context) (common.Address, error) {
	return p.token(ctx, "token1")
}

func (p *V2Pair) token(ctx context.Context, method string) (common.Address, error) {
	var out []interface{}
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, method); err != nil {
		return common.Address{}, fmt.Errorf("failed to get %s: %w", method, err)
	}
	if len(out) == 0 {
		return common.Address{}, fmt.Errorf("failed to parse %s address", method)
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to parse %s address", method)
	}
	return addr, nil
}

// GetAmountOut applies the 0.3% fee constant-product formula to the given reserves.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	if amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return big.NewInt(0)
	}

	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(997))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(new(big.Int).Mul(reserveIn, big.NewInt(1000)), amountInWithFee)

	return new(big.Int).Div(numerator, denominator)
}
