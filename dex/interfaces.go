package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Router is a Uniswap V2 style router deployed on one venue
type Router interface {
	// Name returns the venue id the router serves
	Name() string

	// Address returns the router contract address
	Address() common.Address

	// GetAmountsOut quotes amountIn along path; the last element is the output
	GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)

	// SwapExactTokensForTokens sends the swap transaction
	SwapExactTokensForTokens(opts *bind.TransactOpts, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*types.Transaction, error)

	// PackSwap encodes the swap calldata without sending it
	PackSwap(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error)
}

// Pair is a constant-product pool contract
type Pair interface {
	Address() common.Address
	Token0(ctx context.Context) (common.Address, error)
	Token1(ctx context.Context) (common.Address, error)
	GetReserves(ctx context.Context) (*Reserves, error)
}

// Reserves represents token pair reserves
type Reserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}
