// Package erc20 reads and approves ERC20 tokens through cached contract bindings.
package erc20

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru"
)

const ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

// MaxApproval is the allowance granted to routers.
var MaxApproval = new(big.Int).Set(math.MaxBig256)

const cacheSize = 256

// Client binds token contracts on demand and keeps the most recent ones.
type Client struct {
	backend  bind.ContractBackend
	abi      abi.ABI
	bindings *lru.Cache
}

func NewClient(backend bind.ContractBackend) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 ABI: %w", err)
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Client{backend: backend, abi: parsed, bindings: cache}, nil
}

func (c *Client) contract(token common.Address) *bind.BoundContract {
	if v, ok := c.bindings.Get(token); ok {
		return v.(*bind.BoundContract)
	}
	bound := bind.NewBoundContract(token, c.abi, c.backend, c.backend, c.backend)
	c.bindings.Add(token, bound)
	return bound
}

func (c *Client) callUint(ctx context.Context, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	var out []interface{}
	if err := c.contract(token).Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s on %s: %w", method, token.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s on %s: empty result", method, token.Hex())
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s on %s: unexpected result type %T", method, token.Hex(), out[0])
	}
	return v, nil
}

// BalanceOf returns the raw token balance of owner.
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return c.callUint(ctx, token, "balanceOf", owner)
}

// Allowance returns how much spender may move on behalf of owner.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return c.callUint(ctx, token, "allowance", owner, spender)
}

// Approve sends approve(spender, amount). The caller waits for the receipt.
func (c *Client) Approve(opts *bind.TransactOpts, token, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	tx, err := c.contract(token).Transact(opts, "approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("approve on %s: %w", token.Hex(), err)
	}
	return tx, nil
}

// Decimals reads the token's decimals.
func (c *Client) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	var out []interface{}
	if err := c.contract(token).Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return 0, fmt.Errorf("decimals on %s: %w", token.Hex(), err)
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("decimals on %s: empty result", token.Hex())
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals on %s: unexpected result type %T", token.Hex(), out[0])
	}
	return d, nil
}

