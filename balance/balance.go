// Package balance reads fresh account balances. Nothing is cached: every call
// goes to the chain, so the value reflects the latest executed trade.
package balance

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/units"
)

// nativeDecimals is the precision of the chain's native coin.
const nativeDecimals = 18

// TokenReader is the read side of an ERC20 client.
type TokenReader interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// NativeReader reads native coin balances.
type NativeReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Balance is a balance in both its raw and human form.
type Balance struct {
	Raw    *big.Int
	Amount decimal.Decimal
}

func (b Balance) IsZero() bool {
	return b.Raw == nil || b.Raw.Sign() == 0
}

// Holding is a non-zero balance of a catalog token.
type Holding struct {
	Token types.Token
	Balance
}

// Reader reads balances of a single account.
type Reader struct {
	owner  common.Address
	tokens TokenReader
	native NativeReader
	logger *zap.Logger
}

func NewReader(owner common.Address, tokens TokenReader, native NativeReader, logger *zap.Logger) *Reader {
	return &Reader{owner: owner, tokens: tokens, native: native, logger: logger}
}

// Read returns the account's balance of token.
func (r *Reader) Read(ctx context.Context, token types.Token) (Balance, error) {
	raw, err := r.tokens.BalanceOf(ctx, token.Address, r.owner)
	if err != nil {
		return Balance{}, fmt.Errorf("failed to read %s balance: %w", token.Symbol, err)
	}
	return Balance{Raw: raw, Amount: units.ToDecimal(raw, decimalsOf(token))}, nil
}

// Native returns the account's native coin balance.
func (r *Reader) Native(ctx context.Context) (Balance, error) {
	raw, err := r.native.BalanceAt(ctx, r.owner, nil)
	if err != nil {
		return Balance{}, fmt.Errorf("failed to read native balance: %w", err)
	}
	return Balance{Raw: raw, Amount: units.ToDecimal(raw, nativeDecimals)}, nil
}

// Holdings returns the non-zero balances among tokens, deduplicated by address.
// A token whose balance cannot be read is logged and skipped.
func (r *Reader) Holdings(ctx context.Context, tokens []types.Token) []Holding {
	seen := make(map[common.Address]bool, len(tokens))
	var holdings []Holding
	for _, t := range tokens {
		if seen[t.Address] {
			continue
		}
		seen[t.Address] = true

		bal, err := r.Read(ctx, t)
		if err != nil {
			r.logger.Debug("Skipping unreadable balance", zap.String("token", t.Symbol), zap.Error(err))
			continue
		}
		if !bal.IsZero() {
			holdings = append(holdings, Holding{Token: t, Balance: bal})
		}
	}
	return holdings
}

func decimalsOf(t types.Token) int32 {
	if t.Decimals <= 0 {
		return types.DefaultDecimals
	}
	return t.Decimals
}
