package catalog

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/dex/uniswap"
	"github.com/michaelpento.lv/dexarb/types"
)

// PairBinder returns the pair contract at addr.
type PairBinder func(addr common.Address) dex.Pair

// DecimalsReader reads a token's on-chain precision.
type DecimalsReader interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// Verification is the on-chain check of one listing's pair contract.
type Verification struct {
	Token    types.Token
	Reserves *dex.Reserves
	// TokenIsToken0 tells which reserve belongs to the listed token.
	TokenIsToken0 bool
	// ImpliedQuote is what selling one whole listed token into the pair
	// returns, in raw quote units.
	ImpliedQuote *big.Int
	Err          error
}

func (v Verification) OK() bool {
	return v.Err == nil
}

// Oriented returns the reserves as (listed token, quote token).
func (v Verification) Oriented() (token, quote *big.Int) {
	if v.Reserves == nil {
		return nil, nil
	}
	if v.TokenIsToken0 {
		return v.Reserves.Reserve0, v.Reserves.Reserve1
	}
	return v.Reserves.Reserve1, v.Reserves.Reserve0
}

// Verify checks that every listing's pair holds exactly the listed token and
// its quote, and that it has liquidity. With a non-nil decimals reader the
// catalog precision must also match the token contract. Listings are checked
// in order.
func Verify(ctx context.Context, tokens []types.Token, bindPair PairBinder, decimals DecimalsReader) []Verification {
	results := make([]Verification, 0, len(tokens))
	for _, t := range tokens {
		results = append(results, verifyOne(ctx, t, bindPair, decimals))
	}
	return results
}

func verifyOne(ctx context.Context, t types.Token, bindPair PairBinder, decimals DecimalsReader) Verification {
	v := Verification{Token: t}
	if t.PairAddress == (common.Address{}) {
		v.Err = fmt.Errorf("no pair address")
		return v
	}
	pair := bindPair(t.PairAddress)

	token0, err := pair.Token0(ctx)
	if err != nil {
		v.Err = err
		return v
	}
	token1, err := pair.Token1(ctx)
	if err != nil {
		v.Err = err
		return v
	}

	switch {
	case token0 == t.Address && (t.QuoteAddress == (common.Address{}) || token1 == t.QuoteAddress):
		v.TokenIsToken0 = true
	case token1 == t.Address && (t.QuoteAddress == (common.Address{}) || token0 == t.QuoteAddress):
	default:
		v.Err = fmt.Errorf("pair holds %s/%s, not %s/%s", token0.Hex(), token1.Hex(), t.Address.Hex(), t.QuoteAddress.Hex())
		return v
	}

	if decimals != nil {
		d, err := decimals.Decimals(ctx, t.Address)
		if err != nil {
			v.Err = err
			return v
		}
		if int32(d) != t.Decimals {
			v.Err = fmt.Errorf("catalog declares %d decimals, token has %d", t.Decimals, d)
			v.Token.Decimals = int32(d)
			return v
		}
	}

	reserves, err := pair.GetReserves(ctx)
	if err != nil {
		v.Err = err
		return v
	}
	v.Reserves = reserves
	if reserves.Reserve0.Sign() == 0 || reserves.Reserve1.Sign() == 0 {
		v.Err = fmt.Errorf("pair has no liquidity")
		return v
	}

	token, quote := v.Oriented()
	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(v.Token.Decimals)), nil)
	v.ImpliedQuote = uniswap.GetAmountOut(one, token, quote)
	return v
}
