package quote

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/types"
)

// Routers resolves a venue id to its router.
type Routers interface {
	Router(id string) (dex.Router, error)
}

// Source prices direct swaps on venue routers. Every failure is reported as
// types.ErrQuoteUnavailable; there are no retries.
type Source struct {
	routers Routers
}

func NewSource(routers Routers) *Source {
	return &Source{routers: routers}
}

// Quote returns the amount of tokenOut received for amountIn of tokenIn on venue.
func (s *Source) Quote(ctx context.Context, venue string, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive input on %s", types.ErrQuoteUnavailable, venue)
	}
	router, err := s.routers.Router(venue)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrQuoteUnavailable, err)
	}

	amounts, err := router.GetAmountsOut(ctx, amountIn, []common.Address{tokenIn, tokenOut})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrQuoteUnavailable, err)
	}
	if len(amounts) < 2 {
		return nil, fmt.Errorf("%w: malformed result from %s", types.ErrQuoteUnavailable, venue)
	}

	out := amounts[len(amounts)-1]
	if out == nil || out.Sign() <= 0 {
		return nil, fmt.Errorf("%w: zero output on %s", types.ErrQuoteUnavailable, venue)
	}
	return out, nil
}
