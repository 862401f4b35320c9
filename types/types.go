package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// DefaultDecimals is assumed for catalog entries that do not declare a precision.
const DefaultDecimals int32 = 18

// Token is a catalog entry: a token listed against a quote token on one venue.
type Token struct {
	Symbol       string         `json:"symbol"`
	Address      common.Address `json:"address"`
	Decimals     int32          `json:"decimals"`
	Quote        string         `json:"quote,omitempty"`
	QuoteAddress common.Address `json:"quoteAddress,omitempty"`
	PairAddress  common.Address `json:"pairAddress,omitempty"`
	DexID        string         `json:"dexId,omitempty"`
}

func (t Token) String() string {
	return t.Symbol
}

// Venue maps a venue identifier to its swap router contract.
type Venue struct {
	ID     string         `json:"id" yaml:"id"`
	Router common.Address `json:"router" yaml:"-"`
}

// Opportunity is the result of checking one (token, buy venue, sell venue) triple.
type Opportunity struct {
	Token     Token
	BuyVenue  string
	SellVenue string

	// Amounts in the smallest unit of their token
	AmountIn *big.Int
	BuyOut   *big.Int
	SellOut  *big.Int

	// Values in base-token units
	Gross   decimal.Decimal
	GasCost decimal.Decimal
	Net     decimal.Decimal
}

// Route renders the round trip as BASE->TOKEN->BASE.
func (o *Opportunity) Route(base string) string {
	return fmt.Sprintf("%s->%s->%s", base, o.Token.Symbol, base)
}

// ExecutionStatus describes how far an opportunity got on chain.
type ExecutionStatus string

const (
	StatusExecuted       ExecutionStatus = "executed"
	StatusApprovalFailed ExecutionStatus = "approval_failed"
	StatusBuyFailed      ExecutionStatus = "buy_failed"
	StatusSellFailed     ExecutionStatus = "sell_failed"
)

// ExecutionResult reports the outcome of executing both legs of an opportunity.
type ExecutionResult struct {
	Opportunity *Opportunity
	Status      ExecutionStatus
	BuyTx       common.Hash
	SellTx      common.Hash
	// SoldAmount is the token amount actually offered on the sell leg.
	SoldAmount *big.Int
	Err        error
}

// Exposed reports whether the account was left holding the bought token.
func (r *ExecutionResult) Exposed() bool {
	return r.Status == StatusSellFailed
}
