// Package units converts between fixed-point token amounts and decimal values.
package units

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	gweiExp int32 = 9
	one           = decimal.NewFromInt(1)
)

// ToDecimal scales a smallest-unit amount down by 10^decimals.
func ToDecimal(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}

// FromDecimal scales a decimal value up by 10^decimals, truncating any remainder.
func FromDecimal(value decimal.Decimal, decimals int32) *big.Int {
	return value.Shift(decimals).Truncate(0).BigInt()
}

// GweiToWei converts a gwei value such as "5" or "0.1" to wei.
func GweiToWei(gwei decimal.Decimal) *big.Int {
	return FromDecimal(gwei, gweiExp)
}

// WeiToGwei is the inverse of GweiToWei.
func WeiToGwei(wei *big.Int) decimal.Decimal {
	return ToDecimal(wei, gweiExp)
}

// MinOutput returns floor(quoted * (1 - slippage)).
func MinOutput(quoted *big.Int, slippage decimal.Decimal) *big.Int {
	if quoted == nil || quoted.Sign() <= 0 {
		return new(big.Int)
	}
	keep := one.Sub(slippage)
	if keep.IsNegative() {
		return new(big.Int)
	}
	return decimal.NewFromBigInt(quoted, 0).Mul(keep).Floor().BigInt()
}

// Float returns a float64 approximation, for metrics only.
func Float(value decimal.Decimal) float64 {
	f, _ := value.Float64()
	return f
}
