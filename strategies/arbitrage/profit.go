package arbitrage

import "github.com/shopspring/decimal"

// NetProfit is gross profit minus gas cost, exactly.
func NetProfit(gross, gasCost decimal.Decimal) decimal.Decimal {
	return gross.Sub(gasCost)
}

// ShouldExecute reports whether net strictly exceeds threshold.
func ShouldExecute(net, threshold decimal.Decimal) bool {
	return net.GreaterThan(threshold)
}
