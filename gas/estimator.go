package gas

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/dexarb/price"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
	"github.com/michaelpento.lv/dexarb/utils/units"
)

// nativeDecimals is the precision of the chain's native coin.
const nativeDecimals = 18

// GasPricer suggests a legacy gas price.
type GasPricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// NativePricer quotes the native coin in base-token terms.
type NativePricer interface {
	NativePriceUSD(ctx context.Context) (decimal.Decimal, error)
}

type Config struct {
	MaxGasPrice    *big.Int
	SwapGasUnits   uint64
	Fallback       decimal.Decimal
	// NativeFallback is used when the provider answers but lists no native
	// pair. Zero disables it and the whole estimate falls back instead.
	NativeFallback decimal.Decimal
}

// Estimator caps gas prices and converts swap gas into base-token value
type Estimator struct {
	client  GasPricer
	prices  NativePricer
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.GasMetrics

	mu          sync.RWMutex
	lastPrice  *big.Int
	lastNative decimal.Decimal
}

// NewEstimator creates a new gas estimator
func NewEstimator(client GasPricer, prices NativePricer, cfg Config, logger *zap.Logger, m *metrics.GasMetrics) *Estimator {
	return &Estimator{
		client:  client,
		prices:  prices,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

// GasPrice returns the node's suggested gas price, capped at the configured maximum.
func (e *Estimator) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	if e.cfg.MaxGasPrice != nil && price.Cmp(e.cfg.MaxGasPrice) > 0 {
		price = new(big.Int).Set(e.cfg.MaxGasPrice)
	}

	e.mu.Lock()
	e.lastPrice = price
	e.mu.Unlock()
	e.metrics.GasPriceGwei.Set(units.Float(units.WeiToGwei(price)))

	return price, nil
}

// CostInBase estimates what one swap costs in base-token units. On any failure
// it returns the configured fallback together with an error wrapping
// types.ErrEstimationDegraded; the value is always usable.
func (e *Estimator) CostInBase(ctx context.Context) (decimal.Decimal, error) {
	cost, err := e.costInBase(ctx)
	if err != nil {
		e.metrics.Degraded.Inc()
		e.metrics.CostInBase.Set(units.Float(e.cfg.Fallback))
		return e.cfg.Fallback, fmt.Errorf("%w: %v", types.ErrEstimationDegraded, err)
	}
	e.metrics.CostInBase.Set(units.Float(cost))
	return cost, nil
}

func (e *Estimator) costInBase(ctx context.Context) (decimal.Decimal, error) {
	gasPrice, err := e.GasPrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	native, err := e.nativePrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	e.mu.Lock()
	e.lastNative = native
	e.mu.Unlock()
	e.metrics.NativePriceUSD.Set(units.Float(native))

	wei := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(e.cfg.SwapGasUnits))
	cost := units.ToDecimal(wei, nativeDecimals).Mul(native)

	e.logger.Debug("Estimated swap gas cost",
		zap.String("gasPriceGwei", units.WeiToGwei(gasPrice).String()),
		zap.String("nativePrice", native.String()),
		zap.String("cost", cost.String()))
	return cost, nil
}

// Last returns the most recently observed gas price and native price.
func (e *Estimator) Last() (*big.Int, decimal.Decimal) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastPrice, e.lastNative
}

func (e *Estimator) nativePrice(ctx context.Context) (decimal.Decimal, error) {
	native, err := e.prices.NativePriceUSD(ctx)
	if err == nil {
		return native, nil
	}
	if errors.Is(err, price.ErrNoPair) && e.cfg.NativeFallback.IsPositive() {
		e.logger.Warn("No native price pair listed, using fallback",
			zap.String("fallback", e.cfg.NativeFallback.String()))
		return e.cfg.NativeFallback, nil
	}
	return decimal.Zero, fmt.Errorf("failed to get native price: %w", err)
}
