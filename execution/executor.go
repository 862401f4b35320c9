// Package execution submits the two legs of an arbitrage as independent
// swaps. Legs are not atomic: a failed sell leaves the bought token in the
// account and is reported, never retried.
package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/erc20"
	"github.com/michaelpento.lv/dexarb/simulator"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
	"github.com/michaelpento.lv/dexarb/utils/units"
)

// TokenClient is the ERC20 surface used for allowances and balances.
type TokenClient interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(opts *bind.TransactOpts, token, spender common.Address, amount *big.Int) (*ethtypes.Transaction, error)
}

// GasPricer returns the capped gas price.
type GasPricer interface {
	GasPrice(ctx context.Context) (*big.Int, error)
}

// Signer is the trading account.
type Signer interface {
	Address() common.Address
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

// Routers resolves venue ids.
type Routers interface {
	Router(id string) (dex.Router, error)
}

// Simulator dry-runs calldata before it is signed.
type Simulator interface {
	SimulateCall(ctx context.Context, call simulator.Call) (*simulator.SimulationResult, error)
}

// Auditor receives history lines.
type Auditor interface {
	Printf(format string, args ...interface{})
}

// Leg names one side of the round trip.
type Leg string

const (
	LegBuy  Leg = "buy"
	LegSell Leg = "sell"
)

func (l Leg) label() string {
	if l == LegSell {
		return "Sell"
	}
	return "Buy"
}

// SwapRequest is a single swapExactTokensForTokens call.
type SwapRequest struct {
	Leg      Leg
	Venue    string
	TokenIn  types.Token
	TokenOut types.Token
	AmountIn *big.Int
	MinOut   *big.Int
	Deadline time.Duration
}

type Config struct {
	BaseToken      types.Token
	Slippage       decimal.Decimal
	Deadline       time.Duration
	GasLimit       uint64
	ConfirmTimeout time.Duration
}

type Executor struct {
	cfg       Config
	tokens    TokenClient
	gas       GasPricer
	signer    Signer
	routers   Routers
	waiter    ReceiptWaiter
	simulator Simulator // optional
	audit     Auditor
	logger    *zap.Logger
	metrics   *metrics.ExecutionMetrics
	now       func() time.Time
}

type Option func(*Executor)

// WithSimulator enables the pre-flight eth_call of every swap.
func WithSimulator(s Simulator) Option {
	return func(e *Executor) { e.simulator = s }
}

// WithClock overrides the clock used for swap deadlines.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func NewExecutor(cfg Config, tokens TokenClient, gas GasPricer, signer Signer, routers Routers,
	waiter ReceiptWaiter, audit Auditor, logger *zap.Logger, m *metrics.ExecutionMetrics, opts ...Option) *Executor {
	e := &Executor{
		cfg:     cfg,
		tokens:  tokens,
		gas:     gas,
		signer:  signer,
		routers: routers,
		waiter:  waiter,
		audit:   audit,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the buy leg and, only if it confirmed, sells the whole
// resulting token balance.
func (e *Executor) Execute(ctx context.Context, opp *types.Opportunity) *types.ExecutionResult {
	result := &types.ExecutionResult{Opportunity: opp}
	base := e.cfg.BaseToken

	buyTx, err := e.Swap(ctx, SwapRequest{
		Leg:      LegBuy,
		Venue:    opp.BuyVenue,
		TokenIn:  base,
		TokenOut: opp.Token,
		AmountIn: opp.AmountIn,
		MinOut:   units.MinOutput(opp.BuyOut, e.cfg.Slippage),
		Deadline: e.cfg.Deadline,
	})
	result.BuyTx = buyTx
	if err != nil {
		result.Status = types.StatusBuyFailed
		if errors.Is(err, types.ErrApprovalFailed) {
			result.Status = types.StatusApprovalFailed
		}
		result.Err = err
		e.audit.Printf("Buy swap failed: %v", err)
		return result
	}

	// sell what actually arrived, not what was quoted
	held, err := e.tokens.BalanceOf(ctx, opp.Token.Address, e.signer.Address())
	if err == nil && held.Sign() == 0 {
		err = errors.New("no tokens received")
	}
	if err != nil {
		return e.sellFailed(result, fmt.Errorf("%w: read %s balance: %v", types.ErrSwapFailed, opp.Token.Symbol, err))
	}
	result.SoldAmount = held

	sellTx, err := e.Swap(ctx, SwapRequest{
		Leg:      LegSell,
		Venue:    opp.SellVenue,
		TokenIn:  opp.Token,
		TokenOut: base,
		AmountIn: held,
		MinOut:   units.MinOutput(opp.SellOut, e.cfg.Slippage),
		Deadline: e.cfg.Deadline,
	})
	result.SellTx = sellTx
	if err != nil {
		return e.sellFailed(result, err)
	}

	result.Status = types.StatusExecuted
	return result
}

func (e *Executor) sellFailed(result *types.ExecutionResult, err error) *types.ExecutionResult {
	result.Status = types.StatusSellFailed
	result.Err = err
	e.metrics.Exposures.Inc()
	e.audit.Printf("Sell swap failed: %v", err)
	e.logger.Warn("Sell leg failed, position left open",
		zap.String("token", result.Opportunity.Token.Symbol),
		zap.String("venue", result.Opportunity.SellVenue),
		zap.Error(err))
	return result
}

// Swap makes sure the router may spend AmountIn, then sends the swap and
// waits for it. The returned hash is zero if nothing was sent.
func (e *Executor) Swap(ctx context.Context, req SwapRequest) (common.Hash, error) {
	router, err := e.routers.Router(req.Venue)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", types.ErrSwapFailed, err)
	}

	if err := e.checkAmount(req); err != nil {
		return common.Hash{}, err
	}
	if err := e.ensureAllowance(ctx, req.TokenIn, router, req.AmountIn); err != nil {
		return common.Hash{}, err
	}

	gasPrice, err := e.gas.GasPrice(ctx)
	if err != nil {
		return common.Hash{}, e.swapFailed(req, err)
	}

	to := e.signer.Address()
	path := []common.Address{req.TokenIn.Address, req.TokenOut.Address}
	deadline := big.NewInt(e.now().Add(req.Deadline).Unix())

	if e.simulator != nil {
		if err := e.preflight(ctx, router, req, path, to, deadline, gasPrice); err != nil {
			return common.Hash{}, e.swapFailed(req, err)
		}
	}

	opts, err := e.signer.TransactOpts(ctx)
	if err != nil {
		return common.Hash{}, e.swapFailed(req, err)
	}
	opts.GasPrice = gasPrice
	opts.GasLimit = e.cfg.GasLimit

	tx, err := router.SwapExactTokensForTokens(opts, req.AmountIn, req.MinOut, path, to, deadline)
	if err != nil {
		return common.Hash{}, e.swapFailed(req, err)
	}
	e.audit.Printf("%s swap sent: %s", req.Leg.label(), tx.Hash().Hex())

	if err := e.wait(ctx, tx); err != nil {
		return tx.Hash(), e.swapFailed(req, err)
	}

	e.metrics.Swaps.WithLabelValues(string(req.Leg), "success").Inc()
	e.audit.Printf("%s swap confirmed.", req.Leg.label())
	return tx.Hash(), nil
}

func (e *Executor) checkAmount(req SwapRequest) error {
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return e.swapFailed(req, errors.New("non-positive input amount"))
	}
	if req.MinOut == nil {
		return e.swapFailed(req, errors.New("missing minimum output"))
	}
	return nil
}

func (e *Executor) swapFailed(req SwapRequest, err error) error {
	e.metrics.Swaps.WithLabelValues(string(req.Leg), "failed").Inc()
	if errors.Is(err, types.ErrSwapFailed) {
		return err
	}
	return fmt.Errorf("%w: %s on %s: %v", types.ErrSwapFailed, req.Leg, req.Venue, err)
}

func (e *Executor) preflight(ctx context.Context, router dex.Router, req SwapRequest, path []common.Address,
	to common.Address, deadline, gasPrice *big.Int) error {
	data, err := router.PackSwap(req.AmountIn, req.MinOut, path, to, deadline)
	if err != nil {
		return err
	}
	res, err := e.simulator.SimulateCall(ctx, simulator.Call{
		From:     to,
		To:       router.Address(),
		Gas:      e.cfg.GasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("simulation reverted: %v", res.Error)
	}
	return nil
}

// ensureAllowance approves the router for the maximum amount when the current
// allowance cannot cover amount.
func (e *Executor) ensureAllowance(ctx context.Context, token types.Token, router dex.Router, amount *big.Int) error {
	allowance, err := e.tokens.Allowance(ctx, token.Address, e.signer.Address(), router.Address())
	if err != nil {
		return e.approvalFailed(token, router, err)
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}
	return e.approve(ctx, token, router)
}

func (e *Executor) approve(ctx context.Context, token types.Token, router dex.Router) error {
	gasPrice, err := e.gas.GasPrice(ctx)
	if err != nil {
		return e.approvalFailed(token, router, err)
	}
	opts, err := e.signer.TransactOpts(ctx)
	if err != nil {
		return e.approvalFailed(token, router, err)
	}
	opts.GasPrice = gasPrice

	tx, err := e.tokens.Approve(opts, token.Address, router.Address(), erc20.MaxApproval)
	if err != nil {
		return e.approvalFailed(token, router, err)
	}
	if err := e.wait(ctx, tx); err != nil {
		return e.approvalFailed(token, router, err)
	}

	e.metrics.Approvals.WithLabelValues("success").Inc()
	e.audit.Printf("Approved %s for %s", token.Symbol, router.Name())
	return nil
}

func (e *Executor) approvalFailed(token types.Token, router dex.Router, err error) error {
	e.metrics.Approvals.WithLabelValues("failed").Inc()
	return fmt.Errorf("%w: %s for %s: %v", types.ErrApprovalFailed, token.Symbol, router.Name(), err)
}

// wait blocks until tx is mined or ConfirmTimeout passes, and fails on a reverted receipt.
func (e *Executor) wait(ctx context.Context, tx *ethtypes.Transaction) error {
	if e.cfg.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
		defer cancel()
	}

	receipt, err := e.waiter.WaitMined(ctx, tx)
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", tx.Hash().Hex(), err)
	}
	e.metrics.GasUsed.Observe(float64(receipt.GasUsed))
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}
	return nil
}
