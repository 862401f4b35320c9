// Package cycle drives the monitor: one full scan of the catalog per interval,
// never two at once.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/michaelpento.lv/dexarb/balance"
	"github.com/michaelpento.lv/dexarb/strategies/arbitrage"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
)

// afterTimeout bounds the closing balance read, which runs even after shutdown.
const afterTimeout = 10 * time.Second

type State int32

const (
	Idle State = iota
	Scanning
	Executing
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Executing:
		return "executing"
	default:
		return "idle"
	}
}

// Scanner checks every candidate triple once.
type Scanner interface {
	Scan(ctx context.Context, start balance.Balance) (*arbitrage.Report, error)
}

// Balances reads the account at cycle boundaries.
type Balances interface {
	Read(ctx context.Context, token types.Token) (balance.Balance, error)
	Native(ctx context.Context) (balance.Balance, error)
	Holdings(ctx context.Context, tokens []types.Token) []balance.Holding
}

type Auditor interface {
	Printf(format string, args ...interface{})
}

type Config struct {
	BaseToken    types.Token
	NativeSymbol string
	Interval     time.Duration
	// Watch lists the tokens whose leftover balances are reported each cycle.
	Watch []types.Token
}

type Controller struct {
	cfg      Config
	scanner  Scanner
	balances Balances
	audit    Auditor
	logger   *zap.Logger
	metrics  *metrics.CycleMetrics
	now      func() time.Time

	running sync.Mutex
	state   atomic.Int32
}

type Option func(*Controller)

// WithClock overrides the clock used to measure cycle duration.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func NewController(cfg Config, scanner Scanner, balances Balances, audit Auditor,
	logger *zap.Logger, m *metrics.CycleMetrics, opts ...Option) *Controller {
	c := &Controller{
		cfg:      cfg,
		scanner:  scanner,
		balances: balances,
		audit:    audit,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
	c.metrics.State.Set(float64(s))
}

// MarkExecuting moves the controller between Scanning and Executing while a
// cycle is in progress.
func (c *Controller) MarkExecuting(executing bool) {
	if executing {
		c.setState(Executing)
		return
	}
	c.setState(Scanning)
}

// Run starts a cycle immediately and then on every interval tick until ctx is
// cancelled. Ticks that elapse while a cycle runs are dropped.
func (c *Controller) Run(ctx context.Context) error {
	if c.cfg.Interval <= 0 {
		return fmt.Errorf("invalid cycle interval %s", c.cfg.Interval)
	}
	c.logger.Info("Starting arbitrage loop", zap.Duration("interval", c.cfg.Interval))

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.tick(ctx, ticker)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Arbitrage loop stopped")
			return ctx.Err()
		case <-ticker.C:
			c.tick(ctx, ticker)
		}
	}
}

func (c *Controller) tick(ctx context.Context, ticker *time.Ticker) {
	if ctx.Err() != nil {
		return
	}
	start := c.now()
	err := c.RunOnce(ctx)
	switch {
	case errors.Is(err, types.ErrCycleBusy):
		c.logger.Debug("Previous cycle still running, skipping tick")
	case err != nil && ctx.Err() == nil:
		c.logger.Error("Cycle failed", zap.Error(err))
	}

	if skipped := c.overrun(c.now().Sub(start)); skipped > 0 {
		c.logger.Warn("Cycle overran interval",
			zap.Int("skipped_ticks", skipped),
			zap.Duration("interval", c.cfg.Interval))
		// drop the tick buffered during the overrun
		select {
		case <-ticker.C:
		default:
		}
		ticker.Reset(c.cfg.Interval)
	}
}

// overrun counts the ticks that fell inside a cycle of the given duration.
func (c *Controller) overrun(elapsed time.Duration) int {
	if elapsed < c.cfg.Interval {
		return 0
	}
	n := int(elapsed / c.cfg.Interval)
	c.metrics.SkippedTicks.Add(float64(n))
	return n
}

// RunOnce runs a single cycle. It returns types.ErrCycleBusy without doing
// anything if another cycle is in progress. Any other failure, including a
// panic, is returned wrapped in types.ErrCycleFatal after being audited.
func (c *Controller) RunOnce(ctx context.Context) (err error) {
	if !c.running.TryLock() {
		c.metrics.Busy.Inc()
		return types.ErrCycleBusy
	}
	defer c.running.Unlock()

	start := c.now()
	c.metrics.Runs.Inc()
	c.setState(Scanning)
	defer func() {
		c.setState(Idle)
		c.metrics.Duration.Observe(c.now().Sub(start).Seconds())
	}()

	defer c.after(ctx)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			c.logger.Error("Recovered panic in cycle", zap.Any("panic", r), zap.Stack("stack"))
		}
		if err == nil || ctx.Err() != nil {
			return
		}
		if !errors.Is(err, types.ErrCycleFatal) {
			err = fmt.Errorf("%w: %v", types.ErrCycleFatal, err)
		}
		c.metrics.Failures.Inc()
		c.audit.Printf("Fatal error in arbitrage cycle: %v", err)
	}()

	return c.cycle(ctx)
}

func (c *Controller) cycle(ctx context.Context) error {
	base := c.cfg.BaseToken

	bal, err := c.balances.Read(ctx, base)
	if err != nil {
		return err
	}
	c.audit.Printf("--- WALLET BALANCE ---")
	c.audit.Printf("%s: %s", base.Symbol, bal.Amount.String())
	c.reportWallet(ctx)

	if bal.IsZero() {
		c.audit.Printf("No %s balance. No arbitrage possible.", base.Symbol)
		return nil
	}

	report, err := c.scanner.Scan(ctx, bal)
	if err != nil {
		return err
	}
	if report.Profitable == 0 {
		c.audit.Printf("No arbitrage opportunities found at this time.")
	}
	c.logger.Info("Cycle complete",
		zap.Int("checked", len(report.Checked)),
		zap.Int("profitable", report.Profitable),
		zap.Int("executed", len(report.Results)),
		zap.Int("quote_failures", report.QuoteFailures))
	return nil
}

// reportWallet audits the native balance and any open token positions.
func (c *Controller) reportWallet(ctx context.Context) {
	if c.cfg.NativeSymbol != "" {
		native, err := c.balances.Native(ctx)
		if err != nil {
			c.logger.Warn("Failed to read native balance", zap.Error(err))
		} else {
			c.audit.Printf("%s: %s", c.cfg.NativeSymbol, native.Amount.String())
		}
	}

	for _, h := range c.balances.Holdings(ctx, c.cfg.Watch) {
		if h.Token.Address == c.cfg.BaseToken.Address {
			continue
		}
		c.audit.Printf("%s: %s", h.Token.Symbol, h.Amount.String())
	}
}

func (c *Controller) after(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), afterTimeout)
	defer cancel()

	base := c.cfg.BaseToken
	bal, err := c.balances.Read(ctx, base)
	if err != nil {
		c.audit.Printf("AFTER: failed to read %s balance: %v", base.Symbol, err)
		return
	}
	c.metrics.BaseBalance.Set(bal.Amount.InexactFloat64())
	c.audit.Printf("AFTER: %s balance: %s", base.Symbol, bal.Amount.String())
}
