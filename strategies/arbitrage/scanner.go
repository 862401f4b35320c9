package arbitrage

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/michaelpento.lv/dexarb/balance"
	"github.com/michaelpento.lv/dexarb/catalog"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
	"github.com/michaelpento.lv/dexarb/utils/units"
)

// QuoteSource prices a direct swap on a venue.
type QuoteSource interface {
	Quote(ctx context.Context, venue string, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error)
}

// BalanceReader reads a fresh token balance.
type BalanceReader interface {
	Read(ctx context.Context, token types.Token) (balance.Balance, error)
}

// GasCoster estimates the cost of one swap in base-token units. A non-nil
// error comes with a usable fallback value.
type GasCoster interface {
	CostInBase(ctx context.Context) (decimal.Decimal, error)
}

// Executor runs both legs of an opportunity.
type Executor interface {
	Execute(ctx context.Context, opp *types.Opportunity) *types.ExecutionResult
}

// Auditor receives history lines.
type Auditor interface {
	Printf(format string, args ...interface{})
}

type Config struct {
	BaseToken   types.Token
	MinProfit   decimal.Decimal
	DryRun      bool
	Concurrency int
}

// Report summarizes one scan pass.
type Report struct {
	Checked       []*types.Opportunity
	Profitable    int
	Results       []*types.ExecutionResult
	QuoteFailures int
	// EndBalance is the last base balance the pass traded with.
	EndBalance *big.Int
}

// Scanner walks every candidate triple once per pass. Quotes for all triples
// are fetched concurrently before the first decision; decisions and
// executions then run one at a time in catalog order.
type Scanner struct {
	cfg        Config
	candidates []catalog.Candidate
	quotes     QuoteSource
	balances   BalanceReader
	gas        GasCoster
	executor   Executor
	audit      Auditor
	logger     *zap.Logger
	metrics    *metrics.ScannerMetrics
	onExecute  func(executing bool)
}

type Option func(*Scanner)

// WithExecutionHook is called with true before and false after each execution.
func WithExecutionHook(fn func(executing bool)) Option {
	return func(s *Scanner) { s.onExecute = fn }
}

func NewScanner(cfg Config, candidates []catalog.Candidate, quotes QuoteSource, balances BalanceReader,
	gas GasCoster, executor Executor, audit Auditor, logger *zap.Logger, m *metrics.ScannerMetrics, opts ...Option) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	s := &Scanner{
		cfg:        cfg,
		candidates: candidates,
		quotes:     quotes,
		balances:   balances,
		gas:        gas,
		executor:   executor,
		audit:      audit,
		logger:     logger,
		metrics:    m,
		onExecute:  func(bool) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// legQuote holds both quotes of a triple, or the first failure.
type legQuote struct {
	buyOut  *big.Int
	sellOut *big.Int
	leg     string
	venue   string
	err     error
}

func (s *Scanner) quoteTriple(ctx context.Context, c catalog.Candidate, amountIn *big.Int) legQuote {
	base := s.cfg.BaseToken.Address

	buyOut, err := s.quotes.Quote(ctx, c.BuyVenue, base, c.Token.Address, amountIn)
	if err != nil {
		return legQuote{leg: "buyOut", venue: c.BuyVenue, err: err}
	}
	sellOut, err := s.quotes.Quote(ctx, c.SellVenue, c.Token.Address, base, buyOut)
	if err != nil {
		return legQuote{leg: "sellOut", venue: c.SellVenue, err: err}
	}
	return legQuote{buyOut: buyOut, sellOut: sellOut}
}

// prefetch quotes every candidate with amountIn, at most Concurrency at a time.
func (s *Scanner) prefetch(ctx context.Context, amountIn *big.Int) []legQuote {
	start := time.Now()
	defer func() { s.metrics.PrefetchTime.Observe(time.Since(start).Seconds()) }()

	results := make([]legQuote, len(s.candidates))
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, c := range s.candidates {
		i, c := i, c
		g.Go(func() error {
			results[i] = s.quoteTriple(ctx, c, amountIn)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Scanner) gasCost(ctx context.Context) decimal.Decimal {
	cost, err := s.gas.CostInBase(ctx)
	if err != nil {
		s.audit.Printf("Error estimating gas cost: %v", err)
		s.logger.Warn("Using fallback gas cost", zap.String("cost", cost.String()), zap.Error(err))
	}
	return cost
}

// Scan runs one pass starting from the given base balance.
func (s *Scanner) Scan(ctx context.Context, start balance.Balance) (*Report, error) {
	report := &Report{EndBalance: start.Raw}
	if start.IsZero() || len(s.candidates) == 0 {
		return report, nil
	}

	amountIn := start.Raw
	gasCost := s.gasCost(ctx)
	quotes := s.prefetch(ctx, amountIn)
	// after an execution the prefetched quotes no longer match the balance
	stale := false

	for i, c := range s.candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		q := quotes[i]
		if stale {
			q = s.quoteTriple(ctx, c, amountIn)
		}
		if q.err != nil {
			report.QuoteFailures++
			s.metrics.QuoteFailures.WithLabelValues(q.venue).Inc()
			s.audit.Printf("Error getting %s for %s on %s: %v", q.leg, c.Token.Symbol, q.venue, q.err)
			continue
		}

		opp := s.evaluate(c, amountIn, q, gasCost)
		report.Checked = append(report.Checked, opp)

		if !ShouldExecute(opp.Net, s.cfg.MinProfit) {
			continue
		}
		report.Profitable++
		s.metrics.Profitable.Inc()
		s.audit.Printf("PROFITABLE ARB: %s | Buy on %s, Sell on %s | Net Profit: %s",
			opp.Route(s.cfg.BaseToken.Symbol), opp.BuyVenue, opp.SellVenue, opp.Net.StringFixed(4))

		if s.cfg.DryRun {
			s.logger.Info("Monitor-only mode, not executing",
				zap.String("token", c.Token.Symbol),
				zap.String("net", opp.Net.String()))
			continue
		}

		result := s.execute(ctx, opp)
		report.Results = append(report.Results, result)
		stale = true

		bal, err := s.balances.Read(ctx, s.cfg.BaseToken)
		if err != nil {
			return report, fmt.Errorf("re-read base balance: %w", err)
		}
		amountIn = bal.Raw
		report.EndBalance = bal.Raw
		if bal.IsZero() {
			s.logger.Info("Base balance exhausted, ending pass")
			break
		}
		gasCost = s.gasCost(ctx)
	}

	return report, nil
}

func (s *Scanner) evaluate(c catalog.Candidate, amountIn *big.Int, q legQuote, gasCost decimal.Decimal) *types.Opportunity {
	decimals := s.cfg.BaseToken.Decimals
	gross := units.ToDecimal(q.sellOut, decimals).Sub(units.ToDecimal(amountIn, decimals))
	opp := &types.Opportunity{
		Token:     c.Token,
		BuyVenue:  c.BuyVenue,
		SellVenue: c.SellVenue,
		AmountIn:  new(big.Int).Set(amountIn),
		BuyOut:    q.buyOut,
		SellOut:   q.sellOut,
		Gross:     gross,
		GasCost:   gasCost,
		Net:       NetProfit(gross, gasCost),
	}

	s.metrics.Checks.Inc()
	s.metrics.LastNetProfit.Set(units.Float(opp.Net))
	s.audit.Printf("Arb check: %s | Buy on %s, Sell on %s | Gross: %s | Gas: %s | Net: %s",
		opp.Route(s.cfg.BaseToken.Symbol), opp.BuyVenue, opp.SellVenue,
		opp.Gross.StringFixed(4), opp.GasCost.StringFixed(4), opp.Net.StringFixed(4))
	return opp
}

// execute contains a panic to the one opportunity that raised it.
func (s *Scanner) execute(ctx context.Context, opp *types.Opportunity) (result *types.ExecutionResult) {
	s.onExecute(true)
	defer s.onExecute(false)

	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecoveredPanic.Inc()
			err := fmt.Errorf("panic executing %s: %v", opp.Route(s.cfg.BaseToken.Symbol), r)
			s.audit.Printf("Fatal error executing opportunity: %v", err)
			s.logger.Error("Recovered panic during execution", zap.Error(err), zap.Stack("stack"))
			result = &types.ExecutionResult{Opportunity: opp, Status: types.StatusBuyFailed, Err: err}
		}
	}()

	return s.executor.Execute(ctx, opp)
}
