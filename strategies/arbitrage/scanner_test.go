package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/dexarb/balance"
	"github.com/michaelpento.lv/dexarb/catalog"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
	"github.com/michaelpento.lv/dexarb/utils/testutils"
	"github.com/michaelpento.lv/dexarb/utils/units"
)

var (
	usdt = types.Token{Symbol: "USDT", Address: testutils.Address("USDT"), Decimals: 18}
	cake = types.Token{Symbol: "CAKE", Address: testutils.Address("CAKE"), Decimals: 18}
)

type fakeQuotes struct {
	mu    sync.Mutex
	rates map[string][2]int64
	fail  map[string]error
	calls int
}

func quoteKey(venue string, in, out common.Address) string {
	return fmt.Sprintf("%s:%s:%s", venue, in.Hex(), out.Hex())
}

func (f *fakeQuotes) set(venue string, in, out types.Token, num, den int64) {
	f.rates[quoteKey(venue, in.Address, out.Address)] = [2]int64{num, den}
}

func (f *fakeQuotes) Quote(_ context.Context, venue string, in, out common.Address, amount *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	key := quoteKey(venue, in, out)
	if err := f.fail[key]; err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrQuoteUnavailable, err)
	}
	r, ok := f.rates[key]
	if !ok {
		return nil, fmt.Errorf("%w: no pair", types.ErrQuoteUnavailable)
	}
	q := new(big.Int).Mul(amount, big.NewInt(r[0]))
	return q.Div(q, big.NewInt(r[1])), nil
}

type fakeBalances struct {
	values []*big.Int
	reads  int
}

func (f *fakeBalances) Read(_ context.Context, token types.Token) (balance.Balance, error) {
	if f.reads >= len(f.values) {
		return balance.Balance{}, errors.New("rpc down")
	}
	raw := f.values[f.reads]
	f.reads++
	return balance.Balance{Raw: raw, Amount: units.ToDecimal(raw, token.Decimals)}, nil
}

type fakeGas struct {
	cost  decimal.Decimal
	err   error
	calls int
}

func (f *fakeGas) CostInBase(context.Context) (decimal.Decimal, error) {
	f.calls++
	return f.cost, f.err
}

type fakeExecutor struct {
	executed   []*types.Opportunity
	panicOn    string
	sellFailOn string
}

func (f *fakeExecutor) Execute(_ context.Context, opp *types.Opportunity) *types.ExecutionResult {
	if opp.BuyVenue == f.panicOn {
		panic("nil router")
	}
	f.executed = append(f.executed, opp)
	if opp.BuyVenue == f.sellFailOn {
		return &types.ExecutionResult{
			Opportunity: opp,
			Status:      types.StatusSellFailed,
			Err:         fmt.Errorf("%w: execution reverted", types.ErrSwapFailed),
		}
	}
	return &types.ExecutionResult{Opportunity: opp, Status: types.StatusExecuted}
}

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) Printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

type harness struct {
	quotes   *fakeQuotes
	balances *fakeBalances
	gas      *fakeGas
	executor *fakeExecutor
	audit    *recorder
	metrics  *metrics.ScannerMetrics
	cfg      Config
}

// newHarness prices pancake->biswap at +2 USDT gross and the reverse at a loss.
func newHarness() *harness {
	q := &fakeQuotes{rates: make(map[string][2]int64), fail: make(map[string]error)}
	q.set("pancake", usdt, cake, 1, 2)
	q.set("biswap", cake, usdt, 51, 25)
	q.set("biswap", usdt, cake, 49, 100)
	q.set("pancake", cake, usdt, 198, 100)

	return &harness{
		quotes:   q,
		balances: &fakeBalances{},
		gas:      &fakeGas{cost: decimal.RequireFromString("0.12")},
		executor: &fakeExecutor{},
		audit:    &recorder{},
		metrics:  metrics.NewScannerMetrics(prometheus.NewRegistry(), "test"),
		cfg: Config{
			BaseToken:   usdt,
			MinProfit:   decimal.RequireFromString("0.5"),
			Concurrency: 4,
		},
	}
}

func (h *harness) scanner(t *testing.T, opts ...Option) *Scanner {
	candidates := []catalog.Candidate{
		{Token: cake, BuyVenue: "pancake", SellVenue: "biswap"},
		{Token: cake, BuyVenue: "biswap", SellVenue: "pancake"},
	}
	return NewScanner(h.cfg, candidates, h.quotes, h.balances, h.gas, h.executor, h.audit,
		zaptest.NewLogger(t), h.metrics, opts...)
}

func startBalance(n int64) balance.Balance {
	raw := testutils.Units(n, 18)
	return balance.Balance{Raw: raw, Amount: units.ToDecimal(raw, 18)}
}

func TestScanExecutesProfitableTriple(t *testing.T) {
	h := newHarness()
	h.balances.values = []*big.Int{testutils.Units(100, 18)}

	report, err := h.scanner(t).Scan(context.Background(), startBalance(100))
	require.NoError(t, err)

	require.Len(t, h.executor.executed, 1)
	opp := h.executor.executed[0]
	assert.Equal(t, "pancake", opp.BuyVenue)
	assert.Equal(t, testutils.Units(50, 18), opp.BuyOut)
	assert.Equal(t, testutils.Units(102, 18), opp.SellOut)
	assert.Equal(t, "1.88", opp.Net.String())

	assert.Equal(t, 1, report.Profitable)
	require.Len(t, report.Checked, 2)
	require.Len(t, report.Results, 1)
	assert.Equal(t, testutils.Units(100, 18), report.EndBalance)

	assert.Equal(t, []string{
		"Arb check: USDT->CAKE->USDT | Buy on pancake, Sell on biswap | Gross: 2.0000 | Gas: 0.1200 | Net: 1.8800",
		"PROFITABLE ARB: USDT->CAKE->USDT | Buy on pancake, Sell on biswap | Net Profit: 1.8800",
		"Arb check: USDT->CAKE->USDT | Buy on biswap, Sell on pancake | Gross: -2.9800 | Gas: 0.1200 | Net: -3.1000",
	}, h.audit.lines)

	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.Checks))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Profitable))
}

func TestScanRequotesWithFreshBalanceAfterExecution(t *testing.T) {
	h := newHarness()
	h.balances.values = []*big.Int{testutils.Units(101, 18)}

	report, err := h.scanner(t).Scan(context.Background(), startBalance(100))
	require.NoError(t, err)

	require.Len(t, report.Checked, 2)
	assert.Equal(t, testutils.Units(100, 18), report.Checked[0].AmountIn)
	assert.Equal(t, testutils.Units(101, 18), report.Checked[1].AmountIn)

	// four prefetched legs plus both legs of the requoted triple
	assert.Equal(t, 6, h.quotes.calls)
	// once at the start and once after the execution
	assert.Equal(t, 2, h.gas.calls)
}

func TestScanContinuesAfterSellFailure(t *testing.T) {
	h := newHarness()
	h.cfg.MinProfit = decimal.NewFromInt(-100)
	h.executor.sellFailOn = "pancake"
	// the failed sell leaves CAKE held and only part of the USDT
	h.balances.values = []*big.Int{testutils.Units(40, 18), testutils.Units(39, 18)}

	report, err := h.scanner(t).Scan(context.Background(), startBalance(100))
	require.NoError(t, err)

	require.Len(t, h.executor.executed, 2)
	assert.Equal(t, "pancake", h.executor.executed[0].BuyVenue)
	assert.Equal(t, "biswap", h.executor.executed[1].BuyVenue)
	assert.Equal(t, testutils.Units(40, 18), h.executor.executed[1].AmountIn)

	require.Len(t, report.Results, 2)
	assert.True(t, report.Results[0].Exposed())
	assert.Equal(t, types.StatusExecuted, report.Results[1].Status)
	assert.Equal(t, 2, report.Profitable)
	assert.Equal(t, testutils.Units(39, 18), report.EndBalance)
}

func TestScanThresholdIsStrict(t *testing.T) {
	h := newHarness()
	h.cfg.MinProfit = decimal.RequireFromString("1.88")

	report, err := h.scanner(t).Scan(context.Background(), startBalance(100))
	require.NoError(t, err)

	assert.Empty(t, h.executor.executed)
	assert.Equal(t, 0, report.Profitable)
	assert.Len(t, report.Checked, 2)
}

func TestScanDryRunNeverExecutes(t *testing.T) {
	h := newHarness()
	h.cfg.DryRun = true

	report, err := h.scanner(t).Scan(context.Background(), startBalance(100))
	require.NoError(t, err)

	assert.Empty(t, h.executor.executed)
	assert.Equal(t, 1, report.Profitable)
	assert.Equal(t, 0, h.balances.reads)
	assert.Contains(t, h.audit.lines, "PROFITABLE ARB: USDT->CAKE->USDT | Buy on pancake, Sell on biswap | Net Profit: 1.8800")
}

func TestScanQuoteFailureSkipsTriple(t *testing.T) {
	h := newHarness()
	h.quotes.fail[quoteKey("pancake", usdt.Address, cake.Address)] = errors.New("execution reverted")

	report, err := h.scanner(t).Scan(context.Background(), startBalance(100))
	require.NoError(t, err)

	assert.Equal(t, 1, report.QuoteFailures)
	require.Len(t, report.Checked, 1)
	assert.Equal(t, "biswap", report.Checked[0].BuyVenue)
	assert.Empty(t, h.executor.executed)

	require.NotEmpty(t, h.audit.lines)
	assert.Equal(t, "Error getting buyOut for CAKE on pancake: quote unavailable: execution reverted", h.audit.lines[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.QuoteFailures.WithLabelValues("pancake")))
}

func TestScanSellQuoteFailureNamesSellVenue(t *testing.T) {
	h := newHarness()
	h.quotes.fail[quoteKey("biswap", cake.Address, usdt.Address)] = errors.New("boom")

	report, err := h.scanner(t).Scan(context.Background(), startBalance(100))
	require.NoError(t, err)

	assert.Equal(t, 1, report.QuoteFailures)
	assert.Equal(t, "Error getting sellOut for CAKE on biswap: quote unavailable: boom", h.audit.lines[0])
}

func TestScanStopsWhenBalanceExhausted(t *testing.T) {
	h := newHarness()
	h.balances.values = []*big.Int{big.NewInt(0)}

	report, err := h.scanner(t).Scan(context.Background(), startBalance(100))
	require.NoError(t, err)

	assert.Len(t, report.Checked, 1)
	assert.Equal(t, 0, report.EndBalance.Sign())
}

func TestScanBalanceReadFailureEndsPass(t *testing.T) {
	h := newHarness()

	report, err := h.scanner(t).Scan(context.Background(), startBalance(100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "re-read base balance")
	assert.Len(t, report.Results, 1)
}

func TestScanRecoversExecutionPanic(t *testing.T) {
	h := newHarness()
	h.executor.panicOn = "pancake"
	h.balances.values = []*big.Int{testutils.Units(100, 18)}

	var states []bool
	report, err := h.scanner(t, WithExecutionHook(func(executing bool) {
		states = append(states, executing)
	})).Scan(context.Background(), startBalance(100))
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, types.StatusBuyFailed, report.Results[0].Status)
	assert.ErrorContains(t, report.Results[0].Err, "nil router")
	// the remaining triple is still checked
	assert.Len(t, report.Checked, 2)
	assert.Equal(t, []bool{true, false}, states)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RecoveredPanic))
}

func TestScanUsesFallbackGasCost(t *testing.T) {
	h := newHarness()
	h.cfg.DryRun = true
	h.gas.cost = decimal.RequireFromString("2.5")
	h.gas.err = fmt.Errorf("%w: price api down", types.ErrEstimationDegraded)

	report, err := h.scanner(t).Scan(context.Background(), startBalance(100))
	require.NoError(t, err)

	// 2 gross minus 2.5 fallback gas is not profitable
	assert.Equal(t, 0, report.Profitable)
	assert.Equal(t, "Error estimating gas cost: gas estimation degraded: price api down", h.audit.lines[0])
	assert.Equal(t, "-0.5", report.Checked[0].Net.String())
}

func TestScanZeroBalanceChecksNothing(t *testing.T) {
	h := newHarness()

	report, err := h.scanner(t).Scan(context.Background(), balance.Balance{Raw: big.NewInt(0)})
	require.NoError(t, err)

	assert.Empty(t, report.Checked)
	assert.Equal(t, 0, h.quotes.calls)
	assert.Equal(t, 0, h.gas.calls)
}

func TestScanHonoursCancellation(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.scanner(t).Scan(ctx, startBalance(100))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.executor.executed)
}
