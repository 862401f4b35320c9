package cycle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/dexarb/balance"
	"github.com/michaelpento.lv/dexarb/strategies/arbitrage"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
	"github.com/michaelpento.lv/dexarb/utils/testutils"
	"github.com/michaelpento.lv/dexarb/utils/units"
)

var (
	usdt = types.Token{Symbol: "USDT", Address: testutils.Address("USDT"), Decimals: 18}
	cake = types.Token{Symbol: "CAKE", Address: testutils.Address("CAKE"), Decimals: 18}
)

func bal(n int64) balance.Balance {
	raw := testutils.Units(n, 18)
	return balance.Balance{Raw: raw, Amount: units.ToDecimal(raw, 18)}
}

type fakeBalances struct {
	mu       sync.Mutex
	base     []balance.Balance
	native   balance.Balance
	holdings []balance.Holding
	reads    int
}

func (f *fakeBalances) Read(context.Context, types.Token) (balance.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.base) == 0 {
		return balance.Balance{}, errors.New("rpc down")
	}
	b := f.base[0]
	if len(f.base) > 1 {
		f.base = f.base[1:]
	}
	f.reads++
	return b, nil
}

func (f *fakeBalances) Native(context.Context) (balance.Balance, error) {
	return f.native, nil
}

func (f *fakeBalances) Holdings(context.Context, []types.Token) []balance.Holding {
	return f.holdings
}

type scanFunc func(ctx context.Context, start balance.Balance) (*arbitrage.Report, error)

func (f scanFunc) Scan(ctx context.Context, start balance.Balance) (*arbitrage.Report, error) {
	return f(ctx, start)
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

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func newController(t *testing.T, s Scanner, b *fakeBalances, opts ...Option) (*Controller, *recorder, *metrics.CycleMetrics) {
	audit := &recorder{}
	m := metrics.NewCycleMetrics(prometheus.NewRegistry(), "test")
	cfg := Config{
		BaseToken:    usdt,
		NativeSymbol: "BNB",
		Interval:     10 * time.Millisecond,
		Watch:        []types.Token{usdt, cake},
	}
	return NewController(cfg, s, b, audit, zaptest.NewLogger(t), m, opts...), audit, m
}

func TestRunOnceAuditsWalletAndAfter(t *testing.T) {
	b := &fakeBalances{
		base:   []balance.Balance{bal(100), bal(102)},
		native: bal(1),
		holdings: []balance.Holding{
			{Token: usdt, Balance: bal(100)},
			{Token: cake, Balance: bal(3)},
		},
	}
	var got balance.Balance
	scanner := scanFunc(func(_ context.Context, start balance.Balance) (*arbitrage.Report, error) {
		got = start
		return &arbitrage.Report{Profitable: 1}, nil
	})
	c, audit, m := newController(t, scanner, b)

	require.NoError(t, c.RunOnce(context.Background()))

	assert.Equal(t, testutils.Units(100, 18), got.Raw)
	assert.Equal(t, []string{
		"--- WALLET BALANCE ---",
		"USDT: 100",
		"BNB: 1",
		"CAKE: 3",
		"AFTER: USDT balance: 102",
	}, audit.snapshot())
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs))
	assert.Equal(t, 102.0, testutil.ToFloat64(m.BaseBalance))
}

func TestRunOnceZeroBalanceSkipsScan(t *testing.T) {
	b := &fakeBalances{base: []balance.Balance{{Raw: big.NewInt(0)}}}
	scanned := false
	scanner := scanFunc(func(context.Context, balance.Balance) (*arbitrage.Report, error) {
		scanned = true
		return &arbitrage.Report{}, nil
	})
	c, audit, _ := newController(t, scanner, b)

	require.NoError(t, c.RunOnce(context.Background()))

	assert.False(t, scanned)
	lines := audit.snapshot()
	assert.Contains(t, lines, "No USDT balance. No arbitrage possible.")
	assert.Equal(t, "AFTER: USDT balance: 0", lines[len(lines)-1])
}

func TestRunOnceReportsNoOpportunities(t *testing.T) {
	b := &fakeBalances{base: []balance.Balance{bal(100)}}
	scanner := scanFunc(func(context.Context, balance.Balance) (*arbitrage.Report, error) {
		return &arbitrage.Report{Checked: []*types.Opportunity{{}}}, nil
	})
	c, audit, _ := newController(t, scanner, b)

	require.NoError(t, c.RunOnce(context.Background()))
	assert.Contains(t, audit.snapshot(), "No arbitrage opportunities found at this time.")
}

func TestRunOnceRecoversPanic(t *testing.T) {
	b := &fakeBalances{base: []balance.Balance{bal(100)}}
	calls := 0
	scanner := scanFunc(func(context.Context, balance.Balance) (*arbitrage.Report, error) {
		calls++
		if calls == 1 {
			panic("index out of range")
		}
		return &arbitrage.Report{}, nil
	})
	c, audit, m := newController(t, scanner, b)

	err := c.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCycleFatal)

	lines := audit.snapshot()
	assert.Contains(t, lines, "Fatal error in arbitrage cycle: cycle fatal: panic: index out of range")
	assert.Equal(t, "AFTER: USDT balance: 100", lines[len(lines)-1])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures))
	assert.Equal(t, Idle, c.State())

	// the next cycle runs normally
	require.NoError(t, c.RunOnce(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestRunOnceWrapsScanError(t *testing.T) {
	b := &fakeBalances{base: []balance.Balance{bal(100)}}
	scanner := scanFunc(func(context.Context, balance.Balance) (*arbitrage.Report, error) {
		return nil, errors.New("re-read base balance: timeout")
	})
	c, audit, _ := newController(t, scanner, b)

	err := c.RunOnce(context.Background())
	assert.ErrorIs(t, err, types.ErrCycleFatal)
	assert.Contains(t, audit.snapshot(), "Fatal error in arbitrage cycle: cycle fatal: re-read base balance: timeout")
}

func TestRunOnceBalanceFailureStillAuditsAfter(t *testing.T) {
	c, audit, _ := newController(t, scanFunc(nil), &fakeBalances{})

	err := c.RunOnce(context.Background())
	assert.ErrorIs(t, err, types.ErrCycleFatal)

	lines := audit.snapshot()
	assert.Equal(t, "AFTER: failed to read USDT balance: rpc down", lines[len(lines)-1])
}

func TestRunOnceRejectsConcurrentCycle(t *testing.T) {
	b := &fakeBalances{base: []balance.Balance{bal(100)}}
	entered := make(chan struct{})
	release := make(chan struct{})
	scanner := scanFunc(func(context.Context, balance.Balance) (*arbitrage.Report, error) {
		close(entered)
		<-release
		return &arbitrage.Report{}, nil
	})
	c, _, m := newController(t, scanner, b)

	done := make(chan error, 1)
	go func() { done <- c.RunOnce(context.Background()) }()
	<-entered

	assert.Equal(t, Scanning, c.State())
	assert.ErrorIs(t, c.RunOnce(context.Background()), types.ErrCycleBusy)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Busy))

	close(release)
	require.NoError(t, <-done)
}

func TestMarkExecuting(t *testing.T) {
	c, _, m := newController(t, scanFunc(nil), &fakeBalances{})

	c.MarkExecuting(true)
	assert.Equal(t, Executing, c.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.State))

	c.MarkExecuting(false)
	assert.Equal(t, Scanning, c.State())
	assert.Equal(t, "scanning", c.State().String())
}

func TestRunCountsSkippedTicks(t *testing.T) {
	b := &fakeBalances{base: []balance.Balance{bal(100)}}

	var mu sync.Mutex
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	scanner := scanFunc(func(context.Context, balance.Balance) (*arbitrage.Report, error) {
		calls++
		if calls == 1 {
			mu.Lock()
			now = now.Add(35 * time.Millisecond)
			mu.Unlock()
		} else {
			cancel()
		}
		return &arbitrage.Report{}, nil
	})
	c, _, m := newController(t, scanner, b, WithClock(clock))

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SkippedTicks))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Runs))
}

func TestRunRejectsZeroInterval(t *testing.T) {
	c, _, _ := newController(t, scanFunc(nil), &fakeBalances{})
	c.cfg.Interval = 0
	assert.Error(t, c.Run(context.Background()))
}
