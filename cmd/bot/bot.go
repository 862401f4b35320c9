package bot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/dexarb/audit"
	"github.com/michaelpento.lv/dexarb/balance"
	"github.com/michaelpento.lv/dexarb/catalog"
	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/cycle"
	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/dex/uniswap"
	"github.com/michaelpento.lv/dexarb/erc20"
	"github.com/michaelpento.lv/dexarb/execution"
	"github.com/michaelpento.lv/dexarb/gas"
	"github.com/michaelpento.lv/dexarb/price"
	"github.com/michaelpento.lv/dexarb/quote"
	"github.com/michaelpento.lv/dexarb/simulator"
	"github.com/michaelpento.lv/dexarb/strategies/arbitrage"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
	"github.com/michaelpento.lv/dexarb/wallet"
)

// Backend is the node surface every component is built on. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Options adjust how the bot is assembled.
type Options struct {
	// DryRun checks and audits opportunities without sending transactions.
	DryRun bool
	// Watch is the account to monitor when no private key is configured.
	// Only valid with DryRun.
	Watch common.Address
}

// Bot represents the arbitrage bot instance
type Bot struct {
	cfg        *config.Config
	client     Backend
	account    *wallet.Account
	registry   *dex.Registry
	tokens     *erc20.Client
	balances   *balance.Reader
	gas        *gas.Estimator
	history    *audit.Log
	metrics    *metrics.Metrics
	controller *cycle.Controller
	logger     *zap.Logger

	server      *http.Server
	closeClient func()
	wg          sync.WaitGroup
}

// New connects to the node and assembles every component.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*Bot, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to node: %w", err)
	}

	b, err := assemble(ctx, cfg, client, logger, opts)
	if err != nil {
		client.Close()
		return nil, err
	}
	b.closeClient = client.Close
	return b, nil
}

func assemble(ctx context.Context, cfg *config.Config, client Backend, logger *zap.Logger, opts Options) (*Bot, error) {
	opts.DryRun = opts.DryRun || cfg.DryRun
	account, err := openAccount(ctx, cfg, client, opts)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Load(cfg.TokensFile)
	if err != nil {
		return nil, err
	}

	tokens, err := erc20.NewClient(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create token client: %w", err)
	}

	m := metrics.New()
	prices := NewPriceClient(cfg, logger)
	registry := uniswap.NewRegistry(cfg.Venues, client)
	estimator := NewGasEstimator(cfg, client, prices, logger, m.Gas)
	balances := balance.NewReader(account.Address(), tokens, client, logger.Named("balance"))

	history, err := audit.Open(cfg.HistoryFile, logger)
	if err != nil {
		return nil, err
	}

	b := &Bot{
		cfg:      cfg,
		client:   client,
		account:  account,
		registry: registry,
		tokens:   tokens,
		balances: balances,
		gas:      estimator,
		history:  history,
		metrics:  m,
		logger:   logger,
	}

	candidates := catalog.Restrict(cat.Candidates(cfg.BaseToken), registry.IDs())
	logger.Info("Loaded token catalog",
		zap.Int("listings", cat.Len()),
		zap.Int("symbols", len(cat.Symbols(cfg.BaseToken))),
		zap.Int("candidates", len(candidates)),
		zap.Strings("venues", registry.IDs()))

	var executor arbitrage.Executor = noExecutor{}
	if !opts.DryRun {
		executor = b.newExecutor()
	}

	// the scanner reports executions to the controller built after it
	var controller *cycle.Controller
	scanner := arbitrage.NewScanner(arbitrage.Config{
		BaseToken:   cfg.BaseToken,
		MinProfit:   cfg.MinProfit,
		DryRun:      opts.DryRun,
		Concurrency: cfg.QuoteConcurrency,
	}, candidates, quote.NewSource(registry), balances, estimator, executor, history,
		logger.Named("scanner"), m.Scanner,
		arbitrage.WithExecutionHook(func(executing bool) { controller.MarkExecuting(executing) }))

	controller = cycle.NewController(cycle.Config{
		BaseToken:    cfg.BaseToken,
		NativeSymbol: cfg.NativeSymbol,
		Interval:     cfg.CycleInterval,
		Watch:        watchList(cat, cfg),
	}, scanner, balances, history, logger.Named("cycle"), m.Cycle)
	b.controller = controller

	return b, nil
}

func openAccount(ctx context.Context, cfg *config.Config, client Backend, opts Options) (*wallet.Account, error) {
	if cfg.PrivateKey == "" {
		if opts.DryRun && opts.Watch != (common.Address{}) {
			return wallet.WatchOnly(opts.Watch), nil
		}
		return nil, cfg.RequireSigner()
	}

	chainID := new(big.Int).SetUint64(cfg.ChainID)
	if cfg.ChainID == 0 {
		id, err := client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get chain id: %w", err)
		}
		chainID = id
	}
	return wallet.NewAccount(cfg.PrivateKey, chainID)
}

func (b *Bot) newExecutor() *execution.Executor {
	var opts []execution.Option
	if b.cfg.SimulateSwaps {
		opts = append(opts, execution.WithSimulator(simulator.NewSimulator(b.client)))
	}
	return execution.NewExecutor(execution.Config{
		BaseToken:      b.cfg.BaseToken,
		Slippage:       b.cfg.Slippage,
		Deadline:       b.cfg.Deadline,
		GasLimit:       b.cfg.SwapGasLimit,
		ConfirmTimeout: b.cfg.ConfirmTimeout,
	}, b.tokens, b.gas, b.account, b.registry, execution.MinedWaiter{Backend: b.client},
		b.history, b.logger.Named("execution"), b.metrics.Execution, opts...)
}

// watchList is every catalog token quoted against the base token.
func watchList(cat *catalog.Catalog, cfg *config.Config) []types.Token {
	var watch []types.Token
	for _, symbol := range cat.Symbols(cfg.BaseToken) {
		watch = append(watch, cat.Listings(symbol, cfg.BaseToken)...)
	}
	return watch
}

// NewPriceClient builds the DexScreener client from the configuration.
func NewPriceClient(cfg *config.Config, logger *zap.Logger) *price.Client {
	return price.NewClient(price.Config{
		BaseURL:      cfg.PriceAPIURL,
		Chain:        cfg.ChainName,
		NativeSymbol: cfg.NativeSymbol,
		QuoteSymbol:  cfg.BaseToken.Symbol,
		RateLimit:    cfg.PriceRateLimit,
		Burst:        cfg.PriceBurst,
		Timeout:      cfg.PriceTimeout,
	}, logger.Named("price"))
}

// NewGasEstimator builds the swap gas estimator from the configuration.
func NewGasEstimator(cfg *config.Config, client gas.GasPricer, prices gas.NativePricer, logger *zap.Logger, m *metrics.GasMetrics) *gas.Estimator {
	return gas.NewEstimator(client, prices, gas.Config{
		MaxGasPrice:    cfg.MaxGasPrice,
		SwapGasUnits:   cfg.SwapGasUnits,
		Fallback:       cfg.FallbackGasCost,
		NativeFallback: cfg.FallbackNativePrice,
	}, logger.Named("gas"), m)
}

// Start begins the cycle loop and, when configured, the metrics server.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting arbitrage bot...",
		zap.Stringer("account", b.account.Address()),
		zap.Bool("can_sign", b.account.CanSign()))

	if b.cfg.MetricsAddr != "" {
		b.startMetrics()
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Error("Arbitrage loop error", zap.Error(err))
		}
	}()

	return nil
}

func (b *Bot) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", b.metrics.Handler())
	b.server = &http.Server{
		Addr:              b.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.logger.Info("Serving metrics", zap.String("addr", b.cfg.MetricsAddr))
		if err := b.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.logger.Error("Metrics server error", zap.Error(err))
		}
	}()
}

// RunOnce runs a single cycle in the foreground.
func (b *Bot) RunOnce(ctx context.Context) error {
	return b.controller.RunOnce(ctx)
}

// Stop waits for the running cycle to finish and releases resources.
// The context passed to Start must already be cancelled.
func (b *Bot) Stop() {
	b.logger.Info("Stopping arbitrage bot...")
	if b.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.server.Shutdown(shutdownCtx); err != nil {
			b.logger.Warn("Metrics server shutdown", zap.Error(err))
		}
	}
	b.wg.Wait()
	b.Close()
}

// Close releases the history file and node connection.
func (b *Bot) Close() {
	if err := b.history.Close(); err != nil {
		b.logger.Warn("Failed to close history file", zap.Error(err))
	}
	if b.closeClient != nil {
		b.closeClient()
	}
}

// VerifyCatalog checks every catalog listing's pair contract and token
// precision on chain.
func VerifyCatalog(ctx context.Context, backend bind.ContractBackend, cat *catalog.Catalog) ([]catalog.Verification, error) {
	tokens, err := erc20.NewClient(backend)
	if err != nil {
		return nil, fmt.Errorf("failed to create token client: %w", err)
	}
	return catalog.Verify(ctx, cat.Tokens(), func(addr common.Address) dex.Pair {
		return uniswap.NewV2Pair(addr, backend)
	}, tokens), nil
}

// noExecutor stands in when transactions are disabled; the scanner never
// calls it in dry-run mode.
type noExecutor struct{}

func (noExecutor) Execute(_ context.Context, opp *types.Opportunity) *types.ExecutionResult {
	return &types.ExecutionResult{Opportunity: opp, Status: types.StatusBuyFailed, Err: errors.New("execution disabled")}
}
