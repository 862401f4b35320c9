package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/units"
)

// Config is built once at startup and never mutated afterwards.
// Every component receives it (or the fields it needs) explicitly.
type Config struct {
	// Chain and network settings
	RPCEndpoint  string
	ChainID      uint64 // 0 means ask the node
	ChainName    string // chain id used by the price provider, e.g. "bsc"
	NativeSymbol string

	// Account
	PrivateKey string

	// Trading
	BaseToken     types.Token
	Venues        []types.Venue
	Slippage      decimal.Decimal
	MinProfit     decimal.Decimal
	Deadline      time.Duration
	DryRun        bool
	SimulateSwaps bool

	// Gas
	MaxGasPrice     *big.Int
	SwapGasUnits    uint64
	SwapGasLimit    uint64
	FallbackGasCost decimal.Decimal

	// FallbackNativePrice prices the native coin when the provider lists no pair for it.
	FallbackNativePrice decimal.Decimal

	// Scheduling
	CycleInterval    time.Duration
	ConfirmTimeout   time.Duration
	QuoteConcurrency int

	// Price provider
	PriceAPIURL    string
	PriceRateLimit float64
	PriceBurst     int
	PriceTimeout   time.Duration

	// Files
	TokensFile  string
	HistoryFile string

	// Observability
	MetricsAddr string
}

// fileConfig is the optional YAML file layout. Addresses, decimals and durations
// are strings so they parse the same way as environment values.
type fileConfig struct {
	RPCEndpoint  string `yaml:"rpc_endpoint"`
	ChainID      uint64 `yaml:"chain_id"`
	ChainName    string `yaml:"chain_name"`
	NativeSymbol string `yaml:"native_symbol"`

	BaseToken struct {
		Symbol   string `yaml:"symbol"`
		Address  string `yaml:"address"`
		Decimals int32  `yaml:"decimals"`
	} `yaml:"base_token"`

	Venues []struct {
		ID     string `yaml:"id"`
		Router string `yaml:"router"`
	} `yaml:"venues"`

	Slippage         string `yaml:"slippage"`
	MinProfit        string `yaml:"min_profit"`
	Deadline         string `yaml:"deadline"`
	MaxGasPriceGwei  string `yaml:"max_gas_price_gwei"`
	SwapGasUnits     uint64 `yaml:"swap_gas_units"`
	SwapGasLimit     uint64 `yaml:"swap_gas_limit"`
	FallbackGasCost  string `yaml:"fallback_gas_cost"`
	FallbackNative   string `yaml:"fallback_native_price"`
	CycleInterval    string `yaml:"cycle_interval"`
	ConfirmTimeout   string `yaml:"confirm_timeout"`
	QuoteConcurrency int    `yaml:"quote_concurrency"`
	PriceAPIURL      string `yaml:"price_api_url"`
	TokensFile       string `yaml:"tokens_file"`
	HistoryFile      string `yaml:"history_file"`
	MetricsAddr      string `yaml:"metrics_addr"`
	DryRun           *bool  `yaml:"dry_run"`
	SimulateSwaps    *bool  `yaml:"simulate_swaps"`
}

// Default router addresses on BNB Smart Chain.
var defaultVenues = []types.Venue{
	{ID: "pancakeswap", Router: common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E")},
	{ID: "uniswap", Router: common.HexToAddress("0x1b02da8cb0d097eb8d57a175b88c7d8b47997506")},
	{ID: "1inch", Router: common.HexToAddress("0x1111111254EEB25477B68fb85Ed929f73A960582")},
}

// DefaultConfig returns the built-in settings without touching the environment.
func DefaultConfig() *Config {
	venues := make([]types.Venue, len(defaultVenues))
	copy(venues, defaultVenues)

	return &Config{
		ChainName:    "bsc",
		NativeSymbol: "BNB",
		BaseToken: types.Token{
			Symbol:   "USDT",
			Address:  common.HexToAddress("0x55d398326f99059fF775485246999027B3197955"),
			Decimals: 18,
		},
		Venues:              venues,
		Slippage:            decimal.RequireFromString("0.001"), // 0.1%
		MinProfit:           decimal.RequireFromString("0.1"),
		Deadline:            10 * time.Second,
		SimulateSwaps:       true,
		MaxGasPrice:         big.NewInt(5_000_000_000), // 5 gwei
		SwapGasUnits:        200_000,
		SwapGasLimit:        400_000,
		FallbackGasCost:     decimal.NewFromInt(1),
		FallbackNativePrice: decimal.NewFromInt(600),
		CycleInterval:       10 * time.Second,
		ConfirmTimeout:      2 * time.Minute,
		QuoteConcurrency:    4,
		PriceAPIURL:         "https://api.dexscreener.com",
		PriceRateLimit:      5,
		PriceBurst:          5,
		PriceTimeout:        5 * time.Second,
		TokensFile:          "alpha-tokens.json",
		HistoryFile:         "arbitrage-history.log",
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file and
// the environment (including .env files already loaded with LoadEnv), in that order.
func LoadConfig(cfgFile string) (*Config, error) {
	cfg := DefaultConfig()

	if cfgFile != "" {
		if err := cfg.applyFile(cfgFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}

	setString(&c.RPCEndpoint, fc.RPCEndpoint)
	setString(&c.ChainName, fc.ChainName)
	setString(&c.NativeSymbol, fc.NativeSymbol)
	setString(&c.PriceAPIURL, fc.PriceAPIURL)
	setString(&c.TokensFile, fc.TokensFile)
	setString(&c.HistoryFile, fc.HistoryFile)
	setString(&c.MetricsAddr, fc.MetricsAddr)
	if fc.ChainID != 0 {
		c.ChainID = fc.ChainID
	}
	if fc.SwapGasUnits != 0 {
		c.SwapGasUnits = fc.SwapGasUnits
	}
	if fc.SwapGasLimit != 0 {
		c.SwapGasLimit = fc.SwapGasLimit
	}
	if fc.QuoteConcurrency != 0 {
		c.QuoteConcurrency = fc.QuoteConcurrency
	}
	if fc.DryRun != nil {
		c.DryRun = *fc.DryRun
	}
	if fc.SimulateSwaps != nil {
		c.SimulateSwaps = *fc.SimulateSwaps
	}

	if fc.BaseToken.Symbol != "" {
		c.BaseToken.Symbol = fc.BaseToken.Symbol
	}
	if fc.BaseToken.Address != "" {
		if !common.IsHexAddress(fc.BaseToken.Address) {
			return fmt.Errorf("invalid base token address %q", fc.BaseToken.Address)
		}
		c.BaseToken.Address = common.HexToAddress(fc.BaseToken.Address)
	}
	if fc.BaseToken.Decimals != 0 {
		c.BaseToken.Decimals = fc.BaseToken.Decimals
	}

	if len(fc.Venues) > 0 {
		venues := make([]types.Venue, 0, len(fc.Venues))
		for _, v := range fc.Venues {
			if !common.IsHexAddress(v.Router) {
				return fmt.Errorf("invalid router address %q for venue %s", v.Router, v.ID)
			}
			venues = append(venues, types.Venue{ID: v.ID, Router: common.HexToAddress(v.Router)})
		}
		c.Venues = venues
	}

	decimals := []struct {
		dst *decimal.Decimal
		src string
		key string
	}{
		{&c.Slippage, fc.Slippage, "slippage"},
		{&c.MinProfit, fc.MinProfit, "min_profit"},
		{&c.FallbackGasCost, fc.FallbackGasCost, "fallback_gas_cost"},
		{&c.FallbackNativePrice, fc.FallbackNative, "fallback_native_price"},
	}
	for _, d := range decimals {
		if err := setDecimal(d.dst, d.src, d.key); err != nil {
			return err
		}
	}
	if fc.MaxGasPriceGwei != "" {
		gwei, err := decimal.NewFromString(fc.MaxGasPriceGwei)
		if err != nil {
			return fmt.Errorf("invalid max_gas_price_gwei: %w", err)
		}
		c.MaxGasPrice = units.GweiToWei(gwei)
	}
	if err := setDuration(&c.Deadline, fc.Deadline, "deadline"); err != nil {
		return err
	}
	if err := setDuration(&c.CycleInterval, fc.CycleInterval, "cycle_interval"); err != nil {
		return err
	}
	return setDuration(&c.ConfirmTimeout, fc.ConfirmTimeout, "confirm_timeout")
}

func (c *Config) applyEnv() error {
	setString(&c.RPCEndpoint, os.Getenv(EnvRPCURL))
	setString(&c.PrivateKey, os.Getenv(EnvPrivateKey))
	setString(&c.TokensFile, os.Getenv(EnvTokensFile))
	setString(&c.HistoryFile, os.Getenv(EnvHistoryFile))
	setString(&c.PriceAPIURL, os.Getenv(EnvPriceAPIURL))
	setString(&c.MetricsAddr, os.Getenv(EnvMetricsAddr))

	if v := os.Getenv(EnvChainID); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvChainID, err)
		}
		c.ChainID = id
	}
	if v := os.Getenv(EnvMaxGasPriceGwei); v != "" {
		gwei, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxGasPriceGwei, err)
		}
		c.MaxGasPrice = units.GweiToWei(gwei)
	}
	if err := setDecimal(&c.Slippage, os.Getenv(EnvSlippage), EnvSlippage); err != nil {
		return err
	}
	if err := setDecimal(&c.MinProfit, os.Getenv(EnvMinProfit), EnvMinProfit); err != nil {
		return err
	}
	if err := setDecimal(&c.FallbackGasCost, os.Getenv(EnvFallbackGasCost), EnvFallbackGasCost); err != nil {
		return err
	}
	if err := setDecimal(&c.FallbackNativePrice, os.Getenv(EnvFallbackNative), EnvFallbackNative); err != nil {
		return err
	}
	if v := os.Getenv(EnvDeadlineSeconds); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDeadlineSeconds, err)
		}
		c.Deadline = time.Duration(secs) * time.Second
	}
	if err := setDuration(&c.CycleInterval, os.Getenv(EnvCycleInterval), EnvCycleInterval); err != nil {
		return err
	}
	if err := setUint(&c.SwapGasUnits, os.Getenv(EnvSwapGasUnits), EnvSwapGasUnits); err != nil {
		return err
	}
	if err := setUint(&c.SwapGasLimit, os.Getenv(EnvSwapGasLimit), EnvSwapGasLimit); err != nil {
		return err
	}
	if v := os.Getenv(EnvQuoteConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvQuoteConcurrency, err)
		}
		c.QuoteConcurrency = n
	}
	if err := setBool(&c.DryRun, os.Getenv(EnvDryRun), EnvDryRun); err != nil {
		return err
	}
	return setBool(&c.SimulateSwaps, os.Getenv(EnvSimulateSwaps), EnvSimulateSwaps)
}

// ValidateConfig reports every invalid setting at once.
func (c *Config) ValidateConfig() error {
	var errors []string

	if c.RPCEndpoint == "" {
		errors = append(errors, fmt.Sprintf("rpc endpoint must be specified (%s)", EnvRPCURL))
	}
	if c.BaseToken.Symbol == "" || c.BaseToken.Address == (common.Address{}) {
		errors = append(errors, "base token symbol and address must be specified")
	}
	if c.BaseToken.Decimals <= 0 {
		errors = append(errors, "base token decimals must be positive")
	}
	if len(c.Venues) < 2 {
		errors = append(errors, "at least two venues must be configured")
	}
	seen := make(map[string]bool, len(c.Venues))
	for _, v := range c.Venues {
		if v.ID == "" || v.Router == (common.Address{}) {
			errors = append(errors, "every venue needs an id and a router address")
		}
		if seen[v.ID] {
			errors = append(errors, fmt.Sprintf("duplicate venue %s", v.ID))
		}
		seen[v.ID] = true
	}
	if c.Slippage.IsNegative() || c.Slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errors = append(errors, "slippage must be in [0, 1)")
	}
	if c.MinProfit.IsNegative() {
		errors = append(errors, "min profit must not be negative")
	}
	if c.Deadline <= 0 {
		errors = append(errors, "deadline must be positive")
	}
	if c.MaxGasPrice == nil || c.MaxGasPrice.Sign() <= 0 {
		errors = append(errors, "max gas price must be positive")
	}
	if c.SwapGasUnits == 0 || c.SwapGasLimit == 0 {
		errors = append(errors, "swap gas units and limit must be positive")
	}
	if c.FallbackGasCost.IsNegative() {
		errors = append(errors, "fallback gas cost must not be negative")
	}
	if c.FallbackNativePrice.IsNegative() {
		errors = append(errors, "fallback native price must not be negative")
	}
	if c.CycleInterval <= 0 {
		errors = append(errors, "cycle interval must be positive")
	}
	if c.QuoteConcurrency <= 0 {
		errors = append(errors, "quote concurrency must be positive")
	}
	if c.TokensFile == "" {
		errors = append(errors, "tokens file must be specified")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

// RequireSigner checks the settings only needed when transactions are sent.
func (c *Config) RequireSigner() error {
	if c.PrivateKey == "" {
		return fmt.Errorf("required environment variable %s not set", EnvPrivateKey)
	}
	return nil
}

// Venue returns the configured venue with the given id.
func (c *Config) Venue(id string) (types.Venue, bool) {
	for _, v := range c.Venues {
		if v.ID == id {
			return v, true
		}
	}
	return types.Venue{}, false
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDecimal(dst *decimal.Decimal, v, key string) error {
	if v == "" {
		return nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setDuration(dst *time.Duration, v, key string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setUint(dst *uint64, v, key string) error {
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, v, key string) error {
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}
