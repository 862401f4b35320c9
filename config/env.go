package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvRPCURL           = "ALCHEMY_BSC_URL"
	EnvPrivateKey       = "PRIVATE_KEY"
	EnvChainID          = "CHAIN_ID"
	EnvMaxGasPriceGwei  = "MAX_GAS_PRICE_GWEI"
	EnvSlippage         = "SLIPPAGE"
	EnvMinProfit        = "MIN_PROFIT_USDT"
	EnvDeadlineSeconds  = "DEADLINE_SECONDS"
	EnvCycleInterval    = "CYCLE_INTERVAL"
	EnvSwapGasUnits     = "SWAP_GAS_UNITS"
	EnvSwapGasLimit     = "SWAP_GAS_LIMIT"
	EnvFallbackGasCost  = "FALLBACK_GAS_COST_USDT"
	EnvFallbackNative   = "FALLBACK_NATIVE_PRICE_USD"
	EnvTokensFile       = "TOKENS_FILE"
	EnvHistoryFile      = "HISTORY_FILE"
	EnvPriceAPIURL      = "PRICE_API_URL"
	EnvMetricsAddr      = "METRICS_ADDR"
	EnvDryRun           = "DRY_RUN"
	EnvQuoteConcurrency = "QUOTE_CONCURRENCY"
	EnvSimulateSwaps    = "SIMULATE_SWAPS"
)

// LoadEnv loads environment variables from the given .env files.
// A missing file is not an error; the process environment still applies.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
