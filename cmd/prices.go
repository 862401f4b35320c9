package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/dexarb/catalog"
	"github.com/michaelpento.lv/dexarb/cmd/bot"
	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/gas"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
	"github.com/michaelpento.lv/dexarb/utils/units"
)

var pricesCmd = &cobra.Command{
	Use:   "prices [SYMBOL...]",
	Short: "Compare indexed USD prices of catalog tokens across venues",
	Long: `prices looks up each symbol's USD price on every venue listing it, using
the price provider rather than the routers. Without arguments every
catalog symbol quoted against the base token is shown. When a node is
configured the current swap gas cost is printed as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cat, err := catalog.Load(cfg.TokensFile)
		if err != nil {
			return err
		}
		prices := bot.NewPriceClient(cfg, log)

		symbols := args
		if len(symbols) == 0 {
			symbols = cat.Symbols(cfg.BaseToken)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SYMBOL\tVENUE\tPRICE USD")
		for _, symbol := range symbols {
			for _, listing := range cat.Listings(symbol, cfg.BaseToken) {
				price, err := prices.PriceUSD(cmd.Context(), symbol, cfg.BaseToken.Symbol, listing.DexID)
				if err != nil {
					log.Warn("Price lookup failed",
						zap.String("symbol", symbol),
						zap.String("venue", listing.DexID),
						zap.Error(err))
					fmt.Fprintf(w, "%s\t%s\t-\n", symbol, listing.DexID)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", symbol, listing.DexID, price.String())
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if cfg.RPCEndpoint == "" {
			return nil
		}
		client, err := ethclient.DialContext(cmd.Context(), cfg.RPCEndpoint)
		if err != nil {
			return fmt.Errorf("failed to connect to node: %w", err)
		}
		defer client.Close()

		m := metrics.NewGasMetrics(prometheus.NewRegistry(), "dexarb")
		estimator := bot.NewGasEstimator(cfg, client, prices, log, m)
		cost, err := estimator.CostInBase(cmd.Context())
		printGasCost(cmd.OutOrStdout(), cfg, estimator, cost, err)
		return nil
	},
}

// printGasCost reports the inputs of the last estimate alongside its result.
func printGasCost(out io.Writer, cfg *config.Config, estimator *gas.Estimator, cost decimal.Decimal, err error) {
	gasPrice, native := estimator.Last()
	if gasPrice != nil {
		fmt.Fprintf(out, "\ngas price: %s gwei\n", units.WeiToGwei(gasPrice))
	}
	if native.IsPositive() {
		fmt.Fprintf(out, "%s price: %s USD\n", cfg.NativeSymbol, native)
	}
	if errors.Is(err, types.ErrEstimationDegraded) {
		fmt.Fprintf(out, "swap gas cost: %s %s (fallback: %v)\n", cost, cfg.BaseToken.Symbol, err)
		return
	}
	fmt.Fprintf(out, "swap gas cost: %s %s\n", cost.StringFixed(4), cfg.BaseToken.Symbol)
}

func init() {
	rootCmd.AddCommand(pricesCmd)
}
