package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/utils/units"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		key := "not set"
		if cfg.PrivateKey != "" {
			key = "set"
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "rpc endpoint\t%s\n", cfg.RPCEndpoint)
		fmt.Fprintf(w, "chain\t%s (%d)\n", cfg.ChainName, cfg.ChainID)
		fmt.Fprintf(w, "private key (%s)\t%s\n", config.EnvPrivateKey, key)
		fmt.Fprintf(w, "base token\t%s %s\n", cfg.BaseToken.Symbol, cfg.BaseToken.Address.Hex())
		for _, v := range cfg.Venues {
			fmt.Fprintf(w, "venue %s\t%s\n", v.ID, v.Router.Hex())
		}
		fmt.Fprintf(w, "slippage\t%s\n", cfg.Slippage)
		fmt.Fprintf(w, "min profit\t%s\n", cfg.MinProfit)
		fmt.Fprintf(w, "max gas price\t%s gwei\n", units.WeiToGwei(cfg.MaxGasPrice))
		fmt.Fprintf(w, "fallback gas cost\t%s %s\n", cfg.FallbackGasCost, cfg.BaseToken.Symbol)
		fmt.Fprintf(w, "fallback %s price\t%s USD\n", cfg.NativeSymbol, cfg.FallbackNativePrice)
		fmt.Fprintf(w, "cycle interval\t%s\n", cfg.CycleInterval)
		fmt.Fprintf(w, "dry run\t%t\n", cfg.DryRun)
		fmt.Fprintf(w, "tokens file\t%s\n", cfg.TokensFile)
		fmt.Fprintf(w, "history file\t%s\n", cfg.HistoryFile)
		if _, err := os.Stat(cfg.TokensFile); err != nil {
			fmt.Fprintf(w, "\ttokens file not found\n")
		}
		if cfg.MetricsAddr != "" {
			fmt.Fprintf(w, "metrics\t%s\n", cfg.MetricsAddr)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
