package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/dexarb/catalog"
	"github.com/michaelpento.lv/dexarb/cmd/bot"
	"github.com/michaelpento.lv/dexarb/utils/units"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the token catalog",
}

var catalogVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every listing's pair contract on chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cat, err := catalog.Load(cfg.TokensFile)
		if err != nil {
			return err
		}
		client, err := ethclient.DialContext(cmd.Context(), cfg.RPCEndpoint)
		if err != nil {
			return fmt.Errorf("failed to connect to node: %w", err)
		}
		defer client.Close()

		results, err := bot.VerifyCatalog(cmd.Context(), client, cat)
		if err != nil {
			return err
		}

		failed := 0
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SYMBOL\tVENUE\tPAIR\tRESERVE\tQUOTE RESERVE\tSELL 1\tSTATUS")
		for _, v := range results {
			if !v.OK() {
				failed++
				fmt.Fprintf(w, "%s\t%s\t%s\t-\t-\t-\t%v\n", v.Token.Symbol, v.Token.DexID, v.Token.PairAddress.Hex(), v.Err)
				continue
			}
			token, quote := v.Oriented()
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\tok\n", v.Token.Symbol, v.Token.DexID, v.Token.PairAddress.Hex(),
				units.ToDecimal(token, v.Token.Decimals).StringFixed(2),
				units.ToDecimal(quote, cfg.BaseToken.Decimals).StringFixed(2),
				units.ToDecimal(v.ImpliedQuote, cfg.BaseToken.Decimals).StringFixed(4))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d listings failed verification", failed, len(results))
		}
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogVerifyCmd)
	rootCmd.AddCommand(catalogCmd)
}
