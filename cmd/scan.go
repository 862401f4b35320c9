package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/dexarb/cmd/bot"
	"github.com/michaelpento.lv/dexarb/utils"
)

var watchAddress string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single monitor-only cycle",
	Long: `scan runs one cycle against the live chain and writes every check to the
history file, but never sends a transaction. Without PRIVATE_KEY the
account to read balances from must be given with --address.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		opts := bot.Options{DryRun: true}
		if watchAddress != "" {
			if !common.IsHexAddress(watchAddress) {
				return fmt.Errorf("invalid address %q", watchAddress)
			}
			opts.Watch = common.HexToAddress(watchAddress)
		}

		b, err := bot.New(cmd.Context(), cfg, utils.GetLogger(), opts)
		if err != nil {
			return err
		}
		defer b.Close()

		return b.RunOnce(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVar(&watchAddress, "address", "", "account to monitor when no private key is set")
}
