package cmd

import (
	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/utils"
)

var (
	cfgFile  string
	envFiles []string
	debug    bool
)

var rootCmd = &cobra.Command{
	Use:   "dexarb",
	Short: "A cross-DEX arbitrage monitor for BNB Smart Chain",
	Long: `dexarb periodically prices every catalog token on each pair of configured
DEX routers, logs the round-trip profit net of gas, and executes the two
swaps when the profit clears the configured threshold.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		utils.InitLogger(debug)
		return config.LoadEnv(envFiles...)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		utils.CleanupLogger()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", nil, "env files to load (default .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig reads the configuration after the env files are loaded.
func loadConfig() (*config.Config, error) {
	return config.LoadConfig(cfgFile)
}
