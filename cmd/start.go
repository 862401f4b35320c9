package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/dexarb/cmd/bot"
	"github.com/michaelpento.lv/dexarb/utils"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the arbitrage loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		b, err := bot.New(ctx, cfg, log, bot.Options{})
		if err != nil {
			return err
		}
		if err := b.Start(ctx); err != nil {
			b.Close()
			return err
		}

		<-ctx.Done()
		log.Info("Shutting down gracefully...")
		b.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
