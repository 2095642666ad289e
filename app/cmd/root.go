package cmd

import (
	"barberbot/app/config"

	"github.com/spf13/cobra"
)

func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "barberbot",
		Short: "WhatsApp receptionist for a barber shop",
		Long: `barberbot receives Evolution API webhooks, waits for the customer to finish
typing, and answers with an AI assistant that can call shop tools.

Examples:
  barberbot serve
  barberbot serve --config /etc/barberbot/config.yaml
  barberbot check`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newCheckCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultPath, "path to the config file")

	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	return config.Load(path)
}
