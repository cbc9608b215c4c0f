package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the petcare CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "petcare",
		Short: "Pet care booking backend with realtime updates",
		Long: `petcare serves the booking API together with its realtime
surfaces: a WebSocket channel, a server-sent event stream and outbound
webhooks. Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
