// Package main is the terminal chat client.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	app := &client{}

	rootCmd := &cobra.Command{
		Use:           "chat",
		Short:         "Chat with the assistant from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(configPath)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.teardown()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runTUI(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to the client config file")

	rootCmd.AddCommand(
		newListCmd(app),
		newNewCmd(app),
		newSendCmd(app),
		newTokenCmd(app),
		newLogoutCmd(app),
	)
	return rootCmd
}
