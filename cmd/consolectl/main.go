package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var opts globalOptions

	rootCmd := &cobra.Command{
		Use:          "consolectl",
		Short:        "Operate the HFCloud console from a terminal",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", envOr("CONSOLECTL_SERVER", "http://localhost:8080/api"), "API base URL")
	rootCmd.PersistentFlags().StringVar(&opts.stateFile, "state", envOr("CONSOLECTL_STATE", defaultStatePath()), "Path to the local state file")

	rootCmd.AddCommand(
		newLoginCommand(&opts),
		newLogoutCommand(&opts),
		newWhoamiCommand(&opts),
		newSessionsCommand(&opts),
		newPasswdCommand(&opts),
		newConfigCommand(&opts),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
