package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"hfcloud/console/internal/config"
	"hfcloud/console/internal/log"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "console-api",
		Short:        "HFCloud console API",
		Long:         `console-api serves the HFCloud console HTTP API and carries the database and account administration commands.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./config.yaml)")

	rootCmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newUserAddCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.AppConfig, zerolog.Logger, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, log.New(cfg.Environment, cfg.Logging.Level), nil
}
