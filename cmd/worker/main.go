package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hfcloud/console/internal/app"
	"hfcloud/console/internal/config"
	"hfcloud/console/internal/log"
	"hfcloud/console/internal/queue"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:          "console-worker",
		Short:        "Consume the maintenance stream (session sweep, config refresh)",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./config.yaml)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	if cfg.Redis.Addr == "" {
		return errors.New("redis.addr is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialise application")
		return err
	}
	defer a.Close()

	a.Resolver.Load(ctx)

	consumer := queue.NewConsumer(
		a.Redis,
		cfg.Redis.Stream,
		cfg.Redis.Group,
		cfg.Redis.Consumer,
		cfg.Queue.ClaimInterval,
		logger,
		a.Processor,
	)

	logger.Info().
		Str("group", cfg.Redis.Group).
		Msg("worker started")

	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("consumer stopped unexpectedly")
		return err
	}

	logger.Info().Msg("worker exited cleanly")
	return nil
}
