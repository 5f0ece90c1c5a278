package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"hfcloud/console/internal/app"
	"hfcloud/console/internal/jobs"
	"hfcloud/console/internal/server"
	"hfcloud/console/internal/tasks"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the maintenance scheduler",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialise application")
		return err
	}
	defer a.Close()

	if err := a.Seed(ctx); err != nil {
		logger.Error().Err(err).Msg("seed failed")
		return err
	}

	cfgNow, source := a.Resolver.Load(ctx)
	logger.Info().Str("source", string(source)).Str("system_name", cfgNow.SystemName).Msg("system config loaded")

	scheduler := jobs.NewScheduler(a.Redis, cfg.Redis.Stream, a.Processor, logger)
	if err := scheduler.Start(
		jobs.Schedule{Spec: cfg.Sessions.SweepSchedule, Task: tasks.TypeSessionSweep},
		jobs.Schedule{Spec: cfg.Sessions.ConfigRefreshSchedule, Task: tasks.TypeConfigRefresh},
	); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	httpServer := server.NewHTTPServer(cfg, logger, a.Handlers())

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	return waitForShutdown(logger, httpServer, scheduler, errCh)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, errCh <-chan error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error().Err(serveErr).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	<-scheduler.Stop().Done()

	logger.Info().Msg("server exited cleanly")
	return serveErr
}
