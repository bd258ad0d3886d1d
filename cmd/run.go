package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/sparks1372/octopus-consumption-exporter/internal/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sync now and then on every scheduled trigger",
	Long: `Runs a sync cycle immediately, then sleeps until the next trigger of
sync.schedule (02:00 local time by default) and repeats until stopped.`,
	RunE: runDaemon,
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single sync cycle and exit",
	RunE:  runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to start exporter: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go handleShutdown(ctx, cancel, logger)

	errChan := make(chan error, 2)
	a.serveMetrics(ctx, errChan)
	if err := a.serveHealth(ctx, errChan); err != nil {
		logger.Fatalf("Failed to start health server: %v", err)
	}

	sched, err := scheduler.NewScheduler(cfg.Sync.Schedule, a.orchestrator.RunCycle, logger)
	if err != nil {
		logger.Fatalf("Failed to create scheduler: %v", err)
	}

	go func() {
		errChan <- sched.Run(ctx)
	}()

	err = <-errChan
	stopping := ctx.Err() != nil
	cancel()
	if err != nil && !stopping && !errors.Is(err, context.Canceled) {
		a.Close()
		logger.Fatalf("Service error: %v", err)
	}

	logger.Info("Exporter stopped")
	return nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to start exporter: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go handleShutdown(ctx, cancel, logger)

	if err := a.orchestrator.RunCycle(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Info("Sync interrupted")
			return nil
		}
		a.Close()
		logger.Fatalf("Sync failed: %v", err)
	}
	return nil
}
