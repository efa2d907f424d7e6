package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/ternarybob/profiler-e2e/internal/models"
	"github.com/ternarybob/profiler-e2e/internal/services/scheduler"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the scenarios on a schedule against a long-running dashboard",
	RunE:  runWatch,
}

var (
	watchSchedule string
	watchNow      bool
)

func init() {
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "Cron schedule (overrides config), e.g. \"@every 15m\"")
	watchCmd.Flags().BoolVar(&watchNow, "now", false, "Run once immediately on start")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchSchedule != "" {
		config.Watch.Schedule = watchSchedule
	}

	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	service, err := scheduler.NewService(config.Watch.Schedule, func(ctx context.Context) (bool, error) {
		outcome, err := application.RunSuite(ctx, models.TriggerWatch, nil)
		if err != nil {
			return false, err
		}
		return outcome.Result.Passed(), nil
	}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := service.Start(ctx); err != nil {
		return err
	}
	if watchNow {
		if err := service.Trigger(); err != nil {
			logger.Warn().Err(err).Msg("Initial run not started")
		}
	}

	logger.Info().Str("schedule", config.Watch.Schedule).Msg("Watching dashboard - Press Ctrl+C to stop")
	<-ctx.Done()
	logger.Info().Msg("Interrupt signal received")

	service.Stop()

	status := service.Status()
	logger.Info().
		Int("runs", status.Runs).
		Int("failures", status.Failures).
		Int("skipped", status.Skipped).
		Msg("Watch stopped")
	return nil
}
