package main

import (
	"github.com/spf13/cobra"
	"github.com/ternarybob/profiler-e2e/internal/models"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the dashboard scenarios once",
	Long:  `Runs the numbered scenarios in order against the dashboard, writes screenshots, logs and a report, and exits 1 if any scenario failed.`,
	RunE:  runRun,
}

var (
	runScenarios []int
	runHeaded    bool
)

func init() {
	runCmd.Flags().IntSliceVarP(&runScenarios, "scenario", "s", nil, "Scenario numbers to run (default all), e.g. -s 1,2,4")
	runCmd.Flags().BoolVar(&runHeaded, "headed", false, "Show the browser window")
}

func runRun(cmd *cobra.Command, args []string) error {
	if runHeaded {
		config.Browser.Headless = false
	}

	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := signalContext()
	defer cancel()

	outcome, err := application.RunSuite(ctx, models.TriggerCLI, runScenarios)
	if err != nil {
		return err
	}

	for _, f := range outcome.Result.Failures() {
		logger.Error().Msg(f.Error())
	}
	if !outcome.Result.Passed() {
		return errSuiteFailed
	}
	return nil
}
