package main

import (
	"github.com/spf13/cobra"
	"github.com/ternarybob/profiler-e2e/internal/scenario"
)

var collectLogsCmd = &cobra.Command{
	Use:   "collect-logs",
	Short: "Copy profiler logs out of the application container",
	Long:  `Copies the profiler log volume from the running application container into the log directory. A missing container is reported as a warning.`,
	RunE:  runCollectLogs,
}

var verifyExtensionCmd = &cobra.Command{
	Use:   "verify-extension",
	Short: "Check the profiler extension is loaded in the application container",
	RunE:  runVerifyExtension,
}

// containerHarness returns a harness with no browser, for commands that
// only talk to the container runtime
func containerHarness() (*scenario.Harness, func(), error) {
	application, err := newApp()
	if err != nil {
		return nil, nil, err
	}
	h := scenario.NewHarness(config, nil, logger)
	application.Wire(h)
	return h, func() { application.Close() }, nil
}

func runCollectLogs(cmd *cobra.Command, args []string) error {
	h, done, err := containerHarness()
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := signalContext()
	defer cancel()

	collection := h.CollectLogs(ctx)
	for _, f := range collection.Files {
		logger.Info().Str("file", f.Name).Int64("bytes", f.Size).Msg("Collected")
	}
	for _, w := range h.Artifacts.Warnings() {
		logger.Warn().Msg(w.Error())
	}
	return nil
}

func runVerifyExtension(cmd *cobra.Command, args []string) error {
	h, done, err := containerHarness()
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := signalContext()
	defer cancel()

	return h.VerifyModule(ctx)
}
