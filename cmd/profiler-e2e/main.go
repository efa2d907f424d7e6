// -----------------------------------------------------------------------
// Last Modified: Friday, 16th October 2026 4:05:12 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/profiler-e2e/internal/app"
	"github.com/ternarybob/profiler-e2e/internal/common"
)

// errSuiteFailed makes the process exit 1 without printing usage
var errSuiteFailed = errors.New("one or more scenarios failed")

var (
	// Command-line flags
	configFiles []string // Multiple --config flags supported
	entryURL    string
	waitTimeout string
	logLevel    string

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "profiler-e2e",
	Short:         "End-to-end harness for the MariaDB Query Profiler dashboard",
	Long:          `Drives a headless browser through the profiler dashboard's session lifecycle, collects screenshots and server-side logs, and verifies the profiler extension is loaded.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return setup()
	},
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (can be specified multiple times, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&entryURL, "url", "", "Dashboard entry URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&waitTimeout, "timeout", "", "Wait timeout, e.g. 45s (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")

	rootCmd.AddCommand(runCmd, watchCmd, collectLogsCmd, verifyExtensionCmd, historyCmd, versionCmd)
}

// setup runs the startup sequence (REQUIRED ORDER):
// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
// 2. Apply CLI overrides (highest priority)
// 3. Validate
// 4. Initialize logger
// 5. Print banner
func setup() error {
	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("profiler-e2e.toml"); err == nil {
			configFiles = append(configFiles, "profiler-e2e.toml")
		} else if _, err := os.Stat("deployments/local/profiler-e2e.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/profiler-e2e.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration files %v: %w", configFiles, err)
	}

	common.ApplyFlagOverrides(config, entryURL, waitTimeout, logLevel)

	if err := config.Validate(); err != nil {
		return err
	}

	logger = common.InitLogger(config)
	common.InstallCrashHandler(config.Artifacts.ReportDir)
	common.PrintBanner(config, logger)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("entry_url", config.EntryURL).
		Str("wait_timeout", config.WaitTimeout).
		Bool("runtime_enabled", config.Runtime.Enabled).
		Bool("store_enabled", config.Store.Enabled).
		Str("log_file", common.GetLogFilePath(logger)).
		Msg("Resolved configuration")

	return nil
}

// newApp initializes the shared collaborators; callers close it
func newApp() (*app.App, error) {
	application, err := app.New(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return application, nil
}

// signalContext is cancelled on interrupt or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	defer common.RecoverWithCrashFile()

	common.LoadVersionFromFile()

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errSuiteFailed) {
			common.GetLogger().Error().Err(err).Msg("Command failed")
		}
		os.Exit(1)
	}
}
