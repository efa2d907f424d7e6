package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// AppName is the display name used in the banner and reports
const AppName = "Profiler E2E"

// PrintBanner displays the application banner and the effective target
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple(AppName, GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("entry_url", config.EntryURL).
		Str("wait_timeout", config.WaitTimeout).
		Bool("headless", config.Browser.Headless).
		Bool("runtime", config.Runtime.Enabled).
		Msg("Harness configured")
}
