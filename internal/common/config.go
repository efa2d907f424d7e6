package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the harness configuration
type Config struct {
	EntryURL     string          `toml:"entry_url" validate:"required,url"` // Dashboard entry URL, all navigation targets it
	WaitTimeout  string          `toml:"wait_timeout" validate:"required"`  // e.g., "30s" - bound applied to every wait
	PollInterval string          `toml:"poll_interval" validate:"required"` // e.g., "250ms" - condition poll interval
	Settle       SettleConfig    `toml:"settle"`
	Browser      BrowserConfig   `toml:"browser"`
	Artifacts    ArtifactsConfig `toml:"artifacts"`
	Runtime      RuntimeConfig   `toml:"runtime"`
	Dashboard    DashboardConfig `toml:"dashboard"`
	Store        StoreConfig     `toml:"store"`
	Watch        WatchConfig     `toml:"watch"`
	Logging      LoggingConfig   `toml:"logging"`
}

// SettleConfig bounds the secondary waits used after a primary condition is confirmed.
// Each settle waits for an explicit condition and gives up after the duration.
type SettleConfig struct {
	Terminal string `toml:"terminal"` // e.g., "2s" - terminal welcome/connection output
	Stream   string `toml:"stream"`   // e.g., "4s" - streamed query lines after a query run
	Render   string `toml:"render"`   // e.g., "1s" - secondary UI updates after a state change
	Restore  string `toml:"restore"`  // e.g., "1s" - tab count must hold this long after a reload when the jobs API is not wired
}

type BrowserConfig struct {
	Headless      bool   `toml:"headless"`
	NoSandbox     bool   `toml:"no_sandbox"`
	DisableDevShm bool   `toml:"disable_dev_shm"`
	WindowWidth   int    `toml:"window_width" validate:"gte=320"`
	WindowHeight  int    `toml:"window_height" validate:"gte=240"`
	ExecPath      string `toml:"exec_path"` // Optional Chrome/Chromium binary, default lookup otherwise
}

type ArtifactsConfig struct {
	ScreenshotDir string `toml:"screenshot_dir" validate:"required"`
	LogDir        string `toml:"log_dir" validate:"required"`
	ReportDir     string `toml:"report_dir" validate:"required"`
	ExcerptLimit  int    `toml:"excerpt_limit" validate:"gte=0"` // Max chars of diagnostic dump kept when no section matches
}

// RuntimeConfig describes how to reach the application container.
// Commands are parsed with shell quoting rules.
type RuntimeConfig struct {
	Enabled        bool   `toml:"enabled"`
	ComposeCommand string `toml:"compose_command"` // e.g., "docker compose -f docker-compose.yml"
	DockerCommand  string `toml:"docker_command"`  // e.g., "docker"
	ProjectDir     string `toml:"project_dir"`     // Working directory for compose commands
	Service        string `toml:"service"`         // Compose service running the application
	LogVolume      string `toml:"log_volume"`      // Server-side artifact directory
	ModuleName     string `toml:"module_name"`     // Native component that must be loaded
	ModulesCommand string `toml:"modules_command"` // Module listing command run inside the service
	InfoCommand    string `toml:"info_command"`    // Broader diagnostic dump run inside the service
	ExcerptFile    string `toml:"excerpt_file"`    // File name for the archived excerpt
}

// DashboardConfig holds the labels and selectors of the dashboard under test
type DashboardConfig struct {
	ProductName    string `toml:"product_name" validate:"required"`
	HeadingSel     string `toml:"heading_selector" validate:"required"`
	ButtonSel      string `toml:"button_selector" validate:"required"`
	TabSel         string `toml:"tab_selector" validate:"required"`
	PanelSel       string `toml:"panel_selector" validate:"required"`
	StatusSel      string `toml:"status_selector" validate:"required"`
	KeySel         string `toml:"key_selector" validate:"required"`
	TerminalSel    string `toml:"terminal_selector" validate:"required"`
	TerminalRows   string `toml:"terminal_rows_selector" validate:"required"`
	StartLabel     string `toml:"start_label" validate:"required"`
	QueriesLabel   string `toml:"queries_label" validate:"required"`
	StopLabel      string `toml:"stop_label" validate:"required"`
	StopTransition string `toml:"stop_transitional_label"`
	QueriesDone    string `toml:"queries_done_text" validate:"required"`
	RecordingText  string `toml:"recording_text" validate:"required"`
	StoppedText    string `toml:"stopped_text" validate:"required"`
	JobsEndpoint   string `toml:"jobs_endpoint"`   // e.g., "/api/profiler/jobs" - empty disables API cross-checks
	StreamEndpoint string `toml:"stream_endpoint"` // e.g., "/ws/logs/" - empty disables stream probes
}

// StoreConfig represents the run ledger configuration
type StoreConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // Badger directory
}

type WatchConfig struct {
	Schedule string `toml:"schedule"` // Cron spec or descriptor, e.g., "@every 30m"
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "console", "file"
	File   string   `toml:"file"`   // Log file name, relative to the report directory
}

// NewDefaultConfig returns the defaults for a local demo environment
func NewDefaultConfig() *Config {
	return &Config{
		EntryURL:     "http://localhost:8080",
		WaitTimeout:  "30s",
		PollInterval: "250ms",
		Settle: SettleConfig{
			Terminal: "2s",
			Stream:   "4s",
			Render:   "1s",
			Restore:  "1s",
		},
		Browser: BrowserConfig{
			Headless:      true,
			NoSandbox:     true,
			DisableDevShm: true,
			WindowWidth:   1400,
			WindowHeight:  900,
		},
		Artifacts: ArtifactsConfig{
			ScreenshotDir: "screenshots",
			LogDir:        "logs",
			ReportDir:     "results",
			ExcerptLimit:  2000,
		},
		Runtime: RuntimeConfig{
			Enabled:        true,
			ComposeCommand: "docker compose -f docker-compose.yml",
			DockerCommand:  "docker",
			ProjectDir:     ".",
			Service:        "app",
			LogVolume:      "/var/profiler",
			ModuleName:     "mariadb_profiler",
			ModulesCommand: "php -m",
			InfoCommand:    "php -r 'phpinfo(INFO_MODULES);'",
			ExcerptFile:    "phpinfo_extension.txt",
		},
		Dashboard: DashboardConfig{
			ProductName:    "MariaDB Query Profiler",
			HeadingSel:     "h1",
			ButtonSel:      "button",
			TabSel:         "div.border-b.overflow-x-auto > button",
			PanelSel:       "div.rounded-b-lg",
			StatusSel:      "span.text-xs:not(.font-mono)",
			KeySel:         "span.font-mono",
			TerminalSel:    `div[id^="terminal-"]`,
			TerminalRows:   ".xterm-rows",
			StartLabel:     "Start Session",
			QueriesLabel:   "Run Demo Queries",
			StopLabel:      "Stop",
			StopTransition: "Stopping",
			QueriesDone:    "queries executed",
			RecordingText:  "RECORDING",
			StoppedText:    "STOPPED",
			JobsEndpoint:   "/api/profiler/jobs",
			StreamEndpoint: "/ws/logs/",
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    "results/ledger",
		},
		Watch: WatchConfig{
			Schedule: "@every 30m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"console", "file"},
			File:   "harness.log",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI overrides are applied by the caller.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// DEMO_URL, SCREENSHOT_DIR and LOG_OUTPUT_DIR are kept for CI compatibility.
func applyEnvOverrides(config *Config) {
	if url := os.Getenv("DEMO_URL"); url != "" {
		config.EntryURL = url
	}
	if dir := os.Getenv("SCREENSHOT_DIR"); dir != "" {
		config.Artifacts.ScreenshotDir = dir
	}
	if dir := os.Getenv("LOG_OUTPUT_DIR"); dir != "" {
		config.Artifacts.LogDir = dir
	}
	if dir := os.Getenv("PROFILER_E2E_REPORT_DIR"); dir != "" {
		config.Artifacts.ReportDir = dir
	}

	if timeout := os.Getenv("PROFILER_E2E_WAIT_TIMEOUT"); timeout != "" {
		config.WaitTimeout = timeout
	}
	if interval := os.Getenv("PROFILER_E2E_POLL_INTERVAL"); interval != "" {
		config.PollInterval = interval
	}

	if headless := os.Getenv("PROFILER_E2E_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if chrome := os.Getenv("PROFILER_E2E_CHROME_PATH"); chrome != "" {
		config.Browser.ExecPath = chrome
	}

	if enabled := os.Getenv("PROFILER_E2E_RUNTIME_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Runtime.Enabled = e
		}
	}
	if compose := os.Getenv("PROFILER_E2E_COMPOSE_COMMAND"); compose != "" {
		config.Runtime.ComposeCommand = compose
	}
	if dir := os.Getenv("PROFILER_E2E_PROJECT_DIR"); dir != "" {
		config.Runtime.ProjectDir = dir
	}

	if level := os.Getenv("PROFILER_E2E_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("PROFILER_E2E_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if enabled := os.Getenv("PROFILER_E2E_STORE_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Store.Enabled = e
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config (highest priority)
func ApplyFlagOverrides(config *Config, entryURL string, waitTimeout string, logLevel string) {
	if entryURL != "" {
		config.EntryURL = entryURL
	}
	if waitTimeout != "" {
		config.WaitTimeout = waitTimeout
	}
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
}

// Validate checks struct tags and duration strings
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"wait_timeout":    c.WaitTimeout,
		"poll_interval":   c.PollInterval,
		"settle.terminal": c.Settle.Terminal,
		"settle.stream":   c.Settle.Stream,
		"settle.render":   c.Settle.Render,
		"settle.restore":  c.Settle.Restore,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid configuration: %s %q: %w", key, value, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid configuration: %s must not be negative", key)
		}
	}

	if c.Watch.Schedule != "" {
		if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
			return fmt.Errorf("invalid configuration: watch.schedule %q: %w", c.Watch.Schedule, err)
		}
	}

	return nil
}

// WaitTimeoutDuration returns the global wait bound, 30s when unparsable
func (c *Config) WaitTimeoutDuration() time.Duration {
	return parseDurationOr(c.WaitTimeout, 30*time.Second)
}

// PollIntervalDuration returns the poll interval, 250ms when unparsable
func (c *Config) PollIntervalDuration() time.Duration {
	return parseDurationOr(c.PollInterval, 250*time.Millisecond)
}

func (s SettleConfig) TerminalDuration() time.Duration {
	return parseDurationOr(s.Terminal, 2*time.Second)
}

func (s SettleConfig) StreamDuration() time.Duration {
	return parseDurationOr(s.Stream, 4*time.Second)
}

func (s SettleConfig) RenderDuration() time.Duration {
	return parseDurationOr(s.Render, time.Second)
}

func (s SettleConfig) RestoreDuration() time.Duration {
	return parseDurationOr(s.Restore, time.Second)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
