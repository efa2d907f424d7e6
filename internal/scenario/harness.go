package scenario

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/profiler-e2e/internal/artifacts"
	"github.com/ternarybob/profiler-e2e/internal/browser"
	"github.com/ternarybob/profiler-e2e/internal/common"
	"github.com/ternarybob/profiler-e2e/internal/dashboard"
	"github.com/ternarybob/profiler-e2e/internal/interact"
	"github.com/ternarybob/profiler-e2e/internal/lifecycle"
	"github.com/ternarybob/profiler-e2e/internal/wait"
)

// JobsAPI reads server-side session state
type JobsAPI interface {
	Jobs(ctx context.Context) (dashboard.Jobs, error)
}

// StreamProber checks a session's terminal stream
type StreamProber interface {
	Probe(ctx context.Context, key string, bound time.Duration) (dashboard.StreamResult, error)
}

// Runtime reaches the application's container
type Runtime interface {
	artifacts.LogSource
	Exec(ctx context.Context, commandLine string) (string, error)
}

// Harness holds everything a step needs: the page, the waits and the
// evidence collected so far. It is owned by one Sequencer run.
type Harness struct {
	Config    *common.Config
	Page      browser.Page
	Poller    *wait.Poller
	Interact  *interact.Interactor
	Artifacts *artifacts.Collector
	Tracker   *lifecycle.Tracker
	Selectors lifecycle.Selectors
	API       JobsAPI      // nil disables API cross-checks
	Stream    StreamProber // nil disables stream probes
	Runtime   Runtime      // nil when the container runtime is disabled
	Logger    arbor.ILogger

	mu      sync.Mutex
	cleanup []func()
	logs    artifacts.LogCollection
	excerpt string
}

// NewHarness wires a harness around page
func NewHarness(config *common.Config, page browser.Page, logger arbor.ILogger) *Harness {
	poller := wait.NewPoller(config.WaitTimeoutDuration(), config.PollIntervalDuration(), logger)
	return &Harness{
		Config:    config,
		Page:      page,
		Poller:    poller,
		Interact:  interact.New(page, poller, logger),
		Artifacts: artifacts.NewCollector(config.Artifacts.ScreenshotDir, logger),
		Tracker:   lifecycle.NewTracker(),
		Selectors: lifecycle.SelectorsFrom(config.Dashboard),
		Logger:    logger,
	}
}

// AddCleanup registers fn to run when the harness is closed. Cleanups run
// in reverse order of registration.
func (h *Harness) AddCleanup(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanup = append(h.cleanup, fn)
}

// Close runs registered cleanups once
func (h *Harness) Close() {
	h.mu.Lock()
	cleanup := h.cleanup
	h.cleanup = nil
	h.mu.Unlock()

	for i := len(cleanup) - 1; i >= 0; i-- {
		cleanup[i]()
	}
}

// Screenshot captures evidence under name; failures are warnings
func (h *Harness) Screenshot(ctx context.Context, name string) string {
	return h.Artifacts.Capture(ctx, h.Page, name)
}

// Load navigates to the entry URL and waits until the dashboard has
// rendered its heading and restored its session tabs. The page restores
// active sessions from an asynchronous jobs fetch, so with the jobs API
// wired Load waits for at least that many tabs; without it the tab count
// must hold for the restore window.
func (h *Harness) Load(ctx context.Context) error {
	if err := h.Page.Navigate(ctx, h.Config.EntryURL); err != nil {
		return err
	}
	h.Tracker.Reset()

	if _, err := wait.Until(ctx, h.Poller, h.Page, wait.ElementPresent(browser.CSS(h.Config.Dashboard.HeadingSel))); err != nil {
		return err
	}

	tabSel := h.Config.Dashboard.TabSel
	if active, ok := h.activeKeys(ctx); ok {
		if _, err := wait.Until(ctx, h.Poller, h.Page, wait.CountAtLeast(tabSel, len(active))); err != nil {
			return err
		}
		if _, err := wait.Until(ctx, h.Poller, h.Page, wait.CountStable(tabSel)); err != nil {
			return err
		}
	} else {
		if _, err := wait.Until(ctx, h.Poller, h.Page, wait.CountSteady(tabSel, h.Config.Settle.RestoreDuration())); err != nil {
			return err
		}
	}

	snapshot, err := h.Observe(ctx)
	if err != nil {
		return err
	}
	h.Logger.Debug().Str("tabs", snapshot.Summary()).Msg("Dashboard ready")
	return nil
}

// activeKeys returns the job keys the server reports as active. ok is
// false when the jobs API is not wired or could not be read.
func (h *Harness) activeKeys(ctx context.Context) (keys []string, ok bool) {
	if h.API == nil {
		return nil, false
	}
	jobs, err := h.API.Jobs(ctx)
	if err != nil {
		h.Artifacts.Warn(artifacts.Warning{Op: "api-check", Target: h.Config.Dashboard.JobsEndpoint, Err: err})
		return nil, false
	}
	return jobs.Active.Keys(), true
}

// Observe captures the session tabs and feeds them to the tracker
func (h *Harness) Observe(ctx context.Context) (lifecycle.Snapshot, error) {
	snapshot, err := lifecycle.Capture(ctx, h.Page, h.Selectors)
	if err != nil {
		return lifecycle.Snapshot{}, fmt.Errorf("failed to capture sessions: %w", err)
	}
	if err := h.Tracker.Observe(snapshot); err != nil {
		return snapshot, err
	}
	return snapshot, nil
}

// StartSession clicks the start action and waits for exactly one new
// recording session. Sessions rendered before the click and sessions the
// server already had active are both excluded, so a restore landing
// after the click is not taken for the new session.
func (h *Harness) StartSession(ctx context.Context) (lifecycle.Tab, error) {
	before, err := h.Observe(ctx)
	if err != nil {
		return lifecycle.Tab{}, err
	}
	known := before.Keys()
	if active, ok := h.activeKeys(ctx); ok {
		known = append(known, active...)
	}

	if err := h.Interact.ClickWithRetry(ctx, browser.Query{Selector: h.Config.Dashboard.ButtonSel, Text: h.Config.Dashboard.StartLabel}); err != nil {
		return lifecycle.Tab{}, err
	}

	if _, err := wait.Until(ctx, h.Poller, h.Page, wait.TabCountExceeds(h.Config.Dashboard.TabSel, before.Count())); err != nil {
		return lifecycle.Tab{}, err
	}
	tab, err := wait.Until(ctx, h.Poller, h.Page, lifecycle.SessionStarted(h.Selectors, known))
	if err != nil {
		return tab, err
	}

	after, err := h.Observe(ctx)
	if err != nil {
		return tab, err
	}

	h.Logger.Info().Str("job_key", tab.Key).Int("tabs", after.Count()).Msg("✓ Session recording")
	return tab, nil
}

var queriesExecuted = regexp.MustCompile(`(\d+)\s+queries executed`)

// RunQueries triggers the demo queries and waits for the result message.
// It returns the reported query count, or -1 when the message has no count.
func (h *Harness) RunQueries(ctx context.Context) (int, error) {
	if err := h.Interact.ClickWithRetry(ctx, browser.Query{Selector: h.Config.Dashboard.ButtonSel, Text: h.Config.Dashboard.QueriesLabel}); err != nil {
		return 0, err
	}

	text, err := wait.Until(ctx, h.Poller, h.Page, wait.TextAppears(h.Config.Dashboard.QueriesDone))
	if err != nil {
		return 0, err
	}

	count := -1
	if m := queriesExecuted.FindStringSubmatch(text); m != nil {
		count, _ = strconv.Atoi(m[1])
	}
	h.Logger.Info().Int("queries", count).Msg("✓ Demo queries executed")
	return count, nil
}

// StopSession stops the visible session through the robust click path and
// confirms the session with key reached Stopped
func (h *Harness) StopSession(ctx context.Context, key string) error {
	target := interact.Button(h.Config.Dashboard.StopLabel, h.Config.Dashboard.StopTransition).In(h.Config.Dashboard.ButtonSel)
	if _, err := h.Interact.ClickUntil(ctx, target); err != nil {
		return err
	}

	if _, err := wait.Until(ctx, h.Poller, h.Page, wait.TextAppears(h.Config.Dashboard.StoppedText)); err != nil {
		return err
	}
	if _, err := wait.Until(ctx, h.Poller, h.Page, lifecycle.SessionReaches(h.Selectors, key, lifecycle.Stopped)); err != nil {
		return err
	}
	if _, err := h.Observe(ctx); err != nil {
		return err
	}

	h.Logger.Info().Str("job_key", key).Msg("✓ Session stopped")
	return nil
}

// terminalRows returns the selector for one session's terminal output
func (h *Harness) terminalRows(key string) string {
	return fmt.Sprintf(`[id="terminal-%s"] %s`, key, h.Config.Dashboard.TerminalRows)
}

// TerminalText reads a session's terminal output
func (h *Harness) TerminalText(ctx context.Context, key string) string {
	texts, err := h.Page.Texts(ctx, h.terminalRows(key))
	if err != nil {
		return ""
	}
	return strings.Join(texts, "\n")
}

// SettleTerminal waits briefly for a session's terminal to show text
func (h *Harness) SettleTerminal(ctx context.Context, key, text string, bound time.Duration) error {
	_, err := wait.Settle(ctx, h.Poller, h.Page, wait.SelectorTextContains(h.terminalRows(key), text), bound)
	return err
}

// SettleTerminalOutput waits briefly for new terminal output after baseline
func (h *Harness) SettleTerminalOutput(ctx context.Context, key, baseline string, bound time.Duration) error {
	_, err := wait.Settle(ctx, h.Poller, h.Page, wait.SelectorTextChanged(h.terminalRows(key), baseline), bound)
	return err
}

// CrossCheckAPI verifies every tab recording in the UI is active on the
// server. An unreachable API is a warning; a disagreement is a failure.
func (h *Harness) CrossCheckAPI(ctx context.Context, snapshot lifecycle.Snapshot) error {
	if h.API == nil {
		return nil
	}

	jobs, err := h.API.Jobs(ctx)
	if err != nil {
		h.Artifacts.Warn(artifacts.Warning{Op: "api-check", Target: h.Config.Dashboard.JobsEndpoint, Err: err})
		return nil
	}

	var recording []string
	for _, tab := range snapshot.InState(lifecycle.Recording) {
		if tab.Key != "" {
			recording = append(recording, tab.Key)
		}
	}

	if m := dashboard.CompareRecording(recording, jobs); !m.Empty() {
		return m
	}

	h.Logger.Info().
		Int("recording", len(recording)).
		Int("active", len(jobs.Active)).
		Int("completed", len(jobs.Completed)).
		Msg("✓ Server sessions match UI")
	return nil
}

// ProbeStream checks that the session's terminal stream opens. The result
// is diagnostic only.
func (h *Harness) ProbeStream(ctx context.Context, key string) {
	if h.Stream == nil {
		return
	}

	result, err := h.Stream.Probe(ctx, key, h.Config.Settle.StreamDuration())
	if err != nil {
		h.Artifacts.Warn(artifacts.Warning{Op: "stream-probe", Target: result.URL, Err: err})
		return
	}
	h.Logger.Info().
		Str("job_key", key).
		Bool("delivered", result.Delivered).
		Str("elapsed", result.Elapsed.Round(time.Millisecond).String()).
		Msg("✓ Terminal stream connected")
}

// CollectLogs copies server-side log files into the log directory
func (h *Harness) CollectLogs(ctx context.Context) artifacts.LogCollection {
	if h.Runtime == nil {
		h.Artifacts.Warn(artifacts.Warning{Op: "collect-logs", Target: h.Config.Runtime.LogVolume, Err: ErrRuntimeDisabled})
		return artifacts.LogCollection{Dir: h.Config.Artifacts.LogDir}
	}

	collection := artifacts.CollectLogs(ctx, h.Runtime, h.Config.Runtime.LogVolume, h.Config.Artifacts.LogDir, h.Logger)
	for _, w := range collection.Warnings {
		h.Artifacts.Warn(w)
	}
	h.logs = collection
	return collection
}

// VerifyModule asserts the configured native module is listed by the
// runtime, then archives an excerpt of the broader diagnostic dump. Excerpt
// failures are warnings.
func (h *Harness) VerifyModule(ctx context.Context) error {
	if h.Runtime == nil {
		return fmt.Errorf("%w: module check needs the container runtime", ErrSkipped)
	}
	rc := h.Config.Runtime

	modules, err := h.Runtime.Exec(ctx, rc.ModulesCommand)
	if err != nil {
		return fmt.Errorf("failed to list modules: %w", err)
	}
	if !containsLine(modules, rc.ModuleName) {
		return fmt.Errorf("%w: %q not in output of %q", ErrModuleMissing, rc.ModuleName, rc.ModulesCommand)
	}
	h.Logger.Info().Str("module", rc.ModuleName).Msg("✓ Extension loaded")

	info, err := h.Runtime.Exec(ctx, rc.InfoCommand)
	if err != nil {
		h.Artifacts.Warn(artifacts.Warning{Op: "excerpt", Target: rc.InfoCommand, Err: err})
		return nil
	}

	excerpt := artifacts.Excerpt(info, rc.ModuleName, h.Config.Artifacts.ExcerptLimit)
	path, err := artifacts.WriteExcerpt(h.Config.Artifacts.LogDir, rc.ExcerptFile, excerpt)
	if err != nil {
		h.Artifacts.Warn(artifacts.Warning{Op: "excerpt", Target: rc.ExcerptFile, Err: err})
		return nil
	}
	h.excerpt = path
	h.Logger.Info().Str("path", path).Msg("✓ Extension info saved")
	return nil
}

// containsLine reports whether any line of output is exactly module,
// ignoring case and surrounding space
func containsLine(output, module string) bool {
	want := strings.ToLower(strings.TrimSpace(module))
	for _, line := range strings.Split(output, "\n") {
		if strings.ToLower(strings.TrimSpace(line)) == want {
			return true
		}
	}
	return false
}
