package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/profiler-e2e/internal/browser"
	"github.com/ternarybob/profiler-e2e/internal/lifecycle"
)

// Lines the dashboard writes into a session terminal
const (
	terminalBanner    = "Profiler session"
	terminalConnected = "--- Connected ---"
)

// Canonical returns the standard dashboard scenarios, numbered 1 to 7.
// Each call builds fresh step state, so the result can be run repeatedly.
func Canonical() []Scenario {
	return []Scenario{
		pageLoad(),
		startSession(),
		runQueries(),
		stopSession(),
		multipleSessions(),
		collectArtifacts(),
		verifyExtension(),
	}
}

func load() Step {
	return Step{Name: "load dashboard", Run: func(ctx context.Context, h *Harness) error {
		return h.Load(ctx)
	}}
}

func screenshot(name string) Step {
	return Step{Name: "screenshot " + name, Run: func(ctx context.Context, h *Harness) error {
		h.Screenshot(ctx, name)
		return nil
	}}
}

func crossCheck() Step {
	return Step{Name: "cross-check server sessions", Run: func(ctx context.Context, h *Harness) error {
		snapshot, err := h.Observe(ctx)
		if err != nil {
			return err
		}
		return h.CrossCheckAPI(ctx, snapshot)
	}}
}

// session carries the tab confirmed by a start step to later steps
type session struct {
	tab lifecycle.Tab
}

func (s *session) start() Step {
	return Step{Name: "start session", Run: func(ctx context.Context, h *Harness) error {
		tab, err := h.StartSession(ctx)
		if err != nil {
			return err
		}
		s.tab = tab
		return h.SettleTerminal(ctx, tab.Key, terminalBanner, h.Config.Settle.RenderDuration())
	}}
}

func queries() Step {
	return Step{Name: "run demo queries", Run: func(ctx context.Context, h *Harness) error {
		_, err := h.RunQueries(ctx)
		return err
	}}
}

func pageLoad() Scenario {
	return Scenario{Number: 1, Name: "page load", Steps: []Step{
		load(),
		screenshot("01_initial_page_load"),
		{Name: "assert title", Run: func(ctx context.Context, h *Harness) error {
			title, err := h.Page.Title(ctx)
			if err != nil {
				return err
			}
			if !strings.Contains(title, h.Config.Dashboard.ProductName) {
				return fmt.Errorf("%w: title %q does not contain %q", ErrAssertion, title, h.Config.Dashboard.ProductName)
			}
			return nil
		}},
		{Name: "assert heading", Run: func(ctx context.Context, h *Harness) error {
			heading, err := h.Page.Inspect(ctx, browser.CSS(h.Config.Dashboard.HeadingSel))
			if err != nil {
				return err
			}
			if !strings.Contains(heading.Text, h.Config.Dashboard.ProductName) {
				return fmt.Errorf("%w: heading %q does not contain %q", ErrAssertion, heading.Text, h.Config.Dashboard.ProductName)
			}
			return nil
		}},
	}}
}

func startSession() Scenario {
	s := &session{}
	return Scenario{Number: 2, Name: "start session", Steps: []Step{
		load(),
		s.start(),
		screenshot("02_session_started"),
		{Name: "assert recording", Run: func(ctx context.Context, h *Harness) error {
			body, err := h.Page.BodyText(ctx)
			if err != nil {
				return err
			}
			if !strings.Contains(body, h.Config.Dashboard.RecordingText) {
				return fmt.Errorf("%w: page does not show %s", ErrAssertion, h.Config.Dashboard.RecordingText)
			}
			return nil
		}},
		{Name: "terminal connected", Run: func(ctx context.Context, h *Harness) error {
			h.ProbeStream(ctx, s.tab.Key)
			return h.SettleTerminal(ctx, s.tab.Key, terminalConnected, h.Config.Settle.TerminalDuration())
		}},
		screenshot("03_terminal_connected"),
		crossCheck(),
	}}
}

func runQueries() Scenario {
	s := &session{}
	var before string
	return Scenario{Number: 3, Name: "run queries", Steps: []Step{
		load(),
		s.start(),
		{Name: "read terminal", Run: func(ctx context.Context, h *Harness) error {
			before = h.TerminalText(ctx, s.tab.Key)
			return nil
		}},
		queries(),
		screenshot("04_queries_executed"),
		{Name: "terminal output", Run: func(ctx context.Context, h *Harness) error {
			return h.SettleTerminalOutput(ctx, s.tab.Key, before, h.Config.Settle.StreamDuration())
		}},
		screenshot("05_terminal_with_queries"),
	}}
}

func stopSession() Scenario {
	s := &session{}
	return Scenario{Number: 4, Name: "stop session", Steps: []Step{
		load(),
		s.start(),
		queries(),
		{Name: "stop session", Run: func(ctx context.Context, h *Harness) error {
			return h.StopSession(ctx, s.tab.Key)
		}},
		screenshot("06_session_stopped"),
		{Name: "assert stopped", Run: func(ctx context.Context, h *Harness) error {
			if state := h.Tracker.State(s.tab.Key); state != lifecycle.Stopped {
				return fmt.Errorf("%w: session %s is %s, want %s", ErrAssertion, s.tab.Key, state, lifecycle.Stopped)
			}
			return nil
		}},
		crossCheck(),
	}}
}

func multipleSessions() Scenario {
	first, second := &session{}, &session{}
	var before string
	return Scenario{Number: 5, Name: "multiple sessions", Steps: []Step{
		load(),
		first.start(),
		second.start(),
		{Name: "assert both recording", Run: func(ctx context.Context, h *Harness) error {
			snapshot, err := h.Observe(ctx)
			if err != nil {
				return err
			}
			if snapshot.Count() < 2 {
				return fmt.Errorf("%w: %d tabs, want at least 2", ErrAssertion, snapshot.Count())
			}
			for _, s := range []*session{first, second} {
				tab, ok := snapshot.ByKey(s.tab.Key)
				if !ok || tab.Status != lifecycle.Recording {
					return fmt.Errorf("%w: session %s not recording in %s", ErrAssertion, s.tab.Key, snapshot.Summary())
				}
			}
			before = h.TerminalText(ctx, second.tab.Key)
			return nil
		}},
		screenshot("07_multiple_sessions"),
		queries(),
		{Name: "terminal output", Run: func(ctx context.Context, h *Harness) error {
			return h.SettleTerminalOutput(ctx, second.tab.Key, before, h.Config.Settle.StreamDuration())
		}},
		screenshot("08_multiple_sessions_with_queries"),
		crossCheck(),
	}}
}

func collectArtifacts() Scenario {
	return Scenario{Number: 6, Name: "artifact collection", Steps: []Step{
		{Name: "collect logs", Run: func(ctx context.Context, h *Harness) error {
			h.CollectLogs(ctx)
			return nil
		}},
		load(),
		screenshot("09_final_state"),
	}}
}

func verifyExtension() Scenario {
	return Scenario{Number: 7, Name: "extension verification", Steps: []Step{
		{Name: "verify module", Run: func(ctx context.Context, h *Harness) error {
			return h.VerifyModule(ctx)
		}},
	}}
}
