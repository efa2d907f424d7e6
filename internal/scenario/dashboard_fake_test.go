package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/profiler-e2e/internal/browser"
	"github.com/ternarybob/profiler-e2e/internal/browser/browsertest"
	"github.com/ternarybob/profiler-e2e/internal/common"
	"github.com/ternarybob/profiler-e2e/internal/dashboard"
)

type fakeSession struct {
	key      string
	status   string // RECORDING, STOPPING or STOPPED
	output   []string
	stopRead int
}

// fakeDashboard renders a dashboard into a browsertest.Page and reacts to
// clicks the way the real page does: start appends a recording tab, demo
// queries stream lines into every recording terminal, and stop passes
// through a disabled "Stopping..." button before the tab shows STOPPED.
// A reload renders no tabs until the server's active sessions are
// restored restoreReads reads later; stopped sessions are not restored.
type fakeDashboard struct {
	page   *browsertest.Page
	config common.DashboardConfig

	// server holds every session the server knows about
	server []*fakeSession
	// sessions holds the tabs currently rendered
	sessions []*fakeSession
	active   int
	message  string
	// stopReads is how many reads a stop stays in progress
	stopReads int
	// restoreReads is how many reads after a reload the restore lands
	restoreReads int
	restoreAt    int
	pending      []*fakeSession
	reads        int
}

func newFakeDashboard(config common.DashboardConfig) *fakeDashboard {
	d := &fakeDashboard{
		page:         browsertest.New(),
		config:       config,
		active:       -1,
		stopReads:    3,
		restoreReads: 3,
	}
	d.page.OnNavigate = func(p *browsertest.Page, url string) {
		d.sessions = nil
		d.active = -1
		d.message = ""
		d.scheduleRestore(d.restoreReads)
		d.render(p)
	}
	d.page.OnClick = func(p *browsertest.Page, q browser.Query) {
		switch q.Text {
		case d.config.StartLabel:
			n := len(d.server) + 1
			s := &fakeSession{
				key:    fmt.Sprintf("f00d%04d-%04d", n, n),
				status: "RECORDING",
				output: []string{"--- Profiler session ---", "Connecting to log stream...", "--- Connected ---"},
			}
			d.server = append(d.server, s)
			d.sessions = append(d.sessions, s)
			d.active = len(d.sessions) - 1
		case d.config.QueriesLabel:
			d.message = "12 queries executed"
			for _, s := range d.sessions {
				if s.status == "RECORDING" {
					s.output = append(s.output, "SELECT * FROM users")
				}
			}
		}
		d.render(p)
	}
	d.page.OnCandidateClick = func(p *browsertest.Page, selector string, c browser.Candidate) {
		if d.active >= 0 && strings.TrimSpace(c.Text) == d.config.StopLabel {
			s := d.sessions[d.active]
			s.status = "STOPPING"
			s.stopRead = d.reads + d.stopReads
		}
		d.render(p)
	}
	d.page.OnRead = func(p *browsertest.Page, reads int) {
		d.reads = reads
		for _, s := range d.server {
			if s.status == "STOPPING" && reads >= s.stopRead {
				s.status = "STOPPED"
			}
		}
		if d.pending != nil && reads >= d.restoreAt {
			d.restore()
		}
		d.render(p)
	}
	d.page.Update(d.render)
	return d
}

// scheduleRestore queues the server's unrendered active sessions to appear
// after n more reads; callers hold the page lock
func (d *fakeDashboard) scheduleRestore(n int) {
	d.pending = nil
	for _, s := range d.server {
		if s.status != "STOPPED" && !d.rendered(s.key) {
			d.pending = append(d.pending, s)
		}
	}
	if n <= 0 {
		d.restore()
		return
	}
	d.restoreAt = d.reads + n
}

// restore renders pending sessions; callers hold the page lock
func (d *fakeDashboard) restore() {
	for _, s := range d.pending {
		if !d.rendered(s.key) {
			d.sessions = append(d.sessions, s)
		}
	}
	d.pending = nil
	if d.active < 0 && len(d.sessions) > 0 {
		d.active = 0
	}
}

func (d *fakeDashboard) rendered(key string) bool {
	for _, s := range d.sessions {
		if s.key == key {
			return true
		}
	}
	return false
}

// seed registers a recording session on the server only, as if another
// page had started it
func (d *fakeDashboard) seed(key string) {
	d.page.Update(func(p *browsertest.Page) {
		d.server = append(d.server, &fakeSession{
			key:    key,
			status: "RECORDING",
			output: []string{"--- Profiler session ---", "--- Connected ---"},
		})
	})
}

// restoreAfter makes the pending restore land after n more reads
func (d *fakeDashboard) restoreAfter(n int) {
	d.page.Update(func(p *browsertest.Page) {
		d.scheduleRestore(n)
	})
}

func (d *fakeDashboard) rowsSelector(key string) string {
	return fmt.Sprintf(`[id="terminal-%s"] %s`, key, d.config.TerminalRows)
}

// render projects the fake state onto the page; callers hold the page lock
func (d *fakeDashboard) render(p *browsertest.Page) {
	p.TitleText = "MariaDB Query Profiler - Demo"

	button := func(label string) browser.Query {
		return browser.Query{Selector: d.config.ButtonSel, Text: label}
	}
	p.Elements[browser.CSS(d.config.HeadingSel)] = browser.ElementState{Exists: true, Displayed: true, Text: "MariaDB Query Profiler"}
	p.Elements[button(d.config.StartLabel)] = browser.ElementState{Exists: true, Displayed: true, Text: d.config.StartLabel}
	p.Elements[button(d.config.QueriesLabel)] = browser.ElementState{Exists: true, Displayed: true, Text: d.config.QueriesLabel}

	candidates := []browser.Candidate{
		{Index: 0, Text: d.config.StartLabel, Visible: true},
		{Index: 1, Text: d.config.QueriesLabel, Visible: true},
	}

	var tabs, panels, body strings.Builder
	body.WriteString("MariaDB Query Profiler\nStart Session Run Demo Queries\n")
	if d.message != "" {
		body.WriteString(d.message + "\n")
	}
	if len(d.sessions) == 0 {
		body.WriteString("No active profiling sessions\n")
	}

	for i, s := range d.sessions {
		visible := i == d.active
		fmt.Fprintf(&tabs, `<button class="px-4 py-2 text-sm font-mono"><span>%s</span></button>`, s.key[:8])

		status, stop := s.status, d.config.StopLabel
		disabled, showStop := false, s.status != "STOPPED"
		if s.status == "STOPPING" {
			status, stop, disabled = "RECORDING", "Stopping...", true
		}
		disabledAttr := ""
		if disabled {
			disabledAttr = " disabled"
		}
		terminal := ""
		if s.status != "STOPPED" {
			terminal = fmt.Sprintf(`<div id="terminal-%s"><div class="xterm-rows">%s</div></div>`, s.key, strings.Join(s.output, "<br>"))
			p.TextsBy[d.rowsSelector(s.key)] = []string{strings.Join(s.output, "\n")}
		}
		fmt.Fprintf(&panels, `<div class="bg-gray-800 rounded-b-lg"><span class="text-xs font-mono">Job: %s</span><span class="text-xs">%s</span><button%s><span>%s</span></button>%s</div>`,
			s.key, status, disabledAttr, stop, terminal)

		candidates = append(candidates, browser.Candidate{
			Index:    len(candidates),
			Text:     stop,
			Visible:  visible && showStop,
			Disabled: disabled,
		})
		if visible {
			body.WriteString(s.key[:8] + "\nJob: " + s.key + " " + status + "\n")
		}
	}

	p.Counts[d.config.TabSel] = len(d.sessions)
	p.CandidatesBy[d.config.ButtonSel] = candidates
	p.Body = body.String()
	p.Document = fmt.Sprintf(`<html><body><h1>MariaDB Query Profiler</h1><div class="flex border-b border-gray-700 overflow-x-auto">%s</div>%s</body></html>`,
		tabs.String(), panels.String())
}

// active keys as the server would report them
func (d *fakeDashboard) activeKeys() []string {
	var keys []string
	d.page.Update(func(p *browsertest.Page) {
		for _, s := range d.server {
			if s.status != "STOPPED" {
				keys = append(keys, s.key)
			}
		}
	})
	return keys
}

type fakeAPI struct {
	dash *fakeDashboard
	err  error
	drop string // key to leave out of the active set
}

func (f *fakeAPI) Jobs(ctx context.Context) (dashboard.Jobs, error) {
	if f.err != nil {
		return dashboard.Jobs{}, f.err
	}
	jobs := dashboard.Jobs{Active: dashboard.JobSet{}, Completed: dashboard.JobSet{}}
	for _, key := range f.dash.activeKeys() {
		if key != f.drop {
			jobs.Active[key] = dashboard.Job{StartedAt: 1}
		}
	}
	return jobs, nil
}

type fakeStream struct {
	mu     sync.Mutex
	probed []string
}

func (f *fakeStream) Probe(ctx context.Context, key string, bound time.Duration) (dashboard.StreamResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probed = append(f.probed, key)
	return dashboard.StreamResult{URL: "ws://demo/ws/logs/" + key, Connected: true, Delivered: true}, nil
}

type fakeRuntime struct {
	containerErr error
	modules      string
	info         string
	execErr      error
	commands     []string
}

func (f *fakeRuntime) ContainerID(ctx context.Context) (string, error) {
	if f.containerErr != nil {
		return "", f.containerErr
	}
	return "abc123", nil
}

func (f *fakeRuntime) CopyDir(ctx context.Context, containerID, srcDir, dest string) error {
	return os.WriteFile(filepath.Join(dest, "profiler_queries.log"), []byte("SELECT 1\n"), 0644)
}

func (f *fakeRuntime) Exec(ctx context.Context, commandLine string) (string, error) {
	f.commands = append(f.commands, commandLine)
	if f.execErr != nil {
		return "", f.execErr
	}
	if strings.Contains(commandLine, "phpinfo") {
		return f.info, nil
	}
	return f.modules, nil
}
