package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/profiler-e2e/internal/browser"
	"github.com/ternarybob/profiler-e2e/internal/common"
)

// Selectors locates the parts of the dashboard the projection reads
type Selectors struct {
	Tabs           string
	Panels         string
	Status         string
	Key            string
	StopButton     string
	Terminal       string
	RecordingText  string
	StoppedText    string
	StopTransition string
}

// SelectorsFrom builds the selector set from dashboard configuration
func SelectorsFrom(config common.DashboardConfig) Selectors {
	return Selectors{
		Tabs:           config.TabSel,
		Panels:         config.PanelSel,
		Status:         config.StatusSel,
		Key:            config.KeySel,
		StopButton:     config.ButtonSel,
		Terminal:       config.TerminalSel,
		RecordingText:  config.RecordingText,
		StoppedText:    config.StoppedText,
		StopTransition: config.StopTransition,
	}
}

// rendered drops nodes that only exist inside <template> content
func rendered(s *goquery.Selection) *goquery.Selection {
	return s.FilterFunction(func(_ int, el *goquery.Selection) bool {
		return el.Closest("template").Length() == 0
	})
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// Parse projects a serialised document into a snapshot. Tabs and panels
// are paired by position; a tab without a panel has status None.
func Parse(html string, sel Selectors) (Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse dashboard document: %w", err)
	}

	tabs := rendered(doc.Find(sel.Tabs))
	panels := rendered(doc.Find(sel.Panels))

	snapshot := Snapshot{Tabs: make([]Tab, 0, tabs.Length())}
	tabs.Each(func(i int, tabSel *goquery.Selection) {
		tab := Tab{
			Index: i,
			Label: text(tabSel),
		}
		if i < panels.Length() {
			parsePanel(panels.Eq(i), sel, &tab)
		}
		snapshot.Tabs = append(snapshot.Tabs, tab)
	})

	return snapshot, nil
}

func parsePanel(panel *goquery.Selection, sel Selectors, tab *Tab) {
	tab.Key = strings.TrimSpace(strings.TrimPrefix(text(panel.Find(sel.Key).First()), "Job:"))

	if button := panel.Find(sel.StopButton).First(); button.Length() > 0 {
		tab.StopLabel = text(button)
	}

	tab.HasTerminal = panel.Find(sel.Terminal).Length() > 0

	status := strings.ToUpper(text(panel.Find(sel.Status).First()))
	switch {
	case sel.StoppedText != "" && strings.Contains(status, strings.ToUpper(sel.StoppedText)):
		tab.Status = Stopped
	case sel.RecordingText != "" && strings.Contains(status, strings.ToUpper(sel.RecordingText)):
		tab.Status = Recording
		if sel.StopTransition != "" && strings.Contains(tab.StopLabel, sel.StopTransition) {
			tab.Status = Stopping
		}
	default:
		tab.Status = None
	}
}

// Capture reads the live document from page and projects it
func Capture(ctx context.Context, page browser.Page, sel Selectors) (Snapshot, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Parse(html, sel)
}
