package artifacts

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"
)

const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ScenarioOutcome is the reported result of one scenario
type ScenarioOutcome struct {
	Number   int    `yaml:"number"`
	Name     string `yaml:"name"`
	Status   string `yaml:"status"`
	Step     string `yaml:"step,omitempty"`
	Error    string `yaml:"error,omitempty"`
	Duration string `yaml:"duration"`
}

// Report summarises a run for review
type Report struct {
	RunID       string            `yaml:"run_id"`
	Version     string            `yaml:"version"`
	EntryURL    string            `yaml:"entry_url"`
	StartedAt   time.Time         `yaml:"started_at"`
	FinishedAt  time.Time         `yaml:"finished_at"`
	Passed      bool              `yaml:"passed"`
	Scenarios   []ScenarioOutcome `yaml:"scenarios"`
	Screenshots []Screenshot      `yaml:"screenshots"`
	Logs        LogCollection     `yaml:"logs"`
	Excerpt     string            `yaml:"excerpt,omitempty"`
	Warnings    []string          `yaml:"warnings,omitempty"`
}

// ReportFiles lists the files written for a report
type ReportFiles struct {
	YAML     string
	Markdown string
	HTML     string
	// Screenshots are the run's screenshots as archived beside the report
	Screenshots []Screenshot
}

// screenshotDir is where a report keeps its own copy of each screenshot
const screenshotDir = "screenshots"

// Markdown renders the report as a Markdown document
func (r Report) Markdown() string {
	var b strings.Builder

	result := "PASS"
	if !r.Passed {
		result = "FAIL"
	}

	fmt.Fprintf(&b, "# Profiler E2E run %s\n\n", r.RunID)
	fmt.Fprintf(&b, "- **Result:** %s\n", result)
	fmt.Fprintf(&b, "- **Target:** %s\n", r.EntryURL)
	fmt.Fprintf(&b, "- **Started:** %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Duration:** %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	if r.Version != "" {
		fmt.Fprintf(&b, "- **Version:** %s\n", r.Version)
	}

	b.WriteString("\n## Scenarios\n\n")
	b.WriteString("| # | Scenario | Status | Duration | Detail |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, s := range r.Scenarios {
		detail := ""
		if s.Error != "" {
			detail = fmt.Sprintf("%s: %s", s.Step, s.Error)
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n", s.Number, s.Name, s.Status, s.Duration, escapeCell(detail))
	}

	b.WriteString("\n## Screenshots\n\n")
	if len(r.Screenshots) == 0 {
		b.WriteString("None captured.\n")
	}
	for _, s := range r.Screenshots {
		fmt.Fprintf(&b, "%d. [%s](%s)\n", s.Seq, s.Name, filepath.ToSlash(s.Path))
	}

	b.WriteString("\n## Server logs\n\n")
	if len(r.Logs.Files) == 0 {
		b.WriteString("No log files collected.\n")
	}
	for _, f := range r.Logs.Files {
		fmt.Fprintf(&b, "- `%s` (%d bytes)\n", f.Name, f.Size)
	}
	if r.Excerpt != "" {
		fmt.Fprintf(&b, "\nExtension excerpt: `%s`\n", filepath.ToSlash(r.Excerpt))
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// RenderHTML converts Markdown to an HTML fragment
func RenderHTML(markdown string) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
		goldmark.WithRendererOptions(html.WithXHTML()),
	)

	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}

// WriteReport writes report.yaml, index.md and index.html into dir. Each
// screenshot is copied under dir/screenshots and linked relative to dir,
// so the report stays valid after later runs overwrite the shared
// screenshot directory.
func WriteReport(dir string, r Report) (ReportFiles, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ReportFiles{}, fmt.Errorf("failed to create report directory: %w", err)
	}

	files := ReportFiles{
		YAML:     filepath.Join(dir, "report.yaml"),
		Markdown: filepath.Join(dir, "index.md"),
		HTML:     filepath.Join(dir, "index.html"),
	}
	r, files.Screenshots = archiveScreenshots(dir, r)

	data, err := yaml.Marshal(r)
	if err != nil {
		return ReportFiles{}, fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(files.YAML, data, 0644); err != nil {
		return ReportFiles{}, fmt.Errorf("failed to write report: %w", err)
	}

	markdown := r.Markdown()
	if err := os.WriteFile(files.Markdown, []byte(markdown), 0644); err != nil {
		return ReportFiles{}, fmt.Errorf("failed to write report: %w", err)
	}

	body, err := RenderHTML(markdown)
	if err != nil {
		return ReportFiles{}, err
	}
	page := fmt.Sprintf("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"/><title>Profiler E2E %s</title></head>\n<body>\n%s</body></html>\n", r.RunID, body)
	if err := os.WriteFile(files.HTML, []byte(page), 0644); err != nil {
		return ReportFiles{}, fmt.Errorf("failed to write report: %w", err)
	}

	return files, nil
}

// archiveScreenshots copies the report's screenshots into dir and rewrites
// their paths relative to dir. A screenshot that cannot be copied keeps a
// link to its original location and adds a warning to the report.
func archiveScreenshots(dir string, r Report) (Report, []Screenshot) {
	if len(r.Screenshots) == 0 {
		return r, nil
	}

	base := dir
	if abs, err := filepath.Abs(dir); err == nil {
		base = abs
	}

	linked := make([]Screenshot, 0, len(r.Screenshots))
	archived := make([]Screenshot, 0, len(r.Screenshots))
	for _, shot := range r.Screenshots {
		rel := filepath.Join(screenshotDir, filepath.Base(shot.Path))
		dest := filepath.Join(dir, rel)
		if err := copyFile(shot.Path, dest); err != nil {
			r.Warnings = append(r.Warnings, fmt.Sprintf("archive-screenshot %s: %v", shot.Path, err))
			rel = shot.Path
			if abs, err := filepath.Abs(shot.Path); err == nil {
				if fromDir, err := filepath.Rel(base, abs); err == nil {
					rel = fromDir
				}
			}
			dest = shot.Path
		}
		linked = append(linked, Screenshot{Seq: shot.Seq, Name: shot.Name, Path: filepath.ToSlash(rel)})
		archived = append(archived, Screenshot{Seq: shot.Seq, Name: shot.Name, Path: dest})
	}
	r.Screenshots = linked
	return r, archived
}

func copyFile(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0644)
}
