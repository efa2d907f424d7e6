package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/profiler-e2e/internal/browser/browsertest"
	"pgregory.net/rapid"
)

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "initial_page_load", sanitizeName("Initial Page Load"))
	assert.Equal(t, "session_started", sanitizeName("  session/started "))
	assert.Equal(t, "screenshot", sanitizeName("///"))
	assert.Equal(t, "01_initial_page_load.png", FileName(1, "initial_page_load"))
	assert.Equal(t, "123_x.png", FileName(123, "x"))
	assert.Equal(t, "01_01_initial_page_load.png", FileName(1, "01_initial_page_load"))
}

func TestCollector_Capture(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "screenshots")
	c := NewCollector(dir, arbor.NewLogger())
	page := browsertest.New()

	first := c.Capture(context.Background(), page, "initial_page_load")
	second := c.Capture(context.Background(), page, "session_started")

	assert.Equal(t, filepath.Join(dir, "01_initial_page_load.png"), first)
	assert.Equal(t, filepath.Join(dir, "02_session_started.png"), second)
	assert.FileExists(t, first)

	shots := c.Screenshots()
	require.Len(t, shots, 2)
	assert.Equal(t, 2, shots[1].Seq)
	assert.Empty(t, c.Warnings())
}

func TestCollector_FailureIsAWarning(t *testing.T) {
	dir := t.TempDir()
	c := NewCollector(dir, arbor.NewLogger())
	page := browsertest.New()

	page.ScreenErr = errors.New("target crashed")
	assert.Empty(t, c.Capture(context.Background(), page, "broken"))

	page.ScreenErr = nil
	path := c.Capture(context.Background(), page, "after")
	assert.Equal(t, filepath.Join(dir, "02_after.png"), path, "the failed capture keeps its number")

	warnings := c.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "01_broken.png", warnings[0].Target)
	assert.Contains(t, warnings[0].Error(), "target crashed")
}

func TestCollector_UnwritableDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	c := NewCollector(filepath.Join(blocker, "screenshots"), arbor.NewLogger())
	assert.Empty(t, c.Capture(context.Background(), browsertest.New(), "x"))
	assert.Len(t, c.Warnings(), 1)
}

func TestCollector_SequenceProperty(t *testing.T) {
	dir := t.TempDir()
	rapid.Check(t, func(t *rapid.T) {
		c := NewCollector(dir, arbor.NewLogger())
		page := browsertest.New()

		n := rapid.IntRange(1, 15).Draw(t, "n")
		last := 0
		for i := 0; i < n; i++ {
			if rapid.Bool().Draw(t, "fail") {
				page.ScreenErr = errors.New("boom")
			} else {
				page.ScreenErr = nil
			}
			c.Capture(context.Background(), page, "shot")
		}
		for _, s := range c.Screenshots() {
			if s.Seq <= last {
				t.Fatalf("sequence not strictly increasing: %d after %d", s.Seq, last)
			}
			last = s.Seq
			if filepath.Base(s.Path) != FileName(s.Seq, "shot") {
				t.Fatalf("unexpected file name %s", s.Path)
			}
		}
		if len(c.Screenshots())+len(c.Warnings()) != n {
			t.Fatalf("every capture is either stored or warned about")
		}
	})
}

type fakeSource struct {
	id      string
	idErr   error
	copyErr error
	files   map[string]string
}

func (f *fakeSource) ContainerID(ctx context.Context) (string, error) {
	return f.id, f.idErr
}

func (f *fakeSource) CopyDir(ctx context.Context, containerID, srcDir, dest string) error {
	if f.copyErr != nil {
		return f.copyErr
	}
	for name, content := range f.files {
		if err := os.WriteFile(filepath.Join(dest, name), []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

func TestCollectLogs(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "logs")
	source := &fakeSource{id: "abc", files: map[string]string{
		"job1.raw.log": "SELECT 1;\n",
		"job1.sql":     "SELECT 1",
	}}

	collection := CollectLogs(context.Background(), source, "/var/profiler", dest, arbor.NewLogger())
	assert.Empty(t, collection.Warnings)
	assert.Equal(t, []LogFile{{Name: "job1.raw.log", Size: 10}, {Name: "job1.sql", Size: 8}}, collection.Files)
}

func TestCollectLogs_ContainerMissing(t *testing.T) {
	source := &fakeSource{idErr: errors.New("container not found")}

	collection := CollectLogs(context.Background(), source, "/var/profiler", t.TempDir(), arbor.NewLogger())
	assert.Empty(t, collection.Files)
	require.Len(t, collection.Warnings, 1)
	assert.Equal(t, "collect-logs", collection.Warnings[0].Op)
}

func TestCollectLogs_CopyFails(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "phpinfo_extension.txt"), []byte("x"), 0644))
	source := &fakeSource{id: "abc", copyErr: errors.New("no such directory")}

	collection := CollectLogs(context.Background(), source, "/var/profiler", dest, arbor.NewLogger())
	require.Len(t, collection.Warnings, 1)
	assert.Len(t, collection.Files, 1, "files already present are still listed")
}

const phpinfoOutput = `Core

PHP Version => 8.3.0

mariadb_profiler

MariaDB Profiler support => enabled
Version => 1.0.0
Log directory => /var/profiler

mysqli

Client API library version => mariadb
`

func TestExcerpt(t *testing.T) {
	excerpt := Excerpt(phpinfoOutput, "MariaDB_Profiler", 2000)
	assert.Equal(t, "mariadb_profiler\n\nMariaDB Profiler support => enabled\nVersion => 1.0.0\nLog directory => /var/profiler\n", excerpt)
}

func TestExcerpt_NoMatchTruncates(t *testing.T) {
	output := strings.Repeat("é", 50)
	assert.Equal(t, strings.Repeat("é", 10), Excerpt(output, "mariadb_profiler", 10))
	assert.Equal(t, "short", Excerpt("short", "mariadb_profiler", 2000))
}

func TestExcerpt_UnterminatedSection(t *testing.T) {
	assert.Equal(t, "x mariadb_profiler\n\ny", Excerpt("a\nx mariadb_profiler\n\ny", "mariadb_profiler", 5))
}

func TestWriteExcerpt(t *testing.T) {
	path, err := WriteExcerpt(t.TempDir(), "phpinfo_extension.txt", "content")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	shots := t.TempDir()
	shot := filepath.Join(shots, "01_initial_page_load.png")
	require.NoError(t, os.WriteFile(shot, []byte("\x89PNG"), 0644))
	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	report := Report{
		RunID:      "run_1",
		EntryURL:   "http://localhost:8080",
		StartedAt:  started,
		FinishedAt: started.Add(42 * time.Second),
		Passed:     false,
		Scenarios: []ScenarioOutcome{
			{Number: 1, Name: "page loads", Status: StatusPassed, Duration: "1.2s"},
			{Number: 4, Name: "stop session", Status: StatusFailed, Step: "wait stopped", Error: "timed out | late", Duration: "30s"},
		},
		Screenshots: []Screenshot{{Seq: 1, Name: "initial_page_load", Path: shot}},
		Logs:        LogCollection{Files: []LogFile{{Name: "job.raw.log", Size: 12}}},
		Warnings:    []string{"collect-logs /var/profiler: container not found"},
	}

	files, err := WriteReport(dir, report)
	require.NoError(t, err)

	markdown, err := os.ReadFile(files.Markdown)
	require.NoError(t, err)
	assert.Contains(t, string(markdown), "- **Result:** FAIL")
	assert.Contains(t, string(markdown), `| 4 | stop session | failed | 30s | wait stopped: timed out \| late |`)
	assert.Contains(t, string(markdown), "1. [initial_page_load](screenshots/01_initial_page_load.png)")
	assert.Contains(t, string(markdown), "- `job.raw.log` (12 bytes)")

	html, err := os.ReadFile(files.HTML)
	require.NoError(t, err)
	assert.Contains(t, string(html), "<table>")
	assert.Contains(t, string(html), "<title>Profiler E2E run_1</title>")

	yamlData, err := os.ReadFile(files.YAML)
	require.NoError(t, err)
	assert.Contains(t, string(yamlData), "run_id: run_1")
	assert.Contains(t, string(yamlData), "status: failed")
	assert.Contains(t, string(yamlData), "path: screenshots/01_initial_page_load.png")

	require.Len(t, files.Screenshots, 1)
	assert.Equal(t, filepath.Join(dir, "screenshots", "01_initial_page_load.png"), files.Screenshots[0].Path)
	assert.FileExists(t, files.Screenshots[0].Path)
}

var markdownLink = regexp.MustCompile(`\]\(([^)]+)\)`)

func TestWriteReport_LinksResolveFromReportDir(t *testing.T) {
	results := t.TempDir()
	shots := filepath.Join(t.TempDir(), "screenshots")
	require.NoError(t, os.MkdirAll(shots, 0755))

	var screenshots []Screenshot
	for i, name := range []string{"01_initial_page_load", "02_session_started"} {
		path := filepath.Join(shots, name+".png")
		require.NoError(t, os.WriteFile(path, []byte(name), 0644))
		screenshots = append(screenshots, Screenshot{Seq: i + 1, Name: name, Path: path})
	}

	first := filepath.Join(results, "run_1")
	files, err := WriteReport(first, Report{RunID: "run_1", Passed: true, Screenshots: screenshots})
	require.NoError(t, err)

	// a later run reuses the shared screenshot directory
	require.NoError(t, os.WriteFile(screenshots[0].Path, []byte("newer"), 0644))

	markdown, err := os.ReadFile(files.Markdown)
	require.NoError(t, err)
	links := markdownLink.FindAllStringSubmatch(string(markdown), -1)
	require.Len(t, links, 2)
	for i, link := range links {
		assert.False(t, filepath.IsAbs(link[1]), link[1])
		resolved := filepath.Join(first, filepath.FromSlash(link[1]))
		require.FileExists(t, resolved)
		data, err := os.ReadFile(resolved)
		require.NoError(t, err)
		assert.Equal(t, screenshots[i].Name, string(data), "report keeps the image from its own run")
	}

	html, err := os.ReadFile(files.HTML)
	require.NoError(t, err)
	assert.Contains(t, string(html), `href="screenshots/02_session_started.png"`)
}

func TestWriteReport_MissingScreenshotIsAWarning(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results", "run_1")
	missing := filepath.Join(filepath.Dir(filepath.Dir(dir)), "screenshots", "01_gone.png")

	files, err := WriteReport(dir, Report{RunID: "run_1", Screenshots: []Screenshot{{Seq: 1, Name: "gone", Path: missing}}})
	require.NoError(t, err)

	markdown, err := os.ReadFile(files.Markdown)
	require.NoError(t, err)
	assert.Contains(t, string(markdown), "1. [gone](../../screenshots/01_gone.png)")
	assert.Contains(t, string(markdown), "archive-screenshot "+missing)
	require.Len(t, files.Screenshots, 1)
	assert.Equal(t, missing, files.Screenshots[0].Path)
}
