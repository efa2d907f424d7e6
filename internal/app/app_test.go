package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/profiler-e2e/internal/artifacts"
	"github.com/ternarybob/profiler-e2e/internal/browser/browsertest"
	"github.com/ternarybob/profiler-e2e/internal/common"
	"github.com/ternarybob/profiler-e2e/internal/models"
	"github.com/ternarybob/profiler-e2e/internal/scenario"
)

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	dir := t.TempDir()
	config := common.NewDefaultConfig()
	config.Artifacts.ScreenshotDir = filepath.Join(dir, "screenshots")
	config.Artifacts.LogDir = filepath.Join(dir, "logs")
	config.Artifacts.ReportDir = filepath.Join(dir, "results")
	config.Store.Path = filepath.Join(dir, "ledger")
	return config
}

func TestNew_RuntimeDisabled(t *testing.T) {
	config := testConfig(t)
	config.Runtime.Enabled = false
	config.Store.Enabled = false

	a, err := New(config, arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Runtime)
	assert.Nil(t, a.Runs)
	assert.NotNil(t, a.API)
	assert.NotNil(t, a.Stream)

	h := scenario.NewHarness(config, browsertest.New(), a.Logger)
	a.Wire(h)
	assert.Nil(t, h.Runtime, "a disabled runtime must stay a nil interface")
	assert.NotNil(t, h.API)
	assert.NotNil(t, h.Stream)
}

func TestNew_EmptyEndpointsDisableClients(t *testing.T) {
	config := testConfig(t)
	config.Runtime.Enabled = false
	config.Store.Enabled = false
	config.Dashboard.JobsEndpoint = ""
	config.Dashboard.StreamEndpoint = ""

	a, err := New(config, arbor.NewLogger())
	require.NoError(t, err)

	h := scenario.NewHarness(config, browsertest.New(), a.Logger)
	a.Wire(h)
	assert.Nil(t, h.API)
	assert.Nil(t, h.Stream)
}

func TestNew_InvalidRuntime(t *testing.T) {
	config := testConfig(t)
	config.Runtime.ComposeCommand = ""

	_, err := New(config, arbor.NewLogger())
	assert.ErrorContains(t, err, "container runtime")
}

func TestPublish_WritesReportAndLedger(t *testing.T) {
	config := testConfig(t)
	a, err := New(config, arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	started := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	result := scenario.RunResult{
		ID:         "run_test",
		StartedAt:  started,
		FinishedAt: started.Add(42 * time.Second),
		Scenarios: []scenario.ScenarioResult{
			{Number: 1, Name: "page load", Status: artifacts.StatusPassed, Duration: time.Second},
		},
	}

	outcome := a.Publish(context.Background(), models.TriggerCLI, result)
	assert.FileExists(t, outcome.Files.YAML)
	assert.FileExists(t, outcome.Files.HTML)
	assert.Equal(t, filepath.Join(config.Artifacts.ReportDir, "run_test"), filepath.Dir(outcome.Files.YAML))

	record, err := a.Runs.GetRun(context.Background(), "run_test")
	require.NoError(t, err)
	assert.True(t, record.Passed)
	assert.Equal(t, models.TriggerCLI, record.Trigger)
	assert.Equal(t, 42*time.Second, record.Duration())
}

func TestPublish_ArchivesScreenshotsWithReport(t *testing.T) {
	config := testConfig(t)
	a, err := New(config, arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, os.MkdirAll(config.Artifacts.ScreenshotDir, 0755))
	shot := filepath.Join(config.Artifacts.ScreenshotDir, "01_01_initial_page_load.png")
	require.NoError(t, os.WriteFile(shot, []byte("first run"), 0644))

	result := scenario.RunResult{
		ID:          "run_shots",
		Scenarios:   []scenario.ScenarioResult{{Number: 1, Name: "page load", Status: artifacts.StatusPassed}},
		Screenshots: []artifacts.Screenshot{{Seq: 1, Name: "01_initial_page_load", Path: shot}},
	}
	outcome := a.Publish(context.Background(), models.TriggerCLI, result)
	reportDir := filepath.Dir(outcome.Files.Markdown)

	markdown, err := os.ReadFile(outcome.Files.Markdown)
	require.NoError(t, err)
	assert.Contains(t, string(markdown), "(screenshots/01_01_initial_page_load.png)")
	assert.FileExists(t, filepath.Join(reportDir, "screenshots", "01_01_initial_page_load.png"))

	// the next run overwrites the shared screenshot
	require.NoError(t, os.WriteFile(shot, []byte("second run"), 0644))

	record, err := a.Runs.GetRun(context.Background(), "run_shots")
	require.NoError(t, err)
	require.Len(t, record.Screenshots, 1)
	assert.True(t, strings.HasPrefix(record.Screenshots[0], reportDir), record.Screenshots[0])
	data, err := os.ReadFile(record.Screenshots[0])
	require.NoError(t, err)
	assert.Equal(t, "first run", string(data))
}
