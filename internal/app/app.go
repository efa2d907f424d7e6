// -----------------------------------------------------------------------
// Last Modified: Friday, 16th October 2026 3:12:40 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/profiler-e2e/internal/artifacts"
	"github.com/ternarybob/profiler-e2e/internal/browser"
	"github.com/ternarybob/profiler-e2e/internal/common"
	"github.com/ternarybob/profiler-e2e/internal/container"
	"github.com/ternarybob/profiler-e2e/internal/dashboard"
	"github.com/ternarybob/profiler-e2e/internal/interfaces"
	"github.com/ternarybob/profiler-e2e/internal/scenario"
	"github.com/ternarybob/profiler-e2e/internal/storage/badger"
)

// App holds the harness collaborators shared by every command
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Runtime reaches the application container; nil when disabled
	Runtime *container.Compose

	// Dashboard HTTP and websocket clients
	API    *dashboard.Client
	Stream *dashboard.StreamProbe

	// Run ledger; nil when the store is disabled
	Runs interfaces.RunStorage
	db   *badger.BadgerDB
}

// Outcome is what a suite run produced
type Outcome struct {
	Result scenario.RunResult
	Files  artifacts.ReportFiles
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initRuntime(); err != nil {
		return nil, fmt.Errorf("failed to initialize container runtime: %w", err)
	}

	app.initClients()

	if err := app.initStore(); err != nil {
		return nil, fmt.Errorf("failed to initialize run ledger: %w", err)
	}

	logger.Debug().
		Bool("runtime", app.Runtime != nil).
		Bool("ledger", app.Runs != nil).
		Str("entry_url", cfg.EntryURL).
		Msg("Application initialized")

	return app, nil
}

func (a *App) initRuntime() error {
	if !a.Config.Runtime.Enabled {
		a.Logger.Info().Msg("Container runtime disabled - log collection and extension checks will be skipped")
		return nil
	}

	compose, err := container.NewCompose(a.Config.Runtime, container.ExecRunner{}, a.Logger)
	if err != nil {
		return err
	}
	a.Runtime = compose
	return nil
}

func (a *App) initClients() {
	if path := a.Config.Dashboard.JobsEndpoint; path != "" {
		a.API = dashboard.NewClient(a.Config.EntryURL, a.Logger, dashboard.WithJobsPath(path))
	}
	if path := a.Config.Dashboard.StreamEndpoint; path != "" {
		a.Stream = dashboard.NewStreamProbe(a.Config.EntryURL, path, a.Logger)
	}
}

func (a *App) initStore() error {
	if !a.Config.Store.Enabled {
		return nil
	}

	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Store)
	if err != nil {
		return err
	}
	a.db = db
	a.Runs = badger.NewRunStorage(db, a.Logger)
	return nil
}

// Wire attaches the optional collaborators to a harness. Disabled
// collaborators stay nil so the harness can tell they are absent.
func (a *App) Wire(h *scenario.Harness) {
	if a.API != nil {
		h.API = a.API
	}
	if a.Stream != nil {
		h.Stream = a.Stream
	}
	if a.Runtime != nil {
		h.Runtime = a.Runtime
	}
}

// NewHarness launches a browser and returns a harness that owns it
func (a *App) NewHarness(ctx context.Context) (*scenario.Harness, error) {
	chrome, err := browser.NewChrome(ctx, a.Config.Browser, a.Logger)
	if err != nil {
		return nil, err
	}

	h := scenario.NewHarness(a.Config, chrome, a.Logger)
	h.AddCleanup(chrome.Close)
	h.AddCleanup(func() {
		if errs := chrome.ConsoleErrors(); len(errs) > 0 {
			a.Logger.Warn().Int("count", len(errs)).Str("first", errs[0]).Msg("Dashboard reported console errors")
		}
	})
	a.Wire(h)
	return h, nil
}

// RunSuite runs the selected canonical scenarios (all when numbers is
// empty), then writes the report and records the run in the ledger.
// Report and ledger failures are logged; only setup errors are returned.
func (a *App) RunSuite(ctx context.Context, trigger string, numbers []int) (*Outcome, error) {
	seq, err := scenario.NewSequencer(scenario.Canonical(), a.Logger)
	if err != nil {
		return nil, err
	}
	if seq, err = seq.Select(numbers...); err != nil {
		return nil, err
	}

	h, err := a.NewHarness(ctx)
	if err != nil {
		return nil, err
	}

	result := seq.Run(ctx, h)
	return a.Publish(ctx, trigger, result), nil
}

// Publish writes the report for result and saves it to the ledger. The
// ledger record points at the screenshots archived with the report.
func (a *App) Publish(ctx context.Context, trigger string, result scenario.RunResult) *Outcome {
	outcome := &Outcome{Result: result}
	reportDir := filepath.Join(a.Config.Artifacts.ReportDir, result.ID)

	files, err := artifacts.WriteReport(reportDir, result.Report(common.GetVersion(), a.Config.EntryURL))
	if err != nil {
		a.Logger.Warn().Err(err).Str("dir", reportDir).Msg("Failed to write run report")
	} else {
		outcome.Files = files
		result.Screenshots = files.Screenshots
		a.Logger.Info().Str("report", files.HTML).Msg("✓ Report written")
	}

	if a.Runs != nil {
		record := result.Record(trigger, common.GetVersion(), a.Config.EntryURL, reportDir)
		if err := a.Runs.SaveRun(ctx, record); err != nil {
			a.Logger.Warn().Err(err).Str("run_id", result.ID).Msg("Failed to record run")
		}
	}

	return outcome
}

// Close releases the run ledger
func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
