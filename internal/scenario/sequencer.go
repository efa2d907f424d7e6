package scenario

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/profiler-e2e/internal/artifacts"
	"github.com/ternarybob/profiler-e2e/internal/common"
	"github.com/ternarybob/profiler-e2e/internal/models"
	"github.com/ternarybob/profiler-e2e/internal/wait"
)

var (
	// ErrSkipped marks a scenario that could not run in this environment
	ErrSkipped = errors.New("scenario skipped")
	// ErrRuntimeDisabled is reported when a step needs the container runtime
	ErrRuntimeDisabled = errors.New("container runtime disabled")
	// ErrModuleMissing is returned when the native module is not loaded
	ErrModuleMissing = errors.New("module not loaded")
	// ErrAssertion is wrapped by failed step assertions
	ErrAssertion = errors.New("assertion failed")
)

// Step is one action, wait or assertion within a scenario
type Step struct {
	Name string
	Run  func(ctx context.Context, h *Harness) error
}

// Scenario is a numbered, ordered list of steps
type Scenario struct {
	Number int
	Name   string
	Steps  []Step
}

// StepFailure attributes an error to a scenario step
type StepFailure struct {
	Scenario int
	Name     string
	Step     string
	Elapsed  time.Duration
	Err      error
}

func (f *StepFailure) Error() string {
	msg := fmt.Sprintf("scenario %02d %s: step %q failed after %s: %v",
		f.Scenario, f.Name, f.Step, f.Elapsed.Round(time.Millisecond), f.Err)
	if t, ok := wait.AsTimeout(f.Err); ok {
		msg += fmt.Sprintf(" (waited for %s, %d attempts)", t.Condition, t.Attempts)
	}
	return msg
}

func (f *StepFailure) Unwrap() error {
	return f.Err
}

// ScenarioResult is the outcome of one scenario
type ScenarioResult struct {
	Number   int
	Name     string
	Status   string
	Failure  *StepFailure
	Skip     error
	Duration time.Duration
}

// RunResult is the outcome of a sequencer run
type RunResult struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	Scenarios   []ScenarioResult
	Screenshots []artifacts.Screenshot
	Logs        artifacts.LogCollection
	Excerpt     string
	Warnings    []artifacts.Warning
}

// Passed reports whether no scenario failed
func (r RunResult) Passed() bool {
	return len(r.Failures()) == 0
}

// Failures returns the failed scenarios' step failures in order
func (r RunResult) Failures() []*StepFailure {
	var failures []*StepFailure
	for _, s := range r.Scenarios {
		if s.Failure != nil {
			failures = append(failures, s.Failure)
		}
	}
	return failures
}

// Report converts the result for the artifact report writer
func (r RunResult) Report(version, entryURL string) artifacts.Report {
	report := artifacts.Report{
		RunID:       r.ID,
		Version:     version,
		EntryURL:    entryURL,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Passed:      r.Passed(),
		Screenshots: r.Screenshots,
		Logs:        r.Logs,
		Excerpt:     r.Excerpt,
	}
	for _, s := range r.Scenarios {
		outcome := artifacts.ScenarioOutcome{
			Number:   s.Number,
			Name:     s.Name,
			Status:   s.Status,
			Duration: s.Duration.Round(time.Millisecond).String(),
		}
		if s.Failure != nil {
			outcome.Step = s.Failure.Step
			outcome.Error = s.Failure.Err.Error()
		}
		if s.Skip != nil {
			outcome.Error = s.Skip.Error()
		}
		report.Scenarios = append(report.Scenarios, outcome)
	}
	for _, w := range r.Warnings {
		report.Warnings = append(report.Warnings, w.Error())
	}
	return report
}

// Record converts the result for the run ledger
func (r RunResult) Record(trigger, version, entryURL, reportDir string) *models.RunRecord {
	record := &models.RunRecord{
		ID:         r.ID,
		Trigger:    trigger,
		Version:    version,
		EntryURL:   entryURL,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Passed:     r.Passed(),
		ReportDir:  reportDir,
	}
	for _, s := range r.Scenarios {
		sr := models.ScenarioRecord{
			Number:     s.Number,
			Name:       s.Name,
			Status:     s.Status,
			DurationMs: s.Duration.Milliseconds(),
		}
		if s.Failure != nil {
			sr.Step = s.Failure.Step
			sr.Error = s.Failure.Err.Error()
		}
		record.Scenarios = append(record.Scenarios, sr)
	}
	for _, shot := range r.Screenshots {
		record.Screenshots = append(record.Screenshots, shot.Path)
	}
	for _, f := range r.Logs.Files {
		record.LogFiles = append(record.LogFiles, f.Name)
	}
	for _, w := range r.Warnings {
		record.Warnings = append(record.Warnings, w.Error())
	}
	return record
}

// Sequencer runs scenarios strictly in numeric order against one harness
type Sequencer struct {
	scenarios []Scenario
	logger    arbor.ILogger
}

// NewSequencer orders scenarios by number and rejects duplicates
func NewSequencer(scenarios []Scenario, logger arbor.ILogger) (*Sequencer, error) {
	ordered := make([]Scenario, len(scenarios))
	copy(ordered, scenarios)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	for i, s := range ordered {
		if len(s.Steps) == 0 {
			return nil, fmt.Errorf("scenario %02d %s has no steps", s.Number, s.Name)
		}
		if i > 0 && ordered[i-1].Number == s.Number {
			return nil, fmt.Errorf("duplicate scenario number %02d (%s, %s)", s.Number, ordered[i-1].Name, s.Name)
		}
	}

	return &Sequencer{scenarios: ordered, logger: logger}, nil
}

// Scenarios returns the scenarios in run order
func (s *Sequencer) Scenarios() []Scenario {
	return s.scenarios
}

// Select keeps only the numbered scenarios, preserving order. An empty
// selection keeps everything.
func (s *Sequencer) Select(numbers ...int) (*Sequencer, error) {
	if len(numbers) == 0 {
		return s, nil
	}
	want := make(map[int]bool, len(numbers))
	for _, n := range numbers {
		want[n] = true
	}
	var kept []Scenario
	for _, sc := range s.scenarios {
		if want[sc.Number] {
			kept = append(kept, sc)
			delete(want, sc.Number)
		}
	}
	if len(want) > 0 {
		var unknown []int
		for n := range want {
			unknown = append(unknown, n)
		}
		sort.Ints(unknown)
		return nil, fmt.Errorf("unknown scenario(s) %v", unknown)
	}
	return &Sequencer{scenarios: kept, logger: s.logger}, nil
}

// Run executes every scenario in order. A failing step aborts its own
// scenario only; later scenarios still run. The harness is closed before
// Run returns, whatever happened.
func (s *Sequencer) Run(ctx context.Context, h *Harness) RunResult {
	defer h.Close()

	result := RunResult{
		ID:        common.NewRunID(),
		StartedAt: time.Now(),
	}

	s.logger.Info().
		Str("run_id", result.ID).
		Int("scenarios", len(s.scenarios)).
		Msg("Starting run")

	for _, sc := range s.scenarios {
		if ctx.Err() != nil {
			result.Scenarios = append(result.Scenarios, ScenarioResult{
				Number: sc.Number,
				Name:   sc.Name,
				Status: artifacts.StatusSkipped,
				Skip:   ctx.Err(),
			})
			continue
		}
		result.Scenarios = append(result.Scenarios, s.runScenario(ctx, h, sc))
	}

	result.FinishedAt = time.Now()
	result.Screenshots = h.Artifacts.Screenshots()
	result.Warnings = h.Artifacts.Warnings()
	result.Logs = h.logs
	result.Excerpt = h.excerpt

	event := s.logger.Info()
	if !result.Passed() {
		event = s.logger.Error()
	}
	event.Str("run_id", result.ID).
		Bool("passed", result.Passed()).
		Int("failures", len(result.Failures())).
		Int("screenshots", len(result.Screenshots)).
		Int("warnings", len(result.Warnings)).
		Str("duration", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond).String()).
		Msg("Run finished")

	return result
}

func (s *Sequencer) runScenario(ctx context.Context, h *Harness, sc Scenario) ScenarioResult {
	start := time.Now()
	res := ScenarioResult{Number: sc.Number, Name: sc.Name, Status: artifacts.StatusPassed}

	s.logger.Info().Int("scenario", sc.Number).Str("name", sc.Name).Msg("Scenario started")

	for _, step := range sc.Steps {
		stepStart := time.Now()
		err := runStep(ctx, h, step)
		if err == nil {
			continue
		}

		if errors.Is(err, ErrSkipped) {
			res.Status = artifacts.StatusSkipped
			res.Skip = err
			s.logger.Warn().Int("scenario", sc.Number).Str("step", step.Name).Err(err).Msg("Scenario skipped")
			break
		}

		res.Status = artifacts.StatusFailed
		res.Failure = &StepFailure{
			Scenario: sc.Number,
			Name:     sc.Name,
			Step:     step.Name,
			Elapsed:  time.Since(stepStart),
			Err:      err,
		}
		s.logger.Error().Err(res.Failure).Msg("✗ Scenario failed")
		h.Screenshot(ctx, fmt.Sprintf("failure_scenario_%02d", sc.Number))
		break
	}

	res.Duration = time.Since(start)
	if res.Status == artifacts.StatusPassed {
		s.logger.Info().
			Int("scenario", sc.Number).
			Str("name", sc.Name).
			Str("duration", res.Duration.Round(time.Millisecond).String()).
			Msg("✓ Scenario passed")
	}
	return res
}

// runStep converts a panicking step into a failure of that step
func runStep(ctx context.Context, h *Harness, step Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return step.Run(ctx, h)
}
