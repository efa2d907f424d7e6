package models

import "time"

// Run triggers
const (
	TriggerCLI   = "cli"
	TriggerWatch = "watch"
)

// RunRecord is the persisted outcome of one harness run
type RunRecord struct {
	ID          string           `json:"id"`
	Trigger     string           `json:"trigger"`
	Version     string           `json:"version"`
	EntryURL    string           `json:"entry_url"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Passed      bool             `json:"passed"`
	Scenarios   []ScenarioRecord `json:"scenarios"`
	Screenshots []string         `json:"screenshots"`
	LogFiles    []string         `json:"log_files"`
	Warnings    []string         `json:"warnings,omitempty"`
	ReportDir   string           `json:"report_dir"`
}

// ScenarioRecord is the persisted outcome of one scenario
type ScenarioRecord struct {
	Number     int    `json:"number"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Step       string `json:"step,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Duration returns the wall time of the run
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// FailedScenarios returns the scenarios that did not pass or skip
func (r *RunRecord) FailedScenarios() []ScenarioRecord {
	var failed []ScenarioRecord
	for _, s := range r.Scenarios {
		if s.Status == "failed" {
			failed = append(failed, s)
		}
	}
	return failed
}
