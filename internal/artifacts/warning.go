// Package artifacts captures diagnostic evidence for a run: numbered
// screenshots, server-side log files, diagnostic excerpts and the run
// report. Collection is best effort; failures become warnings and never
// fail the run.
package artifacts

import "fmt"

// Warning records an artifact that could not be collected
type Warning struct {
	Op     string // "screenshot", "collect-logs", "excerpt", "report"
	Target string
	Err    error
}

func (w Warning) Error() string {
	return fmt.Sprintf("%s %s: %v", w.Op, w.Target, w.Err)
}

func (w Warning) Unwrap() error {
	return w.Err
}
