package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ternarybob/profiler-e2e/internal/browser"
	"github.com/ternarybob/profiler-e2e/internal/wait"
)

// Tracker accumulates snapshots over one page lifetime and reports
// observations that break forward-only progress. A reload restores only
// active sessions, so callers Reset after every navigation.
type Tracker struct {
	mu        sync.Mutex
	lastCount int
	states    map[string]State
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{states: map[string]State{}}
}

// Reset forgets everything observed so far
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastCount = 0
	t.states = map[string]State{}
}

// State returns the most advanced state observed for key
func (t *Tracker) State(key string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[key]
}

// Observe records a snapshot. It returns an error wrapping
// ErrLifecycleViolation when the tab count shrank or a session moved
// backwards; the snapshot is recorded either way.
func (t *Tracker) Observe(s Snapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var problems []string
	if s.Count() < t.lastCount {
		problems = append(problems, fmt.Sprintf("tab count fell from %d to %d", t.lastCount, s.Count()))
	}
	t.lastCount = s.Count()

	for _, tab := range s.Tabs {
		if tab.Key == "" {
			continue
		}
		prev, seen := t.states[tab.Key]
		if seen && !prev.CanTransition(tab.Status) {
			problems = append(problems, fmt.Sprintf("session %s went from %s to %s", tab.Key, prev, tab.Status))
			continue
		}
		t.states[tab.Key] = tab.Status
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrLifecycleViolation, strings.Join(problems, "; "))
	}
	return nil
}

// SessionReaches is a condition that holds once the tab for key is
// observed in state (or further along)
func SessionReaches(sel Selectors, key string, state State) wait.Condition[Snapshot] {
	return wait.Condition[Snapshot]{
		Description: fmt.Sprintf("session %s to reach %s", key, state),
		Probe: func(ctx context.Context, page browser.Page) (Snapshot, bool, error) {
			snapshot, err := Capture(ctx, page, sel)
			if err != nil {
				return Snapshot{}, false, err
			}
			tab, ok := snapshot.ByKey(key)
			return snapshot, ok && tab.Status >= state, nil
		},
	}
}

// SessionStarted is a condition that holds once exactly one session whose
// key is not in known is rendered and recording. The observed value is
// that tab.
func SessionStarted(sel Selectors, known []string) wait.Condition[Tab] {
	return wait.Condition[Tab]{
		Description: fmt.Sprintf("a new recording session beside %d known", len(known)),
		Probe: func(ctx context.Context, page browser.Page) (Tab, bool, error) {
			snapshot, err := Capture(ctx, page, sel)
			if err != nil {
				return Tab{}, false, err
			}
			tab, err := ConfirmStarted(known, snapshot)
			if err != nil {
				return tab, false, err
			}
			return tab, true, nil
		},
	}
}
