// Package lifecycle projects the dashboard's session tabs into a typed
// snapshot and checks that observed sessions only move forward through
// None, Recording, Stopping and Stopped.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// State is the observable status of one profiling session
type State int

const (
	None State = iota
	Recording
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "none"
	}
}

// CanTransition reports whether a session observed in s may next be
// observed in to. A failed stop returns the session from Stopping to
// Recording; every other backward move is a violation.
func (s State) CanTransition(to State) bool {
	if to >= s {
		return true
	}
	return s == Stopping && to == Recording
}

var (
	// ErrStartNotConfirmed is returned when a start did not add exactly one recording session
	ErrStartNotConfirmed = errors.New("session start not confirmed")
	// ErrLifecycleViolation is returned when an observed transition is not allowed
	ErrLifecycleViolation = errors.New("session lifecycle violation")
)

// Tab is one session as rendered by the dashboard
type Tab struct {
	Index       int
	Key         string // full job key from the panel toolbar
	Label       string // tab button text
	Status      State
	StopLabel   string // text of the panel's stop button, empty when absent
	HasTerminal bool
}

// Snapshot is the read-only projection of all session tabs at one instant
type Snapshot struct {
	Tabs []Tab
}

// Count returns the number of tabs
func (s Snapshot) Count() int {
	return len(s.Tabs)
}

// ByKey returns the tab for a job key
func (s Snapshot) ByKey(key string) (Tab, bool) {
	for _, tab := range s.Tabs {
		if tab.Key == key {
			return tab, true
		}
	}
	return Tab{}, false
}

// InState returns the tabs currently in state
func (s Snapshot) InState(state State) []Tab {
	var tabs []Tab
	for _, tab := range s.Tabs {
		if tab.Status == state {
			tabs = append(tabs, tab)
		}
	}
	return tabs
}

// Keys returns the job keys in tab order, skipping tabs without a key
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.Tabs))
	for _, tab := range s.Tabs {
		if tab.Key != "" {
			keys = append(keys, tab.Key)
		}
	}
	return keys
}

// Summary renders the snapshot for logs, e.g. "3 tabs [abc12345:recording ...]"
func (s Snapshot) Summary() string {
	parts := make([]string, 0, len(s.Tabs))
	for _, tab := range s.Tabs {
		key := tab.Key
		if len(key) > 8 {
			key = key[:8]
		}
		parts = append(parts, key+":"+tab.Status.String())
	}
	return fmt.Sprintf("%d tabs [%s]", len(s.Tabs), strings.Join(parts, " "))
}

// ConfirmStarted finds the session a start action created: the one tab in
// after whose key is not in known. known holds every key that existed
// before the click, including sessions the page had yet to restore, so a
// late restore is never mistaken for the new session. The new tab must be
// recording.
func ConfirmStarted(known []string, after Snapshot) (Tab, error) {
	seen := make(map[string]bool, len(known))
	for _, key := range known {
		seen[key] = true
	}

	var added []Tab
	for _, tab := range after.Tabs {
		if tab.Key != "" && !seen[tab.Key] {
			added = append(added, tab)
		}
	}

	switch len(added) {
	case 0:
		return Tab{}, fmt.Errorf("%w: no new session among %d tabs", ErrStartNotConfirmed, after.Count())
	case 1:
	default:
		keys := make([]string, len(added))
		for i, tab := range added {
			keys[i] = tab.Key
		}
		return Tab{}, fmt.Errorf("%w: expected 1 new session, found %d (%s)", ErrStartNotConfirmed, len(added), strings.Join(keys, ", "))
	}

	tab := added[0]
	if tab.Status != Recording {
		return tab, fmt.Errorf("%w: new session %s is %s", ErrStartNotConfirmed, tab.Key, tab.Status)
	}
	return tab, nil
}
