package interact

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/profiler-e2e/internal/browser"
	"github.com/ternarybob/profiler-e2e/internal/wait"
)

// Target describes a button by its label. Exclude lists fragments of
// transitional labels, such as "Stopping", that must never be clicked even
// though they contain the label.
type Target struct {
	Selector string
	Label    string
	Exclude  []string
}

// Button targets a <button> by label. Progressive forms of the label's
// first word are excluded automatically, so Button("Stop") skips a button
// reading "Stopping...".
func Button(label string, exclude ...string) Target {
	return Target{
		Selector: "button",
		Label:    label,
		Exclude:  append(progressiveForms(label), exclude...),
	}
}

// In returns a copy of the target with a different coarse selector
func (t Target) In(selector string) Target {
	t.Selector = selector
	return t
}

func (t Target) String() string {
	return fmt.Sprintf("%s %q", t.Selector, t.Label)
}

// progressiveForms returns the "-ing" spellings of the first word of label
func progressiveForms(label string) []string {
	fields := strings.Fields(label)
	if len(fields) == 0 {
		return nil
	}
	word := fields[0]
	forms := []string{word + "ing"}
	if n := len(word); n > 1 {
		if strings.HasSuffix(word, "e") {
			forms = append(forms, word[:n-1]+"ing")
		} else {
			forms = append(forms, word+word[n-1:]+"ing")
		}
	}
	return forms
}

// Matches reports whether a candidate is an acceptable click target
func (t Target) Matches(c browser.Candidate) bool {
	if !c.Visible || c.Disabled {
		return false
	}
	text := strings.TrimSpace(c.Text)
	if text != t.Label && !strings.Contains(text, t.Label) {
		return false
	}
	lower := strings.ToLower(text)
	for _, ex := range t.Exclude {
		if ex != "" && strings.Contains(lower, strings.ToLower(ex)) {
			return false
		}
	}
	return true
}

// Select returns the first acceptable candidate in document order
func (t Target) Select(candidates []browser.Candidate) (browser.Candidate, bool) {
	for _, c := range candidates {
		if t.Matches(c) {
			c.Text = strings.TrimSpace(c.Text)
			return c, true
		}
	}
	return browser.Candidate{}, false
}

// TryClick enumerates candidates once and clicks the first acceptable one.
// It reports false when nothing matched or the element changed before the
// click landed.
func (i *Interactor) TryClick(ctx context.Context, t Target) bool {
	_, ok, err := i.tryClick(ctx, i.page, t)
	if err != nil {
		i.logger.Debug().Err(err).Str("target", t.String()).Msg("Click attempt failed")
	}
	return ok
}

func (i *Interactor) tryClick(ctx context.Context, page browser.Page, t Target) (browser.Candidate, bool, error) {
	candidates, err := page.Candidates(ctx, t.Selector)
	if err != nil {
		return browser.Candidate{}, false, err
	}

	c, ok := t.Select(candidates)
	if !ok {
		return browser.Candidate{}, false, nil
	}

	clicked, err := page.ClickCandidate(ctx, t.Selector, c)
	if err != nil {
		return c, false, err
	}
	return c, clicked, nil
}

// ClickUntil retries TryClick through the poller and returns the clicked
// candidate. It fails with ErrNoInteractableElement when no acceptable
// candidate was clicked within the wait bound.
func (i *Interactor) ClickUntil(ctx context.Context, t Target) (browser.Candidate, error) {
	cond := wait.Condition[browser.Candidate]{
		Description: fmt.Sprintf("interactable %s", t),
		Probe: func(ctx context.Context, page browser.Page) (browser.Candidate, bool, error) {
			return i.tryClick(ctx, page, t)
		},
	}

	c, err := wait.Until(ctx, i.poller, i.page, cond)
	if err != nil {
		if _, ok := wait.AsTimeout(err); ok {
			return browser.Candidate{}, fmt.Errorf("%w: %s: %w", ErrNoInteractableElement, t, err)
		}
		return browser.Candidate{}, err
	}

	i.logger.Debug().
		Str("target", t.String()).
		Int("index", c.Index).
		Str("text", c.Text).
		Msg("Clicked candidate")
	return c, nil
}
