// Package interact locates and clicks dashboard elements. Locate waits for
// an element to reach a readiness level and Click performs one native
// click; the robust strategy in robust.go re-selects among candidates on
// every attempt for buttons whose label changes while a request is pending.
package interact

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/profiler-e2e/internal/browser"
	"github.com/ternarybob/profiler-e2e/internal/wait"
)

// Readiness is the state an element must reach before Locate returns it
type Readiness int

const (
	Present Readiness = iota
	Clickable
)

func (r Readiness) String() string {
	if r == Clickable {
		return "clickable"
	}
	return "present"
}

// ElementHandle refers to an element located on the page. It holds the
// query, not a node reference, so a re-rendered element is re-resolved on
// click.
type ElementHandle struct {
	Query browser.Query
	State browser.ElementState
}

// Interactor locates and clicks elements on a page
type Interactor struct {
	page   browser.Page
	poller *wait.Poller
	logger arbor.ILogger
}

// New creates an interactor for page using poller for every wait
func New(page browser.Page, poller *wait.Poller, logger arbor.ILogger) *Interactor {
	return &Interactor{page: page, poller: poller, logger: logger}
}

// Locate blocks until an element matching q reaches readiness
func (i *Interactor) Locate(ctx context.Context, q browser.Query, readiness Readiness) (ElementHandle, error) {
	cond := wait.ElementPresent(q)
	if readiness == Clickable {
		cond = wait.ElementClickable(q)
	}

	state, err := wait.Until(ctx, i.poller, i.page, cond)
	if err != nil {
		if errors.Is(err, wait.ErrTimeoutExceeded) {
			return ElementHandle{}, fmt.Errorf("%w: %s not %s: %w", ErrElementNotFound, q, readiness, err)
		}
		return ElementHandle{}, err
	}

	return ElementHandle{Query: q, State: state}, nil
}

// Click performs one native click. Driver errors are wrapped in
// ErrInteractionFailed and not retried.
func (i *Interactor) Click(ctx context.Context, h ElementHandle) error {
	if err := i.page.Click(ctx, h.Query); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInteractionFailed, h.Query, err)
	}
	i.logger.Debug().Str("element", h.Query.String()).Msg("Clicked")
	return nil
}

// LocateAndClick waits for q to be clickable and clicks it once
func (i *Interactor) LocateAndClick(ctx context.Context, q browser.Query) error {
	h, err := i.Locate(ctx, q, Clickable)
	if err != nil {
		return err
	}
	return i.Click(ctx, h)
}

// ClickWithRetry locates q and retries failed clicks until one succeeds or
// the wait bound elapses. A timeout reports the last click failure.
func (i *Interactor) ClickWithRetry(ctx context.Context, q browser.Query) error {
	cond := wait.Condition[ElementHandle]{
		Description: fmt.Sprintf("click on %s to succeed", q),
		Probe: func(ctx context.Context, page browser.Page) (ElementHandle, bool, error) {
			state, err := page.Inspect(ctx, q)
			if err != nil || !state.Clickable() {
				return ElementHandle{}, false, err
			}
			h := ElementHandle{Query: q, State: state}
			if err := i.Click(ctx, h); err != nil {
				return h, false, err
			}
			return h, true, nil
		},
	}

	_, err := wait.Until(ctx, i.poller, i.page, cond)
	if err != nil {
		if te, ok := wait.AsTimeout(err); ok {
			if te.LastErr != nil && errors.Is(te.LastErr, ErrInteractionFailed) {
				return fmt.Errorf("%w: %s: %w", ErrInteractionFailed, q, err)
			}
			return fmt.Errorf("%w: %s not clickable: %w", ErrElementNotFound, q, err)
		}
		return err
	}
	return nil
}
