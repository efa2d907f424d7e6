// Package wait polls a page for a condition with a bounded interval and a
// hard timeout. Every state change the harness depends on is confirmed
// through Until; nothing above this package sleeps for a fixed time.
package wait

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/profiler-e2e/internal/browser"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultInterval = 250 * time.Millisecond
	MinInterval     = 50 * time.Millisecond
)

// Condition is a named, read-only predicate over a page. Probe returns the
// observed value, whether the predicate holds, and any error reading the
// page. Probe errors count as "not yet".
type Condition[T any] struct {
	Description string
	Probe       func(ctx context.Context, page browser.Page) (T, bool, error)
}

// Poller holds the timing policy shared by all waits of a run
type Poller struct {
	timeout  time.Duration
	interval time.Duration
	logger   arbor.ILogger
}

// NewPoller creates a poller. Zero values select the defaults and the
// interval is clamped to MinInterval.
func NewPoller(timeout, interval time.Duration, logger arbor.ILogger) *Poller {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if interval < MinInterval {
		interval = MinInterval
	}
	return &Poller{timeout: timeout, interval: interval, logger: logger}
}

// WithTimeout returns a copy of the poller with a different timeout
func (p *Poller) WithTimeout(timeout time.Duration) *Poller {
	return NewPoller(timeout, p.interval, p.logger)
}

func (p *Poller) Timeout() time.Duration  { return p.timeout }
func (p *Poller) Interval() time.Duration { return p.interval }

// Until probes cond until it holds or the poller's timeout elapses. The
// first probe runs immediately and later ones at most once per interval.
// On timeout the error is a *TimeoutError; if ctx itself is cancelled the
// context error is returned instead.
func Until[T any](ctx context.Context, p *Poller, page browser.Page, cond Condition[T]) (T, error) {
	var zero T

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(p.interval), 1)
	attempts := 0
	var lastErr error

	for {
		if err := limiter.Wait(waitCtx); err != nil {
			// The limiter refuses early when the next slot is past the
			// deadline; hold until the deadline so the full bound is honoured.
			if waitCtx.Err() == nil {
				<-waitCtx.Done()
			}
			break
		}

		attempts++
		value, ok, err := cond.Probe(waitCtx, page)
		if err == nil && ok {
			p.logger.Trace().
				Str("condition", cond.Description).
				Int("attempts", attempts).
				Str("elapsed", time.Since(start).String()).
				Msg("Condition satisfied")
			return value, nil
		}
		if err != nil && waitCtx.Err() == nil {
			lastErr = err
		}
	}

	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("wait for %s cancelled: %w", cond.Description, err)
	}

	return zero, &TimeoutError{
		Condition: cond.Description,
		Timeout:   p.timeout,
		Elapsed:   time.Since(start),
		Attempts:  attempts,
		LastErr:   lastErr,
	}
}

// Settle waits up to bound for a secondary condition that follows an
// already confirmed state change, such as streamed output appearing after
// a session starts. A miss is logged and reported as false; only
// cancellation of ctx is an error.
func Settle[T any](ctx context.Context, p *Poller, page browser.Page, cond Condition[T], bound time.Duration) (bool, error) {
	if bound <= 0 {
		return false, nil
	}

	_, err := Until(ctx, p.WithTimeout(bound), page, cond)
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, err
	}

	p.logger.Warn().
		Str("condition", cond.Description).
		Str("bound", bound.String()).
		Msg("Settle condition not observed, continuing")
	return false, nil
}
