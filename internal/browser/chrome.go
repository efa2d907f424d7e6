package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/profiler-e2e/internal/common"
)

var _ Page = (*Chrome)(nil)

// Chrome is a Page backed by a headless Chrome tab driven over CDP
type Chrome struct {
	ctx    context.Context
	logger arbor.ILogger

	mu      sync.Mutex
	cleanup []func()
	closed  bool

	consoleMu sync.Mutex
	console   []string
}

// allocatorOptions builds the Chrome flags for a browser configuration
func allocatorOptions(config common.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("force-device-scale-factor", "1"),
		chromedp.WindowSize(config.WindowWidth, config.WindowHeight),
	)
	if config.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if config.DisableDevShm {
		opts = append(opts, chromedp.Flag("disable-dev-shm-usage", true))
	}
	if config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(config.ExecPath))
	}
	return opts
}

// NewChrome launches a browser and opens a single tab. The parent context
// bounds the browser's whole lifetime; call Close to release it early.
func NewChrome(parent context.Context, config common.BrowserConfig, logger arbor.ILogger) (*Chrome, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, allocatorOptions(config)...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	c := &Chrome{
		ctx:     browserCtx,
		logger:  logger,
		cleanup: make([]func(), 0),
	}

	// Cleanup runs in reverse order (LIFO)
	c.cleanup = append(c.cleanup, func() { cancelAlloc() })
	c.cleanup = append(c.cleanup, func() { cancelBrowser() })
	c.cleanup = append(c.cleanup, func() {
		if err := chromedp.Cancel(browserCtx); err != nil {
			logger.Debug().Err(err).Msg("Browser cancel returned")
		}
	})

	chromedp.ListenTarget(browserCtx, c.onEvent)

	// First Run starts the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Debug().
		Bool("headless", config.Headless).
		Int("width", config.WindowWidth).
		Int("height", config.WindowHeight).
		Msg("Browser started")

	return c, nil
}

// Close tears the browser down. It is safe to call more than once.
func (c *Chrome) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	for i := len(c.cleanup) - 1; i >= 0; i-- {
		c.cleanup[i]()
	}
	c.logger.Debug().Msg("Browser closed")
}

// onEvent records uncaught exceptions and console errors/warnings raised by
// the dashboard's scripts
func (c *Chrome) onEvent(ev interface{}) {
	var msg string
	switch e := ev.(type) {
	case *runtime.EventExceptionThrown:
		if e.ExceptionDetails == nil {
			return
		}
		msg = e.ExceptionDetails.Text
		if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
			msg = e.ExceptionDetails.Exception.Description
		}
		msg = "[Exception] " + msg
	case *runtime.EventConsoleAPICalled:
		if e.Type != runtime.APITypeError && e.Type != runtime.APITypeWarning {
			return
		}
		parts := make([]string, 0, len(e.Args))
		for _, arg := range e.Args {
			if arg.Value != nil {
				parts = append(parts, string(arg.Value))
			}
		}
		msg = fmt.Sprintf("[%s] %s", e.Type, strings.Join(parts, " "))
	default:
		return
	}

	c.consoleMu.Lock()
	c.console = append(c.console, msg)
	c.consoleMu.Unlock()

	c.logger.Debug().Str("message", msg).Msg("Browser console")
}

// ConsoleErrors returns the exceptions and console errors seen so far
func (c *Chrome) ConsoleErrors() []string {
	c.consoleMu.Lock()
	defer c.consoleMu.Unlock()
	return append([]string(nil), c.console...)
}

// run executes actions on the tab, bounded by the caller's deadline and
// cancellation. Cancelling a child of the tab context aborts the action
// without closing the tab.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (c *Chrome) eval(ctx context.Context, out interface{}, fn string, args ...interface{}) error {
	script, err := call(fn, args...)
	if err != nil {
		return err
	}
	return c.run(ctx, chromedp.Evaluate(script, out))
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := c.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (c *Chrome) Title(ctx context.Context) (string, error) {
	var title string
	if err := c.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return title, nil
}

func (c *Chrome) BodyText(ctx context.Context) (string, error) {
	var text string
	if err := c.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ''`, &text)); err != nil {
		return "", fmt.Errorf("failed to read body text: %w", err)
	}
	return text, nil
}

func (c *Chrome) HTML(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, chromedp.Evaluate(`document.documentElement.outerHTML`, &html)); err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	return html, nil
}

func (c *Chrome) Count(ctx context.Context, selector string) (int, error) {
	var n int
	if err := c.eval(ctx, &n, `(sel) => document.querySelectorAll(sel).length`, selector); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", selector, err)
	}
	return n, nil
}

func (c *Chrome) Texts(ctx context.Context, selector string) ([]string, error) {
	var texts []string
	if err := c.eval(ctx, &texts, textsScript, selector); err != nil {
		return nil, fmt.Errorf("failed to read text of %s: %w", selector, err)
	}
	return texts, nil
}

func (c *Chrome) Inspect(ctx context.Context, q Query) (ElementState, error) {
	var state ElementState
	if err := c.eval(ctx, &state, inspectScript, q.Selector, q.Text); err != nil {
		return ElementState{}, fmt.Errorf("failed to inspect %s: %w", q, err)
	}
	return state, nil
}

// Click performs a native (CDP input) click on the element the query resolves to
func (c *Chrome) Click(ctx context.Context, q Query) error {
	token := uuid.New().String()

	var found bool
	if err := c.eval(ctx, &found, markScript, q.Selector, q.Text, token); err != nil {
		return fmt.Errorf("failed to resolve %s: %w", q, err)
	}
	if !found {
		return fmt.Errorf("element %s is no longer attached", q)
	}

	target := fmt.Sprintf(`[data-e2e-target="%s"]`, token)
	if err := c.run(ctx, chromedp.Click(target, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("failed to click %s: %w", q, err)
	}
	return nil
}

func (c *Chrome) Candidates(ctx context.Context, selector string) ([]Candidate, error) {
	var candidates []Candidate
	if err := c.eval(ctx, &candidates, candidatesScript, selector); err != nil {
		return nil, fmt.Errorf("failed to enumerate %s: %w", selector, err)
	}
	return candidates, nil
}

func (c *Chrome) ClickCandidate(ctx context.Context, selector string, candidate Candidate) (bool, error) {
	var clicked bool
	if err := c.eval(ctx, &clicked, clickCandidateScript, selector, candidate.Index, candidate.Text); err != nil {
		return false, fmt.Errorf("failed to click %s[%d]: %w", selector, candidate.Index, err)
	}
	return clicked, nil
}

func (c *Chrome) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := c.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}
