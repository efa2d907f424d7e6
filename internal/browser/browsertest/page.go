// Package browsertest provides a scripted in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ternarybob/profiler-e2e/internal/browser"
)

// ErrDetached is returned for clicks on elements configured as detached
var ErrDetached = errors.New("node is detached from document")

// Page is a browser.Page whose observable state is set by the test. All
// fields are guarded by the page's lock; use Update to change them while
// a poller is running.
type Page struct {
	mu sync.Mutex

	TitleText    string
	Body         string
	Document     string
	Counts       map[string]int
	TextsBy      map[string][]string
	Elements     map[browser.Query]browser.ElementState
	CandidatesBy map[string][]browser.Candidate
	ClickErr     error
	ReadErr      error
	ScreenErr    error
	PNG          []byte

	// OnNavigate runs after every navigation, under the page lock. Tests use
	// it to model what a reload keeps.
	OnNavigate func(p *Page, url string)
	// OnRead runs after every read with the running read count, under the
	// page lock. Tests use it to evolve state as the poller observes it.
	OnRead func(p *Page, reads int)
	// OnClick runs after a successful click, under the page lock.
	OnClick func(p *Page, q browser.Query)
	// BeforeCandidateClick runs before a candidate click is checked, under
	// the page lock. Tests use it to re-render between enumeration and click.
	BeforeCandidateClick func(p *Page)
	// OnCandidateClick runs after a successful candidate click, under the page lock.
	OnCandidateClick func(p *Page, selector string, c browser.Candidate)

	Navigations     []string
	Clicks          []browser.Query
	CandidateClicks []browser.Candidate
	reads           int
}

var _ browser.Page = (*Page)(nil)

// New returns an empty page
func New() *Page {
	return &Page{
		Counts:       map[string]int{},
		TextsBy:      map[string][]string{},
		Elements:     map[browser.Query]browser.ElementState{},
		CandidatesBy: map[string][]browser.Candidate{},
		PNG:          []byte("\x89PNG"),
	}
}

// Update mutates the page under its lock
func (p *Page) Update(fn func(p *Page)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

// Reads returns how many read operations have been served
func (p *Page) Reads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reads
}

// ClickCount returns the number of successful clicks of any kind
func (p *Page) ClickCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Clicks) + len(p.CandidateClicks)
}

// read records a read; callers hold the lock
func (p *Page) read(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.reads++
	if p.OnRead != nil {
		p.OnRead(p, p.reads)
	}
	return p.ReadErr
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	p.Navigations = append(p.Navigations, url)
	if p.OnNavigate != nil {
		p.OnNavigate(p, url)
	}
	return nil
}

func (p *Page) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.read(ctx); err != nil {
		return "", err
	}
	return p.TitleText, nil
}

func (p *Page) BodyText(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.read(ctx); err != nil {
		return "", err
	}
	return p.Body, nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.read(ctx); err != nil {
		return "", err
	}
	return p.Document, nil
}

func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.read(ctx); err != nil {
		return 0, err
	}
	return p.Counts[selector], nil
}

func (p *Page) Texts(ctx context.Context, selector string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.read(ctx); err != nil {
		return nil, err
	}
	return append([]string(nil), p.TextsBy[selector]...), nil
}

func (p *Page) Inspect(ctx context.Context, q browser.Query) (browser.ElementState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.read(ctx); err != nil {
		return browser.ElementState{}, err
	}
	return p.Elements[q], nil
}

func (p *Page) Click(ctx context.Context, q browser.Query) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.ClickErr != nil {
		return p.ClickErr
	}
	if !p.Elements[q].Exists {
		return ErrDetached
	}
	p.Clicks = append(p.Clicks, q)
	if p.OnClick != nil {
		p.OnClick(p, q)
	}
	return nil
}

func (p *Page) Candidates(ctx context.Context, selector string) ([]browser.Candidate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.read(ctx); err != nil {
		return nil, err
	}
	return append([]browser.Candidate(nil), p.CandidatesBy[selector]...), nil
}

func (p *Page) ClickCandidate(ctx context.Context, selector string, c browser.Candidate) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if p.ClickErr != nil {
		return false, p.ClickErr
	}
	if p.BeforeCandidateClick != nil {
		p.BeforeCandidateClick(p)
	}
	current := p.CandidatesBy[selector]
	if c.Index < 0 || c.Index >= len(current) || strings.TrimSpace(current[c.Index].Text) != c.Text {
		return false, nil
	}
	p.CandidateClicks = append(p.CandidateClicks, c)
	if p.OnCandidateClick != nil {
		p.OnCandidateClick(p, selector, c)
	}
	return true, nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.ScreenErr != nil {
		return nil, p.ScreenErr
	}
	return append([]byte(nil), p.PNG...), nil
}
