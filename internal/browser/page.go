// Package browser drives a real browser for the harness. Everything above it
// talks to the Page interface so conditions and click strategies can be
// exercised against a scripted page in tests.
package browser

import (
	"context"
	"strings"
)

// Query addresses an element by CSS selector and, optionally, by a text
// fragment the element's rendered text must contain. The first matching
// element in document order is used.
type Query struct {
	Selector string
	Text     string
}

// CSS returns a query for the first element matching selector
func CSS(selector string) Query {
	return Query{Selector: selector}
}

// ButtonText returns a query for the first button whose text contains label
func ButtonText(label string) Query {
	return Query{Selector: "button", Text: label}
}

// String describes the query for logs and failure reports
func (q Query) String() string {
	if q.Text == "" {
		return q.Selector
	}
	var b strings.Builder
	b.WriteString(q.Selector)
	b.WriteString(`[text*="`)
	b.WriteString(q.Text)
	b.WriteString(`"]`)
	return b.String()
}

// ElementState is a read-only observation of a single element
type ElementState struct {
	Exists    bool   `json:"exists"`
	Displayed bool   `json:"displayed"`
	Disabled  bool   `json:"disabled"`
	Text      string `json:"text"`
}

// Clickable reports whether the element can receive a click
func (s ElementState) Clickable() bool {
	return s.Exists && s.Displayed && !s.Disabled
}

// Candidate is one element of a coarse enumeration, used by robust clicking
type Candidate struct {
	Index    int    `json:"index"`
	Text     string `json:"text"`
	Visible  bool   `json:"visible"`
	Disabled bool   `json:"disabled"`
}

// Page is the set of operations the harness needs from a browser tab.
// Read operations never change page state; Click and ClickCandidate are
// the only mutating calls.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	BodyText(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Count(ctx context.Context, selector string) (int, error)
	Texts(ctx context.Context, selector string) ([]string, error)
	Inspect(ctx context.Context, q Query) (ElementState, error)
	Click(ctx context.Context, q Query) error
	Candidates(ctx context.Context, selector string) ([]Candidate, error)
	// ClickCandidate clicks the element at c.Index only if its trimmed text
	// still equals c.Text. It returns false when the element went away or
	// was re-rendered with different text.
	ClickCandidate(ctx context.Context, selector string, c Candidate) (bool, error)
	Screenshot(ctx context.Context) ([]byte, error)
}
