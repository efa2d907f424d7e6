// Package dashboard talks to the dashboard's server side directly: the
// profiler jobs API and the per-session terminal stream. The harness uses
// it to cross-check what the UI shows.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	DefaultJobsPath = "/api/profiler/jobs"
	DefaultTimeout  = 10 * time.Second
)

// Job is one profiling job as stored by the server
type Job struct {
	StartedAt  float64 `json:"started_at"`
	EndedAt    float64 `json:"ended_at,omitempty"`
	Parent     string  `json:"parent,omitempty"`
	QueryCount *int    `json:"query_count,omitempty"`
}

// JobSet maps job keys to jobs. The server encodes an empty set as [] and
// a populated one as an object, so both forms decode.
type JobSet map[string]Job

func (s *JobSet) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = JobSet{}
		return nil
	}
	if trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		if len(list) > 0 {
			return fmt.Errorf("unexpected non-empty job list")
		}
		*s = JobSet{}
		return nil
	}

	m := map[string]Job{}
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return err
	}
	*s = m
	return nil
}

// Keys returns the job keys sorted
func (s JobSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Jobs is the jobs API response
type Jobs struct {
	Active    JobSet `json:"active_jobs"`
	Completed JobSet `json:"completed_jobs"`
}

// APIError represents a non-200 response from the dashboard API
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dashboard API error: %s (status %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Client is a dashboard API client
type Client struct {
	baseURL    string
	jobsPath   string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithJobsPath sets the jobs endpoint path
func WithJobsPath(path string) ClientOption {
	return func(c *Client) {
		if path != "" {
			c.jobsPath = path
		}
	}
}

// NewClient creates a client for the dashboard at baseURL
func NewClient(baseURL string, logger arbor.ILogger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		jobsPath: DefaultJobsPath,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Jobs fetches the active and completed jobs
func (c *Client) Jobs(ctx context.Context) (Jobs, error) {
	var jobs Jobs
	if err := c.get(ctx, c.jobsPath, &jobs); err != nil {
		return Jobs{}, err
	}
	if jobs.Active == nil {
		jobs.Active = JobSet{}
	}
	if jobs.Completed == nil {
		jobs.Completed = JobSet{}
	}
	return jobs, nil
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", c.baseURL+path).Msg("Dashboard API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Mismatch describes UI sessions the server does not agree with
type Mismatch struct {
	NotActive []string // recording in the UI but not active on the server
}

func (m Mismatch) Empty() bool {
	return len(m.NotActive) == 0
}

func (m Mismatch) Error() string {
	return fmt.Sprintf("sessions recording in the UI but not active on the server: %s", strings.Join(m.NotActive, ", "))
}

// CompareRecording checks that every job key shown as recording in the UI
// is active on the server
func CompareRecording(recording []string, jobs Jobs) Mismatch {
	var m Mismatch
	for _, key := range recording {
		if _, ok := jobs.Active[key]; !ok {
			m.NotActive = append(m.NotActive, key)
		}
	}
	return m
}
