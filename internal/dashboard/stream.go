package dashboard

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/profiler-e2e/internal/common"
)

const DefaultStreamPath = "/ws/logs/"

// StreamResult reports what a terminal stream delivered within the probe bound
type StreamResult struct {
	URL       string
	Connected bool
	Delivered bool   // a frame arrived within the bound
	Received  string // first frame text, capped
	Elapsed   time.Duration
}

const maxReceived = 4096

// StreamProbe opens terminal streams for sessions
type StreamProbe struct {
	baseURL string
	path    string
	dialer  *websocket.Dialer
	logger  arbor.ILogger
}

// NewStreamProbe creates a probe for the dashboard at baseURL
func NewStreamProbe(baseURL, path string, logger arbor.ILogger) *StreamProbe {
	if path == "" {
		path = DefaultStreamPath
	}
	return &StreamProbe{
		baseURL: baseURL,
		path:    path,
		dialer:  websocket.DefaultDialer,
		logger:  logger,
	}
}

// StreamURL returns the websocket URL for a job key
func (p *StreamProbe) StreamURL(key string) (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Trim(p.path, "/") + "/" + url.PathEscape(key)
	u.RawQuery = ""
	return u.String(), nil
}

// Probe connects to the stream for key and waits up to bound for the first
// frame. A failed dial is an error; a connection that delivers nothing is
// reported with Delivered false.
func (p *StreamProbe) Probe(ctx context.Context, key string, bound time.Duration) (StreamResult, error) {
	start := time.Now()

	streamURL, err := p.StreamURL(key)
	if err != nil {
		return StreamResult{}, err
	}
	result := StreamResult{URL: streamURL}

	conn, _, err := p.dialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		result.Elapsed = time.Since(start)
		return result, fmt.Errorf("failed to connect to %s: %w", streamURL, err)
	}
	defer conn.Close()
	result.Connected = true

	// Unblock the read loop if the caller gives up
	done := make(chan struct{})
	defer close(done)
	common.SafeGo(p.logger, "stream-probe", func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	})

	deadline := start.Add(bound)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return result, fmt.Errorf("failed to set read deadline: %w", err)
	}

	if _, data, err := conn.ReadMessage(); err == nil {
		result.Delivered = true
		result.Received = truncateRunes(string(data), maxReceived)
	}
	result.Elapsed = time.Since(start)

	p.logger.Debug().
		Str("url", streamURL).
		Bool("delivered", result.Delivered).
		Str("elapsed", result.Elapsed.String()).
		Msg("Terminal stream probed")

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// truncateRunes cuts s to at most max bytes without splitting a rune
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
