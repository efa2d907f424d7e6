package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestJobSet_DecodesObjectAndEmptyArray(t *testing.T) {
	var jobs Jobs
	require.NoError(t, json.Unmarshal([]byte(`{
		"active_jobs": {"abc": {"started_at": 1700000000.5, "parent": null}},
		"completed_jobs": []
	}`), &jobs))

	assert.Equal(t, []string{"abc"}, jobs.Active.Keys())
	assert.Empty(t, jobs.Completed)
	assert.NotNil(t, jobs.Completed)

	var set JobSet
	assert.Error(t, json.Unmarshal([]byte(`[{"started_at": 1}]`), &set))
	require.NoError(t, json.Unmarshal([]byte(`null`), &set))
	assert.NotNil(t, set)
}

func TestClient_Jobs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/profiler/jobs", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"active_jobs":{"job-1":{"started_at":1.0,"parent":null}},"completed_jobs":{"job-0":{"started_at":0.5,"ended_at":0.9,"query_count":8}}}`))
	}))
	defer server.Close()

	jobs, err := NewClient(server.URL+"/", arbor.NewLogger()).Jobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, jobs.Active.Keys())
	require.NotNil(t, jobs.Completed["job-0"].QueryCount)
	assert.Equal(t, 8, *jobs.Completed["job-0"].QueryCount)
}

func TestClient_Jobs_MissingSets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	jobs, err := NewClient(server.URL, arbor.NewLogger(), WithHTTPClient(server.Client())).Jobs(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, jobs.Active)
	assert.NotNil(t, jobs.Completed)
}

func TestClient_Jobs_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, arbor.NewLogger(), WithJobsPath("/jobs")).Jobs(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "/jobs", apiErr.Endpoint)
	assert.Equal(t, "boom", apiErr.Message)
}

func TestCompareRecording(t *testing.T) {
	jobs := Jobs{Active: JobSet{"a": {}, "b": {}}, Completed: JobSet{"c": {}}}

	assert.True(t, CompareRecording([]string{"a", "b"}, jobs).Empty())

	m := CompareRecording([]string{"a", "c"}, jobs)
	assert.False(t, m.Empty())
	assert.Equal(t, []string{"c"}, m.NotActive)
	assert.Contains(t, m.Error(), "c")
}

func TestStreamURL(t *testing.T) {
	probe := NewStreamProbe("https://demo.example.com:8443/app/", "", arbor.NewLogger())
	u, err := probe.StreamURL("abc_123")
	require.NoError(t, err)
	assert.Equal(t, "wss://demo.example.com:8443/app/ws/logs/abc_123", u)

	probe = NewStreamProbe("http://localhost:8080", "/ws/logs/", arbor.NewLogger())
	u, err = probe.StreamURL("k")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws/logs/k", u)
}

func newStreamServer(t *testing.T, send string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/ws/logs/") {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if send != "" {
			conn.WriteMessage(websocket.TextMessage, []byte(send))
		}
		// Hold the connection until the client leaves
		conn.ReadMessage()
	}))
}

func TestStreamProbe_Delivered(t *testing.T) {
	server := newStreamServer(t, "\x1b[90mWaiting for profiler log file...\x1b[0m\r\n")
	defer server.Close()

	result, err := NewStreamProbe(server.URL, "", arbor.NewLogger()).Probe(context.Background(), "job-1", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, result.Connected)
	assert.True(t, result.Delivered)
	assert.Contains(t, result.Received, "Waiting for profiler log file")
}

func TestStreamProbe_LongFrameKeepsWholeRunes(t *testing.T) {
	// one ASCII byte shifts every two-byte rune across the cap
	server := newStreamServer(t, "a"+strings.Repeat("é", maxReceived))
	defer server.Close()

	result, err := NewStreamProbe(server.URL, "", arbor.NewLogger()).Probe(context.Background(), "job-1", 2*time.Second)
	require.NoError(t, err)
	require.True(t, result.Delivered)
	assert.True(t, utf8.ValidString(result.Received))
	assert.LessOrEqual(t, len(result.Received), maxReceived)
	assert.Equal(t, maxReceived-1, len(result.Received))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 10))
	assert.Equal(t, "ab", truncateRunes("ab€", 4))
	assert.Equal(t, "ab€", truncateRunes("ab€d", 5))
	assert.Equal(t, "", truncateRunes("€", 2))
	assert.Equal(t, "abc", truncateRunes("abcdef", 3))
}

func TestStreamProbe_Silent(t *testing.T) {
	server := newStreamServer(t, "")
	defer server.Close()

	result, err := NewStreamProbe(server.URL, "", arbor.NewLogger()).Probe(context.Background(), "job-1", 150*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, result.Connected)
	assert.False(t, result.Delivered)
	assert.GreaterOrEqual(t, result.Elapsed, 150*time.Millisecond)
}

func TestStreamProbe_DialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	result, err := NewStreamProbe(server.URL, "", arbor.NewLogger()).Probe(context.Background(), "job-1", time.Second)
	require.Error(t, err)
	assert.False(t, result.Connected)
}
