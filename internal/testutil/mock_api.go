// Package testutil provides testing utilities for the ingestion engine.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// ScriptedResponse defines one mock response in a per-path script.
type ScriptedResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockAPI is a configurable mock upstream API server for testing. It serves
// cursor-paginated collections and scripted failure sequences.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	scripts  map[string][]ScriptedResponse

	// Tracking
	requestCount int
	pathCounts   map[string]int
}

// NewMockAPI creates a new mock API server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers:   make(map[string]http.HandlerFunc),
		scripts:    make(map[string][]ScriptedResponse),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++

		// Scripted responses take precedence and are consumed one by one.
		if script, ok := mock.scripts[r.URL.Path]; ok && len(script) > 0 {
			resp := script[0]
			mock.scripts[r.URL.Path] = script[1:]
			mock.mu.Unlock()

			if resp.Delay > 0 {
				time.Sleep(resp.Delay)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(resp.StatusCode)
			fmt.Fprint(w, resp.Body)
			return
		}

		handler, ok := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if ok {
			handler(w, r)
			return
		}

		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": "not found"}`)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Handle registers a custom handler for a path. Scripted responses for the
// same path are served first.
func (m *MockAPI) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = h
}

// Script queues responses for a path, served in order before any handler.
func (m *MockAPI) Script(path string, responses ...ScriptedResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[path] = append(m.scripts[path], responses...)
}

// SetCollection configures a cursor-paginated collection endpoint. Each page
// holds the given items under field; every page except the last carries a
// cursor token echoed back via the cursor query parameter.
func (m *MockAPI) SetCollection(path, field string, pages [][]map[string]any) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		pageIdx := 0
		if cursor := r.URL.Query().Get("cursor"); cursor != "" {
			fmt.Sscanf(cursor, "cursor-%d", &pageIdx)
		}

		body := map[string]any{}
		if pageIdx < len(pages) {
			body[field] = pages[pageIdx]
			if pageIdx < len(pages)-1 {
				body["cursor"] = fmt.Sprintf("cursor-%d", pageIdx+1)
			}
		} else {
			body[field] = []map[string]any{}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(body)
	})
}

// RequestCount returns the total number of requests served.
func (m *MockAPI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// PathCount returns the number of requests served for one path.
func (m *MockAPI) PathCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pathCounts[path]
}

// Reset clears all tracking counters, scripts, and handlers.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
	m.scripts = make(map[string][]ScriptedResponse)
	m.handlers = make(map[string]http.HandlerFunc)
}

// MakeItems builds n distinct items with ticker identifiers derived from
// prefix, starting at index start.
func MakeItems(prefix string, start, n int) []map[string]any {
	items := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, map[string]any{
			"ticker": fmt.Sprintf("%s-%05d", prefix, start+i),
			"status": "open",
		})
	}
	return items
}
