// Package testutil provides testing utilities for the atlas-fetch client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// MockRegistry is a configurable mock of the measurement registry's
// list API for testing.
type MockRegistry struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	failures map[string]*failureScript

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
}

// failureScript makes a path fail a fixed number of times before the
// real handler takes over.
type failureScript struct {
	remaining int
	status    int
	body      string
}

// NewMockRegistry creates a new mock registry server.
func NewMockRegistry() *MockRegistry {
	mock := &MockRegistry{
		handlers: make(map[string]http.HandlerFunc),
		failures: make(map[string]*failureScript),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()

		if script, ok := mock.failures[r.URL.Path]; ok && script.remaining > 0 {
			script.remaining--
			status, body := script.status, script.body
			mock.mu.Unlock()
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(status)
			fmt.Fprint(w, body)
			return
		}
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockRegistry) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockRegistry) Close() {
	m.server.Close()
}

// Reset clears all tracking counters and failure scripts.
func (m *MockRegistry) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.failures = make(map[string]*failureScript)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockRegistry) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// FailNTimes makes a path return status with body for the next n
// requests before falling through to its handler.
func (m *MockRegistry) FailNTimes(path string, n, status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = &failureScript{remaining: n, status: status, body: body}
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockRegistry) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// SetPages serves a fixed sequence of pages at path. The first request
// gets the first page; each page links to the next via an absolute
// cursor URL on the same path, mirroring the registry's envelope.
func (m *MockRegistry) SetPages(path string, pages [][]map[string]any) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		pageNum := 1
		if p := r.URL.Query().Get("page"); p != "" {
			if n, err := strconv.Atoi(p); err == nil && n >= 1 {
				pageNum = n
			}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if pageNum > len(pages) {
			fmt.Fprint(w, `{"results": [], "next": null}`)
			return
		}

		next := ""
		if pageNum < len(pages) {
			next = fmt.Sprintf("%s%s?page=%d", m.URL(), path, pageNum+1)
		}
		fmt.Fprint(w, Envelope(pages[pageNum-1], next))
	})
}

// Envelope renders a registry list response body. An empty next yields
// a JSON null next field.
func Envelope(records []map[string]any, next string) string {
	env := map[string]any{
		"results": records,
		"next":    nil,
	}
	if next != "" {
		env["next"] = next
	}
	data, err := json.Marshal(env)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// IDRecords builds records carrying only an "id" field, in order.
func IDRecords(ids ...int64) []map[string]any {
	records := make([]map[string]any, len(ids))
	for i, id := range ids {
		records[i] = map[string]any{"id": id}
	}
	return records
}
