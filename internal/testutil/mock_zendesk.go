// Package testutil provides a configurable mock Zendesk API server for tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// MockZendesk is a configurable in-process Zendesk API for tests. Handlers
// are registered per path; unregistered paths return a JSON 404. All counters
// are safe for concurrent use, since export tests hit the server from worker
// pools.
type MockZendesk struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	requestCount map[string]int
	lastHeader   http.Header
}

// NewMockZendesk starts a mock server. Callers must Close it.
func NewMockZendesk() *MockZendesk {
	mock := &MockZendesk{
		handlers:     make(map[string]http.HandlerFunc),
		requestCount: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount[r.URL.Path]++
		mock.lastHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"error":{"title":"Not Found","message":"unregistered path %s"}}`, r.URL.Path)
	}))

	return mock
}

// URL returns the mock server's base URL.
func (m *MockZendesk) URL() string {
	return m.server.URL
}

// Close shuts the server down.
func (m *MockZendesk) Close() {
	m.server.Close()
}

// Handle registers a handler for a path.
func (m *MockZendesk) Handle(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// HandleJSON registers a fixed JSON response for a path.
func (m *MockZendesk) HandleJSON(path string, status int, body string) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	})
}

// HandleSequence registers responses served in order; the last one repeats.
func (m *MockZendesk) HandleSequence(path string, responses ...MockResponse) {
	var mu sync.Mutex
	index := 0
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[index]
		if index < len(responses)-1 {
			index++
		}
		mu.Unlock()

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		fmt.Fprint(w, resp.Body)
	})
}

// MockResponse is one canned response for HandleSequence.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// Requests returns how many requests hit the given path.
func (m *MockZendesk) Requests(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount[path]
}

// TotalRequests returns the total request count across all paths.
func (m *MockZendesk) TotalRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, n := range m.requestCount {
		total += n
	}
	return total
}

// LastHeader returns the headers of the most recent request.
func (m *MockZendesk) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}
