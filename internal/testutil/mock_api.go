// Package testutil provides a scripted mock of the travel-log API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for one mock API response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is what the mock saw of an incoming request.
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
}

// MockAPI is a configurable mock travel-log API server for testing.
//
// Responses are scripted per path. A path registered with a trailing slash
// also matches every path below it, so "/polyline/" serves "/polyline/1,2".
// Each scripted path plays its responses in order and repeats the last one.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.Mutex
	scripts  map[string][]MockResponse
	handlers map[string]http.HandlerFunc
	requests []RecordedRequest
}

// NewMockAPI creates and starts a new mock API server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		scripts:  make(map[string][]MockResponse),
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

func (m *MockAPI) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Header:   r.Header.Clone(),
	})

	key, ok := m.match(r.URL.Path)
	if !ok {
		m.mu.Unlock()
		http.NotFound(w, r)
		return
	}

	if handler, exists := m.handlers[key]; exists {
		m.mu.Unlock()
		handler(w, r)
		return
	}

	queue := m.scripts[key]
	resp := queue[0]
	if len(queue) > 1 {
		m.scripts[key] = queue[1:]
	}
	m.mu.Unlock()

	writeResponse(w, resp)
}

// match finds the registered key for path; callers hold m.mu.
func (m *MockAPI) match(path string) (string, bool) {
	if _, ok := m.handlers[path]; ok {
		return path, true
	}
	if _, ok := m.scripts[path]; ok {
		return path, true
	}

	best := ""
	for key := range m.keys() {
		if strings.HasSuffix(key, "/") && strings.HasPrefix(path, key) && len(key) > len(best) {
			best = key
		}
	}
	return best, best != ""
}

func (m *MockAPI) keys() map[string]bool {
	keys := make(map[string]bool, len(m.handlers)+len(m.scripts))
	for key := range m.handlers {
		keys[key] = true
	}
	for key := range m.scripts {
		keys[key] = true
	}
	return keys
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SetHandler sets a custom handler for a path (or path prefix ending in "/").
func (m *MockAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scripts, path)
	m.handlers[path] = handler
}

// SetResponse configures a single response that is served for every request to path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetSequence(path, resp)
}

// SetSequence configures responses served in order; the last one repeats.
func (m *MockAPI) SetSequence(path string, responses ...MockResponse) {
	if len(responses) == 0 {
		panic("testutil: SetSequence needs at least one response")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, path)
	m.scripts[path] = append([]MockResponse(nil), responses...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of all recorded requests in arrival order.
func (m *MockAPI) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockAPI) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1].Header
}

// NewOKResponse creates a standard 200 OK JSON response.
func NewOKResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewRateLimitResponse creates a 429 response with the given Retry-After value.
func NewRateLimitResponse(retryAfter string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message": "Too Many Attempts."}`,
		Headers: map[string]string{
			"Retry-After":  retryAfter,
			"Content-Type": "application/json",
		},
	}
}

// NewRateLimitResponseWithoutRetryAfter creates a malformed 429 response.
func NewRateLimitResponseWithoutRetryAfter() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message": "Too Many Attempts."}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message": "Server Error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// Status is the subset of a status record the mock renders.
type Status struct {
	ID          int64
	Visibility  int
	Category    string
	Origin      string
	Destination string
}

// StatusesPage renders a statuses page body. An empty next renders as null.
func StatusesPage(next string, statuses ...Status) string {
	type place struct {
		Name string `json:"name"`
	}
	type train struct {
		Category    string `json:"category"`
		Origin      place  `json:"origin"`
		Destination place  `json:"destination"`
	}
	type status struct {
		ID         int64 `json:"id"`
		Visibility int   `json:"visibility"`
		Train      train `json:"train"`
	}

	data := make([]status, 0, len(statuses))
	for _, s := range statuses {
		data = append(data, status{
			ID:         s.ID,
			Visibility: s.Visibility,
			Train: train{
				Category:    s.Category,
				Origin:      place{Name: s.Origin},
				Destination: place{Name: s.Destination},
			},
		})
	}

	var nextLink *string
	if next != "" {
		nextLink = &next
	}

	page := map[string]any{
		"data":  data,
		"links": map[string]any{"next": nextLink},
	}

	b, err := json.Marshal(page)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal statuses page: %v", err))
	}
	return string(b)
}

// PolylineBody renders a polyline response whose payload is a feature
// collection tagged with the requested ids.
func PolylineBody(ids string) string {
	return fmt.Sprintf(`{"data":{"type":"FeatureCollection","features":[],"ids":%q}}`, ids)
}

// NewPolylineHandler serves PolylineBody for the ids in the last path segment.
func NewPolylineHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(PolylineBody(ids)))
	}
}
