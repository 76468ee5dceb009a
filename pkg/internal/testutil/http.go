package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// MockHTTPDoer implements github.HTTPDoer and http.RoundTripper for testing.
// It's programmable - you can configure responses for specific requests.
// Responses are matched on method and full URL first, then on method and URL
// without its query string.
type MockHTTPDoer struct {
	responses map[string]mockResponse
	errors    map[string]error
	calls     []HTTPCall
	mu        sync.RWMutex
}

type mockResponse struct {
	header     http.Header
	body       []byte
	statusCode int
}

// HTTPCall records a single HTTP call.
type HTTPCall struct {
	Method string
	URL    string
	Body   []byte
}

// NewMockHTTPDoer creates a new MockHTTPDoer.
func NewMockHTTPDoer() *MockHTTPDoer {
	return &MockHTTPDoer{
		responses: make(map[string]mockResponse),
		errors:    make(map[string]error),
		calls:     []HTTPCall{},
	}
}

// RoundTrip implements http.RoundTripper.
func (m *MockHTTPDoer) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Do(req)
}

// Do executes the HTTP request and returns the configured response.
func (m *MockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Record the call
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			// If we can't read the body, return an error response
			return &http.Response{
				StatusCode: http.StatusBadRequest,
				Body:       io.NopCloser(strings.NewReader(`{"error":"failed to read request body"}`)),
				Header:     make(http.Header),
			}, nil
		}
		req.Body = io.NopCloser(bytes.NewReader(body)) // Restore body
	}
	m.calls = append(m.calls, HTTPCall{
		Method: req.Method,
		URL:    req.URL.String(),
		Body:   body,
	})

	stripped := *req.URL
	stripped.RawQuery = ""
	for _, key := range []string{m.makeKey(req.Method, req.URL.String()), m.makeKey(req.Method, stripped.String())} {
		// Check for configured error
		if err, ok := m.errors[key]; ok {
			return nil, err
		}

		// Check for configured response
		if resp, ok := m.responses[key]; ok {
			return resp.build(req), nil
		}
	}

	// Default 404 response
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Status:     "404 Not Found",
		Body:       io.NopCloser(strings.NewReader(`{"message":"not found"}`)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// SetResponse configures a response for a specific method and URL.
func (m *MockHTTPDoer) SetResponse(method, url string, statusCode int, body any) {
	m.SetResponseWithHeaders(method, url, statusCode, body, nil)
}

// SetResponseWithHeaders configures a response carrying extra headers.
func (m *MockHTTPDoer) SetResponseWithHeaders(method, url string, statusCode int, body any, header http.Header) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			panic(fmt.Sprintf("failed to marshal response body: %v", err))
		}
	}

	if header == nil {
		header = make(http.Header)
	}
	key := m.makeKey(method, url)
	m.responses[key] = mockResponse{
		statusCode: statusCode,
		body:       bodyBytes,
		header:     header,
	}
}

// build returns a fresh response so a configured reply can be served many times.
func (r mockResponse) build(req *http.Request) *http.Response {
	header := r.header.Clone()
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}
	return &http.Response{
		StatusCode: r.statusCode,
		Status:     fmt.Sprintf("%d %s", r.statusCode, http.StatusText(r.statusCode)),
		Body:       io.NopCloser(bytes.NewReader(r.body)),
		Header:     header,
		Request:    req,
	}
}

// SetError configures an error for a specific method and URL.
func (m *MockHTTPDoer) SetError(method, url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.makeKey(method, url)
	m.errors[key] = err
}

// Calls returns all recorded HTTP calls.
func (m *MockHTTPDoer) Calls() []HTTPCall {
	m.mu.RLock()
	defer m.mu.RUnlock()

	calls := make([]HTTPCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// Reset clears all configured responses and recorded calls.
func (m *MockHTTPDoer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses = make(map[string]mockResponse)
	m.errors = make(map[string]error)
	m.calls = []HTTPCall{}
}

func (*MockHTTPDoer) makeKey(method, url string) string {
	return method + ":" + url
}
