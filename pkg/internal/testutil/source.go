// Package testutil provides mock implementations and testing utilities.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/codeGROOVE-dev/unreviewed/pkg/cache"
	"github.com/codeGROOVE-dev/unreviewed/pkg/types"
)

// MockSource implements fetch.Source for testing.
// It's programmable: configure pull requests, reviews and errors per signature,
// then inspect the recorded calls.
type MockSource struct {
	payloads map[cache.Signature]json.RawMessage
	errors   map[cache.Signature]error
	hook     func(ctx context.Context, sig cache.Signature)
	calls    []cache.Signature
	mu       sync.RWMutex
}

// NewMockSource creates a new MockSource.
func NewMockSource() *MockSource {
	return &MockSource{
		payloads: make(map[cache.Signature]json.RawMessage),
		errors:   make(map[cache.Signature]error),
	}
}

// Fetch records the call and returns the configured payload or error.
// Unconfigured signatures fail.
func (m *MockSource) Fetch(ctx context.Context, sig cache.Signature) (json.RawMessage, error) {
	m.mu.Lock()
	m.calls = append(m.calls, sig)
	hook := m.hook
	m.mu.Unlock()

	if hook != nil {
		hook(ctx, sig)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, ok := m.errors[sig]; ok {
		return nil, err
	}
	if payload, ok := m.payloads[sig]; ok {
		return payload, nil
	}
	return nil, fmt.Errorf("no response configured for %s", sig)
}

// SetPullRequests configures the open pull requests for a repository.
func (m *MockSource) SetPullRequests(org, repo string, prs ...types.PullRequest) {
	if prs == nil {
		prs = []types.PullRequest{}
	}
	m.set(cache.PullsSignature(org, repo), prs)
}

// SetReviews configures the reviews for one pull request.
func (m *MockSource) SetReviews(org, repo string, number int, reviews ...types.Review) {
	if reviews == nil {
		reviews = []types.Review{}
	}
	m.set(cache.ReviewsSignature(org, repo, number), reviews)
}

// SetError configures an error for a signature.
func (m *MockSource) SetError(sig cache.Signature, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errors[sig] = err
}

// SetHook installs a function run at the start of every Fetch, outside the
// mock's lock. Useful for blocking or counting concurrent calls.
func (m *MockSource) SetHook(hook func(ctx context.Context, sig cache.Signature)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hook = hook
}

// Calls returns all recorded fetches in call order.
func (m *MockSource) Calls() []cache.Signature {
	m.mu.RLock()
	defer m.mu.RUnlock()

	calls := make([]cache.Signature, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallCount returns how many times sig was fetched.
func (m *MockSource) CallCount(sig cache.Signature) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, c := range m.calls {
		if c == sig {
			n++
		}
	}
	return n
}

// Reset clears recorded calls, keeping configured responses.
func (m *MockSource) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = nil
}

func (m *MockSource) set(sig cache.Signature, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal mock payload: %v", err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.payloads[sig] = data
}
