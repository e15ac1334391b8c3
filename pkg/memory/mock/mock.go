// Package mock provides a scriptable test double for [memory.Store].
//
// The mock records every method call for assertion in tests and exposes
// exported fields that control what it returns. Optional *Func fields take
// precedence over the static Result/Err pairs for call-dependent behaviour.
// All methods are safe for concurrent use.
//
// Typical usage:
//
//	store := &mock.Store{SearchResults: []memory.SearchResult{{Content: "likes tea"}}}
//
//	// inject store into the system under test …
//
//	if got := store.CallCount("Search"); got != 1 {
//	    t.Errorf("expected 1 Search call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/foyerlabs/foyer/pkg/memory"
)

// Compile-time interface check.
var _ memory.Store = (*Store)(nil)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable test double for [memory.Store]. The zero value
// succeeds on every call and returns empty results.
type Store struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// AddID is returned by Add when AddFunc is nil. Defaults to
	// "mock-memory-id" when empty.
	AddID string
	// AddErr is returned by Add when AddFunc is nil.
	AddErr error
	// AddFunc, if set, computes the result of each Add call.
	AddFunc func(userID, content, source string, metadata map[string]string) (string, error)

	// SearchResults is returned by Search when SearchFunc is nil. When nil,
	// Search returns an empty non-nil slice.
	SearchResults []memory.SearchResult
	// SearchErr is returned by Search when SearchFunc is nil.
	SearchErr error
	// SearchFunc, if set, computes the result of each Search call.
	SearchFunc func(userID, query string, topK int) ([]memory.SearchResult, error)

	// DeleteResult is returned by Delete when DeleteFunc is nil.
	DeleteResult bool
	// DeleteErr is returned by Delete when DeleteFunc is nil.
	DeleteErr error
	// DeleteFunc, if set, computes the result of each Delete call.
	DeleteFunc func(userID, memoryID string) (bool, error)

	// CountResult is returned by Count.
	CountResult int
	// CountErr is returned by Count.
	CountErr error

	// HealthyErr is returned by Healthy.
	HealthyErr error

	// CloseErr is returned by Close.
	CloseErr error
}

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// record appends a call entry. Must be called with m.mu held.
func (m *Store) record(method string, args ...any) {
	m.calls = append(m.calls, Call{Method: method, Args: args})
}

// Add implements [memory.Store].
func (m *Store) Add(_ context.Context, userID, content, source string, metadata map[string]string) (string, error) {
	m.mu.Lock()
	m.record("Add", userID, content, source, metadata)
	fn, id, err := m.AddFunc, m.AddID, m.AddErr
	m.mu.Unlock()

	if fn != nil {
		return fn(userID, content, source, metadata)
	}
	if id == "" && err == nil {
		id = "mock-memory-id"
	}
	return id, err
}

// Search implements [memory.Store].
func (m *Store) Search(_ context.Context, userID, query string, topK int) ([]memory.SearchResult, error) {
	m.mu.Lock()
	m.record("Search", userID, query, topK)
	fn, results, err := m.SearchFunc, m.SearchResults, m.SearchErr
	m.mu.Unlock()

	if fn != nil {
		return fn(userID, query, topK)
	}
	if err != nil {
		return nil, err
	}
	if results == nil {
		return []memory.SearchResult{}, nil
	}
	out := make([]memory.SearchResult, len(results))
	copy(out, results)
	return out, nil
}

// Delete implements [memory.Store].
func (m *Store) Delete(_ context.Context, userID, memoryID string) (bool, error) {
	m.mu.Lock()
	m.record("Delete", userID, memoryID)
	fn, ok, err := m.DeleteFunc, m.DeleteResult, m.DeleteErr
	m.mu.Unlock()

	if fn != nil {
		return fn(userID, memoryID)
	}
	return ok, err
}

// Count implements [memory.Store].
func (m *Store) Count(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Count", userID)
	return m.CountResult, m.CountErr
}

// Healthy implements [memory.Store].
func (m *Store) Healthy(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Healthy")
	return m.HealthyErr
}

// Close implements [memory.Store].
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Close")
	return m.CloseErr
}
